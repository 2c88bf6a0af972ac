// Package server is the HTTP surface: rewritten RSS feeds, just-in-time
// episode audio, the management API, and the health endpoint.
package server
