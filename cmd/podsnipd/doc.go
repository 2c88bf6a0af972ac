// Package main hosts the podsnipd daemon entrypoint.
//
// The daemon owns the SQLite store, the feed refresher, the processing
// coordinator, and the HTTP server that exposes rewritten feeds, episode
// audio, and the management API. Startup acquires a data-directory lock so
// only one daemon ever claims episodes against a given store.
package main
