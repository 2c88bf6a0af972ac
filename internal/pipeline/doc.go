// Package pipeline coordinates just-in-time episode processing. The first
// request for an episode claims it, downloads the original audio, produces
// a transcript, classifies ad ranges, and writes the edited rendition.
// Requests arriving while an attempt runs are served the original audio
// unless blocking mode is configured.
package pipeline
