// Package stage defines the readiness contract shared by the processing
// stages. Each stage reports whether its external tooling (ffmpeg, uvx,
// the LLM endpoint) is usable before the daemon accepts work.
package stage
