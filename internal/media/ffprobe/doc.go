// Package ffprobe shells out to ffprobe and exposes the container metadata
// the pipeline needs: episode duration, size, bitrate, and audio stream
// presence checks before editing.
package ffprobe
