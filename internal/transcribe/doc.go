// Package transcribe turns cached episode audio into a timestamped
// transcript via WhisperX. The transcript format feeds both the ad
// detection prompt and the per-episode transcript artifact.
package transcribe
