// Package whisperx provides WhisperX transcription utilities for episode audio.
//
// This package handles:
//   - Converting episode audio to the mono 16kHz WAV WhisperX expects
//   - WhisperX transcription invocation via uvx
//   - Timestamped segment and transcript extraction from results
//
// Configuration options (model, CUDA, VAD method) are passed via Config.
package whisperx
