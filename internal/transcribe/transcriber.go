package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"podsnip/internal/config"
	"podsnip/internal/logging"
	"podsnip/internal/services"
	"podsnip/internal/services/whisperx"
	"podsnip/internal/stage"
)

// Result carries the transcription outputs the later stages consume.
type Result struct {
	// Segments are the timestamped sentences from WhisperX.
	Segments []whisperx.Segment
	// Transcript is the timestamped text written to the transcript artifact,
	// one "[12.3s - 15.6s] text" line per segment.
	Transcript string
}

// Transcriber converts episode audio into a timestamped transcript.
type Transcriber struct {
	svc    *whisperx.Service
	logger *slog.Logger
}

// NewTranscriber builds a Transcriber from configuration.
func NewTranscriber(cfg *config.Config, logger *slog.Logger) *Transcriber {
	svc := whisperx.NewService(whisperx.Config{
		Model:          cfg.Transcriber.Model,
		CUDAEnabled:    cfg.Transcriber.CUDAEnabled,
		VADMethod:      cfg.Transcriber.VADMethod,
		HFToken:        cfg.Transcriber.HFToken,
		TimeoutSeconds: cfg.Transcriber.TimeoutSeconds,
	}, cfg.FFmpegBinary())
	return &Transcriber{
		svc:    svc,
		logger: logging.NewComponentLogger(logger, "transcribe"),
	}
}

// Service exposes the underlying WhisperX service for test hooks.
func (t *Transcriber) Service() *whisperx.Service {
	return t.svc
}

// Transcribe extracts audio, runs WhisperX, and writes the transcript
// artifact. workDir holds the intermediate WAV and WhisperX outputs.
func (t *Transcriber) Transcribe(ctx context.Context, sourcePath, workDir, transcriptPath string) (Result, error) {
	var result Result
	ctx = services.WithStage(ctx, "transcribe")
	log := logging.WithContext(ctx, t.logger)

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return result, services.Wrap(services.ErrTranscription, "transcribe", "workdir", "ensuring work directory", err)
	}

	wavPath := filepath.Join(workDir, "audio.wav")
	if err := t.svc.ExtractAudio(ctx, sourcePath, wavPath); err != nil {
		return result, services.Wrap(services.ErrTranscription, "transcribe", "extract", "converting audio for whisperx", err)
	}

	log.Info("transcription started", logging.String("model", t.svc.Model()))
	transcription, err := t.svc.TranscribeFile(ctx, wavPath, workDir, "")
	if err != nil {
		return result, services.Wrap(services.ErrTranscription, "transcribe", "whisperx", "running whisperx", err)
	}

	segments, err := whisperx.LoadSegments(transcription.JSONPath)
	if err != nil {
		return result, services.Wrap(services.ErrTranscription, "transcribe", "segments", "loading whisperx output", err)
	}
	if len(segments) == 0 {
		return result, services.Wrap(services.ErrTranscription, "transcribe", "segments", "whisperx produced no segments", nil)
	}

	result.Segments = segments
	result.Transcript = FormatTranscript(segments)

	if transcriptPath != "" {
		if err := os.WriteFile(transcriptPath, []byte(result.Transcript), 0o644); err != nil {
			return result, services.Wrap(services.ErrStore, "transcribe", "artifact", "writing transcript", err)
		}
	}

	log.Info("transcription complete", logging.Int("segments", len(segments)))
	return result, nil
}

// FormatTranscript renders segments as timestamped lines for the detection
// prompt and the transcript artifact.
func FormatTranscript(segments []whisperx.Segment) string {
	var b strings.Builder
	for _, segment := range segments {
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "[%.1fs - %.1fs] %s\n", segment.Start, segment.End, text)
	}
	return b.String()
}

// ParseTranscript reads lines produced by FormatTranscript back into
// segments, letting a retry reuse a transcript from an earlier attempt.
// Lines that do not match the format are skipped.
func ParseTranscript(transcript string) []whisperx.Segment {
	var segments []whisperx.Segment
	for _, line := range strings.Split(transcript, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "[") {
			continue
		}
		var start, end float64
		var rest string
		if _, err := fmt.Sscanf(line, "[%fs - %fs]%s", &start, &end, &rest); err != nil {
			continue
		}
		idx := strings.Index(line, "] ")
		if idx < 0 || end <= start {
			continue
		}
		segments = append(segments, whisperx.Segment{
			Text:  strings.TrimSpace(line[idx+2:]),
			Start: start,
			End:   end,
		})
	}
	return segments
}

// HealthCheck verifies the external transcription tooling is reachable.
func (t *Transcriber) HealthCheck(ctx context.Context) stage.Health {
	const name = "transcribe"
	if _, err := exec.LookPath(whisperx.UVXCommand); err != nil {
		return stage.Unhealthy(name, "uvx not found in PATH")
	}
	if _, err := exec.LookPath(whisperx.FFmpegCommand); err != nil {
		return stage.Unhealthy(name, "ffmpeg not found in PATH")
	}
	return stage.Healthy(name)
}
