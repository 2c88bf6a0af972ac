package audioedit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"podsnip/internal/adscan"
	"podsnip/internal/config"
	"podsnip/internal/logging"
	"podsnip/internal/services"
	"podsnip/internal/stage"
)

const defaultBitrate = "128k"

type commandRunner func(ctx context.Context, name string, args ...string) error

// Result describes one finished edit.
type Result struct {
	ProcessedPath  string
	RemovedSeconds float64
	ToneInserts    int
	// EditedSeconds is the expected output duration, derived from the plan.
	EditedSeconds float64
}

// Editor cuts ad ranges out of episode audio with ffmpeg, splicing a short
// tone where each ad block was removed.
type Editor struct {
	binary      string
	toneHz      int
	toneSeconds float64
	bitrate     string
	runner      commandRunner
	logger      *slog.Logger
}

// NewEditor builds an Editor from configuration.
func NewEditor(cfg *config.Config, logger *slog.Logger) *Editor {
	bitrate := strings.TrimSpace(cfg.Audio.Bitrate)
	if bitrate == "" {
		bitrate = defaultBitrate
	}
	return &Editor{
		binary:      cfg.FFmpegBinary(),
		toneHz:      cfg.Audio.ToneHz,
		toneSeconds: cfg.Audio.ToneSeconds,
		bitrate:     bitrate,
		runner:      runCommand,
		logger:      logging.NewComponentLogger(logger, "audioedit"),
	}
}

// WithCommandRunner replaces process execution, used by tests.
func (e *Editor) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	if runner != nil {
		e.runner = runner
	}
}

// Edit writes the ad-free rendition of source to dest. With no ranges the
// source is stream-copied so untouched episodes keep their original encoding.
func (e *Editor) Edit(ctx context.Context, source, dest string, ranges []adscan.Range, duration float64) (Result, error) {
	var result Result
	if strings.TrimSpace(source) == "" || strings.TrimSpace(dest) == "" {
		return result, services.Wrap(services.ErrAudioEdit, "audioedit", "edit", "source and destination paths are required", nil)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return result, services.Wrap(services.ErrStore, "audioedit", "edit", "creating output directory", err)
	}
	ctx = services.WithStage(ctx, "audioedit")
	log := logging.WithContext(ctx, e.logger)
	result.ProcessedPath = dest

	if len(ranges) == 0 {
		log.Info("no ad ranges, copying source audio")
		args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", source, "-map", "0:a:0", "-c:a", "copy", dest}
		if err := e.runner(ctx, e.binary, args...); err != nil {
			return result, services.Wrap(services.ErrAudioEdit, "audioedit", "copy", "copying unedited audio", err)
		}
		result.EditedSeconds = duration
		return result, nil
	}

	plan, err := BuildPlan(duration, ranges)
	if err != nil {
		return result, err
	}
	result.RemovedSeconds = plan.RemovedSeconds
	result.ToneInserts = plan.ToneInserts
	result.EditedSeconds = duration - plan.RemovedSeconds + float64(plan.ToneInserts)*e.toneSeconds

	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", source,
		"-filter_complex", e.buildFilterGraph(plan),
		"-map", "[out]",
		"-c:a", "libmp3lame",
		"-b:a", e.bitrate,
		dest,
	}
	log.Info("editing audio",
		logging.Int("ranges", len(ranges)),
		logging.Float64("removed_seconds", plan.RemovedSeconds),
		logging.Int("tone_inserts", plan.ToneInserts),
	)
	if err := e.runner(ctx, e.binary, args...); err != nil {
		return result, services.Wrap(services.ErrAudioEdit, "audioedit", "filter", "splicing audio", err)
	}
	return result, nil
}

// buildFilterGraph renders the plan as an ffmpeg filter_complex expression.
// Every timeline slice is trimmed or synthesized, forced to a common sample
// format, and concatenated in order.
func (e *Editor) buildFilterGraph(plan Plan) string {
	const format = "aformat=sample_fmts=fltp:sample_rates=44100:channel_layouts=stereo"

	var graph strings.Builder
	var labels []string
	for i, item := range plan.Items {
		label := fmt.Sprintf("[s%d]", i)
		if item.Tone {
			if e.toneSeconds <= 0 {
				continue
			}
			fmt.Fprintf(&graph, "sine=frequency=%d:duration=%.3f,%s%s;", e.toneHz, e.toneSeconds, format, label)
		} else {
			fmt.Fprintf(&graph, "[0:a]atrim=start=%.3f:end=%.3f,asetpts=PTS-STARTPTS,%s%s;", item.Start, item.End, format, label)
		}
		labels = append(labels, label)
	}
	fmt.Fprintf(&graph, "%sconcat=n=%d:v=0:a=1[out]", strings.Join(labels, ""), len(labels))
	return graph.String()
}

// HealthCheck reports whether the ffmpeg binary is resolvable.
func (e *Editor) HealthCheck(ctx context.Context) stage.Health {
	const name = "audioedit"
	if _, err := exec.LookPath(e.binary); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("binary %q not found", e.binary))
	}
	return stage.Healthy(name)
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if detail != "" {
			return fmt.Errorf("%s: %w: %s", name, err, detail)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
