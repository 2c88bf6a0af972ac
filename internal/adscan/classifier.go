package adscan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"podsnip/internal/logging"
	"podsnip/internal/services"
	"podsnip/internal/services/llm"
	"podsnip/internal/services/whisperx"
	"podsnip/internal/stage"
)

// Completer is the slice of the LLM client the classifier needs.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, llm.Usage, error)
	Model() string
}

// Options tune chunking and merging behavior.
type Options struct {
	// Prompt overrides DefaultPrompt when set.
	Prompt string
	// ChunkChars bounds the transcript characters sent per request.
	ChunkChars int
	// ChunkOverlapSeconds re-sends trailing context at chunk boundaries so
	// ads spanning a boundary are seen whole at least once.
	ChunkOverlapSeconds float64
	// MergeGapSeconds coalesces ranges separated by less than this gap.
	MergeGapSeconds float64
}

// Detection is the outcome of scanning one episode transcript.
type Detection struct {
	Ranges []Range
	Usage  llm.Usage
	Model  string
	Chunks int
}

// Classifier finds advertisement ranges in transcripts via the LLM.
type Classifier struct {
	completer Completer
	opts      Options
	logger    *slog.Logger
}

// NewClassifier builds a Classifier.
func NewClassifier(completer Completer, opts Options, logger *slog.Logger) *Classifier {
	if opts.ChunkChars <= 0 {
		opts.ChunkChars = 24000
	}
	if opts.ChunkOverlapSeconds < 0 {
		opts.ChunkOverlapSeconds = 0
	}
	if strings.TrimSpace(opts.Prompt) == "" {
		opts.Prompt = DefaultPrompt
	}
	return &Classifier{
		completer: completer,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "adscan"),
	}
}

// DetectAds scans the transcript and returns normalized ad ranges. The
// transcript is chunked to stay inside model context limits; each chunk is
// classified independently and the results merged.
func (c *Classifier) DetectAds(ctx context.Context, podcastName, episodeTitle string, segments []whisperx.Segment, duration float64) (Detection, error) {
	var detection Detection
	if len(segments) == 0 {
		return detection, services.Wrap(services.ErrClassification, "adscan", "input", "no transcript segments", nil)
	}
	detection.Model = c.completer.Model()
	ctx = services.WithStage(ctx, "adscan")
	log := logging.WithContext(ctx, c.logger)

	chunks := chunkSegments(segments, c.opts.ChunkChars, c.opts.ChunkOverlapSeconds)
	detection.Chunks = len(chunks)

	var collected []Range
	for i, chunk := range chunks {
		userPrompt := buildUserPrompt(podcastName, episodeTitle, chunk)
		content, usage, err := c.completer.CompleteJSON(ctx, c.opts.Prompt, userPrompt)
		detection.Usage.Add(usage)
		if err != nil {
			return detection, services.Wrap(services.ErrClassification, "adscan", "complete",
				fmt.Sprintf("classifying chunk %d/%d", i+1, len(chunks)), err)
		}
		ranges, err := parseRanges(content)
		if err != nil {
			return detection, services.Wrap(services.ErrClassification, "adscan", "parse",
				fmt.Sprintf("parsing chunk %d/%d response", i+1, len(chunks)), err)
		}
		collected = append(collected, ranges...)
	}

	detection.Ranges = NormalizeRanges(collected, c.opts.MergeGapSeconds, duration)
	log.Info("detection complete",
		logging.Int("chunks", detection.Chunks),
		logging.Int("ranges", len(detection.Ranges)),
		logging.Float64("ad_seconds", TotalSeconds(detection.Ranges)),
		logging.Int64("prompt_tokens", detection.Usage.PromptTokens),
		logging.Int64("completion_tokens", detection.Usage.CompletionTokens),
	)
	return detection, nil
}

// HealthCheck verifies the LLM endpoint is usable when the client supports a
// health probe.
func (c *Classifier) HealthCheck(ctx context.Context) stage.Health {
	const name = "adscan"
	type healthChecker interface {
		HealthCheck(context.Context) error
	}
	if checker, ok := c.completer.(healthChecker); ok {
		if err := checker.HealthCheck(ctx); err != nil {
			return stage.Unhealthy(name, err.Error())
		}
	}
	return stage.Healthy(name)
}

func buildUserPrompt(podcastName, episodeTitle, transcript string) string {
	if strings.TrimSpace(podcastName) == "" {
		podcastName = "Unknown"
	}
	if strings.TrimSpace(episodeTitle) == "" {
		episodeTitle = "Unknown"
	}
	return fmt.Sprintf("Podcast: %s\nEpisode: %s\n\nTranscript:\n%s", podcastName, episodeTitle, transcript)
}

// chunkSegments splits segments into transcript chunks no larger than
// chunkChars, starting each subsequent chunk overlapSeconds before the
// previous chunk's end.
func chunkSegments(segments []whisperx.Segment, chunkChars int, overlapSeconds float64) []string {
	lines := make([]string, len(segments))
	for i, segment := range segments {
		lines[i] = fmt.Sprintf("[%.1fs - %.1fs] %s", segment.Start, segment.End, strings.TrimSpace(segment.Text))
	}

	var chunks []string
	start := 0
	for start < len(segments) {
		size := 0
		end := start
		for end < len(segments) {
			lineLen := len(lines[end]) + 1
			if size > 0 && size+lineLen > chunkChars {
				break
			}
			size += lineLen
			end++
		}
		chunks = append(chunks, strings.Join(lines[start:end], "\n"))
		if end >= len(segments) {
			break
		}

		// Walk back so the next chunk re-covers the boundary.
		next := end
		boundary := segments[end-1].End - overlapSeconds
		for next > start+1 && segments[next-1].Start > boundary {
			next--
		}
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// parseRanges tolerates both the documented bare-array format and an object
// wrapping it in an "ads" field.
func parseRanges(content string) ([]Range, error) {
	var ranges []Range
	if err := llm.DecodeLLMJSON(content, &ranges); err == nil {
		return ranges, nil
	}
	var wrapped struct {
		Ads []Range `json:"ads"`
	}
	if err := llm.DecodeLLMJSON(content, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Ads, nil
}
