package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"podsnip/internal/adscan"
	"podsnip/internal/audioedit"
	"podsnip/internal/config"
	"podsnip/internal/logging"
	"podsnip/internal/media/ffprobe"
	"podsnip/internal/notifications"
	"podsnip/internal/services"
	"podsnip/internal/services/llm"
	"podsnip/internal/services/whisperx"
	"podsnip/internal/stage"
	"podsnip/internal/store"
	"podsnip/internal/transcribe"
)

// ErrNotClaimable reports that another worker holds the episode or it is in
// a terminal state.
var ErrNotClaimable = errors.New("episode is not claimable")

type downloaderAPI interface {
	Download(ctx context.Context, url, dest string) error
}

type transcriberAPI interface {
	Transcribe(ctx context.Context, sourcePath, workDir, transcriptPath string) (transcribe.Result, error)
}

type detectorAPI interface {
	DetectAds(ctx context.Context, podcastName, episodeTitle string, segments []whisperx.Segment, duration float64) (adscan.Detection, error)
}

type editorAPI interface {
	Edit(ctx context.Context, source, dest string, ranges []adscan.Range, duration float64) (audioedit.Result, error)
}

type prober func(ctx context.Context, path string) (ffprobe.Result, error)

// detectorFactory builds the classifier for one attempt so per-podcast model
// and prompt overrides take effect.
type detectorFactory func(modelOverride, promptOverride string) detectorAPI

// Processor runs one full processing attempt for an episode: download,
// transcribe, classify, edit, persist.
type Processor struct {
	cfg      *config.Config
	store    *store.Store
	notifier notifications.Service
	logger   *slog.Logger

	downloader  downloaderAPI
	transcriber transcriberAPI
	editor      editorAPI
	detector    detectorFactory
	probe       prober

	heartbeatInterval time.Duration
}

// NewProcessor wires the real stage implementations.
func NewProcessor(cfg *config.Config, st *store.Store, notifier notifications.Service, logger *slog.Logger) *Processor {
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	heartbeat := time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	p := &Processor{
		cfg:               cfg,
		store:             st,
		notifier:          notifier,
		logger:            logging.NewComponentLogger(logger, "pipeline"),
		downloader:        NewDownloader(cfg),
		transcriber:       transcribe.NewTranscriber(cfg, logger),
		editor:            audioedit.NewEditor(cfg, logger),
		heartbeatInterval: heartbeat,
	}
	p.detector = func(modelOverride, promptOverride string) detectorAPI {
		resolved := cfg.GetLLM(modelOverride)
		prompt := cfg.Detection.Prompt
		if override := strings.TrimSpace(promptOverride); override != "" {
			prompt = override
		}
		client := llm.NewClient(llm.Config{
			APIKey:         resolved.APIKey,
			BaseURL:        resolved.BaseURL,
			Model:          resolved.Model,
			Referer:        resolved.Referer,
			Title:          resolved.Title,
			TimeoutSeconds: resolved.TimeoutSeconds,
			RequestsPerMin: cfg.LLM.RequestsPerMin,
			CostPerMTokIn:  cfg.LLM.CostPerMTokIn,
			CostPerMTokOut: cfg.LLM.CostPerMTokOut,
		})
		return adscan.NewClassifier(client, adscan.Options{
			Prompt:              prompt,
			ChunkChars:          cfg.Detection.ChunkChars,
			ChunkOverlapSeconds: cfg.Detection.ChunkOverlapSeconds,
			MergeGapSeconds:     cfg.Detection.MergeGapSeconds,
		}, logger)
	}
	p.probe = func(ctx context.Context, path string) (ffprobe.Result, error) {
		return ffprobe.Inspect(ctx, cfg.FFprobeBinary(), path)
	}
	return p
}

// WithDownloader replaces the audio downloader, used by tests.
func (p *Processor) WithDownloader(d downloaderAPI) { p.downloader = d }

// WithTranscriber replaces the transcription stage, used by tests.
func (p *Processor) WithTranscriber(t transcriberAPI) { p.transcriber = t }

// WithEditor replaces the audio editing stage, used by tests.
func (p *Processor) WithEditor(e editorAPI) { p.editor = e }

// WithDetector replaces the classifier factory, used by tests.
func (p *Processor) WithDetector(factory func(modelOverride, promptOverride string) detectorAPI) {
	p.detector = detectorFactory(factory)
}

// WithProber replaces media inspection, used by tests.
func (p *Processor) WithProber(probe func(ctx context.Context, path string) (ffprobe.Result, error)) {
	p.probe = prober(probe)
}

// ProcessEpisode claims the episode and runs the full attempt. It returns
// ErrNotClaimable without side effects when the claim is lost.
func (p *Processor) ProcessEpisode(ctx context.Context, podcast *store.Podcast, episode *store.Episode) error {
	claimed, err := p.store.ClaimEpisode(ctx, episode.ID)
	if err != nil {
		return services.Wrap(services.ErrStore, "pipeline", "claim", "claiming episode", err)
	}
	if !claimed {
		return ErrNotClaimable
	}

	ctx = services.WithPodcast(ctx, podcast.Slug)
	ctx = services.WithEpisodeKey(ctx, episode.EpisodeKey)
	log := logging.WithContext(ctx, p.logger)
	started := time.Now().UTC()
	log.Info("processing started", logging.String("title", episode.Title))

	stopHeartbeat := p.startHeartbeat(ctx, episode.ID)
	defer stopHeartbeat()

	result, runErr := p.runAttempt(ctx, podcast, episode)
	result.Run.StartedAt = started
	result.Run.FinishedAt = time.Now().UTC()

	if runErr != nil {
		log.Error("processing failed", logging.Error(runErr), logging.Duration("elapsed", time.Since(started)))
		if failErr := p.store.FailEpisode(ctx, episode.ID, runErr.Error(), result.Run); failErr != nil {
			log.Error("recording failure", logging.Error(failErr))
		}
		if err := p.notifier.NotifyEpisodeFailed(ctx, podcast.Title, episode.Title, runErr); err != nil {
			log.Warn("failure notification", logging.Error(err))
		}
		return runErr
	}

	if err := p.store.CompleteEpisode(ctx, episode.ID, result); err != nil {
		log.Error("recording completion", logging.Error(err))
		return services.Wrap(services.ErrStore, "pipeline", "complete", "persisting completed episode", err)
	}
	log.Info("processing complete",
		logging.Float64("removed_seconds", result.Run.SecondsRemoved),
		logging.Float64("cost_usd", result.Run.CostUSD),
		logging.Duration("elapsed", time.Since(started)),
	)
	if err := p.notifier.NotifyEpisodeCompleted(ctx, podcast.Title, episode.Title, result.Run.SecondsRemoved); err != nil {
		log.Warn("completion notification", logging.Error(err))
	}
	return nil
}

func (p *Processor) runAttempt(ctx context.Context, podcast *store.Podcast, episode *store.Episode) (store.CompletionResult, error) {
	var result store.CompletionResult
	paths := store.EpisodeArtifacts(p.cfg.Paths.DataDir, podcast.Slug, episode.EpisodeKey)
	log := logging.WithContext(ctx, p.logger)

	if err := p.downloader.Download(ctx, episode.EnclosureURL, paths.Original); err != nil {
		return result, err
	}
	result.OriginalPath = paths.Original
	if err := p.store.SetEpisodeOriginal(ctx, episode.ID, paths.Original); err != nil {
		return result, services.Wrap(services.ErrStore, "pipeline", "original", "recording original path", err)
	}

	probeResult, err := p.probe(ctx, paths.Original)
	if err != nil {
		return result, services.Wrap(services.ErrAudioEdit, "pipeline", "probe", "inspecting original audio", err)
	}
	duration := probeResult.DurationSeconds()
	if duration <= 0 {
		return result, services.Wrap(services.ErrAudioEdit, "pipeline", "probe", "original audio has no duration", nil)
	}
	result.Duration = duration

	segments, err := p.loadOrTranscribe(ctx, paths)
	if err != nil {
		return result, err
	}
	result.TranscriptPath = paths.Transcript

	detection, err := p.detector(podcast.Model, podcast.DetectionPrompt).DetectAds(ctx, podcast.Title, episode.Title, segments, duration)
	result.Run.PromptTokens = detection.Usage.PromptTokens
	result.Run.CompletionTokens = detection.Usage.CompletionTokens
	result.Run.CostUSD = detection.Usage.CostUSD
	if err != nil {
		return result, err
	}

	rangesJSON, err := adscan.EncodeRanges(detection.Ranges)
	if err != nil {
		return result, services.Wrap(services.ErrClassification, "pipeline", "encode", "encoding ad ranges", err)
	}
	result.AdRangesJSON = rangesJSON
	result.Run.AdRangesJSON = rangesJSON
	if err := os.WriteFile(paths.AdRanges, []byte(rangesJSON), 0o644); err != nil {
		return result, services.Wrap(services.ErrStore, "pipeline", "artifact", "writing ad ranges", err)
	}

	edit, err := p.editor.Edit(ctx, paths.Original, paths.Processed, detection.Ranges, duration)
	if err != nil {
		return result, err
	}
	result.ProcessedPath = paths.Processed
	result.EditedDuration = edit.EditedSeconds
	result.Run.SecondsRemoved = edit.RemovedSeconds

	// Trust ffprobe over plan arithmetic when the output is readable.
	if probed, err := p.probe(ctx, paths.Processed); err == nil {
		if actual := probed.DurationSeconds(); actual > 0 {
			result.EditedDuration = actual
		}
	}

	log.Info("attempt finished",
		logging.Float64("duration_seconds", duration),
		logging.Float64("edited_seconds", result.EditedDuration),
		logging.Int("ad_ranges", len(detection.Ranges)),
	)
	return result, nil
}

// loadOrTranscribe reuses a transcript left by an earlier attempt so a retry
// after a classification failure skips the expensive transcription step.
func (p *Processor) loadOrTranscribe(ctx context.Context, paths store.ArtifactPaths) ([]whisperx.Segment, error) {
	if data, err := os.ReadFile(paths.Transcript); err == nil {
		if segments := transcribe.ParseTranscript(string(data)); len(segments) > 0 {
			logging.WithContext(ctx, p.logger).Info("reusing existing transcript",
				logging.Int("segments", len(segments)))
			return segments, nil
		}
	}
	result, err := p.transcriber.Transcribe(ctx, paths.Original, paths.WorkDir, paths.Transcript)
	if err != nil {
		return nil, err
	}
	return result.Segments, nil
}

func (p *Processor) startHeartbeat(ctx context.Context, episodeID int64) func() {
	heartbeatCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(p.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				return
			case <-ticker.C:
				if err := p.store.UpdateHeartbeat(heartbeatCtx, episodeID); err != nil {
					p.logger.Warn("heartbeat update", logging.Error(err),
						slog.Int64("episode_id", episodeID))
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Notifier exposes the configured notification service.
func (p *Processor) Notifier() notifications.Service {
	return p.notifier
}

// Checkers returns the stage health checkers behind the processor. Stages
// replaced by test doubles without health support are skipped.
func (p *Processor) Checkers() []stage.Checker {
	var checkers []stage.Checker
	if checker, ok := p.transcriber.(stage.Checker); ok {
		checkers = append(checkers, checker)
	}
	if checker, ok := p.editor.(stage.Checker); ok {
		checkers = append(checkers, checker)
	}
	if checker, ok := p.detector("", "").(stage.Checker); ok {
		checkers = append(checkers, checker)
	}
	return checkers
}
