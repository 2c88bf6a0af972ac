package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"podsnip/internal/config"
	"podsnip/internal/logging"
	"podsnip/internal/services"
	"podsnip/internal/store"
)

// Outcome classifies how an episode request was answered.
type Outcome string

const (
	// OutcomeProcessed serves the ad-free rendition from disk.
	OutcomeProcessed Outcome = "served_cached"
	// OutcomeStarted redirects to the original while a fresh attempt runs.
	OutcomeStarted Outcome = "processing_started"
	// OutcomeFallback redirects to the original; the episode is failed, an
	// attempt was already in flight, or one could not be started.
	OutcomeFallback Outcome = "served_original_fallback"
)

// Resolution is the answer to one episode request.
type Resolution struct {
	Podcast *store.Podcast
	Episode *store.Episode
	Outcome Outcome
	// FilePath is set for OutcomeProcessed.
	FilePath string
	// RedirectURL is set when the original enclosure should be served.
	RedirectURL string
}

type processorAPI interface {
	ProcessEpisode(ctx context.Context, podcast *store.Podcast, episode *store.Episode) error
}

// Coordinator answers episode requests just in time: completed episodes are
// served from cache, failed episodes get the original audio until an explicit
// reprocess, and everything else starts (or joins) a processing attempt and
// falls back to the original unless blocking mode is configured.
type Coordinator struct {
	cfg       *config.Config
	store     *store.Store
	processor processorAPI
	logger    *slog.Logger

	inflight *inflight
	workers  *semaphore.Weighted
	blocking bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewCoordinator builds a Coordinator around the given processor.
func NewCoordinator(cfg *config.Config, st *store.Store, processor processorAPI, logger *slog.Logger) *Coordinator {
	workerCount := cfg.Workflow.Workers
	if workerCount <= 0 {
		workerCount = 2
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:       cfg,
		store:     st,
		processor: processor,
		logger:    logging.NewComponentLogger(logger, "coordinator"),
		inflight:  newInflight(),
		workers:   semaphore.NewWeighted(int64(workerCount)),
		blocking:  cfg.Workflow.BlockUntilProcessed,
		baseCtx:   baseCtx,
		cancel:    cancel,
	}
}

// Resolve answers a request for one episode's audio.
func (c *Coordinator) Resolve(ctx context.Context, slug, episodeKey string) (Resolution, error) {
	var resolution Resolution
	podcast, episode, err := c.lookup(ctx, slug, episodeKey)
	if err != nil {
		return resolution, err
	}
	resolution.Podcast = podcast
	resolution.Episode = episode

	if episode.Status == store.StatusCompleted {
		if info, err := os.Stat(episode.ProcessedPath); err == nil && info.Size() > 0 {
			resolution.Outcome = OutcomeProcessed
			resolution.FilePath = episode.ProcessedPath
			return resolution, nil
		}
		// Artifact lost from disk; reset so an attempt can rebuild it.
		if _, err := c.store.ResetForReprocess(ctx, episode.ID); err != nil {
			return resolution, services.Wrap(services.ErrStore, "coordinator", "reset", "resetting episode with missing artifact", err)
		}
		c.logger.Warn("processed artifact missing, reprocessing",
			logging.String("podcast", podcast.Slug),
			logging.String("episode_key", episode.EpisodeKey),
		)
	}

	if episode.Status == store.StatusFailed {
		// Failed episodes are retried only through an explicit reprocess;
		// requests keep getting the original audio.
		resolution.Outcome = OutcomeFallback
		resolution.RedirectURL = episode.EnclosureURL
		return resolution, nil
	}

	done, finish, started := c.inflight.begin(episode.ID)
	if started {
		c.startAttempt(podcast, episode, finish)
		resolution.Outcome = OutcomeStarted
	} else {
		resolution.Outcome = OutcomeFallback
	}

	if c.blocking {
		select {
		case <-done:
		case <-ctx.Done():
			resolution.Outcome = OutcomeFallback
			resolution.RedirectURL = episode.EnclosureURL
			return resolution, nil
		}
		refreshed, err := c.store.GetEpisodeByID(ctx, episode.ID)
		if err == nil && refreshed != nil {
			resolution.Episode = refreshed
			if refreshed.Status == store.StatusCompleted && refreshed.ProcessedPath != "" {
				resolution.Outcome = OutcomeProcessed
				resolution.FilePath = refreshed.ProcessedPath
				return resolution, nil
			}
		}
		resolution.Outcome = OutcomeFallback
	}

	resolution.RedirectURL = episode.EnclosureURL
	return resolution, nil
}

// Reprocess resets a completed or failed episode and starts a fresh attempt.
func (c *Coordinator) Reprocess(ctx context.Context, slug, episodeKey string) error {
	podcast, episode, err := c.lookup(ctx, slug, episodeKey)
	if err != nil {
		return err
	}
	if c.inflight.watch(episode.ID) != nil || episode.Status == store.StatusProcessing {
		return services.Wrap(services.ErrValidation, "coordinator", "reprocess", "episode is currently processing", nil)
	}
	if episode.Status != store.StatusUnprocessed {
		reset, err := c.store.ResetForReprocess(ctx, episode.ID)
		if err != nil {
			return services.Wrap(services.ErrStore, "coordinator", "reprocess", "resetting episode", err)
		}
		if !reset {
			return services.Wrap(services.ErrValidation, "coordinator", "reprocess", "episode cannot be reset", nil)
		}
	}
	_, finish, started := c.inflight.begin(episode.ID)
	if !started {
		return services.Wrap(services.ErrValidation, "coordinator", "reprocess", "episode attempt already in flight", nil)
	}
	c.startAttempt(podcast, episode, finish)
	return nil
}

// StartReclaim periodically returns stale in-flight episodes to the queue.
// Episodes whose heartbeat is older than the configured timeout belong to a
// worker that died without failing them.
func (c *Coordinator) StartReclaim() {
	timeout := time.Duration(c.cfg.Workflow.HeartbeatTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(timeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-c.baseCtx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-timeout)
				reclaimed, err := c.store.ReclaimStaleProcessing(c.baseCtx, cutoff)
				if err != nil {
					c.logger.Warn("stale reclaim", logging.Error(err))
					continue
				}
				if reclaimed > 0 {
					c.logger.Info("reclaimed stale episodes", logging.Int64("count", reclaimed))
				}
			}
		}
	}()
}

// Close stops background work and waits for in-flight attempts to end.
func (c *Coordinator) Close() {
	c.cancel()
	c.wg.Wait()
}

// Wait blocks until all in-flight attempts finish, used by tests.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) lookup(ctx context.Context, slug, episodeKey string) (*store.Podcast, *store.Episode, error) {
	podcast, err := c.store.GetPodcastBySlug(ctx, slug)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrStore, "coordinator", "lookup", "loading podcast", err)
	}
	if podcast == nil {
		return nil, nil, services.Wrap(services.ErrNotFound, "coordinator", "lookup",
			fmt.Sprintf("podcast %q is not registered", slug), nil)
	}
	episode, err := c.store.GetEpisode(ctx, podcast.ID, episodeKey)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrStore, "coordinator", "lookup", "loading episode", err)
	}
	if episode == nil {
		return nil, nil, services.Wrap(services.ErrNotFound, "coordinator", "lookup",
			fmt.Sprintf("episode %q is not known for podcast %q", episodeKey, slug), nil)
	}
	return podcast, episode, nil
}

// startAttempt runs one processing attempt in the background. Attempts use
// the coordinator's base context so client disconnects do not abort work.
func (c *Coordinator) startAttempt(podcast *store.Podcast, episode *store.Episode, finish func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer finish()
		if err := c.workers.Acquire(c.baseCtx, 1); err != nil {
			return
		}
		defer c.workers.Release(1)

		err := c.processor.ProcessEpisode(c.baseCtx, podcast, episode)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotClaimable):
			c.logger.Debug("episode already claimed",
				logging.String("podcast", podcast.Slug),
				logging.String("episode_key", episode.EpisodeKey),
			)
		default:
			c.logger.Error("processing attempt failed",
				logging.String("podcast", podcast.Slug),
				logging.String("episode_key", episode.EpisodeKey),
				logging.Error(err),
			)
		}
	}()
}
