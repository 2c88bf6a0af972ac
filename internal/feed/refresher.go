package feed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"podsnip/internal/logging"
	"podsnip/internal/services"
	"podsnip/internal/store"
)

// CachePath returns the location of a podcast's cached feed document.
func CachePath(dataDir, slug string) string {
	return filepath.Join(dataDir, slug, "feed.xml")
}

// Refresher keeps cached feeds and the episode table in sync with upstream.
type Refresher struct {
	store   *store.Store
	fetcher *Fetcher
	dataDir string
	logger  *slog.Logger
	cron    *cron.Cron
	onError func(podcast *store.Podcast, err error)
}

// NewRefresher builds a Refresher.
func NewRefresher(st *store.Store, fetcher *Fetcher, dataDir string, logger *slog.Logger) *Refresher {
	return &Refresher{
		store:   st,
		fetcher: fetcher,
		dataDir: dataDir,
		logger:  logging.NewComponentLogger(logger, "feed-refresh"),
	}
}

// OnError registers a callback invoked when a podcast refresh fails. Used to
// forward refresh failures to notifications.
func (r *Refresher) OnError(fn func(podcast *store.Podcast, err error)) {
	r.onError = fn
}

// RefreshResult summarizes a single podcast refresh.
type RefreshResult struct {
	Podcast  string
	Episodes int
	New      int
}

// RefreshPodcast fetches one feed, caches its raw bytes, and upserts its
// episodes. The cached document is what the server later rewrites, so it is
// written before episode sync: a sync failure must not leave a stale feed.
func (r *Refresher) RefreshPodcast(ctx context.Context, podcast *store.Podcast) (RefreshResult, error) {
	result := RefreshResult{Podcast: podcast.Slug}
	ctx = services.WithPodcast(ctx, podcast.Slug)
	log := logging.WithContext(ctx, r.logger)

	raw, err := r.fetcher.Fetch(ctx, podcast.FeedURL)
	if err != nil {
		r.recordFailure(ctx, podcast, err)
		return result, services.Wrap(services.ErrFetch, "refresh", "fetch", "downloading feed", err)
	}

	channel, err := Parse(raw)
	if err != nil {
		r.recordFailure(ctx, podcast, err)
		return result, services.Wrap(services.ErrFetch, "refresh", "parse", "parsing feed", err)
	}

	cachePath := CachePath(r.dataDir, podcast.Slug)
	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		r.recordFailure(ctx, podcast, err)
		return result, services.Wrap(services.ErrStore, "refresh", "cache", "ensuring cache directory", err)
	}
	if err := writeAtomic(cachePath, raw); err != nil {
		r.recordFailure(ctx, podcast, err)
		return result, services.Wrap(services.ErrStore, "refresh", "cache", "writing cached feed", err)
	}

	for _, item := range channel.Items {
		key := store.EpisodeKey(item.GUID, item.Enclosure.URL)
		if key == "" {
			continue
		}
		existing, err := r.store.GetEpisode(ctx, podcast.ID, key)
		if err != nil {
			r.recordFailure(ctx, podcast, err)
			return result, services.Wrap(services.ErrStore, "refresh", "sync", "loading episode", err)
		}
		if existing == nil {
			result.New++
		}
		if _, err := r.store.UpsertEpisode(ctx, &store.Episode{
			PodcastID:       podcast.ID,
			EpisodeKey:      key,
			GUID:            item.GUID,
			Title:           item.Title,
			EnclosureURL:    item.Enclosure.URL,
			EnclosureType:   item.Enclosure.Type,
			EnclosureLength: item.Enclosure.Length,
			PublishedAt:     item.PubDate,
		}); err != nil {
			r.recordFailure(ctx, podcast, err)
			return result, services.Wrap(services.ErrStore, "refresh", "sync", "upserting episode", err)
		}
		result.Episodes++
	}

	if err := r.store.MarkPodcastRefreshed(ctx, podcast.ID, channel.Title, channel.ArtworkURL, nil); err != nil {
		return result, services.Wrap(services.ErrStore, "refresh", "mark", "recording refresh", err)
	}

	log.Info("refresh complete",
		logging.Int("episodes", result.Episodes),
		logging.Int("new", result.New),
	)
	return result, nil
}

// RefreshAll refreshes every subscription, continuing past per-podcast
// failures.
func (r *Refresher) RefreshAll(ctx context.Context) error {
	podcasts, err := r.store.ListPodcasts(ctx)
	if err != nil {
		return services.Wrap(services.ErrStore, "refresh", "list", "listing podcasts", err)
	}
	for _, podcast := range podcasts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := r.RefreshPodcast(ctx, podcast); err != nil {
			r.logger.Warn("podcast refresh failed",
				logging.String(logging.FieldPodcast, podcast.Slug),
				logging.Error(err),
			)
		}
	}
	return nil
}

// Start schedules periodic refreshes and returns immediately. Stop with Stop.
func (r *Refresher) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("refresher: interval must be positive")
	}
	if r.cron != nil {
		return fmt.Errorf("refresher: already started")
	}
	r.cron = cron.New()
	_, err := r.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if err := r.RefreshAll(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("scheduled refresh failed", logging.Error(err))
		}
	})
	if err != nil {
		r.cron = nil
		return fmt.Errorf("refresher: schedule: %w", err)
	}
	r.cron.Start()
	r.logger.Info("refresher started", logging.Duration("interval", interval))
	return nil
}

// Stop halts the refresh schedule and waits for an in-flight run.
func (r *Refresher) Stop() {
	if r.cron == nil {
		return
	}
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()
	r.cron = nil
}

func (r *Refresher) recordFailure(ctx context.Context, podcast *store.Podcast, cause error) {
	if err := r.store.MarkPodcastRefreshed(ctx, podcast.ID, "", "", cause); err != nil {
		r.logger.Warn("record refresh failure", logging.Error(err))
	}
	if r.onError != nil {
		r.onError(podcast, cause)
	}
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
