package testsupport

import (
	"context"
	"testing"

	"podsnip/internal/config"
	"podsnip/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewPodcast creates a podcast subscription for tests using the provided store.
func NewPodcast(t testing.TB, st *store.Store, slug, feedURL string) *store.Podcast {
	t.Helper()

	podcast, err := st.AddPodcast(context.Background(), store.PodcastParams{Slug: slug, FeedURL: feedURL})
	if err != nil {
		t.Fatalf("store.AddPodcast: %v", err)
	}
	return podcast
}

// NewEpisode upserts an episode for tests using the provided store.
func NewEpisode(t testing.TB, st *store.Store, podcastID int64, guid, enclosureURL string) *store.Episode {
	t.Helper()

	episode, err := st.UpsertEpisode(context.Background(), &store.Episode{
		PodcastID:    podcastID,
		EpisodeKey:   store.EpisodeKey(guid, enclosureURL),
		GUID:         guid,
		EnclosureURL: enclosureURL,
	})
	if err != nil {
		t.Fatalf("store.UpsertEpisode: %v", err)
	}
	return episode
}
