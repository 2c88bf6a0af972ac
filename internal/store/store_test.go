package store_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"podsnip/internal/store"
	"podsnip/internal/testsupport"
)

func TestAddAndGetPodcast(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	podcast, err := st.AddPodcast(ctx, store.PodcastParams{
		Slug:            "acme-show",
		FeedURL:         "https://feeds.example.com/acme.xml",
		Title:           "The Acme Show",
		DetectionPrompt: "flag the ads",
	})
	if err != nil {
		t.Fatalf("AddPodcast: %v", err)
	}
	if podcast.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if podcast.Title != "The Acme Show" {
		t.Fatalf("unexpected title: %q", podcast.Title)
	}
	if podcast.DetectionPrompt != "flag the ads" {
		t.Fatalf("unexpected prompt override: %q", podcast.DetectionPrompt)
	}

	fetched, err := st.GetPodcastBySlug(ctx, "acme-show")
	if err != nil {
		t.Fatalf("GetPodcastBySlug: %v", err)
	}
	if fetched == nil || fetched.ID != podcast.ID {
		t.Fatalf("unexpected fetch result: %+v", fetched)
	}

	missing, err := st.GetPodcastBySlug(ctx, "nope")
	if err != nil {
		t.Fatalf("GetPodcastBySlug missing: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for unknown slug")
	}
}

func TestDuplicateSlugRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := st.AddPodcast(ctx, store.PodcastParams{Slug: "acme-show", FeedURL: "https://a.example.com/feed"}); err != nil {
		t.Fatalf("AddPodcast: %v", err)
	}
	if _, err := st.AddPodcast(ctx, store.PodcastParams{Slug: "acme-show", FeedURL: "https://b.example.com/feed"}); err == nil {
		t.Fatal("expected unique constraint violation")
	}
}

func TestUpsertEpisodePreservesStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	podcast := testsupport.NewPodcast(t, st, "acme-show", "https://feeds.example.com/acme.xml")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "guid-1", "https://cdn.example.com/ep1.mp3")
	if episode.Status != store.StatusUnprocessed {
		t.Fatalf("expected unprocessed status, got %q", episode.Status)
	}

	claimed, err := st.ClaimEpisode(ctx, episode.ID)
	if err != nil || !claimed {
		t.Fatalf("ClaimEpisode: claimed=%v err=%v", claimed, err)
	}

	// A feed refresh re-upserts the same episode with a new title; the
	// in-flight status must survive.
	updated, err := st.UpsertEpisode(ctx, &store.Episode{
		PodcastID:    podcast.ID,
		EpisodeKey:   episode.EpisodeKey,
		GUID:         "guid-1",
		Title:        "Episode 1 (remastered)",
		EnclosureURL: "https://cdn.example.com/ep1-v2.mp3",
	})
	if err != nil {
		t.Fatalf("UpsertEpisode refresh: %v", err)
	}
	if updated.Status != store.StatusProcessing {
		t.Fatalf("refresh clobbered status: %q", updated.Status)
	}
	if updated.Title != "Episode 1 (remastered)" {
		t.Fatalf("metadata not refreshed: %q", updated.Title)
	}
	if updated.EnclosureURL != "https://cdn.example.com/ep1-v2.mp3" {
		t.Fatalf("enclosure not refreshed: %q", updated.EnclosureURL)
	}
	if updated.Attempts != 1 {
		t.Fatalf("attempts reset by refresh: %d", updated.Attempts)
	}
}

func TestClaimEpisodeIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	podcast := testsupport.NewPodcast(t, st, "acme-show", "https://feeds.example.com/acme.xml")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "guid-1", "https://cdn.example.com/ep1.mp3")

	const racers = 8
	var wg sync.WaitGroup
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := st.ClaimEpisode(ctx, episode.ID)
			if err != nil {
				t.Errorf("ClaimEpisode: %v", err)
				return
			}
			wins <- claimed
		}()
	}
	wg.Wait()
	close(wins)

	var winners int
	for claimed := range wins {
		if claimed {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}

	current, err := st.GetEpisodeByID(ctx, episode.ID)
	if err != nil {
		t.Fatalf("GetEpisodeByID: %v", err)
	}
	if current.Status != store.StatusProcessing {
		t.Fatalf("unexpected status: %q", current.Status)
	}
	if current.Attempts != 1 {
		t.Fatalf("expected single attempt, got %d", current.Attempts)
	}
}

func TestClaimRejectsCompletedEpisode(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	podcast := testsupport.NewPodcast(t, st, "acme-show", "https://feeds.example.com/acme.xml")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "guid-1", "https://cdn.example.com/ep1.mp3")

	if claimed, err := st.ClaimEpisode(ctx, episode.ID); err != nil || !claimed {
		t.Fatalf("first claim: claimed=%v err=%v", claimed, err)
	}
	err := st.CompleteEpisode(ctx, episode.ID, store.CompletionResult{
		OriginalPath:   "/data/acme-show/k/original.mp3",
		ProcessedPath:  "/data/acme-show/k/processed.mp3",
		TranscriptPath: "/data/acme-show/k/transcript.txt",
		AdRangesJSON:   `[{"start":10,"end":40}]`,
		Duration:       3600,
		EditedDuration: 3530,
		Run:            store.ProcessingRun{PromptTokens: 12000, CompletionTokens: 300, CostUSD: 0.04, SecondsRemoved: 70},
	})
	if err != nil {
		t.Fatalf("CompleteEpisode: %v", err)
	}

	if claimed, err := st.ClaimEpisode(ctx, episode.ID); err != nil || claimed {
		t.Fatalf("completed episode should not be claimable: claimed=%v err=%v", claimed, err)
	}

	current, _ := st.GetEpisodeByID(ctx, episode.ID)
	if current.Status != store.StatusCompleted {
		t.Fatalf("unexpected status: %q", current.Status)
	}
	if current.ProcessedPath == "" || current.AdRangesJSON == "" {
		t.Fatalf("artifacts not recorded: %+v", current)
	}

	runs, err := st.ListRuns(ctx, episode.ID)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected one run, got %d", len(runs))
	}
	if runs[0].Outcome != store.StatusCompleted || runs[0].SecondsRemoved != 70 {
		t.Fatalf("unexpected run: %+v", runs[0])
	}
}

func TestFailAndReclaim(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	podcast := testsupport.NewPodcast(t, st, "acme-show", "https://feeds.example.com/acme.xml")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "guid-1", "https://cdn.example.com/ep1.mp3")

	if claimed, _ := st.ClaimEpisode(ctx, episode.ID); !claimed {
		t.Fatal("claim failed")
	}
	if err := st.FailEpisode(ctx, episode.ID, "transcription error: whisperx exited 1", store.ProcessingRun{}); err != nil {
		t.Fatalf("FailEpisode: %v", err)
	}

	current, _ := st.GetEpisodeByID(ctx, episode.ID)
	if current.Status != store.StatusFailed {
		t.Fatalf("unexpected status: %q", current.Status)
	}
	if !strings.Contains(current.ErrorMessage, "transcription error") {
		t.Fatalf("error message not recorded: %q", current.ErrorMessage)
	}

	// Failed episodes stay failed; only an explicit reprocess reset makes
	// them claimable again.
	if claimed, _ := st.ClaimEpisode(ctx, episode.ID); claimed {
		t.Fatal("failed episode must not be claimable")
	}
	if reset, err := st.ResetForReprocess(ctx, episode.ID); err != nil || !reset {
		t.Fatalf("ResetForReprocess: reset=%v err=%v", reset, err)
	}
	if claimed, _ := st.ClaimEpisode(ctx, episode.ID); !claimed {
		t.Fatal("reset episode should be claimable")
	}
	current, _ = st.GetEpisodeByID(ctx, episode.ID)
	if current.Attempts != 2 {
		t.Fatalf("expected two attempts, got %d", current.Attempts)
	}
	if current.ErrorMessage != "" {
		t.Fatalf("claim should clear error message, got %q", current.ErrorMessage)
	}
}

func TestResetForReprocess(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	podcast := testsupport.NewPodcast(t, st, "acme-show", "https://feeds.example.com/acme.xml")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "guid-1", "https://cdn.example.com/ep1.mp3")

	// Not resettable while unprocessed.
	if reset, err := st.ResetForReprocess(ctx, episode.ID); err != nil || reset {
		t.Fatalf("unprocessed episode should not reset: reset=%v err=%v", reset, err)
	}

	if claimed, _ := st.ClaimEpisode(ctx, episode.ID); !claimed {
		t.Fatal("claim failed")
	}
	if err := st.CompleteEpisode(ctx, episode.ID, store.CompletionResult{ProcessedPath: "/p.mp3"}); err != nil {
		t.Fatalf("CompleteEpisode: %v", err)
	}

	reset, err := st.ResetForReprocess(ctx, episode.ID)
	if err != nil || !reset {
		t.Fatalf("ResetForReprocess: reset=%v err=%v", reset, err)
	}
	current, _ := st.GetEpisodeByID(ctx, episode.ID)
	if current.Status != store.StatusUnprocessed {
		t.Fatalf("unexpected status: %q", current.Status)
	}
}

func TestResetStuckProcessingAtStartup(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	podcast := testsupport.NewPodcast(t, st, "acme-show", "https://feeds.example.com/acme.xml")
	first := testsupport.NewEpisode(t, st, podcast.ID, "guid-1", "https://cdn.example.com/ep1.mp3")
	second := testsupport.NewEpisode(t, st, podcast.ID, "guid-2", "https://cdn.example.com/ep2.mp3")

	if claimed, _ := st.ClaimEpisode(ctx, first.ID); !claimed {
		t.Fatal("claim failed")
	}

	reset, err := st.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected one reset, got %d", reset)
	}

	current, _ := st.GetEpisodeByID(ctx, first.ID)
	if current.Status != store.StatusUnprocessed {
		t.Fatalf("unexpected status: %q", current.Status)
	}
	untouched, _ := st.GetEpisodeByID(ctx, second.ID)
	if untouched.Status != store.StatusUnprocessed {
		t.Fatalf("second episode disturbed: %q", untouched.Status)
	}
}

func TestHeartbeatAndStaleReclaim(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	podcast := testsupport.NewPodcast(t, st, "acme-show", "https://feeds.example.com/acme.xml")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "guid-1", "https://cdn.example.com/ep1.mp3")

	if claimed, _ := st.ClaimEpisode(ctx, episode.ID); !claimed {
		t.Fatal("claim failed")
	}
	if err := st.UpdateHeartbeat(ctx, episode.ID); err != nil {
		t.Fatalf("UpdateHeartbeat: %v", err)
	}

	// A cutoff in the past reclaims nothing.
	reclaimed, err := st.ReclaimStaleProcessing(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ReclaimStaleProcessing: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("fresh heartbeat should survive, reclaimed %d", reclaimed)
	}

	// A future cutoff treats the heartbeat as expired.
	reclaimed, err = st.ReclaimStaleProcessing(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ReclaimStaleProcessing: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected one reclaim, got %d", reclaimed)
	}
	current, _ := st.GetEpisodeByID(ctx, episode.ID)
	if current.Status != store.StatusUnprocessed {
		t.Fatalf("unexpected status: %q", current.Status)
	}
}

func TestRemovePodcastCascadesEpisodes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	podcast := testsupport.NewPodcast(t, st, "acme-show", "https://feeds.example.com/acme.xml")
	episode := testsupport.NewEpisode(t, st, podcast.ID, "guid-1", "https://cdn.example.com/ep1.mp3")

	removed, err := st.RemovePodcast(ctx, "acme-show")
	if err != nil || !removed {
		t.Fatalf("RemovePodcast: removed=%v err=%v", removed, err)
	}

	gone, err := st.GetEpisodeByID(ctx, episode.ID)
	if err != nil {
		t.Fatalf("GetEpisodeByID: %v", err)
	}
	if gone != nil {
		t.Fatal("episode should cascade on podcast delete")
	}
}

func TestStatsAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	podcast := testsupport.NewPodcast(t, st, "acme-show", "https://feeds.example.com/acme.xml")
	first := testsupport.NewEpisode(t, st, podcast.ID, "guid-1", "https://cdn.example.com/ep1.mp3")
	testsupport.NewEpisode(t, st, podcast.ID, "guid-2", "https://cdn.example.com/ep2.mp3")

	if claimed, _ := st.ClaimEpisode(ctx, first.ID); !claimed {
		t.Fatal("claim failed")
	}

	health, err := st.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 2 || health.Processing != 1 || health.Unprocessed != 1 {
		t.Fatalf("unexpected health: %+v", health)
	}

	dbHealth, err := st.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !dbHealth.DatabaseExists || !dbHealth.DatabaseReadable || !dbHealth.IntegrityCheck {
		t.Fatalf("unexpected database health: %+v", dbHealth)
	}
	if len(dbHealth.MissingTables) != 0 {
		t.Fatalf("missing tables: %v", dbHealth.MissingTables)
	}
	if dbHealth.TotalEpisodes != 2 {
		t.Fatalf("unexpected episode count: %d", dbHealth.TotalEpisodes)
	}
}

func TestEpisodeKeyStableAndFallback(t *testing.T) {
	withGUID := store.EpisodeKey("guid-1", "https://cdn.example.com/ep1.mp3")
	if len(withGUID) != store.EpisodeKeyLength {
		t.Fatalf("unexpected key length: %q", withGUID)
	}
	if store.EpisodeKey("guid-1", "https://other.example.com/ep1.mp3") != withGUID {
		t.Fatal("key must follow GUID when present")
	}
	withoutGUID := store.EpisodeKey("", "https://cdn.example.com/ep1.mp3")
	if withoutGUID == withGUID {
		t.Fatal("fallback key should differ from GUID key")
	}
	if store.EpisodeKey("", "") != "" {
		t.Fatal("empty identity yields empty key")
	}
}

func TestSanitizeSlug(t *testing.T) {
	cases := map[string]string{
		"The Acme Show":   "the-acme-show",
		"  my_podcast  ":  "my-podcast",
		"already-clean":   "already-clean",
		"weird!!chars##1": "weird-chars-1",
	}
	for input, want := range cases {
		if got := store.SanitizeSlug(input); got != want {
			t.Fatalf("SanitizeSlug(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestEpisodeArtifactsLayout(t *testing.T) {
	paths := store.EpisodeArtifacts("/data", "acme-show", "ab12cd34")
	if paths.Dir != "/data/acme-show/ab12cd34" {
		t.Fatalf("unexpected dir: %q", paths.Dir)
	}
	if paths.Original != "/data/acme-show/ab12cd34/original.mp3" {
		t.Fatalf("unexpected original: %q", paths.Original)
	}
	if paths.Processed != "/data/acme-show/ab12cd34/processed.mp3" {
		t.Fatalf("unexpected processed: %q", paths.Processed)
	}
}
