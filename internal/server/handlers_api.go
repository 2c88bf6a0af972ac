package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gorilla/mux"

	"podsnip/internal/logging"
	"podsnip/internal/services"
	"podsnip/internal/stage"
	"podsnip/internal/store"
)

type addFeedRequest struct {
	URL    string `json:"url"`
	Slug   string `json:"slug"`
	Title  string `json:"title"`
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

func (s *Server) handleAddFeed(w http.ResponseWriter, r *http.Request) {
	var req addFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, services.Wrap(services.ErrConfiguration, "server", "add-feed", "decoding request body", err))
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		s.writeError(w, r, services.Wrap(services.ErrConfiguration, "server", "add-feed", "feed url is required", nil))
		return
	}
	if _, err := url.ParseRequestURI(req.URL); err != nil {
		s.writeError(w, r, services.Wrap(services.ErrConfiguration, "server", "add-feed", "feed url is invalid", err))
		return
	}
	slug := store.SanitizeSlug(req.Slug)
	if slug == "" {
		slug = store.SanitizeSlug(req.Title)
	}
	if slug == "" {
		s.writeError(w, r, services.Wrap(services.ErrConfiguration, "server", "add-feed", "slug is required", nil))
		return
	}

	podcast, err := s.store.AddPodcast(r.Context(), store.PodcastParams{
		Slug:            slug,
		FeedURL:         req.URL,
		Title:           req.Title,
		Model:           req.Model,
		DetectionPrompt: req.Prompt,
	})
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrValidation, "server", "add-feed", "registering podcast", err))
		return
	}

	result, err := s.refresher.RefreshPodcast(r.Context(), podcast)
	if err != nil {
		// Registration stands; the next scheduled refresh retries.
		logging.WithContext(r.Context(), s.logger).Warn("initial refresh failed",
			logging.String("podcast", slug), logging.Error(err))
		s.writeJSON(w, http.StatusCreated, map[string]any{
			"slug":          podcast.Slug,
			"feed_url":      podcast.FeedURL,
			"refresh_error": err.Error(),
		})
		return
	}

	refreshed, err := s.store.GetPodcastBySlug(r.Context(), slug)
	if err != nil || refreshed == nil {
		refreshed = podcast
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"slug":     refreshed.Slug,
		"title":    refreshed.Title,
		"feed_url": refreshed.FeedURL,
		"episodes": result.Episodes,
	})
}

func podcastView(podcast store.Podcast) map[string]any {
	view := map[string]any{
		"slug":     podcast.Slug,
		"title":    podcast.Title,
		"feed_url": podcast.FeedURL,
	}
	if podcast.ArtworkURL != "" {
		view["artwork_url"] = podcast.ArtworkURL
	}
	if podcast.Model != "" {
		view["model"] = podcast.Model
	}
	if podcast.LastRefreshedAt != nil {
		view["last_refreshed_at"] = podcast.LastRefreshedAt
	}
	if podcast.LastRefreshError != "" {
		view["last_refresh_error"] = podcast.LastRefreshError
	}
	return view
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	podcasts, err := s.store.ListPodcasts(r.Context())
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrStore, "server", "list-feeds", "listing podcasts", err))
		return
	}
	views := make([]map[string]any, 0, len(podcasts))
	for _, podcast := range podcasts {
		views = append(views, podcastView(*podcast))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"feeds": views})
}

func (s *Server) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]
	podcast, err := s.store.GetPodcastBySlug(r.Context(), slug)
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrStore, "server", "get-feed", "loading podcast", err))
		return
	}
	if podcast == nil {
		s.writeError(w, r, services.Wrap(services.ErrNotFound, "server", "get-feed", "podcast is not registered", nil))
		return
	}
	episodes, err := s.store.ListEpisodes(r.Context(), podcast.ID)
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrStore, "server", "get-feed", "listing episodes", err))
		return
	}
	counts := map[string]int{}
	for _, episode := range episodes {
		counts[string(episode.Status)]++
	}
	view := podcastView(*podcast)
	view["episodes"] = len(episodes)
	view["status_counts"] = counts
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRemoveFeed(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]
	removed, err := s.store.RemovePodcast(r.Context(), slug)
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrStore, "server", "remove-feed", "removing podcast", err))
		return
	}
	if !removed {
		s.writeError(w, r, services.Wrap(services.ErrNotFound, "server", "remove-feed", "podcast is not registered", nil))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"removed": slug})
}

func (s *Server) handleRefreshFeed(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]
	podcast, err := s.store.GetPodcastBySlug(r.Context(), slug)
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrStore, "server", "refresh", "loading podcast", err))
		return
	}
	if podcast == nil {
		s.writeError(w, r, services.Wrap(services.ErrNotFound, "server", "refresh", "podcast is not registered", nil))
		return
	}
	result, err := s.refresher.RefreshPodcast(r.Context(), podcast)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"slug":         slug,
		"episodes":     result.Episodes,
		"new_episodes": result.New,
	})
}

func (s *Server) handleListEpisodes(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]
	podcast, err := s.store.GetPodcastBySlug(r.Context(), slug)
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrStore, "server", "episodes", "loading podcast", err))
		return
	}
	if podcast == nil {
		s.writeError(w, r, services.Wrap(services.ErrNotFound, "server", "episodes", "podcast is not registered", nil))
		return
	}
	episodes, err := s.store.ListEpisodes(r.Context(), podcast.ID)
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrStore, "server", "episodes", "listing episodes", err))
		return
	}
	views := make([]map[string]any, 0, len(episodes))
	for _, episode := range episodes {
		views = append(views, episodeView(episode))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"slug": slug, "episodes": views})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	podcast, err := s.store.GetPodcastBySlug(r.Context(), vars["slug"])
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrStore, "server", "transcript", "loading podcast", err))
		return
	}
	if podcast == nil {
		s.writeError(w, r, services.Wrap(services.ErrNotFound, "server", "transcript", "podcast is not registered", nil))
		return
	}
	episode, err := s.store.GetEpisode(r.Context(), podcast.ID, vars["key"])
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrStore, "server", "transcript", "loading episode", err))
		return
	}
	if episode == nil {
		s.writeError(w, r, services.Wrap(services.ErrNotFound, "server", "transcript", "episode is not tracked", nil))
		return
	}
	if episode.TranscriptPath == "" {
		s.writeError(w, r, services.Wrap(services.ErrNotFound, "server", "transcript", "episode has no transcript yet", nil))
		return
	}
	if _, err := os.Stat(episode.TranscriptPath); err != nil {
		s.writeError(w, r, services.Wrap(services.ErrNotFound, "server", "transcript", "transcript artifact is missing", err))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	http.ServeFile(w, r, episode.TranscriptPath)
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.coordinator.Reprocess(r.Context(), vars["slug"], vars["key"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"slug":        vars["slug"],
		"episode_key": vars["key"],
		"status":      "reprocessing",
	})
}

func (s *Server) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.notifier.TestNotification(r.Context()); err != nil {
		s.writeError(w, r, services.Wrap(services.ErrConfiguration, "server", "test notification", "sending test notification", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbHealth, dbErr := s.store.CheckHealth(r.Context())
	dbHealthy := dbErr == nil && dbHealth.DatabaseReadable && dbHealth.IntegrityCheck && len(dbHealth.MissingTables) == 0
	dbDetail := dbHealth.Error
	if dbErr != nil && dbDetail == "" {
		dbDetail = dbErr.Error()
	}

	episodes, err := s.store.Health(r.Context())
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrStore, "server", "health", "collecting episode stats", err))
		return
	}

	stages := stage.CheckAll(r.Context(), s.checkers...)
	healthy := dbHealthy
	stageViews := make([]map[string]any, 0, len(stages))
	for _, health := range stages {
		if !health.Ready {
			healthy = false
		}
		view := map[string]any{"name": health.Name, "ready": health.Ready}
		if health.Detail != "" {
			view["detail"] = health.Detail
		}
		stageViews = append(stageViews, view)
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]any{
		"healthy": healthy,
		"database": map[string]any{
			"healthy":  dbHealthy,
			"detail":   dbDetail,
			"episodes": dbHealth.TotalEpisodes,
		},
		"episodes": map[string]any{
			"total":       episodes.Total,
			"unprocessed": episodes.Unprocessed,
			"processing":  episodes.Processing,
			"completed":   episodes.Completed,
			"failed":      episodes.Failed,
		},
		"stages": stageViews,
	})
}
