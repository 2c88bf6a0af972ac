package server

import (
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/mux"

	"podsnip/internal/feed"
	"podsnip/internal/logging"
	"podsnip/internal/pipeline"
	"podsnip/internal/services"
	"podsnip/internal/store"
)

// handleFeed serves the rewritten RSS document. Enclosure URLs of known
// episodes are pointed at this server; everything else in the cached feed
// passes through byte for byte.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]
	podcast, err := s.store.GetPodcastBySlug(r.Context(), slug)
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrStore, "server", "feed", "loading podcast", err))
		return
	}
	if podcast == nil {
		s.writeError(w, r, services.Wrap(services.ErrNotFound, "server", "feed", "podcast is not registered", nil))
		return
	}

	cachePath := feed.CachePath(s.cfg.Paths.DataDir, podcast.Slug)
	raw, err := os.ReadFile(cachePath)
	if err != nil {
		// First request can arrive before the scheduled refresh.
		if _, refreshErr := s.refresher.RefreshPodcast(r.Context(), podcast); refreshErr != nil {
			s.writeError(w, r, refreshErr)
			return
		}
		raw, err = os.ReadFile(cachePath)
		if err != nil {
			s.writeError(w, r, services.Wrap(services.ErrStore, "server", "feed", "reading cached feed", err))
			return
		}
	}

	episodes, err := s.store.ListEpisodes(r.Context(), podcast.ID)
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrStore, "server", "feed", "listing episodes", err))
		return
	}
	keyByEnclosure := make(map[string]string, len(episodes))
	for _, episode := range episodes {
		keyByEnclosure[episode.EnclosureURL] = episode.EpisodeKey
	}

	rewritten := feed.Rewrite(raw, func(enclosureURL string) string {
		key, ok := keyByEnclosure[enclosureURL]
		if !ok {
			return ""
		}
		return s.episodeURL(podcast.Slug, key)
	})

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	if _, err := w.Write(rewritten); err != nil {
		logging.WithContext(r.Context(), s.logger).Warn("writing feed response", logging.Error(err))
	}
}

// handleEpisodeAudio serves the processed rendition when it exists, and
// otherwise redirects to the original enclosure while processing starts.
func (s *Server) handleEpisodeAudio(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	resolution, err := s.coordinator.Resolve(r.Context(), vars["slug"], vars["key"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	switch resolution.Outcome {
	case pipeline.OutcomeProcessed:
		w.Header().Set("Content-Type", "audio/mpeg")
		http.ServeFile(w, r, resolution.FilePath)
	default:
		if resolution.RedirectURL == "" {
			s.writeError(w, r, services.Wrap(services.ErrNotFound, "server", "episode", "no original enclosure available", nil))
			return
		}
		http.Redirect(w, r, resolution.RedirectURL, http.StatusFound)
	}
}

func (s *Server) episodeURL(slug, key string) string {
	base := strings.TrimRight(s.cfg.Paths.BaseURL, "/")
	return base + "/episodes/" + slug + "/" + key + ".mp3"
}

func episodeView(episode *store.Episode) map[string]any {
	view := map[string]any{
		"episode_key":   episode.EpisodeKey,
		"title":         episode.Title,
		"status":        string(episode.Status),
		"enclosure_url": episode.EnclosureURL,
		"published_at":  episode.PublishedAt,
		"attempts":      episode.Attempts,
	}
	if episode.ErrorMessage != "" {
		view["error"] = episode.ErrorMessage
	}
	if episode.Status == store.StatusCompleted {
		view["duration_seconds"] = episode.DurationSeconds
		view["edited_seconds"] = episode.EditedSeconds
	}
	return view
}
