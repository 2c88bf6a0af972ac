package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"podsnip/internal/config"
	"podsnip/internal/feed"
	"podsnip/internal/logging"
	"podsnip/internal/notifications"
	"podsnip/internal/pipeline"
	"podsnip/internal/stage"
	"podsnip/internal/store"
)

// Server exposes rewritten feeds, episode audio, and the management API.
type Server struct {
	cfg         *config.Config
	store       *store.Store
	coordinator *pipeline.Coordinator
	refresher   *feed.Refresher
	notifier    notifications.Service
	checkers    []stage.Checker
	logger      *slog.Logger

	router *mux.Router
	http   *http.Server
}

// New wires the HTTP surface. checkers feed the health endpoint.
func New(cfg *config.Config, st *store.Store, coordinator *pipeline.Coordinator, refresher *feed.Refresher, notifier notifications.Service, logger *slog.Logger, checkers ...stage.Checker) *Server {
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	s := &Server{
		cfg:         cfg,
		store:       st,
		coordinator: coordinator,
		refresher:   refresher,
		notifier:    notifier,
		checkers:    checkers,
		logger:      logging.NewComponentLogger(logger, "server"),
	}
	s.router = s.buildRouter()
	s.http = &http.Server{
		Addr:              cfg.Paths.Bind,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) buildRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.requestIDMiddleware, s.loggingMiddleware)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/feeds", s.handleListFeeds).Methods(http.MethodGet)
	api.HandleFunc("/feeds", s.handleAddFeed).Methods(http.MethodPost)
	api.HandleFunc("/feeds/{slug}", s.handleGetFeed).Methods(http.MethodGet)
	api.HandleFunc("/feeds/{slug}", s.handleRemoveFeed).Methods(http.MethodDelete)
	api.HandleFunc("/feeds/{slug}/refresh", s.handleRefreshFeed).Methods(http.MethodPost)
	api.HandleFunc("/feeds/{slug}/episodes", s.handleListEpisodes).Methods(http.MethodGet)
	api.HandleFunc("/feeds/{slug}/episodes/{key}/reprocess", s.handleReprocess).Methods(http.MethodPost)
	api.HandleFunc("/feeds/{slug}/episodes/{key}/transcript", s.handleTranscript).Methods(http.MethodGet)
	api.HandleFunc("/notifications/test", s.handleTestNotification).Methods(http.MethodPost)

	router.HandleFunc("/episodes/{slug}/{key}.mp3", s.handleEpisodeAudio).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/{slug}", s.handleFeed).Methods(http.MethodGet)
	return router
}

// Router exposes the handler tree, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe blocks serving HTTP until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", logging.String("bind", s.cfg.Paths.Bind))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
