package logging

import (
	"context"
	"log/slog"

	"podsnip/internal/services"
)

// Canonical field names shared across the daemon. Keeping them here stops
// call sites from drifting into near-duplicates like "episode" vs
// "episode_key".
const (
	FieldComponent   = "component"
	FieldPodcast     = "podcast"
	FieldEpisodeKey  = "episode_key"
	FieldStage       = "stage"
	FieldAttempt     = "attempt"
	FieldRequestID   = "request_id"
	FieldDuration    = "duration"
	FieldEpisodeGUID = "episode_guid"
)

// ContextFields extracts the request-scoped identifiers stored by the
// services package and returns them as attrs ready for logging.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs := make([]slog.Attr, 0, 5)
	if podcast, ok := services.PodcastFrom(ctx); ok {
		attrs = append(attrs, String(FieldPodcast, podcast))
	}
	if key, ok := services.EpisodeKeyFrom(ctx); ok {
		attrs = append(attrs, String(FieldEpisodeKey, key))
	}
	if stage, ok := services.StageFrom(ctx); ok {
		attrs = append(attrs, String(FieldStage, stage))
	}
	if attempt, ok := services.AttemptFrom(ctx); ok {
		attrs = append(attrs, Int(FieldAttempt, attempt))
	}
	if requestID, ok := services.RequestIDFrom(ctx); ok {
		attrs = append(attrs, String(FieldRequestID, requestID))
	}
	return attrs
}

// WithContext returns the logger enriched with whatever identifiers the
// context carries. A nil logger yields a nop logger so call sites can chain
// without guards.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
