package services

import "context"

type contextKey string

const (
	podcastKey    contextKey = "podcast"
	episodeKeyKey contextKey = "episode_key"
	stageKey      contextKey = "stage"
	attemptKey    contextKey = "attempt"
	requestIDKey  contextKey = "request_id"
)

// WithPodcast records the podcast slug the current work belongs to.
func WithPodcast(ctx context.Context, slug string) context.Context {
	return context.WithValue(ctx, podcastKey, slug)
}

// PodcastFrom returns the podcast slug stored on the context.
func PodcastFrom(ctx context.Context) (string, bool) {
	return stringFrom(ctx, podcastKey)
}

// WithEpisodeKey records the episode key the current work targets.
func WithEpisodeKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, episodeKeyKey, key)
}

// EpisodeKeyFrom returns the episode key stored on the context.
func EpisodeKeyFrom(ctx context.Context) (string, bool) {
	return stringFrom(ctx, episodeKeyKey)
}

// WithStage records the pipeline stage currently executing.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// StageFrom returns the pipeline stage stored on the context.
func StageFrom(ctx context.Context) (string, bool) {
	return stringFrom(ctx, stageKey)
}

// WithAttempt records the processing attempt number.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey, attempt)
}

// AttemptFrom returns the attempt number stored on the context.
func AttemptFrom(ctx context.Context) (int, bool) {
	if ctx == nil {
		return 0, false
	}
	value, ok := ctx.Value(attemptKey).(int)
	return value, ok
}

// WithRequestID tags the context with a correlation identifier for the
// HTTP request that triggered the work.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFrom returns the correlation identifier stored on the context.
func RequestIDFrom(ctx context.Context) (string, bool) {
	return stringFrom(ctx, requestIDKey)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(key).(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
