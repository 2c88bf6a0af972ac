package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"podsnip/internal/config"
)

const userAgent = "podsnip/0.1"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyEpisodeCompleted(ctx context.Context, podcastName, episodeTitle string, removedSeconds float64) error
	NotifyEpisodeFailed(ctx context.Context, podcastName, episodeTitle string, err error) error
	NotifyRefreshError(ctx context.Context, podcastSlug string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.Completed,
		failed:    cfg.Notifications.Failed,
		errors:    cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	failed    bool
	errors    bool
}

func (n *ntfyService) NotifyEpisodeCompleted(ctx context.Context, podcastName, episodeTitle string, removedSeconds float64) error {
	if !n.completed {
		return nil
	}
	podcastName = strings.TrimSpace(podcastName)
	episodeTitle = strings.TrimSpace(episodeTitle)
	message := fmt.Sprintf("Episode ready: %s", episodeTitle)
	if removedSeconds > 0 {
		message = fmt.Sprintf("%s\nAds removed: %s", message, formatSeconds(removedSeconds))
	} else {
		message += "\nNo ads detected"
	}
	data := payload{
		title:   fmt.Sprintf("podsnip - %s", podcastName),
		message: message,
		tags:    []string{"podsnip", "episode", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyEpisodeFailed(ctx context.Context, podcastName, episodeTitle string, err error) error {
	if !n.failed {
		return nil
	}
	podcastName = strings.TrimSpace(podcastName)
	episodeTitle = strings.TrimSpace(episodeTitle)
	detail := "unknown"
	if err != nil {
		detail = strings.TrimSpace(err.Error())
	}
	data := payload{
		title:    fmt.Sprintf("podsnip - %s", podcastName),
		message:  fmt.Sprintf("Processing failed: %s\n%s", episodeTitle, detail),
		tags:     []string{"podsnip", "episode", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRefreshError(ctx context.Context, podcastSlug string, err error) error {
	if !n.errors {
		return nil
	}
	detail := "unknown"
	if err != nil {
		detail = strings.TrimSpace(err.Error())
	}
	data := payload{
		title:    "podsnip - Feed Refresh Error",
		message:  fmt.Sprintf("Refresh failed for %s: %s", strings.TrimSpace(podcastSlug), detail),
		tags:     []string{"podsnip", "feed", "error"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "podsnip - Test",
		message:  "Notification system test",
		tags:     []string{"podsnip", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func formatSeconds(seconds float64) string {
	duration := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	return duration.String()
}

type noopService struct{}

func (noopService) NotifyEpisodeCompleted(context.Context, string, string, float64) error { return nil }
func (noopService) NotifyEpisodeFailed(context.Context, string, string, error) error      { return nil }
func (noopService) NotifyRefreshError(context.Context, string, error) error               { return nil }
func (noopService) TestNotification(context.Context) error                                { return nil }
