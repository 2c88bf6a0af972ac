package notifications

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"podsnip/internal/testsupport"
)

func TestNewServiceReturnsNoopWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""

	svc := NewService(cfg)
	if _, ok := svc.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", svc)
	}
	if err := svc.NotifyEpisodeCompleted(context.Background(), "Show", "Ep", 120); err != nil {
		t.Fatalf("noop should never fail: %v", err)
	}
}

func TestNotifyEpisodeCompletedSendsHeadersAndBody(t *testing.T) {
	var gotTitle, gotTags, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotTags = r.Header.Get("Tags")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Completed = true

	svc := NewService(cfg)
	if err := svc.NotifyEpisodeCompleted(context.Background(), "The Show", "Episode 12", 185); err != nil {
		t.Fatalf("NotifyEpisodeCompleted: %v", err)
	}
	if gotTitle != "podsnip - The Show" {
		t.Fatalf("unexpected title %q", gotTitle)
	}
	if !strings.Contains(gotTags, "completed") {
		t.Fatalf("unexpected tags %q", gotTags)
	}
	if !strings.Contains(gotBody, "Episode ready: Episode 12") || !strings.Contains(gotBody, "Ads removed: 3m5s") {
		t.Fatalf("unexpected body %q", gotBody)
	}
}

func TestNotifyEpisodeFailedRespectsToggle(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Failed = false

	svc := NewService(cfg)
	if err := svc.NotifyEpisodeFailed(context.Background(), "Show", "Ep", errors.New("boom")); err != nil {
		t.Fatalf("NotifyEpisodeFailed: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no request with toggle off, got %d", calls)
	}
}

func TestNotifyRefreshErrorSurfacesHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Errors = true

	svc := NewService(cfg)
	err := svc.NotifyRefreshError(context.Background(), "myshow", errors.New("fetch failed"))
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}
