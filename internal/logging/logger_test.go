package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"podsnip/internal/services"
)

func newTestLogger(format string) (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelDebug)
	var handler slog.Handler
	if format == "json" {
		handler = newJSONHandler(buf, levelVar, false)
	} else {
		handler = newPrettyHandler(buf, levelVar, false)
	}
	return slog.New(handler), buf
}

func TestPrettyHandlerPrefixesComponentAndFormatsAttrs(t *testing.T) {
	logger, buf := newTestLogger("console")
	logger = NewComponentLogger(logger, "feed-refresh")

	logger.Info("refresh complete",
		String(FieldPodcast, "acme-show"),
		Int("episodes", 3),
		Error(errors.New("boom boom")),
	)

	line := buf.String()
	if !strings.Contains(line, " INFO feed-refresh: refresh complete") {
		t.Fatalf("missing component prefix: %q", line)
	}
	if !strings.Contains(line, "podcast=acme-show") {
		t.Fatalf("missing podcast attr: %q", line)
	}
	if !strings.Contains(line, "episodes=3") {
		t.Fatalf("missing int attr: %q", line)
	}
	if !strings.Contains(line, `error="boom boom"`) {
		t.Fatalf("expected quoted error value: %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should be folded into prefix, not emitted as attr: %q", line)
	}
}

func TestPrettyHandlerRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelWarn)
	logger := slog.New(newPrettyHandler(buf, levelVar, false))

	logger.Info("should be dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Fatalf("info record leaked past warn level: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn record missing: %q", out)
	}
}

func TestJSONHandlerRenamesStandardKeys(t *testing.T) {
	logger, buf := newTestLogger("json")
	logger.Info("hello", String("k", "v"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal json record: %v", err)
	}
	if record["msg"] != "hello" {
		t.Fatalf("expected msg key, got %v", record)
	}
	if record["level"] != "info" {
		t.Fatalf("expected lowercase level, got %v", record["level"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
	if record["k"] != "v" {
		t.Fatalf("expected custom attr, got %v", record)
	}
}

func TestWithContextAttachesRequestFields(t *testing.T) {
	logger, buf := newTestLogger("console")

	ctx := services.WithPodcast(context.Background(), "acme-show")
	ctx = services.WithEpisodeKey(ctx, "ab12cd34")
	ctx = services.WithStage(ctx, "transcribe")
	ctx = services.WithAttempt(ctx, 2)

	WithContext(ctx, logger).Info("stage started")

	line := buf.String()
	for _, want := range []string{
		"podcast=acme-show",
		"episode_key=ab12cd34",
		"stage=transcribe",
		"attempt=2",
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
}

func TestWithContextNilLoggerIsSafe(t *testing.T) {
	logger := WithContext(context.Background(), nil)
	logger.Info("ignored")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"unknown": slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}
