package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"podsnip/internal/config"
)

func TestLoadDefaultConfigUsesEnvAPIKeyAndExpandsPaths(t *testing.T) {
	t.Setenv("PODSNIP_LLM_API_KEY", "test-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "podsnip", "data")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.Bind != "127.0.0.1:8321" {
		t.Fatalf("unexpected bind: %q", cfg.Paths.Bind)
	}
	if cfg.LLM.APIKey != "test-key" {
		t.Fatalf("expected LLM key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.BaseURL != config.Default().LLM.BaseURL {
		t.Fatalf("unexpected LLM base url: %q", cfg.LLM.BaseURL)
	}
	if cfg.Transcriber.CUDAEnabled {
		t.Fatal("expected CUDA disabled by default")
	}
	if cfg.Transcriber.VADMethod != "silero" {
		t.Fatalf("expected VAD default to silero, got %q", cfg.Transcriber.VADMethod)
	}
	if cfg.Workflow.Workers != 1 {
		t.Fatalf("expected single worker by default, got %d", cfg.Workflow.Workers)
	}
	if cfg.Workflow.BlockUntilProcessed {
		t.Fatal("expected immediate fallback policy by default")
	}
	if cfg.Detection.MergeGapSeconds != 1.0 {
		t.Fatalf("unexpected merge gap default: %v", cfg.Detection.MergeGapSeconds)
	}
}

func TestLoadExplicitFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := strings.Join([]string{
		`[paths]`,
		`data_dir = "` + filepath.Join(dir, "data") + `"`,
		`log_dir = "` + filepath.Join(dir, "logs") + `"`,
		`base_url = "https://pods.example.net/"`,
		``,
		`[workflow]`,
		`workers = 3`,
		`block_until_processed = true`,
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected explicit config to resolve, got %q exists=%v", resolved, exists)
	}
	if cfg.Workflow.Workers != 3 {
		t.Fatalf("expected workers override, got %d", cfg.Workflow.Workers)
	}
	if !cfg.Workflow.BlockUntilProcessed {
		t.Fatal("expected blocking policy override")
	}
	if cfg.Paths.BaseURL != "https://pods.example.net" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Paths.BaseURL)
	}
	// Unset sections keep defaults.
	if cfg.Audio.ToneHz != config.Default().Audio.ToneHz {
		t.Fatalf("unexpected tone default: %d", cfg.Audio.ToneHz)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"empty model", func(c *config.Config) { c.LLM.Model = "" }, "llm.model"},
		{"tiny chunks", func(c *config.Config) { c.Detection.ChunkChars = 10 }, "detection.chunk_chars"},
		{"zero tone", func(c *config.Config) { c.Audio.ToneSeconds = 0 }, "audio.tone_seconds"},
		{"heartbeat order", func(c *config.Config) {
			c.Workflow.HeartbeatInterval = 60
			c.Workflow.HeartbeatTimeout = 30
		}, "heartbeat_timeout"},
		{"bad format", func(c *config.Config) { c.Logging.Format = "yaml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleWritesParsableConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Feeds.RefreshIntervalMinutes != 15 {
		t.Fatalf("unexpected refresh interval: %d", cfg.Feeds.RefreshIntervalMinutes)
	}
}
