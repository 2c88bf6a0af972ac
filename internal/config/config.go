package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	Bind    string `toml:"bind"`
	// BaseURL is the public URL prefix written into rewritten feeds.
	BaseURL string `toml:"base_url"`
}

// Transcriber contains WhisperX speech-to-text settings.
type Transcriber struct {
	Model       string `toml:"model"`
	CUDAEnabled bool   `toml:"cuda_enabled"`
	VADMethod   string `toml:"vad_method"`
	HFToken     string `toml:"hf_token"`
	// TimeoutSeconds bounds one transcription run; multi-hour episodes need headroom.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// LLM contains connection settings for the ad classification model.
type LLM struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	Referer        string  `toml:"referer"`
	Title          string  `toml:"title"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	RequestsPerMin int     `toml:"requests_per_minute"`
	CostPerMTokIn  float64 `toml:"cost_per_mtok_input"`
	CostPerMTokOut float64 `toml:"cost_per_mtok_output"`
}

// Detection contains ad classification tuning.
type Detection struct {
	// Prompt overrides the built-in detection instruction when set.
	Prompt string `toml:"prompt"`
	// ChunkChars caps the transcript characters sent in one model call.
	ChunkChars int `toml:"chunk_chars"`
	// ChunkOverlapSeconds of transcript repeated across chunk boundaries.
	ChunkOverlapSeconds float64 `toml:"chunk_overlap_seconds"`
	// MergeGapSeconds below which adjacent ad ranges coalesce into one.
	MergeGapSeconds float64 `toml:"merge_gap_seconds"`
}

// Audio contains audio editing settings.
type Audio struct {
	ToneHz      int     `toml:"tone_hz"`
	ToneSeconds float64 `toml:"tone_seconds"`
	Bitrate     string  `toml:"bitrate"`
}

// Feeds contains source feed fetch and refresh settings.
type Feeds struct {
	RefreshIntervalMinutes int    `toml:"refresh_interval_minutes"`
	FetchTimeoutSeconds    int    `toml:"fetch_timeout_seconds"`
	UserAgent              string `toml:"user_agent"`
	FetchesPerMin          int    `toml:"fetches_per_minute"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Failed         bool   `toml:"failed"`
	Errors         bool   `toml:"errors"`
}

// Workflow contains coordinator timing and capacity settings.
type Workflow struct {
	// Workers bounds concurrent processing attempts across episodes.
	Workers int `toml:"workers"`
	// BlockUntilProcessed makes resolve wait for the in-flight attempt
	// instead of falling back to the original audio.
	BlockUntilProcessed bool `toml:"block_until_processed"`
	HeartbeatInterval   int  `toml:"heartbeat_interval"`
	HeartbeatTimeout    int  `toml:"heartbeat_timeout"`
	DownloadTimeout     int  `toml:"download_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for podsnip.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories, bind address, public base URL
//   - Transcriber: WhisperX model and device settings
//   - LLM: ad classification model connection settings
//   - Detection: transcript chunking and range merge thresholds
//   - Audio: tone insert and output encoding settings
//   - Feeds: source RSS fetch cadence and HTTP settings
//   - Notifications: ntfy push notification settings
//   - Workflow: worker capacity, fallback policy, heartbeats
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcriber   Transcriber   `toml:"transcriber"`
	LLM           LLM           `toml:"llm"`
	Detection     Detection     `toml:"detection"`
	Audio         Audio         `toml:"audio"`
	Feeds         Feeds         `toml:"feeds"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/podsnip/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("podsnip.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for audio editing.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media validation.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the resolved LLM connection settings.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the LLM connection settings, optionally overridden per podcast.
func (c *Config) GetLLM(modelOverride string) LLMConfig {
	model := strings.TrimSpace(modelOverride)
	if model == "" {
		model = strings.TrimSpace(c.LLM.Model)
	}
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          model,
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}
