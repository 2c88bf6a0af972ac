package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateFeeds(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.Bind) == "" {
		return errors.New("paths.bind must be set")
	}
	if strings.TrimSpace(c.Paths.BaseURL) == "" {
		return errors.New("paths.base_url must be set (public URL written into rewritten feeds)")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		return errors.New("llm.base_url must be set")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return errors.New("llm.model must be set")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	if c.LLM.RequestsPerMin < 0 {
		return errors.New("llm.requests_per_minute must be >= 0")
	}
	if c.LLM.CostPerMTokIn < 0 || c.LLM.CostPerMTokOut < 0 {
		return errors.New("llm cost rates must be >= 0")
	}
	return nil
}

func (c *Config) validateDetection() error {
	if c.Detection.ChunkChars < 1000 {
		return errors.New("detection.chunk_chars must be at least 1000")
	}
	if c.Detection.ChunkOverlapSeconds < 0 {
		return errors.New("detection.chunk_overlap_seconds must be >= 0")
	}
	if c.Detection.MergeGapSeconds < 0 {
		return errors.New("detection.merge_gap_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateAudio() error {
	if c.Audio.ToneHz <= 0 {
		return errors.New("audio.tone_hz must be positive")
	}
	if c.Audio.ToneSeconds <= 0 {
		return errors.New("audio.tone_seconds must be positive")
	}
	if strings.TrimSpace(c.Audio.Bitrate) == "" {
		return errors.New("audio.bitrate must be set")
	}
	return nil
}

func (c *Config) validateFeeds() error {
	return ensurePositiveMap(map[string]int{
		"feeds.refresh_interval_minutes": c.Feeds.RefreshIntervalMinutes,
		"feeds.fetch_timeout_seconds":    c.Feeds.FetchTimeoutSeconds,
	})
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.Workers <= 0 {
		return errors.New("workflow.workers must be positive")
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if c.Workflow.DownloadTimeout <= 0 {
		return errors.New("workflow.download_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
