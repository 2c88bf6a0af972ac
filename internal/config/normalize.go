package config

import (
	"fmt"
	"os"
	"strings"
)

// normalize expands paths, applies environment fallbacks, and fills
// defaulted fields left empty by a partial config file.
func (c *Config) normalize() error {
	if c.LLM.APIKey == "" {
		if key, ok := os.LookupEnv("PODSNIP_LLM_API_KEY"); ok {
			c.LLM.APIKey = key
		} else if key, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = key
		}
	}
	if c.Transcriber.HFToken == "" {
		if token, ok := os.LookupEnv("HF_TOKEN"); ok {
			c.Transcriber.HFToken = token
		}
	}

	pathFields := []struct {
		name  string
		value *string
	}{
		{"paths.data_dir", &c.Paths.DataDir},
		{"paths.log_dir", &c.Paths.LogDir},
	}
	for _, field := range pathFields {
		expanded, err := expandPath(*field.value)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}

	c.Paths.BaseURL = strings.TrimRight(strings.TrimSpace(c.Paths.BaseURL), "/")
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	if c.Detection.ChunkChars <= 0 {
		c.Detection.ChunkChars = defaultDetectionChunkChars
	}
	if c.Detection.MergeGapSeconds <= 0 {
		c.Detection.MergeGapSeconds = defaultDetectionMergeGap
	}
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = defaultWorkflowWorkers
	}
	return nil
}
