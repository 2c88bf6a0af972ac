package config

const (
	defaultDataDir                = "~/.local/share/podsnip/data"
	defaultLogDir                 = "~/.local/share/podsnip/logs"
	defaultBind                   = "127.0.0.1:8321"
	defaultBaseURL                = "http://localhost:8321"
	defaultTranscriberModel       = "large-v3-turbo"
	defaultTranscriberVADMethod   = "silero"
	defaultTranscriberTimeout     = 7200
	defaultLLMBaseURL             = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel               = "anthropic/claude-sonnet-4.5"
	defaultLLMReferer             = "https://github.com/podsnip/podsnip"
	defaultLLMTitle               = "podsnip ad detection"
	defaultLLMTimeoutSeconds      = 120
	defaultLLMRequestsPerMin      = 20
	defaultDetectionChunkChars    = 24000
	defaultDetectionChunkOverlap  = 45.0
	defaultDetectionMergeGap      = 1.0
	defaultToneHz                 = 440
	defaultToneSeconds            = 0.8
	defaultBitrate                = "128k"
	defaultFeedRefreshMinutes     = 15
	defaultFeedFetchTimeout       = 60
	defaultFeedUserAgent          = "podsnip/0.1"
	defaultFeedFetchesPerMin      = 30
	defaultNotifyRequestTimeout   = 10
	defaultWorkflowWorkers        = 1
	defaultHeartbeatInterval      = 15
	defaultHeartbeatTimeout       = 120
	defaultDownloadTimeoutSeconds = 900
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			Bind:    defaultBind,
			BaseURL: defaultBaseURL,
		},
		Transcriber: Transcriber{
			Model:          defaultTranscriberModel,
			VADMethod:      defaultTranscriberVADMethod,
			TimeoutSeconds: defaultTranscriberTimeout,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			RequestsPerMin: defaultLLMRequestsPerMin,
		},
		Detection: Detection{
			ChunkChars:          defaultDetectionChunkChars,
			ChunkOverlapSeconds: defaultDetectionChunkOverlap,
			MergeGapSeconds:     defaultDetectionMergeGap,
		},
		Audio: Audio{
			ToneHz:      defaultToneHz,
			ToneSeconds: defaultToneSeconds,
			Bitrate:     defaultBitrate,
		},
		Feeds: Feeds{
			RefreshIntervalMinutes: defaultFeedRefreshMinutes,
			FetchTimeoutSeconds:    defaultFeedFetchTimeout,
			UserAgent:              defaultFeedUserAgent,
			FetchesPerMin:          defaultFeedFetchesPerMin,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completed:      true,
			Failed:         true,
			Errors:         true,
		},
		Workflow: Workflow{
			Workers:           defaultWorkflowWorkers,
			HeartbeatInterval: defaultHeartbeatInterval,
			HeartbeatTimeout:  defaultHeartbeatTimeout,
			DownloadTimeout:   defaultDownloadTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
