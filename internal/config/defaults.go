package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Telegram: TelegramConfig{
			Token: "${TELEGRAM_TOKEN}",
		},
		Inference: InferenceConfig{
			APIBase:            "https://api-inference.example.com",
			APIKey:             "${INFERENCE_API_KEY}",
			TranscribeModel:    "whisper-large-v3",
			SummarizeModel:     "bart-large-cnn",
			ClassifyModel:      "bart-large-mnli",
			TimeoutSeconds:     30,
			RateLimitPerMinute: 60,
		},
		Notion: NotionConfig{
			Token:          "${NOTION_TOKEN}",
			DatabaseID:     "${NOTION_DATABASE_ID}",
			TimeoutSeconds: 30,
		},
		Pipeline: PipelineConfig{
			// Voice notes are acknowledged without transcription unless
			// explicitly enabled.
			EnableVoiceTranscription: false,
		},
		Journal: JournalConfig{
			Enabled:       true,
			DBPath:        "~/.notebot/journal.db",
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Port: 8080,
			Path: "/",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}
