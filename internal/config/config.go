package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Config is the root configuration for notebot.
type Config struct {
	General   GeneralConfig   `json:"general"`
	Telegram  TelegramConfig  `json:"telegram"`
	Inference InferenceConfig `json:"inference"`
	Notion    NotionConfig    `json:"notion"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Journal   JournalConfig   `json:"journal"`
	Server    ServerConfig    `json:"server"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"` // debug | info | warn | error
	LogFile  string `json:"logFile,omitempty"`
}

type TelegramConfig struct {
	Token       string         `json:"token"`
	AllowFrom   FlexStringList `json:"allowFrom"`             // user IDs; empty = allow all
	SecretToken string         `json:"secretToken,omitempty"` // X-Telegram-Bot-Api-Secret-Token check
}

// InferenceConfig configures the remote model-serving endpoint used for
// transcription, summarization, and zero-shot classification.
type InferenceConfig struct {
	APIBase            string `json:"apiBase"`
	APIKey             string `json:"apiKey,omitempty"`
	TranscribeModel    string `json:"transcribeModel"`
	SummarizeModel     string `json:"summarizeModel"`
	ClassifyModel      string `json:"classifyModel"`
	TimeoutSeconds     int    `json:"timeoutSeconds"`
	RateLimitPerMinute int    `json:"rateLimitPerMinute,omitempty"` // 0 = unlimited
}

type NotionConfig struct {
	Token            string `json:"token"`
	DatabaseID       string `json:"databaseId"`
	TitleProperty    string `json:"titleProperty,omitempty"`    // default "Name"
	CategoryProperty string `json:"categoryProperty,omitempty"` // default "Category"
	TimeoutSeconds   int    `json:"timeoutSeconds,omitempty"`
}

// PipelineConfig holds the enrichment policy knobs. The voice flag is
// explicit: true transcribes voice notes through the full pipeline,
// false acknowledges them without persisting.
type PipelineConfig struct {
	EnableVoiceTranscription bool   `json:"enableVoiceTranscription"`
	LabelsFile               string `json:"labelsFile,omitempty"` // optional YAML taxonomy override
	WatchLabels              bool   `json:"watchLabels,omitempty"`
}

type JournalConfig struct {
	Enabled       bool   `json:"enabled"`
	DBPath        string `json:"dbPath"`
	RetentionDays int    `json:"retentionDays"`
}

type ServerConfig struct {
	Port int    `json:"port"`
	Path string `json:"path"` // webhook URL path
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// DefaultConfigDir returns the default config directory (~/.notebot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".notebot"
	}
	return filepath.Join(home, ".notebot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Journal.DBPath = expandPath(cfg.Journal.DBPath)
	cfg.Pipeline.LabelsFile = expandPath(cfg.Pipeline.LabelsFile)
	cfg.General.LogFile = expandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if !strings.HasPrefix(cfg.Server.Path, "/") {
		errs = append(errs, "server.path must start with /")
	}
	if cfg.Inference.TimeoutSeconds < 1 || cfg.Inference.TimeoutSeconds > 600 {
		errs = append(errs, "inference.timeoutSeconds must be between 1 and 600")
	}
	if cfg.Inference.RateLimitPerMinute < 0 {
		errs = append(errs, "inference.rateLimitPerMinute must not be negative")
	}
	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.Journal.Enabled && cfg.Journal.DBPath == "" {
		errs = append(errs, "journal.dbPath is required when journal.enabled is true")
	}
	if cfg.Journal.RetentionDays < 0 {
		errs = append(errs, "journal.retentionDays must not be negative")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
