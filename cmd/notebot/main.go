package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notebot/internal/bot"
	"notebot/internal/config"
	"notebot/internal/inference"
	"notebot/internal/journal"
	"notebot/internal/pipeline"
	"notebot/internal/store"
	"notebot/internal/taxonomy"
	"notebot/internal/webhook"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "notebot",
		Short: "notebot: Telegram note-capture bot",
		Long:  "notebot turns Telegram messages and voice notes into categorized notes in a Notion database.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.notebot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			fmt.Printf("Edit %s and set TELEGRAM_TOKEN, INFERENCE_API_KEY, NOTION_TOKEN, NOTION_DATABASE_ID.\n", cfgPath)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("notebot v%s\n", version)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = buildLogger(cfg.General)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	labels, err := buildTaxonomy(ctx, cfg.Pipeline)
	if err != nil {
		return err
	}

	infClient := inference.NewClient(inference.Config{
		APIBase:         cfg.Inference.APIBase,
		APIKey:          cfg.Inference.APIKey,
		TranscribeModel: cfg.Inference.TranscribeModel,
		SummarizeModel:  cfg.Inference.SummarizeModel,
		ClassifyModel:   cfg.Inference.ClassifyModel,
		Timeout:         time.Duration(cfg.Inference.TimeoutSeconds) * time.Second,
		RatePerMinute:   cfg.Inference.RateLimitPerMinute,
		Labels:          labels,
		Logger:          logger,
	})

	notes := store.NewNotion(store.NotionConfig{
		Token:            cfg.Notion.Token,
		DatabaseID:       cfg.Notion.DatabaseID,
		TitleProperty:    cfg.Notion.TitleProperty,
		CategoryProperty: cfg.Notion.CategoryProperty,
		Timeout:          time.Duration(cfg.Notion.TimeoutSeconds) * time.Second,
		Logger:           logger,
	})

	pipe := pipeline.New(pipeline.Config{
		Inference: infClient,
		Store:     notes,
		Logger:    logger,
	})

	gateway, err := bot.NewTelegramGateway(cfg.Telegram.Token, logger)
	if err != nil {
		return err
	}

	dispatcherCfg := bot.Config{
		Pipeline:                 pipe,
		Voice:                    gateway,
		EnableVoiceTranscription: cfg.Pipeline.EnableVoiceTranscription,
		AllowFrom:                cfg.Telegram.AllowFrom,
		Logger:                   logger,
	}

	if cfg.Journal.Enabled {
		jnl, err := journal.NewSQLite(cfg.Journal.DBPath, logger)
		if err != nil {
			return err
		}
		defer jnl.Close()
		if cfg.Journal.RetentionDays > 0 {
			retention := time.Duration(cfg.Journal.RetentionDays) * 24 * time.Hour
			if _, err := jnl.Prune(ctx, retention); err != nil {
				logger.Warn("journal prune failed", "err", err)
			}
		}
		dispatcherCfg.Journal = jnl
	}

	server := webhook.NewServer(webhook.Config{
		Port:           cfg.Server.Port,
		Path:           cfg.Server.Path,
		SecretToken:    cfg.Telegram.SecretToken,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Endpoint,
		Dispatcher:     bot.NewDispatcher(dispatcherCfg),
		Replier:        gateway,
		Logger:         logger,
	})

	logger.Info("notebot serving",
		"version", version,
		"bot", gateway.Username(),
		"voice_transcription", cfg.Pipeline.EnableVoiceTranscription,
	)
	return server.Start(ctx)
}

func buildTaxonomy(ctx context.Context, cfg config.PipelineConfig) (*taxonomy.Set, error) {
	if cfg.LabelsFile == "" {
		return taxonomy.NewSet(logger), nil
	}
	labels, err := taxonomy.Load(cfg.LabelsFile, logger)
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}
	if cfg.WatchLabels {
		if err := labels.Watch(ctx); err != nil {
			logger.Warn("label watch unavailable", "err", err)
		}
	}
	return labels, nil
}

func buildLogger(cfg config.GeneralConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	out := os.Stderr
	if cfg.LogFile != "" {
		if f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			out = f
		} else {
			logger.Warn("cannot open log file, logging to stderr", "path", cfg.LogFile, "err", err)
		}
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}
