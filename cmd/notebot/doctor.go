package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"notebot/internal/config"
	"notebot/internal/inference"
	"notebot/internal/store"
	"notebot/internal/taxonomy"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your notebot installation",
		Long: `Verifies that notebot's configuration, journal database, inference
endpoint, and Notion database are correctly set up. Reports pass/fail
for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("notebot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'notebot init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config validation", "valid")
			passed++

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			// 3. Telegram token present
			if cfg.Telegram.Token == "" || cfg.Telegram.Token == "${TELEGRAM_TOKEN}" {
				printFail("Telegram token", "not set (export TELEGRAM_TOKEN)")
				failed++
			} else {
				printPass("Telegram token", "configured")
				passed++
			}

			// 4. Journal database writable
			if cfg.Journal.Enabled {
				if err := checkDatabase(cfg.Journal.DBPath); err != nil {
					printFail("Journal database", err.Error())
					failed++
				} else {
					printPass("Journal database", cfg.Journal.DBPath)
					passed++
				}
			} else {
				printWarn("Journal database", "disabled: redelivered updates may save duplicate notes")
				warned++
			}

			// 5. Label taxonomy file
			if cfg.Pipeline.LabelsFile != "" {
				if _, err := taxonomy.Load(cfg.Pipeline.LabelsFile, logger); err != nil {
					printFail("Label taxonomy", err.Error())
					failed++
				} else {
					printPass("Label taxonomy", cfg.Pipeline.LabelsFile)
					passed++
				}
			}

			// 6. Inference endpoint reachable
			inf := inference.NewClient(inference.Config{
				APIBase: cfg.Inference.APIBase,
				APIKey:  cfg.Inference.APIKey,
				Timeout: 10 * time.Second,
				Labels:  taxonomy.NewSet(logger),
				Logger:  logger,
			})
			if err := inf.Healthy(ctx); err != nil {
				printFail("Inference endpoint", err.Error())
				failed++
			} else {
				printPass("Inference endpoint", cfg.Inference.APIBase)
				passed++
			}

			// 7. Notion database reachable
			notes := store.NewNotion(store.NotionConfig{
				Token:      cfg.Notion.Token,
				DatabaseID: cfg.Notion.DatabaseID,
				Timeout:    10 * time.Second,
				Logger:     logger,
			})
			if err := notes.Healthy(ctx); err != nil {
				printFail("Notion database", err.Error())
				failed++
			} else {
				printPass("Notion database", cfg.Notion.DatabaseID)
				passed++
			}

			// 8. Webhook port free
			if err := checkPort(cfg.Server.Port); err != nil {
				printWarn("Webhook port", fmt.Sprintf("port %d busy (is notebot already running?)", cfg.Server.Port))
				warned++
			} else {
				printPass("Webhook port", fmt.Sprintf("%d", cfg.Server.Port))
				passed++
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running notebot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nnotebot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! notebot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
