package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hrai/internal/config"
	"hrai/internal/provider"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	var checkKeys bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your hrai installation",
		Long: `Verifies that hrai's configuration, channels, API keys, and audit
database are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("hrai doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'hrai init' to create a default configuration.\n")
				return fmt.Errorf("1 check(s) failed")
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				fmt.Printf("\n%d passed, 1 failed\n", passed)
				return fmt.Errorf("1 check(s) failed")
			}
			printPass("Config validation", "valid")
			passed++

			// 3. At least one channel enabled with a token
			channelCount := 0
			if cfg.Channels.Discord.Enabled {
				channelCount++
				printPass("Channel: discord", "configured")
				passed++
			}
			if cfg.Channels.Telegram.Enabled {
				channelCount++
				printPass("Channel: telegram", "configured")
				passed++
			}
			if channelCount == 0 {
				printFail("Channels", "no channels enabled")
				failed++
			}

			// 4. API key pool
			keyCount := len(cfg.Gemini.APIKeys)
			if keyCount == 0 {
				printFail("Gemini keys", "no API keys configured")
				failed++
			} else {
				printPass("Gemini keys", fmt.Sprintf("%d key(s), rotating every %d calls", keyCount, cfg.Gemini.RotateEvery))
				passed++
			}

			// 5. Live key check (network call, opt-in)
			if checkKeys && keyCount > 0 {
				p, w, f := checkGeminiKeys(cmd.Context(), cfg)
				passed += p
				warned += w
				failed += f
			}

			// 6. Audit database writable
			if cfg.Audit.Enabled {
				if err := checkDatabase(cfg.Audit.DBPath); err != nil {
					printFail("Audit database", err.Error())
					failed++
				} else {
					printPass("Audit database", cfg.Audit.DBPath)
					passed++
				}
			}

			// 7. Spool directory writable
			if cfg.Attachments.SpoolDir != "" {
				if err := os.MkdirAll(cfg.Attachments.SpoolDir, 0o755); err != nil {
					printFail("Spool directory", err.Error())
					failed++
				} else {
					printPass("Spool directory", cfg.Attachments.SpoolDir)
					passed++
				}
			}

			// 8. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running hrai.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nhrai should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! hrai is ready to run.\n")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkKeys, "check-keys", false, "probe each Gemini API key against the live API")
	return cmd
}

// checkGeminiKeys probes each key in the pool with a minimal request, advancing
// the ring between probes so every key is exercised once.
func checkGeminiKeys(ctx context.Context, cfg *config.Config) (passed, warned, failed int) {
	ring, err := provider.NewKeyRing(cfg.Gemini.APIKeys, cfg.Gemini.RotateEvery)
	if err != nil {
		printFail("Key probe", err.Error())
		return 0, 0, 1
	}
	gen, err := provider.NewGemini(provider.GeminiConfig{
		Ring:        ring,
		TextModel:   cfg.Gemini.TextModel,
		VisionModel: cfg.Gemini.VisionModel,
		Timeout:     time.Duration(cfg.Gemini.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		printFail("Key probe", err.Error())
		return 0, 0, 1
	}

	for i := 0; i < ring.Size(); i++ {
		label := fmt.Sprintf("Key %d/%d", i+1, ring.Size())
		if err := gen.Healthy(ctx); err != nil {
			printWarn(label, err.Error())
			warned++
		} else {
			printPass(label, "responding")
			passed++
		}
		ring.Advance()
	}
	return passed, warned, failed
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

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
