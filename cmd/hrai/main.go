package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"hrai/internal/attach"
	"hrai/internal/audit"
	"hrai/internal/auth"
	"hrai/internal/bus"
	"hrai/internal/channel"
	"hrai/internal/chunk"
	"hrai/internal/config"
	"hrai/internal/dispatch"
	"hrai/internal/domain"
	"hrai/internal/provider"
	"hrai/internal/session"

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
		Use:   "hrai",
		Short: "hrai: chat-platform relay for a generative AI backend",
		Long:  "hrai connects Discord and Telegram to the Gemini API with per-user conversation history, key rotation, and response chunking.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.hrai/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(logCmd())

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
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := os.MkdirAll(config.DefaultConfigDir(), 0o755); err != nil {
				return err
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			fmt.Printf("Edit %s and add your Gemini API keys and bot tokens, then run 'hrai run'.\n", cfgPath)
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the relay (all enabled channels + dispatcher)",
		Long:  "Starts all enabled channels and the message dispatcher. Press Ctrl+C to stop.",
		RunE:  run,
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = buildLogger(cfg.General)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)

	var recorder dispatch.Recorder
	var auditStore *audit.Store
	if cfg.Audit.Enabled {
		auditStore, err = audit.NewStore(cfg.Audit.DBPath, logger)
		if err != nil {
			return fmt.Errorf("audit store: %w", err)
		}
		defer auditStore.Close()
		recorder = auditStore
	}

	ring, err := provider.NewKeyRing(cfg.Gemini.APIKeys, cfg.Gemini.RotateEvery)
	if err != nil {
		return fmt.Errorf("key ring: %w", err)
	}

	generator, err := provider.NewGemini(provider.GeminiConfig{
		Ring:         ring,
		TextModel:    cfg.Gemini.TextModel,
		VisionModel:  cfg.Gemini.VisionModel,
		SystemPrompt: cfg.Gemini.SystemPrompt,
		Timeout:      time.Duration(cfg.Gemini.TimeoutSeconds) * time.Second,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("gemini backend: %w", err)
	}

	if err := generator.Healthy(ctx); err != nil {
		logger.Warn("backend unhealthy at startup", "provider", generator.Name(), "err", err)
	} else {
		logger.Info("backend healthy", "provider", generator.Name(), "keys", ring.Size())
	}

	pipeline, err := attach.NewPipeline(attach.Config{
		MaxBytes:     cfg.Attachments.MaxBytes,
		AllowedTypes: cfg.Attachments.AllowedTypes,
		SpoolDir:     cfg.Attachments.SpoolDir,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("attachment pipeline: %w", err)
	}

	dispatcher := dispatch.New(dispatch.Config{
		Auth:        auth.NewEngine(cfg.Access),
		Sessions:    session.NewStore(cfg.History.MaxTurns, logger),
		Generator:   generator,
		Attachments: pipeline,
		Chunker:     chunk.New(cfg.Chunking.MaxChunkLen),
		Bus:         messageBus,
		Recorder:    recorder,
		Logger:      logger,
		Concurrency: cfg.General.MaxConcurrentMessages,
	})

	go dispatcher.Run(ctx)

	channels := enabledChannels(cfg)
	if len(channels) == 0 {
		return fmt.Errorf("no channels enabled, enable discord or telegram in %s", cfgPath)
	}
	for _, ch := range channels {
		go func(c domain.Channel) {
			if err := c.Start(ctx, messageBus); err != nil {
				logger.Error("channel error", "channel", c.Name(), "err", err)
			}
		}(ch)
		logger.Info("channel enabled", "channel", ch.Name())
	}

	logger.Info("hrai started. Press Ctrl+C to stop.", "version", version)

	// Block until shutdown signal
	<-ctx.Done()
	logger.Info("shutting down...")

	// Graceful shutdown with timeout
	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

func enabledChannels(cfg *config.Config) []domain.Channel {
	var channels []domain.Channel
	if cfg.Channels.Discord.Enabled {
		channels = append(channels, channel.NewDiscord(channel.DiscordConfig{
			Token:   cfg.Channels.Discord.Token,
			GuildID: cfg.Channels.Discord.GuildID,
			Logger:  logger,
		}))
	}
	if cfg.Channels.Telegram.Enabled {
		channels = append(channels, channel.NewTelegram(channel.TelegramConfig{
			Token:  cfg.Channels.Telegram.Token,
			Logger: logger,
		}))
	}
	return channels
}

// buildLogger honors the configured level and optional log file. The file, when
// set, receives the same stream as stderr.
func buildLogger(cfg config.GeneralConfig) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err == nil {
			if f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
				w = io.MultiWriter(os.Stderr, f)
			}
		}
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func logCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent dispatch outcomes from the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cfg.Audit.Enabled {
				return fmt.Errorf("audit log is disabled in config")
			}

			store, err := audit.NewStore(cfg.Audit.DBPath, logger)
			if err != nil {
				return fmt.Errorf("audit store: %w", err)
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No dispatch log entries yet.")
				return nil
			}

			for _, e := range entries {
				reason := e.Reason
				if reason != "" {
					reason = " (" + reason + ")"
				}
				fmt.Printf("%s  %-8s %-10s %-8s%s  chat=%s sender=%s %dms\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"),
					e.Channel, e.Route, e.Outcome, reason, e.ChatID, e.SenderID, e.LatencyMs)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}
