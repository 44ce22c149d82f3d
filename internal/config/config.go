package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for hrai.
type Config struct {
	General     GeneralConfig    `json:"general" yaml:"general"`
	Gemini      GeminiConfig     `json:"gemini" yaml:"gemini"`
	Channels    ChannelsConfig   `json:"channels" yaml:"channels"`
	Access      AccessConfig     `json:"access" yaml:"access"`
	History     HistoryConfig    `json:"history" yaml:"history"`
	Attachments AttachmentConfig `json:"attachments" yaml:"attachments"`
	Chunking    ChunkConfig      `json:"chunking" yaml:"chunking"`
	Audit       AuditConfig      `json:"audit" yaml:"audit"`
}

type GeneralConfig struct {
	LogLevel              string `json:"logLevel" yaml:"logLevel"`
	LogFile               string `json:"logFile,omitempty" yaml:"logFile,omitempty"`
	MaxConcurrentMessages int    `json:"maxConcurrentMessages" yaml:"maxConcurrentMessages"`
}

// GeminiConfig configures the AI backend and its credential pool.
type GeminiConfig struct {
	APIKeys        []string `json:"apiKeys" yaml:"apiKeys"`
	TextModel      string   `json:"textModel" yaml:"textModel"`
	VisionModel    string   `json:"visionModel" yaml:"visionModel"`
	RotateEvery    int      `json:"rotateEvery" yaml:"rotateEvery"` // calls per key before advancing
	SystemPrompt   string   `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
	TimeoutSeconds int      `json:"timeoutSeconds" yaml:"timeoutSeconds"`
}

type ChannelsConfig struct {
	Discord  DiscordConfig  `json:"discord" yaml:"discord"`
	Telegram TelegramConfig `json:"telegram,omitempty" yaml:"telegram,omitempty"`
}

type DiscordConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Token   string `json:"token,omitempty" yaml:"token,omitempty"`
	GuildID string `json:"guildId,omitempty" yaml:"guildId,omitempty"` // empty = all guilds
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Token   string `json:"token,omitempty" yaml:"token,omitempty"`
}

// AccessConfig feeds the authorization engine. AuthorizedUsers bypass every
// other rule; AuthorizedChannels, when non-empty, restricts group channels.
type AccessConfig struct {
	AuthorizedUsers    []string `json:"authorizedUsers" yaml:"authorizedUsers"`
	RequiredRole       string   `json:"requiredRole" yaml:"requiredRole"`
	AuthorizedChannels []string `json:"authorizedChannels,omitempty" yaml:"authorizedChannels,omitempty"`
}

type HistoryConfig struct {
	MaxTurns int `json:"maxTurns" yaml:"maxTurns"`
}

type AttachmentConfig struct {
	MaxBytes     int64    `json:"maxBytes" yaml:"maxBytes"`
	AllowedTypes []string `json:"allowedTypes" yaml:"allowedTypes"`
	SpoolDir     string   `json:"spoolDir,omitempty" yaml:"spoolDir,omitempty"` // empty = keep downloads in memory
}

type ChunkConfig struct {
	MaxChunkLen int `json:"maxChunkLen" yaml:"maxChunkLen"`
}

type AuditConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DBPath  string `json:"dbPath" yaml:"dbPath"`
}

func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hrai"
	}
	return filepath.Join(home, ".hrai")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a config file (JSON, or YAML when the extension is .yaml/.yml),
// expands ${VAR} references and ~ paths, applies defaults for absent fields,
// and validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Attachments.SpoolDir = ExpandPath(cfg.Attachments.SpoolDir)
	cfg.Audit.DBPath = ExpandPath(cfg.Audit.DBPath)

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
			return match // keep original if no env var and no default
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

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}

	if len(cfg.Gemini.APIKeys) == 0 {
		errs = append(errs, "gemini.apiKeys must list at least one key")
	}
	for i, k := range cfg.Gemini.APIKeys {
		if strings.TrimSpace(k) == "" {
			errs = append(errs, fmt.Sprintf("gemini.apiKeys[%d] is empty", i))
		}
	}
	if cfg.Gemini.RotateEvery < 1 {
		errs = append(errs, "gemini.rotateEvery must be >= 1")
	}
	if cfg.Gemini.TimeoutSeconds < 1 {
		errs = append(errs, "gemini.timeoutSeconds must be >= 1")
	}

	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token == "" {
		errs = append(errs, "channels.discord.token is required when discord is enabled")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}

	if cfg.History.MaxTurns < 1 {
		errs = append(errs, "history.maxTurns must be >= 1")
	}
	if cfg.Attachments.MaxBytes < 1 {
		errs = append(errs, "attachments.maxBytes must be >= 1")
	}
	if len(cfg.Attachments.AllowedTypes) == 0 {
		errs = append(errs, "attachments.allowedTypes must not be empty")
	}
	if cfg.Chunking.MaxChunkLen < 1 {
		errs = append(errs, "chunking.maxChunkLen must be >= 1")
	}
	if cfg.Audit.Enabled && cfg.Audit.DBPath == "" {
		errs = append(errs, "audit.dbPath is required when audit is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
