package config

// Observed platform limit is 2000 characters; the default chunk ceiling
// leaves headroom for part markers and formatting.
const (
	defaultMaxChunkLen    = 1900
	defaultMaxAttachBytes = 3 * 1024 * 1024
	defaultRotateEvery    = 60
	defaultMaxTurns       = 5
)

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:              "info",
			MaxConcurrentMessages: 5,
		},
		Gemini: GeminiConfig{
			APIKeys:        []string{"${GEMINI_API_KEY}"},
			TextModel:      "gemini-1.5-flash",
			VisionModel:    "gemini-1.5-flash",
			RotateEvery:    defaultRotateEvery,
			SystemPrompt:   "You are Hr AI, a helpful Discord bot. You have access to chat history and should use it to provide contextual responses.",
			TimeoutSeconds: 60,
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				Enabled: true,
				Token:   "${DISCORD_TOKEN}",
			},
			Telegram: TelegramConfig{
				Enabled: false,
			},
		},
		Access: AccessConfig{
			AuthorizedUsers: []string{},
			RequiredRole:    "",
		},
		History: HistoryConfig{
			MaxTurns: defaultMaxTurns,
		},
		Attachments: AttachmentConfig{
			MaxBytes: defaultMaxAttachBytes,
			AllowedTypes: []string{
				"image/png",
				"image/jpeg",
				"image/webp",
				"image/heic",
				"image/heif",
			},
		},
		Chunking: ChunkConfig{
			MaxChunkLen: defaultMaxChunkLen,
		},
		Audit: AuditConfig{
			Enabled: true,
			DBPath:  "~/.hrai/audit.db",
		},
	}
}
