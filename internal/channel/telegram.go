package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"hrai/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
	telegramPollTimeout    = 30 // seconds
)

// Telegram implements domain.Channel for Telegram Bot.
type Telegram struct {
	token     string
	parseMode string

	bot    *tgbotapi.BotAPI
	bus    domain.MessageBus
	logger *slog.Logger
}

type TelegramConfig struct {
	Token     string
	ParseMode string
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:     cfg.Token,
		parseMode: cfg.ParseMode,
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and begins polling for updates.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	bus.OnOutbound("telegram", func(msg domain.OutboundMessage) {
		chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
		if err != nil {
			t.logger.Error("invalid chat ID for telegram outbound", "chatID", msg.ChatID, "err", err)
			return
		}
		switch msg.Kind {
		case domain.OutboundTyping:
			action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
			_, _ = t.bot.Request(action)
		case domain.OutboundText:
			if msg.Text == "" {
				return
			}
			t.sendMessage(chatID, msg.Text)
		}
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = telegramPollTimeout
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(update)
		}
	}
}

func (t *Telegram) handleUpdate(update tgbotapi.Update) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return
	}
	if m.From.IsBot {
		return
	}

	text := strings.TrimSpace(m.Text)
	if text == "" {
		text = strings.TrimSpace(m.Caption)
	}

	attachments := t.extractAttachments(m)
	if text == "" && len(attachments) == 0 {
		return
	}

	t.logger.Info("telegram message received",
		"user_id", m.From.ID,
		"chat_id", m.Chat.ID,
		"text_len", len(text),
		"attachments", len(attachments),
	)

	kind := domain.ChatGroup
	if m.Chat.IsPrivate() {
		kind = domain.ChatDirect
	}

	mentioned := kind == domain.ChatDirect
	if !mentioned {
		handle := "@" + t.bot.Self.UserName
		if strings.Contains(text, handle) {
			mentioned = true
			text = strings.TrimSpace(strings.ReplaceAll(text, handle, ""))
		}
		if m.ReplyToMessage != nil && m.ReplyToMessage.From != nil &&
			m.ReplyToMessage.From.ID == t.bot.Self.ID {
			mentioned = true
		}
	}

	// Telegram has no guild-role concept, so Roles stays empty. Group senders
	// here can only pass authorization through the user allow-list.
	t.bus.Publish(domain.InboundMessage{
		Channel:     "telegram",
		ChatID:      strconv.FormatInt(m.Chat.ID, 10),
		ChatKind:    kind,
		SenderID:    strconv.FormatInt(m.From.ID, 10),
		SenderName:  m.From.UserName,
		Text:        text,
		Mentioned:   mentioned,
		MessageID:   strconv.Itoa(m.MessageID),
		Attachments: attachments,
		Timestamp:   time.Unix(int64(m.Date), 0),
	})
}

// extractAttachments maps Telegram photos and image documents to fetchable
// attachments. Photos come in multiple resolutions; only the largest is taken.
func (t *Telegram) extractAttachments(m *tgbotapi.Message) []domain.Attachment {
	if len(m.Photo) > 0 {
		photo := m.Photo[len(m.Photo)-1]
		url, err := t.bot.GetFileDirectURL(photo.FileID)
		if err != nil {
			t.logger.Warn("telegram photo URL lookup failed", "file_id", photo.FileID, "err", err)
			return nil
		}
		return []domain.Attachment{{
			URL:      url,
			Name:     photo.FileID,
			MimeType: "image/jpeg", // Telegram re-encodes photos as JPEG
			Size:     int64(photo.FileSize),
		}}
	}

	if m.Document != nil && strings.HasPrefix(m.Document.MimeType, "image/") {
		url, err := t.bot.GetFileDirectURL(m.Document.FileID)
		if err != nil {
			t.logger.Warn("telegram document URL lookup failed", "file_id", m.Document.FileID, "err", err)
			return nil
		}
		return []domain.Attachment{{
			URL:      url,
			Name:     m.Document.FileName,
			MimeType: m.Document.MimeType,
			Size:     int64(m.Document.FileSize),
		}}
	}

	return nil
}

func (t *Telegram) sendMessage(chatID int64, text string) {
	// Telegram has a 4096 char limit per message
	const maxLen = telegramMaxMsgLen
	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxLen {
			cutAt := strings.LastIndex(chunk[:maxLen], "\n")
			if cutAt < maxLen/2 {
				cutAt = maxLen
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}

		t.sendChunk(chatID, chunk)
	}
}

// sendChunk sends a single message chunk with retry and rate limit handling.
// Strategy: try Markdown first, on parse error fall back to plain text, then
// retry with backoff.
func (t *Telegram) sendChunk(chatID int64, text string) {
	const maxRetries = telegramMaxSendRetries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if attempt == 0 && t.parseMode != "" {
			msg.ParseMode = t.parseMode
		}
		// On subsequent attempts: send as plain text (parse mode may be malformed).

		_, err := t.bot.Send(msg)
		if err == nil {
			return
		}

		errStr := err.Error()

		// Handle Telegram rate limiting (HTTP 429).
		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off",
				"retry_after", retryAfter, "attempt", attempt+1,
			)
			time.Sleep(retryAfter)
			continue
		}

		// Markdown parse error on first attempt: immediately retry as plain text.
		if attempt == 0 && msg.ParseMode != "" &&
			strings.Contains(errStr, "can't parse entities") {
			t.logger.Warn("telegram markdown parse error, retrying as plain text",
				"err", err, "parseMode", t.parseMode,
			)
			plainMsg := tgbotapi.NewMessage(chatID, text)
			if _, err2 := t.bot.Send(plainMsg); err2 == nil {
				return
			}
			// Plain also failed, fall through to backoff loop.
		}

		// Exponential backoff for other transient errors.
		if attempt < maxRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}

		t.logger.Error("telegram send failed after retries", "err", err, "attempts", maxRetries+1)
	}
}
