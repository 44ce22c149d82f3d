package channel

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"hrai/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const (
	discordMaxMsgLen = 2000
)

var discordMentionPattern = regexp.MustCompile(`<@!?(\d+)>`)

// Discord implements domain.Channel for Discord.
type Discord struct {
	token   string
	guildID string
	session *discordgo.Session
	bus     domain.MessageBus
	logger  *slog.Logger
}

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Token   string
	GuildID string // empty = all guilds
	Logger  *slog.Logger
}

// NewDiscord creates a new Discord channel handler.
func NewDiscord(cfg DiscordConfig) *Discord {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Discord{
		token:   cfg.Token,
		guildID: cfg.GuildID,
		logger:  cfg.Logger,
	}
}

func (d *Discord) Name() string { return "discord" }

// Start connects to Discord using a bot token and begins listening.
func (d *Discord) Start(ctx context.Context, bus domain.MessageBus) error {
	d.bus = bus

	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}

	// GuildMembers is needed to resolve role names for authorization.
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMembers

	d.session = session

	// Register outbound handler.
	bus.OnOutbound("discord", func(msg domain.OutboundMessage) {
		switch msg.Kind {
		case domain.OutboundTyping:
			if err := session.ChannelTyping(msg.ChatID); err != nil {
				d.logger.Warn("discord typing failed", "channel", msg.ChatID, "err", err)
			}
		case domain.OutboundText:
			if msg.Text == "" {
				return
			}
			d.sendMessage(msg.ChatID, msg.Text, msg.ReplyTo)
		}
	})

	// Register message handler.
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		// Ignore bots, including ourselves.
		if m.Author.Bot || m.Author.ID == s.State.User.ID {
			return
		}

		// If guildID is set, filter guild messages.
		if d.guildID != "" && m.GuildID != "" && m.GuildID != d.guildID {
			return
		}

		d.logger.Info("discord message received",
			"author", m.Author.Username,
			"channel_id", m.ChannelID,
			"content_len", len(m.Content),
			"attachments", len(m.Attachments),
		)

		bus.Publish(d.toInbound(s, m))
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}

	d.logger.Info("discord bot connected", "user", session.State.User.Username)

	// Wait for context cancellation.
	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return session.Close()
}

// toInbound translates a Discord message event into the channel-neutral form.
func (d *Discord) toInbound(s *discordgo.Session, m *discordgo.MessageCreate) domain.InboundMessage {
	kind := domain.ChatGroup
	if m.GuildID == "" {
		kind = domain.ChatDirect
	}

	mentioned := kind == domain.ChatDirect
	for _, u := range m.Mentions {
		if u.ID == s.State.User.ID {
			mentioned = true
			break
		}
	}

	msg := domain.InboundMessage{
		Channel:    "discord",
		ChatID:     m.ChannelID,
		ChatKind:   kind,
		SenderID:   m.Author.ID,
		SenderName: m.Author.Username,
		Text:       stripMention(m.Content, s.State.User.ID),
		Mentioned:  mentioned,
		MessageID:  m.ID,
		Roles:      d.senderRoles(s, m),
		Timestamp:  time.Now(),
	}

	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			URL:      a.URL,
			Name:     a.Filename,
			MimeType: a.ContentType,
			Size:     int64(a.Size),
		})
	}
	return msg
}

// senderRoles resolves the sender's guild roles to id/name pairs. Direct
// messages carry no roles.
func (d *Discord) senderRoles(s *discordgo.Session, m *discordgo.MessageCreate) []domain.RoleRef {
	if m.GuildID == "" || m.Member == nil {
		return nil
	}

	var refs []domain.RoleRef
	for _, roleID := range m.Member.Roles {
		ref := domain.RoleRef{ID: roleID}
		if role, err := s.State.Role(m.GuildID, roleID); err == nil {
			ref.Name = role.Name
		}
		refs = append(refs, ref)
	}
	return refs
}

// stripMention removes direct mentions of the bot from the message text so
// "@bot explain this" reaches the backend as "explain this".
func stripMention(content, botID string) string {
	cleaned := discordMentionPattern.ReplaceAllStringFunc(content, func(match string) string {
		ids := discordMentionPattern.FindStringSubmatch(match)
		if len(ids) == 2 && ids[1] == botID {
			return ""
		}
		return match
	})
	return strings.TrimSpace(cleaned)
}

func (d *Discord) sendMessage(channelID, content, replyTo string) {
	// Discord rejects messages over its hard length cap; replies upstream are
	// already chunked, so this split is a safety net.
	chunks := splitMessage(content, discordMaxMsgLen)
	for i, chunk := range chunks {
		var err error
		if replyTo != "" && i == 0 {
			_, err = d.session.ChannelMessageSendReply(channelID, chunk, &discordgo.MessageReference{
				MessageID: replyTo,
				ChannelID: channelID,
			})
		} else {
			_, err = d.session.ChannelMessageSend(channelID, chunk)
		}
		if err != nil {
			d.logger.Error("discord send failed", "channel", channelID, "err", err)
		}
	}
}

// splitMessage splits a message into chunks that fit within the max length,
// trying to split on newlines when possible.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		// Try to split on a newline.
		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
