// Package dispatch orchestrates one inbound message end to end: authorize,
// route, invoke the AI backend, chunk, deliver.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hrai/internal/attach"
	"hrai/internal/audit"
	"hrai/internal/auth"
	"hrai/internal/chunk"
	"hrai/internal/domain"
	"hrai/internal/session"
)

const (
	historyCommand        = "!history"
	defaultImagePrompt    = "Describe this image."
	genericErrorReply     = "Sorry, there was an error processing your request."
	defaultConcurrency    = 5
	typingRefreshInterval = 5 * time.Second
	interChunkPause       = 500 * time.Millisecond
)

// Recorder receives one entry per handled message. Satisfied by
// *audit.Store; may be nil to disable auditing.
type Recorder interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Dispatcher consumes inbound messages from the bus and produces exactly one
// user-visible outcome per message: a reply, a denial, a rejection, or a
// generic error.
type Dispatcher struct {
	authz       *auth.Engine
	sessions    *session.Store
	generator   domain.Generator
	attachments *attach.Pipeline
	chunker     *chunk.Chunker
	bus         domain.MessageBus
	recorder    Recorder
	logger      *slog.Logger
	concurrency int

	// Overridable in tests.
	typingInterval time.Duration
	chunkPause     time.Duration
}

type Config struct {
	Auth        *auth.Engine
	Sessions    *session.Store
	Generator   domain.Generator
	Attachments *attach.Pipeline
	Chunker     *chunk.Chunker
	Bus         domain.MessageBus
	Recorder    Recorder
	Logger      *slog.Logger
	Concurrency int // max parallel messages (default 5)
}

func New(cfg Config) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		authz:          cfg.Auth,
		sessions:       cfg.Sessions,
		generator:      cfg.Generator,
		attachments:    cfg.Attachments,
		chunker:        cfg.Chunker,
		bus:            cfg.Bus,
		recorder:       cfg.Recorder,
		logger:         cfg.Logger,
		concurrency:    cfg.Concurrency,
		typingInterval: typingRefreshInterval,
		chunkPause:     interChunkPause,
	}
}

// Run consumes inbound messages and processes them with bounded concurrency
// until ctx is cancelled or the bus closes.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started", "concurrency", d.concurrency)

	sem := make(chan struct{}, d.concurrency)
	inbound := d.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				d.logger.Info("inbound channel closed, dispatcher stopping")
				return
			}
			sem <- struct{}{}
			go func(m domain.InboundMessage) {
				defer func() { <-sem }()
				d.Process(ctx, m)
			}(msg)
		}
	}
}

// Process handles a single inbound message. Any panic or collaborator error
// resolves to one generic error reply; the sender is never left without a
// response once processing has begun.
func (d *Dispatcher) Process(ctx context.Context, msg domain.InboundMessage) {
	// Group channels require the bot to be explicitly addressed.
	if msg.ChatKind == domain.ChatGroup && !msg.Mentioned {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in message handler", "panic", r, "channel", msg.Channel, "sender", msg.SenderID)
			d.reply(msg, genericErrorReply)
			d.record(msg, "text", "error", fmt.Sprintf("panic: %v", r), 0)
		}
	}()

	start := time.Now()
	d.logger.Info("processing message",
		"channel", msg.Channel,
		"chat_kind", string(msg.ChatKind),
		"sender", msg.SenderID,
		"content_len", len(msg.Text),
		"attachments", len(msg.Attachments),
	)

	decision := d.authz.Decide(msg.SenderID, msg.ChatKind, msg.ChatID, msg.Roles)
	if !decision.Allowed {
		d.reply(msg, d.denialText(decision.Reason))
		d.record(msg, "text", "denied", string(decision.Reason), time.Since(start).Milliseconds())
		return
	}

	text := strings.TrimSpace(msg.Text)

	if strings.EqualFold(text, historyCommand) {
		d.handleHistoryCommand(msg)
		d.record(msg, "command", "replied", "", time.Since(start).Milliseconds())
		return
	}

	var (
		route   string
		outcome string
		reason  string
	)
	if len(msg.Attachments) > 0 {
		route = "attachment"
		outcome, reason = d.handleAttachment(ctx, msg, text)
	} else {
		route = "text"
		outcome, reason = d.handleText(ctx, msg, text)
	}
	d.record(msg, route, outcome, reason, time.Since(start).Milliseconds())
}

// handleText runs the text path: history append, backend call, history
// append of the reply, chunked delivery.
func (d *Dispatcher) handleText(ctx context.Context, msg domain.InboundMessage, text string) (outcome, reason string) {
	if text == "" {
		return "ignored", "empty text"
	}

	key := session.Key{Channel: msg.Channel, ChatID: msg.ChatID, UserID: msg.SenderID}
	history := d.sessions.Get(key)
	d.sessions.Append(key, session.CallerUser, text)

	stopTyping := d.startTyping(msg)
	replyText, err := d.generator.GenerateText(ctx, domain.TextRequest{
		Prompt:  text,
		History: history,
	})
	stopTyping()

	if err != nil {
		d.logger.Error("backend call failed", "error", err, "channel", msg.Channel, "sender", msg.SenderID)
		d.reply(msg, genericErrorReply)
		return "error", err.Error()
	}

	d.sessions.Append(key, session.CallerAssistant, replyText)
	d.deliver(msg, replyText)
	return "replied", ""
}

// handleAttachment runs the image path. Image exchanges are not appended to
// the conversation window.
func (d *Dispatcher) handleAttachment(ctx context.Context, msg domain.InboundMessage, text string) (outcome, reason string) {
	payload, err := d.attachments.Ingest(ctx, msg.Attachments)
	if err != nil {
		var rej *attach.RejectionError
		if errors.As(err, &rej) {
			d.reply(msg, d.rejectionText(rej))
			return "rejected", string(rej.Reason)
		}
		d.logger.Error("attachment ingestion failed", "error", err, "channel", msg.Channel, "sender", msg.SenderID)
		d.reply(msg, genericErrorReply)
		return "error", err.Error()
	}
	// Unconditional cleanup of any staged bytes, success or failure.
	defer payload.Close()

	prompt := text
	if prompt == "" {
		prompt = defaultImagePrompt
	}

	stopTyping := d.startTyping(msg)
	replyText, err := d.generator.GenerateVision(ctx, domain.VisionRequest{
		Prompt:   prompt,
		Image:    payload.Bytes,
		MimeType: payload.MimeType,
	})
	stopTyping()

	if err != nil {
		d.logger.Error("backend vision call failed", "error", err, "channel", msg.Channel, "sender", msg.SenderID)
		d.reply(msg, genericErrorReply)
		return "error", err.Error()
	}

	d.deliver(msg, replyText)
	return "replied", ""
}

func (d *Dispatcher) handleHistoryCommand(msg domain.InboundMessage) {
	key := session.Key{Channel: msg.Channel, ChatID: msg.ChatID, UserID: msg.SenderID}
	summary := d.sessions.FormatSummary(key)
	if summary == "" {
		d.reply(msg, "No message history found.")
		return
	}
	d.reply(msg, fmt.Sprintf("**Last %d messages:**\n%s", d.sessions.Len(key), summary))
}

// deliver chunks the reply and sends the chunks in order with a small pause
// between them.
func (d *Dispatcher) deliver(msg domain.InboundMessage, text string) {
	chunks := d.chunker.Split(text)
	for i, c := range chunks {
		if i > 0 && d.chunkPause > 0 {
			time.Sleep(d.chunkPause)
		}
		d.reply(msg, c)
	}
}

func (d *Dispatcher) reply(msg domain.InboundMessage, text string) {
	d.bus.SendOutbound(domain.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Kind:    domain.OutboundText,
		Text:    text,
		ReplyTo: msg.MessageID,
	})
}

// startTyping refreshes the typing indicator on a fixed interval for the
// duration of a backend wait. The returned stop function cancels the
// refresher; it must be called once the result arrives or fails.
func (d *Dispatcher) startTyping(msg domain.InboundMessage) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(d.typingInterval)
		defer ticker.Stop()

		d.sendTyping(msg)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.sendTyping(msg)
			}
		}
	}()
	return cancel
}

func (d *Dispatcher) sendTyping(msg domain.InboundMessage) {
	d.bus.SendOutbound(domain.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Kind:    domain.OutboundTyping,
	})
}

func (d *Dispatcher) denialText(reason auth.Reason) string {
	switch reason {
	case auth.ReasonNotAuthorizedDM:
		return "⚠️ You are not authorized to use this bot in DMs."
	case auth.ReasonChannelNotAuthorized:
		return "⚠️ Bot is not authorized in this channel."
	case auth.ReasonMissingRole:
		if role := d.authz.RequiredRole(); role != "" {
			return fmt.Sprintf("⚠️ You need the %s role to use this bot.", role)
		}
		return "⚠️ You do not have the required role to use this bot."
	}
	return "⚠️ This channel type is not supported."
}

func (d *Dispatcher) rejectionText(rej *attach.RejectionError) string {
	switch rej.Reason {
	case attach.RejectUnsupportedFormat:
		return "⚠️ Unsupported image format. Supported formats: PNG, JPEG, WEBP, HEIC, HEIF."
	case attach.RejectTooLarge:
		return fmt.Sprintf("⚠️ Image is too large. Maximum size is %d MiB.", rej.Limit/(1024*1024))
	}
	return genericErrorReply
}

func (d *Dispatcher) record(msg domain.InboundMessage, route, outcome, reason string, latencyMs int64) {
	if d.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := d.recorder.Record(ctx, audit.Entry{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		SenderID:  msg.SenderID,
		Route:     route,
		Outcome:   outcome,
		Reason:    reason,
		LatencyMs: latencyMs,
	})
	if err != nil {
		d.logger.Warn("audit record failed", "error", err)
	}
}
