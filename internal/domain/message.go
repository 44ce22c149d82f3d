package domain

import "time"

// ChatKind classifies where an inbound message came from.
type ChatKind string

const (
	ChatDirect  ChatKind = "direct"
	ChatGroup   ChatKind = "group"
	ChatUnknown ChatKind = "unknown"
)

// RoleRef identifies one platform role the sender holds in the channel.
// Both fields are opaque platform identifiers; the required-role check
// matches either of them.
type RoleRef struct {
	ID   string
	Name string
}

// Attachment is the platform's description of an uploaded file. Size is the
// declared size, not a measured one; the ingestion pipeline re-checks it.
type Attachment struct {
	URL      string
	Name     string
	MimeType string
	Size     int64
}

type InboundMessage struct {
	Channel     string // adapter name, e.g. "discord"
	ChatID      string
	ChatKind    ChatKind
	SenderID    string
	SenderName  string
	Text        string
	Mentioned   bool // bot explicitly addressed (always true in DMs)
	MessageID   string
	Roles       []RoleRef
	Attachments []Attachment
	Timestamp   time.Time
}

// OutboundKind distinguishes reply text from best-effort typing signals.
type OutboundKind string

const (
	OutboundText   OutboundKind = "text"
	OutboundTyping OutboundKind = "typing"
)

type OutboundMessage struct {
	Channel string
	ChatID  string
	Kind    OutboundKind
	Text    string
	ReplyTo string // message ID to reply to, empty for a plain send
}
