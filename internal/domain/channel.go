package domain

import "context"

// Channel is a chat-platform gateway. Implementations translate platform
// events into InboundMessages and deliver OutboundMessages back.
type Channel interface {
	Name() string
	// Start connects to the platform and blocks until ctx is cancelled.
	Start(ctx context.Context, bus MessageBus) error
}

// MessageBus decouples channel adapters from the dispatcher. Inbound messages
// are queued; outbound delivery goes through the handler registered for the
// originating channel.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	SendOutbound(msg OutboundMessage)
	OnOutbound(channelName string, handler func(OutboundMessage))
	Close()
}
