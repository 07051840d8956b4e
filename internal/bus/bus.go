// Package bus is the in-process event bus that carries UI-level notifications
// and security exceptions to the owning application.
package bus

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Metadata keys set on every published message.
const (
	MetaTopic     = "topic"
	MetaMessageID = "message_id"
)

// Message is one notification on the bus.
type Message struct {
	ID       string
	Topic    string
	Payload  []byte
	Metadata map[string]string
}

// Handler processes a notification. A returned error is logged; the message is
// acknowledged either way.
type Handler func(ctx context.Context, msg Message) error

// Bus is a Watermill GoChannel wrapper.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
}

// Config configures the bus.
type Config struct {
	BufferSize int64 // Per-subscriber output buffer
}

// New creates an in-memory bus.
func New(cfg Config, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: cfg.BufferSize},
			newLoggerAdapter(logger),
		),
		logger: logger,
	}
}

// Publish sends payload to every subscriber of topic. Messages published with
// no subscribers are discarded.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	wmMsg := message.NewMessage(watermill.NewUUID(), payload)
	wmMsg.Metadata.Set(MetaTopic, topic)
	wmMsg.SetContext(ctx)
	return b.pubsub.Publish(topic, wmMsg)
}

// Subscribe runs handler for every message on topic until ctx is cancelled or
// the bus is closed. It returns once the subscription is active.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for wmMsg := range messages {
			msg := Message{
				ID:       wmMsg.UUID,
				Topic:    topic,
				Payload:  wmMsg.Payload,
				Metadata: map[string]string(wmMsg.Metadata),
			}

			if err := handler(ctx, msg); err != nil {
				b.logger.Error("bus handler failed", "topic", topic, "msg_id", wmMsg.UUID, "error", err)
			}
			// GoChannel redelivers nacked messages forever.
			wmMsg.Ack()
		}
		b.logger.Debug("bus subscription ended", "topic", topic)
	}()

	return nil
}

// Close shuts down the bus and ends all subscriptions.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
