// Package outbox decouples chat delivery from the goroutine that produces a
// message. Producers publish to an in-process topic and a consumer hands the
// messages to the real sink.
package outbox

import (
	"context"
	"encoding/json"

	"aprs-friend-alert/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

const (
	Topic      = "outbound_messages"
	moduleName = "OUTBOX"
)

type Sink interface {
	Send(ctx context.Context, chatID, text string)
}

type OutboundMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type Outbox struct {
	pubSub *gochannel.GoChannel
	topic  string
	logger logger.ILogger
}

func New(pubSub *gochannel.GoChannel, log logger.ILogger) *Outbox {
	return &Outbox{pubSub: pubSub, topic: Topic, logger: log}
}

// Send queues the message and returns immediately. Failures are logged at
// WARN so a broken transport can't feed the error forwarder.
func (o *Outbox) Send(ctx context.Context, chatID, text string) {
	if chatID == "" {
		return
	}
	payload, err := json.Marshal(OutboundMessage{ChatID: chatID, Text: text})
	if err != nil {
		o.logger.Warn(moduleName, "Failed to encode outbound message", map[string]interface{}{"error": err.Error()})
		return
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	if err := o.pubSub.Publish(o.topic, msg); err != nil {
		o.logger.Warn(moduleName, "Failed to queue outbound message", map[string]interface{}{
			"chat_id": chatID,
			"error":   err.Error(),
		})
	}
}

// Consume delivers queued messages to sink until ctx is done.
func (o *Outbox) Consume(ctx context.Context, sink Sink) error {
	messages, err := o.pubSub.Subscribe(ctx, o.topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			o.deliver(ctx, sink, msg)
		}
	}()
	return nil
}

func (o *Outbox) deliver(ctx context.Context, sink Sink, msg *message.Message) {
	var out OutboundMessage
	if err := json.Unmarshal(msg.Payload, &out); err != nil {
		o.logger.Warn(moduleName, "Dropping undecodable outbound message", map[string]interface{}{
			"uuid":  msg.UUID,
			"error": err.Error(),
		})
		msg.Ack()
		return
	}
	// The sink is best effort, so the message is done either way.
	sink.Send(ctx, out.ChatID, out.Text)
	msg.Ack()
}
