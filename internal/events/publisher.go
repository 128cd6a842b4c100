package events

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const (
	EventOrderPriced    = "order.priced"
	EventCartReconciled = "cart.reconciled"
	EventCartCleared    = "cart.cleared"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

type envelope struct {
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Publisher emits domain events to kafka. A nil publisher (or one without a
// writer) is a no-op, so event emission never becomes a hard dependency of
// the pricing path. Publish failures are logged and swallowed.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(writer *kafka.Writer) *Publisher {
	return &Publisher{writer: writer}
}

func (p *Publisher) Publish(ctx context.Context, event string, key string, payload interface{}) {
	if p == nil || p.writer == nil {
		return
	}

	body, err := json.Marshal(envelope{
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		logger.Error().Err(err).Str("event", event).Msg("failed to marshal event payload")
		return
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: body,
	})
	if err != nil {
		logger.Error().Err(err).Str("event", event).Msg("failed to publish event")
	}
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
