// Package notify forwards committed events to an external message bus.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/cinema-es/internal/event"
)

const Name = "notifier"

// Message is the bus envelope of one event. Payload is passed through as
// stored.
type Message struct {
	ID            uuid.UUID           `json:"id"`
	Type          event.Type          `json:"type"`
	AggregateType event.AggregateType `json:"aggregate_type"`
	AggregateID   string              `json:"aggregate_id"`
	Seq           uint64              `json:"seq"`
	Position      uint64              `json:"position"`
	Timestamp     time.Time           `json:"timestamp"`
	Payload       json.RawMessage     `json:"payload"`
}

func NewMessage(evt event.Event) Message {
	return Message{
		ID:            evt.ID,
		Type:          evt.Type,
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		Seq:           evt.Seq,
		Position:      evt.Position,
		Timestamp:     evt.Timestamp,
		Payload:       evt.Payload,
	}
}

// Publisher sends one message body under a routing topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, body []byte) error
}

// Notifier is a dispatcher subscriber for every aggregate type. A failed
// publish is returned so the dispatcher retries it; consumers must tolerate
// duplicates by message id.
type Notifier struct {
	pub Publisher
	log *slog.Logger
}

func New(pub Publisher, log *slog.Logger) *Notifier {
	return &Notifier{pub: pub, log: log}
}

func (n *Notifier) Name() string { return Name }

func (n *Notifier) Types() []event.AggregateType { return nil }

func (n *Notifier) Handle(ctx context.Context, evt event.Event) error {
	const op = "notify.Notifier.Handle"

	body, err := json.Marshal(NewMessage(evt))
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := n.pub.Publish(ctx, string(evt.Type), body); err != nil {
		n.log.Warn("notification publish failed",
			slog.String("event_id", evt.ID.String()),
			slog.String("type", string(evt.Type)),
			slog.Any("err", err),
		)
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}
