package dispatcher

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/cinema-es/internal/event"
)

// EventLog is the global, Position-ordered view of the event store.
type EventLog interface {
	ReadAll(ctx context.Context, after uint64, limit int) ([]event.Event, error)
}

// DeadLetter is an event a subscriber could not handle.
type DeadLetter struct {
	ID         uuid.UUID   `json:"id"`
	Subscriber string      `json:"subscriber"`
	Event      event.Event `json:"event"`
	Error      string      `json:"error"`
	Attempts   int         `json:"attempts"`
	FailedAt   time.Time   `json:"failed_at"`
}

// DeadLetterStore keeps dead letters in insertion order per subscriber.
type DeadLetterStore interface {
	Add(ctx context.Context, dl DeadLetter) error
	List(ctx context.Context, subscriber string) ([]DeadLetter, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Clear(ctx context.Context, subscriber string) error
}

// CheckpointStore persists how far the dispatcher got through the log.
type CheckpointStore interface {
	Load(ctx context.Context, name string) (uint64, error)
	Save(ctx context.Context, name string, position uint64) error
}
