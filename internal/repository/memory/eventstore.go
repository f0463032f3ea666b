// Package memory provides in-process implementations of every storage
// contract. They back the test suite and STORAGE_DRIVER=memory.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/cinema-es/internal/event"
	"github.com/kirinyoku/cinema-es/internal/repository"
)

type EventStore struct {
	mu      sync.RWMutex
	log     []event.Event
	streams map[string][]int
	now     func() time.Time
}

func NewEventStore() *EventStore {
	return &EventStore{
		streams: make(map[string][]int),
		now:     time.Now,
	}
}

// Load returns the stream of id in Seq order.
func (s *EventStore) Load(ctx context.Context, id string) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.streams[id]
	out := make([]event.Event, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.log[i])
	}
	return out, nil
}

// Append stamps evts and appends them after expectedVersion.
func (s *EventStore) Append(
	ctx context.Context,
	id string,
	expectedVersion uint64,
	evts []event.Event,
) ([]event.Event, error) {
	const op = "memory.EventStore.Append"

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := uint64(len(s.streams[id]))
	if current != expectedVersion {
		return nil, fmt.Errorf("%s: %s at %d, expected %d: %w", op, id, current, expectedVersion, repository.ErrVersionConflict)
	}

	ts := s.now().UTC()
	out := make([]event.Event, len(evts))
	for i, evt := range evts {
		if evt.ID == uuid.Nil {
			evt.ID = uuid.New()
		}
		evt.AggregateID = id
		evt.Seq = expectedVersion + uint64(i) + 1
		evt.Position = uint64(len(s.log)) + 1
		if evt.Timestamp.IsZero() {
			evt.Timestamp = ts
		}
		s.streams[id] = append(s.streams[id], len(s.log))
		s.log = append(s.log, evt)
		out[i] = evt
	}
	return out, nil
}

// ReadAll pages through the log in Position order.
func (s *EventStore) ReadAll(ctx context.Context, after uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if after >= uint64(len(s.log)) {
		return nil, nil
	}
	end := len(s.log)
	if limit > 0 && int(after)+limit < end {
		end = int(after) + limit
	}
	out := make([]event.Event, end-int(after))
	copy(out, s.log[after:end])
	return out, nil
}
