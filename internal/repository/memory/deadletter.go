package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/kirinyoku/cinema-es/internal/dispatcher"
	"github.com/kirinyoku/cinema-es/internal/repository"
)

type DeadLetterStore struct {
	mu      sync.Mutex
	letters []dispatcher.DeadLetter
}

func NewDeadLetterStore() *DeadLetterStore {
	return &DeadLetterStore{}
}

func (s *DeadLetterStore) Add(_ context.Context, dl dispatcher.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.letters = append(s.letters, dl)
	return nil
}

func (s *DeadLetterStore) List(_ context.Context, subscriber string) ([]dispatcher.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]dispatcher.DeadLetter, 0)
	for _, dl := range s.letters {
		if subscriber == "" || dl.Subscriber == subscriber {
			out = append(out, dl)
		}
	}
	return out, nil
}

func (s *DeadLetterStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.letters, func(dl dispatcher.DeadLetter) bool { return dl.ID == id })
	if i < 0 {
		return repository.ErrNotFound
	}
	s.letters = slices.Delete(s.letters, i, i+1)
	return nil
}

func (s *DeadLetterStore) Clear(_ context.Context, subscriber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.letters = slices.DeleteFunc(s.letters, func(dl dispatcher.DeadLetter) bool {
		return dl.Subscriber == subscriber
	})
	return nil
}

type CheckpointStore struct {
	mu        sync.Mutex
	positions map[string]uint64
}

func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{positions: make(map[string]uint64)}
}

func (s *CheckpointStore) Load(_ context.Context, name string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[name], nil
}

func (s *CheckpointStore) Save(_ context.Context, name string, position uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[name] = position
	return nil
}

var (
	_ dispatcher.DeadLetterStore = (*DeadLetterStore)(nil)
	_ dispatcher.CheckpointStore = (*CheckpointStore)(nil)
	_ dispatcher.EventLog        = (*EventStore)(nil)
)
