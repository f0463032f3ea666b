// Package aggregate holds the write-side state machines. Each aggregate is
// rebuilt from its history, decides commands against that state and emits
// events. Nothing here touches storage.
package aggregate

import (
	"errors"
	"fmt"

	"github.com/kirinyoku/cinema-es/internal/event"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrNotExists      = errors.New("aggregate does not exist")
	ErrAlreadyExists  = errors.New("aggregate already exists")
	ErrUnknownCommand = errors.New("unknown command")
	ErrUnknownEvent   = errors.New("unknown event")
	ErrCorruptHistory = errors.New("corrupt event history")
)

// ValidationError reports the first field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

type Status int

const (
	Uninitialized Status = iota
	Active
	Deleted
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Deleted:
		return "deleted"
	default:
		return "uninitialized"
	}
}

// Root is the lifecycle snapshot every aggregate embeds. Version is the Seq
// of the last applied event, 0 for an aggregate with no history.
type Root struct {
	ID      string
	Version uint64
	Status  Status
}

func (r *Root) Base() *Root { return r }

// State is an aggregate that can be rebuilt from its events.
type State interface {
	Base() *Root
	Apply(evt event.Event) error
}

// Replay folds history into s. Events must continue the stream without gaps.
func Replay(s State, history []event.Event) error {
	for _, evt := range history {
		root := s.Base()
		if evt.Seq != root.Version+1 {
			return fmt.Errorf("%w: %s seq %d after version %d", ErrCorruptHistory, evt.AggregateID, evt.Seq, root.Version)
		}
		if err := s.Apply(evt); err != nil {
			return err
		}
		root.ID = evt.AggregateID
		root.Version = evt.Seq
	}
	return nil
}

// emit builds a single-event decision.
func emit(t event.Type, payload any) ([]event.Event, error) {
	evt, err := event.New(t, payload)
	if err != nil {
		return nil, err
	}
	return []event.Event{evt}, nil
}

func unknownEvent(aggregate string, evt event.Event) error {
	return fmt.Errorf("%w: %s on %s", ErrUnknownEvent, evt.Type, aggregate)
}
