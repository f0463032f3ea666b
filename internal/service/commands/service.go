package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirinyoku/cinema-es/internal/aggregate"
	"github.com/kirinyoku/cinema-es/internal/command"
	"github.com/kirinyoku/cinema-es/internal/event"
	"github.com/kirinyoku/cinema-es/internal/repository"
)

// EventStore is the write-side persistence the gateway needs.
type EventStore interface {
	Load(ctx context.Context, id string) ([]event.Event, error)
	Append(ctx context.Context, id string, expectedVersion uint64, evts []event.Event) ([]event.Event, error)
}

// Publisher is told about freshly appended events.
type Publisher interface {
	Publish(ctx context.Context, evts ...event.Event)
}

type Result struct {
	AggregateID string
	Version     uint64
	Events      []event.Event
}

type Service struct {
	store    EventStore
	registry *aggregate.Registry
	pub      Publisher
	log      *slog.Logger
}

func New(store EventStore, registry *aggregate.Registry, pub Publisher, log *slog.Logger) *Service {
	return &Service{
		store:    store,
		registry: registry,
		pub:      pub,
		log:      log,
	}
}

// Dispatch handles one command end to end on the write side.
//
// Parameters:
//   - ctx: request-scoped context.
//   - cmd: the command; TargetID names the aggregate.
//
// Returns:
//   - Result: the aggregate id, its new version and the stored events.
//   - error: aggregate.ErrValidation if the payload is invalid.
//   - error: aggregate.ErrNotExists if the aggregate was never created or is deleted.
//   - error: aggregate.ErrAlreadyExists if a create targets an existing aggregate.
//   - error: command.ErrConcurrencyConflict if another command appended first.
func (s *Service) Dispatch(ctx context.Context, cmd command.Command) (Result, error) {
	const op = "service.commands.Dispatch"

	rt, err := s.registry.Route(cmd.Type)
	if err != nil {
		return Result{}, fmt.Errorf("%s:%w", op, err)
	}

	if strings.TrimSpace(cmd.TargetID) == "" {
		return Result{}, fmt.Errorf("%s:%w", op, &aggregate.ValidationError{Field: "id", Message: "target id is required"})
	}

	state, err := s.load(ctx, rt, cmd.TargetID)
	if err != nil {
		return Result{}, fmt.Errorf("%s:%w", op, err)
	}

	evts, err := s.registry.Decide(state, cmd)
	if err != nil {
		return Result{}, fmt.Errorf("%s:%w", op, err)
	}

	for i := range evts {
		evts[i].AggregateID = cmd.TargetID
		evts[i].AggregateType = rt.Aggregate
	}

	stored, err := s.store.Append(ctx, cmd.TargetID, state.Base().Version, evts)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return Result{}, fmt.Errorf("%s: %s: %w", op, cmd.TargetID, command.ErrConcurrencyConflict)
		}
		return Result{}, fmt.Errorf("%s:%w", op, err)
	}

	if s.pub != nil {
		s.pub.Publish(ctx, stored...)
	}

	s.log.Debug("command handled",
		slog.String("type", string(cmd.Type)),
		slog.String("aggregate_id", cmd.TargetID),
		slog.Uint64("version", stored[len(stored)-1].Seq),
	)

	return Result{
		AggregateID: cmd.TargetID,
		Version:     stored[len(stored)-1].Seq,
		Events:      stored,
	}, nil
}

// Load rebuilds the current state of an aggregate. Unknown ids yield an
// uninitialized state.
func (s *Service) Load(ctx context.Context, t event.AggregateType, id string) (aggregate.State, error) {
	const op = "service.commands.Load"

	state, err := s.registry.NewState(t)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	history, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if len(history) > 0 && history[0].AggregateType != t {
		return nil, fmt.Errorf("%s: %s is a %s: %w", op, id, history[0].AggregateType, aggregate.ErrNotExists)
	}

	if err := aggregate.Replay(state, history); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return state, nil
}

func (s *Service) load(ctx context.Context, rt aggregate.Route, id string) (aggregate.State, error) {
	state, err := s.Load(ctx, rt.Aggregate, id)
	if err != nil && errors.Is(err, aggregate.ErrNotExists) && rt.Kind == aggregate.KindCreate {
		// The id belongs to another aggregate type.
		return nil, fmt.Errorf("%s: %w", id, aggregate.ErrAlreadyExists)
	}
	return state, err
}
