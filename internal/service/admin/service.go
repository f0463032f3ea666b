package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirinyoku/cinema-es/internal/dispatcher"
	"github.com/kirinyoku/cinema-es/internal/projection"
)

// Dispatcher is the operational surface of the event dispatcher.
type Dispatcher interface {
	Subscribers() []string
	Redrive(ctx context.Context, subscriber string) (int, error)
	Rebuild(ctx context.Context, reset func(ctx context.Context) error, names ...string) error
}

type Resetter interface {
	Reset(ctx context.Context) error
}

type DeadLetters interface {
	List(ctx context.Context, subscriber string) ([]dispatcher.DeadLetter, error)
}

type Service struct {
	disp  Dispatcher
	reads Resetter
	dead  DeadLetters
	log   *slog.Logger
}

func New(disp Dispatcher, reads Resetter, dead DeadLetters, log *slog.Logger) *Service {
	return &Service{
		disp:  disp,
		reads: reads,
		dead:  dead,
		log:   log,
	}
}

// Rebuild wipes the read model and replays the event log into every
// projection. The reset clears all tables, so all projections are rebuilt
// together.
//
// Parameters:
//   - ctx: request-scoped context; cancelling it aborts the replay.
//
// Returns:
//   - []string: names of the rebuilt projections.
//   - error: dispatcher.ErrNotRunning if the dispatcher is stopped.
func (s *Service) Rebuild(ctx context.Context) ([]string, error) {
	const op = "service.admin.Rebuild"

	all := projection.All()
	names := make([]string, 0, len(all))
	for _, p := range all {
		names = append(names, p.Name)
	}

	if err := s.disp.Rebuild(ctx, s.reads.Reset, names...); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.log.Info("read model rebuilt", slog.Any("projections", names))
	return names, nil
}

// DeadLetters lists parked deliveries. An empty subscriber lists all.
func (s *Service) DeadLetters(ctx context.Context, subscriber string) ([]dispatcher.DeadLetter, error) {
	const op = "service.admin.DeadLetters"

	if subscriber != "" {
		if err := s.known(subscriber); err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
	}

	out, err := s.dead.List(ctx, subscriber)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	return out, nil
}

// Redrive re-delivers the dead letters of one subscriber.
func (s *Service) Redrive(ctx context.Context, subscriber string) (int, error) {
	const op = "service.admin.Redrive"

	n, err := s.disp.Redrive(ctx, subscriber)
	if err != nil {
		return n, fmt.Errorf("%s:%w", op, err)
	}

	s.log.Info("dead letters redriven", slog.String("subscriber", subscriber), slog.Int("delivered", n))
	return n, nil
}

func (s *Service) Subscribers() []string {
	return s.disp.Subscribers()
}

func (s *Service) known(name string) error {
	for _, n := range s.disp.Subscribers() {
		if n == name {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", dispatcher.ErrUnknownSubscriber, name)
}
