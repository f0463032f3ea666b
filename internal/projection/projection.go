// Package projection turns committed events into denormalized read rows.
package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kirinyoku/cinema-es/internal/domain"
	"github.com/kirinyoku/cinema-es/internal/event"
	"github.com/kirinyoku/cinema-es/internal/repository"
	"github.com/kirinyoku/cinema-es/internal/uow"
)

// ErrDependencyMissing means a row the event depends on is not there yet.
// It is transient: the owning event may still be in flight.
var ErrDependencyMissing = errors.New("dependency missing")

type DependencyError struct {
	Entity string
	ID     string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s %s not projected yet", e.Entity, e.ID)
}

func (e *DependencyError) Unwrap() error { return ErrDependencyMissing }

func missing(entity, id string) error {
	return &DependencyError{Entity: entity, ID: id}
}

// Writer is the transactional read-model handle projections write through.
// Getters return repository.ErrNotFound for absent rows; deletes of absent
// rows succeed.
type Writer interface {
	// MarkApplied records that projection handled eventID. It reports false
	// when the pair was already recorded.
	MarkApplied(ctx context.Context, projection string, eventID uuid.UUID) (bool, error)

	Cinema(ctx context.Context, id string) (domain.Cinema, error)
	PutCinema(ctx context.Context, c domain.Cinema) error
	DeleteCinema(ctx context.Context, id string) error

	Movie(ctx context.Context, id string) (domain.Movie, error)
	PutMovie(ctx context.Context, m domain.Movie) error
	DeleteMovie(ctx context.Context, id string) error

	Seat(ctx context.Context, id string) (domain.Seat, error)
	PutSeat(ctx context.Context, s domain.Seat) error
	DeleteSeat(ctx context.Context, id string) error

	ShowTime(ctx context.Context, id string) (domain.ShowTime, error)
	PutShowTime(ctx context.Context, s domain.ShowTime) error
	DeleteShowTime(ctx context.Context, id string) error

	Employee(ctx context.Context, id string) (domain.Employee, error)
	PutEmployee(ctx context.Context, e domain.Employee) error
	DeleteEmployee(ctx context.Context, id string) error

	WorkShift(ctx context.Context, id string) (domain.WorkShift, error)
	PutWorkShift(ctx context.Context, w domain.WorkShift) error
	DeleteWorkShift(ctx context.Context, id string) error
}

// Reader is the query-side view of the read model.
type Reader interface {
	Cinema(ctx context.Context, id string) (domain.Cinema, error)
	ListCinemas(ctx context.Context) ([]domain.Cinema, error)

	Movie(ctx context.Context, id string) (domain.Movie, error)
	ListMovies(ctx context.Context) ([]domain.Movie, error)

	Seat(ctx context.Context, id string) (domain.Seat, error)
	ListSeats(ctx context.Context) ([]domain.Seat, error)

	ShowTime(ctx context.Context, id string) (domain.ShowTime, error)
	ListShowTimes(ctx context.Context) ([]domain.ShowTime, error)

	Employee(ctx context.Context, id string) (domain.Employee, error)
	ListEmployees(ctx context.Context) ([]domain.Employee, error)
	EmployeesByCinema(ctx context.Context, cinemaID string) ([]domain.Employee, error)

	WorkShift(ctx context.Context, id string) (domain.WorkShift, error)
	ListWorkShifts(ctx context.Context) ([]domain.WorkShift, error)
	WorkShiftsByEmployee(ctx context.Context, employeeID string) ([]domain.WorkShift, error)
}

// Store is a read-model backend: transactional writes plus a full reset used
// by rebuilds.
type Store interface {
	uow.Runner[Writer]
	Reset(ctx context.Context) error
}

// Invalidator drops cached query results for a read row.
type Invalidator interface {
	Invalidate(ctx context.Context, t event.AggregateType, id string) error
}

// Projection is a named reaction to events of the listed aggregate types.
type Projection struct {
	Name  string
	Types []event.AggregateType
	Apply func(ctx context.Context, w Writer, evt event.Event) error
}

// All returns the six read-model projections.
func All() []Projection {
	return []Projection{
		Cinemas(),
		Movies(),
		Seats(),
		ShowTimes(),
		Employees(),
		WorkShifts(),
	}
}

// Projector runs a Projection exactly once per event id inside a unit of work.
type Projector struct {
	projection Projection
	uow        *uow.UoW[Writer]
	cache      Invalidator
	log        *slog.Logger
}

// NewProjector wires p to store. cache may be nil.
func NewProjector(p Projection, store uow.Runner[Writer], cache Invalidator, log *slog.Logger) *Projector {
	return &Projector{
		projection: p,
		uow:        uow.New(store),
		cache:      cache,
		log:        log,
	}
}

func (p *Projector) Name() string { return p.projection.Name }

func (p *Projector) Types() []event.AggregateType { return p.projection.Types }

// Handle applies evt. Redelivered events are absorbed by the ledger.
func (p *Projector) Handle(ctx context.Context, evt event.Event) error {
	op := "projection." + p.projection.Name + ".Handle"

	err := p.uow.Do(ctx, func(ctx context.Context, w Writer, after func(uow.AfterCommit)) error {
		fresh, err := w.MarkApplied(ctx, p.projection.Name, evt.ID)
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}

		if err := p.projection.Apply(ctx, w, evt); err != nil {
			return err
		}

		if p.cache != nil {
			after(func(ctx context.Context) {
				if err := p.cache.Invalidate(ctx, evt.AggregateType, evt.AggregateID); err != nil {
					p.log.Warn("cache invalidate failed",
						slog.String("projection", p.projection.Name),
						slog.String("aggregate_id", evt.AggregateID),
						slog.Any("err", err),
					)
				}
			})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// lookup distinguishes an absent row from a storage failure.
func lookup[T any](ctx context.Context, get func(context.Context, string) (T, error), id string) (T, bool, error) {
	row, err := get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return row, false, nil
	}
	if err != nil {
		return row, false, err
	}
	return row, true, nil
}
