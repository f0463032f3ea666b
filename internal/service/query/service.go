package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/cinema-es/internal/domain"
	"github.com/kirinyoku/cinema-es/internal/event"
	"github.com/kirinyoku/cinema-es/internal/projection"
	"github.com/kirinyoku/cinema-es/internal/repository"
	redisrepo "github.com/kirinyoku/cinema-es/internal/repository/redis"
)

type Config struct {
	EntityTTL time.Duration
}

// Service answers reads from the projection store. It never touches the
// event log, so results may lag behind accepted commands.
type Service struct {
	reader projection.Reader
	cache  *redisrepo.Cache
	cfg    Config
}

// New builds the query gateway. cache may be nil.
func New(reader projection.Reader, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.EntityTTL <= 0 {
		cfg.EntityTTL = 60 * time.Second
	}

	return &Service{
		reader: reader,
		cache:  cache,
		cfg:    cfg,
	}
}

// byID loads one row through the read-through cache when one is configured.
func byID[T any](
	ctx context.Context,
	s *Service,
	op string,
	t event.AggregateType,
	id string,
	load func(context.Context, string) (T, error),
) (T, error) {
	loader := func(ctx context.Context) (T, error) {
		v, err := load(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return v, ErrNotFound
		}
		return v, err
	}

	var (
		v   T
		err error
	)
	if s.cache != nil {
		v, err = redisrepo.Fetch(ctx, s.cache, t, id, s.cfg.EntityTTL, loader)
	} else {
		v, err = loader(ctx)
	}
	if err != nil {
		return v, fmt.Errorf("%s: %s %s: %w", op, t, id, err)
	}

	return v, nil
}

func all[T any](ctx context.Context, op string, load func(context.Context) ([]T, error)) ([]T, error) {
	rows, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

// Cinema returns one cinema or query.ErrNotFound.
func (s *Service) Cinema(ctx context.Context, id string) (domain.Cinema, error) {
	return byID(ctx, s, "service.query.Cinema", event.AggregateCinema, id, s.reader.Cinema)
}

func (s *Service) ListCinemas(ctx context.Context) ([]domain.Cinema, error) {
	return all(ctx, "service.query.ListCinemas", s.reader.ListCinemas)
}

func (s *Service) Movie(ctx context.Context, id string) (domain.Movie, error) {
	return byID(ctx, s, "service.query.Movie", event.AggregateMovie, id, s.reader.Movie)
}

func (s *Service) ListMovies(ctx context.Context) ([]domain.Movie, error) {
	return all(ctx, "service.query.ListMovies", s.reader.ListMovies)
}

func (s *Service) Seat(ctx context.Context, id string) (domain.Seat, error) {
	return byID(ctx, s, "service.query.Seat", event.AggregateSeat, id, s.reader.Seat)
}

func (s *Service) ListSeats(ctx context.Context) ([]domain.Seat, error) {
	return all(ctx, "service.query.ListSeats", s.reader.ListSeats)
}

func (s *Service) ShowTime(ctx context.Context, id string) (domain.ShowTime, error) {
	return byID(ctx, s, "service.query.ShowTime", event.AggregateShowTime, id, s.reader.ShowTime)
}

// ListShowTimes returns every showtime ordered by start time.
func (s *Service) ListShowTimes(ctx context.Context) ([]domain.ShowTime, error) {
	return all(ctx, "service.query.ListShowTimes", s.reader.ListShowTimes)
}

func (s *Service) Employee(ctx context.Context, id string) (domain.Employee, error) {
	return byID(ctx, s, "service.query.Employee", event.AggregateEmployee, id, s.reader.Employee)
}

func (s *Service) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	return all(ctx, "service.query.ListEmployees", s.reader.ListEmployees)
}

// EmployeesByCinema lists the staff of one cinema. An unknown cinema yields
// an empty list.
func (s *Service) EmployeesByCinema(ctx context.Context, cinemaID string) ([]domain.Employee, error) {
	return all(ctx, "service.query.EmployeesByCinema", func(ctx context.Context) ([]domain.Employee, error) {
		return s.reader.EmployeesByCinema(ctx, cinemaID)
	})
}

func (s *Service) WorkShift(ctx context.Context, id string) (domain.WorkShift, error) {
	return byID(ctx, s, "service.query.WorkShift", event.AggregateWorkShift, id, s.reader.WorkShift)
}

func (s *Service) ListWorkShifts(ctx context.Context) ([]domain.WorkShift, error) {
	return all(ctx, "service.query.ListWorkShifts", s.reader.ListWorkShifts)
}

func (s *Service) WorkShiftsByEmployee(ctx context.Context, employeeID string) ([]domain.WorkShift, error) {
	return all(ctx, "service.query.WorkShiftsByEmployee", func(ctx context.Context) ([]domain.WorkShift, error) {
		return s.reader.WorkShiftsByEmployee(ctx, employeeID)
	})
}
