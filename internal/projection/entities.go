package projection

import (
	"context"

	"github.com/kirinyoku/cinema-es/internal/domain"
	"github.com/kirinyoku/cinema-es/internal/event"
)

// upsert carries the created/updated rules every entity shares: a create
// never overwrites an existing row, an update needs the row and skips stale
// or repeated sequence numbers.
func upsert[R any](
	ctx context.Context,
	evt event.Event,
	entity string,
	get func(context.Context, string) (R, error),
	put func(context.Context, R) error,
	version func(R) uint64,
	build func(prev R) (R, error),
) error {
	row, ok, err := lookup(ctx, get, evt.AggregateID)
	if err != nil {
		return err
	}

	if isCreate(evt.Type) {
		if ok {
			return nil
		}
	} else {
		if !ok {
			return missing(entity, evt.AggregateID)
		}
		if evt.Seq <= version(row) {
			return nil
		}
	}

	next, err := build(row)
	if err != nil {
		return err
	}
	return put(ctx, next)
}

func isCreate(t event.Type) bool {
	switch t {
	case event.CinemaCreated, event.MovieCreated, event.SeatCreated,
		event.ShowTimeCreated, event.EmployeeCreated, event.WorkShiftCreated:
		return true
	}
	return false
}

func Cinemas() Projection {
	return Projection{
		Name:  "cinemas",
		Types: []event.AggregateType{event.AggregateCinema},
		Apply: applyCinema,
	}
}

func applyCinema(ctx context.Context, w Writer, evt event.Event) error {
	switch evt.Type {
	case event.CinemaCreated, event.CinemaUpdated:
		return upsert(ctx, evt, "cinema", w.Cinema, w.PutCinema,
			func(c domain.Cinema) uint64 { return c.Version },
			func(domain.Cinema) (domain.Cinema, error) {
				d, err := event.Decode[event.CinemaData](evt)
				if err != nil {
					return domain.Cinema{}, err
				}
				return domain.Cinema{
					ID:        evt.AggregateID,
					Name:      d.Name,
					Address:   d.Address,
					Version:   evt.Seq,
					UpdatedAt: evt.Timestamp,
				}, nil
			})
	case event.CinemaDeleted:
		return w.DeleteCinema(ctx, evt.AggregateID)
	}
	return nil
}

func Movies() Projection {
	return Projection{
		Name:  "movies",
		Types: []event.AggregateType{event.AggregateMovie},
		Apply: applyMovie,
	}
}

func applyMovie(ctx context.Context, w Writer, evt event.Event) error {
	switch evt.Type {
	case event.MovieCreated, event.MovieUpdated:
		return upsert(ctx, evt, "movie", w.Movie, w.PutMovie,
			func(m domain.Movie) uint64 { return m.Version },
			func(prev domain.Movie) (domain.Movie, error) {
				d, err := event.Decode[event.MovieData](evt)
				if err != nil {
					return domain.Movie{}, err
				}
				created := prev.CreatedAt
				if evt.Type == event.MovieCreated {
					created = evt.Timestamp
				}
				return domain.Movie{
					ID:          evt.AggregateID,
					Title:       d.Title,
					Description: d.Description,
					Duration:    d.Duration,
					PosterURL:   d.PosterURL,
					Version:     evt.Seq,
					CreatedAt:   created,
				}, nil
			})
	case event.MovieDeleted:
		return w.DeleteMovie(ctx, evt.AggregateID)
	}
	return nil
}

func Seats() Projection {
	return Projection{
		Name:  "seats",
		Types: []event.AggregateType{event.AggregateSeat},
		Apply: applySeat,
	}
}

func applySeat(ctx context.Context, w Writer, evt event.Event) error {
	switch evt.Type {
	case event.SeatCreated, event.SeatUpdated:
		return upsert(ctx, evt, "seat", w.Seat, w.PutSeat,
			func(s domain.Seat) uint64 { return s.Version },
			func(domain.Seat) (domain.Seat, error) {
				d, err := event.Decode[event.SeatData](evt)
				if err != nil {
					return domain.Seat{}, err
				}
				cinema, ok, err := lookup(ctx, w.Cinema, d.CinemaID)
				if err != nil {
					return domain.Seat{}, err
				}
				if !ok {
					return domain.Seat{}, missing("cinema", d.CinemaID)
				}
				return domain.Seat{
					ID:         evt.AggregateID,
					CinemaID:   d.CinemaID,
					CinemaName: cinema.Name,
					SeatRow:    d.SeatRow,
					SeatNumber: d.SeatNumber,
					Version:    evt.Seq,
				}, nil
			})
	case event.SeatDeleted:
		return w.DeleteSeat(ctx, evt.AggregateID)
	}
	return nil
}

func ShowTimes() Projection {
	return Projection{
		Name:  "showtimes",
		Types: []event.AggregateType{event.AggregateShowTime},
		Apply: applyShowTime,
	}
}

func applyShowTime(ctx context.Context, w Writer, evt event.Event) error {
	switch evt.Type {
	case event.ShowTimeCreated, event.ShowTimeUpdated:
		return upsert(ctx, evt, "showtime", w.ShowTime, w.PutShowTime,
			func(s domain.ShowTime) uint64 { return s.Version },
			func(domain.ShowTime) (domain.ShowTime, error) {
				d, err := event.Decode[event.ShowTimeData](evt)
				if err != nil {
					return domain.ShowTime{}, err
				}
				movie, ok, err := lookup(ctx, w.Movie, d.MovieID)
				if err != nil {
					return domain.ShowTime{}, err
				}
				if !ok {
					return domain.ShowTime{}, missing("movie", d.MovieID)
				}
				cinema, ok, err := lookup(ctx, w.Cinema, d.CinemaID)
				if err != nil {
					return domain.ShowTime{}, err
				}
				if !ok {
					return domain.ShowTime{}, missing("cinema", d.CinemaID)
				}
				return domain.ShowTime{
					ID:         evt.AggregateID,
					MovieID:    d.MovieID,
					MovieTitle: movie.Title,
					CinemaID:   d.CinemaID,
					CinemaName: cinema.Name,
					StartTime:  d.StartTime,
					PriceCents: d.PriceCents,
					Version:    evt.Seq,
				}, nil
			})
	case event.ShowTimeDeleted:
		return w.DeleteShowTime(ctx, evt.AggregateID)
	}
	return nil
}

func Employees() Projection {
	return Projection{
		Name:  "employees",
		Types: []event.AggregateType{event.AggregateEmployee},
		Apply: applyEmployee,
	}
}

func applyEmployee(ctx context.Context, w Writer, evt event.Event) error {
	switch evt.Type {
	case event.EmployeeCreated, event.EmployeeUpdated:
		return upsert(ctx, evt, "employee", w.Employee, w.PutEmployee,
			func(e domain.Employee) uint64 { return e.Version },
			func(prev domain.Employee) (domain.Employee, error) {
				d, err := event.Decode[event.EmployeeData](evt)
				if err != nil {
					return domain.Employee{}, err
				}
				if _, ok, err := lookup(ctx, w.Cinema, d.CinemaID); err != nil {
					return domain.Employee{}, err
				} else if !ok {
					return domain.Employee{}, missing("cinema", d.CinemaID)
				}
				status := d.Status
				if status == "" {
					status = domain.EmployeeActive
				}
				joined := prev.JoinedAt
				if evt.Type == event.EmployeeCreated {
					joined = evt.Timestamp
				}
				return domain.Employee{
					ID:       evt.AggregateID,
					UserID:   d.UserID,
					CinemaID: d.CinemaID,
					Position: d.Position,
					Status:   status,
					JoinedAt: joined,
					Version:  evt.Seq,
				}, nil
			})
	case event.EmployeeDeleted:
		return w.DeleteEmployee(ctx, evt.AggregateID)
	}
	return nil
}

func WorkShifts() Projection {
	return Projection{
		Name:  "workshifts",
		Types: []event.AggregateType{event.AggregateWorkShift},
		Apply: applyWorkShift,
	}
}

func applyWorkShift(ctx context.Context, w Writer, evt event.Event) error {
	switch evt.Type {
	case event.WorkShiftCreated, event.WorkShiftUpdated:
		return upsert(ctx, evt, "workshift", w.WorkShift, w.PutWorkShift,
			func(s domain.WorkShift) uint64 { return s.Version },
			func(domain.WorkShift) (domain.WorkShift, error) {
				d, err := event.Decode[event.WorkShiftData](evt)
				if err != nil {
					return domain.WorkShift{}, err
				}
				if _, ok, err := lookup(ctx, w.Employee, d.EmployeeID); err != nil {
					return domain.WorkShift{}, err
				} else if !ok {
					return domain.WorkShift{}, missing("employee", d.EmployeeID)
				}
				return domain.WorkShift{
					ID:         evt.AggregateID,
					EmployeeID: d.EmployeeID,
					ShiftName:  d.ShiftName,
					StartTime:  d.StartTime,
					EndTime:    d.EndTime,
					IsAttended: d.IsAttended,
					Version:    evt.Seq,
				}, nil
			})
	case event.WorkShiftDeleted:
		return w.DeleteWorkShift(ctx, evt.AggregateID)
	}
	return nil
}
