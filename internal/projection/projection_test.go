package projection_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kirinyoku/cinema-es/internal/event"
	"github.com/kirinyoku/cinema-es/internal/projection"
	"github.com/kirinyoku/cinema-es/internal/repository"
	"github.com/kirinyoku/cinema-es/internal/repository/memory"
)

var ts = time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)

func mk(t *testing.T, at event.AggregateType, typ event.Type, id string, seq uint64, payload any) event.Event {
	t.Helper()
	evt, err := event.New(typ, payload)
	if err != nil {
		t.Fatalf("event.New error = %v", err)
	}
	evt.ID = uuid.New()
	evt.AggregateType = at
	evt.AggregateID = id
	evt.Seq = seq
	evt.Position = seq
	evt.Timestamp = ts
	return evt
}

type invalidations struct {
	keys []string
}

func (i *invalidations) Invalidate(_ context.Context, t event.AggregateType, id string) error {
	i.keys = append(i.keys, string(t)+":"+id)
	return nil
}

func projector(p projection.Projection, store *memory.ReadStore, cache projection.Invalidator) *projection.Projector {
	return projection.NewProjector(p, store, cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCinemaProjectionRules(t *testing.T) {
	ctx := context.Background()
	store := memory.NewReadStore()
	cache := &invalidations{}
	p := projector(projection.Cinemas(), store, cache)

	created := mk(t, event.AggregateCinema, event.CinemaCreated, "c1", 1, event.CinemaData{Name: "Rex", Address: "Main 1"})
	if err := p.Handle(ctx, created); err != nil {
		t.Fatalf("create error = %v", err)
	}

	// A second create for the same id never overwrites.
	again := mk(t, event.AggregateCinema, event.CinemaCreated, "c1", 1, event.CinemaData{Name: "Other", Address: "Elsewhere"})
	if err := p.Handle(ctx, again); err != nil {
		t.Fatalf("duplicate create error = %v", err)
	}

	updated := mk(t, event.AggregateCinema, event.CinemaUpdated, "c1", 2, event.CinemaData{Name: "Rex Grand", Address: "Main 1"})
	if err := p.Handle(ctx, updated); err != nil {
		t.Fatalf("update error = %v", err)
	}

	stale := mk(t, event.AggregateCinema, event.CinemaUpdated, "c1", 2, event.CinemaData{Name: "Stale", Address: "Main 1"})
	if err := p.Handle(ctx, stale); err != nil {
		t.Fatalf("stale update error = %v", err)
	}

	row, err := store.Cinema(ctx, "c1")
	if err != nil {
		t.Fatalf("Cinema error = %v", err)
	}
	if row.Name != "Rex Grand" || row.Version != 2 {
		t.Fatalf("row = %+v", row)
	}

	deleted := mk(t, event.AggregateCinema, event.CinemaDeleted, "c1", 3, nil)
	if err := p.Handle(ctx, deleted); err != nil {
		t.Fatalf("delete error = %v", err)
	}
	if _, err := store.Cinema(ctx, "c1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Cinema after delete error = %v, want ErrNotFound", err)
	}

	// Deleting an absent row is a no-op.
	gone := mk(t, event.AggregateCinema, event.CinemaDeleted, "c9", 2, nil)
	if err := p.Handle(ctx, gone); err != nil {
		t.Fatalf("delete missing error = %v", err)
	}

	if len(cache.keys) != 6 || cache.keys[0] != "cinema:c1" {
		t.Fatalf("invalidations = %v", cache.keys)
	}
}

func TestRedeliveredEventIsNoop(t *testing.T) {
	ctx := context.Background()
	store := memory.NewReadStore()
	cache := &invalidations{}
	p := projector(projection.Movies(), store, cache)

	created := mk(t, event.AggregateMovie, event.MovieCreated, "m1", 1, event.MovieData{Title: "Heat", Duration: 170})
	updated := mk(t, event.AggregateMovie, event.MovieUpdated, "m1", 2, event.MovieData{Title: "Heat (1995)", Duration: 170})

	for _, evt := range []event.Event{created, updated, created, updated} {
		if err := p.Handle(ctx, evt); err != nil {
			t.Fatalf("Handle(%s) error = %v", evt.Type, err)
		}
	}

	row, _ := store.Movie(ctx, "m1")
	if row.Title != "Heat (1995)" || row.Version != 2 || !row.CreatedAt.Equal(ts) {
		t.Fatalf("row = %+v", row)
	}
	if len(cache.keys) != 2 {
		t.Fatalf("invalidations = %d, want 2", len(cache.keys))
	}
}

func TestUpdateWithoutRowIsDependencyMissing(t *testing.T) {
	ctx := context.Background()
	store := memory.NewReadStore()
	p := projector(projection.Seats(), store, nil)

	evt := mk(t, event.AggregateSeat, event.SeatUpdated, "s1", 2, event.SeatData{CinemaID: "c1", SeatRow: "A", SeatNumber: 1})
	err := p.Handle(ctx, evt)
	if !errors.Is(err, projection.ErrDependencyMissing) {
		t.Fatalf("Handle error = %v, want ErrDependencyMissing", err)
	}
	var dep *projection.DependencyError
	if !errors.As(err, &dep) || dep.Entity != "seat" || dep.ID != "s1" {
		t.Fatalf("dependency = %+v", dep)
	}
}

func TestEmployeeWaitsForCinema(t *testing.T) {
	ctx := context.Background()
	store := memory.NewReadStore()
	cache := &invalidations{}
	employees := projector(projection.Employees(), store, cache)
	cinemas := projector(projection.Cinemas(), store, nil)

	hire := mk(t, event.AggregateEmployee, event.EmployeeCreated, "e1", 1, event.EmployeeData{UserID: "u1", CinemaID: "Y"})
	err := employees.Handle(ctx, hire)
	var dep *projection.DependencyError
	if !errors.As(err, &dep) || dep.Entity != "cinema" || dep.ID != "Y" {
		t.Fatalf("Handle error = %v, want missing cinema Y", err)
	}
	if _, err := store.Employee(ctx, "e1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("employee row written without cinema")
	}
	if len(cache.keys) != 0 {
		t.Fatalf("cache invalidated for a rolled back apply")
	}

	opened := mk(t, event.AggregateCinema, event.CinemaCreated, "Y", 1, event.CinemaData{Name: "Y", Address: "Y st"})
	if err := cinemas.Handle(ctx, opened); err != nil {
		t.Fatalf("cinema create error = %v", err)
	}

	// The failed attempt must not have been recorded as applied.
	if err := employees.Handle(ctx, hire); err != nil {
		t.Fatalf("retry error = %v", err)
	}
	row, err := store.Employee(ctx, "e1")
	if err != nil {
		t.Fatalf("Employee error = %v", err)
	}
	if row.Status != "ACTIVE" || !row.JoinedAt.Equal(ts) || row.CinemaID != "Y" {
		t.Fatalf("row = %+v", row)
	}

	list, _ := store.EmployeesByCinema(ctx, "Y")
	if len(list) != 1 {
		t.Fatalf("EmployeesByCinema = %d rows, want 1", len(list))
	}
}

func TestShowTimeDenormalizes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewReadStore()
	shows := projector(projection.ShowTimes(), store, nil)

	start := ts.Add(48 * time.Hour)
	evt := mk(t, event.AggregateShowTime, event.ShowTimeCreated, "st1", 1, event.ShowTimeData{MovieID: "m1", CinemaID: "c1", StartTime: start, PriceCents: 1250})

	var dep *projection.DependencyError
	if err := shows.Handle(ctx, evt); !errors.As(err, &dep) || dep.Entity != "movie" {
		t.Fatalf("Handle error = %v, want missing movie", err)
	}

	_ = projector(projection.Movies(), store, nil).Handle(ctx, mk(t, event.AggregateMovie, event.MovieCreated, "m1", 1, event.MovieData{Title: "Alien", Duration: 117}))
	if err := shows.Handle(ctx, evt); !errors.As(err, &dep) || dep.Entity != "cinema" {
		t.Fatalf("Handle error = %v, want missing cinema", err)
	}

	_ = projector(projection.Cinemas(), store, nil).Handle(ctx, mk(t, event.AggregateCinema, event.CinemaCreated, "c1", 1, event.CinemaData{Name: "Nostromo", Address: "Deck 2"}))
	if err := shows.Handle(ctx, evt); err != nil {
		t.Fatalf("Handle error = %v", err)
	}

	row, _ := store.ShowTime(ctx, "st1")
	if row.MovieTitle != "Alien" || row.CinemaName != "Nostromo" || row.PriceCents != 1250 || !row.StartTime.Equal(start) {
		t.Fatalf("row = %+v", row)
	}
}

func TestSeatAndWorkShiftDependencies(t *testing.T) {
	ctx := context.Background()
	store := memory.NewReadStore()

	_ = projector(projection.Cinemas(), store, nil).Handle(ctx, mk(t, event.AggregateCinema, event.CinemaCreated, "c1", 1, event.CinemaData{Name: "Roxy", Address: "Sunset"}))
	seats := projector(projection.Seats(), store, nil)
	if err := seats.Handle(ctx, mk(t, event.AggregateSeat, event.SeatCreated, "s1", 1, event.SeatData{CinemaID: "c1", SeatRow: "B", SeatNumber: 7})); err != nil {
		t.Fatalf("seat error = %v", err)
	}
	seat, _ := store.Seat(ctx, "s1")
	if seat.CinemaName != "Roxy" {
		t.Fatalf("seat = %+v", seat)
	}

	shifts := projector(projection.WorkShifts(), store, nil)
	shift := mk(t, event.AggregateWorkShift, event.WorkShiftCreated, "w1", 1, event.WorkShiftData{EmployeeID: "e1", StartTime: ts, EndTime: ts.Add(8 * time.Hour)})
	if err := shifts.Handle(ctx, shift); !errors.Is(err, projection.ErrDependencyMissing) {
		t.Fatalf("shift error = %v, want ErrDependencyMissing", err)
	}

	_ = projector(projection.Employees(), store, nil).Handle(ctx, mk(t, event.AggregateEmployee, event.EmployeeCreated, "e1", 1, event.EmployeeData{UserID: "u1", CinemaID: "c1"}))
	if err := shifts.Handle(ctx, shift); err != nil {
		t.Fatalf("shift error = %v", err)
	}
	list, _ := store.WorkShiftsByEmployee(ctx, "e1")
	if len(list) != 1 || list[0].ID != "w1" {
		t.Fatalf("WorkShiftsByEmployee = %+v", list)
	}
}

func TestMalformedPayload(t *testing.T) {
	store := memory.NewReadStore()
	evt := event.Event{ID: uuid.New(), AggregateType: event.AggregateCinema, AggregateID: "c1", Seq: 1, Type: event.CinemaCreated, Payload: []byte(`{"name":`)}
	err := projector(projection.Cinemas(), store, nil).Handle(context.Background(), evt)
	if !errors.Is(err, event.ErrMalformed) {
		t.Fatalf("Handle error = %v, want ErrMalformed", err)
	}
}

func TestResetClearsRowsAndLedger(t *testing.T) {
	ctx := context.Background()
	store := memory.NewReadStore()
	p := projector(projection.Cinemas(), store, nil)

	evt := mk(t, event.AggregateCinema, event.CinemaCreated, "c1", 1, event.CinemaData{Name: "A", Address: "B"})
	_ = p.Handle(ctx, evt)
	if err := store.Reset(ctx); err != nil {
		t.Fatalf("Reset error = %v", err)
	}
	if rows, _ := store.ListCinemas(ctx); len(rows) != 0 {
		t.Fatalf("rows after reset = %d", len(rows))
	}
	if err := p.Handle(ctx, evt); err != nil {
		t.Fatalf("Handle after reset error = %v", err)
	}
	if rows, _ := store.ListCinemas(ctx); len(rows) != 1 {
		t.Fatalf("rows after replay = %d, want 1", len(rows))
	}
}
