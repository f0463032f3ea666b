package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/kirinyoku/cinema-es/internal/domain"
	"github.com/kirinyoku/cinema-es/internal/projection"
	"github.com/kirinyoku/cinema-es/internal/repository"
)

type ledgerKey struct {
	projection string
	eventID    uuid.UUID
}

type tables struct {
	cinemas    map[string]domain.Cinema
	movies     map[string]domain.Movie
	seats      map[string]domain.Seat
	showTimes  map[string]domain.ShowTime
	employees  map[string]domain.Employee
	workShifts map[string]domain.WorkShift
	ledger     map[ledgerKey]struct{}
}

func newTables() *tables {
	return &tables{
		cinemas:    make(map[string]domain.Cinema),
		movies:     make(map[string]domain.Movie),
		seats:      make(map[string]domain.Seat),
		showTimes:  make(map[string]domain.ShowTime),
		employees:  make(map[string]domain.Employee),
		workShifts: make(map[string]domain.WorkShift),
		ledger:     make(map[ledgerKey]struct{}),
	}
}

// ReadStore keeps the read model in maps. A transaction writes to the live
// tables under the store lock and keeps an undo log that is replayed in
// reverse when fn fails.
type ReadStore struct {
	mu sync.RWMutex
	t  *tables
}

func NewReadStore() *ReadStore {
	return &ReadStore{t: newTables()}
}

func (s *ReadStore) RunTx(ctx context.Context, fn func(ctx context.Context, tx projection.Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := &writer{t: s.t}
	committed := false
	defer func() {
		if !committed {
			w.rollback()
		}
	}()

	if err := fn(ctx, w); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *ReadStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.t = newTables()
	return nil
}

func (s *ReadStore) Cinema(_ context.Context, id string) (domain.Cinema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return get(s.t.cinemas, id)
}

func (s *ReadStore) ListCinemas(context.Context) ([]domain.Cinema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return list(s.t.cinemas, nil, byID[domain.Cinema](func(c domain.Cinema) string { return c.ID })), nil
}

func (s *ReadStore) Movie(_ context.Context, id string) (domain.Movie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return get(s.t.movies, id)
}

func (s *ReadStore) ListMovies(context.Context) ([]domain.Movie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return list(s.t.movies, nil, byID[domain.Movie](func(m domain.Movie) string { return m.ID })), nil
}

func (s *ReadStore) Seat(_ context.Context, id string) (domain.Seat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return get(s.t.seats, id)
}

func (s *ReadStore) ListSeats(context.Context) ([]domain.Seat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return list(s.t.seats, nil, byID[domain.Seat](func(st domain.Seat) string { return st.ID })), nil
}

func (s *ReadStore) ShowTime(_ context.Context, id string) (domain.ShowTime, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return get(s.t.showTimes, id)
}

func (s *ReadStore) ListShowTimes(context.Context) ([]domain.ShowTime, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return list(s.t.showTimes, nil, func(a, b domain.ShowTime) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	}), nil
}

func (s *ReadStore) Employee(_ context.Context, id string) (domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return get(s.t.employees, id)
}

func (s *ReadStore) ListEmployees(context.Context) ([]domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return list(s.t.employees, nil, byID[domain.Employee](func(e domain.Employee) string { return e.ID })), nil
}

func (s *ReadStore) EmployeesByCinema(_ context.Context, cinemaID string) ([]domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return list(s.t.employees,
		func(e domain.Employee) bool { return e.CinemaID == cinemaID },
		byID[domain.Employee](func(e domain.Employee) string { return e.ID }),
	), nil
}

func (s *ReadStore) WorkShift(_ context.Context, id string) (domain.WorkShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return get(s.t.workShifts, id)
}

func (s *ReadStore) ListWorkShifts(context.Context) ([]domain.WorkShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return list(s.t.workShifts, nil, byStart), nil
}

func (s *ReadStore) WorkShiftsByEmployee(_ context.Context, employeeID string) ([]domain.WorkShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return list(s.t.workShifts,
		func(w domain.WorkShift) bool { return w.EmployeeID == employeeID },
		byStart,
	), nil
}

func byStart(a, b domain.WorkShift) int {
	if c := a.StartTime.Compare(b.StartTime); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func byID[T any](id func(T) string) func(a, b T) int {
	return func(a, b T) int { return cmp.Compare(id(a), id(b)) }
}

func get[T any](m map[string]T, id string) (T, error) {
	v, ok := m[id]
	if !ok {
		return v, repository.ErrNotFound
	}
	return v, nil
}

func list[T any](m map[string]T, keep func(T) bool, order func(a, b T) int) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, order)
	return out
}

// writer is the projection.Writer of one transaction.
type writer struct {
	t    *tables
	undo []func()
}

func (w *writer) rollback() {
	for i := len(w.undo) - 1; i >= 0; i-- {
		w.undo[i]()
	}
	w.undo = nil
}

// put and del change m and record how to restore the previous entry.
func put[K comparable, V any](w *writer, m map[K]V, k K, v V) {
	remember(w, m, k)
	m[k] = v
}

func del[K comparable, V any](w *writer, m map[K]V, k K) {
	remember(w, m, k)
	delete(m, k)
}

func remember[K comparable, V any](w *writer, m map[K]V, k K) {
	old, had := m[k]
	w.undo = append(w.undo, func() {
		if had {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

func (w *writer) MarkApplied(_ context.Context, projection string, eventID uuid.UUID) (bool, error) {
	k := ledgerKey{projection: projection, eventID: eventID}
	if _, seen := w.t.ledger[k]; seen {
		return false, nil
	}
	put(w, w.t.ledger, k, struct{}{})
	return true, nil
}

func (w *writer) Cinema(_ context.Context, id string) (domain.Cinema, error) {
	return get(w.t.cinemas, id)
}

func (w *writer) PutCinema(_ context.Context, c domain.Cinema) error {
	put(w, w.t.cinemas, c.ID, c)
	return nil
}

func (w *writer) DeleteCinema(_ context.Context, id string) error {
	del(w, w.t.cinemas, id)
	return nil
}

func (w *writer) Movie(_ context.Context, id string) (domain.Movie, error) {
	return get(w.t.movies, id)
}

func (w *writer) PutMovie(_ context.Context, m domain.Movie) error {
	put(w, w.t.movies, m.ID, m)
	return nil
}

func (w *writer) DeleteMovie(_ context.Context, id string) error {
	del(w, w.t.movies, id)
	return nil
}

func (w *writer) Seat(_ context.Context, id string) (domain.Seat, error) {
	return get(w.t.seats, id)
}

func (w *writer) PutSeat(_ context.Context, s domain.Seat) error {
	put(w, w.t.seats, s.ID, s)
	return nil
}

func (w *writer) DeleteSeat(_ context.Context, id string) error {
	del(w, w.t.seats, id)
	return nil
}

func (w *writer) ShowTime(_ context.Context, id string) (domain.ShowTime, error) {
	return get(w.t.showTimes, id)
}

func (w *writer) PutShowTime(_ context.Context, s domain.ShowTime) error {
	put(w, w.t.showTimes, s.ID, s)
	return nil
}

func (w *writer) DeleteShowTime(_ context.Context, id string) error {
	del(w, w.t.showTimes, id)
	return nil
}

func (w *writer) Employee(_ context.Context, id string) (domain.Employee, error) {
	return get(w.t.employees, id)
}

func (w *writer) PutEmployee(_ context.Context, e domain.Employee) error {
	put(w, w.t.employees, e.ID, e)
	return nil
}

func (w *writer) DeleteEmployee(_ context.Context, id string) error {
	del(w, w.t.employees, id)
	return nil
}

func (w *writer) WorkShift(_ context.Context, id string) (domain.WorkShift, error) {
	return get(w.t.workShifts, id)
}

func (w *writer) PutWorkShift(_ context.Context, s domain.WorkShift) error {
	put(w, w.t.workShifts, s.ID, s)
	return nil
}

func (w *writer) DeleteWorkShift(_ context.Context, id string) error {
	del(w, w.t.workShifts, id)
	return nil
}

var (
	_ projection.Store  = (*ReadStore)(nil)
	_ projection.Reader = (*ReadStore)(nil)
	_ projection.Writer = (*writer)(nil)
)
