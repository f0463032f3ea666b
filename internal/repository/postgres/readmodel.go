package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/cinema-es/internal/domain"
	"github.com/kirinyoku/cinema-es/internal/projection"
)

// ReadModelRepo reads and writes the projected tables. Bound to a
// transaction with With it is the projection.Writer handed to projections.
type ReadModelRepo struct {
	store *Store
	pool  *pgxpool.Pool
	db    DB
}

func (r *ReadModelRepo) With(db DB) *ReadModelRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ReadModelRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// RunTx runs fn in a read-committed transaction. Rows of one aggregate are
// only written by the shard that owns it, so no stronger isolation is needed.
func (r *ReadModelRepo) RunTx(ctx context.Context, fn func(ctx context.Context, tx projection.Writer) error) error {
	opts := &pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}
	return r.store.RunTx(ctx, opts, func(ctx context.Context, tx DB) error {
		return fn(ctx, r.With(tx))
	})
}

// Reset empties every projected table and the ledger.
func (r *ReadModelRepo) Reset(ctx context.Context) error {
	const op = "postgres.ReadModelRepo.Reset"

	_, err := r.handle().Exec(ctx,
		`TRUNCATE cinemas, movies, seats, show_times, employees, work_shifts, projection_ledger`)
	return wrapDBErr(op, err)
}

// MarkApplied records (projection, eventID) and reports whether it was new.
func (r *ReadModelRepo) MarkApplied(ctx context.Context, projection string, eventID uuid.UUID) (bool, error) {
	const op = "postgres.ReadModelRepo.MarkApplied"

	tag, err := r.handle().Exec(ctx,
		`INSERT INTO projection_ledger (projection, event_id)
		 VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		projection, eventID,
	)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return tag.RowsAffected() == 1, nil
}

const cinemaCols = `id, name, address, version, updated_at`

func scanCinema(row pgx.Row) (domain.Cinema, error) {
	var (
		c       domain.Cinema
		version int64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Address, &version, &c.UpdatedAt); err != nil {
		return c, err
	}
	c.Version = uint64(version)
	return c, nil
}

// Cinema retrieves a cinema row by its ID.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - id: cinema id.
//
// Returns:
//   - domain.Cinema: the row when found.
//   - error: repository.ErrNotFound if there is no such row.
func (r *ReadModelRepo) Cinema(ctx context.Context, id string) (domain.Cinema, error) {
	const op = "postgres.ReadModelRepo.Cinema"

	c, err := scanCinema(r.handle().QueryRow(ctx,
		`SELECT `+cinemaCols+` FROM cinemas WHERE id = $1`, id))
	if err != nil {
		return c, wrapDBErr(op, err)
	}
	return c, nil
}

func (r *ReadModelRepo) ListCinemas(ctx context.Context) ([]domain.Cinema, error) {
	const op = "postgres.ReadModelRepo.ListCinemas"

	rows, err := r.handle().Query(ctx, `SELECT `+cinemaCols+` FROM cinemas ORDER BY id`)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	out, err := collect(rows, scanCinema)
	return out, wrapDBErr(op, err)
}

func (r *ReadModelRepo) PutCinema(ctx context.Context, c domain.Cinema) error {
	const op = "postgres.ReadModelRepo.PutCinema"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO cinemas (id, name, address, version, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   address = EXCLUDED.address,
		   version = EXCLUDED.version,
		   updated_at = EXCLUDED.updated_at`,
		c.ID, c.Name, c.Address, int64(c.Version), c.UpdatedAt,
	)
	return wrapDBErr(op, err)
}

func (r *ReadModelRepo) DeleteCinema(ctx context.Context, id string) error {
	const op = "postgres.ReadModelRepo.DeleteCinema"

	_, err := r.handle().Exec(ctx, `DELETE FROM cinemas WHERE id = $1`, id)
	return wrapDBErr(op, err)
}

const movieCols = `id, title, description, duration, poster_url, version, created_at`

func scanMovie(row pgx.Row) (domain.Movie, error) {
	var (
		m       domain.Movie
		version int64
	)
	if err := row.Scan(&m.ID, &m.Title, &m.Description, &m.Duration, &m.PosterURL, &version, &m.CreatedAt); err != nil {
		return m, err
	}
	m.Version = uint64(version)
	return m, nil
}

// Movie retrieves a movie row by its ID.
//
// Returns:
//   - domain.Movie: the row when found.
//   - error: repository.ErrNotFound if there is no such row.
func (r *ReadModelRepo) Movie(ctx context.Context, id string) (domain.Movie, error) {
	const op = "postgres.ReadModelRepo.Movie"

	m, err := scanMovie(r.handle().QueryRow(ctx,
		`SELECT `+movieCols+` FROM movies WHERE id = $1`, id))
	if err != nil {
		return m, wrapDBErr(op, err)
	}
	return m, nil
}

func (r *ReadModelRepo) ListMovies(ctx context.Context) ([]domain.Movie, error) {
	const op = "postgres.ReadModelRepo.ListMovies"

	rows, err := r.handle().Query(ctx, `SELECT `+movieCols+` FROM movies ORDER BY id`)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	out, err := collect(rows, scanMovie)
	return out, wrapDBErr(op, err)
}

func (r *ReadModelRepo) PutMovie(ctx context.Context, m domain.Movie) error {
	const op = "postgres.ReadModelRepo.PutMovie"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO movies (id, title, description, duration, poster_url, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   title = EXCLUDED.title,
		   description = EXCLUDED.description,
		   duration = EXCLUDED.duration,
		   poster_url = EXCLUDED.poster_url,
		   version = EXCLUDED.version`,
		m.ID, m.Title, m.Description, m.Duration, m.PosterURL, int64(m.Version), m.CreatedAt,
	)
	return wrapDBErr(op, err)
}

func (r *ReadModelRepo) DeleteMovie(ctx context.Context, id string) error {
	const op = "postgres.ReadModelRepo.DeleteMovie"

	_, err := r.handle().Exec(ctx, `DELETE FROM movies WHERE id = $1`, id)
	return wrapDBErr(op, err)
}

const seatCols = `id, cinema_id, cinema_name, seat_row, seat_number, version`

func scanSeat(row pgx.Row) (domain.Seat, error) {
	var (
		s       domain.Seat
		version int64
	)
	if err := row.Scan(&s.ID, &s.CinemaID, &s.CinemaName, &s.SeatRow, &s.SeatNumber, &version); err != nil {
		return s, err
	}
	s.Version = uint64(version)
	return s, nil
}

func (r *ReadModelRepo) Seat(ctx context.Context, id string) (domain.Seat, error) {
	const op = "postgres.ReadModelRepo.Seat"

	s, err := scanSeat(r.handle().QueryRow(ctx,
		`SELECT `+seatCols+` FROM seats WHERE id = $1`, id))
	if err != nil {
		return s, wrapDBErr(op, err)
	}
	return s, nil
}

func (r *ReadModelRepo) ListSeats(ctx context.Context) ([]domain.Seat, error) {
	const op = "postgres.ReadModelRepo.ListSeats"

	rows, err := r.handle().Query(ctx,
		`SELECT `+seatCols+` FROM seats ORDER BY cinema_id, seat_row, seat_number`)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	out, err := collect(rows, scanSeat)
	return out, wrapDBErr(op, err)
}

func (r *ReadModelRepo) PutSeat(ctx context.Context, s domain.Seat) error {
	const op = "postgres.ReadModelRepo.PutSeat"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO seats (id, cinema_id, cinema_name, seat_row, seat_number, version)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   cinema_id = EXCLUDED.cinema_id,
		   cinema_name = EXCLUDED.cinema_name,
		   seat_row = EXCLUDED.seat_row,
		   seat_number = EXCLUDED.seat_number,
		   version = EXCLUDED.version`,
		s.ID, s.CinemaID, s.CinemaName, s.SeatRow, s.SeatNumber, int64(s.Version),
	)
	return wrapDBErr(op, err)
}

func (r *ReadModelRepo) DeleteSeat(ctx context.Context, id string) error {
	const op = "postgres.ReadModelRepo.DeleteSeat"

	_, err := r.handle().Exec(ctx, `DELETE FROM seats WHERE id = $1`, id)
	return wrapDBErr(op, err)
}

const showTimeCols = `id, movie_id, movie_title, cinema_id, cinema_name, start_time, price_cents, version`

func scanShowTime(row pgx.Row) (domain.ShowTime, error) {
	var (
		s       domain.ShowTime
		version int64
	)
	if err := row.Scan(&s.ID, &s.MovieID, &s.MovieTitle, &s.CinemaID, &s.CinemaName, &s.StartTime, &s.PriceCents, &version); err != nil {
		return s, err
	}
	s.StartTime = s.StartTime.UTC()
	s.Version = uint64(version)
	return s, nil
}

func (r *ReadModelRepo) ShowTime(ctx context.Context, id string) (domain.ShowTime, error) {
	const op = "postgres.ReadModelRepo.ShowTime"

	s, err := scanShowTime(r.handle().QueryRow(ctx,
		`SELECT `+showTimeCols+` FROM show_times WHERE id = $1`, id))
	if err != nil {
		return s, wrapDBErr(op, err)
	}
	return s, nil
}

func (r *ReadModelRepo) ListShowTimes(ctx context.Context) ([]domain.ShowTime, error) {
	const op = "postgres.ReadModelRepo.ListShowTimes"

	rows, err := r.handle().Query(ctx,
		`SELECT `+showTimeCols+` FROM show_times ORDER BY start_time, id`)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	out, err := collect(rows, scanShowTime)
	return out, wrapDBErr(op, err)
}

func (r *ReadModelRepo) PutShowTime(ctx context.Context, s domain.ShowTime) error {
	const op = "postgres.ReadModelRepo.PutShowTime"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO show_times (id, movie_id, movie_title, cinema_id, cinema_name, start_time, price_cents, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   movie_id = EXCLUDED.movie_id,
		   movie_title = EXCLUDED.movie_title,
		   cinema_id = EXCLUDED.cinema_id,
		   cinema_name = EXCLUDED.cinema_name,
		   start_time = EXCLUDED.start_time,
		   price_cents = EXCLUDED.price_cents,
		   version = EXCLUDED.version`,
		s.ID, s.MovieID, s.MovieTitle, s.CinemaID, s.CinemaName, s.StartTime, s.PriceCents, int64(s.Version),
	)
	return wrapDBErr(op, err)
}

func (r *ReadModelRepo) DeleteShowTime(ctx context.Context, id string) error {
	const op = "postgres.ReadModelRepo.DeleteShowTime"

	_, err := r.handle().Exec(ctx, `DELETE FROM show_times WHERE id = $1`, id)
	return wrapDBErr(op, err)
}

const employeeCols = `id, user_id, cinema_id, position, status, joined_at, version`

func scanEmployee(row pgx.Row) (domain.Employee, error) {
	var (
		e       domain.Employee
		version int64
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.CinemaID, &e.Position, &e.Status, &e.JoinedAt, &version); err != nil {
		return e, err
	}
	e.Version = uint64(version)
	return e, nil
}

func (r *ReadModelRepo) Employee(ctx context.Context, id string) (domain.Employee, error) {
	const op = "postgres.ReadModelRepo.Employee"

	e, err := scanEmployee(r.handle().QueryRow(ctx,
		`SELECT `+employeeCols+` FROM employees WHERE id = $1`, id))
	if err != nil {
		return e, wrapDBErr(op, err)
	}
	return e, nil
}

func (r *ReadModelRepo) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	const op = "postgres.ReadModelRepo.ListEmployees"

	rows, err := r.handle().Query(ctx, `SELECT `+employeeCols+` FROM employees ORDER BY id`)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	out, err := collect(rows, scanEmployee)
	return out, wrapDBErr(op, err)
}

// EmployeesByCinema lists the employees assigned to one cinema.
func (r *ReadModelRepo) EmployeesByCinema(ctx context.Context, cinemaID string) ([]domain.Employee, error) {
	const op = "postgres.ReadModelRepo.EmployeesByCinema"

	rows, err := r.handle().Query(ctx,
		`SELECT `+employeeCols+` FROM employees WHERE cinema_id = $1 ORDER BY id`, cinemaID)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	out, err := collect(rows, scanEmployee)
	return out, wrapDBErr(op, err)
}

func (r *ReadModelRepo) PutEmployee(ctx context.Context, e domain.Employee) error {
	const op = "postgres.ReadModelRepo.PutEmployee"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO employees (id, user_id, cinema_id, position, status, joined_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   user_id = EXCLUDED.user_id,
		   cinema_id = EXCLUDED.cinema_id,
		   position = EXCLUDED.position,
		   status = EXCLUDED.status,
		   version = EXCLUDED.version`,
		e.ID, e.UserID, e.CinemaID, e.Position, e.Status, e.JoinedAt, int64(e.Version),
	)
	return wrapDBErr(op, err)
}

func (r *ReadModelRepo) DeleteEmployee(ctx context.Context, id string) error {
	const op = "postgres.ReadModelRepo.DeleteEmployee"

	_, err := r.handle().Exec(ctx, `DELETE FROM employees WHERE id = $1`, id)
	return wrapDBErr(op, err)
}

const workShiftCols = `id, employee_id, shift_name, start_time, end_time, is_attended, version`

func scanWorkShift(row pgx.Row) (domain.WorkShift, error) {
	var (
		w       domain.WorkShift
		version int64
	)
	if err := row.Scan(&w.ID, &w.EmployeeID, &w.ShiftName, &w.StartTime, &w.EndTime, &w.IsAttended, &version); err != nil {
		return w, err
	}
	w.StartTime, w.EndTime = w.StartTime.UTC(), w.EndTime.UTC()
	w.Version = uint64(version)
	return w, nil
}

func (r *ReadModelRepo) WorkShift(ctx context.Context, id string) (domain.WorkShift, error) {
	const op = "postgres.ReadModelRepo.WorkShift"

	w, err := scanWorkShift(r.handle().QueryRow(ctx,
		`SELECT `+workShiftCols+` FROM work_shifts WHERE id = $1`, id))
	if err != nil {
		return w, wrapDBErr(op, err)
	}
	return w, nil
}

func (r *ReadModelRepo) ListWorkShifts(ctx context.Context) ([]domain.WorkShift, error) {
	const op = "postgres.ReadModelRepo.ListWorkShifts"

	rows, err := r.handle().Query(ctx,
		`SELECT `+workShiftCols+` FROM work_shifts ORDER BY start_time, id`)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	out, err := collect(rows, scanWorkShift)
	return out, wrapDBErr(op, err)
}

// WorkShiftsByEmployee lists one employee's shifts by start time.
func (r *ReadModelRepo) WorkShiftsByEmployee(ctx context.Context, employeeID string) ([]domain.WorkShift, error) {
	const op = "postgres.ReadModelRepo.WorkShiftsByEmployee"

	rows, err := r.handle().Query(ctx,
		`SELECT `+workShiftCols+` FROM work_shifts WHERE employee_id = $1 ORDER BY start_time, id`, employeeID)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	out, err := collect(rows, scanWorkShift)
	return out, wrapDBErr(op, err)
}

func (r *ReadModelRepo) PutWorkShift(ctx context.Context, w domain.WorkShift) error {
	const op = "postgres.ReadModelRepo.PutWorkShift"

	_, err := r.handle().Exec(ctx,
		`INSERT INTO work_shifts (id, employee_id, shift_name, start_time, end_time, is_attended, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   employee_id = EXCLUDED.employee_id,
		   shift_name = EXCLUDED.shift_name,
		   start_time = EXCLUDED.start_time,
		   end_time = EXCLUDED.end_time,
		   is_attended = EXCLUDED.is_attended,
		   version = EXCLUDED.version`,
		w.ID, w.EmployeeID, w.ShiftName, w.StartTime, w.EndTime, w.IsAttended, int64(w.Version),
	)
	return wrapDBErr(op, err)
}

func (r *ReadModelRepo) DeleteWorkShift(ctx context.Context, id string) error {
	const op = "postgres.ReadModelRepo.DeleteWorkShift"

	_, err := r.handle().Exec(ctx, `DELETE FROM work_shifts WHERE id = $1`, id)
	return wrapDBErr(op, err)
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}

	return out, rows.Err()
}

var (
	_ projection.Store  = (*ReadModelRepo)(nil)
	_ projection.Reader = (*ReadModelRepo)(nil)
	_ projection.Writer = (*ReadModelRepo)(nil)
)
