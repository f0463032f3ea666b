package postgres

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		position       BIGSERIAL PRIMARY KEY,
		id             UUID        NOT NULL UNIQUE,
		aggregate_id   TEXT        NOT NULL,
		aggregate_type TEXT        NOT NULL,
		seq            BIGINT      NOT NULL,
		type           TEXT        NOT NULL,
		payload        JSONB       NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		UNIQUE (aggregate_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS cinemas (
		id         TEXT PRIMARY KEY,
		name       TEXT        NOT NULL,
		address    TEXT        NOT NULL,
		version    BIGINT      NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS movies (
		id          TEXT PRIMARY KEY,
		title       TEXT        NOT NULL,
		description TEXT        NOT NULL DEFAULT '',
		duration    INT         NOT NULL,
		poster_url  TEXT        NOT NULL DEFAULT '',
		version     BIGINT      NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS seats (
		id          TEXT PRIMARY KEY,
		cinema_id   TEXT   NOT NULL,
		cinema_name TEXT   NOT NULL,
		seat_row    TEXT   NOT NULL,
		seat_number INT    NOT NULL,
		version     BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS show_times (
		id          TEXT PRIMARY KEY,
		movie_id    TEXT        NOT NULL,
		movie_title TEXT        NOT NULL,
		cinema_id   TEXT        NOT NULL,
		cinema_name TEXT        NOT NULL,
		start_time  TIMESTAMPTZ NOT NULL,
		price_cents BIGINT      NOT NULL,
		version     BIGINT      NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS employees (
		id        TEXT PRIMARY KEY,
		user_id   TEXT        NOT NULL,
		cinema_id TEXT        NOT NULL,
		position  TEXT        NOT NULL DEFAULT '',
		status    TEXT        NOT NULL,
		joined_at TIMESTAMPTZ NOT NULL,
		version   BIGINT      NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS employees_cinema_id_idx ON employees (cinema_id)`,
	`CREATE TABLE IF NOT EXISTS work_shifts (
		id          TEXT PRIMARY KEY,
		employee_id TEXT        NOT NULL,
		shift_name  TEXT        NOT NULL DEFAULT '',
		start_time  TIMESTAMPTZ NOT NULL,
		end_time    TIMESTAMPTZ NOT NULL,
		is_attended BOOLEAN     NOT NULL DEFAULT FALSE,
		version     BIGINT      NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS work_shifts_employee_id_idx ON work_shifts (employee_id)`,
	`CREATE TABLE IF NOT EXISTS projection_ledger (
		projection TEXT        NOT NULL,
		event_id   UUID        NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (projection, event_id)
	)`,
	`CREATE TABLE IF NOT EXISTS dead_letters (
		seq        BIGSERIAL PRIMARY KEY,
		id         UUID        NOT NULL UNIQUE,
		subscriber TEXT        NOT NULL,
		event      JSONB       NOT NULL,
		error      TEXT        NOT NULL,
		attempts   INT         NOT NULL,
		failed_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS dead_letters_subscriber_idx ON dead_letters (subscriber, seq)`,
	`CREATE TABLE IF NOT EXISTS checkpoints (
		name       TEXT PRIMARY KEY,
		position   BIGINT      NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the tables the service needs when they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	const op = "postgres.Store.Migrate"

	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
	}

	return nil
}
