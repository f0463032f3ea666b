package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirinyoku/cinema-es/internal/dispatcher"
	"github.com/kirinyoku/cinema-es/internal/repository"
)

type DeadLetterRepo struct {
	pool *pgxpool.Pool
}

func (r *DeadLetterRepo) Add(ctx context.Context, dl dispatcher.DeadLetter) error {
	const op = "postgres.DeadLetterRepo.Add"

	payload, err := json.Marshal(dl.Event)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO dead_letters (id, subscriber, event, error, attempts, failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		dl.ID, dl.Subscriber, payload, dl.Error, dl.Attempts, dl.FailedAt,
	)
	return wrapDBErr(op, err)
}

// List returns dead letters in the order they were recorded. An empty
// subscriber lists every letter.
func (r *DeadLetterRepo) List(ctx context.Context, subscriber string) ([]dispatcher.DeadLetter, error) {
	const op = "postgres.DeadLetterRepo.List"

	rows, err := r.pool.Query(ctx,
		`SELECT id, subscriber, event, error, attempts, failed_at
		 FROM dead_letters
		 WHERE $1 = '' OR subscriber = $1
		 ORDER BY seq`,
		subscriber,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	out := make([]dispatcher.DeadLetter, 0)
	for rows.Next() {
		var (
			dl  dispatcher.DeadLetter
			raw []byte
		)
		if err := rows.Scan(&dl.ID, &dl.Subscriber, &raw, &dl.Error, &dl.Attempts, &dl.FailedAt); err != nil {
			return nil, wrapDBErr(op, err)
		}
		if err := json.Unmarshal(raw, &dl.Event); err != nil {
			return nil, fmt.Errorf("%s: decode event of %s: %w", op, dl.ID, err)
		}
		out = append(out, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *DeadLetterRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "postgres.DeadLetterRepo.Delete"

	tag, err := r.pool.Exec(ctx, `DELETE FROM dead_letters WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	return nil
}

func (r *DeadLetterRepo) Clear(ctx context.Context, subscriber string) error {
	const op = "postgres.DeadLetterRepo.Clear"

	_, err := r.pool.Exec(ctx, `DELETE FROM dead_letters WHERE subscriber = $1`, subscriber)
	return wrapDBErr(op, err)
}

type CheckpointRepo struct {
	pool *pgxpool.Pool
}

// Load returns the saved position, 0 when nothing was saved yet.
func (r *CheckpointRepo) Load(ctx context.Context, name string) (uint64, error) {
	const op = "postgres.CheckpointRepo.Load"

	var pos int64
	err := r.pool.QueryRow(ctx, `SELECT position FROM checkpoints WHERE name = $1`, name).Scan(&pos)
	if err != nil {
		err = translateDBErr(err)
		if err == repository.ErrNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return uint64(pos), nil
}

func (r *CheckpointRepo) Save(ctx context.Context, name string, position uint64) error {
	const op = "postgres.CheckpointRepo.Save"

	_, err := r.pool.Exec(ctx,
		`INSERT INTO checkpoints (name, position, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (name) DO UPDATE SET position = EXCLUDED.position, updated_at = now()`,
		name, int64(position),
	)
	return wrapDBErr(op, err)
}

var (
	_ dispatcher.DeadLetterStore = (*DeadLetterRepo)(nil)
	_ dispatcher.CheckpointStore = (*CheckpointRepo)(nil)
	_ dispatcher.EventLog        = (*EventRepo)(nil)
)
