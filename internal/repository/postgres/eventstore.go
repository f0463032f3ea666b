package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirinyoku/cinema-es/internal/event"
	"github.com/kirinyoku/cinema-es/internal/repository"
)

type EventRepo struct {
	store *Store
	gaps  *gapGuard
}

// Load returns all events of an aggregate.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - id: aggregate id.
//
// Returns:
//   - []event.Event: events in Seq order, empty for unknown ids.
//   - error: any database error.
func (r *EventRepo) Load(ctx context.Context, id string) ([]event.Event, error) {
	const op = "postgres.EventRepo.Load"

	rows, err := r.store.pool.Query(ctx,
		`SELECT position, id, aggregate_id, aggregate_type, seq, type, payload, created_at
		 FROM events WHERE aggregate_id = $1 ORDER BY seq`,
		id,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := scanEvents(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// ReadAll returns up to limit events with a position greater than after.
// The page stops before a position that is not committed yet, so a caller
// that advances its cursor through the result never skips an event.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - after: exclusive lower bound on position.
//   - limit: page size.
//
// Returns:
//   - []event.Event: events in position order.
//   - error: any database error.
func (r *EventRepo) ReadAll(ctx context.Context, after uint64, limit int) ([]event.Event, error) {
	const op = "postgres.EventRepo.ReadAll"

	rows, err := r.store.pool.Query(ctx,
		`SELECT position, id, aggregate_id, aggregate_type, seq, type, payload, created_at
		 FROM events WHERE position > $1 ORDER BY position LIMIT $2`,
		int64(after), limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := scanEvents(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return r.gaps.contiguous(after, out), nil
}

// Append stores evts after expectedVersion in one transaction.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - id: aggregate id.
//   - expectedVersion: Seq of the last event the caller saw, 0 for a new aggregate.
//   - evts: unstamped events.
//
// Returns:
//   - []event.Event: the events as stored, with id, seq, position and timestamp set.
//   - error: repository.ErrVersionConflict if the stream moved on.
func (r *EventRepo) Append(
	ctx context.Context,
	id string,
	expectedVersion uint64,
	evts []event.Event,
) ([]event.Event, error) {
	const op = "postgres.EventRepo.Append"

	ctx, cancel := context.WithTimeout(ctx, r.store.cfg.AppendTimeout)
	defer cancel()

	out := make([]event.Event, len(evts))
	opts := &pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}

	err := r.store.RunTx(ctx, opts, func(ctx context.Context, tx DB) error {
		// Appends to one aggregate queue up here; other aggregates proceed.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, id); err != nil {
			return err
		}

		var current int64
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(seq), 0) FROM events WHERE aggregate_id = $1`,
			id,
		).Scan(&current); err != nil {
			return err
		}

		if uint64(current) != expectedVersion {
			return fmt.Errorf("%s at %d, expected %d: %w", id, current, expectedVersion, repository.ErrVersionConflict)
		}

		now := time.Now().UTC().Truncate(time.Microsecond)
		for i, evt := range evts {
			if evt.ID == uuid.Nil {
				evt.ID = uuid.New()
			}
			evt.AggregateID = id
			evt.Seq = expectedVersion + uint64(i) + 1
			if evt.Timestamp.IsZero() {
				evt.Timestamp = now
			}

			var pos int64
			if err := tx.QueryRow(ctx,
				`INSERT INTO events (id, aggregate_id, aggregate_type, seq, type, payload, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 RETURNING position`,
				evt.ID, evt.AggregateID, string(evt.AggregateType), int64(evt.Seq),
				string(evt.Type), []byte(evt.Payload), evt.Timestamp,
			).Scan(&pos); err != nil {
				return err
			}
			evt.Position = uint64(pos)
			out[i] = evt
		}

		return nil
	})
	if err != nil {
		var pge *pgconn.PgError
		if errors.As(err, &pge) && (pge.Code == codeUniqueViolation || IsRetryable(err)) {
			return nil, fmt.Errorf("%s:%w", op, repository.ErrVersionConflict)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func scanEvents(rows pgx.Rows) ([]event.Event, error) {
	defer rows.Close()

	out := make([]event.Event, 0)
	for rows.Next() {
		var (
			evt           event.Event
			pos, seq      int64
			aggType, kind string
			payload       []byte
		)
		if err := rows.Scan(&pos, &evt.ID, &evt.AggregateID, &aggType, &seq, &kind, &payload, &evt.Timestamp); err != nil {
			return nil, err
		}
		evt.Position = uint64(pos)
		evt.Seq = uint64(seq)
		evt.AggregateType = event.AggregateType(aggType)
		evt.Type = event.Type(kind)
		evt.Payload = payload
		evt.Timestamp = evt.Timestamp.UTC()
		out = append(out, evt)
	}

	return out, rows.Err()
}
