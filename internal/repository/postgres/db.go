package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is what repositories run statements against: the pool or an open
// transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Config struct {
	// AppendTimeout bounds one append transaction. It must stay well below
	// GapTimeout, or a slow append could be skipped by readers of the log.
	AppendTimeout time.Duration
	// GapTimeout is how long ReadAll waits for a missing position to commit
	// before treating it as rolled back.
	GapTimeout time.Duration
	// TxRetries is how many times a transaction is retried after a
	// serialization failure or deadlock.
	TxRetries uint
}

func (c Config) withDefaults() Config {
	if c.AppendTimeout <= 0 {
		c.AppendTimeout = 5 * time.Second
	}
	if c.GapTimeout <= 0 {
		c.GapTimeout = 4 * c.AppendTimeout
	}
	if c.TxRetries == 0 {
		c.TxRetries = 3
	}
	return c
}

type Store struct {
	pool   *pgxpool.Pool
	cfg    Config
	events *EventRepo
}

func NewStore(pool *pgxpool.Pool, cfg Config) *Store {
	cfg = cfg.withDefaults()
	s := &Store{pool: pool, cfg: cfg}
	s.events = &EventRepo{store: s, gaps: newGapGuard(cfg.GapTimeout)}
	return s
}

// RunTx runs fn inside a transaction, starting over on serialization
// failures and deadlocks. fn may therefore run more than once. Without opts
// the transaction is serializable and read-write.
func (s *Store) RunTx(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx DB) error,
) error {
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite}
	if opts != nil {
		txOpts = *opts
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.runTxOnce(ctx, txOpts, fn)
		if err != nil && !IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(s.cfg.TxRetries+1),
	)
	return err
}

func (s *Store) runTxOnce(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, tx DB) error) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) Events() *EventRepo           { return s.events }
func (s *Store) ReadModel() *ReadModelRepo    { return &ReadModelRepo{store: s, pool: s.pool} }
func (s *Store) DeadLetters() *DeadLetterRepo { return &DeadLetterRepo{pool: s.pool} }
func (s *Store) Checkpoints() *CheckpointRepo { return &CheckpointRepo{pool: s.pool} }
