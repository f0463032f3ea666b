package uow

import (
	"context"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// Runner opens a transaction and hands fn a handle of type T bound to it.
// The transaction commits when fn returns nil and rolls back otherwise.
type Runner[T any] interface {
	RunTx(ctx context.Context, fn func(ctx context.Context, tx T) error) error
}

// UoW represents a unit of work over a transactional handle T.
type UoW[T any] struct {
	runner Runner[T]
}

func New[T any](runner Runner[T]) *UoW[T] {
	return &UoW[T]{runner: runner}
}

// Do runs fn inside the transaction. After a successful commit,
// it executes all after-commit hooks in registration order.
func (u *UoW[T]) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx T, after func(AfterCommit)) error,
) error {
	var hooks []AfterCommit

	err := u.runner.RunTx(ctx, func(ctx context.Context, tx T) error {
		hooks = hooks[:0]
		return fn(ctx, tx, func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
