package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/kirinyoku/cinema-es/internal/domain"
	"github.com/kirinyoku/cinema-es/internal/projection"
	"github.com/kirinyoku/cinema-es/internal/repository"
)

func TestReadStoreRollsBackFailedTx(t *testing.T) {
	ctx := context.Background()
	s := NewReadStore()

	evt1 := uuid.New()
	err := s.RunTx(ctx, func(ctx context.Context, tx projection.Writer) error {
		if _, err := tx.MarkApplied(ctx, "cinemas", evt1); err != nil {
			return err
		}
		return tx.PutCinema(ctx, domain.Cinema{ID: "c1", Name: "Rex", Version: 1})
	})
	if err != nil {
		t.Fatalf("RunTx error = %v", err)
	}

	boom := errors.New("boom")
	evt2 := uuid.New()
	err = s.RunTx(ctx, func(ctx context.Context, tx projection.Writer) error {
		if _, err := tx.MarkApplied(ctx, "cinemas", evt2); err != nil {
			return err
		}
		if err := tx.PutCinema(ctx, domain.Cinema{ID: "c1", Name: "Rex Grand", Version: 2}); err != nil {
			return err
		}
		if err := tx.PutCinema(ctx, domain.Cinema{ID: "c2", Name: "Odeon", Version: 1}); err != nil {
			return err
		}
		if err := tx.DeleteCinema(ctx, "c1"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunTx error = %v, want boom", err)
	}

	c1, err := s.Cinema(ctx, "c1")
	if err != nil || c1.Name != "Rex" || c1.Version != 1 {
		t.Fatalf("c1 = %+v, %v; want the committed row", c1, err)
	}
	if _, err := s.Cinema(ctx, "c2"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("c2 error = %v, want ErrNotFound", err)
	}

	// The ledger entry of the failed transaction is gone, the committed one stays.
	err = s.RunTx(ctx, func(ctx context.Context, tx projection.Writer) error {
		if fresh, _ := tx.MarkApplied(ctx, "cinemas", evt1); fresh {
			t.Error("committed event marked fresh")
		}
		if fresh, _ := tx.MarkApplied(ctx, "cinemas", evt2); !fresh {
			t.Error("rolled back event marked applied")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunTx error = %v", err)
	}
}

func TestReadStoreRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := NewReadStore()

	func() {
		defer func() { _ = recover() }()
		_ = s.RunTx(ctx, func(ctx context.Context, tx projection.Writer) error {
			_ = tx.PutSeat(ctx, domain.Seat{ID: "s1"})
			panic("projection bug")
		})
	}()

	if _, err := s.Seat(ctx, "s1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("s1 error = %v, want ErrNotFound", err)
	}
}
