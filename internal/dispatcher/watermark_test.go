package dispatcher

import "testing"

func TestWatermarkWaitsForOldestPosition(t *testing.T) {
	w := newWatermark(10)

	w.track(11, 2)
	w.track(12, 1)
	w.track(13, 0)

	w.settle(12)
	if got := w.position(); got != 10 {
		t.Fatalf("position = %d, want 10", got)
	}

	w.settle(11)
	if got := w.position(); got != 10 {
		t.Fatalf("position after one of two = %d, want 10", got)
	}

	w.settle(11)
	if got := w.position(); got != 13 {
		t.Fatalf("position = %d, want 13", got)
	}
}

func TestWatermarkIgnoresUnknownPositions(t *testing.T) {
	w := newWatermark(0)
	w.settle(42)
	w.track(1, 1)
	w.settle(1)
	w.settle(1)
	if got := w.position(); got != 1 {
		t.Fatalf("position = %d, want 1", got)
	}
}
