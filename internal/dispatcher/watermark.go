package dispatcher

import "sync"

// watermark tracks the highest position below which every delivery settled.
// Positions are tracked in the order the feeder enqueues them.
type watermark struct {
	mu        sync.Mutex
	queue     []uint64
	pending   map[uint64]int
	committed uint64
}

func newWatermark(start uint64) *watermark {
	return &watermark{
		pending:   make(map[uint64]int),
		committed: start,
	}
}

func (w *watermark) track(pos uint64, deliveries int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.queue = append(w.queue, pos)
	w.pending[pos] = deliveries
	w.advance()
}

func (w *watermark) settle(pos uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if n, ok := w.pending[pos]; ok && n > 0 {
		w.pending[pos] = n - 1
	}
	w.advance()
}

func (w *watermark) position() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.committed
}

func (w *watermark) advance() {
	for len(w.queue) > 0 {
		head := w.queue[0]
		if w.pending[head] > 0 {
			return
		}
		delete(w.pending, head)
		w.queue = w.queue[1:]
		w.committed = head
	}
}
