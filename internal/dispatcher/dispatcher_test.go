package dispatcher_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirinyoku/cinema-es/internal/dispatcher"
	"github.com/kirinyoku/cinema-es/internal/event"
	"github.com/kirinyoku/cinema-es/internal/repository/memory"
)

var errBroken = errors.New("broken")

type recorder struct {
	name  string
	types []event.AggregateType
	fail  func(evt event.Event) error

	mu    sync.Mutex
	seen  map[string][]uint64
	calls atomic.Int64
}

func newRecorder(name string, types ...event.AggregateType) *recorder {
	return &recorder{name: name, types: types, seen: make(map[string][]uint64)}
}

func (r *recorder) Name() string                 { return r.name }
func (r *recorder) Types() []event.AggregateType { return r.types }

func (r *recorder) Handle(_ context.Context, evt event.Event) error {
	r.calls.Add(1)
	if r.fail != nil {
		if err := r.fail(evt); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[evt.AggregateID] = append(r.seen[evt.AggregateID], evt.Seq)
	return nil
}

func (r *recorder) seqs(id string) []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.seen[id])
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.seen {
		n += len(s)
	}
	return n
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = make(map[string][]uint64)
}

type harness struct {
	events *memory.EventStore
	dead   *memory.DeadLetterStore
	cps    *memory.CheckpointStore
}

func newHarness() *harness {
	return &harness{
		events: memory.NewEventStore(),
		dead:   memory.NewDeadLetterStore(),
		cps:    memory.NewCheckpointStore(),
	}
}

func testConfig() dispatcher.Config {
	return dispatcher.Config{
		Shards:          4,
		QueueSize:       16,
		PageSize:        3,
		PollInterval:    10 * time.Millisecond,
		RetryInitial:    time.Millisecond,
		RetryMax:        2 * time.Millisecond,
		RetryElapsed:    time.Second,
		MaxAttempts:     3,
		CheckpointEvery: 5 * time.Millisecond,
	}
}

func (h *harness) dispatcher(subs ...dispatcher.Subscriber) *dispatcher.Dispatcher {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return dispatcher.New(testConfig(), h.events, h.dead, h.cps, log, subs...)
}

func (h *harness) append(t *testing.T, at event.AggregateType, id string, n int) {
	t.Helper()
	ctx := context.Background()

	history, err := h.events.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	evts := make([]event.Event, n)
	for i := range evts {
		evts[i] = event.Event{AggregateType: at, Type: event.Type(string(at) + ".updated"), Payload: []byte(`{}`)}
	}
	if _, err := h.events.Append(ctx, id, uint64(len(history)), evts); err != nil {
		t.Fatalf("Append error = %v", err)
	}
}

// start runs d until the test ends and returns a stop func for early shutdown.
func start(t *testing.T, d *dispatcher.Dispatcher) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case <-d.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("Run error = %v", err)
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Run error = %v", err)
			}
		})
	}
	t.Cleanup(stop)
	return stop
}

func idle(t *testing.T, d *dispatcher.Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Idle(ctx); err != nil {
		t.Fatalf("Idle error = %v", err)
	}
}

func TestDeliversInSeqOrderPerAggregate(t *testing.T) {
	h := newHarness()
	rec := newRecorder("rec")
	d := h.dispatcher(rec)
	start(t, d)

	ids := []string{"a", "b", "c", "d", "e"}
	for round := 0; round < 3; round++ {
		for _, id := range ids {
			h.append(t, event.AggregateCinema, id, 2)
		}
		d.Publish(context.Background())
	}
	idle(t, d)

	want := []uint64{1, 2, 3, 4, 5, 6}
	for _, id := range ids {
		if got := rec.seqs(id); !slices.Equal(got, want) {
			t.Fatalf("seqs(%s) = %v, want %v", id, got, want)
		}
	}
}

func TestSubscriberTypeFilter(t *testing.T) {
	h := newHarness()
	seats := newRecorder("seats", event.AggregateSeat)
	all := newRecorder("all")
	d := h.dispatcher(seats, all)
	start(t, d)

	h.append(t, event.AggregateSeat, "s1", 1)
	h.append(t, event.AggregateMovie, "m1", 1)
	idle(t, d)

	if seats.total() != 1 || len(seats.seqs("m1")) != 0 {
		t.Fatalf("seat subscriber saw %d events", seats.total())
	}
	if all.total() != 2 {
		t.Fatalf("catch-all subscriber saw %d events, want 2", all.total())
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	h := newHarness()
	rec := newRecorder("flaky")
	var failures atomic.Int64
	rec.fail = func(event.Event) error {
		if failures.Add(1) <= 2 {
			return errBroken
		}
		return nil
	}
	d := h.dispatcher(rec)
	start(t, d)

	h.append(t, event.AggregateCinema, "c1", 1)
	idle(t, d)

	if got := rec.seqs("c1"); !slices.Equal(got, []uint64{1}) {
		t.Fatalf("seqs = %v, want [1]", got)
	}
	letters, _ := h.dead.List(context.Background(), "flaky")
	if len(letters) != 0 {
		t.Fatalf("dead letters = %d, want 0", len(letters))
	}
}

func TestFailingSubscriberDoesNotBlockOthers(t *testing.T) {
	h := newHarness()
	broken := newRecorder("broken")
	broken.fail = func(event.Event) error { return errBroken }
	healthy := newRecorder("healthy")
	d := h.dispatcher(broken, healthy)
	start(t, d)

	h.append(t, event.AggregateMovie, "m1", 2)
	h.append(t, event.AggregateMovie, "m2", 1)
	idle(t, d)

	if healthy.total() != 3 {
		t.Fatalf("healthy saw %d events, want 3", healthy.total())
	}
	letters, err := h.dead.List(context.Background(), "broken")
	if err != nil {
		t.Fatalf("List error = %v", err)
	}
	if len(letters) != 3 {
		t.Fatalf("dead letters = %d, want 3", len(letters))
	}
}

func TestParkedAggregateIsRedrivenInOrder(t *testing.T) {
	h := newHarness()
	var broken atomic.Bool
	broken.Store(true)

	rec := newRecorder("proj")
	rec.fail = func(evt event.Event) error {
		if broken.Load() && evt.AggregateID == "a" && evt.Seq == 1 {
			return errBroken
		}
		return nil
	}
	d := h.dispatcher(rec)
	start(t, d)

	h.append(t, event.AggregateCinema, "a", 2)
	h.append(t, event.AggregateCinema, "b", 1)
	idle(t, d)

	if got := rec.seqs("a"); len(got) != 0 {
		t.Fatalf("seqs(a) before redrive = %v, want none", got)
	}
	if got := rec.seqs("b"); !slices.Equal(got, []uint64{1}) {
		t.Fatalf("seqs(b) = %v, want [1]", got)
	}

	ctx := context.Background()
	letters, _ := h.dead.List(ctx, "proj")
	if len(letters) != 2 {
		t.Fatalf("dead letters = %d, want 2", len(letters))
	}
	if letters[0].Event.Seq != 1 || letters[0].Attempts != 3 {
		t.Fatalf("first letter = seq %d attempts %d", letters[0].Event.Seq, letters[0].Attempts)
	}
	if letters[1].Event.Seq != 2 || letters[1].Attempts != 0 {
		t.Fatalf("second letter = seq %d attempts %d", letters[1].Event.Seq, letters[1].Attempts)
	}

	// Redriving while still broken keeps both letters.
	n, err := d.Redrive(ctx, "proj")
	if err != nil || n != 0 {
		t.Fatalf("Redrive = %d, %v; want 0, nil", n, err)
	}
	if letters, _ := h.dead.List(ctx, "proj"); len(letters) != 2 {
		t.Fatalf("dead letters after failed redrive = %d, want 2", len(letters))
	}

	broken.Store(false)
	n, err = d.Redrive(ctx, "proj")
	if err != nil || n != 2 {
		t.Fatalf("Redrive = %d, %v; want 2, nil", n, err)
	}
	if got := rec.seqs("a"); !slices.Equal(got, []uint64{1, 2}) {
		t.Fatalf("seqs(a) after redrive = %v, want [1 2]", got)
	}
	if letters, _ := h.dead.List(ctx, "proj"); len(letters) != 0 {
		t.Fatalf("dead letters after redrive = %d, want 0", len(letters))
	}

	h.append(t, event.AggregateCinema, "a", 1)
	idle(t, d)
	if got := rec.seqs("a"); !slices.Equal(got, []uint64{1, 2, 3}) {
		t.Fatalf("seqs(a) = %v, want [1 2 3]", got)
	}
}

func TestMalformedEventIsNotRetried(t *testing.T) {
	h := newHarness()
	rec := newRecorder("strict")
	rec.fail = func(evt event.Event) error {
		return errors.Join(errors.New("bad payload"), event.ErrMalformed)
	}
	d := h.dispatcher(rec)
	start(t, d)

	h.append(t, event.AggregateSeat, "s1", 1)
	idle(t, d)

	if got := rec.calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
	letters, _ := h.dead.List(context.Background(), "strict")
	if len(letters) != 1 || letters[0].Attempts != 1 {
		t.Fatalf("letters = %+v", letters)
	}
}

func TestResumesFromCheckpoint(t *testing.T) {
	h := newHarness()
	first := newRecorder("rec")
	d := h.dispatcher(first)
	stop := start(t, d)

	h.append(t, event.AggregateCinema, "c1", 3)
	idle(t, d)
	stop()

	pos, err := h.cps.Load(context.Background(), "dispatcher")
	if err != nil {
		t.Fatalf("Load checkpoint error = %v", err)
	}
	if pos != 3 {
		t.Fatalf("checkpoint = %d, want 3", pos)
	}

	second := newRecorder("rec")
	d2 := h.dispatcher(second)
	start(t, d2)

	h.append(t, event.AggregateCinema, "c1", 1)
	idle(t, d2)

	if got := second.seqs("c1"); !slices.Equal(got, []uint64{4}) {
		t.Fatalf("seqs after restart = %v, want [4]", got)
	}
}

func TestRebuildReplaysNamedSubscribersOnly(t *testing.T) {
	h := newHarness()
	proj := newRecorder("proj")
	notifier := newRecorder("notifier")
	d := h.dispatcher(proj, notifier)
	start(t, d)

	h.append(t, event.AggregateEmployee, "e1", 2)
	h.append(t, event.AggregateWorkShift, "w1", 2)
	idle(t, d)

	resets := 0
	err := d.Rebuild(context.Background(), func(context.Context) error {
		resets++
		proj.reset()
		return nil
	}, "proj")
	if err != nil {
		t.Fatalf("Rebuild error = %v", err)
	}
	idle(t, d)

	if resets != 1 {
		t.Fatalf("resets = %d, want 1", resets)
	}
	if got := proj.seqs("w1"); !slices.Equal(got, []uint64{1, 2}) {
		t.Fatalf("proj seqs(w1) = %v, want [1 2]", got)
	}
	if proj.total() != 4 {
		t.Fatalf("proj total = %d, want 4", proj.total())
	}
	if notifier.total() != 4 {
		t.Fatalf("notifier total = %d, want 4", notifier.total())
	}

	if err := d.Rebuild(context.Background(), nil, "missing"); !errors.Is(err, dispatcher.ErrUnknownSubscriber) {
		t.Fatalf("Rebuild(missing) error = %v, want ErrUnknownSubscriber", err)
	}
}

func TestRedriveRequiresRunningDispatcher(t *testing.T) {
	h := newHarness()
	d := h.dispatcher(newRecorder("rec"))
	if _, err := d.Redrive(context.Background(), "rec"); !errors.Is(err, dispatcher.ErrNotRunning) {
		t.Fatalf("Redrive error = %v, want ErrNotRunning", err)
	}
}

func TestParkedAggregateSurvivesRestart(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	first := newRecorder("proj")
	first.fail = func(evt event.Event) error {
		if evt.AggregateID == "a" {
			return errBroken
		}
		return nil
	}
	d := h.dispatcher(first)
	stop := start(t, d)

	h.append(t, event.AggregateCinema, "a", 1)
	idle(t, d)
	stop()

	if letters, _ := h.dead.List(ctx, "proj"); len(letters) != 1 {
		t.Fatalf("dead letters before restart = %d, want 1", len(letters))
	}

	second := newRecorder("proj")
	d2 := h.dispatcher(second)
	start(t, d2)

	h.append(t, event.AggregateCinema, "a", 1)
	h.append(t, event.AggregateCinema, "b", 1)
	idle(t, d2)

	if got := second.seqs("a"); len(got) != 0 {
		t.Fatalf("seqs(a) after restart = %v, want none while seq 1 is dead-lettered", got)
	}
	if got := second.seqs("b"); !slices.Equal(got, []uint64{1}) {
		t.Fatalf("seqs(b) = %v, want [1]", got)
	}

	letters, _ := h.dead.List(ctx, "proj")
	if len(letters) != 2 || letters[1].Event.Seq != 2 || !strings.Contains(letters[1].Error, dispatcher.ErrParked.Error()) {
		t.Fatalf("letters after restart = %+v", letters)
	}

	n, err := d2.Redrive(ctx, "proj")
	if err != nil || n != 2 {
		t.Fatalf("Redrive = %d, %v; want 2, nil", n, err)
	}
	if got := second.seqs("a"); !slices.Equal(got, []uint64{1, 2}) {
		t.Fatalf("seqs(a) after redrive = %v, want [1 2]", got)
	}
}

// flakyDeadLetters fails Add until failures runs out. A negative count fails
// forever.
type flakyDeadLetters struct {
	*memory.DeadLetterStore
	failures atomic.Int64
	adds     atomic.Int64
}

func (f *flakyDeadLetters) Add(ctx context.Context, dl dispatcher.DeadLetter) error {
	f.adds.Add(1)
	if n := f.failures.Load(); n != 0 {
		if n > 0 {
			f.failures.Add(-1)
		}
		return errors.New("dead letter store down")
	}
	return f.DeadLetterStore.Add(ctx, dl)
}

func TestDeadLetterStoreOutage(t *testing.T) {
	tests := []struct {
		name       string
		failures   int64
		wantStored int
		wantPos    uint64
	}{
		{"recovers after retries", 3, 1, 1},
		{"never recovers", -1, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			dead := &flakyDeadLetters{DeadLetterStore: h.dead}
			dead.failures.Store(tt.failures)

			rec := newRecorder("proj")
			rec.fail = func(event.Event) error { return errBroken }

			log := slog.New(slog.NewTextHandler(io.Discard, nil))
			d := dispatcher.New(testConfig(), h.events, dead, h.cps, log, rec)
			stop := start(t, d)

			h.append(t, event.AggregateCinema, "c1", 1)
			if tt.failures > 0 {
				idle(t, d)
			} else {
				deadline := time.Now().Add(2 * time.Second)
				for dead.adds.Load() < 3 && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}
			}
			stop()

			ctx := context.Background()
			letters, _ := h.dead.List(ctx, "proj")
			if len(letters) != tt.wantStored {
				t.Fatalf("stored letters = %d, want %d", len(letters), tt.wantStored)
			}
			pos, err := h.cps.Load(ctx, "dispatcher")
			if err != nil {
				t.Fatalf("Load checkpoint error = %v", err)
			}
			if pos != tt.wantPos {
				t.Fatalf("checkpoint = %d, want %d", pos, tt.wantPos)
			}
		})
	}
}
