// Package dispatcher delivers committed events to subscribers at least once,
// in Seq order per aggregate id, with retries and a dead-letter store.
//
// A single feeder reads the event log in Position order and fans each event
// out to the subscribers interested in its aggregate type. Every subscriber
// owns a fixed set of shard goroutines; an aggregate id always hashes to the
// same shard, so events of one id are handled one after another while other
// ids and other subscribers proceed independently.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/cinema-es/internal/event"
)

const checkpointName = "dispatcher"

var (
	ErrNotRunning        = errors.New("dispatcher not running")
	ErrUnknownSubscriber = errors.New("unknown subscriber")
	// ErrParked is recorded for events held back behind an earlier
	// dead letter of the same aggregate id.
	ErrParked = errors.New("aggregate parked")
)

// Subscriber consumes events. An empty Types list subscribes to everything.
type Subscriber interface {
	Name() string
	Types() []event.AggregateType
	Handle(ctx context.Context, evt event.Event) error
}

type Config struct {
	Shards          int
	QueueSize       int
	PageSize        int
	PollInterval    time.Duration
	RetryInitial    time.Duration
	RetryMax        time.Duration
	RetryElapsed    time.Duration
	MaxAttempts     int
	CheckpointEvery time.Duration
}

func (c Config) withDefaults() Config {
	if c.Shards <= 0 {
		c.Shards = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.PageSize <= 0 {
		c.PageSize = 500
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 50 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 2 * time.Second
	}
	if c.RetryElapsed <= 0 {
		c.RetryElapsed = 30 * time.Second
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = time.Second
	}
	return c
}

type msgKind int

const (
	msgDeliver msgKind = iota
	msgRedrive
	msgReset
)

type result struct {
	n   int
	err error
}

type message struct {
	kind   msgKind
	evt    event.Event
	replay bool
	reply  chan<- result
}

type subscription struct {
	sub    Subscriber
	types  map[event.AggregateType]struct{}
	shards []chan message
}

func (s *subscription) wants(t event.AggregateType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

func (s *subscription) shardIndex(aggregateID string) int {
	return int(xxhash.Sum64String(aggregateID) % uint64(len(s.shards)))
}

type Dispatcher struct {
	cfg         Config
	log         *slog.Logger
	events      EventLog
	dead        DeadLetterStore
	checkpoints CheckpointStore

	subs   []*subscription
	byName map[string]*subscription

	gate     sync.RWMutex
	wake     chan struct{}
	cursor   atomic.Uint64
	inflight atomic.Int64
	wm       *watermark

	running atomic.Bool
	ready   chan struct{}
	stopped chan struct{}
}

func New(
	cfg Config,
	events EventLog,
	dead DeadLetterStore,
	checkpoints CheckpointStore,
	log *slog.Logger,
	subs ...Subscriber,
) *Dispatcher {
	cfg = cfg.withDefaults()

	d := &Dispatcher{
		cfg:         cfg,
		log:         log,
		events:      events,
		dead:        dead,
		checkpoints: checkpoints,
		byName:      make(map[string]*subscription, len(subs)),
		wake:        make(chan struct{}, 1),
		ready:       make(chan struct{}),
		stopped:     make(chan struct{}),
	}

	for _, sub := range subs {
		if _, dup := d.byName[sub.Name()]; dup {
			panic(fmt.Sprintf("dispatcher: duplicate subscriber %q", sub.Name()))
		}

		s := &subscription{
			sub:    sub,
			types:  make(map[event.AggregateType]struct{}),
			shards: make([]chan message, cfg.Shards),
		}
		for _, t := range sub.Types() {
			s.types[t] = struct{}{}
		}
		for i := range s.shards {
			s.shards[i] = make(chan message, cfg.QueueSize)
		}

		d.subs = append(d.subs, s)
		d.byName[sub.Name()] = s
	}

	return d
}

// Subscribers returns the registered subscriber names.
func (d *Dispatcher) Subscribers() []string {
	out := make([]string, 0, len(d.subs))
	for _, s := range d.subs {
		out = append(out, s.sub.Name())
	}
	return out
}

// Ready is closed once Run has loaded the checkpoint and started workers.
func (d *Dispatcher) Ready() <-chan struct{} { return d.ready }

// Run delivers events until ctx is cancelled. It resumes from the last saved
// checkpoint, so events already handled before a restart may be delivered
// again.
func (d *Dispatcher) Run(ctx context.Context) error {
	const op = "dispatcher.Dispatcher.Run"

	if !d.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%s: already started", op)
	}
	defer func() {
		d.running.Store(false)
		close(d.stopped)
	}()

	start, err := d.checkpoints.Load(ctx, checkpointName)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	d.cursor.Store(start)
	d.wm = newWatermark(start)

	parked, err := d.loadParked(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range d.subs {
		for i, ch := range s.shards {
			held := parked[s.sub.Name()][i]
			g.Go(func() error {
				d.work(gctx, s, i, ch, held)
				return nil
			})
		}
	}
	g.Go(func() error { return d.feed(gctx) })
	g.Go(func() error { return d.checkpoint(gctx, start) })

	d.log.Info("dispatcher started",
		slog.Uint64("checkpoint", start),
		slog.Int("subscribers", len(d.subs)),
		slog.Int("shards", d.cfg.Shards),
	)
	close(d.ready)

	if err := g.Wait(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	d.log.Info("dispatcher stopped", slog.Uint64("checkpoint", d.wm.position()))
	return nil
}

// Publish signals that events were appended. Delivery reads them back from
// the log, so per-id order always follows Seq.
func (d *Dispatcher) Publish(_ context.Context, _ ...event.Event) {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Idle blocks until every appended event has been delivered and settled.
func (d *Dispatcher) Idle(ctx context.Context) error {
	t := time.NewTicker(5 * time.Millisecond)
	defer t.Stop()

	for {
		if d.inflight.Load() == 0 {
			next, err := d.events.ReadAll(ctx, d.cursor.Load(), 1)
			if err != nil {
				return err
			}
			if len(next) == 0 && d.inflight.Load() == 0 {
				return nil
			}
			d.Publish(ctx)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Redrive re-delivers the dead letters of one subscriber in their original
// order. Letters that fail again stay parked. It returns how many letters
// were delivered.
func (d *Dispatcher) Redrive(ctx context.Context, subscriber string) (int, error) {
	const op = "dispatcher.Dispatcher.Redrive"

	s, ok := d.byName[subscriber]
	if !ok {
		return 0, fmt.Errorf("%s: %w: %q", op, ErrUnknownSubscriber, subscriber)
	}
	if !d.running.Load() {
		return 0, fmt.Errorf("%s: %w", op, ErrNotRunning)
	}

	total := 0
	for _, ch := range s.shards {
		n, err := d.control(ctx, ch, msgRedrive)
		total += n
		if err != nil {
			return total, fmt.Errorf("%s: %w", op, err)
		}
	}
	return total, nil
}

// Rebuild replays the whole log to the named subscribers. Live delivery is
// paused while it runs. reset, when set, is called once nothing is in flight
// and must clear the subscribers' state.
func (d *Dispatcher) Rebuild(ctx context.Context, reset func(ctx context.Context) error, names ...string) error {
	const op = "dispatcher.Dispatcher.Rebuild"

	targets := make([]*subscription, 0, len(names))
	for _, name := range names {
		s, ok := d.byName[name]
		if !ok {
			return fmt.Errorf("%s: %w: %q", op, ErrUnknownSubscriber, name)
		}
		targets = append(targets, s)
	}
	if !d.running.Load() {
		return fmt.Errorf("%s: %w", op, ErrNotRunning)
	}

	d.gate.Lock()
	defer d.gate.Unlock()

	if err := d.drain(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if reset != nil {
		if err := reset(ctx); err != nil {
			return fmt.Errorf("%s: reset: %w", op, err)
		}
	}

	for _, s := range targets {
		if err := d.dead.Clear(ctx, s.sub.Name()); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		for _, ch := range s.shards {
			if _, err := d.control(ctx, ch, msgReset); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	var after uint64
	replayed := 0
	for {
		evts, err := d.events.ReadAll(ctx, after, d.cfg.PageSize)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		for _, evt := range evts {
			for _, s := range targets {
				if !s.wants(evt.AggregateType) {
					continue
				}
				if err := d.send(ctx, s, message{kind: msgDeliver, evt: evt, replay: true}); err != nil {
					return fmt.Errorf("%s: %w", op, err)
				}
			}
			after = evt.Position
			replayed++
		}

		if len(evts) < d.cfg.PageSize {
			break
		}
	}

	if err := d.drain(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	d.log.Info("rebuild finished", slog.Any("subscribers", names), slog.Int("events", replayed))
	return nil
}

// drain waits for in-flight deliveries without looking at the log.
func (d *Dispatcher) drain(ctx context.Context) error {
	t := time.NewTicker(5 * time.Millisecond)
	defer t.Stop()

	for d.inflight.Load() != 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.stopped:
			return ErrNotRunning
		case <-t.C:
		}
	}
	return nil
}

func (d *Dispatcher) feed(ctx context.Context) error {
	t := time.NewTicker(d.cfg.PollInterval)
	defer t.Stop()

	for {
		if err := d.pump(ctx); err != nil && ctx.Err() == nil {
			d.log.Error("dispatcher read failed", slog.Any("err", err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-d.wake:
		case <-t.C:
		}
	}
}

func (d *Dispatcher) pump(ctx context.Context) error {
	for {
		n, err := d.pumpPage(ctx)
		if err != nil {
			return err
		}
		if n < d.cfg.PageSize {
			return nil
		}
	}
}

func (d *Dispatcher) pumpPage(ctx context.Context) (int, error) {
	d.gate.RLock()
	defer d.gate.RUnlock()

	evts, err := d.events.ReadAll(ctx, d.cursor.Load(), d.cfg.PageSize)
	if err != nil {
		return 0, err
	}

	for _, evt := range evts {
		targets := make([]*subscription, 0, len(d.subs))
		for _, s := range d.subs {
			if s.wants(evt.AggregateType) {
				targets = append(targets, s)
			}
		}

		d.wm.track(evt.Position, len(targets))
		for _, s := range targets {
			if err := d.send(ctx, s, message{kind: msgDeliver, evt: evt}); err != nil {
				return 0, err
			}
		}
		d.cursor.Store(evt.Position)
	}

	return len(evts), nil
}

func (d *Dispatcher) send(ctx context.Context, s *subscription, m message) error {
	d.inflight.Add(1)
	select {
	case s.shards[s.shardIndex(m.evt.AggregateID)] <- m:
		return nil
	case <-ctx.Done():
		d.inflight.Add(-1)
		return ctx.Err()
	}
}

func (d *Dispatcher) control(ctx context.Context, ch chan<- message, kind msgKind) (int, error) {
	reply := make(chan result, 1)

	select {
	case ch <- message{kind: kind, reply: reply}:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-d.stopped:
		return 0, ErrNotRunning
	}

	select {
	case r := <-reply:
		return r.n, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-d.stopped:
		return 0, ErrNotRunning
	}
}

func (d *Dispatcher) checkpoint(ctx context.Context, last uint64) error {
	t := time.NewTicker(d.cfg.CheckpointEvery)
	defer t.Stop()

	save := func(ctx context.Context) {
		pos := d.wm.position()
		if pos == last {
			return
		}
		if err := d.checkpoints.Save(ctx, checkpointName, pos); err != nil {
			d.log.Warn("checkpoint save failed", slog.Uint64("position", pos), slog.Any("err", err))
			return
		}
		last = pos
	}

	for {
		select {
		case <-ctx.Done():
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
			save(sctx)
			cancel()
			return nil
		case <-t.C:
			save(ctx)
		}
	}
}

// loadParked rebuilds the parked ids of every shard from the stored dead
// letters. The checkpoint is already past those letters, so without this a
// restart would deliver later events of a parked id ahead of them.
func (d *Dispatcher) loadParked(ctx context.Context) (map[string][]map[string]struct{}, error) {
	out := make(map[string][]map[string]struct{}, len(d.subs))

	for _, s := range d.subs {
		sets := make([]map[string]struct{}, len(s.shards))
		for i := range sets {
			sets[i] = make(map[string]struct{})
		}

		letters, err := d.dead.List(ctx, s.sub.Name())
		if err != nil {
			return nil, fmt.Errorf("load dead letters of %s: %w", s.sub.Name(), err)
		}
		for _, dl := range letters {
			id := dl.Event.AggregateID
			sets[s.shardIndex(id)][id] = struct{}{}
		}
		if len(letters) > 0 {
			d.log.Info("parked aggregates restored",
				slog.String("subscriber", s.sub.Name()),
				slog.Int("dead_letters", len(letters)),
			)
		}

		out[s.sub.Name()] = sets
	}

	return out, nil
}

// work is the loop of one shard. parked is owned by this goroutine.
func (d *Dispatcher) work(ctx context.Context, s *subscription, shard int, in <-chan message, parked map[string]struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-in:
			switch m.kind {
			case msgDeliver:
				d.deliver(ctx, s, parked, m)
			case msgRedrive:
				n, err := d.redrive(ctx, s, shard, parked)
				m.reply <- result{n: n, err: err}
			case msgReset:
				clear(parked)
				m.reply <- result{}
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, s *subscription, parked map[string]struct{}, m message) {
	defer d.inflight.Add(-1)

	evt := m.evt
	var (
		attempts int
		err      error
	)
	if _, ok := parked[evt.AggregateID]; ok {
		err = fmt.Errorf("%w: %s has an earlier dead letter", ErrParked, evt.AggregateID)
	} else {
		attempts, err = d.attempt(ctx, s, evt)
	}

	if err != nil {
		if ctx.Err() != nil {
			// Shutting down; the checkpoint stays behind this event.
			return
		}
		parked[evt.AggregateID] = struct{}{}
		if err := d.bury(ctx, s, evt, err, attempts); err != nil {
			// Never settle an event that is neither handled nor stored.
			return
		}
	}

	if !m.replay {
		d.wm.settle(evt.Position)
	}
}

func (d *Dispatcher) attempt(ctx context.Context, s *subscription, evt event.Event) (int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.RetryInitial
	b.MaxInterval = d.cfg.RetryMax

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(d.cfg.RetryElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			d.log.Debug("retrying event",
				slog.String("subscriber", s.sub.Name()),
				slog.String("event_id", evt.ID.String()),
				slog.Duration("next", next),
				slog.Any("err", err),
			)
		}),
	}
	if d.cfg.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(d.cfg.MaxAttempts)))
	}

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := handle(ctx, s.sub, evt)
		if errors.Is(err, event.ErrMalformed) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, opts...)

	return attempts, err
}

func handle(ctx context.Context, sub Subscriber, evt event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber %s panicked: %v", sub.Name(), r)
		}
	}()
	return sub.Handle(ctx, evt)
}

// bury stores a dead letter, retrying until it succeeds or ctx is done.
func (d *Dispatcher) bury(ctx context.Context, s *subscription, evt event.Event, cause error, attempts int) error {
	dl := DeadLetter{
		ID:         uuid.New(),
		Subscriber: s.sub.Name(),
		Event:      evt,
		Error:      cause.Error(),
		Attempts:   attempts,
		FailedAt:   time.Now().UTC(),
	}

	log := d.log.With(
		slog.String("subscriber", dl.Subscriber),
		slog.String("aggregate_id", evt.AggregateID),
		slog.Uint64("seq", evt.Seq),
		slog.String("type", string(evt.Type)),
	)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.RetryInitial
	b.MaxInterval = d.cfg.RetryMax

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, d.dead.Add(ctx, dl)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Error("dead letter not stored", slog.Duration("next", next), slog.Any("cause", cause), slog.Any("err", err))
		}),
	)
	if err != nil {
		return err
	}

	log.Warn("event dead-lettered", slog.Int("attempts", attempts), slog.Any("err", cause))
	return nil
}

// redrive re-delivers this shard's dead letters. Letters are deleted only
// after they succeed.
func (d *Dispatcher) redrive(ctx context.Context, s *subscription, shard int, parked map[string]struct{}) (int, error) {
	letters, err := d.dead.List(ctx, s.sub.Name())
	if err != nil {
		return 0, err
	}

	mine := make([]DeadLetter, 0, len(letters))
	for _, dl := range letters {
		if s.shardIndex(dl.Event.AggregateID) != shard {
			continue
		}
		mine = append(mine, dl)
		delete(parked, dl.Event.AggregateID)
	}

	n := 0
	for _, dl := range mine {
		id := dl.Event.AggregateID
		if _, stuck := parked[id]; stuck {
			continue
		}

		if _, err := d.attempt(ctx, s, dl.Event); err != nil {
			if ctx.Err() != nil {
				return n, ctx.Err()
			}
			parked[id] = struct{}{}
			d.log.Warn("redrive failed",
				slog.String("subscriber", s.sub.Name()),
				slog.String("aggregate_id", id),
				slog.Uint64("seq", dl.Event.Seq),
				slog.Any("err", err),
			)
			continue
		}

		if err := d.dead.Delete(ctx, dl.ID); err != nil {
			return n, err
		}
		n++
	}

	return n, nil
}
