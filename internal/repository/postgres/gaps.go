package postgres

import (
	"time"

	"github.com/kirinyoku/cinema-es/internal/event"
)

// gapGuard trims a page of the log at the first missing position. Appends to
// different aggregates commit in any order, so a hole in the BIGSERIAL
// sequence is usually a transaction still in flight. Every append finishes
// within AppendTimeout, so once the event right after a hole is older than
// timeout the hole can only be a rolled-back append and is skipped.
type gapGuard struct {
	timeout time.Duration
	now     func() time.Time
}

func newGapGuard(timeout time.Duration) *gapGuard {
	return &gapGuard{timeout: timeout, now: time.Now}
}

// contiguous returns the prefix of evts that can be handed out after the
// given position.
func (g *gapGuard) contiguous(after uint64, evts []event.Event) []event.Event {
	settled := g.now().Add(-g.timeout)

	prev := after
	for i, evt := range evts {
		if evt.Position != prev+1 && evt.Timestamp.After(settled) {
			return evts[:i]
		}
		prev = evt.Position
	}

	return evts
}
