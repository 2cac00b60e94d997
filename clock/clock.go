// Package clock supplies the ordering markers stamped onto quota records.
//
// A marker only has to be non-decreasing across successive mutations; it is
// not required to be a wall-clock time. Hosts that have a better notion of
// ordering (a block height, a log sequence number) can provide their own
// Source.
package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// Source produces non-decreasing markers.
type Source interface {
	Next() uint64
}

// Func adapts a plain function to the Source interface.
type Func func() uint64

// Next calls f.
func (f Func) Next() uint64 { return f() }

// Wall returns markers derived from the wall clock in Unix milliseconds.
// A clock step backwards never produces a smaller marker than one already
// handed out.
type Wall struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

// NewWall creates a wall-clock Source.
func NewWall() *Wall {
	return &Wall{now: time.Now}
}

// Next returns the current time in milliseconds, clamped so it never goes
// below the previous marker.
func (w *Wall) Next() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	ms := w.now().UnixMilli()
	var cur uint64
	if ms > 0 {
		cur = uint64(ms)
	}
	if cur < w.last {
		cur = w.last
	}
	w.last = cur
	return cur
}

// Logical is a counter-based Source. Each call to Next returns the previous
// marker plus one.
type Logical struct {
	n atomic.Uint64
}

// NewLogical creates a logical Source starting after start.
func NewLogical(start uint64) *Logical {
	l := &Logical{}
	l.n.Store(start)
	return l
}

// Next advances the counter.
func (l *Logical) Next() uint64 { return l.n.Add(1) }

// Current returns the last marker handed out without advancing.
func (l *Logical) Current() uint64 { return l.n.Load() }
