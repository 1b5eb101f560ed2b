package schedule

import (
	"math/bits"
	"time"

	"spotcheck/internal/event"
)

// Poster receives the kinds of every rule that fired in one tick as a
// single set. Implementations must not block (event.Channel satisfies this).
type Poster interface {
	PostSet(s event.Set)
}

// Fired is a bitmask of rule positions that fired in one tick.
// Differential rules occupy the low positions, discrete rules follow.
type Fired uint64

// Count returns how many rules fired.
func (f Fired) Count() int { return bits.OnesCount64(uint64(f)) }

// Each calls fn with the table position of every fired rule, in order.
func (f Fired) Each(fn func(i int)) {
	for f != 0 {
		i := bits.TrailingZeros64(uint64(f))
		fn(i)
		f &^= 1 << uint(i)
	}
}

// Evaluator applies one tick to a Table. It owns the rules' mutable state:
// only the goroutine calling Tick may touch force/window flags.
type Evaluator struct {
	table  *Table
	poster Poster
}

func NewEvaluator(t *Table, p Poster) *Evaluator {
	return &Evaluator{table: t, poster: p}
}

// Table returns the evaluated rule table.
func (e *Evaluator) Table() *Table { return e.table }

// Tick evaluates every rule against now (local wall-clock time).
//
// Tick never blocks and never allocates. Rules are independent; the order
// only shows up in diagnostics.
func (e *Evaluator) Tick(now time.Time) Fired {
	var fired Fired
	var set event.Set
	nowSecs := now.Unix()
	nowMinute := nowSecs / 60
	hour, minute := now.Hour(), now.Minute()

	for i, r := range e.table.Differential {
		if !r.due(nowSecs) {
			continue
		}
		set = set.With(r.Task.Event())
		r.lastFiredAt.Store(nowSecs)
		r.force = false
		fired |= 1 << uint(i)
	}

	base := len(e.table.Differential)
	for i, r := range e.table.Discrete {
		match := r.matches(hour, minute)
		if r.firedThisWindow && r.windowMinute != nowMinute {
			r.firedThisWindow = false
		}
		if (match || r.force) && !r.firedThisWindow {
			set = set.With(r.Task.Event())
			r.lastFiredAt.Store(nowSecs)
			r.force = false
			r.firedThisWindow = true
			r.windowMinute = nowMinute
			fired |= 1 << uint(base+i)
		}
		// Re-arm as soon as the minute stops matching, even on the tick that
		// just force-fired outside the window.
		if !match {
			r.firedThisWindow = false
		}
	}
	// One post per tick so a concurrent Drain never splits the batch.
	if set != 0 {
		e.poster.PostSet(set)
	}
	return fired
}
