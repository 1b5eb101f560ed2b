package event

import (
	"context"
	"sync/atomic"
)

// Channel is a coalescing single-consumer notification set.
//
// Contract:
//   - Post MUST be non-blocking and allocation-free (it runs on the tick path).
//   - Posting a kind that is already pending is a no-op.
//   - Drain returns every kind pending at the instant of the swap and clears
//     them together; it never returns a subset.
//   - Only one goroutine may Drain.
type Channel struct {
	pending atomic.Uint32
	// wake holds at most one token. A stale token only causes one extra
	// empty swap in Drain.
	wake chan struct{}

	posts atomic.Uint64
}

// NewChannel returns an empty Channel.
func NewChannel() *Channel {
	return &Channel{wake: make(chan struct{}, 1)}
}

// Post marks k pending and wakes the consumer.
func (c *Channel) Post(k Kind) { c.PostSet(Set(k)) }

// PostSet marks every kind in s pending with a single wake-up.
func (c *Channel) PostSet(s Set) {
	if s == 0 {
		return
	}
	c.pending.Or(uint32(s))
	c.posts.Add(1)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Drain blocks until at least one kind is pending, then returns and clears
// the whole pending set. It returns ctx.Err() if ctx ends first; pending
// kinds are left in place in that case.
func (c *Channel) Drain(ctx context.Context) (Set, error) {
	for {
		if s := Set(c.pending.Swap(0)); s != 0 {
			return s, nil
		}
		select {
		case <-c.wake:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Pending reports the current pending set without clearing it.
func (c *Channel) Pending() Set { return Set(c.pending.Load()) }

// Posts reports how many Post/PostSet calls were accepted (diagnostics).
func (c *Channel) Posts() uint64 { return c.posts.Load() }
