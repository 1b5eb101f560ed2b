package storage

import "sync/atomic"

// Current holds the spot in effect for the running process. Readers never
// block writers.
type Current struct {
	p atomic.Pointer[Spot]
}

func NewCurrent(s Spot) *Current {
	c := &Current{}
	c.Set(s)
	return c
}

func (c *Current) Spot() Spot {
	if p := c.p.Load(); p != nil {
		return *p
	}
	return DefaultSpot()
}

func (c *Current) Set(s Spot) { c.p.Store(&s) }
