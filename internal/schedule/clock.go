package schedule

import (
	"strconv"
	"sync/atomic"
	"time"
)

// Clock supplies local wall-clock time to the tick source.
type Clock interface {
	Now() time.Time
}

// LocalClock reads the system clock (NTP-disciplined on the device) and
// resolves it in a location that can be swapped at runtime.
type LocalClock struct {
	loc atomic.Pointer[time.Location]
}

func NewLocalClock(loc *time.Location) *LocalClock {
	c := &LocalClock{}
	c.SetLocation(loc)
	return c
}

func (c *LocalClock) Now() time.Time { return time.Now().In(c.Location()) }

func (c *LocalClock) Location() *time.Location {
	if loc := c.loc.Load(); loc != nil {
		return loc
	}
	return time.Local
}

func (c *LocalClock) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	c.loc.Store(loc)
}

// OffsetLocation returns a fixed zone for a whole-hour UTC offset.
func OffsetLocation(hours int) *time.Location {
	if hours == 0 {
		return time.UTC
	}
	name := "UTC+" + strconv.Itoa(hours)
	if hours < 0 {
		name = "UTC-" + strconv.Itoa(-hours)
	}
	return time.FixedZone(name, hours*3600)
}
