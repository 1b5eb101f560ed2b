package display

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Sink receives rendered frames.
type Sink interface {
	Flush(ctx context.Context, f Frame) error
}

// RegionFrame is one region inside a Frame.
type RegionFrame struct {
	Region  Region  `json:"region"`
	Content Content `json:"content"`
	Present bool    `json:"present"`
	Dirty   bool    `json:"dirty"`
}

// Frame is the full panel state at one Render.
type Frame struct {
	Seq     uint64        `json:"seq"`
	At      time.Time     `json:"at"`
	Full    bool          `json:"full"`
	Regions []RegionFrame `json:"regions"`
}

// DirtyRegions lists the regions that changed since the previous frame.
func (f Frame) DirtyRegions() []Region {
	var out []Region
	for _, r := range f.Regions {
		if r.Dirty {
			out = append(out, r.Region)
		}
	}
	return out
}

// Stats counts panel operations.
type Stats struct {
	ClearAlls   uint64 `json:"clear_alls"`
	Clears      uint64 `json:"clears"`
	Draws       uint64 `json:"draws"`
	Renders     uint64 `json:"renders"`
	FullRenders uint64 `json:"full_renders"`
}

type regionState struct {
	content Content
	present bool
	dirty   bool
}

// Framebuffer is a Panel backed by in-memory region state.
type Framebuffer struct {
	mu       sync.Mutex
	regions  [numRegions]regionState
	allDirty bool
	sink     Sink
	now      func() time.Time
	seq      uint64
	stats    Stats
	last     Frame
}

func NewFramebuffer(sink Sink) *Framebuffer {
	return &Framebuffer{sink: sink, now: time.Now}
}

func (fb *Framebuffer) ClearAll() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for i := range fb.regions {
		fb.regions[i] = regionState{dirty: true}
	}
	fb.allDirty = true
	fb.stats.ClearAlls++
}

func (fb *Framebuffer) Clear(r Region) {
	if r >= numRegions {
		return
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.regions[r] = regionState{dirty: true}
	fb.stats.Clears++
}

func (fb *Framebuffer) Draw(r Region, c Content) {
	if r >= numRegions {
		return
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.regions[r] = regionState{content: c, present: true, dirty: true}
	fb.stats.Draws++
}

func (fb *Framebuffer) MarkAllDirty() {
	fb.mu.Lock()
	fb.allDirty = true
	fb.mu.Unlock()
}

// Render builds a Frame and flushes it to the sink. Dirty state is only
// reset when the sink accepted the frame.
func (fb *Framebuffer) Render(ctx context.Context) error {
	if fb.sink == nil {
		return errors.New("display: no sink configured")
	}
	fb.mu.Lock()
	fb.seq++
	f := Frame{Seq: fb.seq, At: fb.now(), Full: fb.allDirty, Regions: make([]RegionFrame, 0, numRegions)}
	for i, st := range fb.regions {
		f.Regions = append(f.Regions, RegionFrame{
			Region:  Region(i),
			Content: st.content,
			Present: st.present,
			Dirty:   st.dirty || fb.allDirty,
		})
	}
	fb.mu.Unlock()

	if err := fb.sink.Flush(ctx, f); err != nil {
		return fmt.Errorf("display render: %w", err)
	}

	fb.mu.Lock()
	for i := range fb.regions {
		fb.regions[i].dirty = false
	}
	fb.allDirty = false
	fb.stats.Renders++
	if f.Full {
		fb.stats.FullRenders++
	}
	fb.last = f
	fb.mu.Unlock()
	return nil
}

// Stats returns operation counters.
func (fb *Framebuffer) Stats() Stats {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.stats
}

// LastFrame returns the most recently rendered frame.
func (fb *Framebuffer) LastFrame() Frame {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.last
}
