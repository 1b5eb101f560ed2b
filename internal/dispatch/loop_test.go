package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"spotcheck/internal/charts"
	"spotcheck/internal/conditions"
	"spotcheck/internal/display"
	"spotcheck/internal/event"
	"spotcheck/internal/power"
	"spotcheck/internal/storage"
	logx "spotcheck/pkg/logx"
)

type fakePanel struct {
	mu        sync.Mutex
	ops       []string
	clearAll  int
	clears    []display.Region
	draws     map[display.Region]display.Content
	markDirty int
	renders   int
	renderErr error
}

func newFakePanel() *fakePanel {
	return &fakePanel{draws: map[display.Region]display.Content{}}
}

func (p *fakePanel) ClearAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearAll++
	p.ops = append(p.ops, "clear_all")
}

func (p *fakePanel) Clear(r display.Region) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clears = append(p.clears, r)
	p.ops = append(p.ops, "clear:"+r.String())
}

func (p *fakePanel) Draw(r display.Region, c display.Content) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.draws[r] = c
	p.ops = append(p.ops, "draw:"+r.String())
}

func (p *fakePanel) MarkAllDirty() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markDirty++
	p.ops = append(p.ops, "mark_all_dirty")
}

func (p *fakePanel) Render(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.renders++
	p.ops = append(p.ops, "render")
	return p.renderErr
}

func (p *fakePanel) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = nil
	p.clearAll = 0
	p.clears = nil
	p.draws = map[display.Region]display.Content{}
	p.markDirty = 0
	p.renders = 0
}

type fakeFetcher struct {
	results []fetchResultStub
	calls   int
}

type fetchResultStub struct {
	snap conditions.Snapshot
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, spot storage.Spot) (conditions.Snapshot, error) {
	r := f.results[f.calls%len(f.results)]
	f.calls++
	return r.snap, r.err
}

type fakeCharts struct {
	refreshErr map[charts.Kind]error
	refreshed  []charts.Kind
	stored     map[charts.Kind]bool
}

func newFakeCharts() *fakeCharts {
	return &fakeCharts{refreshErr: map[charts.Kind]error{}, stored: map[charts.Kind]bool{}}
}

func (c *fakeCharts) Refresh(ctx context.Context, k charts.Kind, spot storage.Spot) error {
	c.refreshed = append(c.refreshed, k)
	if err := c.refreshErr[k]; err != nil {
		return err
	}
	c.stored[k] = true
	return nil
}

func (c *fakeCharts) Info(k charts.Kind) (charts.Info, bool) {
	if !c.stored[k] {
		return charts.Info{}, false
	}
	return charts.Info{Path: "/charts/" + string(k) + ".img"}, true
}

type fakeUpdater struct{ starts int }

func (u *fakeUpdater) Start(ctx context.Context) bool { u.starts++; return true }

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

type fixture struct {
	loop    *Loop
	panel   *fakePanel
	fetcher *fakeFetcher
	charts  *fakeCharts
	updates *fakeUpdater
	power   *power.Arbiter
	events  *event.Channel
}

func goodSnapshot() conditions.Snapshot {
	return conditions.Snapshot{Temperature: 64, WindSpeed: 7, WindDir: "WSW", TideHeight: "3.2", FetchedAt: time.Unix(1700000000, 0)}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		panel:   newFakePanel(),
		fetcher: &fakeFetcher{results: []fetchResultStub{{snap: goodSnapshot()}}},
		charts:  newFakeCharts(),
		updates: &fakeUpdater{},
		power:   power.NewArbiter(nil, logx.Nop()),
		events:  event.NewChannel(),
	}
	loop, err := New(Deps{
		Events:     f.events,
		Conditions: f.fetcher,
		Charts:     f.charts,
		Panel:      f.panel,
		Spots:      storage.NewCurrent(storage.DefaultSpot()),
		Clock:      fixedClock(time.Date(2024, 3, 10, 7, 13, 0, 0, time.UTC)),
		Power:      f.power,
		Updates:    f.updates,
	}, Config{}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.loop = loop
	return f
}

func TestStartupSetClearsOnceAndRendersOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	set := event.SetOf(event.Time, event.Conditions, event.TideChart, event.SwellChart, event.UpdateCheck)

	if err := f.loop.RunOnce(context.Background(), set); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	p := f.panel
	if p.clearAll != 1 {
		t.Fatalf("ClearAll = %d, want 1", p.clearAll)
	}
	if len(p.clears) != 0 {
		t.Fatalf("individual clears after full clear: %v", p.clears)
	}
	if p.renders != 1 || p.markDirty != 1 {
		t.Fatalf("renders=%d markDirty=%d", p.renders, p.markDirty)
	}
	for _, r := range display.Regions() {
		if _, ok := p.draws[r]; !ok {
			t.Errorf("region %s not drawn", r)
		}
	}
	if got := p.draws[display.RegionLabel].Lines[0]; got != "The Wedge" {
		t.Fatalf("label = %q", got)
	}
	if got := p.draws[display.RegionTime].Lines[0]; got != "07:13" {
		t.Fatalf("time = %q", got)
	}
	if p.ops[len(p.ops)-1] != "render" {
		t.Fatalf("render is not last: %v", p.ops)
	}
	if f.updates.starts != 1 {
		t.Fatalf("update starts = %d", f.updates.starts)
	}
	if f.power.Busy() {
		t.Fatal("power left busy after cycle")
	}
}

func TestTimeOnlyCycleDoesNotRepaintEverything(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if err := f.loop.RunOnce(context.Background(), event.SetOf(event.Time)); err != nil {
		t.Fatal(err)
	}
	p := f.panel
	if p.clearAll != 0 || p.markDirty != 0 {
		t.Fatalf("clearAll=%d markDirty=%d", p.clearAll, p.markDirty)
	}
	if len(p.clears) != 2 || p.clears[0] != display.RegionTime || p.clears[1] != display.RegionDate {
		t.Fatalf("clears = %v", p.clears)
	}
	if p.renders != 1 {
		t.Fatalf("renders = %d", p.renders)
	}
	if f.fetcher.calls != 0 || len(f.charts.refreshed) != 0 {
		t.Fatal("time-only cycle fetched data")
	}
}

func TestTimeWithOtherKindMarksAllDirty(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	if err := f.loop.RunOnce(context.Background(), event.SetOf(event.Time, event.Conditions)); err != nil {
		t.Fatal(err)
	}
	p := f.panel
	if p.clearAll != 0 {
		t.Fatal("partial set should not clear everything")
	}
	if p.markDirty != 1 || p.renders != 1 {
		t.Fatalf("markDirty=%d renders=%d", p.markDirty, p.renders)
	}
	want := map[display.Region]bool{display.RegionTime: true, display.RegionDate: true, display.RegionConditions: true}
	if len(p.clears) != len(want) {
		t.Fatalf("clears = %v", p.clears)
	}
	for _, r := range p.clears {
		if !want[r] {
			t.Fatalf("unexpected clear of %s", r)
		}
	}
	if _, ok := p.draws[display.RegionLabel]; ok {
		t.Fatal("label redrawn without a label event")
	}
}

func TestFailedFetchDrawsErrorAndKeepsSnapshot(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.fetcher.results = []fetchResultStub{
		{snap: goodSnapshot()},
		{err: fmt.Errorf("%w: dial tcp: timeout", conditions.ErrTransport)},
		{err: fmt.Errorf("%w: html page", conditions.ErrMalformed)},
	}
	set := event.SetOf(event.Conditions)

	if err := f.loop.RunOnce(context.Background(), set); err != nil {
		t.Fatal(err)
	}
	if f.panel.draws[display.RegionConditions].Error != "" {
		t.Fatal("successful fetch drew an error")
	}

	for i := 0; i < 2; i++ {
		f.panel.reset()
		if err := f.loop.RunOnce(context.Background(), set); err != nil {
			t.Fatalf("fetch failure aborted the cycle: %v", err)
		}
		if f.panel.draws[display.RegionConditions].Error == "" {
			t.Fatalf("cycle %d: expected error indicator", i)
		}
		if f.panel.renders != 1 {
			t.Fatalf("cycle %d: renders = %d", i, f.panel.renders)
		}
		if got := f.loop.Snapshot(); got != goodSnapshot() {
			t.Fatalf("snapshot mutated by failed fetch: %+v", got)
		}
	}
	last, ok := f.loop.Last()
	if !ok || last.ConditionsOK == nil || *last.ConditionsOK || len(last.Failures) != 1 {
		t.Fatalf("last cycle = %+v", last)
	}
}

func TestChartFailureKeepsPreviousImage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.charts.stored[charts.Tide] = true
	f.charts.refreshErr[charts.Tide] = conditions.ErrTransport
	f.charts.refreshErr[charts.Swell] = conditions.ErrTransport

	if err := f.loop.RunOnce(context.Background(), event.SetOf(event.TideChart, event.SwellChart)); err != nil {
		t.Fatal(err)
	}
	if got := f.panel.draws[display.RegionTideChart].ImagePath; got != "/charts/tide_chart.img" {
		t.Fatalf("tide chart = %q", got)
	}
	if f.panel.draws[display.RegionSwellChart].Error == "" {
		t.Fatal("swell chart without any stored image should show an error")
	}
	if f.panel.clearAll != 0 {
		t.Fatal("two charts are not a full clear")
	}
}

func TestRenderFailureIsFatal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	boom := errors.New("panel busy line stuck")
	f.panel.renderErr = boom

	f.events.Post(event.Time)
	err := f.loop.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run err = %v, want render error", err)
	}
	if f.loop.Cycles() != 0 {
		t.Fatal("failed cycle counted as completed")
	}
}

func TestRunDrainsCoalescedEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	f.events.Post(event.Time)
	f.events.Post(event.Conditions)
	f.events.Post(event.Time)
	go func() { done <- f.loop.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for f.loop.Cycles() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("loop never completed a cycle")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	last, _ := f.loop.Last()
	if last.Events != "conditions|time" {
		t.Fatalf("events = %q", last.Events)
	}
	if f.fetcher.calls != 1 {
		t.Fatalf("coalesced conditions fetched %d times", f.fetcher.calls)
	}
}

func TestNewRequiresCoreDeps(t *testing.T) {
	t.Parallel()
	if _, err := New(Deps{}, Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error")
	}
}
