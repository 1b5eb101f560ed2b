package schedule

import (
	"math/bits"
	"testing"
	"time"

	"spotcheck/internal/event"
)

// countingPoster records how often each kind was posted without allocating.
type countingPoster struct {
	counts [32]int
	total  int
	sets   int
}

func (p *countingPoster) PostSet(s event.Set) {
	p.sets++
	for m := uint32(s); m != 0; m &= m - 1 {
		p.counts[bits.TrailingZeros32(m)]++
		p.total++
	}
}

func (p *countingPoster) count(k event.Kind) int {
	return p.counts[bits.TrailingZeros32(uint32(k))]
}

func mustDiff(t *testing.T, name string, every time.Duration, task Task) *DifferentialRule {
	t.Helper()
	r, err := NewDifferentialRule(name, every, task)
	if err != nil {
		t.Fatalf("NewDifferentialRule: %v", err)
	}
	return r
}

func mustDiscrete(t *testing.T, name string, hour, minute int, task Task) *DiscreteRule {
	t.Helper()
	r, err := NewDiscreteRule(name, hour, minute, task)
	if err != nil {
		t.Fatalf("NewDiscreteRule: %v", err)
	}
	return r
}

func TestDifferentialFiresOnlyWhenElapsedExceedsInterval(t *testing.T) {
	t.Parallel()
	r := mustDiff(t, "time", time.Minute, TaskTime)
	p := &countingPoster{}
	e := NewEvaluator(&Table{Differential: []*DifferentialRule{r}}, p)

	start := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	var fireOffsets []int
	for s := 0; s <= 200; s++ {
		now := start.Add(time.Duration(s) * time.Second)
		before := p.total
		wantDue := r.force || now.Unix()-r.lastFiredAt.Load() > 60
		fired := e.Tick(now)
		if got := p.total - before; got > 1 {
			t.Fatalf("tick %d posted %d times", s, got)
		}
		if (fired != 0) != wantDue {
			t.Fatalf("tick %d: fired=%v want %v", s, fired != 0, wantDue)
		}
		if fired != 0 {
			fireOffsets = append(fireOffsets, s)
		}
	}

	want := []int{0, 61, 122, 183}
	if len(fireOffsets) != len(want) {
		t.Fatalf("fired at %v, want %v", fireOffsets, want)
	}
	for i := range want {
		if fireOffsets[i] != want[i] {
			t.Fatalf("fired at %v, want %v", fireOffsets, want)
		}
	}
	if p.count(event.Time) != len(want) {
		t.Fatalf("time posts = %d", p.count(event.Time))
	}
}

func TestDifferentialIgnoresClockSteppingBackwards(t *testing.T) {
	t.Parallel()
	r := mustDiff(t, "conditions", 20*time.Minute, TaskConditions)
	p := &countingPoster{}
	e := NewEvaluator(&Table{Differential: []*DifferentialRule{r}}, p)

	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	e.Tick(t0) // forced
	if p.total != 1 {
		t.Fatalf("forced fire missing")
	}

	// NTP correction pulls the clock back an hour: negative elapsed is "not due".
	if f := e.Tick(t0.Add(-time.Hour)); f != 0 {
		t.Fatalf("fired on negative elapsed")
	}
	if got := r.LastFired(); !got.Equal(t0) {
		t.Fatalf("LastFired = %v, want %v", got, t0)
	}
	if f := e.Tick(t0.Add(20 * time.Minute)); f != 0 {
		t.Fatalf("fired at exactly the interval")
	}
	if f := e.Tick(t0.Add(20*time.Minute + time.Second)); f == 0 {
		t.Fatalf("did not fire after the interval")
	}
}

func TestDiscreteFiresOncePerDayAcrossSweep(t *testing.T) {
	t.Parallel()
	r := mustDiscrete(t, "tide", 3, 0, TaskTideChart)
	p := &countingPoster{}
	e := NewEvaluator(&Table{Discrete: []*DiscreteRule{r}}, p)

	start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	e.Tick(start) // startup force
	if p.total != 1 {
		t.Fatalf("forced fire missing, got %d", p.total)
	}

	perDay := map[int]int{}
	// Four ticks inside every minute for two days.
	for step := 1; step < 2*24*60*4; step++ {
		now := start.Add(time.Duration(step) * 15 * time.Second)
		if e.Tick(now) != 0 {
			if now.Hour() != 3 || now.Minute() != 0 {
				t.Fatalf("fired outside window at %v", now)
			}
			perDay[now.YearDay()]++
		}
	}
	if len(perDay) != 2 {
		t.Fatalf("fired on %d days, want 2 (%v)", len(perDay), perDay)
	}
	for day, n := range perDay {
		if n != 1 {
			t.Fatalf("day %d fired %d times, want 1", day, n)
		}
	}
}

func TestDiscreteWildcardFiresOncePerMinute(t *testing.T) {
	t.Parallel()
	r := mustDiscrete(t, "every-minute", Wildcard, Wildcard, TaskTime)
	p := &countingPoster{}
	e := NewEvaluator(&Table{Discrete: []*DiscreteRule{r}}, p)

	start := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	perMinute := map[int64]int{}
	for step := 0; step < 3*60*6; step++ {
		now := start.Add(time.Duration(step) * 10 * time.Second)
		if e.Tick(now) != 0 {
			perMinute[now.Unix()/60]++
		}
	}
	if len(perMinute) != 180 {
		t.Fatalf("fired in %d minutes, want 180", len(perMinute))
	}
	for m, n := range perMinute {
		if n != 1 {
			t.Fatalf("minute %d fired %d times", m, n)
		}
	}
}

func TestDiscreteHourWildcard(t *testing.T) {
	t.Parallel()
	r := mustDiscrete(t, "half-past", Wildcard, 30, TaskConditions)
	p := &countingPoster{}
	e := NewEvaluator(&Table{Discrete: []*DiscreteRule{r}}, p)

	start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	e.Tick(start)
	fires := 0
	for step := 1; step < 24*60*2; step++ {
		if e.Tick(start.Add(time.Duration(step)*30*time.Second)) != 0 {
			fires++
		}
	}
	if fires != 24 {
		t.Fatalf("fires = %d, want 24", fires)
	}
}

func TestForcedDiscreteRearmsOutsideWindow(t *testing.T) {
	t.Parallel()
	r := mustDiscrete(t, "swell", 12, 0, TaskSwellChart)
	p := &countingPoster{}
	e := NewEvaluator(&Table{Discrete: []*DiscreteRule{r}}, p)

	boot := time.Date(2024, 3, 10, 11, 59, 58, 0, time.UTC)
	e.Tick(boot)
	if r.firedThisWindow {
		t.Fatal("window flag should reset when the forced tick does not match")
	}
	e.Tick(boot.Add(time.Second))
	e.Tick(boot.Add(2 * time.Second)) // 12:00:00
	e.Tick(boot.Add(3 * time.Second))
	if got := p.count(event.SwellChart); got != 2 {
		t.Fatalf("swell posts = %d, want 2 (boot + 12:00)", got)
	}
}

func TestFirstTickFiresEveryDeclaredRule(t *testing.T) {
	t.Parallel()
	table, err := BuildTable(DefaultConfig())
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	ch := event.NewChannel()
	e := NewEvaluator(table, ch)

	fired := e.Tick(time.Date(2024, 3, 10, 7, 13, 0, 0, time.UTC))
	if fired.Count() != table.Len() {
		t.Fatalf("fired %d rules, want %d", fired.Count(), table.Len())
	}
	want := event.SetOf(event.Time, event.Conditions, event.UpdateCheck, event.TideChart, event.SwellChart)
	if got := ch.Pending(); got != want {
		t.Fatalf("pending = %s, want %s", got, want)
	}

	var names []string
	fired.Each(func(i int) { names = append(names, table.RuleName(i)) })
	if names[len(names)-1] != "swell_chart@21:00" {
		t.Fatalf("last declared rule not evaluated: %v", names)
	}
}

func TestTickPostsFiredKindsOnce(t *testing.T) {
	t.Parallel()
	table, err := BuildTable(DefaultConfig())
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	p := &countingPoster{}
	e := NewEvaluator(table, p)

	now := time.Date(2024, 3, 10, 7, 13, 0, 0, time.UTC)
	e.Tick(now)
	if p.sets != 1 || p.total != 5 {
		t.Fatalf("sets=%d kinds=%d, want one set of 5 kinds", p.sets, p.total)
	}
	// Nothing is due half a second later.
	before := p.sets
	e.Tick(now.Add(500 * time.Millisecond))
	if p.sets != before {
		t.Fatalf("empty tick posted: sets=%d", p.sets)
	}
}

func TestTickDoesNotAllocate(t *testing.T) {
	table, err := BuildTable(DefaultConfig())
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	e := NewEvaluator(table, event.NewChannel())
	now := time.Date(2024, 3, 10, 2, 59, 0, 0, time.UTC)
	allocs := testing.AllocsPerRun(500, func() {
		now = now.Add(time.Second)
		e.Tick(now)
	})
	if allocs != 0 {
		t.Fatalf("Tick allocated %.1f times per run", allocs)
	}
}
