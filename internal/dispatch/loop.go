// Package dispatch runs the single worker that turns drained event sets into
// fetches, panel updates and exactly one render per cycle.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"spotcheck/internal/charts"
	"spotcheck/internal/conditions"
	"spotcheck/internal/display"
	"spotcheck/internal/event"
	"spotcheck/internal/metrics"
	"spotcheck/internal/power"
	"spotcheck/internal/storage"
	logx "spotcheck/pkg/logx"
)

// fullClearSet is the set whose arrival erases the whole panel first.
// Label is left out because every full clear redraws the label anyway.
var fullClearSet = event.SetOf(event.Conditions, event.TideChart, event.SwellChart)

const (
	timeLayout = "15:04"
	dateLayout = "Mon Jan 2"
)

// Deps are the loop's collaborators. Events, Panel, Spots and Clock are
// required; the rest default to no-ops.
type Deps struct {
	Events     Drainer
	Conditions ConditionsFetcher
	Charts     ChartStore
	Panel      display.Panel
	Spots      SpotSource
	Clock      Clock
	Power      PowerArbiter
	Updates    UpdateStarter
	Metrics    Recorder
}

// Config tunes the loop.
type Config struct {
	// StepTimeout bounds each fetch step. Zero leaves it to the HTTP client.
	StepTimeout time.Duration
}

// CycleInfo summarizes one completed cycle.
type CycleInfo struct {
	ID           string        `json:"id"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Events       string        `json:"events"`
	FullClear    bool          `json:"full_clear"`
	FullRender   bool          `json:"full_render"`
	ConditionsOK *bool         `json:"conditions_ok,omitempty"`
	Failures     []string      `json:"failures,omitempty"`
}

// Loop is the dispatch worker. Only Run (or RunOnce) mutates the snapshot.
type Loop struct {
	d   Deps
	cfg Config
	log logx.Logger

	mu       sync.RWMutex
	snapshot conditions.Snapshot
	last     *CycleInfo
	cycles   uint64
}

func New(d Deps, cfg Config, log logx.Logger) (*Loop, error) {
	if d.Events == nil || d.Panel == nil || d.Spots == nil || d.Clock == nil {
		return nil, errors.New("dispatch: events, panel, spots and clock are required")
	}
	if d.Power == nil {
		d.Power = nopPower{}
	}
	if d.Updates == nil {
		d.Updates = nopUpdater{}
	}
	if d.Metrics == nil {
		d.Metrics = nopRecorder{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loop{d: d, cfg: cfg, log: log}, nil
}

// Run drains and handles event sets until ctx is done. A render failure is
// returned as-is; it is not recoverable in-process.
func (l *Loop) Run(ctx context.Context) error {
	for {
		set, err := l.d.Events.Drain(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := l.RunOnce(ctx, set); err != nil {
			return err
		}
	}
}

// RunOnce handles one drained set: fetch, clear, draw, render.
func (l *Loop) RunOnce(ctx context.Context, set event.Set) error {
	if set.Empty() {
		return nil
	}
	started := time.Now()
	info := CycleInfo{ID: uuid.NewString(), StartedAt: started, Events: set.String()}
	log := l.log.With(logx.String("cycle", info.ID))
	log.Debug("dispatch cycle", logx.String("events", info.Events))

	for _, k := range set.Kinds() {
		l.d.Metrics.Drained(k.String())
	}

	fullClear := set.HasAll(fullClearSet)
	info.FullClear = fullClear
	spot := l.d.Spots.Spot()

	// Fetch phase. Failures are recorded and never abort the cycle.
	var conditionsOK bool
	if set.Has(event.Conditions) {
		conditionsOK = l.fetchConditions(ctx, log, &info, spot)
		info.ConditionsOK = &conditionsOK
	}
	if set.Has(event.TideChart) {
		l.refreshChart(ctx, log, &info, spot, charts.Tide, power.KindTideChart)
	}
	if set.Has(event.SwellChart) {
		l.refreshChart(ctx, log, &info, spot, charts.Swell, power.KindSwellChart)
	}
	if set.Has(event.UpdateCheck) {
		if l.d.Updates.Start(ctx) {
			log.Debug("update check started")
		}
	}

	// Clear phase.
	p := l.d.Panel
	if fullClear {
		p.ClearAll()
	}

	// Draw phase. After a full clear every region is blank, so nothing needs
	// an individual clear and time/label must be redrawn as well.
	if set.Has(event.Time) || fullClear {
		l.d.Power.EnterBusy(power.KindTime)
		now := l.d.Clock.Now()
		if !fullClear {
			p.Clear(display.RegionTime)
			p.Clear(display.RegionDate)
		}
		p.Draw(display.RegionTime, display.Text(now.Format(timeLayout)))
		p.Draw(display.RegionDate, display.Text(now.Format(dateLayout)))
		l.d.Power.EnterIdle(power.KindTime)
	}
	if set.Has(event.Label) || fullClear {
		l.d.Power.EnterBusy(power.KindConditions)
		if !fullClear {
			p.Clear(display.RegionLabel)
		}
		p.Draw(display.RegionLabel, display.Text(spot.Name))
		l.d.Power.EnterIdle(power.KindConditions)
	}
	if set.Has(event.Conditions) {
		l.d.Power.EnterBusy(power.KindConditions)
		if !fullClear {
			p.Clear(display.RegionConditions)
		}
		if conditionsOK {
			p.Draw(display.RegionConditions, display.Content{Lines: l.Snapshot().Lines()})
		} else {
			p.Draw(display.RegionConditions, display.ErrorContent("conditions unavailable"))
		}
		l.d.Power.EnterIdle(power.KindConditions)
	}
	if set.Has(event.TideChart) {
		l.drawChart(fullClear, charts.Tide, display.RegionTideChart, power.KindTideChart)
	}
	if set.Has(event.SwellChart) {
		l.drawChart(fullClear, charts.Swell, display.RegionSwellChart, power.KindSwellChart)
	}

	// Render phase: anything beyond a clock tick repaints the whole panel.
	full := !set.Without(event.Time).Empty()
	info.FullRender = full
	if full {
		p.MarkAllDirty()
	}
	if err := p.Render(ctx); err != nil {
		log.Error("render failed", logx.Err(err))
		return fmt.Errorf("render: %w", err)
	}
	l.d.Metrics.Render(full)

	info.Duration = time.Since(started)
	l.d.Metrics.ObserveCycle(info.Duration)
	l.mu.Lock()
	l.last = &info
	l.cycles++
	l.mu.Unlock()

	log.Debug("dispatch cycle done", logx.Duration("took", info.Duration), logx.Bool("full", full), logx.Int("failures", len(info.Failures)))
	return nil
}

func (l *Loop) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.cfg.StepTimeout > 0 {
		return context.WithTimeout(ctx, l.cfg.StepTimeout)
	}
	return context.WithCancel(ctx)
}

func (l *Loop) fetchConditions(ctx context.Context, log logx.Logger, info *CycleInfo, spot storage.Spot) bool {
	if l.d.Conditions == nil {
		return false
	}
	l.d.Power.EnterBusy(power.KindConditions)
	defer l.d.Power.EnterIdle(power.KindConditions)

	sctx, cancel := l.stepContext(ctx)
	snap, err := l.d.Conditions.Fetch(sctx, spot)
	cancel()
	if err != nil {
		result := fetchResult(err)
		l.d.Metrics.Fetch("conditions", result)
		info.Failures = append(info.Failures, "conditions: "+err.Error())
		log.Warn("conditions fetch failed, keeping previous values", logx.String("result", result), logx.Err(err))
		return false
	}
	l.d.Metrics.Fetch("conditions", metrics.ResultOK)
	l.mu.Lock()
	l.snapshot = snap
	l.mu.Unlock()
	return true
}

func (l *Loop) refreshChart(ctx context.Context, log logx.Logger, info *CycleInfo, spot storage.Spot, k charts.Kind, pk power.Kind) {
	if l.d.Charts == nil {
		return
	}
	l.d.Power.EnterBusy(pk)
	defer l.d.Power.EnterIdle(pk)

	sctx, cancel := l.stepContext(ctx)
	err := l.d.Charts.Refresh(sctx, k, spot)
	cancel()
	if err != nil {
		result := fetchResult(err)
		l.d.Metrics.Fetch(string(k), result)
		info.Failures = append(info.Failures, string(k)+": "+err.Error())
		log.Warn("chart download failed, keeping previous image", logx.String("chart", string(k)), logx.String("result", result), logx.Err(err))
		return
	}
	l.d.Metrics.Fetch(string(k), metrics.ResultOK)
}

func (l *Loop) drawChart(fullClear bool, k charts.Kind, r display.Region, pk power.Kind) {
	l.d.Power.EnterBusy(pk)
	defer l.d.Power.EnterIdle(pk)
	p := l.d.Panel
	if !fullClear {
		p.Clear(r)
	}
	if l.d.Charts != nil {
		if ci, ok := l.d.Charts.Info(k); ok {
			p.Draw(r, display.Content{ImagePath: ci.Path})
			return
		}
	}
	p.Draw(r, display.ErrorContent("no chart"))
}

func fetchResult(err error) string {
	switch {
	case errors.Is(err, conditions.ErrTransport):
		return metrics.ResultTransport
	case errors.Is(err, conditions.ErrMalformed), errors.Is(err, charts.ErrNotImage):
		return metrics.ResultMalformed
	default:
		return metrics.ResultError
	}
}

// Snapshot returns the conditions currently shown.
func (l *Loop) Snapshot() conditions.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

// Last returns the most recent completed cycle.
func (l *Loop) Last() (CycleInfo, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.last == nil {
		return CycleInfo{}, false
	}
	return *l.last, true
}

// Cycles returns how many cycles completed.
func (l *Loop) Cycles() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cycles
}
