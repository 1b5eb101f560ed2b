package dispatch

import (
	"context"
	"time"

	"spotcheck/internal/charts"
	"spotcheck/internal/conditions"
	"spotcheck/internal/event"
	"spotcheck/internal/power"
	"spotcheck/internal/storage"
)

// Drainer yields the coalesced set of pending event kinds (event.Channel).
type Drainer interface {
	Drain(ctx context.Context) (event.Set, error)
}

// ConditionsFetcher retrieves the current conditions (conditions.Client).
type ConditionsFetcher interface {
	Fetch(ctx context.Context, spot storage.Spot) (conditions.Snapshot, error)
}

// ChartStore downloads charts and reports the stored copy (charts.Downloader).
type ChartStore interface {
	Refresh(ctx context.Context, k charts.Kind, spot storage.Spot) error
	Info(k charts.Kind) (charts.Info, bool)
}

// UpdateStarter kicks off a background update check (update.Checker).
type UpdateStarter interface {
	Start(ctx context.Context) bool
}

// SpotSource returns the spot in effect (storage.Current).
type SpotSource interface {
	Spot() storage.Spot
}

// PowerArbiter brackets work so the board can idle between cycles.
type PowerArbiter interface {
	EnterBusy(k power.Kind)
	EnterIdle(k power.Kind)
}

// Clock supplies local wall-clock time for the time and date regions.
type Clock interface {
	Now() time.Time
}

// Recorder receives per-cycle metrics (metrics.Metrics).
type Recorder interface {
	ObserveCycle(d time.Duration)
	Drained(kind string)
	Fetch(kind, result string)
	Render(full bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCycle(time.Duration) {}
func (nopRecorder) Drained(string)             {}
func (nopRecorder) Fetch(string, string)       {}
func (nopRecorder) Render(bool)                {}

type nopPower struct{}

func (nopPower) EnterBusy(power.Kind) {}
func (nopPower) EnterIdle(power.Kind) {}

type nopUpdater struct{}

func (nopUpdater) Start(context.Context) bool { return false }
