// Package app wires the board together: config, storage, the tick source,
// the dispatch loop and the HTTP API, all under one supervisor.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"spotcheck/internal/charts"
	"spotcheck/internal/conditions"
	"spotcheck/internal/config"
	"spotcheck/internal/dispatch"
	"spotcheck/internal/display"
	"spotcheck/internal/event"
	"spotcheck/internal/httpapi"
	"spotcheck/internal/metrics"
	"spotcheck/internal/power"
	rtsup "spotcheck/internal/runtime/supervisor"
	"spotcheck/internal/schedule"
	"spotcheck/internal/storage"
	"spotcheck/internal/update"
	logx "spotcheck/pkg/logx"
	"spotcheck/pkg/systemd"
)

type App struct {
	version string
	set     settings

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	current *storage.Current
	clock   *schedule.LocalClock
	events  *event.Channel
	table   *schedule.Table
	runner  *schedule.Runner

	client  *conditions.Client
	charts  *charts.Downloader
	fb      *display.Framebuffer
	arbiter *power.Arbiter
	updates *update.Checker
	metrics *metrics.Metrics
	loop    *dispatch.Loop
	http    *httpapi.Server

	// notify publishes sd_notify states; replaced in tests.
	notify notifier
}

type notifier struct {
	ready    func() (bool, error)
	stopping func() (bool, error)
	status   func(string) (bool, error)
	watchdog func(context.Context) error
}

var systemdNotifier = notifier{
	ready:    systemd.Ready,
	stopping: systemd.Stopping,
	status:   systemd.Status,
	watchdog: systemd.RunWatchdog,
}

// New loads the config file and builds every component. Nothing runs until
// Start.
func New(cfgPath, version string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newApp(cfgm, cfg, version, systemdNotifier)
}

func newApp(cfgm *config.ConfigManager, cfg *config.Config, version string, n notifier) (*App, error) {
	set, err := resolve(cfg, version)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(set.logging)
	a := &App{version: version, set: set, cfgm: cfgm, logs: logSvc, notify: n}
	a.log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	fail := func(err error) (*App, error) {
		if a.store != nil {
			_ = a.store.Close()
		}
		_ = logSvc.Close()
		return nil, err
	}

	a.store, err = storage.Open(set.storage, log.With(logx.String("comp", "storage")))
	if err != nil {
		return fail(fmt.Errorf("open storage: %w", err))
	}
	spot, err := storage.LoadSpot(context.Background(), a.store)
	if err != nil {
		a.log.Warn("stored spot unreadable; using default", logx.Err(err))
	}
	a.current = storage.NewCurrent(spot)
	a.clock = schedule.NewLocalClock(set.location)
	a.applySpotClock(spot)

	a.events = event.NewChannel()
	if a.table, err = schedule.BuildTable(set.schedule); err != nil {
		return fail(fmt.Errorf("schedule: %w", err))
	}
	a.runner = schedule.NewRunner(schedule.NewEvaluator(a.table, a.events), a.clock, log.With(logx.String("comp", "schedule")))

	if a.client, err = conditions.NewClient(set.conditions, log.With(logx.String("comp", "conditions"))); err != nil {
		return fail(err)
	}
	if a.charts, err = charts.NewDownloader(set.chartDir, a.client, log.With(logx.String("comp", "charts"))); err != nil {
		return fail(err)
	}
	sink, err := display.OpenSink(set.display, log.With(logx.String("comp", "display")))
	if err != nil {
		return fail(err)
	}
	a.fb = display.NewFramebuffer(sink)

	a.arbiter = power.NewArbiter(power.NewStatusNotifier(n.status, log.With(logx.String("comp", "power"))), log.With(logx.String("comp", "power")))
	a.updates = update.NewChecker(set.update, nil, a.arbiter, log.With(logx.String("comp", "update")))
	a.metrics = metrics.New(metrics.Sources{
		Ticks:     a.runner.Ticks,
		RuleFires: a.runner.Fires,
		Busy:      a.arbiter.Busy,
		Posts:     a.events.Posts,
	})

	a.loop, err = dispatch.New(dispatch.Deps{
		Events:     a.events,
		Conditions: a.client,
		Charts:     a.charts,
		Panel:      a.fb,
		Spots:      a.current,
		Clock:      a.clock,
		Power:      a.arbiter,
		Updates:    a.updates,
		Metrics:    a.metrics,
	}, dispatch.Config{StepTimeout: set.stepTimeout}, log.With(logx.String("comp", "dispatch")))
	if err != nil {
		return fail(err)
	}

	a.http = httpapi.New(set.http, a.apiDeps(), log.With(logx.String("comp", "http")))
	return a, nil
}

func (a *App) apiDeps() httpapi.Deps {
	return httpapi.Deps{
		Store:       a.store,
		Current:     a.current,
		Events:      a.events,
		SpotChanged: a.applySpotClock,
		Rules:       a.table.Snapshot,
		Power:       a.arbiter.State,
		LastCycle:   a.loop.Last,
		Conditions:  a.loop.Snapshot,
		Update:      a.updates.Last,
		Metrics:     a.metrics.Handler(),
		Version:     a.version,
		Now:         a.clock.Now,
	}
}

// applySpotClock follows the spot's UTC offset unless a timezone is pinned.
func (a *App) applySpotClock(s storage.Spot) {
	if a.set.location != nil {
		return
	}
	a.clock.SetLocation(schedule.OffsetLocation(s.UTCOffset))
}

// Handler exposes the API router without a listener.
func (a *App) Handler() http.Handler {
	return httpapi.Handler(a.set.http, a.apiDeps(), a.log.With(logx.String("comp", "http")))
}

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// transactional reload: a config that does not resolve is never committed.
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := resolve(cfg, a.version)
		return err
	})

	// No rule owns the spot name, so the first cycle gets it from here.
	a.events.Post(event.Label)
	a.sup.Go("dispatch", a.loop.Run)
	a.sup.Go("schedule", a.runner.Run)
	a.sup.Go("systemd.watchdog", a.notify.watchdog)
	if a.http.Enabled() {
		a.http.Start(a.sup.Context())
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, last, cfg)
				last = cfg
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	if _, err := a.notify.ready(); err != nil {
		a.log.Debug("sd_notify ready failed", logx.Err(err))
	}
	spot := a.current.Spot()
	a.log.Info("app started",
		logx.String("version", a.version),
		logx.String("spot", spot.Name),
		logx.String("tz", a.clock.Location().String()),
		logx.Int("rules", a.table.Len()),
		logx.Bool("http", a.http.Enabled()),
	)
	return nil
}

// applyConfig applies the live sections of a reloaded config.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	set, err := resolve(next, a.version)
	if err != nil {
		a.log.Warn("invalid config; keeping previous", logx.Err(err))
		return
	}

	a.logs.Apply(set.logging)
	a.http.Reconfigure(ctx, set.http)

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := a.notify.stopping(); err != nil {
		a.log.Debug("sd_notify stopping failed", logx.Err(err))
	}
	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(sctx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("http", 2*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("supervisor", 3*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	})
	step("update", 2*time.Second, a.updates.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	if err := a.sup.Err(); err != nil {
		a.log.Error("stopped with error", logx.Err(err))
	} else {
		a.log.Info("stopped")
	}
	_ = a.logs.Close()
	return errors.Join(errs...)
}
