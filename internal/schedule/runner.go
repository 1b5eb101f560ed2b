package schedule

import (
	"context"
	"sync/atomic"
	"time"

	logx "spotcheck/pkg/logx"
)

// Runner is the once-per-second tick source driving an Evaluator.
type Runner struct {
	eval  *Evaluator
	clock Clock
	every time.Duration
	log   logx.Logger

	ticks atomic.Uint64
	fires atomic.Uint64
}

func NewRunner(eval *Evaluator, clock Clock, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{eval: eval, clock: clock, every: time.Second, log: log}
}

// Run ticks until ctx is done. The first tick happens immediately so forced
// rules fire right after boot.
func (r *Runner) Run(ctx context.Context) error {
	r.logTable()

	r.tick()
	t := time.NewTicker(r.every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			r.tick()
		}
	}
}

// Ticks reports how many ticks have been evaluated.
func (r *Runner) Ticks() uint64 { return r.ticks.Load() }

// Fires reports how many rule firings happened in total.
func (r *Runner) Fires() uint64 { return r.fires.Load() }

func (r *Runner) tick() {
	now := r.clock.Now()
	fired := r.eval.Tick(now)
	r.ticks.Add(1)
	if fired == 0 {
		return
	}
	r.fires.Add(uint64(fired.Count()))
	if !r.log.Enabled(logx.LevelDebug) {
		return
	}
	table := r.eval.Table()
	fired.Each(func(i int) {
		r.log.Debug("rule fired", logx.String("rule", table.RuleName(i)), logx.Time("now", now))
	})
}

func (r *Runner) logTable() {
	table := r.eval.Table()
	for _, d := range table.Differential {
		r.log.Debug("differential rule", logx.String("rule", d.Name), logx.Duration("every", d.Interval), logx.String("task", d.Task.String()))
	}
	for _, d := range table.Discrete {
		r.log.Debug("discrete rule", logx.String("rule", d.Name), logx.String("at", d.Spec()), logx.String("task", d.Task.String()))
	}
}
