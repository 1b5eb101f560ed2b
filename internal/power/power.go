// Package power arbitrates whether the board may drop into its idle state.
//
// Work phases bracket themselves with EnterBusy/EnterIdle for a Kind. The
// board is idle only when every kind's count is zero. Transitions are
// reported to a Notifier.
package power

import (
	"strings"
	"sync"
	"time"

	logx "spotcheck/pkg/logx"
)

// Kind identifies the work holding the board busy.
type Kind uint8

const (
	KindTime Kind = iota
	KindConditions
	KindTideChart
	KindSwellChart
	KindUpdate

	numKinds
)

var kindNames = [numKinds]string{
	KindTime:       "time",
	KindConditions: "conditions",
	KindTideChart:  "tide_chart",
	KindSwellChart: "swell_chart",
	KindUpdate:     "update",
}

func (k Kind) String() string {
	if k >= numKinds {
		return "unknown"
	}
	return kindNames[k]
}

// Notifier receives idle/busy transitions.
type Notifier interface {
	PowerChanged(busy bool, holders []Kind)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(busy bool, holders []Kind)

func (f NotifierFunc) PowerChanged(busy bool, holders []Kind) { f(busy, holders) }

// State is a point-in-time view of the arbiter.
type State struct {
	Busy        bool          `json:"busy"`
	Holders     []string      `json:"holders,omitempty"`
	Transitions uint64        `json:"transitions"`
	BusyTotal   time.Duration `json:"busy_total"`
	Since       time.Time     `json:"since"`
}

// Arbiter is a reference-counted busy/idle tracker. Safe for concurrent use.
type Arbiter struct {
	mu          sync.Mutex
	counts      [numKinds]int
	busy        bool
	since       time.Time
	busyTotal   time.Duration
	transitions uint64

	notifier Notifier
	log      logx.Logger
	now      func() time.Time
}

func NewArbiter(n Notifier, log logx.Logger) *Arbiter {
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Arbiter{notifier: n, log: log, now: time.Now}
	a.since = a.now()
	return a
}

// EnterBusy marks one unit of work of kind k as in progress.
func (a *Arbiter) EnterBusy(k Kind) {
	if k >= numKinds {
		return
	}
	a.mu.Lock()
	a.counts[k]++
	a.updateLocked()
}

// EnterIdle releases one unit of work of kind k. Unbalanced releases are
// ignored and logged.
func (a *Arbiter) EnterIdle(k Kind) {
	if k >= numKinds {
		return
	}
	a.mu.Lock()
	if a.counts[k] == 0 {
		a.mu.Unlock()
		a.log.Warn("power idle without matching busy", logx.String("kind", k.String()))
		return
	}
	a.counts[k]--
	a.updateLocked()
}

// Hold is EnterBusy with a release func, for defer.
func (a *Arbiter) Hold(k Kind) (release func()) {
	a.EnterBusy(k)
	var once sync.Once
	return func() { once.Do(func() { a.EnterIdle(k) }) }
}

// updateLocked recomputes the aggregate state and unlocks a.mu. The notifier
// runs outside the lock.
func (a *Arbiter) updateLocked() {
	busy := false
	var holders []Kind
	for k, n := range a.counts {
		if n > 0 {
			busy = true
			holders = append(holders, Kind(k))
		}
	}
	changed := busy != a.busy
	if changed {
		now := a.now()
		if a.busy {
			a.busyTotal += now.Sub(a.since)
		}
		a.busy = busy
		a.since = now
		a.transitions++
	}
	n := a.notifier
	a.mu.Unlock()

	if changed {
		a.log.Trace("power state", logx.Bool("busy", busy), logx.String("holders", joinKinds(holders)))
		if n != nil {
			n.PowerChanged(busy, holders)
		}
	}
}

// Busy reports whether any work is in progress.
func (a *Arbiter) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

func (a *Arbiter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := State{Busy: a.busy, Transitions: a.transitions, BusyTotal: a.busyTotal, Since: a.since}
	if a.busy {
		st.BusyTotal += a.now().Sub(a.since)
	}
	for k, n := range a.counts {
		if n > 0 {
			st.Holders = append(st.Holders, Kind(k).String())
		}
	}
	return st
}

func joinKinds(ks []Kind) string {
	if len(ks) == 0 {
		return "none"
	}
	parts := make([]string, len(ks))
	for i, k := range ks {
		parts[i] = k.String()
	}
	return strings.Join(parts, ",")
}

// StatusNotifier publishes transitions as a service-manager status line.
type StatusNotifier struct {
	publish func(string) (bool, error)
	log     logx.Logger
}

// NewStatusNotifier returns a notifier that calls publish (systemd.Status in
// production) with "idle" or "busy: <holders>".
func NewStatusNotifier(publish func(string) (bool, error), log logx.Logger) *StatusNotifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &StatusNotifier{publish: publish, log: log}
}

func (s *StatusNotifier) PowerChanged(busy bool, holders []Kind) {
	line := "idle"
	if busy {
		line = "busy: " + joinKinds(holders)
	}
	if _, err := s.publish(line); err != nil {
		s.log.Debug("status notify failed", logx.Err(err))
	}
}
