package schedule

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Wildcard matches any hour or minute in a DiscreteRule.
const Wildcard = -1

// maxRules bounds a Table so Tick can report fired rules in one uint64.
const maxRules = 64

// DifferentialRule fires when more than Interval has elapsed since it last fired.
type DifferentialRule struct {
	Name     string
	Interval time.Duration
	Task     Task

	intervalSecs int64
	// lastFiredAt is epoch seconds; written only by the evaluator, read atomically by Snapshot.
	lastFiredAt atomic.Int64
	force       bool
}

// NewDifferentialRule returns a rule armed to fire on the first tick.
func NewDifferentialRule(name string, every time.Duration, task Task) (*DifferentialRule, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("rule name required")
	}
	if every < time.Second {
		return nil, fmt.Errorf("rule %s: interval must be >= 1s", name)
	}
	if !task.valid() {
		return nil, fmt.Errorf("rule %s: unknown task %d", name, task)
	}
	return &DifferentialRule{
		Name:         name,
		Interval:     every,
		Task:         task,
		intervalSecs: int64(every / time.Second),
		force:        true,
	}, nil
}

// LastFired returns the time the rule last fired (zero if never).
func (r *DifferentialRule) LastFired() time.Time {
	sec := r.lastFiredAt.Load()
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

func (r *DifferentialRule) due(nowSecs int64) bool {
	if r.force {
		return true
	}
	elapsed := nowSecs - r.lastFiredAt.Load()
	// A clock stepped backwards yields negative elapsed: not due.
	if elapsed < 0 {
		return false
	}
	return elapsed > r.intervalSecs
}

// DiscreteRule fires once inside each minute whose hour and minute match.
type DiscreteRule struct {
	Name   string
	Hour   int // 0-23 or Wildcard
	Minute int // 0-59 or Wildcard
	Task   Task

	lastFiredAt     atomic.Int64
	force           bool
	firedThisWindow bool
	// windowMinute is the epoch minute the rule last fired in. A new minute
	// opens a new window even when both fields are wildcards.
	windowMinute int64
}

// NewDiscreteRule returns a rule armed to fire on the first tick.
func NewDiscreteRule(name string, hour, minute int, task Task) (*DiscreteRule, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("rule name required")
	}
	if hour != Wildcard && (hour < 0 || hour > 23) {
		return nil, fmt.Errorf("rule %s: invalid hour %d", name, hour)
	}
	if minute != Wildcard && (minute < 0 || minute > 59) {
		return nil, fmt.Errorf("rule %s: invalid minute %d", name, minute)
	}
	if !task.valid() {
		return nil, fmt.Errorf("rule %s: unknown task %d", name, task)
	}
	return &DiscreteRule{Name: name, Hour: hour, Minute: minute, Task: task, force: true}, nil
}

// Spec renders the rule's target as HH:MM with "*" wildcards.
func (r *DiscreteRule) Spec() string {
	return formatField(r.Hour) + ":" + formatField(r.Minute)
}

// LastFired returns the time the rule last fired (zero if never).
func (r *DiscreteRule) LastFired() time.Time {
	sec := r.lastFiredAt.Load()
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

func (r *DiscreteRule) matches(hour, minute int) bool {
	return fieldMatches(hour, r.Hour) && fieldMatches(minute, r.Minute)
}

func fieldMatches(current, want int) bool {
	return want == Wildcard || current == want
}

func formatField(v int) string {
	if v == Wildcard {
		return "*"
	}
	return fmt.Sprintf("%02d", v)
}

// Table is the fixed set of rules evaluated every tick, in insertion order.
type Table struct {
	Differential []*DifferentialRule
	Discrete     []*DiscreteRule
}

// Len returns the total number of rules.
func (t *Table) Len() int { return len(t.Differential) + len(t.Discrete) }

// Validate checks the table can be evaluated.
func (t *Table) Validate() error {
	if t.Len() == 0 {
		return errors.New("rule table is empty")
	}
	if t.Len() > maxRules {
		return fmt.Errorf("rule table has %d rules, max %d", t.Len(), maxRules)
	}
	seen := make(map[string]struct{}, t.Len())
	for _, r := range t.Differential {
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("duplicate rule name %q", r.Name)
		}
		seen[r.Name] = struct{}{}
	}
	for _, r := range t.Discrete {
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("duplicate rule name %q", r.Name)
		}
		seen[r.Name] = struct{}{}
	}
	return nil
}

// RuleName returns the name of the rule at position i of a Fired mask.
func (t *Table) RuleName(i int) string {
	if i < len(t.Differential) {
		return t.Differential[i].Name
	}
	i -= len(t.Differential)
	if i < len(t.Discrete) {
		return t.Discrete[i].Name
	}
	return ""
}
