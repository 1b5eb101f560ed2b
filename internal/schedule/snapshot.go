package schedule

import "time"

// RuleInfo is a read-only view of one rule for status output.
type RuleInfo struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"` // "differential" | "discrete"
	Task      string    `json:"task"`
	Spec      string    `json:"spec"`
	LastFired time.Time `json:"last_fired,omitempty"`
	Next      time.Time `json:"next,omitempty"`
}

// Snapshot lists every rule in evaluation order with a best-effort next-fire
// estimate relative to now. It only reads atomically published state, so it
// is safe to call while the runner is ticking.
func (t *Table) Snapshot(now time.Time) []RuleInfo {
	out := make([]RuleInfo, 0, t.Len())
	for _, r := range t.Differential {
		it := RuleInfo{
			Name:      r.Name,
			Type:      "differential",
			Task:      r.Task.String(),
			Spec:      "@every " + r.Interval.String(),
			LastFired: r.LastFired(),
		}
		if !it.LastFired.IsZero() {
			// Fires on the first tick where elapsed > interval.
			it.Next = it.LastFired.Add(r.Interval + time.Second).In(now.Location())
		}
		out = append(out, it)
	}
	for _, r := range t.Discrete {
		it := RuleInfo{
			Name:      r.Name,
			Type:      "discrete",
			Task:      r.Task.String(),
			Spec:      r.Spec(),
			LastFired: r.LastFired(),
		}
		if sched, err := cronSchedule(r.Hour, r.Minute); err == nil {
			it.Next = sched.Next(now)
		}
		out = append(out, it)
	}
	return out
}
