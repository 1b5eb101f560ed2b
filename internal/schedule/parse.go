package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseAt parses a discrete target "HH:MM" where either field may be "*".
//
// Examples: "03:00", "21:00", "*:30" (every hour at :30), "*:*" (every minute).
func ParseAt(raw string) (hour int, minute int, err error) {
	s := strings.TrimSpace(raw)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", raw)
	}
	hour, err = parseField(parts[0], 23)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err = parseField(parts[1], 59)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return hour, minute, nil
}

func parseField(s string, maxV int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "*" {
		return Wildcard, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 || v > maxV {
		return 0, fmt.Errorf("out of range: %q", s)
	}
	return v, nil
}

// cronSpec converts a discrete target into a standard 5-field cron expression.
func cronSpec(hour, minute int) string {
	h, m := "*", "*"
	if hour != Wildcard {
		h = strconv.Itoa(hour)
	}
	if minute != Wildcard {
		m = strconv.Itoa(minute)
	}
	return fmt.Sprintf("%s %s * * *", m, h)
}

// cronSchedule parses the cron form of a discrete rule. It is used for
// next-fire previews only; firing is decided by Tick.
func cronSchedule(hour, minute int) (cron.Schedule, error) {
	return cron.ParseStandard(cronSpec(hour, minute))
}

// Config describes the rule table built at startup.
//
// A zero interval disables that differential rule. Empty At lists disable
// that chart's discrete rules.
type Config struct {
	TimeInterval        time.Duration
	ConditionsInterval  time.Duration
	UpdateCheckInterval time.Duration
	TideChartAt         []string
	SwellChartAt        []string
}

// DefaultConfig mirrors the board's stock refresh cadence.
func DefaultConfig() Config {
	return Config{
		TimeInterval:        time.Minute,
		ConditionsInterval:  20 * time.Minute,
		UpdateCheckInterval: 6 * time.Hour,
		TideChartAt:         []string{"03:00"},
		SwellChartAt:        []string{"12:00", "17:00", "21:00"},
	}
}

// BuildTable constructs the rule table for cfg. Every rule starts forced.
func BuildTable(cfg Config) (*Table, error) {
	t := &Table{}

	addDiff := func(name string, every time.Duration, task Task) error {
		if every <= 0 {
			return nil
		}
		r, err := NewDifferentialRule(name, every, task)
		if err != nil {
			return err
		}
		t.Differential = append(t.Differential, r)
		return nil
	}
	if err := addDiff("time", cfg.TimeInterval, TaskTime); err != nil {
		return nil, err
	}
	if err := addDiff("conditions", cfg.ConditionsInterval, TaskConditions); err != nil {
		return nil, err
	}
	if err := addDiff("update_check", cfg.UpdateCheckInterval, TaskUpdateCheck); err != nil {
		return nil, err
	}

	addDiscrete := func(prefix string, ats []string, task Task) error {
		for _, at := range ats {
			h, m, err := ParseAt(at)
			if err != nil {
				return fmt.Errorf("%s: %w", prefix, err)
			}
			if _, err := cronSchedule(h, m); err != nil {
				return fmt.Errorf("%s: %w", prefix, err)
			}
			name := prefix + "@" + strings.TrimSpace(at)
			r, err := NewDiscreteRule(name, h, m, task)
			if err != nil {
				return err
			}
			t.Discrete = append(t.Discrete, r)
		}
		return nil
	}
	if err := addDiscrete("tide_chart", cfg.TideChartAt, TaskTideChart); err != nil {
		return nil, err
	}
	if err := addDiscrete("swell_chart", cfg.SwellChartAt, TaskSwellChart); err != nil {
		return nil, err
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
