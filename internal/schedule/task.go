package schedule

import "spotcheck/internal/event"

// Task is the closed set of actions a rule can trigger.
type Task uint8

const (
	TaskTime Task = iota
	TaskConditions
	TaskTideChart
	TaskSwellChart
	TaskUpdateCheck

	numTasks
)

var taskEvents = [numTasks]event.Kind{
	TaskTime:        event.Time,
	TaskConditions:  event.Conditions,
	TaskTideChart:   event.TideChart,
	TaskSwellChart:  event.SwellChart,
	TaskUpdateCheck: event.UpdateCheck,
}

var taskNames = [numTasks]string{
	TaskTime:        "time",
	TaskConditions:  "conditions",
	TaskTideChart:   "tide_chart",
	TaskSwellChart:  "swell_chart",
	TaskUpdateCheck: "update_check",
}

// Event returns the event kind posted when a rule with this task fires.
func (t Task) Event() event.Kind {
	if t >= numTasks {
		return 0
	}
	return taskEvents[t]
}

func (t Task) String() string {
	if t >= numTasks {
		return "unknown"
	}
	return taskNames[t]
}

func (t Task) valid() bool { return t < numTasks }
