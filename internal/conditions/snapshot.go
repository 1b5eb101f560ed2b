package conditions

import (
	"strconv"
	"time"
)

// Sentinels substituted for fields the API did not return usable values for.
const (
	TemperatureUnknown = -99
	WindSpeedUnknown   = 99
	WindDirUnknown     = "X"
	TideHeightUnknown  = "?"
)

// Snapshot is the last successfully parsed set of conditions.
// The zero value means nothing has been fetched yet.
type Snapshot struct {
	Temperature int       `json:"temp"`
	WindSpeed   int       `json:"wind_speed"`
	WindDir     string    `json:"wind_dir"`
	TideHeight  string    `json:"tide_height"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// IsZero reports whether the snapshot was never filled.
func (s Snapshot) IsZero() bool { return s.FetchedAt.IsZero() }

// Lines renders the snapshot as display text, one value per line.
func (s Snapshot) Lines() []string {
	temp := strconv.Itoa(s.Temperature) + "F"
	if s.Temperature == TemperatureUnknown {
		temp = "--F"
	}
	wind := strconv.Itoa(s.WindSpeed) + "kt " + s.WindDir
	if s.WindSpeed == WindSpeedUnknown {
		wind = "--kt " + s.WindDir
	}
	return []string{temp, wind, s.TideHeight + "ft"}
}
