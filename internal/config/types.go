// Package config loads the board's JSON or YAML configuration file and
// republishes it on change.
package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("90s", "20m"); empty means the component default.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Server   ServerConfig   `json:"server"`
	Schedule ScheduleConfig `json:"schedule"`
	Display  DisplayConfig  `json:"display"`
	Update   UpdateConfig   `json:"update"`
	HTTP     HTTPConfig     `json:"http"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects where the configured spot lives.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./spotcheck.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// ServerConfig points at the conditions backend.
type ServerConfig struct {
	BaseURL   string `json:"base_url"`
	Timeout   string `json:"timeout,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ScheduleConfig tunes the rule table. Rules are built once at startup.
//
// Defaults:
//   - time_interval: "1m"
//   - conditions_interval: "20m"
//   - update_check_interval: "6h" ("0s" disables)
//   - tide_chart_at: ["03:00"]
//   - swell_chart_at: ["12:00", "17:00", "21:00"]
type ScheduleConfig struct {
	// Timezone is an IANA name. Empty follows the spot's UTC offset.
	Timezone            string   `json:"timezone,omitempty"`
	TimeInterval        string   `json:"time_interval,omitempty"`
	ConditionsInterval  string   `json:"conditions_interval,omitempty"`
	UpdateCheckInterval string   `json:"update_check_interval,omitempty"`
	TideChartAt         []string `json:"tide_chart_at,omitempty"`
	SwellChartAt        []string `json:"swell_chart_at,omitempty"`
}

type DisplayConfig struct {
	// Sinks lists frame sinks: "log", "pdf".
	Sinks       []string `json:"sinks,omitempty"`
	PDFPath     string   `json:"pdf_path,omitempty"`
	ChartDir    string   `json:"chart_dir,omitempty"`
	StepTimeout string   `json:"step_timeout,omitempty"`
}

// UpdateConfig enables the background release check. An empty manifest_url
// disables it.
type UpdateConfig struct {
	ManifestURL string `json:"manifest_url,omitempty"`
	Timeout     string `json:"timeout,omitempty"`
}

// HTTPConfig controls the configuration API.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8080").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type HTTPConfig struct {
	Enabled          bool   `json:"enabled"`
	Addr             string `json:"addr,omitempty"`
	Token            string `json:"token,omitempty"` // do not log
	AllowInsecure    bool   `json:"allow_insecure,omitempty"`
	ClearKey         string `json:"clear_key,omitempty"` // do not log
	// RefreshPerMinute bounds POST /refresh. 0 means 6; negative disables the limit.
	RefreshPerMinute int    `json:"refresh_per_minute,omitempty"`
	Pprof            bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
