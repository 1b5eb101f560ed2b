package app

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"spotcheck/internal/conditions"
	"spotcheck/internal/config"
	"spotcheck/internal/display"
	"spotcheck/internal/httpapi"
	"spotcheck/internal/schedule"
	"spotcheck/internal/storage"
	"spotcheck/internal/update"
	logx "spotcheck/pkg/logx"
)

const (
	defaultChartDir         = "./charts"
	defaultStepTimeout      = 20 * time.Second
	defaultRefreshPerMinute = 6
	defaultBusyTimeout      = time.Second
)

// settings is a validated, typed view of config.Config.
type settings struct {
	logging    logx.Config
	storage    storage.Config
	conditions conditions.Config
	schedule   schedule.Config
	// location pins the clock; nil follows the spot's UTC offset.
	location    *time.Location
	display     display.Config
	chartDir    string
	stepTimeout time.Duration
	update      update.Config
	http        httpapi.Config
}

func resolve(cfg *config.Config, version string) (settings, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	var (
		s   settings
		err error
	)

	s.logging = mapLogging(cfg.Logging)

	if s.storage, err = mapStorage(cfg.Storage); err != nil {
		return settings{}, err
	}

	s.conditions = conditions.Config{
		BaseURL:   strings.TrimSpace(cfg.Server.BaseURL),
		UserAgent: strings.TrimSpace(cfg.Server.UserAgent),
	}
	if s.conditions.UserAgent == "" {
		s.conditions.UserAgent = "spotcheck/" + version
	}
	if s.conditions.Timeout, err = config.ParseDurationField("server.timeout", cfg.Server.Timeout); err != nil {
		return settings{}, err
	}

	if s.schedule, err = mapSchedule(cfg.Schedule); err != nil {
		return settings{}, err
	}
	if _, err := schedule.BuildTable(s.schedule); err != nil {
		return settings{}, fmt.Errorf("schedule: %w", err)
	}
	if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return settings{}, fmt.Errorf("schedule.timezone: invalid %q: %w", tz, err)
		}
		s.location = loc
	}

	s.display = display.Config{Sinks: cfg.Display.Sinks, PDFPath: strings.TrimSpace(cfg.Display.PDFPath)}
	for _, name := range s.display.Sinks {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "log":
		case "pdf":
			if s.display.PDFPath == "" {
				return settings{}, fmt.Errorf("display.pdf_path is required for the pdf sink")
			}
		default:
			return settings{}, fmt.Errorf("display.sinks: unknown sink %q", name)
		}
	}
	s.chartDir = strings.TrimSpace(cfg.Display.ChartDir)
	if s.chartDir == "" {
		s.chartDir = defaultChartDir
	}
	s.chartDir = filepath.Clean(s.chartDir)
	if s.stepTimeout, err = config.ParseDurationOrDefault("display.step_timeout", cfg.Display.StepTimeout, defaultStepTimeout); err != nil {
		return settings{}, err
	}

	s.update = update.Config{ManifestURL: strings.TrimSpace(cfg.Update.ManifestURL), CurrentVersion: version}
	if s.update.Timeout, err = config.ParseDurationField("update.timeout", cfg.Update.Timeout); err != nil {
		return settings{}, err
	}

	if s.http, err = mapHTTP(cfg.HTTP); err != nil {
		return settings{}, err
	}
	return s, nil
}

func mapLogging(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}

func mapStorage(sc config.StorageConfig) (storage.Config, error) {
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none", "memory":
		return storage.Config{Driver: "memory"}, nil
	case "file":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, defaultBusyTimeout)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapSchedule(sc config.ScheduleConfig) (schedule.Config, error) {
	def := schedule.DefaultConfig()
	out := def
	var err error
	if out.TimeInterval, err = config.ParseDurationOrDefault("schedule.time_interval", sc.TimeInterval, def.TimeInterval); err != nil {
		return schedule.Config{}, err
	}
	if out.ConditionsInterval, err = config.ParseDurationOrDefault("schedule.conditions_interval", sc.ConditionsInterval, def.ConditionsInterval); err != nil {
		return schedule.Config{}, err
	}
	if out.UpdateCheckInterval, err = config.ParseDurationOrDefault("schedule.update_check_interval", sc.UpdateCheckInterval, def.UpdateCheckInterval); err != nil {
		return schedule.Config{}, err
	}
	if sc.TideChartAt != nil {
		out.TideChartAt = sc.TideChartAt
	}
	if sc.SwellChartAt != nil {
		out.SwellChartAt = sc.SwellChartAt
	}
	return out, nil
}

func mapHTTP(hc config.HTTPConfig) (httpapi.Config, error) {
	out := httpapi.Config{
		Enabled:          hc.Enabled,
		Addr:             strings.TrimSpace(hc.Addr),
		Token:            strings.TrimSpace(hc.Token),
		AllowInsecure:    hc.AllowInsecure,
		ClearKey:         hc.ClearKey,
		RefreshPerMinute: hc.RefreshPerMinute,
		Pprof:            hc.Pprof,
	}
	switch {
	case out.RefreshPerMinute == 0:
		out.RefreshPerMinute = defaultRefreshPerMinute
	case out.RefreshPerMinute < 0:
		out.RefreshPerMinute = 0
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("http.read_timeout", hc.ReadTimeout, 10*time.Second); err != nil {
		return httpapi.Config{}, err
	}
	// WriteTimeout defaults to 0 so /debug/pprof/profile (30s+) works.
	if out.WriteTimeout, err = config.ParseDurationField("http.write_timeout", hc.WriteTimeout); err != nil {
		return httpapi.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("http.idle_timeout", hc.IdleTimeout, 60*time.Second); err != nil {
		return httpapi.Config{}, err
	}
	return out, nil
}
