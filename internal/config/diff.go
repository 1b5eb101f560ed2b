package config

import (
	"reflect"
	"strings"

	logx "spotcheck/pkg/logx"
)

// liveSections are applied on reload; everything else needs a restart.
var liveSections = map[string]bool{"logging": true, "http": true}

// SummarizeConfigChange returns the changed section names and safe log
// attributes describing them. Tokens and keys are reported as set/unset only.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}

	if !reflect.DeepEqual(oldCfg.Server, newCfg.Server) {
		changed = append(changed, "server")
		attrs = append(attrs, logx.String("server.base_url", strings.TrimSpace(newCfg.Server.BaseURL)))
	}

	if !reflect.DeepEqual(oldCfg.Schedule, newCfg.Schedule) {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.String("schedule.timezone", strings.TrimSpace(newCfg.Schedule.Timezone)),
			logx.String("schedule.conditions_interval", newCfg.Schedule.ConditionsInterval),
		)
	}

	if !reflect.DeepEqual(oldCfg.Display, newCfg.Display) {
		changed = append(changed, "display")
		attrs = append(attrs, logx.String("display.sinks", strings.Join(newCfg.Display.Sinks, ",")))
	}

	if oldCfg.Update != newCfg.Update {
		changed = append(changed, "update")
		attrs = append(attrs, logx.Bool("update.enabled", strings.TrimSpace(newCfg.Update.ManifestURL) != ""))
	}

	o, n := oldCfg.HTTP, newCfg.HTTP
	if o != n {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", n.Enabled),
			logx.String("http.addr", strings.TrimSpace(n.Addr)),
			logx.Bool("http.token_set", strings.TrimSpace(n.Token) != ""),
			logx.Bool("http.clear_key_set", n.ClearKey != ""),
			logx.Bool("http.pprof", n.Pprof),
		)
	}

	return changed, attrs
}

// RestartRequired filters changed down to sections that are not applied live.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if !liveSections[s] {
			out = append(out, s)
		}
	}
	return out
}
