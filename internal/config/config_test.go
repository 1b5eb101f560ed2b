package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleJSON = `{
  "logging": {"level": "debug", "console": true},
  "storage": {"driver": "sqlite", "path": "./spot.db"},
  "server": {"base_url": "https://example.test/"},
  "schedule": {"conditions_interval": "15m", "swell_chart_at": ["06:00", "18:00"]},
  "display": {"sinks": ["log", "pdf"], "pdf_path": "./frame.pdf"},
  "http": {"enabled": true, "addr": "127.0.0.1:8080", "clear_key": "k"}
}`

const sampleYAML = `
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./spot.db
server:
  base_url: https://example.test/
schedule:
  conditions_interval: 15m
  swell_chart_at: ["06:00", "18:00"]
display:
  sinks: [log, pdf]
  pdf_path: ./frame.pdf
http:
  enabled: true
  addr: 127.0.0.1:8080
  clear_key: k
`

func TestDecodeJSONAndYAMLAgree(t *testing.T) {
	j, err := Decode("c.json", []byte(sampleJSON))
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	y, err := Decode("c.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if hashConfig(j) != hashConfig(y) {
		t.Fatalf("json and yaml differ:\n%+v\n%+v", j, y)
	}
	if j.Schedule.ConditionsInterval != "15m" || len(j.Display.Sinks) != 2 {
		t.Fatalf("cfg=%+v", j)
	}
}

func TestDecodeStrict(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{"unknown field", "c.json", `{"telegram": {}}`},
		{"unknown nested", "c.json", `{"http": {"port": 80}}`},
		{"trailing", "c.json", `{} {}`},
		{"bad yaml", "c.yml", "logging: [unterminated"},
		{"unknown yaml", "c.yml", "pprof:\n  enabled: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.path, []byte(tt.body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	if d, err := ParseDurationOrDefault("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("default: %v %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "0s", time.Minute); err != nil || d != 0 {
		t.Fatalf("explicit zero: %v %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative accepted")
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatal("garbage accepted")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	a, _ := Decode("c.json", []byte(sampleJSON))
	b, _ := Decode("c.json", []byte(sampleJSON))
	b.Logging.Level = "info"
	b.HTTP.Token = "secret"
	b.Schedule.Timezone = "America/Los_Angeles"

	changed, attrs := SummarizeConfigChange(a, b)
	want := []string{"logging", "schedule", "http"}
	if len(changed) != len(want) {
		t.Fatalf("changed=%v", changed)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed=%v", changed)
		}
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}
	if got := RestartRequired(changed); len(got) != 1 || got[0] != "schedule" {
		t.Fatalf("restart=%v", got)
	}
}

func TestWatchPublishesValidReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spotcheck.json")
	if err := os.WriteFile(path, []byte(sampleJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		if cfg.Logging.Level == "reject" {
			return os.ErrInvalid
		}
		return nil
	})
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	// Give the watcher time to register the directory.
	time.Sleep(200 * time.Millisecond)

	write := func(level string) {
		b := []byte(`{"logging":{"level":"` + level + `"}}`)
		if err := os.WriteFile(path, b, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("reject")
	select {
	case got := <-ch:
		t.Fatalf("rejected config published: %+v", got.Logging)
	case <-time.After(800 * time.Millisecond):
	}

	write("warn")
	select {
	case got := <-ch:
		if got.Logging.Level != "warn" {
			t.Fatalf("level=%q", got.Logging.Level)
		}
	case <-ctx.Done():
		t.Fatal("no reload published")
	}
	if m.Get().Logging.Level != "warn" {
		t.Fatalf("Get level=%q", m.Get().Logging.Level)
	}

	cancel()
	<-done
}
