package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	m := &dto.Metric{}
	if err := cv.WithLabelValues(labels...).Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func TestRecordsDispatchCounters(t *testing.T) {
	t.Parallel()
	m := New(Sources{})
	m.Fetch("conditions", ResultOK)
	m.Fetch("conditions", ResultTransport)
	m.Fetch("conditions", ResultTransport)
	m.Drained("time")
	m.Render(true)
	m.Render(false)
	m.Render(false)
	m.ObserveCycle(120 * time.Millisecond)

	if got := counterValue(m.fetches, "conditions", ResultTransport); got != 2 {
		t.Fatalf("transport fetches = %v", got)
	}
	if got := counterValue(m.renders, "partial"); got != 2 {
		t.Fatalf("partial renders = %v", got)
	}
	h := &dto.Metric{}
	if err := m.cycleDuration.Write(h); err != nil {
		t.Fatal(err)
	}
	if h.GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("cycle samples = %d", h.GetHistogram().GetSampleCount())
	}
}

func TestHandlerExposesSources(t *testing.T) {
	t.Parallel()
	m := New(Sources{
		Ticks:     func() uint64 { return 42 },
		RuleFires: func() uint64 { return 7 },
		Busy:      func() bool { return true },
		Posts:     func() uint64 { return 9 },
	})
	m.Drained("conditions")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)
	for _, want := range []string{
		"spotcheck_scheduler_ticks_total 42",
		"spotcheck_scheduler_rule_fires_total 7",
		"spotcheck_power_busy 1",
		"spotcheck_events_posted_total 9",
		`spotcheck_events_drained_total{kind="conditions"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in exposition", want)
		}
	}
}
