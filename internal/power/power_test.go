package power

import (
	"sync"
	"testing"

	logx "spotcheck/pkg/logx"
)

type recorder struct {
	mu     sync.Mutex
	events []bool
}

func (r *recorder) PowerChanged(busy bool, holders []Kind) {
	r.mu.Lock()
	r.events = append(r.events, busy)
	r.mu.Unlock()
}

func TestArbiterRefcountsPerKind(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	a := NewArbiter(rec, logx.Nop())

	a.EnterBusy(KindConditions)
	a.EnterBusy(KindConditions)
	a.EnterBusy(KindTideChart)
	a.EnterIdle(KindConditions)
	if !a.Busy() {
		t.Fatal("should still be busy")
	}
	a.EnterIdle(KindTideChart)
	if !a.Busy() {
		t.Fatal("conditions still holds the board")
	}
	a.EnterIdle(KindConditions)
	if a.Busy() {
		t.Fatal("should be idle")
	}
	if len(rec.events) != 2 || !rec.events[0] || rec.events[1] {
		t.Fatalf("transitions = %v, want [true false]", rec.events)
	}
}

func TestArbiterIgnoresUnbalancedIdle(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	a := NewArbiter(rec, logx.Nop())
	a.EnterIdle(KindTime)
	if a.Busy() || len(rec.events) != 0 {
		t.Fatalf("unbalanced idle changed state: busy=%v events=%v", a.Busy(), rec.events)
	}
	release := a.Hold(KindTime)
	release()
	release()
	if st := a.State(); st.Busy || st.Transitions != 2 {
		t.Fatalf("state = %+v", st)
	}
}

func TestArbiterConcurrentHolds(t *testing.T) {
	t.Parallel()
	a := NewArbiter(nil, logx.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(k Kind) {
			defer wg.Done()
			release := a.Hold(k)
			release()
		}(Kind(i % int(numKinds)))
	}
	wg.Wait()
	if a.Busy() {
		t.Fatal("arbiter left busy after all holds released")
	}
}

func TestStatusNotifierLines(t *testing.T) {
	t.Parallel()
	var lines []string
	n := NewStatusNotifier(func(s string) (bool, error) {
		lines = append(lines, s)
		return true, nil
	}, logx.Nop())
	a := NewArbiter(n, logx.Nop())
	a.EnterBusy(KindSwellChart)
	a.EnterIdle(KindSwellChart)
	if len(lines) != 2 || lines[0] != "busy: swell_chart" || lines[1] != "idle" {
		t.Fatalf("lines = %v", lines)
	}
}
