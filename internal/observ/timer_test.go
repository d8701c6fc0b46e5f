package observ

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTimerReport(t *testing.T) {
	tm := NewTimer()
	i := tm.Begin("load")
	tm.End(i, "")
	j := tm.Begin("sweep:truncate")
	tm.EndItems(j, 120, "")
	tm.Add("sweep:patch", 2*time.Second, 10)
	if err := tm.Measure("diff", func() error { return errors.New("boom") }); err == nil {
		t.Fatal("Measure must return the phase error")
	}

	r := tm.Report()
	if len(r.Phases) != 4 {
		t.Fatalf("phases = %d", len(r.Phases))
	}
	if r.Phases[1].Items != 120 || r.Phases[3].Note != "failed" {
		t.Fatalf("report = %+v", r.Phases)
	}
	if r.Phases[2].Rate != 5 {
		t.Fatalf("report = %+v", r.Phases)
	}
	s := tm.Summary()
	for _, want := range []string{"load", "sweep:truncate", "120 items", "// failed", "total"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
}

func TestTimerIgnoresBadIndex(t *testing.T) {
	tm := NewTimer()
	tm.End(3, "x")
	var nilTimer *Timer
	nilTimer.EndItems(0, 1, "")
	if len(nilTimer.Report().Phases) != 0 {
		t.Fatal("nil timer report must be empty")
	}
}
