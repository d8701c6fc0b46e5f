package ui

import (
	"strings"
	"testing"

	"meshfuzz/internal/harness"
	"meshfuzz/internal/mutate"
)

func TestProgressModelTracksCases(t *testing.T) {
	m := NewProgressModel("meshfuzz", []string{"cube", "sphere"}, nil).(*progressModel)
	m.applyEvent(harness.Event{Case: "cube", Status: harness.StatusWorking, Stage: harness.StageSweep,
		File: "cube_100_binary.mfx", Sweep: mutate.SweepTruncate, Done: 5, Total: 10})
	m.applyEvent(harness.Event{Case: "sphere", Status: harness.StatusError})
	m.applyEvent(harness.Event{Case: "unknown", Status: harness.StatusDone})

	view := m.View()
	for _, want := range []string{"running", "cube  cube_100_binary.mfx truncate 5/10", "fail", "sphere"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if m.items[0].frac != 0.5 {
		t.Fatalf("frac = %v", m.items[0].frac)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefgh", 5); got != "ab..." {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 5); got != "abc" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("日本語テキスト", 7); got != "日本..." {
		t.Fatalf("truncate wide = %q", got)
	}
	if got := truncate("abcdef", 2); got != "ab" {
		t.Fatalf("truncate narrow = %q", got)
	}
}
