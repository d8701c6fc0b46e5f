package harness

import (
	"time"

	"meshfuzz/internal/mutate"
)

// Stage describes a phase of one case.
type Stage string

const (
	StageOracle Stage = "oracle"
	StageLoad   Stage = "load"
	StageDiff   Stage = "diff"
	StageSweep  Stage = "sweep"
	StageReplay Stage = "replay"
)

// Status captures progress state within a stage.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Event reports progress for a case (or for the whole run when Case is
// empty).
type Event struct {
	Case   string
	File   string
	Stage  Stage
	Status Status
	// Sweep, Done and Total are set for StageSweep.
	Sweep   mutate.SweepKind
	Done    int
	Total   int
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

type nopSink struct{}

func (nopSink) OnEvent(Event) {}
