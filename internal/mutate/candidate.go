package mutate

import (
	"fmt"

	"meshfuzz/internal/scene"
)

// SweepKind identifies one family of mutations.
type SweepKind uint8

const (
	SweepTemp SweepKind = iota
	SweepResult
	SweepTruncate
	SweepPatch
)

// Sweeps lists the sweeps in execution order.
var Sweeps = []SweepKind{SweepTemp, SweepResult, SweepTruncate, SweepPatch}

func (k SweepKind) String() string {
	switch k {
	case SweepTemp:
		return "temp limit"
	case SweepResult:
		return "result limit"
	case SweepTruncate:
		return "truncate"
	case SweepPatch:
		return "patch"
	default:
		return fmt.Sprintf("SweepKind(%d)", uint8(k))
	}
}

// Step bases. A patch step is offset*PatchStepScale plus the value index.
const (
	StepTemp       uint64 = 10000000
	StepResult     uint64 = 20000000
	StepTruncate   uint64 = 30000000
	PatchStepScale uint64 = 1000
)

// BytePatch replaces the byte at Offset with Value.
type BytePatch struct {
	Offset int  `toml:"offset" msgpack:"offset"`
	Value  byte `toml:"value" msgpack:"value"`
}

// Candidate is one load attempt.
type Candidate struct {
	// Data is the input buffer. For patch trials it already carries the
	// patched byte and belongs to the worker running the trial.
	Data  []byte
	Patch *BytePatch

	TempLimit   scene.AllocLimit
	ResultLimit scene.AllocLimit
	// Truncate, when positive, loads only the first Truncate bytes.
	Truncate int

	Step uint64
}

// Kind reports which sweep the candidate belongs to.
func (c Candidate) Kind() SweepKind {
	switch {
	case c.Patch != nil:
		return SweepPatch
	case c.Truncate > 0:
		return SweepTruncate
	case c.ResultLimit.IsSet():
		return SweepResult
	default:
		return SweepTemp
	}
}

// MustFail reports whether a successful load of the candidate is a bug.
// A patched byte may legitimately still decode.
func (c Candidate) MustFail() bool {
	return c.TempLimit.IsSet() || c.ResultLimit.IsSet() || c.Truncate > 0
}

// Input returns the bytes handed to the loader.
func (c Candidate) Input() []byte {
	if c.Truncate > 0 && c.Truncate < len(c.Data) {
		return c.Data[:c.Truncate]
	}
	return c.Data
}

// LoadOptions returns the options of the trial.
func (c Candidate) LoadOptions() scene.LoadOptions {
	return scene.LoadOptions{
		TempLimit:   c.TempLimit,
		ResultLimit: c.ResultLimit,
	}
}

// Materialize returns a private copy of data with the patch applied,
// and the candidate pointing at it. data itself is not modified.
func (c Candidate) Materialize(data []byte) (Candidate, error) {
	if c.Truncate < 0 || (c.Truncate != 0 && c.Truncate >= len(data)) {
		return c, fmt.Errorf("truncate length %d out of range for %d bytes", c.Truncate, len(data))
	}
	buf := append([]byte(nil), data...)
	if c.Patch != nil {
		if c.Patch.Offset < 0 || c.Patch.Offset >= len(buf) {
			return c, fmt.Errorf("patch offset %d out of range for %d bytes", c.Patch.Offset, len(buf))
		}
		buf[c.Patch.Offset] = c.Patch.Value
	}
	c.Data = buf
	return c, nil
}

func (c Candidate) String() string {
	switch c.Kind() {
	case SweepPatch:
		return fmt.Sprintf("step %d: patch byte %d to 0x%02x", c.Step, c.Patch.Offset, c.Patch.Value)
	case SweepTruncate:
		return fmt.Sprintf("step %d: truncate to %d bytes", c.Step, c.Truncate)
	case SweepResult:
		return fmt.Sprintf("step %d: result limit %v", c.Step, c.ResultLimit)
	default:
		return fmt.Sprintf("step %d: temp limit %v", c.Step, c.TempLimit)
	}
}
