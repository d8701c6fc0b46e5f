package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity.
type Level uint8

const (
	LevelOff   Level = iota // no tracing
	LevelError              // only emit on crashes
	LevelCase               // run + case boundaries
	LevelSweep              // sweep boundaries
	LevelTrial              // everything including single trials
)

// String returns the string representation of Level.
func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelError:
		return "error"
	case LevelCase:
		return "case"
	case LevelSweep:
		return "sweep"
	case LevelTrial:
		return "trial"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "off":
		return LevelOff, nil
	case "error":
		return LevelError, nil
	case "case":
		return LevelCase, nil
	case "sweep":
		return LevelSweep, nil
	case "trial":
		return LevelTrial, nil
	default:
		return LevelOff, fmt.Errorf("invalid trace level: %q (expected: off|error|case|sweep|trial)", s)
	}
}

// ShouldEmit returns true if the given scope should emit at this level.
func (l Level) ShouldEmit(scope Scope) bool {
	switch l {
	case LevelCase:
		return scope <= ScopeCase
	case LevelSweep:
		return scope <= ScopeSweep
	case LevelTrial:
		return true
	default:
		// LevelError only dumps the ring on crashes
		return false
	}
}
