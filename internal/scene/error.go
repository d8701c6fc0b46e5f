package scene

import (
	"errors"
	"fmt"
	"strings"
)

// Frame is one entry of a structured error stack.
type Frame struct {
	// Site identifies the check inside the library that produced the frame.
	// It is stable across runs of the same library build.
	Site        uint32
	Function    string
	Description string
}

func (f Frame) String() string {
	return fmt.Sprintf("site %#x %s: %s", f.Site, f.Function, f.Description)
}

// Error is the structured error returned by a Loader. Frames are ordered
// innermost first.
type Error struct {
	Frames []Frame
}

// Error returns the innermost description.
func (e *Error) Error() string {
	if e == nil || len(e.Frames) == 0 {
		return "scene: load failed"
	}
	f := e.Frames[0]
	return fmt.Sprintf("scene: %s (%s)", f.Description, f.Function)
}

// Innermost returns the frame where the failure originated.
func (e *Error) Innermost() (Frame, bool) {
	if e == nil || len(e.Frames) == 0 {
		return Frame{}, false
	}
	return e.Frames[0], true
}

// Push appends an outer frame and returns e.
func (e *Error) Push(f Frame) *Error {
	e.Frames = append(e.Frames, f)
	return e
}

// HasSite reports whether any frame carries site.
func (e *Error) HasSite(site uint32) bool {
	if e == nil {
		return false
	}
	for _, f := range e.Frames {
		if f.Site == site {
			return true
		}
	}
	return false
}

// Stack renders every frame on its own line, innermost first.
func (e *Error) Stack() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	for i, f := range e.Frames {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(f.String())
	}
	return b.String()
}

// AsError extracts a structured error from err.
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) && se != nil {
		return se, true
	}
	return nil, false
}
