package mutate

import (
	"fmt"
	"runtime/debug"

	"meshfuzz/internal/scene"
)

// OutcomeKind classifies a single trial.
type OutcomeKind uint8

const (
	// OutcomeLoaded: the scene loaded and passed validation.
	OutcomeLoaded OutcomeKind = iota
	// OutcomeFailed: the loader returned a structured error.
	OutcomeFailed
	// OutcomeUnexpected: the loader broke its contract without crashing.
	OutcomeUnexpected
	// OutcomeCrashed: the loader or the validator panicked.
	OutcomeCrashed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeLoaded:
		return "loaded"
	case OutcomeFailed:
		return "failed"
	case OutcomeUnexpected:
		return "unexpected"
	case OutcomeCrashed:
		return "crashed"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", uint8(k))
	}
}

// Harmful reports whether the outcome is a harness failure.
func (k OutcomeKind) Harmful() bool {
	return k == OutcomeUnexpected || k == OutcomeCrashed
}

// Validator checks a loaded scene.
type Validator func(*scene.Scene) error

// Outcome is the result of one trial.
type Outcome struct {
	Kind  OutcomeKind
	Scene *scene.Scene
	Err   *scene.Error
	Panic any
	Stack []byte
	// Valid is set when a scene was produced and passed validation.
	Valid bool
	// Detail explains unexpected and crashed outcomes.
	Detail string
}

// Trial runs one load attempt. Panics raised by the loader or by validate
// are recovered and reported as OutcomeCrashed.
func Trial(loader scene.Loader, c Candidate, validate Validator) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{
				Kind:   OutcomeCrashed,
				Panic:  r,
				Stack:  debug.Stack(),
				Detail: fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	s, err := loader.Load(c.Input(), c.LoadOptions())
	if err != nil {
		se, ok := scene.AsError(err)
		if !ok {
			return Outcome{Kind: OutcomeUnexpected, Detail: "unstructured error: " + err.Error()}
		}
		return Outcome{Kind: OutcomeFailed, Err: se}
	}
	if s == nil {
		return Outcome{Kind: OutcomeUnexpected, Detail: "no scene and no error"}
	}
	if validate != nil {
		if verr := validate(s); verr != nil {
			return Outcome{Kind: OutcomeUnexpected, Scene: s, Detail: "invalid scene: " + verr.Error()}
		}
	}
	if c.MustFail() {
		return Outcome{Kind: OutcomeUnexpected, Scene: s, Valid: true, Detail: "loaded under " + c.String()}
	}
	return Outcome{Kind: OutcomeLoaded, Scene: s, Valid: true}
}
