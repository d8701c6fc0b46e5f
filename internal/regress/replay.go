package regress

import (
	"context"
	"fmt"

	"meshfuzz/internal/mutate"
	"meshfuzz/internal/scene"
	"meshfuzz/internal/trace"
)

// ReplayOptions configures Replay.
type ReplayOptions struct {
	Validate mutate.Validator
	// Logf receives one line per applied check.
	Logf func(format string, args ...any)
}

// ReplayResult summarizes the replay of one file.
type ReplayResult struct {
	Applied int
	// Reproduced counts checks that still fail at their site.
	Reproduced int
	// Resolved lists checks whose input no longer reaches their site.
	Resolved []Check
	Failures []mutate.TrialFailure
}

// Replay applies every check of caseName/version to a private copy of data.
// A structured error or a valid scene passes; a panic, an invalid scene or
// an out-of-range check is a failure.
func Replay(ctx context.Context, loader scene.Loader, caseName string, version uint32, data []byte, checks []Check, opts ReplayOptions) (ReplayResult, error) {
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeSweep, "replay", trace.CurrentSpan(ctx).SpanID)

	var res ReplayResult
	defer func() {
		span.WithExtra("applied", fmt.Sprint(res.Applied)).
			WithExtra("resolved", fmt.Sprint(len(res.Resolved))).
			End("")
	}()

	for _, check := range checks {
		if !check.Matches(caseName, version) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Applied++
		logf(".. %s", check.Describe())

		cand, err := check.Candidate().Materialize(data)
		if err != nil {
			res.Failures = append(res.Failures, mutate.TrialFailure{
				Sweep:  check.Candidate().Kind(),
				Kind:   mutate.OutcomeUnexpected,
				Detail: fmt.Sprintf("check for site %#x: %v", check.Site, err),
			})
			continue
		}

		out := mutate.Trial(loader, cand, opts.Validate)
		trace.Point(tracer, trace.ScopeTrial, "check", span.ID(), check.Describe()+": "+out.Kind.String())
		switch {
		case out.Kind == mutate.OutcomeFailed:
			if !out.Err.HasSite(check.Site) {
				res.Resolved = append(res.Resolved, check)
				logf("   resolved: site %#x not reached, failed with %q", check.Site, out.Err.Error())
				continue
			}
			res.Reproduced++
			if f, ok := out.Err.Innermost(); ok && f.Site == check.Site && f.Description != check.Description {
				logf("   description changed: %q", f.Description)
			}
		case out.Valid:
			res.Resolved = append(res.Resolved, check)
			logf("   resolved: input loads")
		default:
			res.Failures = append(res.Failures, mutate.TrialFailure{
				Sweep:  cand.Kind(),
				Kind:   out.Kind,
				Detail: fmt.Sprintf("check for site %#x: %s", check.Site, out.Detail),
				Stack:  out.Stack,
			})
		}
	}
	return res, nil
}
