// Package trace records what the fuzz harness is doing while it runs.
//
// Long sweeps can take minutes per fixture, so the harness emits structured
// span events for every run, test case, sweep and (at the most verbose
// level) trial. Events go to a stream, to an in-memory ring that is dumped
// when a case crashes, or to both.
//
// # Usage
//
//	meshfuzz run --trace=- --trace-level=sweep -t cube
//
// # Levels
//
//   - LevelOff: no tracing
//   - LevelError: only ring dumps on crashes
//   - LevelCase: run and test-case boundaries
//   - LevelSweep: sweep boundaries and replayed checks
//   - LevelTrial: every trial (very noisy)
//
// # Context propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopeSweep, "sweep:truncate", parentID)
//	defer span.End("")
package trace
