package harness

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strconv"
	"time"

	"meshfuzz/internal/meshdiff"
	"meshfuzz/internal/meshfmt"
	"meshfuzz/internal/mutate"
	"meshfuzz/internal/observ"
	"meshfuzz/internal/oracle"
	"meshfuzz/internal/regress"
	"meshfuzz/internal/report"
	"meshfuzz/internal/scene"
	"meshfuzz/internal/testkit"
	"meshfuzz/internal/trace"
)

// Options configures a Runner.
type Options struct {
	Loader scene.Loader

	// Discover runs the corruption sweeps and fills Registry; otherwise
	// Checks are replayed.
	Discover bool
	Registry *regress.Registry
	Checks   []regress.Check

	// Versions and Encodings filter the fixtures; empty means all.
	Versions  []uint32
	Encodings []meshfmt.Encoding

	Fuzz   mutate.Options
	Oracle oracle.Options
	Diff   meshdiff.Options

	// Cache, when set, stores discovery results per fixture. Library names
	// the loader build in cache keys.
	Cache   *regress.DiskCache
	Library string

	Sink ProgressSink
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	Name     string
	Passed   bool
	Files    int
	Trials   int
	Failures *report.Bag
	Log      *report.Log
	Timing   observ.Report
	Elapsed  time.Duration
}

// Runner executes cases.
type Runner struct {
	opts Options
	sink ProgressSink
}

// New creates a runner.
func New(opts Options) *Runner {
	if opts.Loader == nil {
		opts.Loader = meshfmt.Loader{}
	}
	if opts.Discover && opts.Registry == nil {
		opts.Registry = regress.NewRegistry()
	}
	if opts.Fuzz.Validate == nil {
		opts.Fuzz.Validate = testkit.CheckScene
	}
	sink := opts.Sink
	if sink == nil {
		sink = nopSink{}
	}
	return &Runner{opts: opts, sink: sink}
}

// Registry returns the discovery registry.
func (r *Runner) Registry() *regress.Registry { return r.opts.Registry }

// Run executes cases in order. onResult, if set, is called after each case.
// The error is non-nil only when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, cases []Case, onResult func(CaseResult)) ([]CaseResult, error) {
	for _, c := range cases {
		r.sink.OnEvent(Event{Case: c.Name, Status: StatusQueued})
	}
	results := make([]CaseResult, 0, len(cases))
	for _, c := range cases {
		res, err := r.RunCase(ctx, c)
		results = append(results, res)
		if onResult != nil {
			onResult(res)
		}
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// caseRun is the mutable state of one case.
type caseRun struct {
	r      *Runner
	c      Case
	log    *report.Log
	bag    *report.Bag
	timer  *observ.Timer
	meshes []oracle.Mesh
	trials int
}

// fail records a failure located at the caller.
func (cr *caseRun) fail(msg string, frames []scene.Frame, stack []byte) {
	f := report.Failure{
		Case:    cr.c.Name,
		Message: msg,
		Hint:    cr.log.Hint(),
		Frames:  frames,
		Stack:   stack,
	}.At(1)
	cr.bag.Add(f)
	cr.log.Logf("FAIL %s:%d: %s", f.File, f.Line, msg)
}

// RunCase runs one case. A panic outside the trial boundary fails the case.
func (r *Runner) RunCase(ctx context.Context, c Case) (res CaseResult, err error) {
	start := time.Now()
	cr := &caseRun{r: r, c: c, log: report.NewLog(), bag: report.NewBag(0), timer: observ.NewTimer()}

	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeCase, c.Name, trace.CurrentSpan(ctx).SpanID)
	ctx = trace.WithSpan(ctx, span)
	r.sink.OnEvent(Event{Case: c.Name, Status: StatusWorking})

	defer func() {
		if p := recover(); p != nil {
			cr.fail(fmt.Sprintf("panic: %v", p), nil, debug.Stack())
		}
		res = CaseResult{
			Name:     c.Name,
			Passed:   cr.bag.Empty() && err == nil,
			Files:    res.Files,
			Trials:   cr.trials,
			Failures: cr.bag,
			Log:      cr.log,
			Timing:   cr.timer.Report(),
			Elapsed:  time.Since(start),
		}
		status, detail := StatusDone, "pass"
		if !res.Passed {
			status, detail = StatusError, "fail"
		}
		span.WithExtra("files", strconv.Itoa(res.Files)).End(detail)
		r.sink.OnEvent(Event{Case: c.Name, Status: status, Elapsed: res.Elapsed})
	}()

	if c.Oracle != "" {
		if !cr.loadOracle() {
			return res, nil
		}
	}

	for _, f := range c.Files {
		if !r.selected(f) {
			continue
		}
		data, rerr := os.ReadFile(f.Path)
		if rerr != nil {
			if errors.Is(rerr, fs.ErrNotExist) {
				continue
			}
			cr.fail(fmt.Sprintf("read %s: %v", f.Path, rerr), nil, nil)
			continue
		}
		res.Files++
		if err = cr.runFile(ctx, f, data); err != nil {
			return res, err
		}
	}
	if res.Files == 0 {
		cr.log.Hintf("no fixture of %q matches the version and encoding filters", c.Name)
		cr.fail("file not found", nil, nil)
	}
	return res, nil
}

func (r *Runner) selected(f File) bool {
	if len(r.opts.Versions) > 0 && !slices.Contains(r.opts.Versions, f.Version) {
		return false
	}
	if len(r.opts.Encodings) > 0 && !slices.Contains(r.opts.Encodings, f.Encoding) {
		return false
	}
	return true
}

func (cr *caseRun) loadOracle() bool {
	cr.r.sink.OnEvent(Event{Case: cr.c.Name, File: cr.c.Oracle, Stage: StageOracle, Status: StatusWorking})
	err := cr.timer.Measure("oracle", func() error {
		data, err := os.ReadFile(cr.c.Oracle)
		if err != nil {
			return err
		}
		cr.meshes, err = oracle.Parse(data, cr.r.opts.Oracle)
		return err
	})
	if err != nil {
		cr.fail(fmt.Sprintf("oracle %s: %v", filepath.Base(cr.c.Oracle), err), nil, nil)
		return false
	}
	cr.log.Logf("Oracle %s: %d meshes", filepath.Base(cr.c.Oracle), len(cr.meshes))
	return true
}

func kb(n int) float64 { return float64(n) / 1024 }

func (cr *caseRun) runFile(ctx context.Context, f File, data []byte) error {
	name := filepath.Base(f.Path)
	ascii := f.Encoding == meshfmt.ASCII
	packed := regress.PackVersion(f.Version, ascii)
	cr.log.Logf("%s", name)
	cr.log.Push()
	defer cr.log.Pop()

	cr.r.sink.OnEvent(Event{Case: cr.c.Name, File: name, Stage: StageLoad, Status: StatusWorking})
	idx := cr.timer.Begin("load " + name)
	out := mutate.Trial(cr.r.opts.Loader, mutate.Candidate{Data: data}, cr.r.opts.Fuzz.Validate)
	cr.timer.End(idx, out.Kind.String())
	loadTime := cr.timer.Report().Phases[idx].DurationMS
	switch out.Kind {
	case mutate.OutcomeLoaded:
	case mutate.OutcomeFailed:
		cr.fail("failed to load "+name+": "+out.Err.Error(), out.Err.Frames, nil)
		return nil
	default:
		cr.fail("failed to load "+name+": "+out.Detail, nil, out.Stack)
		return nil
	}

	s := out.Scene
	md := s.Metadata
	if md.ASCII != ascii {
		cr.fail(fmt.Sprintf("%s: ascii = %v, file name says %v", name, md.ASCII, f.Encoding), nil, nil)
	}
	if md.Version != f.Version {
		cr.fail(fmt.Sprintf("%s: version = %d, file name says %d", name, md.Version, f.Version), nil, nil)
	}
	cr.log.Logf("Loaded in %.2fms: File %.1fkB, temp %.1fkB (%d allocs), result %.1fkB (%d allocs)",
		loadTime, kb(len(data)), kb(md.TempMemory), md.TempAllocs, kb(md.ResultMemory), md.ResultAllocs)

	if cr.meshes != nil {
		var acc meshdiff.Accumulator
		err := cr.timer.Measure("diff "+name, func() error {
			return meshdiff.Diff(s, cr.meshes, &acc, cr.r.opts.Diff)
		})
		if err != nil {
			cr.fail(fmt.Sprintf("%s: %v", name, err), nil, nil)
			return nil
		}
		cr.log.Logf("Diff %s", acc)
	}

	if cr.r.opts.Discover {
		return cr.discover(ctx, name, data, packed, md)
	}
	return cr.replay(ctx, name, data, packed)
}

func (cr *caseRun) discover(ctx context.Context, name string, data []byte, packed uint32, clean scene.Metadata) error {
	opts := cr.r.opts
	key := regress.CacheKey{
		Data:     data,
		Case:     cr.c.Name,
		Version:  packed,
		AllBytes: opts.Fuzz.AllBytes,
		NoPatch:  opts.Fuzz.NoPatch,
		Library:  opts.Library,
	}.Digest()
	if opts.Cache != nil && opts.Fuzz.OnlyStep == 0 && opts.Fuzz.PatchStart == 0 {
		var payload regress.CachePayload
		hit, err := opts.Cache.Get(key, &payload)
		if err != nil {
			cr.log.Logf("cache: %v", err)
		}
		if hit {
			opts.Registry.Restore(cr.c.Rank, payload.Checks)
			cr.log.Logf("Fuzz results from cache: %d sites", len(payload.Checks))
			return nil
		}
	}

	fuzz := opts.Fuzz
	fuzz.Progress = func(kind mutate.SweepKind, done, total int) {
		cr.r.sink.OnEvent(Event{Case: cr.c.Name, File: name, Stage: StageSweep, Status: StatusWorking, Sweep: kind, Done: done, Total: total})
	}
	fileReg := regress.NewRegistry()
	res, err := mutate.Run(ctx, opts.Loader, data, clean, fileReg.For(cr.c.Name, cr.c.Rank, packed), fuzz)
	for _, s := range res.Sweeps {
		cr.timer.Add(fmt.Sprintf("%s %s", s.Kind, name), s.Elapsed, s.Trials)
		cr.log.Logf("Fuzz %s: %d trials, %d failed as expected, %d loaded", s.Kind, s.Trials, s.Expected, s.Loaded)
	}
	cr.trials += res.Trials()
	if err != nil {
		return err
	}

	// Сайты ожидаемых отказов сохраняются даже при сбоях соседних trial
	checks := fileReg.Checks()
	opts.Registry.Restore(cr.c.Rank, checks)
	cr.log.Logf("Fuzz sites: %d", len(checks))

	if res.Failed() {
		cr.log.Hintf("%s", res.Hint())
		for _, tf := range res.Failures {
			cr.fail(fmt.Sprintf("%s: %s", name, tf.Error()), nil, tf.Stack)
		}
		// a partial table must not be served from the cache
		return nil
	}
	if opts.Cache != nil && opts.Fuzz.OnlyStep == 0 && opts.Fuzz.PatchStart == 0 {
		payload := &regress.CachePayload{Case: cr.c.Name, Version: packed, Checks: checks, Created: time.Now()}
		if err := opts.Cache.Put(key, payload); err != nil {
			cr.log.Logf("cache: %v", err)
		}
	}
	return nil
}

func (cr *caseRun) replay(ctx context.Context, name string, data []byte, packed uint32) error {
	cr.r.sink.OnEvent(Event{Case: cr.c.Name, File: name, Stage: StageReplay, Status: StatusWorking})
	idx := cr.timer.Begin("replay " + name)
	rr, err := regress.Replay(ctx, cr.r.opts.Loader, cr.c.Name, packed, data, cr.r.opts.Checks, regress.ReplayOptions{
		Validate: cr.r.opts.Fuzz.Validate,
		Logf:     cr.log.Logf,
	})
	cr.timer.EndItems(idx, rr.Applied, "")
	cr.trials += rr.Applied
	if err != nil {
		return err
	}
	if len(rr.Resolved) > 0 {
		cr.log.Logf("%d checks resolved", len(rr.Resolved))
	}
	for _, tf := range rr.Failures {
		cr.fail(fmt.Sprintf("%s: %s", name, tf.Error()), nil, tf.Stack)
	}
	return nil
}
