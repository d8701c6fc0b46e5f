package mutate

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"meshfuzz/internal/scene"
	"meshfuzz/internal/trace"
)

// MaxWorkers caps Options.Workers.
const MaxWorkers = 256

// patchRewind is how many offsets per worker a resumed patch sweep repeats.
const patchRewind = 16

// progressEvery is the trial interval between progress callbacks.
const progressEvery = 16

// Recorder receives every expected load failure. Observe is called
// concurrently from sweep workers. c.Data is only valid during the call.
type Recorder interface {
	Observe(c Candidate, err *scene.Error)
}

// Options configures Run.
type Options struct {
	// Workers is the sweep parallelism; zero means GOMAXPROCS.
	Workers int
	// AllBytes tries all 256 values per patched byte instead of the four
	// neighbours (+1, -1, 0x00, 0xFF).
	AllBytes bool
	NoPatch  bool
	// PatchStart resumes the patch sweep near this offset.
	PatchStart int
	// OnlyStep, when non-zero, skips every trial with a different step.
	OnlyStep uint64
	Validate Validator
	// Progress is called from a single goroutine at a time.
	Progress func(kind SweepKind, done, total int)
}

func (o Options) workers() int {
	n := o.Workers
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return min(n, MaxWorkers)
}

// TrialFailure is a trial that broke the loader contract.
type TrialFailure struct {
	Step   uint64
	Sweep  SweepKind
	Kind   OutcomeKind
	Detail string
	Stack  []byte
}

func (f TrialFailure) Error() string {
	return fmt.Sprintf("%s step %d %s: %s", f.Sweep, f.Step, f.Kind, f.Detail)
}

// SweepStats summarizes one sweep.
type SweepStats struct {
	Kind     SweepKind
	Trials   int
	Expected int
	Loaded   int
	Elapsed  time.Duration
}

// Result aggregates the sweeps of one file.
type Result struct {
	Sweeps   []SweepStats
	Failures []TrialFailure
}

// Trials returns the number of executed trials.
func (r Result) Trials() int {
	n := 0
	for _, s := range r.Sweeps {
		n += s.Trials
	}
	return n
}

// Failed reports whether any trial failed.
func (r Result) Failed() bool { return len(r.Failures) > 0 }

// Hint names the first failing step.
func (r Result) Hint() string {
	if len(r.Failures) == 0 {
		return ""
	}
	return fmt.Sprintf("fuzz failed on step %d", r.Failures[0].Step)
}

// Run executes every sweep over data. clean carries the allocation counts
// of an unconstrained load. Trial failures are collected in the result; the
// returned error is non-nil only when ctx is cancelled.
func Run(ctx context.Context, loader scene.Loader, data []byte, clean scene.Metadata, rec Recorder, opts Options) (Result, error) {
	workers := opts.workers()
	e := &engine{loader: loader, data: data, rec: rec, opts: opts, workers: workers}

	tracer := trace.FromContext(ctx)
	parent := trace.CurrentSpan(ctx).SpanID

	var res Result
	for _, kind := range Sweeps {
		lo, hi := 0, 0
		switch kind {
		case SweepTemp:
			hi = clean.TempAllocs
		case SweepResult:
			hi = clean.ResultAllocs
		case SweepTruncate:
			lo, hi = 1, len(data)
		case SweepPatch:
			if opts.NoPatch {
				continue
			}
			lo, hi = max(opts.PatchStart-workers*patchRewind, 0), len(data)
		}

		span := trace.Begin(tracer, trace.ScopeSweep, kind.String(), parent)
		sctx := trace.WithSpan(ctx, span)
		stats, failures, err := e.sweep(sctx, kind, lo, hi)
		span.WithExtra("trials", strconv.Itoa(stats.Trials)).
			WithExtra("failures", strconv.Itoa(len(failures))).
			End("")
		res.Sweeps = append(res.Sweeps, stats)
		res.Failures = append(res.Failures, failures...)
		if err != nil {
			return res, err
		}
	}
	slices.SortStableFunc(res.Failures, func(a, b TrialFailure) int {
		switch {
		case a.Step < b.Step:
			return -1
		case a.Step > b.Step:
			return 1
		}
		return 0
	})
	return res, nil
}

type engine struct {
	loader  scene.Loader
	data    []byte
	rec     Recorder
	opts    Options
	workers int
}

// worker is the private state of one chunk.
type worker struct {
	e        *engine
	kind     SweepKind
	buf      []byte
	stats    SweepStats
	failures []TrialFailure
	tracer   trace.Tracer
	span     uint64
}

func (e *engine) sweep(ctx context.Context, kind SweepKind, lo, hi int) (SweepStats, []TrialFailure, error) {
	start := time.Now()
	total := max(hi-lo, 0)
	chunks := Partition(lo, hi, e.workers)
	if len(chunks) == 0 {
		e.progress(kind, 0, 0)
		return SweepStats{Kind: kind}, nil, nil
	}

	// Результаты (индексы уникальны для каждой горутины, мьютекс не нужен)
	results := make([]*worker, len(chunks))
	var done, reported atomic.Int64
	var progressMu sync.Mutex

	tracer := trace.FromContext(ctx)
	span := trace.CurrentSpan(ctx).SpanID

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(e.workers, len(chunks)))
	for ci, chunk := range chunks {
		g.Go(func() error {
			w := &worker{e: e, kind: kind, stats: SweepStats{Kind: kind}, tracer: tracer, span: span}
			results[ci] = w
			for i := chunk.Lo; i < chunk.Hi; i++ {
				// Проверка отмены
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				w.index(i)
				n := done.Add(1)
				// Отчитывается та горутина, что пересекла порог
				if last := reported.Load(); n-last >= progressEvery && reported.CompareAndSwap(last, n) {
					progressMu.Lock()
					// победитель следующего CAS мог успеть раньше
					if n == reported.Load() {
						e.progress(kind, int(n), total)
					}
					progressMu.Unlock()
				}
			}
			return nil
		})
	}
	err := g.Wait()

	stats := SweepStats{Kind: kind}
	var failures []TrialFailure
	for _, w := range results {
		if w == nil {
			continue
		}
		stats.Trials += w.stats.Trials
		stats.Expected += w.stats.Expected
		stats.Loaded += w.stats.Loaded
		failures = append(failures, w.failures...)
	}
	stats.Elapsed = time.Since(start)
	if err == nil {
		e.progress(kind, total, total)
	}
	return stats, failures, err
}

func (e *engine) progress(kind SweepKind, done, total int) {
	if e.opts.Progress != nil {
		e.opts.Progress(kind, done, total)
	}
}

// index runs the trials of one sweep index.
func (w *worker) index(i int) {
	idx := uint64(i) //nolint:gosec // sweep indices are non-negative
	switch w.kind {
	case SweepTemp:
		w.try(Candidate{Data: w.e.data, TempLimit: scene.LimitAllocs(i), Step: StepTemp + idx})
	case SweepResult:
		w.try(Candidate{Data: w.e.data, ResultLimit: scene.LimitAllocs(i), Step: StepResult + idx})
	case SweepTruncate:
		w.try(Candidate{Data: w.e.data, Truncate: i, Step: StepTruncate + idx})
	case SweepPatch:
		w.patch(i, idx*PatchStepScale)
	}
}

func (w *worker) patch(offset int, base uint64) {
	if w.buf == nil {
		w.buf = append([]byte(nil), w.e.data...)
	}
	original := w.buf[offset]
	defer func() { w.buf[offset] = original }()

	set := func(k uint64, v byte) {
		w.buf[offset] = v
		w.try(Candidate{Data: w.buf, Patch: &BytePatch{Offset: offset, Value: v}, Step: base + k})
	}
	if w.e.opts.AllBytes {
		for v := range 256 {
			set(uint64(v), byte(v)) //nolint:gosec // v < 256
		}
		return
	}
	set(1, original+1)
	set(2, original-1)
	if original != 0 {
		set(3, 0)
	}
	if original != 0xff {
		set(4, 0xff)
	}
}

func (w *worker) try(c Candidate) {
	if w.e.opts.OnlyStep != 0 && c.Step != w.e.opts.OnlyStep {
		return
	}
	w.stats.Trials++
	out := Trial(w.e.loader, c, w.e.opts.Validate)
	if w.tracer.Level().ShouldEmit(trace.ScopeTrial) {
		trace.Point(w.tracer, trace.ScopeTrial, "trial", w.span, c.String()+": "+out.Kind.String())
	}
	switch out.Kind {
	case OutcomeFailed:
		w.stats.Expected++
		if w.e.rec != nil {
			w.e.rec.Observe(c, out.Err)
		}
	case OutcomeLoaded:
		w.stats.Loaded++
	default:
		w.failures = append(w.failures, TrialFailure{
			Step:   c.Step,
			Sweep:  c.Kind(),
			Kind:   out.Kind,
			Detail: out.Detail,
			Stack:  out.Stack,
		})
	}
}
