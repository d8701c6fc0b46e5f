package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"fortio.org/safecast"
	"github.com/spf13/cobra"

	"meshfuzz/internal/harness"
	"meshfuzz/internal/meshfmt"
	"meshfuzz/internal/mutate"
	"meshfuzz/internal/regress"
	"meshfuzz/internal/report"
	"meshfuzz/internal/trace"
	"meshfuzz/internal/version"
)

var runCmd = &cobra.Command{
	Use:   "run [flags]",
	Short: "Load, diff and replay (or discover) every selected test case",
	Long: `Run every test case found under the data root. Each fixture is loaded,
checked against its reference .obj and then either replayed against the
regression table or, with --fuzz, swept with truncations, allocation limits
and byte patches to discover a new table.`,
	Args: cobra.NoArgs,
	RunE: runExecution,
}

func init() {
	runCmd.Flags().StringSliceP("test", "t", nil, "run only cases matching name or glob (repeatable)")
	runCmd.Flags().StringP("data", "d", "testdata", "data root holding .mfx fixtures and .obj references")
	runCmd.Flags().UintSliceP("format", "f", nil, "format versions to run (e.g. 200)")
	runCmd.Flags().StringSlice("encoding", nil, "encodings to run (binary|ascii)")
	runCmd.Flags().Bool("fuzz", false, "discover regression checks instead of replaying them")
	runCmd.Flags().Bool("patch-all-byte-values", false, "patch every byte with all 256 values")
	runCmd.Flags().Int("threads", runtime.NumCPU(), "sweep workers (at most 256)")
	runCmd.Flags().Bool("no-patch", false, "skip the byte patch sweep")
	runCmd.Flags().Int("patch-start", 0, "resume the byte patch sweep at this offset")
	runCmd.Flags().Uint64("fuzz-step", 0, "run a single sweep step")
	runCmd.Flags().String("checks", "", "TOML regression table to replay (default: built-in table)")
	runCmd.Flags().String("emit-checks", "", "write the discovered table to a .go or .toml file")
	runCmd.Flags().Bool("disk-cache", false, "reuse discovery results cached per fixture")
	runCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
	runCmd.Flags().BoolP("verbose", "v", false, "print every case log")
}

// runSettings is the merged view of run flags and meshfuzz.toml.
type runSettings struct {
	tests      []string
	data       string
	versions   []uint32
	encodings  []meshfmt.Encoding
	fuzz       bool
	allBytes   bool
	threads    int
	noPatch    bool
	patchStart int
	fuzzStep   uint64
	checks     string
	emitChecks string
	diskCache  bool
	ui         uiMode
	verbose    bool
}

func readRunSettings(cmd *cobra.Command) (runSettings, error) {
	var s runSettings
	var err error
	flags := cmd.Flags()
	if s.tests, err = flags.GetStringSlice("test"); err != nil {
		return s, err
	}
	if s.data, err = flags.GetString("data"); err != nil {
		return s, err
	}
	formats, err := flags.GetUintSlice("format")
	if err != nil {
		return s, err
	}
	for _, f := range formats {
		v, convErr := safecast.Conv[uint32](f)
		if convErr != nil || !meshfmt.SupportsVersion(v) {
			return s, fmt.Errorf("unsupported format version %d", f)
		}
		s.versions = append(s.versions, v)
	}
	encs, err := flags.GetStringSlice("encoding")
	if err != nil {
		return s, err
	}
	if s.encodings, err = parseEncodings(encs); err != nil {
		return s, err
	}
	if s.fuzz, err = flags.GetBool("fuzz"); err != nil {
		return s, err
	}
	if s.allBytes, err = flags.GetBool("patch-all-byte-values"); err != nil {
		return s, err
	}
	if s.threads, err = flags.GetInt("threads"); err != nil {
		return s, err
	}
	if s.noPatch, err = flags.GetBool("no-patch"); err != nil {
		return s, err
	}
	if s.patchStart, err = flags.GetInt("patch-start"); err != nil {
		return s, err
	}
	if s.fuzzStep, err = flags.GetUint64("fuzz-step"); err != nil {
		return s, err
	}
	if s.checks, err = flags.GetString("checks"); err != nil {
		return s, err
	}
	if s.emitChecks, err = flags.GetString("emit-checks"); err != nil {
		return s, err
	}
	if s.diskCache, err = flags.GetBool("disk-cache"); err != nil {
		return s, err
	}
	uiValue, err := flags.GetString("ui")
	if err != nil {
		return s, err
	}
	if s.ui, err = readUIMode(uiValue); err != nil {
		return s, err
	}
	if s.verbose, err = flags.GetBool("verbose"); err != nil {
		return s, err
	}
	return s, nil
}

func (s *runSettings) validate() error {
	if s.threads < 1 {
		return fmt.Errorf("--threads must be at least 1")
	}
	if s.patchStart < 0 {
		return fmt.Errorf("--patch-start must not be negative")
	}
	if !s.fuzz {
		switch {
		case s.emitChecks != "":
			return fmt.Errorf("--emit-checks requires --fuzz")
		case s.allBytes, s.noPatch, s.patchStart != 0, s.fuzzStep != 0:
			return fmt.Errorf("sweep flags require --fuzz")
		}
	}
	if s.emitChecks != "" {
		if _, err := tableWriter(s.emitChecks); err != nil {
			return err
		}
	}
	return nil
}

func (s *runSettings) harnessOptions() (harness.Options, error) {
	opts := harness.Options{
		Discover:  s.fuzz,
		Versions:  s.versions,
		Encodings: s.encodings,
		Library:   version.Library,
		Fuzz: mutate.Options{
			Workers:    s.threads,
			AllBytes:   s.allBytes,
			NoPatch:    s.noPatch,
			PatchStart: s.patchStart,
			OnlyStep:   s.fuzzStep,
		},
	}
	if !s.fuzz {
		if s.checks == "" {
			opts.Checks = regress.KnownChecks()
		} else {
			checks, err := regress.LoadTOML(s.checks)
			if err != nil {
				return opts, err
			}
			opts.Checks = checks
		}
	}
	if s.fuzz && s.diskCache {
		cache, err := regress.OpenDiskCache("meshfuzz")
		if err != nil {
			return opts, fmt.Errorf("disk cache: %w", err)
		}
		opts.Cache = cache
	}
	return opts, nil
}

func runExecution(cmd *cobra.Command, _ []string) error {
	s, err := readRunSettings(cmd)
	if err != nil {
		return err
	}
	manifest, _, err := loadProjectManifest(".")
	if err != nil {
		return err
	}
	if err := applyManifest(cmd, manifest, &s); err != nil {
		return err
	}
	if err := s.validate(); err != nil {
		return err
	}
	colorOn, err := useColor(cmd)
	if err != nil {
		return err
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}

	cleanupProf, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer cleanupProf()
	cleanupTrace, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanupTrace()

	cases, err := harness.Discover(s.data)
	if err != nil {
		return fmt.Errorf("discover %s: %w", s.data, err)
	}
	if cases, err = harness.Select(cases, s.tests...); err != nil {
		return err
	}
	if len(cases) == 0 {
		return fmt.Errorf("no test case under %s matches the filters", s.data)
	}
	opts, err := s.harnessOptions()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeRun, "run", 0)
	ctx = trace.WithSpan(ctx, span)

	printer := report.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), colorOn)
	onResult := func(res harness.CaseResult) { printCase(printer, res, s.fuzz, s.verbose) }

	var (
		runner  *harness.Runner
		results []harness.CaseResult
	)
	if shouldUseTUI(s.ui, s.verbose) {
		runner, results, err = runCasesWithUI(ctx, "meshfuzz "+filepath.Base(s.data), opts, cases)
		for _, res := range results {
			onResult(res)
		}
	} else {
		runner = harness.New(opts)
		results, err = runner.Run(ctx, cases, onResult)
	}
	passed := 0
	for _, res := range results {
		if res.Passed {
			passed++
		}
	}
	span.WithExtra("passed", fmt.Sprintf("%d/%d", passed, len(results))).End("")
	if err != nil {
		return err
	}

	for _, res := range results {
		if !res.Passed {
			printer.Failures(res.Failures)
		}
	}
	if passed != len(results) {
		dumpTraceRing(tracer, cmd.ErrOrStderr())
	}
	if showTimings {
		printCaseTimings(cmd.OutOrStdout(), results)
	}
	if s.fuzz {
		if passed != len(results) {
			fmt.Fprintln(cmd.ErrOrStderr(), "note: some cases failed; the table holds the sites their sweeps still found")
		}
		if err := emitTable(cmd.OutOrStdout(), s.emitChecks, runner.Registry().Checks()); err != nil {
			return err
		}
	}
	printer.Totals(passed, len(results))
	if passed != len(results) {
		return fmt.Errorf("%d of %d tests failed", len(results)-passed, len(results))
	}
	return nil
}

// printCase prints the verdict and, when verbose or failing, the case log.
func printCase(p *report.Printer, res harness.CaseResult, fuzz, verbose bool) {
	v := report.VerdictPass
	switch {
	case !res.Passed:
		v = report.VerdictFail
	case fuzz:
		v = report.VerdictFuzz
	}
	p.Verdict(res.Name, v)
	if verbose || !res.Passed {
		if err := res.Log.Flush(p.Out); err != nil {
			fmt.Fprintf(p.Err, "log: %v\n", err)
		}
	}
}

func dumpTraceRing(tracer trace.Tracer, w io.Writer) {
	ring := trace.RingOf(tracer)
	if ring == nil {
		return
	}
	fmt.Fprintln(w, "trace (most recent events):")
	if err := ring.Dump(w, trace.FormatText); err != nil {
		fmt.Fprintf(w, "trace: dump error: %v\n", err)
	}
}

func tableWriter(path string) (func(io.Writer, []regress.Check) error, error) {
	switch filepath.Ext(path) {
	case "", ".go":
		return regress.WriteGo, nil
	case ".toml":
		return regress.WriteTOML, nil
	default:
		return nil, fmt.Errorf("--emit-checks %s: extension must be .go or .toml", path)
	}
}

// emitTable writes the discovered checks to path, or as Go to out when path
// is empty.
func emitTable(out io.Writer, path string, checks []regress.Check) error {
	write, err := tableWriter(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := write(&buf, checks); err != nil {
		return err
	}
	if path == "" {
		_, err := out.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil { //nolint:gosec // the table is checked in
		return err
	}
	fmt.Fprintf(out, "wrote %d checks to %s\n", len(checks), path)
	return nil
}
