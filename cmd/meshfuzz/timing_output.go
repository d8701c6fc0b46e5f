package main

import (
	"fmt"
	"io"
	"time"

	"meshfuzz/internal/harness"
	"meshfuzz/internal/observ"
)

func printCaseTimings(out io.Writer, results []harness.CaseResult) {
	if out == nil {
		return
	}
	var total time.Duration
	trials := 0
	for _, res := range results {
		fmt.Fprintf(out, "%s %.1f ms\n", res.Name, toMillis(res.Elapsed))
		printPhases(out, res.Timing)
		total += res.Elapsed
		trials += res.Trials
	}
	fmt.Fprintf(out, "ran %d cases, %d trials in %.1f ms\n", len(results), trials, toMillis(total))
}

func printPhases(out io.Writer, rep observ.Report) {
	for _, p := range rep.Phases {
		fmt.Fprintf(out, "  %-36s %9.2f ms", p.Name, p.DurationMS)
		if p.Items > 0 {
			fmt.Fprintf(out, "  %8d trials %10.1f/s", p.Items, p.Rate)
		}
		if p.Note != "" {
			fmt.Fprintf(out, "  // %s", p.Note)
		}
		fmt.Fprintln(out)
	}
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
