package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"meshfuzz/internal/scene"
)

// Verdict is the one-word outcome printed for a case.
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictFail Verdict = "FAIL"
	// VerdictFuzz marks a passing case in discovery mode.
	VerdictFuzz Verdict = "FUZZ"
)

// Printer renders verdicts and the final summary.
type Printer struct {
	Out io.Writer
	Err io.Writer

	pass *color.Color
	fail *color.Color
	fuzz *color.Color
	dim  *color.Color
}

// NewPrinter creates a printer. Colors follow color.NoColor unless
// forced by useColor.
func NewPrinter(out, errOut io.Writer, useColor bool) *Printer {
	p := &Printer{
		Out:  out,
		Err:  errOut,
		pass: color.New(color.FgGreen, color.Bold),
		fail: color.New(color.FgRed, color.Bold),
		fuzz: color.New(color.FgCyan, color.Bold),
		dim:  color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.pass, p.fail, p.fuzz, p.dim} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Verdict prints "name: VERDICT".
func (p *Printer) Verdict(name string, v Verdict) {
	var c *color.Color
	switch v {
	case VerdictPass:
		c = p.pass
	case VerdictFuzz:
		c = p.fuzz
	default:
		c = p.fail
	}
	fmt.Fprintf(p.Out, "%s: %s\n", name, c.Sprint(string(v)))
}

// Failures prints every failure with its hint and frames.
func (p *Printer) Failures(b *Bag) {
	for _, f := range b.Items() {
		fmt.Fprintln(p.Err, p.fail.Sprint(f.String()))
		if f.Hint != "" {
			fmt.Fprintf(p.Err, "  hint: %s\n", f.Hint)
		}
		p.frames(f.Frames)
		if len(f.Stack) > 0 {
			fmt.Fprintf(p.Err, "%s\n", p.dim.Sprint(string(f.Stack)))
		}
	}
	if n := b.Dropped(); n > 0 {
		fmt.Fprintf(p.Err, "  ... %d more failures\n", n)
	}
}

func (p *Printer) frames(frames []scene.Frame) {
	for _, fr := range frames {
		fmt.Fprintf(p.Err, "  %s\n", p.dim.Sprintf("%#x %s: %s", fr.Site, fr.Function, fr.Description))
	}
}

// Totals prints the final pass count.
func (p *Printer) Totals(passed, ran int) {
	c := p.pass
	if passed != ran {
		c = p.fail
	}
	fmt.Fprintf(p.Out, "\nTests passed: %s\n", c.Sprintf("%d/%d", passed, ran))
}
