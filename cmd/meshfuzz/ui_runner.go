package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"meshfuzz/internal/harness"
	"meshfuzz/internal/ui"
)

type runOutcome struct {
	results []harness.CaseResult
	err     error
}

// runCasesWithUI runs the cases behind the progress model. The runner
// publishes into a channel that the model drains until it is closed.
func runCasesWithUI(ctx context.Context, title string, opts harness.Options, cases []harness.Case) (*harness.Runner, []harness.CaseResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := make(chan harness.Event, 256)
	opts.Sink = harness.ChannelSink{Ch: events}
	runner := harness.New(opts)
	outcomeCh := make(chan runOutcome, 1)

	go func() {
		res, err := runner.Run(ctx, cases, nil)
		outcomeCh <- runOutcome{results: res, err: err}
		close(events)
	}()

	names := make([]string, len(cases))
	for i, c := range cases {
		names[i] = c.Name
	}
	model := ui.NewProgressModel(title, names, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	// ctrl+c leaves the runner mid-case: stop it and drain what it still sends
	cancel()
	go func() {
		for range events {
		}
	}()
	outcome := <-outcomeCh
	if uiErr != nil {
		return runner, outcome.results, uiErr
	}
	return runner, outcome.results, outcome.err
}
