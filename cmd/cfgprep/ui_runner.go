package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"cfgprep/internal/driver"
	"cfgprep/internal/pipeline"
	"cfgprep/internal/ui"
)

type processOutcome struct {
	results []driver.FileResult
	err     error
}

func runProcessWithUI(ctx context.Context, title string, files []string, req *driver.Request) ([]driver.FileResult, error) {
	events := make(chan pipeline.Event, 256)
	outcomeCh := make(chan processOutcome, 1)

	go func() {
		reqCopy := *req
		reqCopy.Progress = pipeline.ChannelSink{Ch: events}
		res, err := driver.Process(ctx, &reqCopy)
		outcomeCh <- processOutcome{results: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, files, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stderr))
	_, uiErr := program.Run()
	// The UI may have quit early; keep the driver from blocking on the
	// channel until it is done.
	for range events {
	}
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.results, uiErr
	}
	return outcome.results, outcome.err
}
