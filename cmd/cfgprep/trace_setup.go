package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"cfgprep/internal/trace"
)

// activeTracer is kept for dumpTraceOnPanic.
var activeTracer trace.Tracer = trace.Nop

// traceFlags parses the --trace* persistent flags into a tracer config and
// the heartbeat interval. A --trace output without a level means phase.
func traceFlags(cmd *cobra.Command) (trace.Config, time.Duration, error) {
	r := &flagReader{fs: cmd.Root().PersistentFlags()}
	cfg := trace.Config{
		OutputPath: r.str("trace"),
		RingSize:   r.integer("trace-ring-size"),
	}
	level, mode, format := r.str("trace-level"), r.str("trace-mode"), r.str("trace-format")
	every := r.duration("trace-heartbeat")
	if r.err != nil {
		return cfg, 0, r.err
	}

	var err error
	if cfg.Level, err = trace.ParseLevel(level); err != nil {
		return cfg, 0, err
	}
	if cfg.Level == trace.LevelOff && cfg.OutputPath != "" {
		cfg.Level = trace.LevelPhase
	}
	if cfg.Mode, err = trace.ParseMode(mode); err != nil {
		return cfg, 0, err
	}
	if cfg.Format, err = trace.ParseFormat(format); err != nil {
		return cfg, 0, err
	}
	return cfg, every, nil
}

// setupTracing attaches the configured tracer to the command context and
// returns the function that stops the heartbeat and closes the tracer.
func setupTracing(cmd *cobra.Command) (func(), error) {
	cfg, every, err := traceFlags(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Level == trace.LevelOff {
		cmd.SetContext(trace.WithTracer(cmd.Context(), trace.Nop))
		return func() {}, nil
	}

	tracer, err := trace.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create tracer: %w", err)
	}
	activeTracer = tracer
	ctx := trace.WithTracer(cmd.Context(), tracer)
	cmd.SetContext(ctx)
	cmd.Root().SetContext(ctx)

	heartbeat := trace.StartHeartbeat(tracer, every)
	errOut := cmd.ErrOrStderr()
	return func() {
		heartbeat.Stop()
		if cfg.Mode == trace.ModeRing {
			reportTraceErr(errOut, "dump", trace.RingOf(tracer).Dump(errOut, trace.FormatText))
		}
		reportTraceErr(errOut, "flush", tracer.Flush())
		reportTraceErr(errOut, "close", tracer.Close())
		activeTracer = trace.Nop
	}, nil
}

func reportTraceErr(w io.Writer, op string, err error) {
	if err != nil {
		fmt.Fprintf(w, "trace: %s: %v\n", op, err)
	}
}

// dumpTraceOnPanic writes the ring buffer to stderr when a panic escapes a
// command, then re-panics.
func dumpTraceOnPanic() {
	r := recover()
	if r == nil {
		return
	}
	if ring := trace.RingOf(activeTracer); ring != nil {
		fmt.Fprintf(os.Stderr, "panic: %v\nlast trace events:\n", r)
		_ = ring.Dump(os.Stderr, trace.FormatText) //nolint:errcheck
	}
	panic(r)
}
