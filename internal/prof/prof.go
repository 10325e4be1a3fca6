// Package prof wires runtime/pprof and runtime/trace to the CLI's
// profiling flags.
package prof

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Options name the output files; empty paths disable that profile.
type Options struct {
	CPU   string
	Mem   string
	Trace string
}

// Session is a set of running profilers.
type Session struct {
	// stops run in reverse start order.
	stops []func() error
}

// Start enables the profilers selected in opts. On error nothing is left
// running. The heap profile is taken by Stop.
func Start(opts Options) (*Session, error) {
	s := &Session{}
	if opts.CPU != "" {
		if err := s.record(opts.CPU, pprof.StartCPUProfile, pprof.StopCPUProfile); err != nil {
			return nil, fmt.Errorf("start cpu profile: %w", err)
		}
	}
	if opts.Trace != "" {
		if err := s.record(opts.Trace, trace.Start, trace.Stop); err != nil {
			_ = s.Stop() //nolint:errcheck
			return nil, fmt.Errorf("start runtime trace: %w", err)
		}
	}
	if opts.Mem != "" {
		path := opts.Mem
		s.stops = append([]func() error{func() error { return writeHeap(path) }}, s.stops...)
	}
	return s, nil
}

// record creates path, starts a profiler writing to it and registers the
// matching stop.
func (s *Session) record(path string, start func(io.Writer) error, stop func()) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := start(f); err != nil {
		return errors.Join(err, f.Close())
	}
	s.stops = append(s.stops, func() error {
		stop()
		return f.Close()
	})
	return nil
}

// Stop ends the running profilers and writes the heap profile. It is safe
// to call more than once.
func (s *Session) Stop() error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := len(s.stops) - 1; i >= 0; i-- {
		errs = append(errs, s.stops[i]())
	}
	s.stops = nil
	return errors.Join(errs...)
}

func writeHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write heap profile: %w", err)
	}
	runtime.GC()
	werr := pprof.WriteHeapProfile(f)
	if err := errors.Join(werr, f.Close()); err != nil {
		return fmt.Errorf("write heap profile: %w", err)
	}
	return nil
}
