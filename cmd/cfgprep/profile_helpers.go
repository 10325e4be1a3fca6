package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cfgprep/internal/prof"
)

// setupProfiling starts the profilers named by the persistent flags and
// returns the function that writes them out.
func setupProfiling(cmd *cobra.Command) (func(), error) {
	r := &flagReader{fs: cmd.Root().PersistentFlags()}
	opts := prof.Options{
		CPU:   r.str("cpu-profile"),
		Mem:   r.str("mem-profile"),
		Trace: r.str("runtime-trace"),
	}
	if r.err != nil {
		return nil, r.err
	}
	if opts == (prof.Options{}) {
		return func() {}, nil
	}
	session, err := prof.Start(opts)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := session.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "profiling: %v\n", err)
		}
	}, nil
}
