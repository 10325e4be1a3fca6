package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cfgprep/internal/driver"
	"cfgprep/internal/observ"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <file|directory>...",
	Short: "Order, annotate and reduce graph files",
	Long: `Run the preparation pipeline over every graph file given, and over every
*.cfg.toml and *.cfgb file found under the given directories.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().Int("jobs", 0, "max parallel files (0=auto)")
	runCmd.Flags().StringSlice("emit", nil, "what to print or write (graph,order,stats)")
	runCmd.Flags().String("out-dir", "", "write output graphs to this directory")
	runCmd.Flags().String("format", "", "output graph encoding (text|binary)")
	runCmd.Flags().Bool("no-cache", false, "do not read or write the result cache")
	runCmd.Flags().Bool("forward-phis", false, "replace phis whose inputs are all the same value")
	runCmd.Flags().Bool("no-dce", false, "skip dead code elimination")
	runCmd.Flags().Var(&runUI, "ui", "progress UI")
}

var runUI = modeAuto

func runRun(cmd *cobra.Command, args []string) error {
	defer dumpTraceOnPanic()

	timings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	files, err := driver.ExpandInputs(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no graph files found")
	}
	cache, err := openCache(&cfg)
	if err != nil {
		return err
	}

	timer := observ.NewTimer()
	req := &driver.Request{Files: files, Config: cfg, Cache: cache, Timer: timer}

	var results []driver.FileResult
	if runUI.enabledFor(os.Stdout) && !quiet(cmd) {
		results, err = runProcessWithUI(cmd.Context(), "cfgprep run", files, req)
	} else {
		results, err = driver.Process(cmd.Context(), req)
	}
	if err != nil {
		return err
	}

	printing := timer.Begin("print")
	failed := printResults(cmd.OutOrStdout(), cmd.ErrOrStderr(), results, &cfg.Output, quiet(cmd))
	printing.End("")

	if timings {
		printTimings(cmd.ErrOrStderr(), timer, results)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}
