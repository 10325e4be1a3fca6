package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"cfgprep/internal/config"
	"cfgprep/internal/driver"
	"cfgprep/internal/ir"
	"cfgprep/internal/irfile"
	"cfgprep/internal/pipeline"
)

var checkCmd = &cobra.Command{
	Use:   "check <file|directory>...",
	Short: "Load and validate graph files without transforming them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	files, err := driver.ExpandInputs(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no graph files found")
	}
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	failed := 0
	for _, path := range files {
		g, err := checkFile(cmd, path)
		if err != nil {
			failed++
			fmt.Fprintf(errOut, "%s %s\n%v\n", errorLabel.Sprint("FAIL"), path, err)
			continue
		}
		if !quiet(cmd) {
			fmt.Fprintf(out, "%s   %s %s\n", okLabel.Sprint("ok"), path,
				dimLabel.Sprintf("(%d blocks, %d ops)", g.BlockCount(), g.OpCount()))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files invalid", failed, len(files))
	}
	return nil
}

func checkFile(cmd *cobra.Command, path string) (*ir.Graph, error) {
	g, _, err := irfile.Load(path)
	if err != nil {
		return nil, err
	}
	_, err = pipeline.Run(cmd.Context(), g, pipeline.Options{
		Pipeline: config.Pipeline{Verify: true},
		File:     path,
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}
