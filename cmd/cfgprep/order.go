package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cfgprep/internal/config"
	"cfgprep/internal/ir"
	"cfgprep/internal/irfile"
	"cfgprep/internal/pipeline"
)

var orderCmd = &cobra.Command{
	Use:   "order <file>",
	Short: "Print the loop-contiguous block order, loop nest and deferred blocks",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrder,
}

func runOrder(cmd *cobra.Command, args []string) error {
	defer dumpTraceOnPanic()

	path := args[0]
	g, _, err := irfile.Load(path)
	if err != nil {
		return err
	}
	res, err := pipeline.Run(cmd.Context(), g, pipeline.Options{
		Pipeline: config.Pipeline{Verify: true, SpecialRPO: true, PropagateDeferred: true},
		File:     path,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "order: %s\n", formatBlocks(res.Order))
	if len(res.Loops) > 0 {
		fmt.Fprintln(out, "loops:")
		printLoops(out, res.Loops)
	}

	depth := make(map[ir.BlockIndex]int, len(res.Order))
	for _, l := range res.Loops {
		for _, b := range l.Members {
			depth[b]++
		}
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "pos\tblock\tkind\tdepth\tdeferred")
	for pos, b := range res.Order {
		blk := res.Graph.Block(ir.BlockIndex(pos)) //nolint:gosec // G115: bounded by block count
		deferred := ""
		if blk.Deferred {
			deferred = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", pos, b, blk.Kind, depth[b], deferred)
	}
	return tw.Flush()
}
