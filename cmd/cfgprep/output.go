package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"cfgprep/internal/config"
	"cfgprep/internal/driver"
	"cfgprep/internal/ir"
	"cfgprep/internal/pipeline"
)

var (
	errorLabel = color.New(color.FgRed, color.Bold)
	okLabel    = color.New(color.FgGreen, color.Bold)
	dimLabel   = color.New(color.Faint)
)

// printResults prints what [output].emit selects and returns the number of
// failed files.
func printResults(out, errOut io.Writer, results []driver.FileResult, opts *config.Output, quiet bool) int {
	failed := 0
	for i := range results {
		fr := &results[i]
		if fr.Err != nil {
			failed++
			fmt.Fprintf(errOut, "%s %v\n", errorLabel.Sprint("error:"), fr.Err)
			continue
		}
		res := fr.Result
		if opts.Emits(config.EmitOrder) && res.Order != nil {
			fmt.Fprintf(out, "%s: order %s\n", fr.Path, formatBlocks(res.Order))
			printLoops(out, res.Loops)
		}
		if opts.Emits(config.EmitStats) {
			suffix := ""
			if fr.Cached {
				suffix = " " + dimLabel.Sprint("(cached)")
			}
			fmt.Fprintf(out, "%s: %s%s\n", fr.Path, res.Stats, suffix)
		}
		if opts.Emits(config.EmitGraph) {
			if fr.Output != "" {
				if !quiet {
					fmt.Fprintf(out, "%s %s\n", okLabel.Sprint("wrote"), fr.Output)
				}
			} else if err := ir.Dump(out, res.Graph); err != nil {
				fmt.Fprintf(errOut, "%s %s: %v\n", errorLabel.Sprint("error:"), fr.Path, err)
				failed++
			}
		}
	}
	return failed
}

func formatBlocks(bs []ir.BlockIndex) string {
	parts := make([]string, len(bs))
	for i, b := range bs {
		parts[i] = b.String()
	}
	return strings.Join(parts, " ")
}

func printLoops(out io.Writer, loops []pipeline.Loop) {
	for i, l := range loops {
		indent := strings.Repeat("  ", l.Depth)
		parent := ""
		if l.Parent >= 0 {
			parent = fmt.Sprintf(" in L%d", l.Parent)
		}
		fmt.Fprintf(out, "%sL%d header %s%s: %s\n", indent, i, l.Header, parent, formatBlocks(l.Members))
	}
}
