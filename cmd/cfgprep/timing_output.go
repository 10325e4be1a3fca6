package main

import (
	"fmt"
	"io"

	"cfgprep/internal/driver"
	"cfgprep/internal/observ"
)

func printTimings(out io.Writer, timer *observ.Timer, results []driver.FileResult) {
	if out == nil {
		return
	}
	fmt.Fprint(out, timer.Summary())
	cached := 0
	for _, fr := range results {
		if fr.Cached {
			cached++
		}
	}
	if cached > 0 {
		fmt.Fprintf(out, "  %d of %d files from cache\n", cached, len(results))
	}
	for _, fr := range results {
		fmt.Fprintf(out, "  %-40s %7.2f ms", fr.Path, observ.Millis(fr.Elapsed))
		if fr.Result != nil && len(fr.Result.Timings) > 0 {
			fmt.Fprintf(out, "  [%s]", fr.Result.Timings)
		}
		fmt.Fprintln(out)
	}
}
