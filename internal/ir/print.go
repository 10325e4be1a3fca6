package ir

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a human-readable listing of g.
func Dump(w io.Writer, g *Graph) error {
	if w == nil || g == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "graph %s: blocks=%d ops=%d\n", g.Name, g.BlockCount(), g.OpCount()); err != nil {
		return err
	}
	for b := range g.blocks {
		blk := &g.blocks[b]
		if _, err := fmt.Fprintf(w, "  %s\n", formatBlockHeader(g, blk)); err != nil {
			return err
		}
		for i := range blk.Ops().All() {
			if _, err := fmt.Fprintf(w, "    %s = %s\n", i, g.Op(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatBlockHeader(g *Graph, blk *Block) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)", blk.index, blk.Kind)
	if preds := g.Predecessors(blk.index); len(preds) > 0 {
		sb.WriteString(" <- ")
		for i, p := range preds {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.String())
		}
	}
	if blk.Deferred {
		sb.WriteString(" deferred")
	}
	sb.WriteString(":")
	return sb.String()
}
