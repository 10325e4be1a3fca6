// Package testkit holds graph fixtures and invariant checks shared by the
// pass tests.
package testkit

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"cfgprep/internal/ir"
)

// Shape builds a control-only graph. Block i ends in a return when succs[i]
// is empty, a goto for one successor, and a branch on a fresh "cond" value
// for two. Blocks listed in loops become loop headers; other blocks with
// several predecessors become merges.
func Shape(name string, succs [][]int, loops ...int) *ir.Graph {
	npreds := make([]int, len(succs))
	for _, ss := range succs {
		for _, s := range ss {
			npreds[s]++
		}
	}
	g := ir.NewGraph(name)
	blocks := make([]ir.BlockIndex, len(succs))
	for i := range succs {
		kind := ir.BlockPlain
		switch {
		case i == 0:
			kind = ir.BlockEntry
		case slices.Contains(loops, i):
			kind = ir.BlockLoop
		case npreds[i] > 1:
			kind = ir.BlockMerge
		}
		blocks[i] = g.AddBlock(kind)
	}
	for i, ss := range succs {
		g.Bind(blocks[i])
		switch len(ss) {
		case 0:
			g.AddOperation(ir.Return())
		case 1:
			g.AddOperation(ir.Goto(blocks[ss[0]]))
		case 2:
			cond := g.AddOperation(ir.Pure("cond"))
			g.AddOperation(ir.Branch(cond, blocks[ss[0]], blocks[ss[1]], ir.HintNone))
		default:
			panic(fmt.Sprintf("testkit: block %d has %d successors", i, len(ss)))
		}
	}
	return g
}

// Structured describes a randomly generated reducible CFG.
type Structured struct {
	Succs [][]int
	// Loops maps each loop header to its member blocks, header included.
	Loops map[int][]int
}

// Graph materializes the structure.
func (s *Structured) Graph(name string) *ir.Graph {
	headers := make([]int, 0, len(s.Loops))
	for h := range s.Loops {
		headers = append(headers, h)
	}
	return Shape(name, s.Succs, headers...)
}

type structGen struct {
	r      *rand.Rand
	budget int
	s      *Structured
	open   []int
}

// RandomStructured generates a reducible CFG out of sequences, if/else
// diamonds, while loops and do-while loops, with roughly budget constructs.
func RandomStructured(r *rand.Rand, budget int) *Structured {
	gen := &structGen{r: r, budget: budget, s: &Structured{Loops: map[int][]int{}}}
	entry := gen.newBlock()
	gen.region(entry)
	return gen.s
}

func (gen *structGen) newBlock() int {
	gen.s.Succs = append(gen.s.Succs, nil)
	b := len(gen.s.Succs) - 1
	for _, h := range gen.open {
		gen.s.Loops[h] = append(gen.s.Loops[h], b)
	}
	return b
}

func (gen *structGen) openLoop(h int) {
	gen.s.Loops[h] = []int{h}
	gen.open = append(gen.open, h)
}

func (gen *structGen) closeLoop() {
	gen.open = gen.open[:len(gen.open)-1]
}

// region emits constructs starting at the unterminated block cur and
// returns the unterminated block where control continues.
func (gen *structGen) region(cur int) int {
	for steps := gen.r.IntN(3) + 1; steps > 0 && gen.budget > 0; steps-- {
		gen.budget--
		switch gen.r.IntN(4) {
		case 0:
			t, f := gen.newBlock(), gen.newBlock()
			gen.s.Succs[cur] = []int{t, f}
			te := gen.region(t)
			fe := gen.region(f)
			j := gen.newBlock()
			gen.s.Succs[te] = []int{j}
			gen.s.Succs[fe] = []int{j}
			cur = j
		case 1:
			h := gen.newBlock()
			gen.s.Succs[cur] = []int{h}
			gen.openLoop(h)
			body := gen.newBlock()
			be := gen.region(body)
			gen.s.Succs[be] = []int{h}
			gen.closeLoop()
			exit := gen.newBlock()
			gen.s.Succs[h] = []int{body, exit}
			cur = exit
		case 2:
			h := gen.newBlock()
			gen.s.Succs[cur] = []int{h}
			gen.openLoop(h)
			be := gen.region(h)
			gen.closeLoop()
			exit := gen.newBlock()
			gen.s.Succs[be] = []int{h, exit}
			cur = exit
		default:
			n := gen.newBlock()
			gen.s.Succs[cur] = []int{n}
			cur = n
		}
	}
	return cur
}
