package irfile

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/unicode/norm"

	"cfgprep/internal/ir"
)

type textGraph struct {
	Name   string      `toml:"name"`
	Blocks []textBlock `toml:"block"`
}

type textBlock struct {
	Label    string   `toml:"label,omitempty"`
	Kind     string   `toml:"kind"`
	Deferred bool     `toml:"deferred,omitempty"`
	Ops      []textOp `toml:"op"`
}

type textOp struct {
	Def      string   `toml:"def,omitempty"`
	Op       string   `toml:"op"`
	Args     []string `toml:"args,omitempty"`
	Target   string   `toml:"target,omitempty"`
	Then     string   `toml:"then,omitempty"`
	Else     string   `toml:"else,omitempty"`
	Hint     string   `toml:"hint,omitempty"`
	Rep      string   `toml:"rep,omitempty"`
	Callee   string   `toml:"callee,omitempty"`
	Required bool     `toml:"required,omitempty"`
}

// normName makes names that render identically compare equal.
func normName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// DecodeText parses the TOML form of a graph.
//
//	name = "loop"
//
//	[[block]]
//	label = "entry"
//	kind = "entry"
//	  [[block.op]]
//	  def = "zero"
//	  op = "const"
//	  [[block.op]]
//	  op = "goto"
//	  target = "head"
//
// Values and blocks are referenced by name and may be used before they are
// defined; blocks without a label are named b0, b1, ... by position and
// unnamed values v0, v1, ... by operation index.
func DecodeText(data []byte) (*ir.Graph, error) {
	var tg textGraph
	meta, err := toml.Decode(string(data), &tg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return tg.build()
}

type resolver struct {
	blocks map[string]ir.BlockIndex
	values map[string]ir.OpIndex
	errs   []error
}

func (r *resolver) errorf(format string, args ...any) {
	r.errs = append(r.errs, fmt.Errorf(format, args...))
}

func (r *resolver) block(where, name string) ir.BlockIndex {
	b, ok := r.blocks[normName(name)]
	if !ok {
		r.errorf("%s: unknown block %q", where, name)
		return 0
	}
	return b
}

func (r *resolver) inputs(where string, names []string) []ir.OpIndex {
	if len(names) == 0 {
		return nil
	}
	out := make([]ir.OpIndex, len(names))
	for i, name := range names {
		v, ok := r.values[normName(name)]
		if !ok {
			r.errorf("%s: unknown value %q", where, name)
			continue
		}
		out[i] = v
	}
	return out
}

func (tg *textGraph) build() (*ir.Graph, error) {
	if len(tg.Blocks) == 0 {
		return nil, errors.New("graph has no blocks")
	}
	r := &resolver{
		blocks: make(map[string]ir.BlockIndex, len(tg.Blocks)),
		values: make(map[string]ir.OpIndex),
	}

	// Names first, so that phis and jumps can refer forward.
	next := 0
	for bi := range tg.Blocks {
		tb := &tg.Blocks[bi]
		label := normName(tb.Label)
		if label == "" {
			label = fmt.Sprintf("b%d", bi)
		}
		if _, dup := r.blocks[label]; dup {
			r.errorf("block %d: duplicate label %q", bi, label)
		}
		r.blocks[label] = ir.BlockIndex(bi) //nolint:gosec // G115: bounded by slice length
		for oi := range tb.Ops {
			def := normName(tb.Ops[oi].Def)
			if def == "" {
				def = fmt.Sprintf("v%d", next)
			}
			if _, dup := r.values[def]; dup {
				r.errorf("block %q op %d: duplicate value %q", label, oi, def)
			}
			r.values[def] = ir.OpIndex(next) //nolint:gosec // G115: bounded by op count
			next++
		}
	}

	g := ir.NewGraph(normName(tg.Name))
	for bi := range tg.Blocks {
		kind, ok := blockKinds[strings.ToLower(tg.Blocks[bi].Kind)]
		if !ok {
			r.errorf("block %d: unknown kind %q", bi, tg.Blocks[bi].Kind)
		}
		b := g.AddBlock(kind)
		g.Block(b).Deferred = tg.Blocks[bi].Deferred
	}
	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}

	for bi := range tg.Blocks {
		tb := &tg.Blocks[bi]
		if len(tb.Ops) == 0 {
			r.errorf("block %d: no operations", bi)
			continue
		}
		g.Bind(ir.BlockIndex(bi)) //nolint:gosec // G115: bounded by slice length
		for oi := range tb.Ops {
			where := fmt.Sprintf("block %d op %d", bi, oi)
			op := r.operation(where, &tb.Ops[oi])
			if op.IsTerminator() != (oi == len(tb.Ops)-1) {
				r.errorf("%s: %q must be the last operation of a block and only there", where, tb.Ops[oi].Op)
				break
			}
			g.AddOperation(op)
		}
		if g.Bound().Valid() {
			// Leave the graph consistent; the error is already recorded.
			return nil, errors.Join(r.errs...)
		}
	}
	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}
	return g, nil
}

func (r *resolver) operation(where string, to *textOp) ir.Operation {
	name := strings.TrimSpace(to.Op)
	if name == "" {
		r.errorf("%s: missing op", where)
		return ir.Dead()
	}
	args := r.inputs(where, to.Args)
	kind, isReserved := reserved[strings.ToLower(name)]
	if !isReserved {
		op := ir.Pure(name, args...)
		op.Other.RequiredWhenUnused = to.Required
		return op
	}
	switch kind {
	case ir.OpGoto:
		return ir.Goto(r.block(where, to.Target))
	case ir.OpBranch:
		if len(args) != 1 {
			r.errorf("%s: branch takes one condition, got %d", where, len(args))
			return ir.Dead()
		}
		hint, ok := hints[strings.ToLower(to.Hint)]
		if !ok {
			r.errorf("%s: unknown hint %q", where, to.Hint)
		}
		return ir.Branch(args[0], r.block(where, to.Then), r.block(where, to.Else), hint)
	case ir.OpPhi:
		rep, ok := reps[strings.ToLower(to.Rep)]
		if !ok {
			r.errorf("%s: unknown representation %q", where, to.Rep)
		}
		return ir.Phi(rep, args...)
	case ir.OpCall:
		if to.Callee == "" {
			r.errorf("%s: call without callee", where)
		}
		return ir.Call(to.Callee, args...)
	case ir.OpReturn:
		return ir.Return(args...)
	default:
		return ir.Dead()
	}
}

// EncodeText writes g in the TOML form. Blocks are labelled b0, b1, ...
// and values v0, v1, ... after their index.
func EncodeText(w io.Writer, g *ir.Graph) error {
	tg := textGraph{Name: g.Name, Blocks: make([]textBlock, g.BlockCount())}
	for bi := range tg.Blocks {
		b := ir.BlockIndex(bi) //nolint:gosec // G115: bounded by block count
		blk := g.Block(b)
		tb := textBlock{
			Label:    b.String(),
			Kind:     blk.Kind.String(),
			Deferred: blk.Deferred,
		}
		for i := range blk.Ops().All() {
			tb.Ops = append(tb.Ops, encodeTextOp(i, g.Op(i)))
		}
		tg.Blocks[bi] = tb
	}
	if err := toml.NewEncoder(w).Encode(tg); err != nil {
		return fmt.Errorf("failed to encode TOML: %w", err)
	}
	return nil
}

func encodeTextOp(i ir.OpIndex, op *ir.Operation) textOp {
	to := textOp{Op: op.Kind.String()}
	if !op.IsTerminator() {
		to.Def = i.String()
	}
	for _, in := range op.Inputs {
		to.Args = append(to.Args, in.String())
	}
	switch op.Kind {
	case ir.OpOther:
		to.Op = op.Other.Mnemonic
		to.Required = op.Other.RequiredWhenUnused
	case ir.OpGoto:
		to.Target = op.Goto.Target.String()
	case ir.OpBranch:
		to.Then = op.Branch.True.String()
		to.Else = op.Branch.False.String()
		if op.Branch.Hint != ir.HintNone {
			to.Hint = op.Branch.Hint.String()
		}
	case ir.OpPhi:
		to.Rep = op.Phi.Rep.String()
	case ir.OpCall:
		to.Callee = op.Call.Callee
	}
	return to
}
