package irfile

import "cfgprep/internal/ir"

var blockKinds = map[string]ir.BlockKind{
	ir.BlockEntry.String(): ir.BlockEntry,
	ir.BlockPlain.String(): ir.BlockPlain,
	ir.BlockMerge.String(): ir.BlockMerge,
	ir.BlockLoop.String():  ir.BlockLoop,
}

var hints = map[string]ir.BranchHint{
	"":                    ir.HintNone,
	ir.HintNone.String():  ir.HintNone,
	ir.HintTrue.String():  ir.HintTrue,
	ir.HintFalse.String(): ir.HintFalse,
}

var reps = map[string]ir.Representation{
	"":                     ir.RepNone,
	ir.RepNone.String():    ir.RepNone,
	ir.RepWord32.String():  ir.RepWord32,
	ir.RepWord64.String():  ir.RepWord64,
	ir.RepFloat64.String(): ir.RepFloat64,
	ir.RepTagged.String():  ir.RepTagged,
}

// reserved maps the op names with control-flow meaning; any other name is
// an ir.OpOther mnemonic.
var reserved = map[string]ir.Opcode{
	ir.OpGoto.String():   ir.OpGoto,
	ir.OpBranch.String(): ir.OpBranch,
	ir.OpPhi.String():    ir.OpPhi,
	ir.OpCall.String():   ir.OpCall,
	ir.OpReturn.String(): ir.OpReturn,
	ir.OpDead.String():   ir.OpDead,
}
