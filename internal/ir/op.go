package ir

import (
	"fmt"
	"strings"
)

// Opcode enumerates the operation kinds this package interprets.
type Opcode uint8

const (
	// OpOther is any operation without control-flow meaning: arithmetic,
	// loads, stores, constants. Other.RequiredWhenUnused marks effects.
	OpOther Opcode = iota
	// OpGoto is an unconditional jump.
	OpGoto
	// OpBranch is a two-way conditional jump on Inputs[0].
	OpBranch
	// OpPhi selects one input per predecessor, in predecessor order.
	OpPhi
	// OpCall is a call with side effects.
	OpCall
	// OpReturn leaves the function.
	OpReturn
	// OpDead is an operation already removed by an earlier analysis.
	OpDead
)

func (k Opcode) String() string {
	switch k {
	case OpOther:
		return "other"
	case OpGoto:
		return "goto"
	case OpBranch:
		return "branch"
	case OpPhi:
		return "phi"
	case OpCall:
		return "call"
	case OpReturn:
		return "return"
	case OpDead:
		return "dead"
	default:
		return fmt.Sprintf("opcode(%d)", uint8(k))
	}
}

// BranchHint is the statically preferred direction of a branch.
type BranchHint uint8

const (
	HintNone BranchHint = iota
	HintTrue
	HintFalse
)

func (h BranchHint) String() string {
	switch h {
	case HintTrue:
		return "true"
	case HintFalse:
		return "false"
	default:
		return "none"
	}
}

// Representation is the machine representation of a phi's value.
type Representation uint8

const (
	RepNone Representation = iota
	RepWord32
	RepWord64
	RepFloat64
	RepTagged
)

func (r Representation) String() string {
	switch r {
	case RepWord32:
		return "word32"
	case RepWord64:
		return "word64"
	case RepFloat64:
		return "float64"
	case RepTagged:
		return "tagged"
	default:
		return "none"
	}
}

// BranchOp is the payload of OpBranch.
type BranchOp struct {
	True  BlockIndex
	False BlockIndex
	Hint  BranchHint
}

// GotoOp is the payload of OpGoto.
type GotoOp struct {
	Target BlockIndex
}

// PhiOp is the payload of OpPhi.
type PhiOp struct {
	Rep Representation
}

// CallOp is the payload of OpCall.
type CallOp struct {
	Callee string
}

// OtherOp is the payload of OpOther.
type OtherOp struct {
	Mnemonic           string
	RequiredWhenUnused bool
}

// Operation is a single IR operation. Kind selects which payload is
// meaningful; the others are zero.
type Operation struct {
	Kind   Opcode
	Inputs []OpIndex

	Branch BranchOp
	Goto   GotoOp
	Phi    PhiOp
	Call   CallOp
	Other  OtherOp
}

// IsTerminator reports whether op ends a block.
func (op *Operation) IsTerminator() bool {
	switch op.Kind {
	case OpGoto, OpBranch, OpReturn:
		return true
	default:
		return false
	}
}

// IsRequiredWhenUnused reports whether op must survive even without users.
func (op *Operation) IsRequiredWhenUnused() bool {
	switch op.Kind {
	case OpCall, OpReturn:
		return true
	case OpOther:
		return op.Other.RequiredWhenUnused
	default:
		return false
	}
}

// Successors returns the successor blocks of a terminator in exploration
// order: the true target before the false target.
func (op *Operation) Successors() []BlockIndex {
	switch op.Kind {
	case OpGoto:
		return []BlockIndex{op.Goto.Target}
	case OpBranch:
		return []BlockIndex{op.Branch.True, op.Branch.False}
	default:
		return nil
	}
}

// Goto returns a jump to target.
func Goto(target BlockIndex) Operation {
	return Operation{Kind: OpGoto, Goto: GotoOp{Target: target}}
}

// Branch returns a conditional jump on cond.
func Branch(cond OpIndex, ifTrue, ifFalse BlockIndex, hint BranchHint) Operation {
	return Operation{
		Kind:   OpBranch,
		Inputs: []OpIndex{cond},
		Branch: BranchOp{True: ifTrue, False: ifFalse, Hint: hint},
	}
}

// Phi returns a phi over inputs, one per predecessor.
func Phi(rep Representation, inputs ...OpIndex) Operation {
	return Operation{Kind: OpPhi, Inputs: inputs, Phi: PhiOp{Rep: rep}}
}

// Call returns a call to callee with the given arguments.
func Call(callee string, args ...OpIndex) Operation {
	return Operation{Kind: OpCall, Inputs: args, Call: CallOp{Callee: callee}}
}

// Return returns a function exit returning values.
func Return(values ...OpIndex) Operation {
	return Operation{Kind: OpReturn, Inputs: values}
}

// Pure returns a side-effect free operation.
func Pure(mnemonic string, inputs ...OpIndex) Operation {
	return Operation{Kind: OpOther, Inputs: inputs, Other: OtherOp{Mnemonic: mnemonic}}
}

// Effect returns an operation that must be kept even if unused.
func Effect(mnemonic string, inputs ...OpIndex) Operation {
	return Operation{Kind: OpOther, Inputs: inputs, Other: OtherOp{Mnemonic: mnemonic, RequiredWhenUnused: true}}
}

// Dead returns a placeholder for an operation removed earlier.
func Dead() Operation {
	return Operation{Kind: OpDead}
}

func (op *Operation) String() string {
	var sb strings.Builder
	switch op.Kind {
	case OpOther:
		sb.WriteString(op.Other.Mnemonic)
		if op.Other.RequiredWhenUnused {
			sb.WriteString("!")
		}
	case OpPhi:
		fmt.Fprintf(&sb, "phi.%s", op.Phi.Rep)
	case OpCall:
		fmt.Fprintf(&sb, "call %s", op.Call.Callee)
	default:
		sb.WriteString(op.Kind.String())
	}
	for i, in := range op.Inputs {
		if i == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(in.String())
	}
	switch op.Kind {
	case OpGoto:
		fmt.Fprintf(&sb, " -> %s", op.Goto.Target)
	case OpBranch:
		fmt.Fprintf(&sb, " ? %s : %s", op.Branch.True, op.Branch.False)
		if op.Branch.Hint != HintNone {
			fmt.Fprintf(&sb, " [hint=%s]", op.Branch.Hint)
		}
	}
	return sb.String()
}
