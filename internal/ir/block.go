package ir

import "iter"

// BlockKind classifies blocks by how control enters them.
type BlockKind uint8

const (
	// BlockEntry is the function entry; it has no predecessors.
	BlockEntry BlockKind = iota
	// BlockPlain has exactly one predecessor.
	BlockPlain
	// BlockMerge joins several forward predecessors.
	BlockMerge
	// BlockLoop is a loop header: forward predecessors plus backedges.
	BlockLoop
)

func (k BlockKind) String() string {
	switch k {
	case BlockEntry:
		return "entry"
	case BlockPlain:
		return "plain"
	case BlockMerge:
		return "merge"
	case BlockLoop:
		return "loop"
	default:
		return "unknown"
	}
}

// PredEdge is a cursor into a block's predecessor chain. Edges live in a
// graph-owned arena and are linked from the newest toward the oldest.
type PredEdge int32

// NoEdge terminates a predecessor chain.
const NoEdge PredEdge = -1

type predEdge struct {
	from BlockIndex
	next PredEdge
}

// Block is a basic block: a contiguous range of operations ending in a
// terminator.
type Block struct {
	Kind     BlockKind
	Deferred bool

	index    BlockIndex
	begin    OpIndex
	end      OpIndex
	lastPred PredEdge
	npreds   int
}

// Index returns the block's handle.
func (b *Block) Index() BlockIndex { return b.index }

// IsLoop reports whether b is a loop header.
func (b *Block) IsLoop() bool { return b.Kind == BlockLoop }

// IsMerge reports whether b is a forward merge point.
func (b *Block) IsMerge() bool { return b.Kind == BlockMerge }

// IsLoopOrMerge reports whether b may have more than one predecessor.
func (b *Block) IsLoopOrMerge() bool { return b.Kind == BlockLoop || b.Kind == BlockMerge }

// Ops returns the block's operation range.
func (b *Block) Ops() OpRange {
	if !b.begin.Valid() {
		return OpRange{}
	}
	return OpRange{Begin: b.begin, End: b.end}
}

// OpRange is the half-open range [Begin, End) of a block's operations.
type OpRange struct {
	Begin OpIndex
	End   OpIndex
}

// Len returns the number of operations in the range.
func (r OpRange) Len() int { return int(r.End) - int(r.Begin) }

// Last returns the final operation, or InvalidOp for an empty range.
func (r OpRange) Last() OpIndex {
	if r.Len() == 0 {
		return InvalidOp
	}
	return r.End - 1
}

// All yields the operations front to back.
func (r OpRange) All() iter.Seq[OpIndex] {
	return func(yield func(OpIndex) bool) {
		for i := r.Begin; i < r.End; i++ {
			if !yield(i) {
				return
			}
		}
	}
}

// Backward yields the operations back to front.
func (r OpRange) Backward() iter.Seq[OpIndex] {
	return func(yield func(OpIndex) bool) {
		for i := r.End; i > r.Begin; i-- {
			if !yield(i - 1) {
				return
			}
		}
	}
}
