package ir

import (
	"fmt"
	"math"

	"fortio.org/safecast"
)

// OpIndex addresses an operation inside one Graph.
type OpIndex uint32

// BlockIndex addresses a block inside one Graph.
type BlockIndex uint32

const (
	// InvalidOp is the reserved "no operation" handle.
	InvalidOp OpIndex = math.MaxUint32
	// InvalidBlock is the reserved "no block" handle.
	InvalidBlock BlockIndex = math.MaxUint32
)

// Valid reports whether i is not the InvalidOp sentinel.
func (i OpIndex) Valid() bool { return i != InvalidOp }

// Valid reports whether b is not the InvalidBlock sentinel.
func (b BlockIndex) Valid() bool { return b != InvalidBlock }

func (i OpIndex) String() string {
	if !i.Valid() {
		return "v?"
	}
	return fmt.Sprintf("v%d", uint32(i))
}

func (b BlockIndex) String() string {
	if !b.Valid() {
		return "b?"
	}
	return fmt.Sprintf("b%d", uint32(b))
}

func nextOpIndex(n int) OpIndex {
	i, err := safecast.Conv[uint32](n)
	if err != nil || OpIndex(i) == InvalidOp {
		panic(fmt.Errorf("operation index overflow: %d", n))
	}
	return OpIndex(i)
}

func nextBlockIndex(n int) BlockIndex {
	i, err := safecast.Conv[uint32](n)
	if err != nil || BlockIndex(i) == InvalidBlock {
		panic(fmt.Errorf("block index overflow: %d", n))
	}
	return BlockIndex(i)
}
