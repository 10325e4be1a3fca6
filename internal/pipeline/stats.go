package pipeline

import "fmt"

// Stats are per-graph counters reported by `cfgprep run --emit stats`.
type Stats struct {
	Blocks            int  `json:"blocks" msgpack:"blocks"`
	BlocksOut         int  `json:"blocks_out" msgpack:"blocks_out"`
	Loops             int  `json:"loops" msgpack:"loops"`
	MaxLoopDepth      int  `json:"max_loop_depth" msgpack:"max_loop_depth"`
	Deferred          int  `json:"deferred" msgpack:"deferred"`
	OpsIn             int  `json:"ops_in" msgpack:"ops_in"`
	OpsOut            int  `json:"ops_out" msgpack:"ops_out"`
	OpsRemoved        int  `json:"ops_removed" msgpack:"ops_removed"`
	BranchesRewritten int  `json:"branches_rewritten" msgpack:"branches_rewritten"`
	Leaf              bool `json:"leaf" msgpack:"leaf"`
}

func (s Stats) String() string {
	leaf := ""
	if s.Leaf {
		leaf = ", leaf"
	}
	return fmt.Sprintf("blocks %d->%d, loops %d (depth %d), deferred %d, ops %d->%d (-%d), branches rewritten %d%s",
		s.Blocks, s.BlocksOut, s.Loops, s.MaxLoopDepth, s.Deferred,
		s.OpsIn, s.OpsOut, s.OpsRemoved, s.BranchesRewritten, leaf)
}
