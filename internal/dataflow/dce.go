// internal/dataflow/dce.go
package dataflow

import (
	"coolc/internal/cfg"
	"coolc/internal/tac"
)

// RunDeadCodeElimination deletes instructions whose single definition
// is not live-out at the instruction, provided they have no side
// effects.
// Removing one instruction can kill another, so liveness is recomputed
// and the sweep repeated until a pass deletes nothing. Returns the
// number of instructions removed.
func RunDeadCodeElimination(g *cfg.Graph) int {
	total := 0
	for {
		live := RunLiveness(g)
		removed := 0
		for _, blk := range g.Blocks {
			kept := blk.Instrs[:0]
			for i, ins := range blk.Instrs {
				if isDead(ins, live, Point{Block: blk.ID, Index: i}) {
					removed++
					continue
				}
				kept = append(kept, ins)
			}
			blk.Instrs = kept
		}
		if removed == 0 {
			return total
		}
		total += removed
	}
}

func isDead(ins tac.Instruction, live *Liveness, pt Point) bool {
	if tac.HasSideEffects(ins) {
		return false
	}
	defs := ins.Defs()
	if len(defs) != 1 {
		return false
	}
	out := live.OutAt(pt)
	if out == nil {
		// Unreachable block: liveness has no say, keep the code.
		return false
	}
	return !live.LiveAt(out, tac.RegName(defs[0]))
}
