// internal/dataflow/dataflow.go
//
// Generic iterative data-flow framework. A problem supplies the
// lattice (top, bottom, meet), a direction, the boundary value, and
// a per-instruction transfer function; the driver iterates to a
// fixed point and exposes both per-block and per-instruction values.
package dataflow

import (
	"coolc/internal/cfg"
	"coolc/internal/tac"
)

type Direction int

const (
	Forward Direction = iota
	Backward
)

// Problem describes one data-flow analysis over lattice values of
// type V. Transfer maps the value before an instruction (in analysis
// direction) to the value after it.
type Problem[V any] interface {
	Top() V
	Bottom() V
	Meet(a, b V) V
	Equal(a, b V) bool
	Direction() Direction

	// Boundary is the value at the entry block (forward) or at the
	// exit blocks (backward).
	Boundary() V

	Transfer(ins tac.Instruction, before V) V
}

// Point addresses one instruction inside a graph.
type Point struct {
	Block int
	Index int
}

// Result carries the fixed point. For a forward problem BlockIn is
// the value at block entry; for a backward problem BlockIn is the
// value before the block in analysis order, i.e. at block exit.
// InstrBefore/InstrAfter follow the same convention per instruction.
type Result[V any] struct {
	BlockIn  map[int]V
	BlockOut map[int]V

	InstrBefore map[Point]V
	InstrAfter  map[Point]V
}

// Run iterates the problem to a fixed point: reverse postorder for
// forward problems, postorder for backward ones. The lattices in use
// have finite height and monotone transfers, so the loop terminates.
func Run[V any](g *cfg.Graph, p Problem[V]) *Result[V] {
	res := &Result[V]{
		BlockIn:     make(map[int]V),
		BlockOut:    make(map[int]V),
		InstrBefore: make(map[Point]V),
		InstrAfter:  make(map[Point]V),
	}
	if len(g.Blocks) == 0 {
		return res
	}

	var order []int
	if p.Direction() == Forward {
		order = g.ReversePostorder()
	} else {
		order = g.Postorder()
	}

	for _, id := range order {
		res.BlockIn[id] = p.Bottom()
		res.BlockOut[id] = p.Bottom()
	}

	boundary := func(id int) bool {
		if p.Direction() == Forward {
			return id == g.Entry
		}
		for _, e := range g.Exits {
			if e == id {
				return true
			}
		}
		return false
	}

	neighbors := func(id int) []int {
		if p.Direction() == Forward {
			return g.Blocks[id].Preds
		}
		return g.Blocks[id].Succs
	}

	for changed := true; changed; {
		changed = false
		for _, id := range order {
			in := p.Bottom()
			if boundary(id) {
				in = p.Meet(in, p.Boundary())
			}
			for _, n := range neighbors(id) {
				if v, ok := res.BlockOut[n]; ok {
					in = p.Meet(in, v)
				}
			}
			out := transferBlock(g, p, id, in)

			if !p.Equal(in, res.BlockIn[id]) || !p.Equal(out, res.BlockOut[id]) {
				changed = true
			}
			res.BlockIn[id] = in
			res.BlockOut[id] = out
		}
	}

	// Final fold to record per-instruction values.
	for _, id := range order {
		cur := res.BlockIn[id]
		for _, idx := range instrOrder(g, p, id) {
			pt := Point{Block: id, Index: idx}
			res.InstrBefore[pt] = cur
			cur = p.Transfer(g.Blocks[id].Instrs[idx], cur)
			res.InstrAfter[pt] = cur
		}
	}
	return res
}

// transferBlock folds the transfer function across a block in
// analysis order.
func transferBlock[V any](g *cfg.Graph, p Problem[V], id int, in V) V {
	cur := in
	for _, idx := range instrOrder(g, p, id) {
		cur = p.Transfer(g.Blocks[id].Instrs[idx], cur)
	}
	return cur
}

func instrOrder[V any](g *cfg.Graph, p Problem[V], id int) []int {
	n := len(g.Blocks[id].Instrs)
	order := make([]int, n)
	for i := 0; i < n; i++ {
		if p.Direction() == Forward {
			order[i] = i
		} else {
			order[i] = n - 1 - i
		}
	}
	return order
}
