// internal/cfg/cfg.go
//
// Basic blocks and the control-flow graph over a TAC method. Blocks
// are owned by the graph and addressed by index; analyses traffic in
// block ids, never in block pointers across graphs.
package cfg

import (
	"coolc/internal/tac"
)

// BasicBlock is a maximal straight-line instruction sequence. The
// leader sits at position 0; only the last instruction may be a jump.
type BasicBlock struct {
	ID     int
	Label  string // label of the leader, "" when the block has none
	Instrs []tac.Instruction
	Preds  []int
	Succs  []int
}

// Graph is the CFG for one method.
type Graph struct {
	Method *tac.Method
	Blocks []*BasicBlock // arena: Blocks[i].ID == i
	Entry  int
	Exits  []int

	labelToBlock map[string]int
}

// Build cuts the method's instruction list at leaders and wires the
// edges. An instruction leads a block iff it is the first
// instruction, it is a label, or it follows a jump.
func Build(m *tac.Method) *Graph {
	g := &Graph{Method: m, labelToBlock: make(map[string]int)}
	if len(m.Instructions) == 0 {
		return g
	}

	leaders := make([]bool, len(m.Instructions))
	leaders[0] = true
	for i, ins := range m.Instructions {
		if _, ok := ins.(*tac.LabelDef); ok {
			leaders[i] = true
		}
		if tac.IsJump(ins) && i+1 < len(m.Instructions) {
			leaders[i+1] = true
		}
	}

	for i := 0; i < len(m.Instructions); {
		j := i + 1
		for j < len(m.Instructions) && !leaders[j] {
			j++
		}
		g.addBlock(m.Instructions[i:j])
		i = j
	}

	g.connect()
	return g
}

func (g *Graph) addBlock(instrs []tac.Instruction) *BasicBlock {
	b := &BasicBlock{ID: len(g.Blocks), Instrs: instrs}
	if len(instrs) > 0 {
		if ld, ok := instrs[0].(*tac.LabelDef); ok {
			b.Label = ld.Label.Name
			g.labelToBlock[b.Label] = b.ID
		}
	}
	g.Blocks = append(g.Blocks, b)
	return b
}

// connect adds edges from each block's final instruction:
// unconditional jump to its target, conditional jump to target then
// fall-through, return to nothing (exit), anything else to the
// textual successor. Edges are deduplicated.
func (g *Graph) connect() {
	for _, b := range g.Blocks {
		if len(b.Instrs) == 0 {
			continue
		}
		last := b.Instrs[len(b.Instrs)-1]

		switch last := last.(type) {
		case *tac.Jump:
			g.addEdgeToLabel(b, last.Target.Name)
		case *tac.CondJump:
			g.addEdgeToLabel(b, last.Target.Name)
			g.addFallThrough(b)
		case *tac.CondJumpNot:
			g.addEdgeToLabel(b, last.Target.Name)
			g.addFallThrough(b)
		case *tac.Return:
			g.Exits = append(g.Exits, b.ID)
		default:
			if !g.addFallThrough(b) {
				// Last block with no jump still leaves the method.
				g.Exits = append(g.Exits, b.ID)
			}
		}
	}
}

func (g *Graph) addEdgeToLabel(from *BasicBlock, label string) {
	if to, ok := g.labelToBlock[label]; ok {
		g.addEdge(from.ID, to)
	}
}

func (g *Graph) addFallThrough(from *BasicBlock) bool {
	if from.ID+1 < len(g.Blocks) {
		g.addEdge(from.ID, from.ID+1)
		return true
	}
	return false
}

func (g *Graph) addEdge(from, to int) {
	for _, s := range g.Blocks[from].Succs {
		if s == to {
			return
		}
	}
	g.Blocks[from].Succs = append(g.Blocks[from].Succs, to)
	g.Blocks[to].Preds = append(g.Blocks[to].Preds, from)
}

// BlockByLabel resolves a label to its block id.
func (g *Graph) BlockByLabel(label string) (int, bool) {
	id, ok := g.labelToBlock[label]
	return id, ok
}

// Postorder returns the reachable block ids in depth-first postorder
// starting at the entry. Successor enumeration order is fixed
// (target first, fall-through second), so the traversal is
// deterministic.
func (g *Graph) Postorder() []int {
	var order []int
	visited := make([]bool, len(g.Blocks))

	var visit func(id int)
	visit = func(id int) {
		visited[id] = true
		for _, s := range g.Blocks[id].Succs {
			if !visited[s] {
				visit(s)
			}
		}
		order = append(order, id)
	}

	if len(g.Blocks) > 0 {
		visit(g.Entry)
	}
	return order
}

// ReversePostorder returns the reachable block ids in reverse
// postorder. Unreachable blocks do not appear.
func (g *Graph) ReversePostorder() []int {
	post := g.Postorder()
	rpo := make([]int, len(post))
	for i, id := range post {
		rpo[len(post)-1-i] = id
	}
	return rpo
}
