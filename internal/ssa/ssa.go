// internal/ssa/ssa.go
//
// SSA construction after Cytron et al.: φ placement on iterated
// dominance frontiers, then renaming by DFS over the dominator tree.
package ssa

import (
	"fmt"

	"coolc/internal/cfg"
	"coolc/internal/tac"
)

// Convert returns a new method in SSA form: every versioned variable
// name is assigned exactly once, and every join block with multiple
// reaching definitions starts with a φ. The instruction list is
// re-linearised in reverse postorder, each block preceded by its
// label.
func Convert(m *tac.Method) *tac.Method {
	g := cfg.Build(m)
	if len(g.Blocks) == 0 {
		return m
	}
	ConvertGraph(g)
	return flatten(g, m)
}

// ConvertGraph rewrites the graph's blocks to SSA form in place.
func ConvertGraph(g *cfg.Graph) {
	dom := cfg.ComputeDominance(g)

	b := &builder{
		graph:    g,
		dom:      dom,
		counters: make(map[string]int),
		stacks:   make(map[string][]string),
	}
	vars, defBlocks := b.collectDefs()
	b.insertPhis(vars, defBlocks)
	b.rename(g.Entry)
}

type builder struct {
	graph *cfg.Graph
	dom   *cfg.Dominance

	counters map[string]int
	stacks   map[string][]string
}

// blockLabel names a block for φ sources and flattening: its leader
// label when it has one, a synthetic name otherwise.
func blockLabel(g *cfg.Graph, id int) string {
	if g.Blocks[id].Label != "" {
		return g.Blocks[id].Label
	}
	return fmt.Sprintf("B%d", id)
}

// collectDefs finds, for each register name, the blocks that assign
// it. Names are ordered by first appearance so φ insertion is
// deterministic.
func (b *builder) collectDefs() ([]string, map[string][]int) {
	var vars []string
	defBlocks := make(map[string][]int)
	inBlock := make(map[string]map[int]bool)

	for _, blk := range b.graph.Blocks {
		for _, ins := range blk.Instrs {
			for _, d := range ins.Defs() {
				name := tac.RegName(d)
				if inBlock[name] == nil {
					vars = append(vars, name)
					inBlock[name] = make(map[int]bool)
				}
				if !inBlock[name][blk.ID] {
					inBlock[name][blk.ID] = true
					defBlocks[name] = append(defBlocks[name], blk.ID)
				}
			}
		}
	}
	return vars, defBlocks
}

// insertPhis seeds a worklist with each variable's definition blocks
// and expands through dominance frontiers; a φ placed in a frontier
// block counts as a definition and keeps expanding.
func (b *builder) insertPhis(vars []string, defBlocks map[string][]int) {
	for _, v := range vars {
		phiBlocks := make(map[int]bool)
		enqueued := make(map[int]bool)

		worklist := append([]int(nil), defBlocks[v]...)
		for _, id := range worklist {
			enqueued[id] = true
		}

		for len(worklist) > 0 {
			id := worklist[0]
			worklist = worklist[1:]

			for _, f := range b.dom.Frontier[id] {
				if phiBlocks[f] {
					continue
				}
				phiBlocks[f] = true
				b.placePhi(v, f)
				if !enqueued[f] {
					enqueued[f] = true
					worklist = append(worklist, f)
				}
			}
		}
	}
}

// placePhi prepends v's φ to block id, after the leader label. The
// φ's arity equals the block's predecessor count; sources start as
// the unversioned variable paired with each predecessor's label.
func (b *builder) placePhi(v string, id int) {
	blk := b.graph.Blocks[id]
	phi := &tac.Phi{Dest: tac.Var{Name: v}, Base: v}
	for _, p := range blk.Preds {
		phi.Sources = append(phi.Sources, tac.PhiSource{
			Value: tac.Var{Name: v},
			Pred:  tac.Label{Name: blockLabel(b.graph, p)},
		})
	}

	at := 0
	if len(blk.Instrs) > 0 {
		if _, ok := blk.Instrs[0].(*tac.LabelDef); ok {
			at = 1
		}
	}
	blk.Instrs = append(blk.Instrs[:at], append([]tac.Instruction{phi}, blk.Instrs[at:]...)...)
}

// top returns the current version of v. A variable never assigned on
// this path (a parameter, self) keeps its original name.
func (b *builder) top(v string) string {
	if stack := b.stacks[v]; len(stack) > 0 {
		return stack[len(stack)-1]
	}
	return v
}

func (b *builder) fresh(v string) string {
	b.counters[v]++
	name := fmt.Sprintf("%s_%d", v, b.counters[v])
	b.stacks[v] = append(b.stacks[v], name)
	return name
}

// rename walks the dominator tree. Uses are rewritten to the current
// stack top; definitions push a fresh version; φ sources are filled
// in when their predecessor block is visited; versions pushed here
// pop on the way out.
func (b *builder) rename(id int) {
	blk := b.graph.Blocks[id]
	var pushed []string

	for _, ins := range blk.Instrs {
		if _, isPhi := ins.(*tac.Phi); !isPhi {
			tac.ReplaceUses(ins, func(op tac.Operand) tac.Operand {
				return tac.Var{Name: b.top(tac.RegName(op))}
			})
		}
		tac.ReplaceDefs(ins, func(op tac.Operand) tac.Operand {
			base := tac.RegName(op)
			if phi, isPhi := ins.(*tac.Phi); isPhi {
				base = phi.Base
			}
			pushed = append(pushed, base)
			return tac.Var{Name: b.fresh(base)}
		})
	}

	myLabel := blockLabel(b.graph, id)
	for _, s := range blk.Succs {
		for _, ins := range b.graph.Blocks[s].Instrs {
			phi, ok := ins.(*tac.Phi)
			if !ok {
				continue
			}
			for i := range phi.Sources {
				if phi.Sources[i].Pred.Name == myLabel {
					phi.Sources[i].Value = tac.Var{Name: b.top(phi.Base)}
				}
			}
		}
	}

	for _, child := range b.dom.Children[id] {
		b.rename(child)
	}

	for _, v := range pushed {
		b.stacks[v] = b.stacks[v][:len(b.stacks[v])-1]
	}
}

// flatten re-linearises the graph in reverse postorder, each block
// preceded by its label instruction.
func flatten(g *cfg.Graph, m *tac.Method) *tac.Method {
	var instrs []tac.Instruction
	for _, id := range g.ReversePostorder() {
		instrs = append(instrs, &tac.LabelDef{Label: tac.Label{Name: blockLabel(g, id)}})
		for _, ins := range g.Blocks[id].Instrs {
			if _, ok := ins.(*tac.LabelDef); ok {
				continue
			}
			instrs = append(instrs, ins)
		}
	}
	return &tac.Method{
		ClassName:    m.ClassName,
		MethodName:   m.MethodName,
		Params:       m.Params,
		Instructions: instrs,
	}
}
