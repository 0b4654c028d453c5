// internal/cfg/dom.go
//
// Dominator analysis: iterative forward dataflow over block-id bit
// sets, immediate dominators, the dominator tree, and dominance
// frontiers via the idom-runner walk.
package cfg

import (
	"github.com/bits-and-blooms/bitset"
)

// Dominance holds the dominator analysis results for one graph.
// Idom is -1 for the entry block and for unreachable blocks.
type Dominance struct {
	graph *Graph

	// Dom[b] is the set of blocks on every path from entry to b.
	Dom []*bitset.BitSet

	Idom     []int
	Children [][]int // dominator-tree children, ordered by block id

	// Frontier[b] is the dominance frontier DF(b).
	Frontier [][]int
}

// ComputeDominance runs the full dominator analysis.
func ComputeDominance(g *Graph) *Dominance {
	d := &Dominance{graph: g}
	d.computeDominators()
	d.computeIdoms()
	d.buildTree()
	d.computeFrontiers()
	return d
}

// Dominates reports whether a dominates b.
func (d *Dominance) Dominates(a, b int) bool {
	return d.Dom[b] != nil && d.Dom[b].Test(uint(a))
}

// computeDominators iterates dom(B) = {B} ∪ ⋂ dom(P) in reverse
// postorder until stable. dom(entry) = {entry}. Unreachable blocks
// keep a nil set.
func (d *Dominance) computeDominators() {
	g := d.graph
	n := uint(len(g.Blocks))
	d.Dom = make([]*bitset.BitSet, n)
	if n == 0 {
		return
	}

	rpo := g.ReversePostorder()
	reachable := make([]bool, n)
	for _, id := range rpo {
		reachable[id] = true
	}

	all := bitset.New(n)
	for i := uint(0); i < n; i++ {
		all.Set(i)
	}

	for _, id := range rpo {
		if id == g.Entry {
			d.Dom[id] = bitset.New(n)
			d.Dom[id].Set(uint(id))
		} else {
			d.Dom[id] = all.Clone()
		}
	}

	for changed := true; changed; {
		changed = false
		for _, id := range rpo {
			if id == g.Entry {
				continue
			}
			next := all.Clone()
			for _, p := range g.Blocks[id].Preds {
				if reachable[p] {
					next.InPlaceIntersection(d.Dom[p])
				}
			}
			next.Set(uint(id))
			if !next.Equal(d.Dom[id]) {
				d.Dom[id] = next
				changed = true
			}
		}
	}
}

// computeIdoms picks, for each non-entry block, the strict dominator
// that every other strict dominator dominates, i.e. the nearest one.
func (d *Dominance) computeIdoms() {
	g := d.graph
	d.Idom = make([]int, len(g.Blocks))
	for i := range d.Idom {
		d.Idom[i] = -1
	}

	for id := range g.Blocks {
		if id == g.Entry || d.Dom[id] == nil {
			continue
		}

		var strict []int
		for i, ok := d.Dom[id].NextSet(0); ok; i, ok = d.Dom[id].NextSet(i + 1) {
			if int(i) != id {
				strict = append(strict, int(i))
			}
		}

		for _, cand := range strict {
			nearest := true
			for _, other := range strict {
				if other != cand && !d.Dom[cand].Test(uint(other)) {
					nearest = false
					break
				}
			}
			if nearest {
				d.Idom[id] = cand
				break
			}
		}
	}
}

func (d *Dominance) buildTree() {
	d.Children = make([][]int, len(d.graph.Blocks))
	for id, idom := range d.Idom {
		if idom >= 0 {
			d.Children[idom] = append(d.Children[idom], id)
		}
	}
}

// computeFrontiers: for each join block X, walk each predecessor's
// idom chain up to idom(X), adding X to the frontier of every block
// on the way.
func (d *Dominance) computeFrontiers() {
	g := d.graph
	sets := make([]*bitset.BitSet, len(g.Blocks))
	for i := range sets {
		sets[i] = bitset.New(uint(len(g.Blocks)))
	}

	for _, x := range g.Blocks {
		if len(x.Preds) < 2 {
			continue
		}
		for _, p := range x.Preds {
			runner := p
			for runner != -1 && runner != d.Idom[x.ID] {
				sets[runner].Set(uint(x.ID))
				runner = d.Idom[runner]
			}
		}
	}

	d.Frontier = make([][]int, len(g.Blocks))
	for i, s := range sets {
		for b, ok := s.NextSet(0); ok; b, ok = s.NextSet(b + 1) {
			d.Frontier[i] = append(d.Frontier[i], int(b))
		}
	}
}
