// internal/dataflow/liveness.go
//
// Backward liveness on bit sets: in[s] = uses(s) ∪ (out[s] \ defs(s)),
// meet is union, out at every exit starts empty.
package dataflow

import (
	"sort"

	"github.com/bits-and-blooms/bitset"

	"coolc/internal/cfg"
	"coolc/internal/tac"
)

// Liveness wraps the fixed point together with the variable universe
// used to index the bit sets.
type Liveness struct {
	Result *Result[*bitset.BitSet]
	Names  []string
	index  map[string]uint
}

type liveProblem struct {
	universe uint
	index    map[string]uint
}

func (p *liveProblem) Top() *bitset.BitSet {
	s := bitset.New(p.universe)
	for i := uint(0); i < p.universe; i++ {
		s.Set(i)
	}
	return s
}

func (p *liveProblem) Bottom() *bitset.BitSet   { return bitset.New(p.universe) }
func (p *liveProblem) Boundary() *bitset.BitSet { return bitset.New(p.universe) }

func (p *liveProblem) Direction() Direction { return Backward }

func (p *liveProblem) Meet(a, b *bitset.BitSet) *bitset.BitSet {
	return a.Union(b)
}

func (p *liveProblem) Equal(a, b *bitset.BitSet) bool {
	return a.Equal(b)
}

func (p *liveProblem) Transfer(ins tac.Instruction, out *bitset.BitSet) *bitset.BitSet {
	in := out.Clone()
	for _, d := range ins.Defs() {
		if k, ok := p.index[tac.RegName(d)]; ok {
			in.Clear(k)
		}
	}
	for _, u := range ins.Uses() {
		if k, ok := p.index[tac.RegName(u)]; ok {
			in.Set(k)
		}
	}
	return in
}

// RunLiveness computes live variables for every block and
// instruction of g.
func RunLiveness(g *cfg.Graph) *Liveness {
	names, index := collectVariables(g)
	p := &liveProblem{universe: uint(len(names)), index: index}
	return &Liveness{
		Result: Run[*bitset.BitSet](g, p),
		Names:  names,
		index:  index,
	}
}

// collectVariables builds the variable universe: every register name
// defined or used anywhere in the graph, ordered by first
// appearance.
func collectVariables(g *cfg.Graph) ([]string, map[string]uint) {
	var names []string
	index := make(map[string]uint)
	add := func(ops []tac.Operand) {
		for _, op := range ops {
			name := tac.RegName(op)
			if _, ok := index[name]; !ok {
				index[name] = uint(len(names))
				names = append(names, name)
			}
		}
	}
	for _, blk := range g.Blocks {
		for _, ins := range blk.Instrs {
			add(ins.Defs())
			add(ins.Uses())
		}
	}
	return names, index
}

// LiveIn returns the names live at entry to a block, sorted.
func (l *Liveness) LiveIn(block int) []string {
	// For a backward problem BlockOut holds the block-entry value.
	return l.names(l.Result.BlockOut[block])
}

// LiveOut returns the names live at exit from a block, sorted.
func (l *Liveness) LiveOut(block int) []string {
	return l.names(l.Result.BlockIn[block])
}

// OutAt returns the live-out bit set of the instruction at pt.
func (l *Liveness) OutAt(pt Point) *bitset.BitSet {
	return l.Result.InstrBefore[pt]
}

// InAt returns the live-in bit set of the instruction at pt.
func (l *Liveness) InAt(pt Point) *bitset.BitSet {
	return l.Result.InstrAfter[pt]
}

// LiveAt reports whether name is in the given set.
func (l *Liveness) LiveAt(set *bitset.BitSet, name string) bool {
	k, ok := l.index[name]
	return ok && set != nil && set.Test(k)
}

func (l *Liveness) names(set *bitset.BitSet) []string {
	if set == nil {
		return nil
	}
	var out []string
	for i, ok := set.NextSet(0); ok; i, ok = set.NextSet(i + 1) {
		out = append(out, l.Names[i])
	}
	sort.Strings(out)
	return out
}
