// internal/dataflow/interference.go
//
// Live ranges as program-point sets, and the interference graph over
// them: one node per variable, an undirected edge per pair of
// variables whose point sets intersect.
package dataflow

import (
	"sort"

	"github.com/bits-and-blooms/bitset"

	"coolc/internal/cfg"
)

// LiveRanges maps each variable to the set of program points where
// it is live (in the in or out set of the instruction).
type LiveRanges struct {
	Points map[string]map[Point]bool
	Names  []string // sorted
}

// ComputeLiveRanges collects, for every variable, the points at
// which it is live in g according to the given liveness fixed point.
func ComputeLiveRanges(g *cfg.Graph, live *Liveness) *LiveRanges {
	r := &LiveRanges{Points: make(map[string]map[Point]bool)}
	for _, name := range live.Names {
		r.Points[name] = make(map[Point]bool)
	}

	for _, blk := range g.Blocks {
		for i := range blk.Instrs {
			pt := Point{Block: blk.ID, Index: i}
			for _, set := range []*bitset.BitSet{live.InAt(pt), live.OutAt(pt)} {
				if set == nil {
					continue
				}
				for k, name := range live.Names {
					if set.Test(uint(k)) {
						r.Points[name][pt] = true
					}
				}
			}
		}
	}

	r.Names = append(r.Names, live.Names...)
	sort.Strings(r.Names)
	return r
}

// InterferenceGraph has a node per variable and an undirected edge
// per interfering pair.
type InterferenceGraph struct {
	Nodes []string
	adj   map[string]map[string]bool
}

// BuildInterferenceGraph connects every pair of variables whose live
// ranges share a program point.
func BuildInterferenceGraph(ranges *LiveRanges) *InterferenceGraph {
	g := &InterferenceGraph{
		Nodes: append([]string(nil), ranges.Names...),
		adj:   make(map[string]map[string]bool),
	}
	for _, n := range g.Nodes {
		g.adj[n] = make(map[string]bool)
	}

	for i := 0; i < len(g.Nodes); i++ {
		for j := i + 1; j < len(g.Nodes); j++ {
			a, b := g.Nodes[i], g.Nodes[j]
			if rangesIntersect(ranges.Points[a], ranges.Points[b]) {
				g.adj[a][b] = true
				g.adj[b][a] = true
			}
		}
	}
	return g
}

func rangesIntersect(a, b map[Point]bool) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for pt := range a {
		if b[pt] {
			return true
		}
	}
	return false
}

// Interferes reports whether a and b are simultaneously live
// somewhere.
func (g *InterferenceGraph) Interferes(a, b string) bool {
	return g.adj[a][b]
}

// Neighbors returns the variables interfering with name, sorted.
func (g *InterferenceGraph) Neighbors(name string) []string {
	var out []string
	for n := range g.adj[name] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Edges returns every interference pair once, lexicographically.
func (g *InterferenceGraph) Edges() [][2]string {
	var out [][2]string
	for _, a := range g.Nodes {
		for _, b := range g.Neighbors(a) {
			if a < b {
				out = append(out, [2]string{a, b})
			}
		}
	}
	return out
}
