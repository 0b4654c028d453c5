package ssa

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coolc/internal/cfg"
	"coolc/internal/tac"
)

// diamond: entry branches on c, both arms assign x, the join
// returns it.
func diamond() *tac.Method {
	return &tac.Method{
		ClassName:  "Main",
		MethodName: "main",
		Instructions: []tac.Instruction{
			&tac.CondJump{Cond: tac.Var{Name: "c"}, Target: tac.Label{Name: "else"}},
			&tac.Copy{Dest: tac.Var{Name: "x"}, Src: tac.Const{Value: 1, TypeTag: "Int"}},
			&tac.Jump{Target: tac.Label{Name: "join"}},
			&tac.LabelDef{Label: tac.Label{Name: "else"}},
			&tac.Copy{Dest: tac.Var{Name: "x"}, Src: tac.Const{Value: 2, TypeTag: "Int"}},
			&tac.LabelDef{Label: tac.Label{Name: "join"}},
			&tac.Return{Value: tac.Var{Name: "x"}},
		},
	}
}

func phisOf(m *tac.Method) []*tac.Phi {
	var phis []*tac.Phi
	for _, ins := range m.Instructions {
		if phi, ok := ins.(*tac.Phi); ok {
			phis = append(phis, phi)
		}
	}
	return phis
}

func TestDiamondGetsPhi(t *testing.T) {
	out := Convert(diamond())

	phis := phisOf(out)
	require.Len(t, phis, 1, "the join needs exactly one φ")
	phi := phis[0]

	assert.Equal(t, "x", phi.Base)
	require.Len(t, phi.Sources, 2, "φ arity equals the join's predecessor count")

	// Each source carries a distinct version of x paired with its
	// predecessor label.
	versions := map[string]bool{}
	for _, s := range phi.Sources {
		versions[s.Value.String()] = true
		assert.True(t, strings.HasPrefix(s.Value.String(), "x_"),
			"source %s should be a versioned x", s.Value)
	}
	assert.Len(t, versions, 2, "the two arms produce distinct versions")
}

func TestReturnUsesPhiResult(t *testing.T) {
	out := Convert(diamond())
	phi := phisOf(out)[0]

	var ret *tac.Return
	for _, ins := range out.Instructions {
		if r, ok := ins.(*tac.Return); ok {
			ret = r
		}
	}
	require.NotNil(t, ret)
	assert.Equal(t, phi.Dest.String(), ret.Value.String(),
		"the join's return must read the φ result")
}

func TestSingleAssignmentProperty(t *testing.T) {
	out := Convert(diamond())

	defs := map[string]int{}
	for _, ins := range out.Instructions {
		for _, d := range ins.Defs() {
			defs[tac.RegName(d)]++
		}
	}
	for name, count := range defs {
		assert.Equal(t, 1, count, "variable %s assigned %d times", name, count)
	}
}

func TestUsesAreRenamedToReachingVersion(t *testing.T) {
	// Straight-line reassignment: x=1; x=2; y=x must read x_2.
	m := &tac.Method{
		ClassName:  "Main",
		MethodName: "main",
		Instructions: []tac.Instruction{
			&tac.Copy{Dest: tac.Var{Name: "x"}, Src: tac.Const{Value: 1, TypeTag: "Int"}},
			&tac.Copy{Dest: tac.Var{Name: "x"}, Src: tac.Const{Value: 2, TypeTag: "Int"}},
			&tac.Copy{Dest: tac.Var{Name: "y"}, Src: tac.Var{Name: "x"}},
			&tac.Return{Value: tac.Var{Name: "y"}},
		},
	}
	out := Convert(m)

	var copies []*tac.Copy
	for _, ins := range out.Instructions {
		if c, ok := ins.(*tac.Copy); ok {
			copies = append(copies, c)
		}
	}
	require.Len(t, copies, 3)
	assert.Equal(t, "x_1", copies[0].Dest.String())
	assert.Equal(t, "x_2", copies[1].Dest.String())
	assert.Equal(t, "x_2", copies[2].Src.String(), "use must see the latest version")
	assert.Equal(t, "y_1", copies[2].Dest.String())
}

func TestParametersKeepTheirNames(t *testing.T) {
	// A parameter read before any assignment keeps its original
	// name; versions only appear at definitions.
	m := &tac.Method{
		ClassName:  "Main",
		MethodName: "add",
		Params:     []string{"a", "b"},
		Instructions: []tac.Instruction{
			&tac.BinaryOp{Dest: tac.Temp{Index: 0}, Op: tac.Add, Left: tac.Var{Name: "a"}, Right: tac.Var{Name: "b"}},
			&tac.Return{Value: tac.Temp{Index: 0}},
		},
	}
	out := Convert(m)

	var bin *tac.BinaryOp
	for _, ins := range out.Instructions {
		if b, ok := ins.(*tac.BinaryOp); ok {
			bin = b
		}
	}
	require.NotNil(t, bin)
	assert.Equal(t, "a", bin.Left.String())
	assert.Equal(t, "b", bin.Right.String())
}

func TestLoopPhiAtHead(t *testing.T) {
	// i=0; head: if !c goto done; i=i+1; goto head; done: ret i
	m := &tac.Method{
		ClassName:  "Main",
		MethodName: "main",
		Instructions: []tac.Instruction{
			&tac.Copy{Dest: tac.Var{Name: "i"}, Src: tac.Const{Value: 0, TypeTag: "Int"}},
			&tac.LabelDef{Label: tac.Label{Name: "head"}},
			&tac.CondJumpNot{Cond: tac.Var{Name: "c"}, Target: tac.Label{Name: "done"}},
			&tac.BinaryOp{Dest: tac.Var{Name: "i"}, Op: tac.Add, Left: tac.Var{Name: "i"}, Right: tac.Const{Value: 1, TypeTag: "Int"}},
			&tac.Jump{Target: tac.Label{Name: "head"}},
			&tac.LabelDef{Label: tac.Label{Name: "done"}},
			&tac.Return{Value: tac.Var{Name: "i"}},
		},
	}
	out := Convert(m)

	phis := phisOf(out)
	require.Len(t, phis, 1, "the loop head needs a φ for i")
	phi := phis[0]
	assert.Equal(t, "i", phi.Base)
	require.Len(t, phi.Sources, 2)

	// One source comes from before the loop, one around the back
	// edge; both are filled in.
	for _, s := range phi.Sources {
		assert.True(t, strings.HasPrefix(s.Value.String(), "i_"),
			"source %s should be versioned", s.Value)
	}
}

func TestPhiArityMatchesPredecessors(t *testing.T) {
	out := Convert(diamond())
	g := cfg.Build(out)

	for _, blk := range g.Blocks {
		for _, ins := range blk.Instrs {
			if phi, ok := ins.(*tac.Phi); ok {
				assert.Len(t, phi.Sources, len(blk.Preds),
					"φ in block %d", blk.ID)
			}
		}
	}
}

func TestFlattenedOutputHasLabelPerBlock(t *testing.T) {
	out := Convert(diamond())
	g := cfg.Build(out)

	for _, blk := range g.Blocks {
		require.NotEmpty(t, blk.Instrs)
		_, ok := blk.Instrs[0].(*tac.LabelDef)
		assert.True(t, ok, "block %d should start with its label", blk.ID)
	}
}

func TestStraightLineNeedsNoPhi(t *testing.T) {
	m := &tac.Method{
		ClassName:  "Main",
		MethodName: "main",
		Instructions: []tac.Instruction{
			&tac.Copy{Dest: tac.Var{Name: "x"}, Src: tac.Const{Value: 1, TypeTag: "Int"}},
			&tac.Return{Value: tac.Var{Name: "x"}},
		},
	}
	out := Convert(m)
	assert.Empty(t, phisOf(out), "straight-line code needs no φ")
}
