// internal/dataflow/constprop.go
//
// Forward constant propagation with optional constant folding. The
// lattice is a per-variable constant lattice (⊥ < c < ⊤) lifted
// pointwise over an environment; missing entries are ⊥.
package dataflow

import (
	"coolc/internal/cfg"
	"coolc/internal/tac"
)

type constKind int

const (
	constBottom constKind = iota
	constKnown
	constTop
)

// ConstValue is one slot of the constant lattice.
type ConstValue struct {
	kind    constKind
	Value   interface{}
	TypeTag string
}

func BottomValue() ConstValue          { return ConstValue{kind: constBottom} }
func TopValue() ConstValue             { return ConstValue{kind: constTop} }
func KnownValue(v interface{}, tag string) ConstValue {
	return ConstValue{kind: constKnown, Value: v, TypeTag: tag}
}

func (v ConstValue) IsBottom() bool { return v.kind == constBottom }
func (v ConstValue) IsTop() bool    { return v.kind == constTop }
func (v ConstValue) IsConst() bool  { return v.kind == constKnown }

// meetValues: ⊥⊓x=x, ⊤⊓x=⊤, c⊓c=c, c1⊓c2=⊤.
func meetValues(a, b ConstValue) ConstValue {
	switch {
	case a.IsBottom():
		return b
	case b.IsBottom():
		return a
	case a.IsTop() || b.IsTop():
		return TopValue()
	case a.Value == b.Value && a.TypeTag == b.TypeTag:
		return a
	default:
		return TopValue()
	}
}

// ConstEnv maps variable names to constant-lattice slots. Absent
// names are ⊥.
type ConstEnv map[string]ConstValue

func (e ConstEnv) clone() ConstEnv {
	out := make(ConstEnv, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Lookup returns the lattice value of an operand: constants map to
// themselves, registers to their environment slot.
func (e ConstEnv) Lookup(op tac.Operand) ConstValue {
	switch op := op.(type) {
	case tac.Const:
		return KnownValue(op.Value, op.TypeTag)
	case tac.Temp, tac.Var:
		if v, ok := e[tac.RegName(op)]; ok {
			return v
		}
		return BottomValue()
	}
	return TopValue()
}

type constProblem struct{}

func (constProblem) Top() ConstEnv      { return nil } // whole-env ⊤ is never materialised
func (constProblem) Bottom() ConstEnv   { return ConstEnv{} }
func (constProblem) Boundary() ConstEnv { return ConstEnv{} }

func (constProblem) Direction() Direction { return Forward }

func (constProblem) Meet(a, b ConstEnv) ConstEnv {
	out := make(ConstEnv, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if prev, ok := out[k]; ok {
			out[k] = meetValues(prev, v)
		} else {
			out[k] = v
		}
	}
	return out
}

func (constProblem) Equal(a, b ConstEnv) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || v != w {
			return false
		}
	}
	return true
}

func (constProblem) Transfer(ins tac.Instruction, in ConstEnv) ConstEnv {
	out := in.clone()
	switch ins := ins.(type) {
	case *tac.Copy:
		out[tac.RegName(ins.Dest)] = out.Lookup(ins.Src)

	case *tac.BinaryOp:
		l, r := out.Lookup(ins.Left), out.Lookup(ins.Right)
		out[tac.RegName(ins.Dest)] = evalBinOp(ins.Op, l, r)

	case *tac.UnaryOp:
		v := out.Lookup(ins.Operand)
		out[tac.RegName(ins.Dest)] = evalUnOp(ins.Op, v)

	default:
		// Calls, dispatches, new, attribute loads, isvoid, phi:
		// any other definition goes to top.
		for _, d := range ins.Defs() {
			out[tac.RegName(d)] = TopValue()
		}
	}
	return out
}

func evalBinOp(op tac.BinOp, l, r ConstValue) ConstValue {
	if l.IsTop() || r.IsTop() {
		return TopValue()
	}
	if !l.IsConst() || !r.IsConst() {
		return BottomValue()
	}

	if op == tac.EQ {
		return KnownValue(l.Value == r.Value, "Bool")
	}

	li, lok := l.Value.(int)
	ri, rok := r.Value.(int)
	if !lok || !rok {
		return TopValue()
	}
	switch op {
	case tac.Add:
		return KnownValue(li+ri, "Int")
	case tac.Sub:
		return KnownValue(li-ri, "Int")
	case tac.Mul:
		return KnownValue(li*ri, "Int")
	case tac.Div:
		if ri == 0 {
			return TopValue()
		}
		return KnownValue(li/ri, "Int")
	case tac.LT:
		return KnownValue(li < ri, "Bool")
	case tac.LE:
		return KnownValue(li <= ri, "Bool")
	}
	return TopValue()
}

func evalUnOp(op tac.UnOp, v ConstValue) ConstValue {
	if v.IsTop() {
		return TopValue()
	}
	if !v.IsConst() {
		return BottomValue()
	}
	switch op {
	case tac.Neg:
		if i, ok := v.Value.(int); ok {
			return KnownValue(-i, "Int")
		}
	case tac.Not:
		if b, ok := v.Value.(bool); ok {
			return KnownValue(!b, "Bool")
		}
	}
	return TopValue()
}

// RunConstantPropagation computes the constant environments for g
// and, when fold is set, rewrites every binop/unop whose operands
// are known constants into a copy of the folded value. The returned
// count is the number of instructions replaced.
func RunConstantPropagation(g *cfg.Graph, fold bool) (*Result[ConstEnv], int) {
	res := Run[ConstEnv](g, constProblem{})
	if !fold {
		return res, 0
	}
	changes := 0
	for _, blk := range g.Blocks {
		for i, ins := range blk.Instrs {
			env, ok := res.InstrBefore[Point{Block: blk.ID, Index: i}]
			if !ok {
				continue // unreachable block
			}
			switch ins := ins.(type) {
			case *tac.BinaryOp:
				if v := evalBinOp(ins.Op, env.Lookup(ins.Left), env.Lookup(ins.Right)); v.IsConst() {
					blk.Instrs[i] = &tac.Copy{
						Dest: ins.Dest,
						Src:  tac.Const{Value: v.Value, TypeTag: v.TypeTag},
					}
					changes++
				}
			case *tac.UnaryOp:
				if v := evalUnOp(ins.Op, env.Lookup(ins.Operand)); v.IsConst() {
					blk.Instrs[i] = &tac.Copy{
						Dest: ins.Dest,
						Src:  tac.Const{Value: v.Value, TypeTag: v.TypeTag},
					}
					changes++
				}
			}
		}
	}
	return res, changes
}
