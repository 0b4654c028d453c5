package tac

import (
	"fmt"
	"strings"
)

// Method is the TAC for a single COOL method.
type Method struct {
	ClassName    string
	MethodName   string
	Params       []string
	Instructions []Instruction
}

// Name returns the qualified Class.method name.
func (m *Method) Name() string {
	return m.ClassName + "." + m.MethodName
}

func (m *Method) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s(%s):\n", m.Name(), strings.Join(m.Params, ", "))
	for _, ins := range m.Instructions {
		if _, ok := ins.(*LabelDef); ok {
			fmt.Fprintf(&sb, "%s\n", ins)
		} else {
			fmt.Fprintf(&sb, "    %s\n", ins)
		}
	}
	return sb.String()
}

// Program is an ordered list of translated methods plus interned
// constants with stable labels for the back-end.
type Program struct {
	Methods []*Method

	stringLabels map[string]Label
	stringOrder  []string
	intLabels    map[int]Label
	intOrder     []int
}

func NewProgram() *Program {
	return &Program{
		stringLabels: make(map[string]Label),
		intLabels:    make(map[int]Label),
	}
}

// InternString returns a stable label for a string constant,
// creating one on first sight.
func (p *Program) InternString(s string) Label {
	if l, ok := p.stringLabels[s]; ok {
		return l
	}
	l := Label{Name: fmt.Sprintf("str_%d", len(p.stringOrder))}
	p.stringLabels[s] = l
	p.stringOrder = append(p.stringOrder, s)
	return l
}

// InternInt returns a stable label for an integer constant.
func (p *Program) InternInt(v int) Label {
	if l, ok := p.intLabels[v]; ok {
		return l
	}
	l := Label{Name: fmt.Sprintf("int_%d", len(p.intOrder))}
	p.intLabels[v] = l
	p.intOrder = append(p.intOrder, v)
	return l
}

// StringConstants returns the interned strings in interning order.
func (p *Program) StringConstants() []string {
	return p.stringOrder
}

// IntConstants returns the interned integers in interning order.
func (p *Program) IntConstants() []int {
	return p.intOrder
}

// --- Generators ---

// TempGen hands out fresh temporaries. Reset once per method.
type TempGen struct {
	next int
}

func (g *TempGen) Next() Temp {
	t := Temp{Index: g.next}
	g.next++
	return t
}

func (g *TempGen) Reset() {
	g.next = 0
}

// LabelGen hands out fresh labels, shared across one translator so
// label names stay unique program-wide. The hint becomes part of the
// name.
type LabelGen struct {
	next int
}

func (g *LabelGen) Next(hint string) Label {
	if hint == "" {
		hint = "L"
	}
	l := Label{Name: fmt.Sprintf("%s_%d", hint, g.next)}
	g.next++
	return l
}
