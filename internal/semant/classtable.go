package semant

import (
	"fmt"

	"coolc/internal/errors"
	"coolc/internal/parser"
)

// MethodSignature describes a method as seen through a class's method
// table: parameter types in order, the return type, and the class the
// visible definition came from.
type MethodSignature struct {
	Name       string
	ParamTypes []string
	ParamNames []string
	ReturnType string
	DefinedIn  string
}

// AttributeInfo describes an attribute visible on a class.
type AttributeInfo struct {
	Name      string
	DeclType  string
	Init      parser.Expr
	DefinedIn string
}

// ClassTable is the analyzed class hierarchy: the name->class map,
// parent edges, and per-class method and attribute tables computed
// root-first so child entries override.
type ClassTable struct {
	Classes map[string]*parser.Class
	Parent  map[string]string

	// Per-class tables. Order slices preserve declaration order,
	// inherited entries first.
	methods     map[string]map[string]*MethodSignature
	methodOrder map[string][]string
	attrs       map[string]map[string]*AttributeInfo
	attrOrder   map[string][]string
}

func newClassTable() *ClassTable {
	return &ClassTable{
		Classes:     make(map[string]*parser.Class),
		Parent:      make(map[string]string),
		methods:     make(map[string]map[string]*MethodSignature),
		methodOrder: make(map[string][]string),
		attrs:       make(map[string]map[string]*AttributeInfo),
		attrOrder:   make(map[string][]string),
	}
}

// IsDefined reports whether name is an installed class.
func (t *ClassTable) IsDefined(name string) bool {
	_, ok := t.Classes[name]
	return ok
}

// AncestorChain returns the inheritance chain of cls root-first,
// ending with cls itself.
func (t *ClassTable) AncestorChain(cls string) []string {
	var chain []string
	for c := cls; c != ""; c = t.Parent[c] {
		chain = append(chain, c)
	}
	// reverse in place so Object comes first
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// LookupMethod resolves a method through cls's table.
func (t *ClassTable) LookupMethod(cls, name string) (*MethodSignature, bool) {
	m, ok := t.methods[cls][name]
	return m, ok
}

// Methods returns cls's method table in order, inherited entries first.
func (t *ClassTable) Methods(cls string) []*MethodSignature {
	var out []*MethodSignature
	for _, name := range t.methodOrder[cls] {
		out = append(out, t.methods[cls][name])
	}
	return out
}

// LookupAttribute resolves an attribute through cls's table.
func (t *ClassTable) LookupAttribute(cls, name string) (*AttributeInfo, bool) {
	a, ok := t.attrs[cls][name]
	return a, ok
}

// Attributes returns cls's attributes in order, inherited entries first.
func (t *ClassTable) Attributes(cls string) []*AttributeInfo {
	var out []*AttributeInfo
	for _, name := range t.attrOrder[cls] {
		out = append(out, t.attrs[cls][name])
	}
	return out
}

// resolve maps SELF_TYPE to the current class and leaves every other
// type alone.
func resolve(typ, current string) string {
	if typ == SelfType {
		return current
	}
	return typ
}

// Conforms reports whether t1 <= t2 in the class hierarchy, with
// SELF_TYPE interpreted relative to current. SELF_TYPE conforms to
// SELF_TYPE; SELF_TYPE conforms to T iff current <= T; no proper
// class conforms to SELF_TYPE.
func (t *ClassTable) Conforms(t1, t2, current string) bool {
	if t1 == t2 {
		return true
	}
	if t2 == SelfType {
		return false
	}
	c := resolve(t1, current)
	for ; c != ""; c = t.Parent[c] {
		if c == t2 {
			return true
		}
	}
	return false
}

// LUB computes the least upper bound of two types: the nearest common
// ancestor in the inheritance tree. lub(SELF_TYPE, SELF_TYPE) is
// SELF_TYPE; otherwise SELF_TYPE resolves to current first.
func (t *ClassTable) LUB(t1, t2, current string) string {
	if t1 == SelfType && t2 == SelfType {
		return SelfType
	}
	a := resolve(t1, current)
	b := resolve(t2, current)

	onChain := make(map[string]bool)
	for c := a; c != ""; c = t.Parent[c] {
		onChain[c] = true
	}
	for c := b; c != ""; c = t.Parent[c] {
		if onChain[c] {
			return c
		}
	}
	return ObjectClass
}

// buildTables computes method and attribute tables for every class by
// folding each class's own features over its ancestors' tables.
// Attribute redeclaration and signature-changing overrides are fatal.
func (t *ClassTable) buildTables() error {
	for name := range t.Classes {
		if err := t.buildClassTables(name); err != nil {
			return err
		}
	}
	return nil
}

func (t *ClassTable) buildClassTables(cls string) error {
	if _, done := t.methods[cls]; done {
		return nil
	}

	methods := make(map[string]*MethodSignature)
	var methodOrder []string
	attrs := make(map[string]*AttributeInfo)
	var attrOrder []string

	for _, ancestor := range t.AncestorChain(cls) {
		node := t.Classes[ancestor]
		for _, f := range node.Features {
			switch f := f.(type) {
			case *parser.Attribute:
				if prev, ok := attrs[f.Name]; ok {
					return errors.NewSemanticError(errors.BadRedeclaration,
						fmt.Sprintf("attribute '%s' of class %s is already declared in class %s",
							f.Name, ancestor, prev.DefinedIn), f.Line)
				}
				attrs[f.Name] = &AttributeInfo{
					Name: f.Name, DeclType: f.DeclType, Init: f.Init, DefinedIn: ancestor,
				}
				attrOrder = append(attrOrder, f.Name)

			case *parser.Method:
				sig := &MethodSignature{
					Name:       f.Name,
					ReturnType: f.ReturnType,
					DefinedIn:  ancestor,
				}
				for _, p := range f.Params {
					sig.ParamTypes = append(sig.ParamTypes, p.Type)
					sig.ParamNames = append(sig.ParamNames, p.Name)
				}

				if inherited, ok := methods[f.Name]; ok {
					if inherited.DefinedIn == ancestor {
						return errors.NewSemanticError(errors.BadRedeclaration,
							fmt.Sprintf("method '%s' is defined twice in class %s", f.Name, ancestor), f.Line)
					}
					if err := checkOverride(inherited, sig, f.Line); err != nil {
						return err
					}
				} else {
					methodOrder = append(methodOrder, f.Name)
				}
				methods[f.Name] = sig
			}
		}
	}

	t.methods[cls] = methods
	t.methodOrder[cls] = methodOrder
	t.attrs[cls] = attrs
	t.attrOrder[cls] = attrOrder
	return nil
}

// checkOverride requires an overriding method to match the ancestor
// signature exactly: same arity, same parameter types position-wise,
// same return type.
func checkOverride(parent, child *MethodSignature, line int) error {
	if len(parent.ParamTypes) != len(child.ParamTypes) {
		return errors.NewSemanticError(errors.BadOverride,
			fmt.Sprintf("method '%s' overridden with %d parameters, ancestor in %s has %d",
				child.Name, len(child.ParamTypes), parent.DefinedIn, len(parent.ParamTypes)), line)
	}
	for i := range parent.ParamTypes {
		if parent.ParamTypes[i] != child.ParamTypes[i] {
			return errors.NewSemanticError(errors.BadOverride,
				fmt.Sprintf("method '%s' parameter %d type mismatch: ancestor in %s declares %s, override declares %s",
					child.Name, i+1, parent.DefinedIn, parent.ParamTypes[i], child.ParamTypes[i]), line)
		}
	}
	if parent.ReturnType != child.ReturnType {
		return errors.NewSemanticError(errors.BadOverride,
			fmt.Sprintf("method '%s' return type mismatch: ancestor in %s declares %s, override declares %s",
				child.Name, parent.DefinedIn, parent.ReturnType, child.ReturnType), line)
	}
	return nil
}
