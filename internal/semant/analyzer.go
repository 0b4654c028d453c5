// internal/semant/analyzer.go
package semant

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"coolc/internal/errors"
	"coolc/internal/parser"
)

// Analyzer runs semantic analysis over a parsed program: builtin
// installation, hierarchy validation, method/attribute table
// construction, Main validation, and type checking.
//
// Fatal errors abort the run; recoverable ones (unknown parent
// classes) are collected in Errors and analysis continues.
type Analyzer struct {
	Errors []error

	table *ClassTable

	// Static types computed for every expression during phase E,
	// retained for the back-end.
	exprTypes map[parser.Expr]string
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{
		exprTypes: make(map[parser.Expr]string),
	}
}

// Analyze is the convenience entry point.
func Analyze(prog *parser.Program) (*parser.Program, *ClassTable, error) {
	a := NewAnalyzer()
	analyzed, err := a.Analyze(prog)
	return analyzed, a.table, err
}

// Analyze runs all phases and returns the program with builtins
// installed. The analyzer retains the class table and per-expression
// static types.
func (a *Analyzer) Analyze(prog *parser.Program) (*parser.Program, error) {
	if prog == nil {
		return nil, errors.NewInternalError("program AST is nil")
	}

	prog = installBuiltins(prog)

	if err := a.buildClassGraph(prog); err != nil {
		return nil, pkgerrors.Wrap(err, "class graph construction failed")
	}
	if err := a.validateInheritance(); err != nil {
		return nil, pkgerrors.Wrap(err, "inheritance validation failed")
	}
	if err := a.table.buildTables(); err != nil {
		return nil, pkgerrors.Wrap(err, "feature table construction failed")
	}
	if err := a.validateMain(); err != nil {
		return nil, err
	}
	if err := a.typeCheck(prog); err != nil {
		return nil, pkgerrors.Wrap(err, "type checking failed")
	}
	return prog, nil
}

// Table returns the class table built by the last Analyze call.
func (a *Analyzer) Table() *ClassTable {
	return a.table
}

// TypeOf returns the static type computed for an expression during
// type checking.
func (a *Analyzer) TypeOf(e parser.Expr) (string, bool) {
	t, ok := a.exprTypes[e]
	return t, ok
}

// Phase A: build the name->class mapping, failing on duplicates.
func (a *Analyzer) buildClassGraph(prog *parser.Program) error {
	a.table = newClassTable()
	for _, cls := range prog.Classes {
		if cls.Name == SelfType {
			return errors.NewSemanticError(errors.ReservedIdentifier,
				"SELF_TYPE cannot be used as a class name", cls.Line)
		}
		if _, exists := a.table.Classes[cls.Name]; exists {
			return errors.NewSemanticError(errors.DuplicateClass,
				fmt.Sprintf("class %s is defined more than once", cls.Name), cls.Line)
		}
		a.table.Classes[cls.Name] = cls
	}
	return nil
}

// Phase B: resolve parents, reject illegal ones, coerce unknown
// parents to Object (recoverable), and detect cycles.
func (a *Analyzer) validateInheritance() error {
	for name, cls := range a.table.Classes {
		if name == ObjectClass {
			continue
		}
		parent := cls.Parent
		if parent == "" {
			parent = ObjectClass
			cls.Parent = parent
		}

		switch parent {
		case IntClass, BoolClass, StringClass, SelfType:
			return errors.NewSemanticError(errors.BadParent,
				fmt.Sprintf("class %s cannot inherit from %s", name, parent), cls.Line)
		}

		if !a.table.IsDefined(parent) {
			a.Errors = append(a.Errors, errors.NewSemanticError(errors.BadParent,
				fmt.Sprintf("class %s inherits from undefined class %s; assuming Object", name, parent),
				cls.Line))
			parent = ObjectClass
			cls.Parent = parent
		}
		a.table.Parent[name] = parent
	}
	return a.detectCycles()
}

type dfsColor int

const (
	white dfsColor = iota
	grey
	black
)

// detectCycles colours the inheritance graph by DFS; revisiting a
// grey node means the parent chain loops.
func (a *Analyzer) detectCycles() error {
	colors := make(map[string]dfsColor, len(a.table.Classes))

	var visit func(name string) error
	visit = func(name string) error {
		colors[name] = grey
		parent, ok := a.table.Parent[name]
		if ok {
			switch colors[parent] {
			case grey:
				return errors.NewSemanticError(errors.InheritanceCycle,
					fmt.Sprintf("class %s participates in an inheritance cycle", parent),
					a.table.Classes[parent].Line)
			case white:
				if err := visit(parent); err != nil {
					return err
				}
			}
		}
		colors[name] = black
		return nil
	}

	for name := range a.table.Classes {
		if colors[name] == white {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Phase D: Main must exist and declare a zero-arity main().
func (a *Analyzer) validateMain() error {
	if !a.table.IsDefined(MainClass) {
		return errors.NewSemanticError(errors.MissingMain,
			"program has no Main class", 0)
	}
	sig, ok := a.table.LookupMethod(MainClass, MainMethod)
	if !ok {
		return errors.NewSemanticError(errors.MissingMainMethod,
			"class Main has no main() method", a.table.Classes[MainClass].Line)
	}
	if len(sig.ParamTypes) != 0 {
		return errors.NewSemanticError(errors.WrongMainArity,
			fmt.Sprintf("Main.main must take no arguments, found %d", len(sig.ParamTypes)),
			a.table.Classes[MainClass].Line)
	}
	return nil
}

// Phase E: type check every user-defined class.
func (a *Analyzer) typeCheck(prog *parser.Program) error {
	for _, cls := range prog.Classes {
		if isBuiltinClass(cls.Name) {
			continue
		}
		tc := newTypeChecker(a, cls)
		if err := tc.checkClass(cls); err != nil {
			return err
		}
	}
	return nil
}
