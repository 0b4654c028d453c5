// internal/semant/typecheck.go
//
// Phase E: a recursive traversal computing a static type for every
// expression against two environments: C, the current class, and O,
// the lexical scope stack.
package semant

import (
	"fmt"

	"coolc/internal/errors"
	"coolc/internal/parser"
)

// scopeEnv is the object environment O. A single map plus an undo
// journal: entering a scope records a mark, every bind records the
// shadowed entry, leaving a scope replays the journal back to the
// mark. Avoids copying whole maps per let/case.
type scopeEnv struct {
	bindings map[string]string
	journal  []journalEntry
	marks    []int
}

type journalEntry struct {
	name    string
	prev    string
	existed bool
}

func newScopeEnv() *scopeEnv {
	return &scopeEnv{bindings: make(map[string]string)}
}

func (e *scopeEnv) push() {
	e.marks = append(e.marks, len(e.journal))
}

func (e *scopeEnv) pop() {
	mark := e.marks[len(e.marks)-1]
	e.marks = e.marks[:len(e.marks)-1]
	for i := len(e.journal) - 1; i >= mark; i-- {
		entry := e.journal[i]
		if entry.existed {
			e.bindings[entry.name] = entry.prev
		} else {
			delete(e.bindings, entry.name)
		}
	}
	e.journal = e.journal[:mark]
}

func (e *scopeEnv) bind(name, typ string) {
	prev, existed := e.bindings[name]
	e.journal = append(e.journal, journalEntry{name: name, prev: prev, existed: existed})
	e.bindings[name] = typ
}

func (e *scopeEnv) lookup(name string) (string, bool) {
	t, ok := e.bindings[name]
	return t, ok
}

type typeChecker struct {
	a     *Analyzer
	table *ClassTable
	cls   string // current class C, for SELF_TYPE resolution
	env   *scopeEnv
}

func newTypeChecker(a *Analyzer, cls *parser.Class) *typeChecker {
	return &typeChecker{
		a:     a,
		table: a.table,
		cls:   cls.Name,
		env:   newScopeEnv(),
	}
}

// checkClass type checks every feature of cls. The outermost scope
// binds self and every attribute of cls and its ancestors.
func (tc *typeChecker) checkClass(cls *parser.Class) error {
	tc.env.push()
	defer tc.env.pop()

	tc.env.bind("self", SelfType)
	for _, attr := range tc.table.Attributes(cls.Name) {
		tc.env.bind(attr.Name, attr.DeclType)
	}

	for _, f := range cls.Features {
		switch f := f.(type) {
		case *parser.Attribute:
			if err := tc.checkAttribute(f); err != nil {
				return err
			}
		case *parser.Method:
			if err := tc.checkMethod(f); err != nil {
				return err
			}
		}
	}
	return nil
}

func (tc *typeChecker) checkAttribute(attr *parser.Attribute) error {
	if attr.DeclType == SelfType {
		return errors.NewSemanticError(errors.ReservedIdentifier,
			fmt.Sprintf("attribute '%s' cannot have type SELF_TYPE", attr.Name), attr.Line)
	}
	if attr.DeclType != UnboxedPrimitiveType && !tc.table.IsDefined(attr.DeclType) {
		return errors.NewSemanticError(errors.UndefinedClass,
			fmt.Sprintf("attribute '%s' has undefined type %s", attr.Name, attr.DeclType), attr.Line)
	}
	if attr.Init == nil {
		return nil
	}
	initType, err := tc.check(attr.Init)
	if err != nil {
		return err
	}
	if !tc.table.Conforms(initType, attr.DeclType, tc.cls) {
		return errors.NewSemanticError(errors.TypeMismatch,
			fmt.Sprintf("attribute '%s' initializer has type %s, expected %s",
				attr.Name, initType, attr.DeclType), attr.Line)
	}
	return nil
}

func (tc *typeChecker) checkMethod(m *parser.Method) error {
	if m.ReturnType != SelfType && !tc.table.IsDefined(m.ReturnType) {
		return errors.NewSemanticError(errors.UndefinedClass,
			fmt.Sprintf("method '%s' has undefined return type %s", m.Name, m.ReturnType), m.Line)
	}

	tc.env.push()
	defer tc.env.pop()

	for _, p := range m.Params {
		if p.Name == "self" {
			return errors.NewSemanticError(errors.ReservedIdentifier,
				"'self' cannot be a formal parameter name", p.Line)
		}
		if p.Type == SelfType {
			return errors.NewSemanticError(errors.ReservedIdentifier,
				fmt.Sprintf("formal parameter '%s' cannot have type SELF_TYPE", p.Name), p.Line)
		}
		if !tc.table.IsDefined(p.Type) {
			return errors.NewSemanticError(errors.UndefinedClass,
				fmt.Sprintf("formal parameter '%s' has undefined type %s", p.Name, p.Type), p.Line)
		}
		tc.env.bind(p.Name, p.Type)
	}

	bodyType, err := tc.check(m.Body)
	if err != nil {
		return err
	}
	if !tc.table.Conforms(bodyType, m.ReturnType, tc.cls) {
		return errors.NewSemanticError(errors.TypeMismatch,
			fmt.Sprintf("method '%s' body has type %s, declared return type is %s",
				m.Name, bodyType, m.ReturnType), m.Line)
	}
	return nil
}

// check computes the static type of e, recording it for the back-end.
func (tc *typeChecker) check(e parser.Expr) (string, error) {
	t, err := tc.checkExpr(e)
	if err != nil {
		return "", err
	}
	tc.a.exprTypes[e] = t
	return t, nil
}

func (tc *typeChecker) checkExpr(e parser.Expr) (string, error) {
	switch e := e.(type) {
	case *parser.IntegerLit:
		return IntClass, nil

	case *parser.StringLit:
		return StringClass, nil

	case *parser.BoolLit:
		return BoolClass, nil

	case *parser.Self:
		return SelfType, nil

	case *parser.Object:
		t, ok := tc.env.lookup(e.Name)
		if !ok {
			return "", errors.NewSemanticError(errors.UndefinedVariable,
				fmt.Sprintf("undefined variable '%s'", e.Name), e.Line)
		}
		return t, nil

	case *parser.Assign:
		return tc.checkAssign(e)

	case *parser.Binary:
		return tc.checkBinary(e)

	case *parser.Unary:
		return tc.checkUnary(e)

	case *parser.Block:
		var last string
		for _, sub := range e.Exprs {
			t, err := tc.check(sub)
			if err != nil {
				return "", err
			}
			last = t
		}
		return last, nil

	case *parser.If:
		return tc.checkIf(e)

	case *parser.While:
		predType, err := tc.check(e.Pred)
		if err != nil {
			return "", err
		}
		if predType != BoolClass {
			return "", errors.NewSemanticError(errors.TypeMismatch,
				fmt.Sprintf("while predicate has type %s, expected Bool", predType), e.Line)
		}
		if _, err := tc.check(e.Body); err != nil {
			return "", err
		}
		return ObjectClass, nil

	case *parser.Let:
		return tc.checkLet(e)

	case *parser.Case:
		return tc.checkCase(e)

	case *parser.New:
		if e.Type != SelfType && !tc.table.IsDefined(e.Type) {
			return "", errors.NewSemanticError(errors.UndefinedClass,
				fmt.Sprintf("'new' of undefined class %s", e.Type), e.Line)
		}
		return e.Type, nil

	case *parser.IsVoid:
		if _, err := tc.check(e.Expr); err != nil {
			return "", err
		}
		return BoolClass, nil

	case *parser.DynamicDispatch:
		recvType, err := tc.check(e.Receiver)
		if err != nil {
			return "", err
		}
		lookupClass := resolve(recvType, tc.cls)
		return tc.checkDispatch(lookupClass, recvType, e.Method, e.Args, e.Line)

	case *parser.StaticDispatch:
		return tc.checkStaticDispatch(e)

	default:
		return "", errors.NewInternalError(fmt.Sprintf("unhandled expression node %T", e))
	}
}

func (tc *typeChecker) checkAssign(e *parser.Assign) (string, error) {
	if e.Name == "self" {
		return "", errors.NewSemanticError(errors.ReservedIdentifier,
			"cannot assign to 'self'", e.Line)
	}
	declared, ok := tc.env.lookup(e.Name)
	if !ok {
		return "", errors.NewSemanticError(errors.UndefinedVariable,
			fmt.Sprintf("assignment to undefined variable '%s'", e.Name), e.Line)
	}
	valType, err := tc.check(e.Value)
	if err != nil {
		return "", err
	}
	if !tc.table.Conforms(valType, declared, tc.cls) {
		return "", errors.NewSemanticError(errors.TypeMismatch,
			fmt.Sprintf("cannot assign %s to '%s' of type %s", valType, e.Name, declared), e.Line)
	}
	return valType, nil
}

func (tc *typeChecker) checkBinary(e *parser.Binary) (string, error) {
	leftType, err := tc.check(e.Left)
	if err != nil {
		return "", err
	}
	rightType, err := tc.check(e.Right)
	if err != nil {
		return "", err
	}

	switch e.Op {
	case "+", "-", "*", "/":
		if leftType != IntClass || rightType != IntClass {
			return "", errors.NewSemanticError(errors.TypeMismatch,
				fmt.Sprintf("arithmetic '%s' requires Int operands, found %s and %s",
					e.Op, leftType, rightType), e.Line)
		}
		return IntClass, nil

	case "<", "<=":
		if leftType != IntClass || rightType != IntClass {
			return "", errors.NewSemanticError(errors.TypeMismatch,
				fmt.Sprintf("comparison '%s' requires Int operands, found %s and %s",
					e.Op, leftType, rightType), e.Line)
		}
		return BoolClass, nil

	case "=":
		// If either side is a primitive, both sides must have the
		// same primitive type. Any other pair compares freely.
		if isPrimitiveClass(leftType) || isPrimitiveClass(rightType) {
			if leftType != rightType {
				return "", errors.NewSemanticError(errors.TypeMismatch,
					fmt.Sprintf("illegal comparison between %s and %s", leftType, rightType), e.Line)
			}
		}
		return BoolClass, nil

	default:
		return "", errors.NewInternalError(fmt.Sprintf("unknown binary operator '%s'", e.Op))
	}
}

func (tc *typeChecker) checkUnary(e *parser.Unary) (string, error) {
	opType, err := tc.check(e.Operand)
	if err != nil {
		return "", err
	}
	switch e.Op {
	case "~":
		if opType != IntClass {
			return "", errors.NewSemanticError(errors.TypeMismatch,
				fmt.Sprintf("'~' requires an Int operand, found %s", opType), e.Line)
		}
		return IntClass, nil
	case "not":
		if opType != BoolClass {
			return "", errors.NewSemanticError(errors.TypeMismatch,
				fmt.Sprintf("'not' requires a Bool operand, found %s", opType), e.Line)
		}
		return BoolClass, nil
	default:
		return "", errors.NewInternalError(fmt.Sprintf("unknown unary operator '%s'", e.Op))
	}
}

func (tc *typeChecker) checkIf(e *parser.If) (string, error) {
	predType, err := tc.check(e.Pred)
	if err != nil {
		return "", err
	}
	if predType != BoolClass {
		return "", errors.NewSemanticError(errors.TypeMismatch,
			fmt.Sprintf("if predicate has type %s, expected Bool", predType), e.Line)
	}
	thenType, err := tc.check(e.Then)
	if err != nil {
		return "", err
	}
	elseType, err := tc.check(e.Else)
	if err != nil {
		return "", err
	}
	return tc.table.LUB(thenType, elseType, tc.cls), nil
}

func (tc *typeChecker) checkLet(e *parser.Let) (string, error) {
	if e.Name == "self" {
		return "", errors.NewSemanticError(errors.ReservedIdentifier,
			"'self' cannot be bound in a let expression", e.Line)
	}
	if e.DeclType != SelfType && !tc.table.IsDefined(e.DeclType) {
		return "", errors.NewSemanticError(errors.UndefinedClass,
			fmt.Sprintf("let variable '%s' has undefined type %s", e.Name, e.DeclType), e.Line)
	}
	if e.Init != nil {
		initType, err := tc.check(e.Init)
		if err != nil {
			return "", err
		}
		if !tc.table.Conforms(initType, e.DeclType, tc.cls) {
			return "", errors.NewSemanticError(errors.TypeMismatch,
				fmt.Sprintf("let initializer for '%s' has type %s, expected %s",
					e.Name, initType, e.DeclType), e.Line)
		}
	}

	tc.env.push()
	defer tc.env.pop()
	tc.env.bind(e.Name, e.DeclType)
	return tc.check(e.Body)
}

func (tc *typeChecker) checkCase(e *parser.Case) (string, error) {
	if _, err := tc.check(e.Expr); err != nil {
		return "", err
	}

	seen := make(map[string]bool)
	result := ""
	for _, action := range e.Actions {
		if action.Name == "self" {
			return "", errors.NewSemanticError(errors.ReservedIdentifier,
				"'self' cannot be bound in a case branch", action.Line)
		}
		if action.Type == SelfType || !tc.table.IsDefined(action.Type) {
			return "", errors.NewSemanticError(errors.UndefinedClass,
				fmt.Sprintf("case branch has undefined type %s", action.Type), action.Line)
		}
		if seen[action.Type] {
			return "", errors.NewSemanticError(errors.TypeMismatch,
				fmt.Sprintf("duplicate case branch type %s", action.Type), action.Line)
		}
		seen[action.Type] = true

		tc.env.push()
		tc.env.bind(action.Name, action.Type)
		branchType, err := tc.check(action.Body)
		tc.env.pop()
		if err != nil {
			return "", err
		}

		if result == "" {
			result = branchType
		} else {
			result = tc.table.LUB(result, branchType, tc.cls)
		}
	}
	return result, nil
}

// checkDispatch resolves and checks a call against lookupClass's
// method table. recvType is the receiver's static type, used to
// resolve SELF_TYPE results.
func (tc *typeChecker) checkDispatch(lookupClass, recvType, method string, args []parser.Expr, line int) (string, error) {
	if !tc.table.IsDefined(lookupClass) {
		return "", errors.NewInternalError(
			fmt.Sprintf("dispatch on unknown class %s", lookupClass))
	}
	sig, ok := tc.table.LookupMethod(lookupClass, method)
	if !ok {
		return "", errors.NewSemanticError(errors.BadDispatch,
			fmt.Sprintf("class %s has no method '%s'", lookupClass, method), line)
	}
	if len(args) != len(sig.ParamTypes) {
		return "", errors.NewSemanticError(errors.BadDispatch,
			fmt.Sprintf("method '%s' expects %d arguments, found %d",
				method, len(sig.ParamTypes), len(args)), line)
	}
	for i, arg := range args {
		argType, err := tc.check(arg)
		if err != nil {
			return "", err
		}
		if !tc.table.Conforms(argType, sig.ParamTypes[i], tc.cls) {
			return "", errors.NewSemanticError(errors.TypeMismatch,
				fmt.Sprintf("argument %d of '%s' has type %s, expected %s",
					i+1, method, argType, sig.ParamTypes[i]), line)
		}
	}
	if sig.ReturnType == SelfType {
		return recvType, nil
	}
	return sig.ReturnType, nil
}

func (tc *typeChecker) checkStaticDispatch(e *parser.StaticDispatch) (string, error) {
	if e.StaticType == SelfType {
		return "", errors.NewSemanticError(errors.BadStaticDispatch,
			"SELF_TYPE cannot be used as a static dispatch type", e.Line)
	}
	if !tc.table.IsDefined(e.StaticType) {
		return "", errors.NewSemanticError(errors.UndefinedClass,
			fmt.Sprintf("static dispatch to undefined class %s", e.StaticType), e.Line)
	}
	recvType, err := tc.check(e.Receiver)
	if err != nil {
		return "", err
	}
	if !tc.table.Conforms(recvType, e.StaticType, tc.cls) {
		return "", errors.NewSemanticError(errors.BadStaticDispatch,
			fmt.Sprintf("receiver type %s does not conform to static dispatch type %s",
				recvType, e.StaticType), e.Line)
	}
	return tc.checkDispatch(e.StaticType, recvType, e.Method, e.Args, e.Line)
}
