package semant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coolc/internal/errors"
	"coolc/internal/lexer"
	"coolc/internal/parser"
)

const mainStub = "class Main { main() : Object { 0 }; };\n"

func analyzeSource(t *testing.T, src string) (*Analyzer, error) {
	t.Helper()
	tokens, lexErrs := lexer.Lex(src)
	require.Empty(t, lexErrs, "lexical errors")
	prog, parseErrs := parser.Parse(tokens)
	require.Empty(t, parseErrs, "syntax errors")

	a := NewAnalyzer()
	_, err := a.Analyze(prog)
	return a, err
}

func requireSemanticError(t *testing.T, err error, kind errors.SemanticKind) {
	t.Helper()
	require.Error(t, err)
	// The analyzer wraps fatal errors with context; unwrap to the
	// typed error.
	var ce *errors.CoolError
	for e := err; e != nil; {
		if c, ok := e.(*errors.CoolError); ok {
			ce = c
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	require.NotNil(t, ce, "expected a CoolError, got %v", err)
	assert.Equal(t, errors.SemanticError, ce.Type)
	assert.Equal(t, kind, ce.Kind)
}

func TestEmptyProgramMissingMain(t *testing.T) {
	_, err := analyzeSource(t, "")
	requireSemanticError(t, err, errors.MissingMain)
}

func TestMainWithoutMainMethod(t *testing.T) {
	_, err := analyzeSource(t, "class Main { x : Int; };")
	requireSemanticError(t, err, errors.MissingMainMethod)
}

func TestMainMethodWrongArity(t *testing.T) {
	_, err := analyzeSource(t, "class Main { main(x : Int) : Object { 0 }; };")
	requireSemanticError(t, err, errors.WrongMainArity)
}

func TestDuplicateClass(t *testing.T) {
	_, err := analyzeSource(t, mainStub+"class A { }; class A { };")
	requireSemanticError(t, err, errors.DuplicateClass)
}

func TestInheritFromPrimitive(t *testing.T) {
	for _, parent := range []string{"Int", "Bool", "String"} {
		_, err := analyzeSource(t, mainStub+"class A inherits "+parent+" { };")
		requireSemanticError(t, err, errors.BadParent)
	}
}

func TestSelfInheritanceCycle(t *testing.T) {
	_, err := analyzeSource(t, mainStub+"class A inherits A { };")
	requireSemanticError(t, err, errors.InheritanceCycle)
}

func TestMutualInheritanceCycle(t *testing.T) {
	_, err := analyzeSource(t, mainStub+"class A inherits B { }; class B inherits A { };")
	requireSemanticError(t, err, errors.InheritanceCycle)
}

func TestUnknownParentRecoversToObject(t *testing.T) {
	a, err := analyzeSource(t, mainStub+"class A inherits Missing { };")
	require.NoError(t, err, "unknown parent is recoverable")
	require.Len(t, a.Errors, 1)
	assert.Equal(t, ObjectClass, a.Table().Parent["A"])
}

func TestBuiltinsInstalled(t *testing.T) {
	a, err := analyzeSource(t, mainStub)
	require.NoError(t, err)
	table := a.Table()

	for _, cls := range []string{ObjectClass, IOClass, IntClass, BoolClass, StringClass} {
		assert.True(t, table.IsDefined(cls), "builtin %s missing", cls)
	}

	sig, ok := table.LookupMethod(StringClass, "substr")
	require.True(t, ok)
	assert.Equal(t, []string{IntClass, IntClass}, sig.ParamTypes)
	assert.Equal(t, StringClass, sig.ReturnType)

	// Every class inherits Object's methods.
	_, ok = table.LookupMethod(IOClass, "type_name")
	assert.True(t, ok, "IO should inherit type_name")
}

func TestLUB(t *testing.T) {
	a, err := analyzeSource(t, mainStub+`
class Animal { };
class Dog inherits Animal { };
class Cat inherits Animal { };
`)
	require.NoError(t, err)
	table := a.Table()

	assert.Equal(t, "Animal", table.LUB("Dog", "Cat", "Main"))
	assert.Equal(t, ObjectClass, table.LUB(IntClass, "Dog", "Main"))
	assert.Equal(t, SelfType, table.LUB(SelfType, SelfType, "Dog"))
	// One-sided SELF_TYPE resolves to the current class first.
	assert.Equal(t, "Animal", table.LUB(SelfType, "Cat", "Dog"))
	assert.Equal(t, "Dog", table.LUB("Dog", "Dog", "Main"))
}

func TestConforms(t *testing.T) {
	a, err := analyzeSource(t, mainStub+`
class Animal { };
class Dog inherits Animal { };
`)
	require.NoError(t, err)
	table := a.Table()

	assert.True(t, table.Conforms("Dog", "Dog", "Main"))
	assert.True(t, table.Conforms("Dog", "Animal", "Main"))
	assert.True(t, table.Conforms("Dog", ObjectClass, "Main"))
	assert.False(t, table.Conforms("Animal", "Dog", "Main"))
	assert.True(t, table.Conforms(SelfType, "Animal", "Dog"))
	assert.False(t, table.Conforms("Dog", SelfType, "Dog"))
}

func TestOverrideChecks(t *testing.T) {
	base := mainStub + "class P { foo(x : Int) : Bool { true }; };\n"

	_, err := analyzeSource(t, base+"class C inherits P { foo(x : Bool) : Bool { true }; };")
	requireSemanticError(t, err, errors.BadOverride)

	_, err = analyzeSource(t, base+"class C inherits P { foo(x : Int) : Int { 0 }; };")
	requireSemanticError(t, err, errors.BadOverride)

	_, err = analyzeSource(t, base+"class C inherits P { foo(x : Int) : Bool { false }; };")
	assert.NoError(t, err)
}

func TestAttributeRedeclaration(t *testing.T) {
	_, err := analyzeSource(t, mainStub+`
class P { x : Int; };
class C inherits P { x : Int; };
`)
	requireSemanticError(t, err, errors.BadRedeclaration)
}

func TestMethodDefinedTwice(t *testing.T) {
	_, err := analyzeSource(t, mainStub+"class A { f() : Int { 0 }; f() : Int { 1 }; };")
	requireSemanticError(t, err, errors.BadRedeclaration)
}

func TestLetTyping(t *testing.T) {
	// let x : Int in x has type Int, so returning it as Int checks.
	_, err := analyzeSource(t, "class Main { main() : Int { let x : Int in x }; };")
	assert.NoError(t, err)
}

func TestPrimitiveEqualityMismatch(t *testing.T) {
	_, err := analyzeSource(t, `class Main { main() : Bool { 1 = "a" }; };`)
	requireSemanticError(t, err, errors.TypeMismatch)
}

func TestObjectEqualityAllowed(t *testing.T) {
	_, err := analyzeSource(t, `
class Main { main() : Bool { new Object = new IO }; };
`)
	assert.NoError(t, err)
}

func TestUndefinedVariable(t *testing.T) {
	_, err := analyzeSource(t, "class Main { main() : Object { ghost }; };")
	requireSemanticError(t, err, errors.UndefinedVariable)
}

func TestArithmeticTypeRules(t *testing.T) {
	_, err := analyzeSource(t, `class Main { main() : Int { 1 + "x" }; };`)
	requireSemanticError(t, err, errors.TypeMismatch)

	_, err = analyzeSource(t, "class Main { main() : Bool { 1 < 2 }; };")
	assert.NoError(t, err)

	_, err = analyzeSource(t, "class Main { main() : Bool { not 1 }; };")
	requireSemanticError(t, err, errors.TypeMismatch)
}

func TestIfResultIsLUB(t *testing.T) {
	// The if joins Dog and Cat to Animal, so returning Animal checks.
	_, err := analyzeSource(t, mainStub+`
class Animal { };
class Dog inherits Animal { };
class Cat inherits Animal { };
class User {
	pick(b : Bool) : Animal { if b then new Dog else new Cat fi };
};
`)
	assert.NoError(t, err)
}

func TestWhileHasTypeObject(t *testing.T) {
	_, err := analyzeSource(t, "class Main { main() : Object { while false loop 0 pool }; };")
	assert.NoError(t, err)

	_, err = analyzeSource(t, "class Main { main() : Int { while false loop 0 pool }; };")
	requireSemanticError(t, err, errors.TypeMismatch)
}

func TestWhilePredicateMustBeBool(t *testing.T) {
	_, err := analyzeSource(t, "class Main { main() : Object { while 1 loop 0 pool }; };")
	requireSemanticError(t, err, errors.TypeMismatch)
}

func TestAttributesVisibleInMethods(t *testing.T) {
	_, err := analyzeSource(t, `
class Main {
	count : Int <- 1;
	main() : Int { count + 1 };
};
`)
	assert.NoError(t, err)
}

func TestInheritedAttributesVisible(t *testing.T) {
	_, err := analyzeSource(t, mainStub+`
class P { x : Int; };
class C inherits P { get() : Int { x }; };
`)
	assert.NoError(t, err)
}

func TestDispatchChecks(t *testing.T) {
	base := mainStub + "class A { f(x : Int) : Bool { true }; };\n"

	_, err := analyzeSource(t, base+"class U { u(a : A) : Bool { a.f(1) }; };")
	assert.NoError(t, err)

	_, err = analyzeSource(t, base+"class U { u(a : A) : Bool { a.g(1) }; };")
	requireSemanticError(t, err, errors.BadDispatch)

	_, err = analyzeSource(t, base+"class U { u(a : A) : Bool { a.f(1, 2) }; };")
	requireSemanticError(t, err, errors.BadDispatch)

	_, err = analyzeSource(t, base+"class U { u(a : A) : Bool { a.f(true) }; };")
	requireSemanticError(t, err, errors.TypeMismatch)
}

func TestSelfTypeDispatchResult(t *testing.T) {
	// copy() returns SELF_TYPE, resolved to the receiver's type.
	_, err := analyzeSource(t, mainStub+`
class A { dup() : A { (new A).copy() }; };
`)
	assert.NoError(t, err)
}

func TestStaticDispatch(t *testing.T) {
	base := mainStub + `
class P { f() : Int { 1 }; };
class C inherits P { f() : Int { 2 }; };
`
	_, err := analyzeSource(t, base+"class U { u(c : C) : Int { c@P.f() }; };")
	assert.NoError(t, err)

	// Receiver must conform to the static type.
	_, err = analyzeSource(t, base+"class U { u(p : P) : Int { p@C.f() }; };")
	requireSemanticError(t, err, errors.BadStaticDispatch)
}

func TestCaseBranchTypesMustBeDistinct(t *testing.T) {
	_, err := analyzeSource(t, `
class Main {
	main() : Object { case 1 of a : Int => a; b : Int => b; esac };
};
`)
	requireSemanticError(t, err, errors.TypeMismatch)
}

func TestCaseResultIsLUBOfBranches(t *testing.T) {
	_, err := analyzeSource(t, mainStub+`
class Animal { };
class Dog inherits Animal { };
class Cat inherits Animal { };
class U {
	u(x : Animal) : Animal { case x of d : Dog => d; c : Cat => c; esac };
};
`)
	assert.NoError(t, err)
}

func TestAssignToSelfRejected(t *testing.T) {
	_, err := analyzeSource(t, "class Main { main() : Object { self <- new Main }; };")
	requireSemanticError(t, err, errors.ReservedIdentifier)
}

func TestSelfTypeRestrictions(t *testing.T) {
	_, err := analyzeSource(t, "class Main { x : SELF_TYPE; main() : Object { 0 }; };")
	requireSemanticError(t, err, errors.ReservedIdentifier)

	_, err = analyzeSource(t, "class Main { f(x : SELF_TYPE) : Object { 0 }; main() : Object { 0 }; };")
	requireSemanticError(t, err, errors.ReservedIdentifier)

	_, err = analyzeSource(t, "class Main { main() : Object { (new Main)@SELF_TYPE.main() }; };")
	requireSemanticError(t, err, errors.BadStaticDispatch)
}

func TestNewSelfType(t *testing.T) {
	_, err := analyzeSource(t, "class Main { main() : Object { new SELF_TYPE }; };")
	assert.NoError(t, err)
}

func TestMethodBodyMustConformToReturnType(t *testing.T) {
	_, err := analyzeSource(t, `class Main { main() : Int { "nope" }; };`)
	requireSemanticError(t, err, errors.TypeMismatch)
}

func TestSelfTypeReturnRequiresSelfTypeBody(t *testing.T) {
	_, err := analyzeSource(t, mainStub+`
class A { me() : SELF_TYPE { self }; };
`)
	assert.NoError(t, err)

	_, err = analyzeSource(t, mainStub+`
class A { me() : SELF_TYPE { new A }; };
`)
	requireSemanticError(t, err, errors.TypeMismatch)
}
