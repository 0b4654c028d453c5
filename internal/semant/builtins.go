package semant

import "coolc/internal/parser"

// UnboxedPrimitiveType is the type tag of the hidden value slot in
// Int, Bool and String. It is not a class name and never participates
// in the hierarchy.
const UnboxedPrimitiveType = "__prim_slot"

// Builtin class names.
const (
	ObjectClass = "Object"
	IOClass     = "IO"
	IntClass    = "Int"
	BoolClass   = "Bool"
	StringClass = "String"
	SelfType    = "SELF_TYPE"
	MainClass   = "Main"
	MainMethod  = "main"
)

// installBuiltins returns a new program with the builtin classes
// prepended. Builtin method bodies are nil; they are provided by the
// runtime and never translated.
func installBuiltins(prog *parser.Program) *parser.Program {
	objectClass := &parser.Class{
		Name: ObjectClass,
		Features: []parser.Feature{
			&parser.Method{Name: "abort", ReturnType: ObjectClass},
			&parser.Method{Name: "copy", ReturnType: SelfType},
			&parser.Method{Name: "type_name", ReturnType: StringClass},
		},
	}

	ioClass := &parser.Class{
		Name:   IOClass,
		Parent: ObjectClass,
		Features: []parser.Feature{
			&parser.Method{Name: "in_int", ReturnType: IntClass},
			&parser.Method{Name: "in_string", ReturnType: StringClass},
			&parser.Method{
				Name:       "out_int",
				Params:     []*parser.Formal{{Name: "arg", Type: IntClass}},
				ReturnType: SelfType,
			},
			&parser.Method{
				Name:       "out_string",
				Params:     []*parser.Formal{{Name: "arg", Type: StringClass}},
				ReturnType: SelfType,
			},
		},
	}

	intClass := &parser.Class{
		Name:   IntClass,
		Parent: ObjectClass,
		Features: []parser.Feature{
			&parser.Attribute{Name: "_val", DeclType: UnboxedPrimitiveType},
		},
	}

	boolClass := &parser.Class{
		Name:   BoolClass,
		Parent: ObjectClass,
		Features: []parser.Feature{
			&parser.Attribute{Name: "_val", DeclType: UnboxedPrimitiveType},
		},
	}

	stringClass := &parser.Class{
		Name:   StringClass,
		Parent: ObjectClass,
		Features: []parser.Feature{
			&parser.Attribute{Name: "_val", DeclType: IntClass},
			&parser.Attribute{Name: "_str_field", DeclType: UnboxedPrimitiveType},
			&parser.Method{Name: "length", ReturnType: IntClass},
			&parser.Method{
				Name:       "concat",
				Params:     []*parser.Formal{{Name: "arg", Type: StringClass}},
				ReturnType: StringClass,
			},
			&parser.Method{
				Name: "substr",
				Params: []*parser.Formal{
					{Name: "arg1", Type: IntClass},
					{Name: "arg2", Type: IntClass},
				},
				ReturnType: StringClass,
			},
		},
	}

	all := []*parser.Class{objectClass, ioClass, intClass, boolClass, stringClass}
	all = append(all, prog.Classes...)
	return &parser.Program{Classes: all}
}

// isBuiltinClass reports whether name is one of the installed builtins.
func isBuiltinClass(name string) bool {
	switch name {
	case ObjectClass, IOClass, IntClass, BoolClass, StringClass:
		return true
	}
	return false
}

// isPrimitiveClass reports whether name is one of the value types
// with special equality semantics.
func isPrimitiveClass(name string) bool {
	switch name {
	case IntClass, BoolClass, StringClass:
		return true
	}
	return false
}
