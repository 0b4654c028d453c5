// internal/tac/translate.go
//
// Lowers the analyzed AST into linear three-address code. Each
// expression translation returns the operand holding its result;
// callers chain these.
package tac

import (
	"fmt"

	"coolc/internal/errors"
	"coolc/internal/parser"
	"coolc/internal/semant"
)

// Translator lowers a program method by method. Temps reset per
// method; labels are drawn from one shared generator.
type Translator struct {
	tempGen  TempGen
	labelGen LabelGen
	table    *semant.ClassTable
}

func NewTranslator(table *semant.ClassTable) *Translator {
	return &Translator{table: table}
}

// Translate is the convenience entry point: analyzed program in, TAC
// program out.
func Translate(prog *parser.Program, table *semant.ClassTable) (*Program, error) {
	return NewTranslator(table).Translate(prog)
}

func (t *Translator) Translate(prog *parser.Program) (*Program, error) {
	out := NewProgram()
	for _, cls := range prog.Classes {
		for _, f := range cls.Features {
			m, ok := f.(*parser.Method)
			if !ok || m.Body == nil {
				// Builtin methods have no body to lower.
				continue
			}
			method, err := t.translateMethod(cls, m)
			if err != nil {
				return nil, err
			}
			out.Methods = append(out.Methods, method)
		}
	}
	return out, nil
}

// translatorScope maps COOL names to the operands holding them.
// let and case push new scopes.
type translatorScope struct {
	scopes []map[string]Operand
}

func (s *translatorScope) push() {
	s.scopes = append(s.scopes, make(map[string]Operand))
}

func (s *translatorScope) pop() {
	s.scopes = s.scopes[:len(s.scopes)-1]
}

func (s *translatorScope) define(name string, op Operand) {
	s.scopes[len(s.scopes)-1][name] = op
}

func (s *translatorScope) lookup(name string) (Operand, bool) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if op, ok := s.scopes[i][name]; ok {
			return op, true
		}
	}
	return nil, false
}

type methodContext struct {
	className string
	scope     translatorScope
	attrs     map[string]string // attribute name -> declared type
	instrs    []Instruction
}

func (c *methodContext) emit(ins Instruction) {
	c.instrs = append(c.instrs, ins)
}

func (t *Translator) translateMethod(cls *parser.Class, m *parser.Method) (*Method, error) {
	t.tempGen.Reset()

	ctx := &methodContext{
		className: cls.Name,
		attrs:     make(map[string]string),
	}
	for _, a := range t.table.Attributes(cls.Name) {
		ctx.attrs[a.Name] = a.DeclType
	}

	ctx.scope.push()
	ctx.scope.define("self", Var{Name: "self"})
	params := make([]string, 0, len(m.Params))
	for _, p := range m.Params {
		ctx.scope.define(p.Name, Var{Name: p.Name})
		params = append(params, p.Name)
	}

	ctx.emit(&Comment{Text: fmt.Sprintf("Method %s.%s", cls.Name, m.Name)})

	result, err := t.translateExpr(m.Body, ctx)
	if err != nil {
		return nil, err
	}
	ctx.emit(&Return{Value: result})
	ctx.scope.pop()

	return &Method{
		ClassName:    cls.Name,
		MethodName:   m.Name,
		Params:       params,
		Instructions: ctx.instrs,
	}, nil
}

func (t *Translator) translateExpr(e parser.Expr, ctx *methodContext) (Operand, error) {
	switch e := e.(type) {
	case *parser.IntegerLit:
		dest := t.tempGen.Next()
		ctx.emit(&Copy{Dest: dest, Src: Const{Value: e.Value, TypeTag: semant.IntClass}})
		return dest, nil

	case *parser.StringLit:
		dest := t.tempGen.Next()
		ctx.emit(&Copy{Dest: dest, Src: Const{Value: e.Value, TypeTag: semant.StringClass}})
		return dest, nil

	case *parser.BoolLit:
		dest := t.tempGen.Next()
		ctx.emit(&Copy{Dest: dest, Src: Const{Value: e.Value, TypeTag: semant.BoolClass}})
		return dest, nil

	case *parser.Self:
		return Var{Name: "self"}, nil

	case *parser.Object:
		if op, ok := ctx.scope.lookup(e.Name); ok {
			return op, nil
		}
		if _, ok := ctx.attrs[e.Name]; ok {
			dest := t.tempGen.Next()
			ctx.emit(&GetAttr{Dest: dest, Object: Var{Name: "self"}, Attr: e.Name})
			return dest, nil
		}
		return nil, errors.NewInternalError(
			fmt.Sprintf("translator saw unbound name '%s' in %s", e.Name, ctx.className))

	case *parser.Assign:
		rhs, err := t.translateExpr(e.Value, ctx)
		if err != nil {
			return nil, err
		}
		if local, ok := ctx.scope.lookup(e.Name); ok {
			ctx.emit(&Copy{Dest: local, Src: rhs})
			return rhs, nil
		}
		ctx.emit(&SetAttr{Object: Var{Name: "self"}, Attr: e.Name, Value: rhs})
		return rhs, nil

	case *parser.Binary:
		return t.translateBinary(e, ctx)

	case *parser.Unary:
		operand, err := t.translateExpr(e.Operand, ctx)
		if err != nil {
			return nil, err
		}
		dest := t.tempGen.Next()
		op := Neg
		if e.Op == "not" {
			op = Not
		}
		ctx.emit(&UnaryOp{Dest: dest, Op: op, Operand: operand})
		return dest, nil

	case *parser.Block:
		var result Operand = Const{Value: 0, TypeTag: semant.IntClass}
		for _, sub := range e.Exprs {
			r, err := t.translateExpr(sub, ctx)
			if err != nil {
				return nil, err
			}
			result = r
		}
		return result, nil

	case *parser.If:
		return t.translateIf(e, ctx)

	case *parser.While:
		return t.translateWhile(e, ctx)

	case *parser.Let:
		return t.translateLet(e, ctx)

	case *parser.Case:
		return t.translateCase(e, ctx)

	case *parser.New:
		dest := t.tempGen.Next()
		ctx.emit(&New{Dest: dest, TypeName: e.Type})
		return dest, nil

	case *parser.IsVoid:
		operand, err := t.translateExpr(e.Expr, ctx)
		if err != nil {
			return nil, err
		}
		dest := t.tempGen.Next()
		ctx.emit(&IsVoid{Dest: dest, Operand: operand})
		return dest, nil

	case *parser.DynamicDispatch:
		for _, arg := range e.Args {
			v, err := t.translateExpr(arg, ctx)
			if err != nil {
				return nil, err
			}
			ctx.emit(&Param{Value: v})
		}
		recv, err := t.translateExpr(e.Receiver, ctx)
		if err != nil {
			return nil, err
		}
		dest := t.tempGen.Next()
		ctx.emit(&Dispatch{Dest: dest, Receiver: recv, Method: e.Method, NumArgs: len(e.Args)})
		return dest, nil

	case *parser.StaticDispatch:
		for _, arg := range e.Args {
			v, err := t.translateExpr(arg, ctx)
			if err != nil {
				return nil, err
			}
			ctx.emit(&Param{Value: v})
		}
		recv, err := t.translateExpr(e.Receiver, ctx)
		if err != nil {
			return nil, err
		}
		dest := t.tempGen.Next()
		ctx.emit(&StaticDispatch{
			Dest: dest, Receiver: recv,
			StaticType: e.StaticType, Method: e.Method, NumArgs: len(e.Args),
		})
		return dest, nil

	default:
		return nil, errors.NewInternalError(fmt.Sprintf("unhandled AST node %T in translator", e))
	}
}

func (t *Translator) translateBinary(e *parser.Binary, ctx *methodContext) (Operand, error) {
	left, err := t.translateExpr(e.Left, ctx)
	if err != nil {
		return nil, err
	}
	right, err := t.translateExpr(e.Right, ctx)
	if err != nil {
		return nil, err
	}
	dest := t.tempGen.Next()
	ctx.emit(&BinaryOp{Dest: dest, Op: BinOp(e.Op), Left: left, Right: right})
	return dest, nil
}

func (t *Translator) translateIf(e *parser.If, ctx *methodContext) (Operand, error) {
	elseLabel := t.labelGen.Next("else")
	endLabel := t.labelGen.Next("endif")
	result := t.tempGen.Next()

	pred, err := t.translateExpr(e.Pred, ctx)
	if err != nil {
		return nil, err
	}
	ctx.emit(&CondJumpNot{Cond: pred, Target: elseLabel})

	thenVal, err := t.translateExpr(e.Then, ctx)
	if err != nil {
		return nil, err
	}
	ctx.emit(&Copy{Dest: result, Src: thenVal})
	ctx.emit(&Jump{Target: endLabel})

	ctx.emit(&LabelDef{Label: elseLabel})
	elseVal, err := t.translateExpr(e.Else, ctx)
	if err != nil {
		return nil, err
	}
	ctx.emit(&Copy{Dest: result, Src: elseVal})

	ctx.emit(&LabelDef{Label: endLabel})
	return result, nil
}

func (t *Translator) translateWhile(e *parser.While, ctx *methodContext) (Operand, error) {
	loopLabel := t.labelGen.Next("while")
	endLabel := t.labelGen.Next("endwhile")

	ctx.emit(&LabelDef{Label: loopLabel})
	pred, err := t.translateExpr(e.Pred, ctx)
	if err != nil {
		return nil, err
	}
	ctx.emit(&CondJumpNot{Cond: pred, Target: endLabel})

	if _, err := t.translateExpr(e.Body, ctx); err != nil {
		return nil, err
	}
	ctx.emit(&Jump{Target: loopLabel})
	ctx.emit(&LabelDef{Label: endLabel})

	// Loops evaluate to void in COOL; the placeholder is self.
	dest := t.tempGen.Next()
	ctx.emit(&Copy{Dest: dest, Src: Var{Name: "self"}})
	return dest, nil
}

func (t *Translator) translateLet(e *parser.Let, ctx *methodContext) (Operand, error) {
	v := t.tempGen.Next()
	if e.Init != nil {
		initVal, err := t.translateExpr(e.Init, ctx)
		if err != nil {
			return nil, err
		}
		ctx.emit(&Copy{Dest: v, Src: initVal})
	} else {
		ctx.emit(&Copy{Dest: v, Src: defaultValue(e.DeclType)})
	}

	ctx.scope.push()
	ctx.scope.define(e.Name, v)
	result, err := t.translateExpr(e.Body, ctx)
	ctx.scope.pop()
	if err != nil {
		return nil, err
	}
	return result, nil
}

// translateCase binds each branch variable to the scrutinee and
// chains the branches with labels. The runtime class-tag test is the
// back-end's job; the chain keeps branch bodies in source order.
func (t *Translator) translateCase(e *parser.Case, ctx *methodContext) (Operand, error) {
	scrutinee, err := t.translateExpr(e.Expr, ctx)
	if err != nil {
		return nil, err
	}
	result := t.tempGen.Next()
	endLabel := t.labelGen.Next("endcase")

	for i, action := range e.Actions {
		ctx.scope.push()

		v := t.tempGen.Next()
		ctx.emit(&Copy{Dest: v, Src: scrutinee})
		ctx.scope.define(action.Name, v)

		branchVal, err := t.translateExpr(action.Body, ctx)
		if err != nil {
			ctx.scope.pop()
			return nil, err
		}
		ctx.emit(&Copy{Dest: result, Src: branchVal})
		ctx.emit(&Jump{Target: endLabel})

		ctx.scope.pop()

		if i < len(e.Actions)-1 {
			ctx.emit(&LabelDef{Label: t.labelGen.Next(fmt.Sprintf("case_%d", i+1))})
		}
	}

	ctx.emit(&LabelDef{Label: endLabel})
	return result, nil
}

// defaultValue is the initializer used for let bindings without one.
func defaultValue(typeName string) Const {
	switch typeName {
	case semant.IntClass:
		return Const{Value: 0, TypeTag: semant.IntClass}
	case semant.BoolClass:
		return Const{Value: false, TypeTag: semant.BoolClass}
	case semant.StringClass:
		return Const{Value: "", TypeTag: semant.StringClass}
	default:
		return Const{Value: 0, TypeTag: semant.IntClass}
	}
}
