// internal/errors/errors.go
package errors

import (
	"fmt"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	LexicalError  ErrorType = "LexicalError"
	SyntaxError   ErrorType = "SyntaxError"
	SemanticError ErrorType = "SemanticError"
	InternalError ErrorType = "InternalError"
)

// SemanticKind narrows a SemanticError to the specific rule that failed.
type SemanticKind string

const (
	DuplicateClass     SemanticKind = "duplicate class"
	InheritanceCycle   SemanticKind = "inheritance cycle"
	BadParent          SemanticKind = "bad parent"
	MissingMain        SemanticKind = "missing Main"
	MissingMainMethod  SemanticKind = "missing main method"
	WrongMainArity     SemanticKind = "wrong main arity"
	BadOverride        SemanticKind = "bad override"
	BadRedeclaration   SemanticKind = "bad redeclaration"
	UndefinedVariable  SemanticKind = "undefined variable"
	UndefinedClass     SemanticKind = "undefined class"
	TypeMismatch       SemanticKind = "type mismatch"
	BadDispatch        SemanticKind = "bad dispatch"
	BadStaticDispatch  SemanticKind = "bad static-dispatch type"
	ReservedIdentifier SemanticKind = "reserved identifier"
)

// SourceLocation represents a location in source code
type SourceLocation struct {
	File string
	Line int
}

// CoolError represents a compiler error with source location information
type CoolError struct {
	Type     ErrorType
	Kind     SemanticKind
	Message  string
	Location SourceLocation
	Source   string // The source line where the error occurred
}

// Error implements the error interface
func (e *CoolError) Error() string {
	var sb strings.Builder

	if e.Kind != "" {
		sb.WriteString(fmt.Sprintf("%s (%s): %s", e.Type, e.Kind, e.Message))
	} else {
		sb.WriteString(fmt.Sprintf("%s: %s", e.Type, e.Message))
	}

	if e.Location.Line > 0 {
		if e.Location.File != "" {
			sb.WriteString(fmt.Sprintf("\n  at %s:%d", e.Location.File, e.Location.Line))
		} else {
			sb.WriteString(fmt.Sprintf("\n  at line %d", e.Location.Line))
		}
		if e.Source != "" {
			sb.WriteString(fmt.Sprintf("\n  %d | %s", e.Location.Line, e.Source))
		}
	}

	return sb.String()
}

// NewLexicalError creates a new lexical error
func NewLexicalError(message string, line int) *CoolError {
	return &CoolError{
		Type:     LexicalError,
		Message:  message,
		Location: SourceLocation{Line: line},
	}
}

// NewSyntaxError creates a new syntax error
func NewSyntaxError(message string, line int) *CoolError {
	return &CoolError{
		Type:     SyntaxError,
		Message:  message,
		Location: SourceLocation{Line: line},
	}
}

// NewSemanticError creates a new semantic error of the given kind
func NewSemanticError(kind SemanticKind, message string, line int) *CoolError {
	return &CoolError{
		Type:     SemanticError,
		Kind:     kind,
		Message:  message,
		Location: SourceLocation{Line: line},
	}
}

// NewInternalError reports a violated compiler invariant. User input
// should never be able to trigger one.
func NewInternalError(message string) *CoolError {
	return &CoolError{
		Type:    InternalError,
		Message: message,
	}
}

// WithSource adds source code context to the error
func (e *CoolError) WithSource(source string) *CoolError {
	e.Source = source
	return e
}

// WithFile records the file the error was found in
func (e *CoolError) WithFile(file string) *CoolError {
	e.Location.File = file
	return e
}

// IsSemantic reports whether err is a CoolError of the given semantic kind.
func IsSemantic(err error, kind SemanticKind) bool {
	ce, ok := err.(*CoolError)
	return ok && ce.Type == SemanticError && ce.Kind == kind
}
