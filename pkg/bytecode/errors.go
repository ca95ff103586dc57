package bytecode

import (
	"fmt"

	"github.com/wayuto/alum/pkg/ast"
)

// ErrorKind classifies compile errors.
type ErrorKind int

const (
	UndefinedVariable   ErrorKind = iota // read of an unresolved name
	UndefinedAssignment                  // reassignment of an unresolved name
	UnknownNode                          // node kind the compiler cannot lower
	UndefinedFunction                    // call to a routine never declared
	ArityMismatch                        // call with the wrong argument count
	InvalidOperand                       // operator applied to an unsupported operand
	LimitExceeded                        // constant, slot, argument or code-size limit
	Unsupported                          // construct rejected in strict mode, or redeclared routine
)

// Label returns the diagnostic category printed before the message.
func (k ErrorKind) Label() string {
	switch k {
	case UndefinedVariable, UndefinedAssignment, UndefinedFunction:
		return "NameError"
	case UnknownNode, Unsupported:
		return "UnimplementedError"
	case ArityMismatch, InvalidOperand:
		return "TypeError"
	case LimitExceeded:
		return "LimitError"
	default:
		return "CompileError"
	}
}

// CompileError is the single fail-fast compile diagnostic.
type CompileError struct {
	Kind ErrorKind
	Name string // offending identifier or node kind
	Pos  ast.Position
	Msg  string
}

func (e *CompileError) Error() string {
	if e.Pos.Known() {
		return fmt.Sprintf("%s: %s (line: %d, column: %d)", e.Kind.Label(), e.Msg, e.Pos.Line, e.Pos.Column)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Label(), e.Msg)
}

// Diagnostic is a non-fatal compile message, such as a dropped goto.
type Diagnostic struct {
	Pos ast.Position
	Msg string
}

func (d Diagnostic) String() string {
	if d.Pos.Known() {
		return fmt.Sprintf("warning: %s (line: %d, column: %d)", d.Msg, d.Pos.Line, d.Pos.Column)
	}
	return "warning: " + d.Msg
}

// RuntimeErrorKind classifies fatal machine errors.
type RuntimeErrorKind int

const (
	UnknownOpcode RuntimeErrorKind = iota
	StackUnderflow
	TypeMismatch
	BadOperand
	MachineReused
)

// RuntimeError aborts a run. Output already produced stays visible.
type RuntimeError struct {
	Kind RuntimeErrorKind
	Op   Opcode
	IP   int    // offset of the failing instruction
	Line uint32 // source line, 0 when unknown
	Msg  string
}

func (e *RuntimeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("RuntimeError: %s (at %04X, line %d)", e.Msg, e.IP, e.Line)
	}
	return fmt.Sprintf("RuntimeError: %s (at %04X)", e.Msg, e.IP)
}
