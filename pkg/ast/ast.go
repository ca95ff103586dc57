// Package ast defines the program tree handed from the front end to the
// bytecode compiler. The node shapes, and their JSON form, are a versioned
// contract: the compiler depends on them but the parser owns them.
package ast

import "github.com/wayuto/alum/pkg/value"

// Version is the program tree contract version carried in JSON documents.
const Version = 1

// Position is a 1-based source location. The zero value means unknown.
type Position struct {
	Line   int
	Column int
}

// Known reports whether the position carries a real location.
func (p Position) Known() bool { return p.Line > 0 }

// Expr is implemented by every node of the program tree. Kind returns the
// node's contract name ("Val", "VarDecl", ...).
type Expr interface {
	Kind() string
	Position() Position
}

// Program is the parsed body of one (preprocessed) source file.
type Program struct {
	Body []Expr
}

// Stmt is a braced block; it opens a new lexical scope.
type Stmt struct {
	Pos  Position
	Body []Expr
}

// Val is a literal value.
type Val struct {
	Pos   Position
	Value value.Literal
}

// Var reads a variable.
type Var struct {
	Pos  Position
	Name string
}

// VarDecl declares a new binding in the current scope.
type VarDecl struct {
	Pos   Position
	Name  string
	Value Expr
}

// VarMod reassigns an existing binding.
type VarMod struct {
	Pos   Position
	Name  string
	Value Expr
}

// BinOp is an arithmetic or comparison operation.
// Operator is one of + - * / == != > >= < <=.
type BinOp struct {
	Pos      Position
	Left     Expr
	Right    Expr
	Operator string
}

// UnaryOp is a prefix or postfix operation. Operator is one of ! - + ++ --.
type UnaryOp struct {
	Pos      Position
	Argument Expr
	Operator string
}

// If is a conditional; Else is nil when absent.
type If struct {
	Pos       Position
	Condition Expr
	Then      Expr
	Else      Expr
}

// While is a pre-tested loop.
type While struct {
	Pos       Position
	Condition Expr
	Body      Expr
}

// FuncDecl declares a named routine.
type FuncDecl struct {
	Pos    Position
	Name   string
	Params []string
	Body   Expr
}

// FuncCall invokes a named routine.
type FuncCall struct {
	Pos  Position
	Name string
	Args []Expr
}

// Return leaves the current routine; Value is nil for a bare return.
type Return struct {
	Pos   Position
	Value Expr
}

// Out displays a value.
type Out struct {
	Pos   Position
	Value Expr
}

// In reads one line of input into a variable.
type In struct {
	Pos  Position
	Name string
}

// Label marks a goto target.
type Label struct {
	Pos  Position
	Name string
}

// Goto jumps to a label.
type Goto struct {
	Pos   Position
	Label string
}

// Exit stops the program; Code is nil when absent.
type Exit struct {
	Pos  Position
	Code Expr
}

func (n *Stmt) Kind() string     { return "Stmt" }
func (n *Val) Kind() string      { return "Val" }
func (n *Var) Kind() string      { return "Var" }
func (n *VarDecl) Kind() string  { return "VarDecl" }
func (n *VarMod) Kind() string   { return "VarMod" }
func (n *BinOp) Kind() string    { return "BinOp" }
func (n *UnaryOp) Kind() string  { return "UnaryOp" }
func (n *If) Kind() string       { return "If" }
func (n *While) Kind() string    { return "While" }
func (n *FuncDecl) Kind() string { return "FuncDecl" }
func (n *FuncCall) Kind() string { return "FuncCall" }
func (n *Return) Kind() string   { return "Return" }
func (n *Out) Kind() string      { return "Out" }
func (n *In) Kind() string       { return "In" }
func (n *Label) Kind() string    { return "Label" }
func (n *Goto) Kind() string     { return "Goto" }
func (n *Exit) Kind() string     { return "Exit" }

func (n *Stmt) Position() Position     { return n.Pos }
func (n *Val) Position() Position      { return n.Pos }
func (n *Var) Position() Position      { return n.Pos }
func (n *VarDecl) Position() Position  { return n.Pos }
func (n *VarMod) Position() Position   { return n.Pos }
func (n *BinOp) Position() Position    { return n.Pos }
func (n *UnaryOp) Position() Position  { return n.Pos }
func (n *If) Position() Position       { return n.Pos }
func (n *While) Position() Position    { return n.Pos }
func (n *FuncDecl) Position() Position { return n.Pos }
func (n *FuncCall) Position() Position { return n.Pos }
func (n *Return) Position() Position   { return n.Pos }
func (n *Out) Position() Position      { return n.Pos }
func (n *In) Position() Position       { return n.Pos }
func (n *Label) Position() Position    { return n.Pos }
func (n *Goto) Position() Position     { return n.Pos }
func (n *Exit) Position() Position     { return n.Pos }

// Walk calls fn for n and then for each of its children, depth first.
// Returning false from fn skips the node's children.
func Walk(n Expr, fn func(Expr) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range Children(n) {
		Walk(c, fn)
	}
}

// Children returns the direct child nodes of n in source order.
func Children(n Expr) []Expr {
	var out []Expr
	add := func(es ...Expr) {
		for _, e := range es {
			if e != nil {
				out = append(out, e)
			}
		}
	}
	switch n := n.(type) {
	case *Stmt:
		add(n.Body...)
	case *VarDecl:
		add(n.Value)
	case *VarMod:
		add(n.Value)
	case *BinOp:
		add(n.Left, n.Right)
	case *UnaryOp:
		add(n.Argument)
	case *If:
		add(n.Condition, n.Then, n.Else)
	case *While:
		add(n.Condition, n.Body)
	case *FuncDecl:
		add(n.Body)
	case *FuncCall:
		add(n.Args...)
	case *Return:
		add(n.Value)
	case *Out:
		add(n.Value)
	case *Exit:
		add(n.Code)
	}
	return out
}
