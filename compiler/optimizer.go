package compiler

import (
	"github.com/wayuto/alum/pkg/ast"
	"github.com/wayuto/alum/pkg/value"
)

// Optimize folds constant subexpressions throughout the program, in place,
// and returns it. Number arithmetic and comparisons over literal operands
// are evaluated; division by zero is left for run time.
func Optimize(prog *ast.Program) *ast.Program {
	for i, n := range prog.Body {
		prog.Body[i] = fold(n)
	}
	return prog
}

func fold(n ast.Expr) ast.Expr {
	switch n := n.(type) {
	case *ast.Stmt:
		for i, c := range n.Body {
			n.Body[i] = fold(c)
		}
	case *ast.VarDecl:
		n.Value = fold(n.Value)
	case *ast.VarMod:
		n.Value = fold(n.Value)
	case *ast.If:
		n.Condition = fold(n.Condition)
		n.Then = fold(n.Then)
		if n.Else != nil {
			n.Else = fold(n.Else)
		}
	case *ast.While:
		n.Condition = fold(n.Condition)
		n.Body = fold(n.Body)
	case *ast.FuncDecl:
		n.Body = fold(n.Body)
	case *ast.FuncCall:
		for i, a := range n.Args {
			n.Args[i] = fold(a)
		}
	case *ast.Return:
		if n.Value != nil {
			n.Value = fold(n.Value)
		}
	case *ast.Out:
		n.Value = fold(n.Value)
	case *ast.Exit:
		if n.Code != nil {
			n.Code = fold(n.Code)
		}
	case *ast.BinOp:
		n.Left = fold(n.Left)
		n.Right = fold(n.Right)
		if v, ok := foldBinary(n); ok {
			return &ast.Val{Pos: n.Pos, Value: v}
		}
	case *ast.UnaryOp:
		n.Argument = fold(n.Argument)
		if v, ok := foldUnary(n); ok {
			return &ast.Val{Pos: n.Pos, Value: v}
		}
	}
	return n
}

func foldBinary(n *ast.BinOp) (value.Literal, bool) {
	l, lok := n.Left.(*ast.Val)
	r, rok := n.Right.(*ast.Val)
	if !lok || !rok || !l.Value.IsNumber() || !r.Value.IsNumber() {
		return value.Void, false
	}
	a, b := l.Value.Num, r.Value.Num

	switch n.Operator {
	case "+":
		return value.Number(a + b), true
	case "-":
		return value.Number(a - b), true
	case "*":
		return value.Number(a * b), true
	case "/":
		if b == 0 {
			return value.Void, false
		}
		return value.Number(a / b), true
	case "==":
		return value.Bool(a == b), true
	case "!=":
		return value.Bool(a != b), true
	case ">":
		return value.Bool(a > b), true
	case ">=":
		return value.Bool(a >= b), true
	case "<":
		return value.Bool(a < b), true
	case "<=":
		return value.Bool(a <= b), true
	}
	return value.Void, false
}

func foldUnary(n *ast.UnaryOp) (value.Literal, bool) {
	v, ok := n.Argument.(*ast.Val)
	if !ok {
		return value.Void, false
	}

	switch n.Operator {
	case "!":
		return value.Bool(!v.Value.Truthy()), true
	case "-":
		if v.Value.IsNumber() {
			return value.Number(-v.Value.Num), true
		}
	case "+":
		if v.Value.IsNumber() {
			return v.Value, true
		}
	}
	return value.Void, false
}
