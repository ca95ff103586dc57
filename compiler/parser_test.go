package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/wayuto/alum/pkg/ast"
	"github.com/wayuto/alum/pkg/value"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", src, err)
	}
	return prog
}

// shape renders a tree compactly so tests can compare structure.
func shape(n ast.Expr) string {
	switch n := n.(type) {
	case *ast.Val:
		return n.Value.GoString()
	case *ast.Var:
		return n.Name
	case *ast.BinOp:
		return "(" + shape(n.Left) + " " + n.Operator + " " + shape(n.Right) + ")"
	case *ast.UnaryOp:
		return "(" + n.Operator + shape(n.Argument) + ")"
	case *ast.VarMod:
		return "(" + n.Name + " = " + shape(n.Value) + ")"
	case *ast.FuncCall:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = shape(a)
		}
		return n.Name + "(" + strings.Join(args, ", ") + ")"
	default:
		kinds := []string{n.Kind()}
		for _, c := range ast.Children(n) {
			kinds = append(kinds, shape(c))
		}
		return "[" + strings.Join(kinds, " ") + "]"
	}
}

func programShape(p *ast.Program) string {
	parts := make([]string, len(p.Body))
	for i, n := range p.Body {
		parts[i] = shape(n)
	}
	return strings.Join(parts, "; ")
}

func TestParserExpressions(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"(1 + 2) * 3", "((1 + 2) * 3)"},
		{"10 - 4 - 3", "((10 - 4) - 3)"},
		{"a < b == c > d", "(((a < b) == c) > d)"},
		{"-x * 2", "((-x) * 2)"},
		{"!done", "(!done)"},
		{"++i", "(++i)"},
		{"i--", "(--i)"},
		{"a = b = 3", "(a = (b = 3))"},
		{`f(1, "s", g())`, `f(1, "s", g())`},
		{"true != null", "(true != null)"},
		{"2.5 / x", "(2.5 / x)"},
		{"(1 +\n 2)", "(1 + 2)"},
	}

	for _, tc := range tests {
		prog := mustParse(t, tc.input)
		if got := programShape(prog); got != tc.want {
			t.Errorf("Parse(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestParserStatements(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"let x = 1", "[VarDecl 1]"},
		{"out x", "[Out x]"},
		{"in name", "[In]"},
		{"if (c) out 1 else out 2", "[If c [Out 1] [Out 2]]"},
		{"if (c) {\n out 1\n}\nelse {\n out 2\n}", "[If c [Stmt [Out 1]] [Stmt [Out 2]]]"},
		{"while (i != 0) { out i; i-- }", "[While (i != 0) [Stmt [Out i] (--i)]]"},
		{"fun add(a, b) { return a + b }", "[FuncDecl [Stmt [Return (a + b)]]]"},
		{"fun f() { return }", "[FuncDecl [Stmt [Return]]]"},
		{"top:\ngoto top", "[Label]; [Goto]"},
		{"exit", "[Exit]"},
		{"exit 2", "[Exit 2]"},
		{"{ let a = 1 } out 2", "[Stmt [VarDecl 1]]; [Out 2]"},
		{"let a = 1; let b = 2;;", "[VarDecl 1]; [VarDecl 2]"},
		{"", ""},
		{"// only a comment\n", ""},
	}

	for _, tc := range tests {
		prog := mustParse(t, tc.input)
		if got := programShape(prog); got != tc.want {
			t.Errorf("Parse(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestParserReturnValueMustStartOnSameLine(t *testing.T) {
	prog := mustParse(t, "fun f() {\n return\n out 1\n}")
	body := prog.Body[0].(*ast.FuncDecl).Body.(*ast.Stmt).Body
	if len(body) != 2 {
		t.Fatalf("body = %s", programShape(&ast.Program{Body: body}))
	}
	if ret := body[0].(*ast.Return); ret.Value != nil {
		t.Errorf("return took a value from the next line: %s", shape(ret.Value))
	}
}

func TestParserNewlineEndsExpression(t *testing.T) {
	prog := mustParse(t, "let a = 1\n-a")
	if got := programShape(prog); got != "[VarDecl 1]; (-a)" {
		t.Errorf("shape = %s", got)
	}
}

func TestParserDetails(t *testing.T) {
	prog := mustParse(t, "fun greet(name) {\n  out \"hi \" + name\n}\nlet n = greet(\"bob\")")

	fn, ok := prog.Body[0].(*ast.FuncDecl)
	if !ok {
		t.Fatalf("expected *ast.FuncDecl, got %T", prog.Body[0])
	}
	if fn.Name != "greet" || len(fn.Params) != 1 || fn.Params[0] != "name" {
		t.Errorf("FuncDecl = %+v", fn)
	}
	if fn.Pos != (ast.Position{Line: 1, Column: 1}) {
		t.Errorf("FuncDecl.Pos = %+v", fn.Pos)
	}

	decl := prog.Body[1].(*ast.VarDecl)
	if decl.Pos != (ast.Position{Line: 4, Column: 1}) {
		t.Errorf("VarDecl.Pos = %+v", decl.Pos)
	}
	call, ok := decl.Value.(*ast.FuncCall)
	if !ok || call.Name != "greet" {
		t.Fatalf("VarDecl.Value = %#v", decl.Value)
	}
	if v := call.Args[0].(*ast.Val).Value; v != value.Str("bob") {
		t.Errorf("argument = %#v", v)
	}
}

func TestParserErrors(t *testing.T) {
	tests := []struct {
		input string
		msg   string
		line  int
		col   int
	}{
		{"let = 1", "expected identifier, got '='", 1, 5},
		{"let x 1", "expected '=', got number 1", 1, 7},
		{"out 1 out 2", "expected ';' or newline before 'out'", 1, 7},
		{"if x out 1", "expected '(', got identifier 'x'", 1, 4},
		{"while (1 { }", "expected ')', got '{'", 1, 10},
		{"fun f(a b) {}", "expected ',', got identifier 'b'", 1, 9},
		{"out", "unexpected end of input", 1, 4},
		{"}", "unexpected '}'", 1, 1},
		{"{ out 1", "expected '}', got end of input", 1, 8},
		{"out \"open", "unterminated string", 1, 5},
		{"f(1,)", "unexpected ')'", 1, 5},
		{"1 +\n\nout", "unexpected 'out'", 3, 1},
	}

	for _, tc := range tests {
		_, err := Parse(tc.input)
		var se *SyntaxError
		if !errors.As(err, &se) {
			t.Errorf("Parse(%q): expected *SyntaxError, got %v", tc.input, err)
			continue
		}
		if se.Msg != tc.msg || se.Pos.Line != tc.line || se.Pos.Column != tc.col {
			t.Errorf("Parse(%q) = %q at %d:%d, want %q at %d:%d",
				tc.input, se.Msg, se.Pos.Line, se.Pos.Column, tc.msg, tc.line, tc.col)
		}
	}
}

func TestSyntaxErrorString(t *testing.T) {
	err := &SyntaxError{Pos: ast.Position{Line: 2, Column: 4}, Msg: "unexpected '}'"}
	want := "SyntaxError: unexpected '}' (line: 2, column: 4)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
