package ast

import (
	"bytes"
	"strings"
	"testing"

	"github.com/wayuto/alum/pkg/value"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		json      string
		wantLen   int
		wantError bool
	}{
		{
			name:    "variable declaration",
			json:    `{"type": "Program", "body": [{"type": "VarDecl", "name": "x", "value": {"type": "Val", "value": 1}}]}`,
			wantLen: 1,
		},
		{
			name:    "empty body",
			json:    `{"type": "Program", "body": []}`,
			wantLen: 0,
		},
		{
			name:      "not a program",
			json:      `{"type": "Stmt", "body": []}`,
			wantError: true,
		},
		{
			name:      "unknown node",
			json:      `{"type": "Program", "body": [{"type": "Teleport"}]}`,
			wantError: true,
		},
		{
			name:      "missing child",
			json:      `{"type": "Program", "body": [{"type": "Out"}]}`,
			wantError: true,
		},
		{
			name:      "newer version",
			json:      `{"type": "Program", "version": 99, "body": []}`,
			wantError: true,
		},
		{
			name:      "invalid json",
			json:      `{"type": "Program", body: invalid}`,
			wantError: true,
		},
		{
			name:      "empty json",
			json:      ``,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := Parse(strings.NewReader(tt.json))
			if (err != nil) != tt.wantError {
				t.Fatalf("Parse() error = %v, wantError %v", err, tt.wantError)
			}
			if err == nil && len(prog.Body) != tt.wantLen {
				t.Errorf("len(Body) = %d, want %d", len(prog.Body), tt.wantLen)
			}
		})
	}
}

func TestParseLiterals(t *testing.T) {
	src := `{"type": "Program", "body": [
		{"type": "Out", "value": {"type": "Val", "value": 2.5}},
		{"type": "Out", "value": {"type": "Val", "value": true}},
		{"type": "Out", "value": {"type": "Val", "value": "hi"}},
		{"type": "Out", "value": {"type": "Val", "value": null}}
	]}`
	prog, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := []value.Literal{value.Number(2.5), value.Bool(true), value.Str("hi"), value.Void}
	for i, n := range prog.Body {
		out, ok := n.(*Out)
		if !ok {
			t.Fatalf("node %d: expected *Out, got %T", i, n)
		}
		val, ok := out.Value.(*Val)
		if !ok {
			t.Fatalf("node %d: expected *Val, got %T", i, out.Value)
		}
		if val.Value != want[i] {
			t.Errorf("node %d: value = %#v, want %#v", i, val.Value, want[i])
		}
	}
}

func TestParseControlFlow(t *testing.T) {
	src := `{"type": "Program", "body": [
		{"type": "If", "line": 3, "column": 1,
		 "cond": {"type": "BinOp", "op": ">", "left": {"type": "Val", "value": 1}, "right": {"type": "Val", "value": 0}},
		 "body": {"type": "Stmt", "body": [{"type": "Out", "value": {"type": "Val", "value": 1}}]},
		 "else": {"type": "Stmt", "body": [{"type": "Out", "value": {"type": "Val", "value": 0}}]}}
	]}`
	prog, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	n, ok := prog.Body[0].(*If)
	if !ok {
		t.Fatalf("expected *If, got %T", prog.Body[0])
	}
	if n.Pos != (Position{Line: 3, Column: 1}) {
		t.Errorf("Pos = %+v", n.Pos)
	}
	if cond, ok := n.Condition.(*BinOp); !ok || cond.Operator != ">" {
		t.Errorf("Condition = %#v", n.Condition)
	}
	if n.Else == nil {
		t.Error("expected else branch")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	prog := &Program{Body: []Expr{
		&FuncDecl{Name: "add", Params: []string{"a", "b"}, Body: &Stmt{Body: []Expr{
			&Return{Value: &BinOp{Operator: "+", Left: &Var{Name: "a"}, Right: &Var{Name: "b"}}},
		}}},
		&Out{Pos: Position{Line: 4, Column: 1}, Value: &FuncCall{Name: "add", Args: []Expr{
			&Val{Value: value.Number(1)}, &Val{Value: value.Number(2)},
		}}},
		&While{Condition: &Var{Name: "x"}, Body: &UnaryOp{Operator: "--", Argument: &Var{Name: "x"}}},
		&Label{Name: "top"},
		&Goto{Label: "top"},
		&Exit{},
	}}

	data, err := Marshal(prog)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	back, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse of marshaled program failed: %v\n%s", err, data)
	}
	again, err := Marshal(back)
	if err != nil {
		t.Fatalf("second Marshal failed: %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Errorf("round trip changed the document:\n%s\n---\n%s", data, again)
	}
}

func TestWalk(t *testing.T) {
	prog := &If{
		Condition: &Var{Name: "c"},
		Then:      &Stmt{Body: []Expr{&Out{Value: &Val{Value: value.Number(1)}}}},
	}
	var kinds []string
	Walk(prog, func(n Expr) bool {
		kinds = append(kinds, n.Kind())
		return true
	})
	got := strings.Join(kinds, ",")
	if got != "If,Var,Stmt,Out,Val" {
		t.Errorf("walk order = %s", got)
	}
}
