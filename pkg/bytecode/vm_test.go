package bytecode

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/wayuto/alum/pkg/ast"
	"github.com/wayuto/alum/pkg/value"
)

// Helper to create a chunk with code
func chunkWithCode(code ...byte) *Chunk {
	c := NewChunk()
	c.Code = code
	return c
}

// runBody compiles and runs a program tree, returning what it printed.
func runBody(t *testing.T, body ...ast.Expr) (string, value.Literal) {
	t.Helper()
	chunk, maxSlot, _ := compileBody(t, Options{}, body...)
	var buf bytes.Buffer
	result, err := NewMachine(chunk, maxSlot, WithOutput(&buf)).Run()
	if err != nil {
		t.Fatalf("Run failed: %v\n%s", err, chunk.Disassemble())
	}
	return buf.String(), result
}

func runtimeErr(t *testing.T, err error) *RuntimeError {
	t.Helper()
	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RuntimeError, got %v", err)
	}
	return re
}

func TestVMOut(t *testing.T) {
	got, _ := runBody(t, out(num(5)))
	if got != "5\n" {
		t.Errorf("output = %q, want %q", got, "5\n")
	}
}

func TestVMOutFormats(t *testing.T) {
	got, _ := runBody(t,
		out(num(2.5)),
		out(boolean(false)),
		out(str("hi")),
		out(&ast.Val{Value: value.Void}),
		out(bin("+", str("a"), str("b"))),
	)
	want := "2.5\nfalse\nhi\nnull\nab\n"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestVMArithmetic(t *testing.T) {
	tests := []struct {
		name string
		expr ast.Expr
		want string
	}{
		{"add", bin("+", num(2), num(3)), "5"},
		{"sub order", bin("-", num(10), num(4)), "6"},
		{"mul", bin("*", num(6), num(7)), "42"},
		{"div order", bin("/", num(9), num(2)), "4.5"},
		{"div by zero", bin("/", num(1), num(0)), "+Inf"},
		{"neg", &ast.UnaryOp{Operator: "-", Argument: num(3)}, "-3"},
		{"pos", &ast.UnaryOp{Operator: "+", Argument: num(3)}, "3"},
		{"lt", bin("<", num(1), num(2)), "true"},
		{"ge", bin(">=", num(1), num(2)), "false"},
		{"le equal", bin("<=", num(2), num(2)), "true"},
		{"gt strings", bin(">", str("b"), str("a")), "true"},
		{"eq", bin("==", num(1), num(1)), "true"},
		{"eq kinds differ", bin("==", num(1), str("1")), "false"},
		{"ne", bin("!=", str("a"), str("b")), "true"},
		{"not zero", &ast.UnaryOp{Operator: "!", Argument: num(0)}, "true"},
		{"not string", &ast.UnaryOp{Operator: "!", Argument: str("x")}, "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := runBody(t, out(tt.expr))
			if got != tt.want+"\n" {
				t.Errorf("output = %q, want %q", got, tt.want+"\n")
			}
		})
	}
}

func TestVMBranch(t *testing.T) {
	for _, cond := range []bool{true, false} {
		got, _ := runBody(t,
			&ast.If{Condition: boolean(cond), Then: block(out(str("A"))), Else: block(out(str("B")))},
		)
		want := "B\n"
		if cond {
			want = "A\n"
		}
		if got != want {
			t.Errorf("cond %v: output = %q, want %q", cond, got, want)
		}
	}
}

func TestVMBoundedLoop(t *testing.T) {
	got, _ := runBody(t,
		let("i", num(2)),
		&ast.While{
			Condition: bin("!=", ref("i"), num(0)),
			Body:      block(out(ref("i")), &ast.UnaryOp{Operator: "--", Argument: ref("i")}),
		},
	)
	if got != "2\n1\n" {
		t.Errorf("output = %q, want %q", got, "2\n1\n")
	}
}

func TestVMShadowing(t *testing.T) {
	got, _ := runBody(t,
		let("x", num(1)),
		block(let("x", num(2)), out(ref("x"))),
		out(ref("x")),
	)
	if got != "2\n1\n" {
		t.Errorf("output = %q", got)
	}
}

func TestVMIncDecAsValue(t *testing.T) {
	got, _ := runBody(t,
		let("x", num(1)),
		let("y", &ast.UnaryOp{Operator: "++", Argument: ref("x")}),
		out(ref("x")),
		out(ref("y")),
	)
	if got != "2\n2\n" {
		t.Errorf("output = %q", got)
	}
}

func TestVMFunctionCall(t *testing.T) {
	got, _ := runBody(t,
		fun("add", []string{"a", "b"}, ret(bin("-", ref("a"), ref("b")))),
		out(call("add", num(10), num(3))),
	)
	if got != "7\n" {
		t.Errorf("output = %q, want %q (arguments bound in declaration order)", got, "7\n")
	}
}

func TestVMRecursion(t *testing.T) {
	got, _ := runBody(t,
		fun("fact", []string{"n"},
			&ast.If{Condition: bin("<=", ref("n"), num(1)), Then: block(ret(num(1)))},
			ret(bin("*", ref("n"), call("fact", bin("-", ref("n"), num(1))))),
		),
		out(call("fact", num(5))),
	)
	if got != "120\n" {
		t.Errorf("output = %q, want %q", got, "120\n")
	}
}

func TestVMImplicitReturnAndDiscardedCall(t *testing.T) {
	got, _ := runBody(t,
		fun("hello", nil, out(str("hi"))),
		call("hello"),
		out(call("hello")),
	)
	if got != "hi\nhi\nnull\n" {
		t.Errorf("output = %q", got)
	}
}

func TestVMCallFrameRoundTrip(t *testing.T) {
	chunk, maxSlot, _ := compileBody(t, Options{},
		let("x", num(1)),
		fun("id", []string{"a"}, let("tmp", ref("a")), ret(ref("tmp"))),
		out(call("id", num(4))),
	)
	var buf bytes.Buffer
	m := NewMachine(chunk, maxSlot, WithOutput(&buf))

	calls, rets := 0, 0
	returnIP := -1
	for steps := 0; steps < 100; steps++ {
		ip := m.IP()
		op := Opcode(chunk.Code[ip])
		slots, stack := m.SlotCount(), m.StackDepth()

		done, err := m.Step()
		if err != nil {
			t.Fatalf("Step failed: %v", err)
		}

		switch {
		case op == OpCall:
			calls++
			returnIP = ip + OpCall.InstructionLen()
			if m.FrameDepth() != 1 {
				t.Errorf("FrameDepth after CALL = %d, want 1", m.FrameDepth())
			}
			if m.SlotCount() != slots+1 {
				t.Errorf("SlotCount after CALL = %d, want %d", m.SlotCount(), slots+1)
			}
			if m.StackDepth() != stack-1 {
				t.Errorf("StackDepth after CALL = %d, want %d", m.StackDepth(), stack-1)
			}
			if m.IP() != int(chunk.Functions[0].Address) {
				t.Errorf("IP after CALL = %04X, want %04X", m.IP(), chunk.Functions[0].Address)
			}
		case op == OpRet && m.FrameDepth() == 0 && !done:
			rets++
			if m.IP() != returnIP {
				t.Errorf("IP after RET = %04X, want %04X (the instruction after CALL)", m.IP(), returnIP)
			}
			if m.SlotCount() != maxSlot {
				t.Errorf("SlotCount after RET = %d, want %d", m.SlotCount(), maxSlot)
			}
			if m.StackDepth() != 1 {
				t.Errorf("StackDepth after RET = %d, want 1", m.StackDepth())
			}
		}
		if done {
			break
		}
	}

	if calls != 1 || rets != 1 {
		t.Errorf("saw %d calls and %d returns, want 1 and 1", calls, rets)
	}
	if buf.String() != "4\n" {
		t.Errorf("output = %q", buf.String())
	}
	if m.Slot(0) != value.Number(1) {
		t.Errorf("top-level x = %v, want 1", m.Slot(0))
	}
}

func TestVMInfiniteLoopKeepsRunning(t *testing.T) {
	chunk, maxSlot, _ := compileBody(t, Options{},
		&ast.While{Condition: boolean(true), Body: block()},
	)
	m := NewMachine(chunk, maxSlot)
	// Three instructions per iteration
	for i := 0; i < 9999; i++ {
		done, err := m.Step()
		if err != nil {
			t.Fatalf("Step failed: %v", err)
		}
		if done {
			t.Fatalf("infinite loop halted after %d steps", i)
		}
	}
	if m.StackDepth() != 0 {
		t.Errorf("loop leaks stack: depth %d", m.StackDepth())
	}
}

func TestVMExitResult(t *testing.T) {
	got, result := runBody(t,
		out(num(1)),
		&ast.Exit{Code: num(3)},
		out(num(2)),
	)
	if got != "1\n" {
		t.Errorf("output = %q, want only the output before exit", got)
	}
	if result != value.Number(3) {
		t.Errorf("result = %v, want 3", result)
	}

	_, result = runBody(t, out(num(1)))
	if result != value.Void {
		t.Errorf("result of a plain run = %#v, want null", result)
	}

	// A bare exit inside a call must not pick up the caller's pending operand.
	_, result = runBody(t,
		fun("stop", nil, &ast.Exit{}),
		out(bin("+", num(7), call("stop"))),
	)
	if result != value.Void {
		t.Errorf("result of a bare exit = %#v, want null", result)
	}
}

func TestVMInput(t *testing.T) {
	chunk, maxSlot, _ := compileBody(t, Options{},
		&ast.In{Name: "a"},
		&ast.In{Name: "b"},
		&ast.In{Name: "c"},
		out(bin("+", ref("a"), num(1))),
		out(ref("b")),
		out(ref("c")),
	)
	var buf bytes.Buffer
	m := NewMachine(chunk, maxSlot, WithOutput(&buf), WithInput(strings.NewReader("42\nhello")))
	if _, err := m.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if buf.String() != "43\nhello\nnull\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestVMTopLevelReturnStops(t *testing.T) {
	c := chunkWithCode(byte(OpLoadConst), 0, byte(OpRet), byte(OpLoadConst), 0, byte(OpOut))
	c.Constants = []value.Literal{value.Number(9)}
	var buf bytes.Buffer
	result, err := NewMachine(c, 0, WithOutput(&buf)).Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result != value.Number(9) || buf.Len() != 0 {
		t.Errorf("result = %v, output = %q", result, buf.String())
	}
}

func TestVMSlotGrowth(t *testing.T) {
	c := chunkWithCode(
		byte(OpLoadVar), 5, // never stored: null
		byte(OpLoadConst), 0,
		byte(OpStoreVar), 3,
		byte(OpHalt),
	)
	c.Constants = []value.Literal{value.Number(1)}
	m := NewMachine(c, 0)
	if _, err := m.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if m.SlotCount() != 4 {
		t.Errorf("SlotCount = %d, want 4", m.SlotCount())
	}
	if m.Result() != value.Void {
		t.Errorf("result = %#v, want null from the unset slot", m.Result())
	}
}

func TestVMRunningOffTheEndHalts(t *testing.T) {
	c := chunkWithCode(byte(OpLoadConst), 0)
	c.Constants = []value.Literal{value.Str("end")}
	result, err := NewMachine(c, 0).Run()
	if err != nil || result != value.Str("end") {
		t.Errorf("Run = %v, %v", result, err)
	}
}

func TestVMErrors(t *testing.T) {
	tests := []struct {
		name    string
		code    []byte
		consts  []value.Literal
		kind    RuntimeErrorKind
		message string
	}{
		{
			name:    "unknown opcode",
			code:    []byte{0x00},
			kind:    UnknownOpcode,
			message: "0x00",
		},
		{
			name:    "unknown opcode after valid code",
			code:    []byte{byte(OpLoadConst), 0, 0xEE},
			consts:  []value.Literal{value.Number(1)},
			kind:    UnknownOpcode,
			message: "0xEE",
		},
		{
			name: "pop on empty stack",
			code: []byte{byte(OpPop)},
			kind: StackUnderflow,
		},
		{
			name:   "binary op with one operand",
			code:   []byte{byte(OpLoadConst), 0, byte(OpAdd)},
			consts: []value.Literal{value.Number(1)},
			kind:   StackUnderflow,
		},
		{
			name: "call with missing arguments",
			code: []byte{byte(OpCall), 0x00, 0x04, 2, byte(OpHalt)},
			kind: StackUnderflow,
		},
		{
			name:   "number plus bool",
			code:   []byte{byte(OpLoadConst), 0, byte(OpLoadConst), 1, byte(OpAdd)},
			consts: []value.Literal{value.Number(1), value.Bool(true)},
			kind:   TypeMismatch,
		},
		{
			name:   "compare number with string",
			code:   []byte{byte(OpLoadConst), 0, byte(OpLoadConst), 1, byte(OpLt)},
			consts: []value.Literal{value.Number(1), value.Str("a")},
			kind:   TypeMismatch,
		},
		{
			name:   "increment a string",
			code:   []byte{byte(OpLoadConst), 0, byte(OpInc)},
			consts: []value.Literal{value.Str("a")},
			kind:   TypeMismatch,
		},
		{
			name: "constant index out of range",
			code: []byte{byte(OpLoadConst), 3},
			kind: BadOperand,
		},
		{
			name: "truncated operand",
			code: []byte{byte(OpJump), 0x00},
			kind: BadOperand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := chunkWithCode(tt.code...)
			c.Constants = tt.consts
			_, err := NewMachine(c, 0).Run()
			re := runtimeErr(t, err)
			if re.Kind != tt.kind {
				t.Errorf("Kind = %d, want %d (%v)", re.Kind, tt.kind, err)
			}
			if tt.message != "" && !strings.Contains(err.Error(), tt.message) {
				t.Errorf("error %q does not mention %q", err, tt.message)
			}
		})
	}
}

func TestVMOutputSurvivesError(t *testing.T) {
	chunk, maxSlot, _ := compileBody(t, Options{},
		out(str("before")),
		out(bin("*", str("a"), num(2))),
	)
	var buf bytes.Buffer
	_, err := NewMachine(chunk, maxSlot, WithOutput(&buf)).Run()
	runtimeErr(t, err)
	if buf.String() != "before\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestVMErrorReportsSourceLine(t *testing.T) {
	chunk, maxSlot, _ := compileBody(t, Options{},
		&ast.VarDecl{Name: "s", Value: str("a"), Pos: ast.Position{Line: 1, Column: 1}},
		&ast.Out{Value: &ast.UnaryOp{Operator: "-", Argument: ref("s")}, Pos: ast.Position{Line: 2, Column: 1}},
	)
	_, err := NewMachine(chunk, maxSlot).Run()
	re := runtimeErr(t, err)
	if re.Line != 2 {
		t.Errorf("Line = %d, want 2 (%v)", re.Line, err)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("message %q lacks the line", err)
	}
}

func TestVMErrorIsSticky(t *testing.T) {
	m := NewMachine(chunkWithCode(byte(OpPop)), 0)
	_, first := m.Step()
	done, second := m.Step()
	if first == nil || second != first || !done {
		t.Errorf("Step after error = %v, %v; first error %v", done, second, first)
	}
}

func TestVMMachineReused(t *testing.T) {
	m := NewMachine(chunkWithCode(byte(OpHalt)), 0)
	if _, err := m.Run(); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	_, err := m.Run()
	if re := runtimeErr(t, err); re.Kind != MachineReused {
		t.Errorf("Kind = %d, want MachineReused", re.Kind)
	}
}

func TestVMTrace(t *testing.T) {
	chunk, maxSlot, _ := compileBody(t, Options{}, out(num(1)))
	var buf bytes.Buffer
	m := NewMachine(chunk, maxSlot, WithOutput(&buf), WithTrace(true))
	if !m.Trace {
		t.Fatal("WithTrace did not enable tracing")
	}
	if _, err := m.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if buf.String() != "1\n" {
		t.Errorf("tracing changed program output: %q", buf.String())
	}
}
