package bytecode

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/wayuto/alum/pkg/ast"
	"github.com/wayuto/alum/pkg/value"
)

var compilerLog = commonlog.GetLogger("alum.compiler")

// ErrCompilerReused is returned when Compile is called twice on one Compiler.
var ErrCompilerReused = errors.New("bytecode: compiler instance already used")

// Options tune a compilation.
type Options struct {
	// Strict turns dropped label/goto statements into compile errors.
	Strict bool
}

// scope maps a variable name to its slot.
type scope map[string]uint8

// frameState is the scope stack and slot counter of the code being compiled:
// the top level, or one routine body. Slots are never reclaimed on scope
// exit.
type frameState struct {
	routine  string // "" at top level
	scopes   []scope
	nextSlot int
}

type function struct {
	addr   int
	params int
}

// pendingCall is a CALL emitted before its routine was declared.
type pendingCall struct {
	placeholder int
	name        string
	argc        int
	pos         ast.Position
}

var binaryOps = map[string]Opcode{
	"+":  OpAdd,
	"-":  OpSub,
	"*":  OpMul,
	"/":  OpDiv,
	"==": OpEq,
	"!=": OpNe,
	">":  OpGt,
	">=": OpGe,
	"<":  OpLt,
	"<=": OpLe,
}

var unaryOps = map[string]Opcode{
	"!": OpLogNot,
	"-": OpNeg,
	"+": OpPos,
}

// Compiler converts a program tree to a single Chunk. A Compiler is
// single-use: its scope stack and slot counter belong to one compilation.
type Compiler struct {
	chunk *Chunk
	opts  Options
	frame *frameState

	functions map[string]*function
	pending   []pendingCall

	warnings []Diagnostic
	used     bool
}

// NewCompiler creates a compiler for one compilation.
func NewCompiler(opts Options) *Compiler {
	return &Compiler{
		chunk:     NewChunk(),
		opts:      opts,
		frame:     &frameState{scopes: []scope{{}}},
		functions: make(map[string]*function),
	}
}

// Compile lowers the program body to bytecode. It returns the chunk and the
// number of top-level slots the machine must preallocate. The first error
// aborts compilation.
func (c *Compiler) Compile(prog *ast.Program) (*Chunk, int, error) {
	if c.used {
		return nil, 0, ErrCompilerReused
	}
	c.used = true

	for _, n := range prog.Body {
		if err := c.compileStatement(n); err != nil {
			return nil, 0, err
		}
	}
	c.chunk.Emit(OpHalt)

	if len(c.pending) > 0 {
		p := c.pending[0]
		return nil, 0, &CompileError{
			Kind: UndefinedFunction,
			Name: p.name,
			Pos:  p.pos,
			Msg:  fmt.Sprintf("Function '%s' has not been defined", p.name),
		}
	}
	if len(c.chunk.Code) > MaxCodeSize {
		return nil, 0, &CompileError{
			Kind: LimitExceeded,
			Msg:  fmt.Sprintf("program needs %d bytes of code, limit is %d", len(c.chunk.Code), MaxCodeSize),
		}
	}

	return c.chunk, c.frame.nextSlot, nil
}

// Warnings returns the non-fatal diagnostics recorded while compiling.
func (c *Compiler) Warnings() []Diagnostic {
	return c.warnings
}

// ---------------------------------------------------------------------------
// Scopes and slots
// ---------------------------------------------------------------------------

func (c *Compiler) beginScope() {
	c.frame.scopes = append(c.frame.scopes, scope{})
}

func (c *Compiler) endScope() {
	c.frame.scopes = c.frame.scopes[:len(c.frame.scopes)-1]
}

// declare allocates the next slot in the innermost scope. Redeclaring a name
// in the same scope rebinds it to the new slot.
func (c *Compiler) declare(name string, pos ast.Position) (uint8, error) {
	if c.frame.nextSlot >= MaxSlots {
		return 0, &CompileError{
			Kind: LimitExceeded,
			Name: name,
			Pos:  pos,
			Msg:  fmt.Sprintf("too many variables: '%s' would need slot %d", name, c.frame.nextSlot),
		}
	}
	slot := uint8(c.frame.nextSlot)
	c.frame.nextSlot++
	c.frame.scopes[len(c.frame.scopes)-1][name] = slot
	if c.frame.routine == "" {
		c.chunk.VarNames = append(c.chunk.VarNames, name)
	}
	return slot, nil
}

// resolve searches the scope stack innermost first.
func (c *Compiler) resolve(name string) (uint8, bool) {
	for i := len(c.frame.scopes) - 1; i >= 0; i-- {
		if slot, ok := c.frame.scopes[i][name]; ok {
			return slot, true
		}
	}
	return 0, false
}

func undefinedVariable(name string, pos ast.Position) error {
	return &CompileError{
		Kind: UndefinedVariable,
		Name: name,
		Pos:  pos,
		Msg:  fmt.Sprintf("Variable '%s' has not been defined", name),
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// compileStatement compiles a node whose value, if any, is discarded.
func (c *Compiler) compileStatement(n ast.Expr) error {
	c.mark(n.Position())

	switch n := n.(type) {
	case *ast.Stmt:
		c.beginScope()
		defer c.endScope()
		return c.compileBody(n.Body)

	case *ast.VarDecl:
		if err := c.compileExpr(n.Value); err != nil {
			return err
		}
		slot, err := c.declare(n.Name, n.Pos)
		if err != nil {
			return err
		}
		c.chunk.EmitWithOperand(OpStoreVar, slot)
		return nil

	case *ast.VarMod:
		_, err := c.compileAssign(n)
		return err

	case *ast.UnaryOp:
		if isIncDec(n.Operator) {
			return c.compileIncDec(n, false)
		}
		return c.compileDiscarded(n)

	case *ast.Out:
		if err := c.compileExpr(n.Value); err != nil {
			return err
		}
		c.chunk.Emit(OpOut)
		return nil

	case *ast.In:
		slot, ok := c.resolve(n.Name)
		if !ok {
			var err error
			if slot, err = c.declare(n.Name, n.Pos); err != nil {
				return err
			}
		}
		c.chunk.Emit(OpIn)
		c.chunk.EmitWithOperand(OpStoreVar, slot)
		return nil

	case *ast.If:
		return c.compileIf(n)

	case *ast.While:
		return c.compileWhile(n)

	case *ast.FuncDecl:
		return c.compileFuncDecl(n)

	case *ast.Return:
		if n.Value != nil {
			if err := c.compileExpr(n.Value); err != nil {
				return err
			}
		} else if err := c.emitConstant(value.Void, n.Pos); err != nil {
			return err
		}
		c.chunk.Emit(OpRet)
		return nil

	case *ast.Exit:
		// HALT takes the top of the stack, which may hold a caller's operand.
		if n.Code != nil {
			if err := c.compileExpr(n.Code); err != nil {
				return err
			}
		} else if err := c.emitConstant(value.Void, n.Pos); err != nil {
			return err
		}
		c.chunk.Emit(OpHalt)
		return nil

	case *ast.Label, *ast.Goto:
		return c.dropGoto(n)

	case *ast.Val, *ast.Var, *ast.BinOp, *ast.FuncCall:
		return c.compileDiscarded(n)

	default:
		return unknownNode(n)
	}
}

// compileBody compiles a statement list in the current scope.
func (c *Compiler) compileBody(body []ast.Expr) error {
	for _, n := range body {
		if err := c.compileStatement(n); err != nil {
			return err
		}
	}
	return nil
}

// compileScoped compiles an if/else arm or loop body inside a new scope. A
// braced block shares that scope rather than opening a second one.
func (c *Compiler) compileScoped(body ast.Expr) error {
	c.beginScope()
	defer c.endScope()
	if block, ok := body.(*ast.Stmt); ok {
		c.mark(block.Pos)
		return c.compileBody(block.Body)
	}
	return c.compileStatement(body)
}

// compileDiscarded evaluates an expression for its effects and pops the result.
func (c *Compiler) compileDiscarded(n ast.Expr) error {
	if err := c.compileExpr(n); err != nil {
		return err
	}
	c.chunk.Emit(OpPop)
	return nil
}

// compileAssign stores a new value into an existing binding.
func (c *Compiler) compileAssign(n *ast.VarMod) (uint8, error) {
	if err := c.compileExpr(n.Value); err != nil {
		return 0, err
	}
	slot, ok := c.resolve(n.Name)
	if !ok {
		return 0, &CompileError{
			Kind: UndefinedAssignment,
			Name: n.Name,
			Pos:  n.Pos,
			Msg:  fmt.Sprintf("Variable '%s' has not been defined", n.Name),
		}
	}
	c.chunk.EmitWithOperand(OpStoreVar, slot)
	return slot, nil
}

// compileIncDec emits the fused load/step/store sequence. When the result is
// used as a value the updated slot is loaded again.
func (c *Compiler) compileIncDec(n *ast.UnaryOp, wantValue bool) error {
	v, ok := n.Argument.(*ast.Var)
	if !ok {
		return &CompileError{
			Kind: InvalidOperand,
			Name: n.Operator,
			Pos:  n.Pos,
			Msg:  fmt.Sprintf("'%s' requires a variable operand, got %s", n.Operator, n.Argument.Kind()),
		}
	}
	slot, ok := c.resolve(v.Name)
	if !ok {
		return undefinedVariable(v.Name, v.Pos)
	}

	c.chunk.EmitWithOperand(OpLoadVar, slot)
	if n.Operator == "++" {
		c.chunk.Emit(OpInc)
	} else {
		c.chunk.Emit(OpDec)
	}
	c.chunk.EmitWithOperand(OpStoreVar, slot)
	if wantValue {
		c.chunk.EmitWithOperand(OpLoadVar, slot)
	}
	return nil
}

// compileIf emits:
//
//	<cond> JUMP_IF_FALSE else <then> [JUMP end] else: [<else>] end:
func (c *Compiler) compileIf(n *ast.If) error {
	if err := c.compileExpr(n.Condition); err != nil {
		return err
	}

	falseJump := c.chunk.EmitJump(OpJumpIfFalse)
	if err := c.compileScoped(n.Then); err != nil {
		return err
	}

	if n.Else == nil {
		return c.patch(falseJump, n.Pos)
	}

	// Jump over the else arm
	endJump := c.chunk.EmitJump(OpJump)
	if err := c.patch(falseJump, n.Pos); err != nil {
		return err
	}
	if err := c.compileScoped(n.Else); err != nil {
		return err
	}
	return c.patch(endJump, n.Pos)
}

// compileWhile emits:
//
//	start: <cond> JUMP_IF_FALSE exit <body> JUMP start exit:
func (c *Compiler) compileWhile(n *ast.While) error {
	loopStart := c.chunk.CurrentOffset()

	if err := c.compileExpr(n.Condition); err != nil {
		return err
	}
	exitJump := c.chunk.EmitJump(OpJumpIfFalse)

	if err := c.compileScoped(n.Body); err != nil {
		return err
	}

	// Jump back to condition
	if err := c.chunk.EmitLoop(loopStart); err != nil {
		return limitError(err, n.Pos)
	}
	return c.patch(exitJump, n.Pos)
}

// compileFuncDecl compiles a routine body in place, behind a jump that skips
// it during straight-line execution. Parameters take slots 0..n-1 of a fresh
// frame; the body cannot see top-level variables.
func (c *Compiler) compileFuncDecl(n *ast.FuncDecl) error {
	if _, exists := c.functions[n.Name]; exists {
		return &CompileError{
			Kind: Unsupported,
			Name: n.Name,
			Pos:  n.Pos,
			Msg:  fmt.Sprintf("Function '%s' is already defined", n.Name),
		}
	}
	if len(n.Params) > MaxArgs {
		return &CompileError{
			Kind: LimitExceeded,
			Name: n.Name,
			Pos:  n.Pos,
			Msg:  fmt.Sprintf("Function '%s' declares %d parameters, limit is %d", n.Name, len(n.Params), MaxArgs),
		}
	}

	skipJump := c.chunk.EmitJump(OpJump)
	addr := c.chunk.CurrentOffset()
	if addr >= MaxCodeSize {
		return limitError(ErrCodeTooLarge, n.Pos)
	}

	fn := &function{addr: addr, params: len(n.Params)}
	c.functions[n.Name] = fn
	info := len(c.chunk.Functions)
	c.chunk.Functions = append(c.chunk.Functions, FunctionInfo{
		Name:    n.Name,
		Address: uint16(addr),
		Params:  uint8(len(n.Params)),
	})
	if err := c.resolvePending(n.Name, fn); err != nil {
		return err
	}

	outer := c.frame
	c.frame = &frameState{routine: n.Name, scopes: []scope{{}}}
	for _, p := range n.Params {
		if _, err := c.declare(p, n.Pos); err != nil {
			return err
		}
	}
	if err := c.compileScoped(n.Body); err != nil {
		return err
	}

	// Implicit "return null"
	if err := c.emitConstant(value.Void, n.Pos); err != nil {
		return err
	}
	c.chunk.Emit(OpRet)
	c.chunk.Functions[info].End = uint16(min(c.chunk.CurrentOffset(), MaxCodeSize-1))
	c.frame = outer

	return c.patch(skipJump, n.Pos)
}

// resolvePending backpatches calls that appeared before the declaration.
func (c *Compiler) resolvePending(name string, fn *function) error {
	kept := c.pending[:0]
	for _, p := range c.pending {
		if p.name != name {
			kept = append(kept, p)
			continue
		}
		if p.argc != fn.params {
			return arityError(name, fn.params, p.argc, p.pos)
		}
		if err := c.chunk.PatchJumpTo(p.placeholder, fn.addr); err != nil {
			return limitError(err, p.pos)
		}
	}
	c.pending = kept
	return nil
}

func (c *Compiler) dropGoto(n ast.Expr) error {
	if c.opts.Strict {
		return &CompileError{
			Kind: Unsupported,
			Name: n.Kind(),
			Pos:  n.Position(),
			Msg:  "'goto' isn't available in bytecode mode",
		}
	}
	d := Diagnostic{Pos: n.Position(), Msg: fmt.Sprintf("'goto' isn't available in bytecode mode; %s dropped", n.Kind())}
	c.warnings = append(c.warnings, d)
	compilerLog.Warning(d.String())
	return nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// compileExpr compiles an expression, leaving exactly one value on the stack.
func (c *Compiler) compileExpr(n ast.Expr) error {
	switch n := n.(type) {
	case *ast.Val:
		return c.emitConstant(n.Value, n.Pos)

	case *ast.Var:
		slot, ok := c.resolve(n.Name)
		if !ok {
			return undefinedVariable(n.Name, n.Pos)
		}
		c.chunk.EmitWithOperand(OpLoadVar, slot)
		return nil

	case *ast.VarMod:
		slot, err := c.compileAssign(n)
		if err != nil {
			return err
		}
		c.chunk.EmitWithOperand(OpLoadVar, slot)
		return nil

	case *ast.BinOp:
		op, ok := binaryOps[n.Operator]
		if !ok {
			return invalidOperator(n.Operator, n.Pos)
		}
		if err := c.compileExpr(n.Left); err != nil {
			return err
		}
		if err := c.compileExpr(n.Right); err != nil {
			return err
		}
		c.chunk.Emit(op)
		return nil

	case *ast.UnaryOp:
		if isIncDec(n.Operator) {
			return c.compileIncDec(n, true)
		}
		op, ok := unaryOps[n.Operator]
		if !ok {
			return invalidOperator(n.Operator, n.Pos)
		}
		if err := c.compileExpr(n.Argument); err != nil {
			return err
		}
		c.chunk.Emit(op)
		return nil

	case *ast.FuncCall:
		return c.compileCall(n)

	case *ast.Stmt, *ast.VarDecl, *ast.Out, *ast.In, *ast.If, *ast.While,
		*ast.FuncDecl, *ast.Return, *ast.Exit, *ast.Label, *ast.Goto:
		return &CompileError{
			Kind: InvalidOperand,
			Name: n.Kind(),
			Pos:  n.Position(),
			Msg:  fmt.Sprintf("%s cannot be used as a value", n.Kind()),
		}

	default:
		return unknownNode(n)
	}
}

// compileCall pushes the arguments left to right and emits CALL. A call to a
// routine not yet declared gets a placeholder address patched later.
func (c *Compiler) compileCall(n *ast.FuncCall) error {
	if len(n.Args) > MaxArgs {
		return &CompileError{
			Kind: LimitExceeded,
			Name: n.Name,
			Pos:  n.Pos,
			Msg:  fmt.Sprintf("call to '%s' passes %d arguments, limit is %d", n.Name, len(n.Args), MaxArgs),
		}
	}
	for _, arg := range n.Args {
		if err := c.compileExpr(arg); err != nil {
			return err
		}
	}

	argc := len(n.Args)
	if fn, ok := c.functions[n.Name]; ok {
		if fn.params != argc {
			return arityError(n.Name, fn.params, argc, n.Pos)
		}
		c.chunk.EmitCall(uint16(fn.addr), uint8(argc))
		return nil
	}

	placeholder := c.chunk.EmitCall(0xFFFF, uint8(argc))
	c.pending = append(c.pending, pendingCall{
		placeholder: placeholder,
		name:        n.Name,
		argc:        argc,
		pos:         n.Pos,
	})
	return nil
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (c *Compiler) emitConstant(v value.Literal, pos ast.Position) error {
	idx, err := c.chunk.AddConstant(v)
	if err != nil {
		return limitError(err, pos)
	}
	c.chunk.EmitWithOperand(OpLoadConst, idx)
	return nil
}

// patch points a placeholder at the current offset.
func (c *Compiler) patch(placeholder int, pos ast.Position) error {
	if err := c.chunk.PatchJump(placeholder); err != nil {
		return limitError(err, pos)
	}
	return nil
}

// mark records the source position of the next instruction.
func (c *Compiler) mark(pos ast.Position) {
	if pos.Known() {
		c.chunk.AddSourceLocation(uint32(c.chunk.CurrentOffset()), uint32(pos.Line), uint16(pos.Column))
	}
}

func isIncDec(op string) bool {
	return op == "++" || op == "--"
}

func unknownNode(n ast.Expr) error {
	return &CompileError{
		Kind: UnknownNode,
		Name: n.Kind(),
		Pos:  n.Position(),
		Msg:  fmt.Sprintf("Unknown node type: %s", n.Kind()),
	}
}

func invalidOperator(op string, pos ast.Position) error {
	return &CompileError{
		Kind: InvalidOperand,
		Name: op,
		Pos:  pos,
		Msg:  fmt.Sprintf("unknown operator '%s'", op),
	}
}

func arityError(name string, want, got int, pos ast.Position) error {
	return &CompileError{
		Kind: ArityMismatch,
		Name: name,
		Pos:  pos,
		Msg:  fmt.Sprintf("Function '%s' takes %d arguments, got %d", name, want, got),
	}
}

func limitError(err error, pos ast.Position) error {
	return &CompileError{Kind: LimitExceeded, Pos: pos, Msg: err.Error()}
}
