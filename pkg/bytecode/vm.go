package bytecode

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/wayuto/alum/pkg/value"
)

var machineLog = commonlog.GetLogger("alum.vm")

// Frame is an active routine call on the call stack.
type Frame struct {
	ReturnIP int // offset of the instruction after CALL
	Base     int // caller's base slot
}

// Option configures a Machine.
type Option func(*Machine)

// WithOutput sets where OUT writes. The default is standard output.
func WithOutput(w io.Writer) Option {
	return func(m *Machine) { m.out = w }
}

// WithInput sets where IN reads lines from. The default is standard input.
func WithInput(r io.Reader) Option {
	return func(m *Machine) { m.in = bufio.NewReader(r) }
}

// WithTrace logs every executed instruction at debug level.
func WithTrace(on bool) Option {
	return func(m *Machine) { m.Trace = on }
}

// Machine executes one compiled chunk. A Machine is single-use and must not
// be driven from more than one goroutine.
type Machine struct {
	chunk *Chunk
	ip    int

	stack  []value.Literal // operand stack
	slots  []value.Literal // variable slots of every active frame
	base   int             // first slot of the current frame
	frames []Frame

	out io.Writer
	in  *bufio.Reader

	started bool
	done    bool
	result  value.Literal
	err     error

	// Debug/trace mode
	Trace bool
}

// NewMachine prepares a machine for chunk, with maxSlot top-level slots
// preallocated to null.
func NewMachine(chunk *Chunk, maxSlot int, opts ...Option) *Machine {
	m := &Machine{
		chunk:  chunk,
		stack:  make([]value.Literal, 0, 64),
		slots:  make([]value.Literal, maxSlot),
		frames: make([]Frame, 0, 16),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.out == nil {
		m.out = os.Stdout
	}
	if m.in == nil {
		m.in = bufio.NewReader(os.Stdin)
	}
	return m
}

// Run executes until HALT, a top-level RET, the end of the code or a fatal
// error. It returns the program result: the value on top of the stack when
// execution stopped, or null. A Machine can only be run once.
func (m *Machine) Run() (value.Literal, error) {
	if m.started {
		return value.Void, &RuntimeError{Kind: MachineReused, IP: m.ip, Msg: "machine has already been run"}
	}
	for {
		done, err := m.Step()
		if err != nil {
			return value.Void, err
		}
		if done {
			return m.result, nil
		}
	}
}

// Step executes a single instruction and reports whether the run is over.
// After a fatal error every further Step returns the same error.
func (m *Machine) Step() (bool, error) {
	m.started = true
	if m.err != nil {
		return true, m.err
	}
	if m.done {
		return true, nil
	}
	if err := m.step(); err != nil {
		m.err = err
		m.done = true
		return true, err
	}
	return m.done, nil
}

// IP returns the offset of the next instruction.
func (m *Machine) IP() int { return m.ip }

// StackDepth returns the number of values on the operand stack.
func (m *Machine) StackDepth() int { return len(m.stack) }

// SlotCount returns the length of the slot array.
func (m *Machine) SlotCount() int { return len(m.slots) }

// FrameDepth returns the number of active routine calls.
func (m *Machine) FrameDepth() int { return len(m.frames) }

// Slot returns the value of a top-level slot.
func (m *Machine) Slot(i int) value.Literal {
	if i < 0 || i >= len(m.slots) {
		return value.Void
	}
	return m.slots[i]
}

// Result returns the program result once the run is over.
func (m *Machine) Result() value.Literal { return m.result }

func (m *Machine) step() error {
	code := m.chunk.Code
	if m.ip >= len(code) {
		m.halt()
		return nil
	}

	start := m.ip
	op := Opcode(code[m.ip])
	if !op.IsValid() {
		return m.fail(UnknownOpcode, op, start, fmt.Sprintf("unknown opcode 0x%02X", byte(op)))
	}
	info := GetOpcodeInfo(op)
	if start+1+info.OperandLen > len(code) {
		return m.fail(BadOperand, op, start, fmt.Sprintf("%s operands run past the end of the code", info.Name))
	}
	m.ip += 1 + info.OperandLen

	if m.Trace {
		machineLog.Debugf("%04X  %-14s stack=%d slots=%d frames=%d", start, info.Name, len(m.stack), len(m.slots), len(m.frames))
	}

	switch op {
	case OpPop:
		if _, err := m.pop(op, start); err != nil {
			return err
		}

	case OpLoadConst:
		idx := int(code[start+1])
		if idx >= m.chunk.ConstantCount() {
			return m.fail(BadOperand, op, start, fmt.Sprintf("constant index %d out of range", idx))
		}
		m.push(m.chunk.GetConstant(uint8(idx)))

	case OpLoadVar:
		slot := m.base + int(code[start+1])
		if slot < len(m.slots) {
			m.push(m.slots[slot])
		} else {
			m.push(value.Void)
		}

	case OpStoreVar:
		v, err := m.pop(op, start)
		if err != nil {
			return err
		}
		slot := m.base + int(code[start+1])
		for slot >= len(m.slots) {
			m.slots = append(m.slots, value.Void)
		}
		m.slots[slot] = v

	case OpAdd, OpSub, OpMul, OpDiv:
		b, a, err := m.pop2(op, start)
		if err != nil {
			return err
		}
		r, err := arith(op, a, b)
		if err != nil {
			return m.fail(TypeMismatch, op, start, err.Error())
		}
		m.push(r)

	case OpNeg, OpPos, OpInc, OpDec:
		a, err := m.pop(op, start)
		if err != nil {
			return err
		}
		if !a.IsNumber() {
			return m.fail(TypeMismatch, op, start, fmt.Sprintf("%s expects a number, got %s", op, a.Kind))
		}
		switch op {
		case OpNeg:
			m.push(value.Number(-a.Num))
		case OpPos:
			m.push(a)
		case OpInc:
			m.push(value.Number(a.Num + 1))
		case OpDec:
			m.push(value.Number(a.Num - 1))
		}

	case OpEq, OpNe:
		b, a, err := m.pop2(op, start)
		if err != nil {
			return err
		}
		m.push(value.Bool(a.Equal(b) == (op == OpEq)))

	case OpLt, OpLe, OpGt, OpGe:
		b, a, err := m.pop2(op, start)
		if err != nil {
			return err
		}
		cmp, err := value.Compare(a, b)
		if err != nil {
			return m.fail(TypeMismatch, op, start, err.Error())
		}
		var r bool
		switch op {
		case OpLt:
			r = cmp < 0
		case OpLe:
			r = cmp <= 0
		case OpGt:
			r = cmp > 0
		case OpGe:
			r = cmp >= 0
		}
		m.push(value.Bool(r))

	case OpLogNot:
		a, err := m.pop(op, start)
		if err != nil {
			return err
		}
		m.push(value.Bool(!a.Truthy()))

	case OpOut:
		a, err := m.pop(op, start)
		if err != nil {
			return err
		}
		fmt.Fprintln(m.out, a.String())

	case OpIn:
		m.push(m.readLine())

	case OpJump:
		m.ip = int(binary.BigEndian.Uint16(code[start+1:]))

	case OpJumpIfFalse:
		cond, err := m.pop(op, start)
		if err != nil {
			return err
		}
		if !cond.Truthy() {
			m.ip = int(binary.BigEndian.Uint16(code[start+1:]))
		}

	case OpCall:
		target := int(binary.BigEndian.Uint16(code[start+1:]))
		argc := int(code[start+3])
		if len(m.stack) < argc {
			return m.fail(StackUnderflow, op, start, fmt.Sprintf("CALL needs %d arguments, stack holds %d", argc, len(m.stack)))
		}
		m.frames = append(m.frames, Frame{ReturnIP: m.ip, Base: m.base})

		// Arguments were pushed left to right, so the stack tail is already
		// in declaration order.
		args := m.stack[len(m.stack)-argc:]
		m.base = len(m.slots)
		m.slots = append(m.slots, args...)
		m.stack = m.stack[:len(m.stack)-argc]
		m.ip = target

	case OpRet:
		ret, err := m.pop(op, start)
		if err != nil {
			return err
		}
		if len(m.frames) == 0 {
			m.push(ret)
			m.halt()
			return nil
		}
		f := m.frames[len(m.frames)-1]
		m.frames = m.frames[:len(m.frames)-1]
		m.slots = m.slots[:m.base]
		m.ip = f.ReturnIP
		m.base = f.Base
		m.push(ret)

	case OpHalt:
		m.halt()
	}

	return nil
}

// halt ends the run, taking the top of the stack as the result.
func (m *Machine) halt() {
	m.done = true
	if n := len(m.stack); n > 0 {
		m.result = m.stack[n-1]
	} else {
		m.result = value.Void
	}
}

func (m *Machine) readLine() value.Literal {
	line, err := m.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return value.Void
	}
	return value.Parse(strings.TrimRight(line, "\r\n"))
}

func arith(op Opcode, a, b value.Literal) (value.Literal, error) {
	if op == OpAdd && a.Kind == value.KindStr && b.Kind == value.KindStr {
		return value.Str(a.Str + b.Str), nil
	}
	if !a.IsNumber() || !b.IsNumber() {
		return value.Void, fmt.Errorf("%s cannot combine %s with %s", op, a.Kind, b.Kind)
	}
	switch op {
	case OpAdd:
		return value.Number(a.Num + b.Num), nil
	case OpSub:
		return value.Number(a.Num - b.Num), nil
	case OpMul:
		return value.Number(a.Num * b.Num), nil
	default:
		return value.Number(a.Num / b.Num), nil
	}
}

// Stack helpers

func (m *Machine) push(v value.Literal) {
	m.stack = append(m.stack, v)
}

func (m *Machine) pop(op Opcode, at int) (value.Literal, error) {
	n := len(m.stack)
	if n == 0 {
		return value.Void, m.fail(StackUnderflow, op, at, fmt.Sprintf("%s on an empty stack", op))
	}
	v := m.stack[n-1]
	m.stack = m.stack[:n-1]
	return v, nil
}

// pop2 pops the right operand, then the left.
func (m *Machine) pop2(op Opcode, at int) (b, a value.Literal, err error) {
	if len(m.stack) < 2 {
		return value.Void, value.Void, m.fail(StackUnderflow, op, at, fmt.Sprintf("%s needs two operands, stack holds %d", op, len(m.stack)))
	}
	b, _ = m.pop(op, at)
	a, _ = m.pop(op, at)
	return b, a, nil
}

func (m *Machine) fail(kind RuntimeErrorKind, op Opcode, at int, msg string) error {
	line, _ := m.chunk.GetSourceLocation(uint32(at))
	return &RuntimeError{Kind: kind, Op: op, IP: at, Line: line, Msg: msg}
}
