package bytecode

import (
	"fmt"
	"sort"
)

// Opcode is one instruction byte. The bytes that follow it are fixed by the
// opcode alone; there are no prefixes and no variable-length encodings.
type Opcode byte

// The high nibble groups opcodes by family. 0x00 is unassigned so that
// zeroed code fails at the first instruction.
const (
	OpPop Opcode = 0x01

	OpLoadConst Opcode = 0x10 // <pool:u8>
	OpLoadVar   Opcode = 0x20 // <slot:u8>
	OpStoreVar  Opcode = 0x21 // <slot:u8>

	// Binary arithmetic pops the right operand first, then the left.
	OpAdd Opcode = 0x50
	OpSub Opcode = 0x51
	OpMul Opcode = 0x52
	OpDiv Opcode = 0x53
	OpNeg Opcode = 0x55
	OpPos Opcode = 0x56
	OpInc Opcode = 0x57
	OpDec Opcode = 0x58

	OpEq Opcode = 0x60
	OpNe Opcode = 0x61
	OpLt Opcode = 0x62
	OpLe Opcode = 0x63
	OpGt Opcode = 0x64
	OpGe Opcode = 0x65

	OpLogNot Opcode = 0x68

	OpOut Opcode = 0x70
	OpIn  Opcode = 0x71

	OpJump        Opcode = 0x80 // <addr:u16>
	OpJumpIfFalse Opcode = 0x82 // <addr:u16>
	OpCall        Opcode = 0x90 // <addr:u16> <argc:u8>

	OpRet  Opcode = 0xF0
	OpHalt Opcode = 0xFF
)

// Operands is the layout of the bytes following an opcode.
type Operands uint8

const (
	NoOperands Operands = iota
	PoolIndex           // u8 constant pool index
	SlotIndex           // u8 frame-relative slot
	Address             // u16 big-endian absolute code offset
	CallSite            // u16 big-endian address, then u8 argument count
)

// Width is the number of operand bytes in the layout.
func (o Operands) Width() int {
	switch o {
	case PoolIndex, SlotIndex:
		return 1
	case Address:
		return 2
	case CallSite:
		return 3
	default:
		return 0
	}
}

// OpcodeInfo describes an opcode's encoding and stack effect. Pops is -1
// when it depends on an operand.
type OpcodeInfo struct {
	Name       string
	Operands   Operands
	OperandLen int
	Pops       int
	Pushes     int
}

func describe(name string, operands Operands, pops, pushes int) OpcodeInfo {
	return OpcodeInfo{Name: name, Operands: operands, OperandLen: operands.Width(), Pops: pops, Pushes: pushes}
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpPop:       describe("POP", NoOperands, 1, 0),
	OpLoadConst: describe("LOAD_CONST", PoolIndex, 0, 1),
	OpLoadVar:   describe("LOAD_VAR", SlotIndex, 0, 1),
	OpStoreVar:  describe("STORE_VAR", SlotIndex, 1, 0),

	OpAdd: describe("ADD", NoOperands, 2, 1),
	OpSub: describe("SUB", NoOperands, 2, 1),
	OpMul: describe("MUL", NoOperands, 2, 1),
	OpDiv: describe("DIV", NoOperands, 2, 1),
	OpNeg: describe("NEG", NoOperands, 1, 1),
	OpPos: describe("POS", NoOperands, 1, 1),
	OpInc: describe("INC", NoOperands, 1, 1),
	OpDec: describe("DEC", NoOperands, 1, 1),

	OpEq: describe("EQ", NoOperands, 2, 1),
	OpNe: describe("NE", NoOperands, 2, 1),
	OpLt: describe("LT", NoOperands, 2, 1),
	OpLe: describe("LE", NoOperands, 2, 1),
	OpGt: describe("GT", NoOperands, 2, 1),
	OpGe: describe("GE", NoOperands, 2, 1),

	OpLogNot: describe("LOG_NOT", NoOperands, 1, 1),

	OpOut: describe("OUT", NoOperands, 1, 0),
	OpIn:  describe("IN", NoOperands, 0, 1),

	OpJump:        describe("JUMP", Address, 0, 0),
	OpJumpIfFalse: describe("JUMP_IF_FALSE", Address, 1, 0),
	OpCall:        describe("CALL", CallSite, -1, 0),

	// RET pops the return value and pushes it again in the caller.
	OpRet:  describe("RET", NoOperands, 1, 1),
	OpHalt: describe("HALT", NoOperands, 0, 0),
}

// GetOpcodeInfo returns the description of op. Undefined bytes get a name
// of the form UNKNOWN(0xNN) and no operands.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

func (op Opcode) IsValid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

func (op Opcode) String() string { return GetOpcodeInfo(op).Name }

func (op Opcode) OperandLen() int { return GetOpcodeInfo(op).OperandLen }

// InstructionLen is the opcode byte plus its operands.
func (op Opcode) InstructionLen() int { return 1 + op.OperandLen() }

// IsJump reports whether op carries a patchable jump address.
func (op Opcode) IsJump() bool { return GetOpcodeInfo(op).Operands == Address }

// IsTerminator reports whether op can end a run.
func (op Opcode) IsTerminator() bool { return op == OpRet || op == OpHalt }

// Opcodes lists the instruction set in encoding order.
func Opcodes() []Opcode {
	ops := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}
