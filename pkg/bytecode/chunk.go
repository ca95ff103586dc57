package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/wayuto/alum/pkg/value"
)

const (
	// MaxConstants is the constant pool capacity (one-byte index).
	MaxConstants = 256

	// MaxSlots is the number of slot indices addressable by one frame.
	MaxSlots = 256

	// MaxCodeSize is the largest instruction stream a 2-byte address covers.
	MaxCodeSize = 1 << 16

	// MaxArgs is the largest argument count CALL can encode.
	MaxArgs = 255
)

var (
	// ErrTooManyConstants is returned when the pool would exceed MaxConstants.
	ErrTooManyConstants = errors.New("too many constants in one chunk")

	// ErrCodeTooLarge is returned when a jump target does not fit in 2 bytes.
	ErrCodeTooLarge = errors.New("code too large for 16-bit addresses")
)

// SourceLocation maps bytecode position to source location for debugging.
type SourceLocation struct {
	BytecodeOffset uint32 `cbor:"1,keyasint"` // Offset in code section
	Line           uint32 `cbor:"2,keyasint"` // Source line number (1-based)
	Column         uint16 `cbor:"3,keyasint"` // Source column number (1-based)
}

// FunctionInfo records where a routine's body lives, for listings.
type FunctionInfo struct {
	Name    string `cbor:"1,keyasint"`
	Address uint16 `cbor:"2,keyasint"`
	Params  uint8  `cbor:"3,keyasint"`
	End     uint16 `cbor:"4,keyasint"` // first offset after the body
}

// Chunk is the compiled unit: one flat instruction stream shared by top-level
// code and every function body, plus the constant pool it indexes.
type Chunk struct {
	// Code section
	Code []byte

	// Constant pool, indexed by LOAD_CONST's one-byte operand
	Constants []value.Literal

	// Debug information
	SourceMap []SourceLocation // Bytecode offset -> source location
	VarNames  []string         // Top-level slot names
	Functions []FunctionInfo   // Routine entry points

	constIndex map[value.Key]uint8
}

// NewChunk creates a new empty chunk.
func NewChunk() *Chunk {
	return &Chunk{
		Code:      make([]byte, 0, 64),
		Constants: make([]value.Literal, 0, 8),
	}
}

// AddConstant adds a literal to the pool and returns its index.
// If an identical literal already exists, returns the existing index; -0 and
// 0 are distinct entries.
func (c *Chunk) AddConstant(v value.Literal) (uint8, error) {
	if c.constIndex == nil {
		c.constIndex = make(map[value.Key]uint8, len(c.Constants))
		for i, k := range c.Constants {
			if _, ok := c.constIndex[k.Key()]; !ok {
				c.constIndex[k.Key()] = uint8(i)
			}
		}
	}
	key := v.Key()
	if idx, ok := c.constIndex[key]; ok {
		return idx, nil
	}
	if len(c.Constants) >= MaxConstants {
		return 0, ErrTooManyConstants
	}
	idx := uint8(len(c.Constants))
	c.Constants = append(c.Constants, v)
	c.constIndex[key] = idx
	return idx, nil
}

// GetConstant returns the constant at the given index.
// Panics if the index is out of bounds.
func (c *Chunk) GetConstant(index uint8) value.Literal {
	return c.Constants[index]
}

// Emit appends a single-byte opcode to the code section.
func (c *Chunk) Emit(op Opcode) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	return offset
}

// EmitWithOperand appends an opcode with operand bytes.
func (c *Chunk) EmitWithOperand(op Opcode, operands ...byte) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	c.Code = append(c.Code, operands...)
	return offset
}

// EmitJump emits a jump instruction with a placeholder address.
// Returns the offset of the placeholder for later patching.
func (c *Chunk) EmitJump(op Opcode) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op), 0xFF, 0xFF) // Placeholder
	return offset + 1                              // Return offset of the placeholder bytes
}

// EmitCall emits a CALL with the given target and argument count and returns
// the offset of its address bytes, so forward calls can be patched later.
func (c *Chunk) EmitCall(target uint16, argc uint8) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(OpCall), byte(target>>8), byte(target), argc)
	return offset + 1
}

// PatchJump patches a placeholder to jump to the current position.
func (c *Chunk) PatchJump(placeholderOffset int) error {
	return c.PatchJumpTo(placeholderOffset, len(c.Code))
}

// PatchJumpTo overwrites the two placeholder bytes with the big-endian
// absolute target address.
func (c *Chunk) PatchJumpTo(placeholderOffset int, target int) error {
	if target < 0 || target >= MaxCodeSize {
		return fmt.Errorf("%w: target %d", ErrCodeTooLarge, target)
	}
	binary.BigEndian.PutUint16(c.Code[placeholderOffset:], uint16(target))
	return nil
}

// EmitLoop emits a backward jump to the given loop start. The target is
// already known, so no placeholder is needed.
func (c *Chunk) EmitLoop(loopStart int) error {
	if loopStart < 0 || loopStart >= MaxCodeSize {
		return fmt.Errorf("%w: target %d", ErrCodeTooLarge, loopStart)
	}
	c.Code = append(c.Code, byte(OpJump), byte(loopStart>>8), byte(loopStart))
	return nil
}

// CurrentOffset returns the current offset in the code section.
func (c *Chunk) CurrentOffset() int {
	return len(c.Code)
}

// ConstantCount returns the number of constants in the pool.
func (c *Chunk) ConstantCount() int {
	return len(c.Constants)
}

// AddSourceLocation adds a debug source location mapping. Consecutive
// mappings for the same line and column are collapsed.
func (c *Chunk) AddSourceLocation(bytecodeOffset uint32, line uint32, column uint16) {
	if n := len(c.SourceMap); n > 0 {
		last := c.SourceMap[n-1]
		if last.Line == line && last.Column == column {
			return
		}
		if last.BytecodeOffset == bytecodeOffset {
			c.SourceMap[n-1] = SourceLocation{bytecodeOffset, line, column}
			return
		}
	}
	c.SourceMap = append(c.SourceMap, SourceLocation{
		BytecodeOffset: bytecodeOffset,
		Line:           line,
		Column:         column,
	})
}

// GetSourceLocation returns the source location for a bytecode offset.
// Returns line 0, column 0 if no mapping exists.
func (c *Chunk) GetSourceLocation(offset uint32) (line uint32, column uint16) {
	// Find the nearest mapping at or before the offset
	for i := len(c.SourceMap) - 1; i >= 0; i-- {
		if c.SourceMap[i].BytecodeOffset <= offset {
			return c.SourceMap[i].Line, c.SourceMap[i].Column
		}
	}
	return 0, 0
}

// FunctionAt returns the name of the routine whose body starts at addr.
func (c *Chunk) FunctionAt(addr int) (string, bool) {
	for _, f := range c.Functions {
		if int(f.Address) == addr {
			return f.Name, true
		}
	}
	return "", false
}

// inFunction reports whether offset lies inside any routine body.
func (c *Chunk) inFunction(offset int) bool {
	for _, f := range c.Functions {
		if offset >= int(f.Address) && offset < int(f.End) {
			return true
		}
	}
	return false
}
