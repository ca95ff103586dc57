package bytecode

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Instruction is one decoded instruction.
type Instruction struct {
	Offset int
	Op     Opcode
	// Arg is the pool index, slot or address, depending on Op's operands.
	Arg  int
	Argc int
	Size int
	// Truncated is set when the code ends inside the operands.
	Truncated bool
}

// Decode reads the instruction at offset. An undefined opcode decodes as a
// one-byte instruction so listings can continue past it.
func (c *Chunk) Decode(offset int) (Instruction, bool) {
	if offset < 0 || offset >= len(c.Code) {
		return Instruction{}, false
	}
	in := Instruction{Offset: offset, Op: Opcode(c.Code[offset]), Size: 1}
	info, ok := opcodeInfoTable[in.Op]
	if !ok {
		return in, true
	}

	operands := c.Code[offset+1:]
	if len(operands) < info.OperandLen {
		in.Truncated = true
		in.Size = len(c.Code) - offset
		return in, true
	}
	in.Size += info.OperandLen

	switch info.Operands {
	case PoolIndex, SlotIndex:
		in.Arg = int(operands[0])
	case Address:
		in.Arg = int(binary.BigEndian.Uint16(operands))
	case CallSite:
		in.Arg = int(binary.BigEndian.Uint16(operands))
		in.Argc = int(operands[2])
	}
	return in, true
}

// Instructions decodes the whole code stream in order.
func (c *Chunk) Instructions() []Instruction {
	var out []Instruction
	for offset := 0; ; {
		in, ok := c.Decode(offset)
		if !ok {
			return out
		}
		out = append(out, in)
		offset += in.Size
	}
}

// Disassemble returns a human-readable listing of the chunk.
func (c *Chunk) Disassemble() string {
	return c.DisassembleWithName("")
}

// DisassembleWithName is Disassemble with a title line naming the unit.
func (c *Chunk) DisassembleWithName(name string) string {
	var sb strings.Builder

	if name != "" {
		fmt.Fprintf(&sb, "; === %s ===\n", name)
	}
	fmt.Fprintf(&sb, "; Alum Bytecode v%d\n", ArtifactVersion)
	fmt.Fprintf(&sb, "; Code: %d bytes\n", len(c.Code))
	if len(c.VarNames) > 0 {
		fmt.Fprintf(&sb, "; Slots (%d): %s\n", len(c.VarNames), strings.Join(c.VarNames, ", "))
	}
	sb.WriteByte('\n')

	if len(c.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, k := range c.Constants {
			shown := k.GoString()
			if len(shown) > 40 {
				shown = shown[:37] + "..."
			}
			fmt.Fprintf(&sb, ";   [%3d] %s\n", i, shown)
		}
		sb.WriteByte('\n')
	}

	sb.WriteString("; Code:\n")
	for _, in := range c.Instructions() {
		for _, f := range c.Functions {
			if int(f.Address) == in.Offset {
				fmt.Fprintf(&sb, "; fun %s/%d\n", f.Name, f.Params)
			}
		}
		text := c.format(in)
		if line, col := c.GetSourceLocation(uint32(in.Offset)); line > 0 {
			fmt.Fprintf(&sb, "%04X  %-30s ; line %d:%d\n", in.Offset, text, line, col)
		} else {
			fmt.Fprintf(&sb, "%04X  %s\n", in.Offset, text)
		}
		if in.Op.IsTerminator() && in.Offset+in.Size < len(c.Code) {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// DisassembleInstruction formats the single instruction at offset.
func (c *Chunk) DisassembleInstruction(offset int) string {
	in, ok := c.Decode(offset)
	if !ok {
		return "<end of code>"
	}
	return c.format(in)
}

// format renders in with its operands and, where known, what they refer to.
func (c *Chunk) format(in Instruction) string {
	name := in.Op.String()
	if in.Truncated {
		return name + " <truncated>"
	}

	switch GetOpcodeInfo(in.Op).Operands {
	case PoolIndex:
		if in.Arg < len(c.Constants) {
			return fmt.Sprintf("%s %d ; %s", name, in.Arg, c.Constants[in.Arg].GoString())
		}
		return fmt.Sprintf("%s %d ; <invalid>", name, in.Arg)

	case SlotIndex:
		// Slots inside routine bodies are frame-relative and unnamed.
		if !c.inFunction(in.Offset) && in.Arg < len(c.VarNames) {
			return fmt.Sprintf("%s %d ; %s", name, in.Arg, c.VarNames[in.Arg])
		}
		return fmt.Sprintf("%s %d", name, in.Arg)

	case Address:
		return fmt.Sprintf("%s %04X", name, in.Arg)

	case CallSite:
		if fn, ok := c.FunctionAt(in.Arg); ok {
			return fmt.Sprintf("%s %04X %d ; %s", name, in.Arg, in.Argc, fn)
		}
		return fmt.Sprintf("%s %04X %d", name, in.Arg, in.Argc)
	}
	return name
}
