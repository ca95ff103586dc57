// Package bytecode compiles Alum program trees to a compact stack bytecode
// and executes it.
//
// # Architecture Overview
//
//   - Opcodes: one-byte instructions with fixed-width operands. Slot and
//     constant operands are one byte; jump and call targets are two-byte
//     big-endian absolute addresses.
//
//   - Chunk: the compiled unit. Top-level code and every function body share
//     one instruction stream and one deduplicated constant pool. The chunk
//     also carries a source map, top-level slot names and function entry
//     points for listings and error messages.
//
//   - Compiler: walks an ast.Program once. Lexical scopes are a stack of
//     name-to-slot maps over a counter that only grows, so every binding in
//     a frame gets its own slot. Forward jumps are emitted with a placeholder
//     and backpatched once the target is known.
//
//   - Machine: an operand stack, a slot array and a call stack. Slot operands
//     are relative to the current frame's base; CALL appends the arguments to
//     the slot array as the new frame and RET truncates it again.
//
//   - Artifact: the CBOR form of a chunk, stored in .alumc files and in the
//     build cache.
//
// # Calling Convention
//
//	CALL addr argc   ; push {return ip, caller base}, bind argc args at the slot top
//	...              ; body runs with base = first argument slot
//	RET              ; pop result, drop the frame's slots, restore, push result
//
// A RET with no active call ends the run, like HALT.
//
// # Usage
//
//	c := bytecode.NewCompiler(bytecode.Options{})
//	chunk, maxSlot, err := c.Compile(prog)
//	if err != nil {
//	    return err
//	}
//	result, err := bytecode.NewMachine(chunk, maxSlot).Run()
package bytecode
