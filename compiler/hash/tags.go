package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for the program tree serialization format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones breaks
// every cache key computed so far.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing content hashes.
const HashVersion byte = 1

// Node tags. Each tag uniquely identifies a node kind in the serialized
// byte stream.
const (
	TagReservedZero byte = 0x00 // version prefix / reserved

	// Literal values
	TagVoid   byte = 0x01
	TagNumber byte = 0x02
	TagBool   byte = 0x03
	TagString byte = 0x04

	// Reserved 0x05-0x0A

	// Variables
	TagVar     byte = 0x0B
	TagVarDecl byte = 0x0C
	TagVarMod  byte = 0x0D

	// Operations
	TagBinOp    byte = 0x10
	TagUnaryOp  byte = 0x11
	TagFuncCall byte = 0x12

	// Statements / structure
	TagStmt     byte = 0x14
	TagIf       byte = 0x15
	TagWhile    byte = 0x16
	TagFuncDecl byte = 0x17
	TagReturn   byte = 0x18
	TagOut      byte = 0x19
	TagIn       byte = 0x1A
	TagLabel    byte = 0x1B
	TagGoto     byte = 0x1C
	TagExit     byte = 0x1D
	TagProgram  byte = 0x1E

	// Absent optional child (else branch, return value, exit code)
	TagAbsent byte = 0x1F

	// Node kinds outside this table, identified by Kind()
	TagForeign byte = 0x20

	// Reserved 0xFE-0xFF
)

// allTags lists every defined tag for uniqueness verification in tests.
var allTags = []byte{
	TagReservedZero,
	TagVoid, TagNumber, TagBool, TagString,
	TagVar, TagVarDecl, TagVarMod,
	TagBinOp, TagUnaryOp, TagFuncCall,
	TagStmt, TagIf, TagWhile, TagFuncDecl, TagReturn, TagOut, TagIn,
	TagLabel, TagGoto, TagExit, TagProgram,
	TagAbsent, TagForeign,
}
