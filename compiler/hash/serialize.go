package hash

import (
	"encoding/binary"
	"math"

	"github.com/wayuto/alum/pkg/ast"
	"github.com/wayuto/alum/pkg/value"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of program trees.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Every node: tag byte, then line and column as uint32 big-endian
//   - Floats: IEEE 754 big-endian 8B
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Booleans: single byte (0/1)
//   - Lists: uint32 big-endian count, then the elements
//   - Child nodes: serialized inline (flat); a nil optional child is TagAbsent
//
// Positions are included: compiled artifacts carry a source map, so two
// trees that differ only in layout must not share a hash.
// ---------------------------------------------------------------------------

// Serialize produces a deterministic byte serialization of a program.
// The returned bytes are suitable for hashing with SHA-256.
func Serialize(prog *ast.Program) []byte {
	s := newSerializer()
	s.writeByte(TagProgram)
	s.writeNodes(prog.Body)
	return s.buf
}

// SerializeNode serializes a single subtree.
func SerializeNode(n ast.Expr) []byte {
	s := newSerializer()
	s.serializeNode(n)
	return s.buf
}

type serializer struct {
	buf []byte
}

func newSerializer() *serializer {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(HashVersion)
	return s
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeFloat64(v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeBool(v bool) {
	if v {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
}

func (s *serializer) writeHeader(tag byte, pos ast.Position) {
	s.writeByte(tag)
	s.writeUint32(uint32(pos.Line))
	s.writeUint32(uint32(pos.Column))
}

func (s *serializer) writeNodes(nodes []ast.Expr) {
	s.writeUint32(uint32(len(nodes)))
	for _, n := range nodes {
		s.serializeNode(n)
	}
}

func (s *serializer) writeOptional(n ast.Expr) {
	if n == nil {
		s.writeByte(TagAbsent)
		return
	}
	s.serializeNode(n)
}

func (s *serializer) serializeNode(node ast.Expr) {
	switch n := node.(type) {
	case *ast.Val:
		s.writeLiteral(n.Pos, n.Value)

	case *ast.Var:
		s.writeHeader(TagVar, n.Pos)
		s.writeString(n.Name)

	case *ast.VarDecl:
		s.writeHeader(TagVarDecl, n.Pos)
		s.writeString(n.Name)
		s.writeOptional(n.Value)

	case *ast.VarMod:
		s.writeHeader(TagVarMod, n.Pos)
		s.writeString(n.Name)
		s.writeOptional(n.Value)

	case *ast.BinOp:
		s.writeHeader(TagBinOp, n.Pos)
		s.writeString(n.Operator)
		s.writeOptional(n.Left)
		s.writeOptional(n.Right)

	case *ast.UnaryOp:
		s.writeHeader(TagUnaryOp, n.Pos)
		s.writeString(n.Operator)
		s.writeOptional(n.Argument)

	case *ast.FuncCall:
		s.writeHeader(TagFuncCall, n.Pos)
		s.writeString(n.Name)
		s.writeNodes(n.Args)

	case *ast.Stmt:
		s.writeHeader(TagStmt, n.Pos)
		s.writeNodes(n.Body)

	case *ast.If:
		s.writeHeader(TagIf, n.Pos)
		s.writeOptional(n.Condition)
		s.writeOptional(n.Then)
		s.writeOptional(n.Else)

	case *ast.While:
		s.writeHeader(TagWhile, n.Pos)
		s.writeOptional(n.Condition)
		s.writeOptional(n.Body)

	case *ast.FuncDecl:
		s.writeHeader(TagFuncDecl, n.Pos)
		s.writeString(n.Name)
		s.writeUint32(uint32(len(n.Params)))
		for _, p := range n.Params {
			s.writeString(p)
		}
		s.writeOptional(n.Body)

	case *ast.Return:
		s.writeHeader(TagReturn, n.Pos)
		s.writeOptional(n.Value)

	case *ast.Out:
		s.writeHeader(TagOut, n.Pos)
		s.writeOptional(n.Value)

	case *ast.In:
		s.writeHeader(TagIn, n.Pos)
		s.writeString(n.Name)

	case *ast.Label:
		s.writeHeader(TagLabel, n.Pos)
		s.writeString(n.Name)

	case *ast.Goto:
		s.writeHeader(TagGoto, n.Pos)
		s.writeString(n.Label)

	case *ast.Exit:
		s.writeHeader(TagExit, n.Pos)
		s.writeOptional(n.Code)

	case nil:
		s.writeByte(TagAbsent)

	default:
		s.writeHeader(TagForeign, n.Position())
		s.writeString(n.Kind())
		s.writeNodes(ast.Children(n))
	}
}

func (s *serializer) writeLiteral(pos ast.Position, v value.Literal) {
	switch v.Kind {
	case value.KindNumber:
		s.writeHeader(TagNumber, pos)
		s.writeFloat64(v.Num)
	case value.KindBool:
		s.writeHeader(TagBool, pos)
		s.writeBool(v.Bool)
	case value.KindStr:
		s.writeHeader(TagString, pos)
		s.writeString(v.Str)
	default:
		s.writeHeader(TagVoid, pos)
	}
}
