// Package hash computes content hashes of Alum program trees. The hash keys
// the compiled-artifact cache.
package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/wayuto/alum/pkg/ast"
)

// HashProgram computes the SHA-256 content hash of a program tree.
//
// The hash is computed over the deterministic serialization of the tree
// followed by salt. Callers put everything else that changes the compiled
// output (format version, compiler settings) into salt.
func HashProgram(prog *ast.Program, salt string) [32]byte {
	s := &serializer{buf: Serialize(prog)}
	s.writeString(salt)
	return sha256.Sum256(s.buf)
}

// HexHash is HashProgram rendered as lowercase hex.
func HexHash(prog *ast.Program, salt string) string {
	h := HashProgram(prog, salt)
	return hex.EncodeToString(h[:])
}
