package bytecode

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/wayuto/alum/pkg/value"
)

// ArtifactVersion is the current compiled artifact format version.
const ArtifactVersion = 1

// ErrNewerArtifact is returned when an artifact was written by a newer
// toolchain.
var ErrNewerArtifact = errors.New("artifact was produced by a newer version")

// Artifact is the serializable form of a compiled program: everything a
// Machine needs to run it, plus debug information.
type Artifact struct {
	Version   int              `cbor:"1,keyasint"`
	Code      []byte           `cbor:"2,keyasint"`
	Constants []value.Literal  `cbor:"3,keyasint"`
	MaxSlot   int              `cbor:"4,keyasint"`
	SourceMap []SourceLocation `cbor:"5,keyasint,omitempty"`
	VarNames  []string         `cbor:"6,keyasint,omitempty"`
	Functions []FunctionInfo   `cbor:"7,keyasint,omitempty"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// NewArtifact captures a compiled chunk and its top-level slot count.
func NewArtifact(c *Chunk, maxSlot int) *Artifact {
	return &Artifact{
		Version:   ArtifactVersion,
		Code:      c.Code,
		Constants: c.Constants,
		MaxSlot:   maxSlot,
		SourceMap: c.SourceMap,
		VarNames:  c.VarNames,
		Functions: c.Functions,
	}
}

// Chunk rebuilds the runnable chunk.
func (a *Artifact) Chunk() *Chunk {
	c := NewChunk()
	c.Code = append(c.Code, a.Code...)
	c.Constants = append(c.Constants, a.Constants...)
	c.SourceMap = a.SourceMap
	c.VarNames = a.VarNames
	c.Functions = a.Functions
	return c
}

// MarshalArtifact serializes an Artifact to canonical CBOR bytes.
func MarshalArtifact(a *Artifact) ([]byte, error) {
	return cborEncMode.Marshal(a)
}

// UnmarshalArtifact deserializes and validates an Artifact.
func UnmarshalArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := cbor.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal artifact: %w", err)
	}
	switch {
	case a.Version > ArtifactVersion:
		return nil, fmt.Errorf("bytecode: artifact version %d: %w", a.Version, ErrNewerArtifact)
	case a.Version < 1:
		return nil, fmt.Errorf("bytecode: invalid artifact version %d", a.Version)
	case len(a.Constants) > MaxConstants:
		return nil, fmt.Errorf("bytecode: artifact has %d constants: %w", len(a.Constants), ErrTooManyConstants)
	case len(a.Code) > MaxCodeSize:
		return nil, fmt.Errorf("bytecode: artifact has %d bytes of code: %w", len(a.Code), ErrCodeTooLarge)
	case a.MaxSlot < 0 || a.MaxSlot > MaxSlots:
		return nil, fmt.Errorf("bytecode: invalid slot count %d", a.MaxSlot)
	}
	return &a, nil
}
