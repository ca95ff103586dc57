// Package value defines the primitive runtime values shared by the front end,
// the bytecode compiler and the machine.
package value

import (
	"fmt"
	"math"
	"strconv"
)

// Kind identifies which variant of Literal is populated.
type Kind uint8

const (
	KindVoid   Kind = 0
	KindNumber Kind = 1
	KindBool   Kind = 2
	KindStr    Kind = 3
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "null"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindStr:
		return "string"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Literal is an immutable primitive value: a number, a boolean, a string or
// null. Only the field matching Kind is meaningful. Literal is comparable,
// but == treats -0 and 0 as equal; use Key to tell them apart.
type Literal struct {
	Kind Kind    `cbor:"1,keyasint"`
	Num  float64 `cbor:"2,keyasint"`
	Bool bool    `cbor:"3,keyasint,omitempty"`
	Str  string  `cbor:"4,keyasint,omitempty"`
}

// Void is the null literal.
var Void = Literal{}

// Number returns a number literal.
func Number(n float64) Literal { return Literal{Kind: KindNumber, Num: n} }

// Bool returns a boolean literal.
func Bool(b bool) Literal { return Literal{Kind: KindBool, Bool: b} }

// Str returns a string literal.
func Str(s string) Literal { return Literal{Kind: KindStr, Str: s} }

// Key identifies a literal bit for bit. Unlike Literal, it separates -0
// from 0 and makes NaN equal to itself.
type Key struct {
	Kind Kind
	Bits uint64
	Bool bool
	Str  string
}

// Key returns the identity of l, suitable as a map key.
func (l Literal) Key() Key {
	return Key{Kind: l.Kind, Bits: math.Float64bits(l.Num), Bool: l.Bool, Str: l.Str}
}

// IsVoid reports whether l is null.
func (l Literal) IsVoid() bool { return l.Kind == KindVoid }

// IsNumber reports whether l is a number.
func (l Literal) IsNumber() bool { return l.Kind == KindNumber }

// Truthy applies the language's truthiness rule: zero, NaN, the empty string,
// false and null are falsy; everything else is truthy.
func (l Literal) Truthy() bool {
	switch l.Kind {
	case KindNumber:
		return l.Num != 0 && !math.IsNaN(l.Num)
	case KindBool:
		return l.Bool
	case KindStr:
		return l.Str != ""
	default:
		return false
	}
}

// Equal compares by kind and value. Literals of different kinds are never
// equal.
func (l Literal) Equal(o Literal) bool {
	if l.Kind != o.Kind {
		return false
	}
	switch l.Kind {
	case KindNumber:
		return l.Num == o.Num
	case KindBool:
		return l.Bool == o.Bool
	case KindStr:
		return l.Str == o.Str
	default:
		return true
	}
}

// Compare orders two literals of the same kind, returning -1, 0 or +1.
// Numbers compare numerically, strings lexicographically, and false sorts
// before true. Mixed or unordered kinds return an error.
func Compare(a, b Literal) (int, error) {
	if a.Kind != b.Kind {
		return 0, fmt.Errorf("cannot compare %s with %s", a.Kind, b.Kind)
	}
	switch a.Kind {
	case KindNumber:
		switch {
		case a.Num < b.Num:
			return -1, nil
		case a.Num > b.Num:
			return 1, nil
		}
		return 0, nil
	case KindStr:
		switch {
		case a.Str < b.Str:
			return -1, nil
		case a.Str > b.Str:
			return 1, nil
		}
		return 0, nil
	case KindBool:
		if a.Bool == b.Bool {
			return 0, nil
		}
		if !a.Bool {
			return -1, nil
		}
		return 1, nil
	default:
		return 0, fmt.Errorf("%s values are not ordered", a.Kind)
	}
}

// String formats the literal the way OUT displays it.
func (l Literal) String() string {
	switch l.Kind {
	case KindNumber:
		return FormatNumber(l.Num)
	case KindBool:
		return strconv.FormatBool(l.Bool)
	case KindStr:
		return l.Str
	default:
		return "null"
	}
}

// GoString quotes strings so constant pools read unambiguously in listings.
func (l Literal) GoString() string {
	if l.Kind == KindStr {
		return strconv.Quote(l.Str)
	}
	return l.String()
}

// FormatNumber prints integral values without a fractional part and
// everything else in the shortest form that round-trips.
func FormatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// Parse converts a line of input into a literal: a number when it parses as
// one, otherwise a string.
func Parse(s string) Literal {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return Number(n)
	}
	return Str(s)
}
