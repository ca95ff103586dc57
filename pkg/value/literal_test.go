package value

import (
	"math"
	"testing"
)

func TestTruthy(t *testing.T) {
	tests := []struct {
		lit  Literal
		want bool
	}{
		{Number(0), false},
		{Number(math.NaN()), false},
		{Number(-1), true},
		{Number(0.5), true},
		{Str(""), false},
		{Str("0"), true},
		{Bool(false), false},
		{Bool(true), true},
		{Void, false},
	}

	for _, tt := range tests {
		if got := tt.lit.Truthy(); got != tt.want {
			t.Errorf("%#v.Truthy() = %v, want %v", tt.lit, got, tt.want)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Number(1).Equal(Number(1)) {
		t.Error("1 should equal 1")
	}
	if Number(1).Equal(Bool(true)) {
		t.Error("literals of different kinds must not be equal")
	}
	if Str("1").Equal(Number(1)) {
		t.Error("\"1\" must not equal 1")
	}
	if !Void.Equal(Void) {
		t.Error("null should equal null")
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b Literal
		want int
	}{
		{Number(1), Number(2), -1},
		{Number(2), Number(2), 0},
		{Number(3), Number(2), 1},
		{Str("a"), Str("b"), -1},
		{Bool(false), Bool(true), -1},
		{Bool(true), Bool(true), 0},
	}
	for _, tt := range tests {
		got, err := Compare(tt.a, tt.b)
		if err != nil {
			t.Fatalf("Compare(%#v, %#v) failed: %v", tt.a, tt.b, err)
		}
		if got != tt.want {
			t.Errorf("Compare(%#v, %#v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}

	if _, err := Compare(Number(1), Str("1")); err == nil {
		t.Error("expected error comparing number with string")
	}
	if _, err := Compare(Void, Void); err == nil {
		t.Error("expected error ordering null values")
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		lit  Literal
		want string
	}{
		{Number(5), "5"},
		{Number(-2), "-2"},
		{Number(0.5), "0.5"},
		{Number(1e20), "1e+20"},
		{Bool(true), "true"},
		{Str("hi"), "hi"},
		{Void, "null"},
	}
	for _, tt := range tests {
		if got := tt.lit.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
	if got := Str("hi").GoString(); got != `"hi"` {
		t.Errorf("GoString() = %s, want quoted", got)
	}
}

func TestParse(t *testing.T) {
	if got := Parse("42"); !got.Equal(Number(42)) {
		t.Errorf("Parse(42) = %#v", got)
	}
	if got := Parse("forty"); !got.Equal(Str("forty")) {
		t.Errorf("Parse(forty) = %#v", got)
	}
}

func TestLiteralAsMapKey(t *testing.T) {
	m := map[Literal]int{Number(1): 1, Str("1"): 2}
	if m[Number(1)] != 1 || m[Str("1")] != 2 {
		t.Errorf("unexpected map contents: %v", m)
	}
}

func TestKey(t *testing.T) {
	negZero := Number(math.Copysign(0, -1))
	if negZero.Key() == Number(0).Key() {
		t.Error("-0 and 0 share a key")
	}
	if Number(math.NaN()).Key() != Number(math.NaN()).Key() {
		t.Error("NaN keys differ")
	}
	if Number(1).Key() == Str("1").Key() || Bool(false).Key() == Void.Key() {
		t.Error("literals of different kinds share a key")
	}
}
