// Package val implements the value model of the query language.
//
// Values are immutable and may be shared freely. The only exception is the lazy sequence, which
// carries iteration state and must be consumed by exactly one evaluation step.
package val

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// Kind is the closed set of value tags. All operator and conversion rules switch over it.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindReal
	KindChar
	KindStr
	KindKey
	KindRaw
	KindTime
	KindDur
	KindTuple
	KindList
	KindRange
	KindSeq
)

var kindNames = [...]string{
	KindNull:  "null",
	KindBool:  "bool",
	KindInt:   "int",
	KindReal:  "real",
	KindChar:  "char",
	KindStr:   "string",
	KindKey:   "key",
	KindRaw:   "raw",
	KindTime:  "timestamp",
	KindDur:   "duration",
	KindTuple: "tuple",
	KindList:  "list",
	KindRange: "range",
	KindSeq:   "seq",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Value is implemented by all value types of this package.
type Value interface {
	Kind() Kind
}

type (
	Null struct{}
	Bool bool
	Int  int64
	Real float64
	Char rune
	Str  string
	// Key is a key handle returned by the data source.
	Key string
	// Raw is a payload returned by the data source. Nil marks an absent reply.
	Raw struct {
		Text string
		Nil  bool
	}
	Time struct{ time.Time }
	Dur  time.Duration
	// List is a materialized ordered sequence of values.
	List []Value
	// Range is an inclusive integer interval. It is empty if End < Start.
	Range struct{ Start, End int64 }
)

func (Null) Kind() Kind  { return KindNull }
func (Bool) Kind() Kind  { return KindBool }
func (Int) Kind() Kind   { return KindInt }
func (Real) Kind() Kind  { return KindReal }
func (Char) Kind() Kind  { return KindChar }
func (Str) Kind() Kind   { return KindStr }
func (Key) Kind() Kind   { return KindKey }
func (Raw) Kind() Kind   { return KindRaw }
func (Time) Kind() Kind  { return KindTime }
func (Dur) Kind() Kind   { return KindDur }
func (List) Kind() Kind  { return KindList }
func (Range) Kind() Kind { return KindRange }

var (
	True  Value = Bool(true)
	False Value = Bool(false)
)

// Absent is the raw payload the data source returns for missing data.
var Absent = Raw{Nil: true}

// Payload returns a present raw payload with text s.
func Payload(s string) Raw { return Raw{Text: s} }

// Len returns the number of integers contained in r.
func (r Range) Len() int64 {
	if r.End < r.Start {
		return 0
	}
	// saturates for spans wider than MaxInt64
	if d := uint64(r.End) - uint64(r.Start); d < math.MaxInt64 {
		return int64(d) + 1
	}
	return math.MaxInt64
}

// Shape is the static description of a tuple. It maps slot indices to optional names.
// Names are only used for field access and never take part in equality.
type Shape struct {
	Names []string
}

// Index returns the slot index for name or -1.
func (s *Shape) Index(name string) int {
	if s == nil || name == "" {
		return -1
	}
	for i, n := range s.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// Name returns the name of slot i or an empty string.
func (s *Shape) Name(i int) string {
	if s == nil || i < 0 || i >= len(s.Names) {
		return ""
	}
	return s.Names[i]
}

// Tuple is a fixed ordered collection of at least two values.
type Tuple struct {
	Vals  []Value
	Shape *Shape
}

func (*Tuple) Kind() Kind { return KindTuple }

// NewTuple returns a tuple of vals with an optional shape or an error if the arity is too small.
func NewTuple(shape *Shape, vals ...Value) (*Tuple, error) {
	if len(vals) < 2 {
		return nil, errors.Errorf("tuple needs at least two items, got %d", len(vals))
	}
	if shape != nil && len(shape.Names) != len(vals) {
		return nil, errors.Errorf("tuple shape has %d names for %d items", len(shape.Names), len(vals))
	}
	return &Tuple{Vals: vals, Shape: shape}, nil
}

// Field returns the value of the slot named name.
func (t *Tuple) Field(name string) (Value, bool) {
	i := t.Shape.Index(name)
	if i < 0 {
		return nil, false
	}
	return t.Vals[i], true
}

// IsText returns whether k is one of the string-like kinds.
func IsText(k Kind) bool {
	return k == KindStr || k == KindKey || k == KindRaw
}

// IsNum returns whether k takes part in numeric comparison.
func IsNum(k Kind) bool {
	return k == KindInt || k == KindReal || k == KindChar
}

// IsNullish returns whether v is null or a data source value without data.
func IsNullish(v Value) bool {
	switch v := v.(type) {
	case Null:
		return true
	case Key:
		return v == ""
	case Raw:
		return v.Nil || v.Text == ""
	}
	return false
}
