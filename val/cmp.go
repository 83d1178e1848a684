package val

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrIncomparable is returned by Compare for operands without an order.
var ErrIncomparable = errors.New("operands cannot be compared")

// Equal returns whether a and b are equal. It never fails.
//
// Numbers compare cross-widened, text-like values by text. A key or payload without data is
// equal to null. Lists and tuples compare structurally and are never equal to each other.
func Equal(a, b Value) bool {
	if a.Kind() == KindNull || b.Kind() == KindNull {
		return IsNullish(a) && IsNullish(b)
	}
	switch a := a.(type) {
	case Bool:
		b, ok := b.(Bool)
		return ok && a == b
	case Int, Real, Char:
		if !IsNum(b.Kind()) {
			return false
		}
		c, _ := cmpNum(a, b)
		return c == 0
	case Str, Key, Raw:
		if !IsText(b.Kind()) {
			return false
		}
		if ra, ok := a.(Raw); ok && ra.Nil {
			return IsNullish(b)
		}
		if rb, ok := b.(Raw); ok && rb.Nil {
			return IsNullish(a)
		}
		return String(a) == String(b)
	case Time:
		b, ok := b.(Time)
		return ok && a.Equal(b.Time)
	case Dur:
		b, ok := b.(Dur)
		return ok && a == b
	case *Tuple:
		b, ok := b.(*Tuple)
		return ok && equalVals(a.Vals, b.Vals)
	case List:
		b, ok := b.(List)
		return ok && equalVals(a, b)
	case Range:
		b, ok := b.(Range)
		return ok && (a == b || a.Len() == 0 && b.Len() == 0)
	case *Seq:
		b, ok := b.(*Seq)
		return ok && a == b
	}
	return false
}

func equalVals(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Compare returns the total order of a and b as -1, 0 or 1.
//
// Null is less than everything else and equal only to null. Numbers compare cross-widened,
// text-like values by byte order, timestamps and durations by magnitude. All other pairings
// return ErrIncomparable.
//
// Unlike Equal, Compare orders an absent payload after null as empty text, so sort and group
// keys keep absent replies apart from null.
func Compare(a, b Value) (int, error) {
	an, bn := a.Kind() == KindNull, b.Kind() == KindNull
	switch {
	case an && bn:
		return 0, nil
	case an:
		return -1, nil
	case bn:
		return 1, nil
	}
	switch a := a.(type) {
	case Int, Real, Char:
		if IsNum(b.Kind()) {
			return cmpNum(a, b)
		}
	case Bool:
		if b, ok := b.(Bool); ok {
			switch {
			case a == b:
				return 0, nil
			case !bool(a):
				return -1, nil
			}
			return 1, nil
		}
	case Str, Key, Raw:
		if IsText(b.Kind()) {
			return strings.Compare(String(a), String(b)), nil
		}
	case Time:
		if b, ok := b.(Time); ok {
			return a.Compare(b.Time), nil
		}
	case Dur:
		if b, ok := b.(Dur); ok {
			return cmpInt(int64(a), int64(b)), nil
		}
	}
	return 0, errors.Wrapf(ErrIncomparable, "%s and %s", a.Kind(), b.Kind())
}

func cmpNum(a, b Value) (int, error) {
	ai, aInt := intOf(a)
	bi, bInt := intOf(b)
	if aInt && bInt {
		return cmpInt(ai, bi), nil
	}
	af, bf := realOf(a), realOf(b)
	switch {
	case af < bf:
		return -1, nil
	case af > bf:
		return 1, nil
	}
	return 0, nil
}

func intOf(v Value) (int64, bool) {
	switch v := v.(type) {
	case Int:
		return int64(v), true
	case Char:
		return int64(v), true
	}
	return 0, false
}

func realOf(v Value) float64 {
	switch v := v.(type) {
	case Int:
		return float64(v)
	case Char:
		return float64(v)
	case Real:
		return float64(v)
	}
	return 0
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
