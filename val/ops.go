package val

import (
	"math"
	"regexp"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/pkg/errors"
)

// Op identifies a unary or binary operator.
type Op uint8

const (
	OpNone Op = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
	OpMatch
	OpNotMatch
	OpRange
	// short-circuit operators are only evaluated by the evaluator
	OpAnd
	OpOr
	OpCoalesce
	// unary operators
	OpNeg
	OpPos
	OpNot
	OpBitNot
)

var opNames = [...]string{
	OpNone:     "?",
	OpAdd:      "+",
	OpSub:      "-",
	OpMul:      "*",
	OpDiv:      "/",
	OpMod:      "%",
	OpLt:       "<",
	OpLe:       "<=",
	OpGt:       ">",
	OpGe:       ">=",
	OpEq:       "==",
	OpNe:       "!=",
	OpMatch:    "=~",
	OpNotMatch: "!~",
	OpRange:    "..",
	OpAnd:      "&&",
	OpOr:       "||",
	OpCoalesce: "??",
	OpNeg:      "-",
	OpPos:      "+",
	OpNot:      "!",
	OpBitNot:   "~",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "?"
}

// ErrDivZero is returned for integer division or modulo by zero.
var ErrDivZero = errors.New("division by zero")

// Binary applies the eager binary operator op to a and b.
func Binary(op Op, a, b Value) (Value, error) {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		return Arith(op, a, b)
	case OpLt, OpLe, OpGt, OpGe:
		return Relational(op, a, b)
	case OpEq:
		return Bool(Equal(a, b)), nil
	case OpNe:
		return Bool(!Equal(a, b)), nil
	case OpMatch, OpNotMatch:
		return Match(op, a, b)
	case OpRange:
		return MakeRange(a, b)
	}
	return nil, errors.Errorf("unexpected binary operator %s", op)
}

// Arith applies one of the arithmetic operators to a and b.
func Arith(op Op, a, b Value) (Value, error) {
	ak, bk := a.Kind(), b.Kind()
	if op == OpAdd && (IsText(ak) || IsText(bk)) {
		return Str(String(a) + String(b)), nil
	}
	if ak == KindNull || bk == KindNull {
		return Null{}, nil
	}
	if op == OpAdd || op == OpSub {
		a, b = ordinal(a), ordinal(b)
	}
	switch a := a.(type) {
	case Int:
		switch b := b.(type) {
		case Int:
			return intArith(op, int64(a), int64(b))
		case Real:
			return realArith(op, float64(a), float64(b))
		}
	case Real:
		switch b := b.(type) {
		case Int:
			return realArith(op, float64(a), float64(b))
		case Real:
			return realArith(op, float64(a), float64(b))
		}
	case Time:
		if b, ok := b.(Dur); ok {
			switch op {
			case OpAdd:
				return Time{a.Add(time.Duration(b))}, nil
			case OpSub:
				return Time{a.Add(-time.Duration(b))}, nil
			}
		}
	case Dur:
		switch b := b.(type) {
		case Dur:
			switch op {
			case OpAdd:
				return a + b, nil
			case OpSub:
				return a - b, nil
			}
		}
	}
	return nil, errors.Errorf("operator %s cannot be applied to %s and %s", op, ak, bk)
}

func ordinal(v Value) Value {
	if c, ok := v.(Char); ok {
		return Int(c)
	}
	return v
}

func intArith(op Op, a, b int64) (Value, error) {
	switch op {
	case OpAdd:
		return Int(a + b), nil
	case OpSub:
		return Int(a - b), nil
	case OpMul:
		return Int(a * b), nil
	case OpDiv:
		if b == 0 {
			return nil, ErrDivZero
		}
		return Int(a / b), nil
	case OpMod:
		if b == 0 {
			return nil, ErrDivZero
		}
		return Int(a % b), nil
	}
	return nil, errors.Errorf("unexpected arithmetic operator %s", op)
}

func realArith(op Op, a, b float64) (Value, error) {
	switch op {
	case OpAdd:
		return Real(a + b), nil
	case OpSub:
		return Real(a - b), nil
	case OpMul:
		return Real(a * b), nil
	case OpDiv:
		return Real(a / b), nil
	case OpMod:
		return Real(math.Mod(a, b)), nil
	}
	return nil, errors.Errorf("unexpected arithmetic operator %s", op)
}

// Relational applies one of the ordering operators. Null on either side is false.
func Relational(op Op, a, b Value) (Value, error) {
	if a.Kind() == KindNull || b.Kind() == KindNull {
		return False, nil
	}
	c, err := Compare(a, b)
	if err != nil {
		return nil, err
	}
	switch op {
	case OpLt:
		return Bool(c < 0), nil
	case OpLe:
		return Bool(c <= 0), nil
	case OpGt:
		return Bool(c > 0), nil
	case OpGe:
		return Bool(c >= 0), nil
	}
	return nil, errors.Errorf("unexpected relational operator %s", op)
}

// MakeRange returns the inclusive integer range from a to b.
func MakeRange(a, b Value) (Value, error) {
	if a.Kind() == KindNull || b.Kind() == KindNull {
		return Null{}, nil
	}
	s, ok := intOf(a)
	e, ok2 := intOf(b)
	if !ok || !ok2 {
		return nil, errors.Errorf("operator .. cannot be applied to %s and %s", a.Kind(), b.Kind())
	}
	return Range{Start: s, End: e}, nil
}

// Unary applies the unary operator op to a.
func Unary(op Op, a Value) (Value, error) {
	switch op {
	case OpNot:
		t, err := Truth(a)
		if err != nil {
			return nil, err
		}
		return Bool(!t), nil
	case OpNeg, OpPos:
		switch a := a.(type) {
		case Null:
			return a, nil
		case Int:
			if op == OpNeg {
				return -a, nil
			}
			return a, nil
		case Real:
			if op == OpNeg {
				return -a, nil
			}
			return a, nil
		case Dur:
			if op == OpNeg {
				return -a, nil
			}
			return a, nil
		}
	case OpBitNot:
		switch a := a.(type) {
		case Null:
			return a, nil
		case Int:
			return ^a, nil
		}
	}
	return nil, errors.Errorf("operator %s cannot be applied to %s", op, a.Kind())
}

// Match applies a regular expression match operator. The right operand is the pattern.
func Match(op Op, a, b Value) (Value, error) {
	if a.Kind() == KindNull {
		return Bool(op == OpNotMatch), nil
	}
	if !IsText(a.Kind()) || !IsText(b.Kind()) {
		return nil, errors.Errorf("operator %s cannot be applied to %s and %s", op, a.Kind(), b.Kind())
	}
	re, err := compileRegexp(String(b))
	if err != nil {
		return nil, err
	}
	ok := re.MatchString(String(a))
	if op == OpNotMatch {
		ok = !ok
	}
	return Bool(ok), nil
}

var regexCache = struct {
	sync.Mutex
	*lru.Cache
}{Cache: lru.New(256)}

func compileRegexp(pat string) (*regexp.Regexp, error) {
	regexCache.Lock()
	defer regexCache.Unlock()
	if re, ok := regexCache.Get(pat); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid pattern %q", pat)
	}
	regexCache.Add(pat, re)
	return re, nil
}
