package val

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// String returns the text representation of v used for string concatenation and by functions
// that expect text. Null and absent payloads are the empty string.
func String(v Value) string {
	switch v := v.(type) {
	case Null:
		return ""
	case Bool:
		return strconv.FormatBool(bool(v))
	case Int:
		return strconv.FormatInt(int64(v), 10)
	case Real:
		return formatReal(float64(v))
	case Char:
		return string(rune(v))
	case Str:
		return string(v)
	case Key:
		return string(v)
	case Raw:
		return v.Text
	case Time:
		return v.Format(time.RFC3339Nano)
	case Dur:
		return time.Duration(v).String()
	case *Tuple, List, Range, *Seq:
		return Format(v)
	}
	return ""
}

// Truth returns the boolean interpretation of v. Collections and sequences have none.
func Truth(v Value) (bool, error) {
	switch v := v.(type) {
	case Null:
		return false, nil
	case Bool:
		return bool(v), nil
	case Int:
		return v != 0, nil
	case Real:
		return v != 0, nil
	case Char:
		return v != 0, nil
	case Str:
		return v != "", nil
	case Key:
		return v != "", nil
	case Raw:
		return !v.Nil && v.Text != "", nil
	case Time:
		return !v.IsZero(), nil
	case Dur:
		return v != 0, nil
	case *Tuple:
		return true, nil
	}
	return false, errors.Errorf("cannot convert %s to boolean", v.Kind())
}

// Format returns a display representation of v, that quotes text inside of containers.
func Format(v Value) string {
	var b strings.Builder
	format(&b, v, false)
	return b.String()
}

func format(b *strings.Builder, v Value, quote bool) {
	switch v := v.(type) {
	case Null:
		b.WriteString("null")
	case Str:
		if quote {
			writeQuoted(b, string(v))
		} else {
			b.WriteString(string(v))
		}
	case Key:
		if quote {
			writeQuoted(b, string(v))
		} else {
			b.WriteString(string(v))
		}
	case Raw:
		if v.Nil {
			b.WriteString("null")
		} else if quote {
			writeQuoted(b, v.Text)
		} else {
			b.WriteString(v.Text)
		}
	case Char:
		b.WriteString("c'")
		b.WriteRune(rune(v))
		b.WriteByte('\'')
	case *Tuple:
		b.WriteByte('(')
		for i, e := range v.Vals {
			if i > 0 {
				b.WriteString(", ")
			}
			if n := v.Shape.Name(i); n != "" {
				b.WriteString(n)
				b.WriteString(": ")
			}
			format(b, e, true)
		}
		b.WriteByte(')')
	case List:
		b.WriteByte('[')
		for i, e := range v {
			if i > 0 {
				b.WriteString(", ")
			}
			format(b, e, true)
		}
		b.WriteByte(']')
	case Range:
		b.WriteString(strconv.FormatInt(v.Start, 10))
		b.WriteString("..")
		b.WriteString(strconv.FormatInt(v.End, 10))
	case *Seq:
		b.WriteString("<seq>")
	default:
		b.WriteString(String(v))
	}
}

func writeQuoted(b *strings.Builder, s string) {
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
}

func formatReal(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if strings.ContainsAny(s, ".eIN") {
		return s
	}
	return s + ".0"
}

// ToInt returns v as integer if it is numeric or parses as integer.
func ToInt(v Value) (int64, error) {
	switch v := v.(type) {
	case Int:
		return int64(v), nil
	case Real:
		return int64(v), nil
	case Char:
		return int64(v), nil
	case Bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case Str, Key, Raw:
		s := strings.TrimSpace(String(v))
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil {
				return 0, errors.Errorf("cannot convert %q to int", s)
			}
			return int64(f), nil
		}
		return n, nil
	case Dur:
		return int64(v), nil
	}
	return 0, errors.Errorf("cannot convert %s to int", v.Kind())
}

// ToReal returns v as float if it is numeric or parses as number.
func ToReal(v Value) (float64, error) {
	switch v := v.(type) {
	case Int:
		return float64(v), nil
	case Real:
		return float64(v), nil
	case Char:
		return float64(v), nil
	case Str, Key, Raw:
		s := strings.TrimSpace(String(v))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errors.Errorf("cannot convert %q to real", s)
		}
		return f, nil
	}
	return 0, errors.Errorf("cannot convert %s to real", v.Kind())
}
