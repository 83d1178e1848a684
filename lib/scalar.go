package lib

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/eval"
	"github.com/smackem/redis-q-sub000/val"
)

// Now returns the current time for the now function.
var Now = time.Now

func registerScalar(reg *eval.Registry) {
	reg.MustAdd("int", 1, unary(toInt)).
		MustAdd("real", 1, unary(toReal)).
		MustAdd("string", 1, unary(func(v val.Value) (val.Value, error) {
			return val.Str(val.String(v)), nil
		})).
		MustAdd("bool", 1, unary(func(v val.Value) (val.Value, error) {
			t, err := val.Truth(v)
			return val.Bool(t), err
		})).
		MustAdd("lower", 1, text(strings.ToLower)).
		MustAdd("upper", 1, text(strings.ToUpper)).
		MustAdd("trim", 1, text(strings.TrimSpace)).
		MustAdd("split", 2, split).
		MustAdd("len", 1, size).
		MustAdd("contains", 2, contains).
		MustAdd("startsWith", 2, textTest(strings.HasPrefix)).
		MustAdd("endsWith", 2, textTest(strings.HasSuffix)).
		MustAdd("replace", 3, replace).
		MustAdd("key", 1, unary(func(v val.Value) (val.Value, error) {
			return val.Key(val.String(v)), nil
		})).
		MustAdd("now", 0, func(context.Context, *eval.Env, []val.Value) (val.Value, error) {
			return val.Time{Time: Now()}, nil
		}).
		MustAdd("timestamp", 1, unary(timestamp)).
		MustAdd("duration", 1, unary(duration)).
		MustAdd("seconds", 1, unary(seconds)).
		MustAdd("typeof", 1, unary(func(v val.Value) (val.Value, error) {
			return val.Str(v.Kind().String()), nil
		}))
}

func toInt(v val.Value) (val.Value, error) {
	if isNull(v) {
		return val.Null{}, nil
	}
	n, err := val.ToInt(v)
	if err != nil {
		return nil, err
	}
	return val.Int(n), nil
}

func toReal(v val.Value) (val.Value, error) {
	if isNull(v) {
		return val.Null{}, nil
	}
	f, err := val.ToReal(v)
	if err != nil {
		return nil, err
	}
	return val.Real(f), nil
}

func text(f func(string) string) fn {
	return unary(func(v val.Value) (val.Value, error) {
		return val.Str(f(val.String(v))), nil
	})
}

func textTest(f func(s, x string) bool) fn {
	return func(_ context.Context, _ *eval.Env, args []val.Value) (val.Value, error) {
		return val.Bool(f(val.String(args[0]), val.String(args[1]))), nil
	}
}

func split(_ context.Context, _ *eval.Env, args []val.Value) (val.Value, error) {
	s := val.String(args[0])
	if s == "" {
		return val.List{}, nil
	}
	parts := strings.Split(s, val.String(args[1]))
	res := make(val.List, 0, len(parts))
	for _, p := range parts {
		res = append(res, val.Str(p))
	}
	return res, nil
}

func replace(_ context.Context, _ *eval.Env, args []val.Value) (val.Value, error) {
	s := strings.ReplaceAll(val.String(args[0]), val.String(args[1]), val.String(args[2]))
	return val.Str(s), nil
}

// contains tests whether text contains a substring or a collection contains an equal element.
func contains(ctx context.Context, env *eval.Env, args []val.Value) (val.Value, error) {
	a := args[0]
	if isNull(a) {
		return val.False, nil
	}
	if val.IsText(a.Kind()) {
		return val.Bool(strings.Contains(val.String(a), val.String(args[1]))), nil
	}
	if t, ok := a.(*val.Tuple); ok {
		a = val.List(t.Vals)
	}
	found := false
	errFound := errors.New("found")
	err := each(ctx, env, a, func(e val.Value) error {
		if val.Equal(e, args[1]) {
			found = true
			return errFound
		}
		return nil
	})
	if err != nil && err != errFound {
		return nil, err
	}
	return val.Bool(found), nil
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// timestamp converts unix seconds or text in one of the time layouts to a timestamp.
func timestamp(v val.Value) (val.Value, error) {
	switch v := v.(type) {
	case val.Null:
		return v, nil
	case val.Time:
		return v, nil
	case val.Int:
		return val.Time{Time: time.Unix(int64(v), 0).UTC()}, nil
	case val.Real:
		return val.Time{Time: time.UnixMilli(int64(float64(v) * 1000)).UTC()}, nil
	case val.Str, val.Key, val.Raw:
		if isNull(v) {
			return val.Null{}, nil
		}
		s := strings.TrimSpace(val.String(v))
		for _, l := range timeLayouts {
			if t, err := time.Parse(l, s); err == nil {
				return val.Time{Time: t}, nil
			}
		}
		if n, err := number(v); err == nil {
			return timestamp(n)
		}
		return nil, errors.Errorf("invalid timestamp %q", s)
	}
	return nil, errors.Errorf("cannot convert %s to timestamp", v.Kind())
}

// duration converts seconds or text like 1h30m to a duration.
func duration(v val.Value) (val.Value, error) {
	switch v := v.(type) {
	case val.Null, val.Dur:
		return v, nil
	case val.Int:
		return val.Dur(time.Duration(v) * time.Second), nil
	case val.Real:
		return val.Dur(float64(v) * float64(time.Second)), nil
	case val.Str, val.Key, val.Raw:
		if isNull(v) {
			return val.Null{}, nil
		}
		s := strings.TrimSpace(val.String(v))
		if d, err := time.ParseDuration(s); err == nil {
			return val.Dur(d), nil
		}
		if n, err := number(v); err == nil {
			return duration(n)
		}
		return nil, errors.Errorf("invalid duration %q", s)
	}
	return nil, errors.Errorf("cannot convert %s to duration", v.Kind())
}

// seconds returns a duration in seconds or a timestamp as unix seconds.
func seconds(v val.Value) (val.Value, error) {
	switch v := v.(type) {
	case val.Null:
		return v, nil
	case val.Dur:
		return val.Real(time.Duration(v).Seconds()), nil
	case val.Time:
		return val.Int(v.Unix()), nil
	}
	return nil, errors.Errorf("cannot convert %s to seconds", v.Kind())
}
