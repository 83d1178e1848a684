// Package src declares the data source contract used by the evaluator and built-in functions.
//
// A data source executes read commands against one logical key/value database and enumerates
// keys lazily. Sources are slow and fallible; every call is a suspension point that observes the
// context and may fail.
package src

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/val"
)

// Source is implemented by data source backends.
type Source interface {
	// Do executes a read command and returns the raw reply. A nil reply marks absent data.
	// Replies are nil, string, []byte, int64, float64, bool, []interface{} or
	// map[interface{}]interface{} values.
	Do(ctx context.Context, cmd string, args ...interface{}) (interface{}, error)
	// Keys returns a lazy iterator over all keys matching the glob pattern.
	Keys(ctx context.Context, pattern string) (KeyIter, error)
	Close() error
}

// KeyIter iterates over keys. It returns false when exhausted.
type KeyIter interface {
	Next(ctx context.Context) (string, bool, error)
	Close() error
}

// ErrUnsupported is returned by sources for commands they do not implement.
var ErrUnsupported = errors.New("command not supported by data source")

// ErrWrongType is returned for commands against a key holding another kind of value.
var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// Unsupported returns an error for cmd wrapping ErrUnsupported.
func Unsupported(cmd string) error {
	return errors.Wrapf(ErrUnsupported, "%s", strings.ToUpper(cmd))
}

// ArgString converts a command argument to text the way redis clients do.
func ArgString(a interface{}) string {
	switch a := a.(type) {
	case string:
		return a
	case []byte:
		return string(a)
	case int:
		return strconv.Itoa(a)
	case int64:
		return strconv.FormatInt(a, 10)
	case float64:
		return strconv.FormatFloat(a, 'f', -1, 64)
	case bool:
		if a {
			return "1"
		}
		return "0"
	case nil:
		return ""
	}
	return fmt.Sprint(a)
}

// KeySeq returns a lazy sequence of key handles read from it.
func KeySeq(it KeyIter) *val.Seq {
	return val.NewSeq(&keySeqIter{it})
}

type keySeqIter struct{ KeyIter }

func (it *keySeqIter) Next(ctx context.Context) (val.Value, bool, error) {
	k, ok, err := it.KeyIter.Next(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	return val.Key(k), true, nil
}

// ToValue converts a command reply to a value. Text replies are payloads, nil replies are
// absent payloads and nested replies become lists. Map replies become a list of
// (field, value) tuples ordered by field.
func ToValue(reply interface{}) (val.Value, error) {
	switch r := reply.(type) {
	case nil:
		return val.Absent, nil
	case string:
		return val.Payload(r), nil
	case []byte:
		return val.Payload(string(r)), nil
	case int64:
		return val.Int(r), nil
	case int:
		return val.Int(r), nil
	case float64:
		return val.Real(r), nil
	case bool:
		return val.Bool(r), nil
	case []string:
		res := make(val.List, 0, len(r))
		for _, s := range r {
			res = append(res, val.Payload(s))
		}
		return res, nil
	case []interface{}:
		res := make(val.List, 0, len(r))
		for _, e := range r {
			v, err := ToValue(e)
			if err != nil {
				return nil, err
			}
			res = append(res, v)
		}
		return res, nil
	case map[string]string:
		m := make(map[interface{}]interface{}, len(r))
		for k, v := range r {
			m[k] = v
		}
		return mapValue(m)
	case map[interface{}]interface{}:
		return mapValue(r)
	case error:
		return nil, r
	}
	return nil, errors.Errorf("unexpected data source reply %T", reply)
}

var pairShape = &val.Shape{Names: []string{"field", "value"}}

func mapValue(m map[interface{}]interface{}) (val.Value, error) {
	res := make(val.List, 0, len(m))
	for k, v := range m {
		kv, err := ToValue(k)
		if err != nil {
			return nil, err
		}
		vv, err := ToValue(v)
		if err != nil {
			return nil, err
		}
		res = append(res, Pair(kv, vv))
	}
	sort.SliceStable(res, func(i, j int) bool {
		a := val.String(res[i].(*val.Tuple).Vals[0])
		b := val.String(res[j].(*val.Tuple).Vals[0])
		return a < b
	})
	return res, nil
}

// Pair returns a (field, value) tuple as used for hash entries.
func Pair(field, value val.Value) *val.Tuple {
	return &val.Tuple{Vals: []val.Value{field, value}, Shape: pairShape}
}

// Pairs converts a flat field value reply list into a list of (field, value) tuples.
func Pairs(l val.List) (val.List, error) {
	if len(l)%2 != 0 {
		return nil, errors.Errorf("expect even number of reply elements got %d", len(l))
	}
	res := make(val.List, 0, len(l)/2)
	for i := 0; i < len(l); i += 2 {
		res = append(res, Pair(l[i], l[i+1]))
	}
	return res, nil
}
