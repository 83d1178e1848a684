package lib

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/eval"
	"github.com/smackem/redis-q-sub000/src"
	"github.com/smackem/redis-q-sub000/val"
)

func registerData(reg *eval.Registry) {
	reg.MustAdd("keys", 0, keys).
		MustAdd("keys", 1, keys).
		MustAdd("get", 1, command("GET", asValue)).
		MustAdd("mget", 1, mget).
		MustAdd("exists", 1, command("EXISTS", asBool)).
		MustAdd("type", 1, command("TYPE", asStr)).
		MustAdd("strlen", 1, command("STRLEN", asValue)).
		MustAdd("hget", 2, command("HGET", asValue)).
		MustAdd("hgetall", 1, command("HGETALL", asPairs)).
		MustAdd("hkeys", 1, command("HKEYS", asValue)).
		MustAdd("hvals", 1, command("HVALS", asValue)).
		MustAdd("hlen", 1, command("HLEN", asValue)).
		MustAdd("lrange", 3, command("LRANGE", asValue)).
		MustAdd("llen", 1, command("LLEN", asValue)).
		MustAdd("lindex", 2, command("LINDEX", asValue)).
		MustAdd("smembers", 1, command("SMEMBERS", asValue)).
		MustAdd("scard", 1, command("SCARD", asValue)).
		MustAdd("sismember", 2, command("SISMEMBER", asBool)).
		MustAdd("zrange", 3, command("ZRANGE", asValue)).
		MustAdd("zcard", 1, command("ZCARD", asValue)).
		MustAdd("zscore", 2, command("ZSCORE", asReal)).
		MustAdd("ttl", 1, command("TTL", asValue)).
		MustAdd("cmd", 2, cmd).
		MustAdd("stats", 0, stats)
}

func do(ctx context.Context, env *eval.Env, cmd string, args ...interface{}) (interface{}, error) {
	s := env.Source()
	if s == nil {
		return nil, ErrNoSource
	}
	return s.Do(ctx, cmd, args...)
}

// arg converts a value to a command argument. Numbers stay numbers, everything else is text.
func arg(v val.Value) interface{} {
	switch v := v.(type) {
	case val.Int:
		return int64(v)
	case val.Real:
		return float64(v)
	}
	return val.String(v)
}

// command returns a function that sends cmd with its arguments and converts the reply with res.
func command(cmd string, res func(interface{}) (val.Value, error)) fn {
	return func(ctx context.Context, env *eval.Env, args []val.Value) (val.Value, error) {
		as := make([]interface{}, 0, len(args))
		for _, a := range args {
			as = append(as, arg(a))
		}
		r, err := do(ctx, env, cmd, as...)
		if err != nil {
			return nil, err
		}
		return res(r)
	}
}

func asValue(r interface{}) (val.Value, error) { return src.ToValue(r) }

func asBool(r interface{}) (val.Value, error) {
	n, ok := r.(int64)
	if !ok {
		return nil, errors.Errorf("expect integer reply got %T", r)
	}
	return val.Bool(n != 0), nil
}

func asStr(r interface{}) (val.Value, error) {
	v, err := src.ToValue(r)
	if err != nil {
		return nil, err
	}
	return val.Str(val.String(v)), nil
}

// asReal converts a score reply. Servers speaking RESP2 send scores as text.
func asReal(r interface{}) (val.Value, error) {
	switch r := r.(type) {
	case nil:
		return val.Null{}, nil
	case float64:
		return val.Real(r), nil
	case string:
		f, err := strconv.ParseFloat(r, 64)
		if err != nil {
			return nil, errors.Errorf("invalid score %q", r)
		}
		return val.Real(f), nil
	}
	return nil, errors.Errorf("expect score reply got %T", r)
}

// asPairs converts a hash reply to a list of (field, value) tuples. The reply is either a map
// or a flat list of fields and values.
func asPairs(r interface{}) (val.Value, error) {
	v, err := src.ToValue(r)
	if err != nil {
		return nil, err
	}
	if _, ok := r.([]interface{}); ok {
		return src.Pairs(v.(val.List))
	}
	return v, nil
}

func keys(ctx context.Context, env *eval.Env, args []val.Value) (val.Value, error) {
	s := env.Source()
	if s == nil {
		return nil, ErrNoSource
	}
	pattern := "*"
	if len(args) > 0 {
		pattern = val.String(args[0])
	}
	it, err := s.Keys(ctx, pattern)
	if err != nil {
		return nil, err
	}
	return src.KeySeq(it), nil
}

func mget(ctx context.Context, env *eval.Env, args []val.Value) (val.Value, error) {
	ks, err := eval.Collect(ctx, env, args[0])
	if err != nil {
		return nil, err
	}
	if len(ks) == 0 {
		return val.List{}, nil
	}
	as := make([]interface{}, 0, len(ks))
	for _, k := range ks {
		as = append(as, arg(k))
	}
	r, err := do(ctx, env, "MGET", as...)
	if err != nil {
		return nil, err
	}
	return src.ToValue(r)
}

// cmd sends any command. The second argument is the list of command arguments.
func cmd(ctx context.Context, env *eval.Env, args []val.Value) (val.Value, error) {
	name := strings.TrimSpace(val.String(args[0]))
	if name == "" {
		return nil, errors.New("empty command name")
	}
	var as []interface{}
	if !isNull(args[1]) {
		l, err := eval.Collect(ctx, env, args[1])
		if err != nil {
			return nil, err
		}
		for _, a := range l {
			as = append(as, arg(a))
		}
	}
	r, err := do(ctx, env, name, as...)
	if err != nil {
		return nil, err
	}
	return src.ToValue(r)
}

var statShape = &val.Shape{Names: []string{"cmd", "count", "mean", "p50", "p99", "max"}}

// stats reports the recorded command latencies of an instrumented data source.
func stats(ctx context.Context, env *eval.Env, args []val.Value) (val.Value, error) {
	s, ok := env.Source().(*src.Instrumented)
	if !ok {
		return val.List{}, nil
	}
	res := val.List{}
	for _, st := range s.Stats() {
		res = append(res, &val.Tuple{Shape: statShape, Vals: []val.Value{
			val.Str(st.Cmd), val.Int(st.Count),
			val.Dur(st.Mean), val.Dur(st.P50), val.Dur(st.P99), val.Dur(st.Max),
		}})
	}
	return res, nil
}
