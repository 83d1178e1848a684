package src

import (
	"context"
	"testing"

	"github.com/smackem/redis-q-sub000/val"
)

func TestToValue(t *testing.T) {
	tests := []struct {
		reply interface{}
		want  string
	}{
		{nil, "null"},
		{"a", "a"},
		{[]byte("b"), "b"},
		{int64(3), "3"},
		{1.5, "1.5"},
		{[]interface{}{"a", nil, int64(1)}, "['a', null, 1]"},
		{map[string]string{"b": "2", "a": "1"}, "[(field: 'a', value: '1'), (field: 'b', value: '2')]"},
	}
	for _, test := range tests {
		v, err := ToValue(test.reply)
		if err != nil {
			t.Errorf("%v: %v", test.reply, err)
			continue
		}
		if got := val.Format(v); got != test.want {
			t.Errorf("%v: want %s got %s", test.reply, test.want, got)
		}
	}
	if _, err := ToValue(struct{}{}); err == nil {
		t.Errorf("want error for unexpected reply")
	}
}

func TestPairs(t *testing.T) {
	l, err := Pairs(val.List{val.Payload("f"), val.Payload("v")})
	if err != nil {
		t.Fatal(err)
	}
	if got := val.Format(l); got != "[(field: 'f', value: 'v')]" {
		t.Errorf("want one pair got %s", got)
	}
	if _, err = Pairs(val.List{val.Payload("f")}); err == nil {
		t.Errorf("want error for odd reply")
	}
}

func TestArgString(t *testing.T) {
	tests := []struct {
		arg  interface{}
		want string
	}{
		{"s", "s"}, {7, "7"}, {int64(-2), "-2"}, {0.25, "0.25"}, {true, "1"}, {nil, ""},
	}
	for _, test := range tests {
		if got := ArgString(test.arg); got != test.want {
			t.Errorf("%v: want %q got %q", test.arg, test.want, got)
		}
	}
}

type fakeSource struct{ keys []string }

func (f *fakeSource) Do(ctx context.Context, cmd string, args ...interface{}) (interface{}, error) {
	if cmd == "get" {
		return "x", nil
	}
	return nil, Unsupported(cmd)
}

func (f *fakeSource) Keys(ctx context.Context, pattern string) (KeyIter, error) {
	return &sliceIter{keys: f.keys}, nil
}

func (f *fakeSource) Close() error { return nil }

type sliceIter struct{ keys []string }

func (it *sliceIter) Next(context.Context) (string, bool, error) {
	if len(it.keys) == 0 {
		return "", false, nil
	}
	k := it.keys[0]
	it.keys = it.keys[1:]
	return k, true, nil
}

func (it *sliceIter) Close() error { return nil }

func TestInstrument(t *testing.T) {
	ctx := context.Background()
	s := Instrument(&fakeSource{keys: []string{"a", "b"}})
	for i := 0; i < 3; i++ {
		if _, err := s.Do(ctx, "get", "k"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Do(ctx, "hget", "k", "f"); err == nil {
		t.Errorf("want unsupported error")
	}
	it, err := s.Keys(ctx, "*")
	if err != nil {
		t.Fatal(err)
	}
	l, err := val.Materialize(ctx, KeySeq(it), 0)
	if err != nil || val.Format(l) != "['a', 'b']" {
		t.Fatalf("want keys a b got %v %v", l, err)
	}
	st := s.Stats()
	if len(st) != 3 {
		t.Fatalf("want 3 stats got %d", len(st))
	}
	want := []struct {
		cmd string
		n   int64
	}{{"GET", 3}, {"HGET", 1}, {"SCAN", 3}}
	for i, w := range want {
		if st[i].Cmd != w.cmd || st[i].Count != w.n {
			t.Errorf("want %s %d got %s %d", w.cmd, w.n, st[i].Cmd, st[i].Count)
		}
	}
	s.Reset()
	if len(s.Stats()) != 0 {
		t.Errorf("want no stats after reset")
	}
}
