package eval

import (
	"context"
	"reflect"
	"testing"

	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/val"
)

func TestScope(t *testing.T) {
	root := NewRoot(nil, nil)
	root.Bind("a", val.Int(1))
	root.Bind("c", val.Int(4))
	child := root.Inherit()
	child.Bind("a", val.Int(2))
	child.Bind("b", val.Int(3))
	if v, err := child.Resolve("a"); err != nil || v != val.Int(2) {
		t.Errorf("resolve a want 2 got %v %v", v, err)
	}
	if v, err := child.Resolve("c"); err != nil || v != val.Int(4) {
		t.Errorf("resolve c want 4 got %v %v", v, err)
	}
	if v, err := root.Resolve("a"); err != nil || v != val.Int(1) {
		t.Errorf("root a want 1 got %v %v", v, err)
	}
	if _, err := root.Resolve("b"); !errors.Is(err, ErrUnresolved) {
		t.Errorf("root b want unresolved got %v", err)
	}
	if child.Parent() != root || root.Parent() != nil {
		t.Errorf("unexpected parents")
	}
	want := []string{"a", "b", "c"}
	if got := child.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("names want %v got %v", want, got)
	}
}

func TestSnapshot(t *testing.T) {
	root := NewRoot(nil, nil)
	root.Bind("a", val.Int(1))
	root.Bind("c", val.Int(4))
	child := root.Inherit()
	child.Bind("a", val.Int(2))
	child.Bind("b", val.Int(3))
	snap := child.Snapshot()
	want := Snapshot{"a": val.Int(2), "b": val.Int(3), "c": val.Int(4)}
	if !reflect.DeepEqual(snap, want) {
		t.Fatalf("snapshot want %v got %v", want, snap)
	}
	child.Bind("a", val.Int(5))
	root.Bind("c", val.Int(6))
	if snap["a"] != val.Int(2) || snap["c"] != val.Int(4) {
		t.Errorf("snapshot changed with scope: %v", snap)
	}
	other := root.Inherit()
	other.Bind("d", val.Int(7))
	other.RestoreAll(snap)
	for k, v := range want {
		if got, err := other.Resolve(k); err != nil || got != v {
			t.Errorf("restored %s want %v got %v %v", k, v, got, err)
		}
	}
	if got, _ := other.Resolve("d"); got != val.Int(7) {
		t.Errorf("restore dropped binding d: %v", got)
	}
	if got, _ := root.Resolve("b"); got != nil {
		t.Errorf("restore leaked into parent scope: %v", got)
	}
	snap["a"] = val.Int(9)
	if got, _ := other.Resolve("a"); got != val.Int(2) {
		t.Errorf("restored scope shares snapshot: %v", got)
	}
}

func TestRegistry(t *testing.T) {
	f := func(context.Context, *Env, []val.Value) (val.Value, error) { return val.True, nil }
	r := NewRegistry()
	if err := r.Add("f", 1, f); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Add("f", 2, f); err != nil {
		t.Fatalf("add other arity: %v", err)
	}
	if err := r.Add("f", 1, f); err == nil {
		t.Errorf("duplicate add want error")
	}
	if _, err := r.Lookup("f", 2); err != nil {
		t.Errorf("lookup: %v", err)
	}
	if _, err := r.Lookup("g", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("lookup g want not found got %v", err)
	}
	_, err := r.Lookup("f", 3)
	if !errors.Is(err, ErrArity) || errors.Is(err, ErrNotFound) {
		t.Errorf("lookup f/3 want arity error got %v", err)
	}
	if got := r.Arities("f"); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("arities want [1 2] got %v", got)
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"f"}) {
		t.Errorf("names want [f] got %v", got)
	}
}
