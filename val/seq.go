package val

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// Iter produces values on demand. It returns false when exhausted.
type Iter interface {
	Next(ctx context.Context) (Value, bool, error)
}

// IterFunc implements Iter with a plain function.
type IterFunc func(ctx context.Context) (Value, bool, error)

func (f IterFunc) Next(ctx context.Context) (Value, bool, error) { return f(ctx) }

// Seq is a lazy single-pass stream of values.
//
// Once exhausted, failed or closed, further pulls yield nothing. Every pull checks the context
// first, so a cancelled evaluation stops at the next pull.
type Seq struct {
	it   Iter
	done bool
}

func (*Seq) Kind() Kind { return KindSeq }

// NewSeq returns a sequence reading from it. If it implements io.Closer, it is closed once the
// sequence is exhausted, fails or is closed.
func NewSeq(it Iter) *Seq { return &Seq{it: it} }

// Next returns the next value of the sequence.
func (s *Seq) Next(ctx context.Context) (Value, bool, error) {
	if s.done {
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		s.Close()
		return nil, false, err
	}
	v, ok, err := s.it.Next(ctx)
	if err != nil || !ok {
		s.Close()
		return nil, false, err
	}
	return v, true, nil
}

// Done returns whether the sequence is exhausted.
func (s *Seq) Done() bool { return s.done }

// Close marks the sequence exhausted and releases the underlying iterator resources.
func (s *Seq) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	if c, ok := s.it.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// SliceIter iterates over a slice of values.
type SliceIter struct {
	Vals []Value
	Idx  int
}

func (it *SliceIter) Next(context.Context) (Value, bool, error) {
	if it.Idx < len(it.Vals) {
		v := it.Vals[it.Idx]
		it.Idx++
		return v, true, nil
	}
	return nil, false, nil
}

// RangeIter iterates over the integers of a range.
type RangeIter struct {
	Range
	Idx int64
}

func (it *RangeIter) Next(context.Context) (Value, bool, error) {
	if it.Idx < it.Len() {
		v := Int(it.Start + it.Idx)
		it.Idx++
		return v, true, nil
	}
	return nil, false, nil
}

// Enumerate returns a sequence over the elements of a list, range or sequence.
func Enumerate(v Value) (*Seq, error) {
	switch v := v.(type) {
	case List:
		return NewSeq(&SliceIter{Vals: v}), nil
	case Range:
		return NewSeq(&RangeIter{Range: v}), nil
	case *Seq:
		return v, nil
	}
	return nil, errors.Errorf("value of kind %s is not enumerable", v.Kind())
}

// CapError reports that a materializing operation exceeded its row cap.
type CapError struct {
	Max int
}

func (e *CapError) Error() string {
	return "row cap exceeded, more than " + String(Int(e.Max)) + " rows"
}

// Materialize reads all elements of a list, range or sequence into a new list. A max greater
// than zero limits the number of elements and returns a CapError when exceeded.
func Materialize(ctx context.Context, v Value, max int) (List, error) {
	switch v := v.(type) {
	case List:
		if max > 0 && len(v) > max {
			return nil, &CapError{Max: max}
		}
		return v, nil
	case Range:
		if max > 0 && v.Len() > int64(max) {
			return nil, &CapError{Max: max}
		}
	}
	s, err := Enumerate(v)
	if err != nil {
		return nil, err
	}
	var res List
	for {
		e, ok, err := s.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return res, nil
		}
		if max > 0 && len(res) >= max {
			s.Close()
			return nil, &CapError{Max: max}
		}
		res = append(res, e)
	}
}

// Drain pulls every element of v and calls f for each. It stops at the first error.
func Drain(ctx context.Context, v Value, f func(Value) error) error {
	s, err := Enumerate(v)
	if err != nil {
		return err
	}
	for {
		e, ok, err := s.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err = f(e); err != nil {
			s.Close()
			return err
		}
	}
}
