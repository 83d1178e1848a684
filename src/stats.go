package src

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/codahale/hdrhistogram"
)

// Stat summarizes the latencies of one command.
type Stat struct {
	Cmd   string
	Count int64
	Mean  time.Duration
	P50   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// Instrumented wraps a source and records the latency of every round trip per command.
// Key enumeration is recorded as SCAN, once per pulled key.
type Instrumented struct {
	Source
	mu    sync.Mutex
	hists map[string]*hdrhistogram.Histogram
}

// Instrument returns s wrapped with latency recording.
func Instrument(s Source) *Instrumented {
	return &Instrumented{Source: s, hists: make(map[string]*hdrhistogram.Histogram)}
}

func (s *Instrumented) Do(ctx context.Context, cmd string, args ...interface{}) (interface{}, error) {
	start := time.Now()
	res, err := s.Source.Do(ctx, cmd, args...)
	s.record(strings.ToUpper(cmd), time.Since(start))
	return res, err
}

func (s *Instrumented) Keys(ctx context.Context, pattern string) (KeyIter, error) {
	it, err := s.Source.Keys(ctx, pattern)
	if err != nil {
		return nil, err
	}
	return &timedIter{it, s}, nil
}

type timedIter struct {
	KeyIter
	s *Instrumented
}

func (it *timedIter) Next(ctx context.Context) (string, bool, error) {
	start := time.Now()
	k, ok, err := it.KeyIter.Next(ctx)
	it.s.record("SCAN", time.Since(start))
	return k, ok, err
}

func (s *Instrumented) record(cmd string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.hists[cmd]
	if h == nil {
		// microsecond resolution up to one minute
		h = hdrhistogram.New(1, int64(time.Minute/time.Microsecond), 3)
		s.hists[cmd] = h
	}
	us := int64(d / time.Microsecond)
	if us < 1 {
		us = 1
	}
	if max := h.HighestTrackableValue(); us > max {
		us = max
	}
	h.RecordValue(us)
}

// Stats returns the recorded latencies ordered by command name.
func (s *Instrumented) Stats() []Stat {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]Stat, 0, len(s.hists))
	for cmd, h := range s.hists {
		res = append(res, Stat{
			Cmd:   cmd,
			Count: h.TotalCount(),
			Mean:  time.Duration(h.Mean()) * time.Microsecond,
			P50:   time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
			P99:   time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
			Max:   time.Duration(h.Max()) * time.Microsecond,
		})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Cmd < res[j].Cmd })
	return res
}

// Reset drops all recorded latencies.
func (s *Instrumented) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hists = make(map[string]*hdrhistogram.Histogram)
}

