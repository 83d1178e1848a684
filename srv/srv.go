// Package srv provides the query service routed by the hub.
//
// Clients send statements with the subject eval and receive one response per request. Every
// request is evaluated in a fresh root environment with a timeout.
package srv

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/eval"
	"github.com/smackem/redis-q-sub000/hub"
	"github.com/smackem/redis-q-sub000/log"
	"github.com/smackem/redis-q-sub000/src"
	"github.com/smackem/redis-q-sub000/syn"
	"github.com/smackem/redis-q-sub000/val"
	"golang.org/x/time/rate"
)

// Subjects handled by the service.
const (
	SubjEval  = "eval"
	SubjFuncs = "funcs"
)

// Request is the body of an eval message.
type Request struct {
	Expr string `json:"expr"`
	// Timeout is an optional duration like 5s. It cannot exceed the service timeout.
	Timeout string `json:"timeout,omitempty"`
}

// Response is the reply to an eval message.
type Response struct {
	ID      string      `json:"id"`
	Kind    string      `json:"kind,omitempty"`
	Result  interface{} `json:"result,omitempty"`
	Text    string      `json:"text,omitempty"`
	Err     *Error      `json:"err,omitempty"`
	Elapsed string      `json:"elapsed"`
}

// Error describes a failed request.
type Error struct {
	// Kind is one of request, rate, syntax, runtime or cancelled.
	Kind   string      `json:"kind"`
	Msg    string      `json:"msg"`
	Line   int         `json:"line,omitempty"`
	Col    int         `json:"col,omitempty"`
	Thrown interface{} `json:"thrown,omitempty"`
}

// Func describes a registered function for the funcs subject.
type Func struct {
	Name    string `json:"name"`
	Arities []int  `json:"arities"`
}

// Config holds the service limits.
type Config struct {
	Timeout time.Duration
	MaxRows int
	// Rate is the number of requests per second allowed for one connection.
	Rate  rate.Limit
	Burst int
}

// Service evaluates statements sent through a hub.
type Service struct {
	Config
	src  src.Source
	reg  *eval.Registry
	log  log.Logger
	hub  hub.Conn
	svcs hub.Services

	mu     sync.Mutex
	limits map[int64]*rate.Limiter
	wg     sync.WaitGroup
}

// New returns a service evaluating against s with the functions of reg. Replies are sent from h.
func New(h hub.Conn, s src.Source, reg *eval.Registry, c Config, l log.Logger) *Service {
	if l == nil {
		l = log.Root
	}
	if c.Rate == 0 {
		c.Rate = rate.Inf
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	svc := &Service{Config: c, src: s, reg: reg, log: l.With("mod", "srv"), hub: h,
		limits: make(map[int64]*rate.Limiter)}
	svc.svcs = hub.Services{
		SubjEval:  hub.ServiceFunc(svc.serveEval),
		SubjFuncs: hub.ServiceFunc(svc.serveFuncs),
	}
	return svc
}

// Route handles sign-on and sign-off messages and serves requests in new go routines.
func (s *Service) Route(m *hub.Msg) {
	switch m.Subj {
	case hub.SubjSignon:
		return
	case hub.SubjSignoff:
		s.mu.Lock()
		delete(s.limits, m.From.ID())
		s.mu.Unlock()
		return
	}
	if !s.limiter(m.From.ID()).Allow() {
		s.log.Debug("request rate limited", "conn", m.From.ID(), "subj", m.Subj)
		s.reply(m, &Response{ID: uuid.NewString(), Err: &Error{Kind: "rate", Msg: "too many requests"}})
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.svcs.Handle(m)
		if err != nil {
			res = &Response{ID: uuid.NewString(), Err: &Error{Kind: "request", Msg: err.Error()}}
		}
		s.reply(m, res)
	}()
}

// Wait blocks until all started requests are answered.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) limiter(id int64) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.limits[id]
	if l == nil {
		l = rate.NewLimiter(s.Rate, s.Burst)
		s.limits[id] = l
	}
	return l
}

func (s *Service) reply(m *hub.Msg, data interface{}) {
	select {
	case m.From.Chan() <- m.Reply(s.hub, data):
	case <-time.After(10 * time.Second):
		s.log.Debug("reply dropped", "conn", m.From.ID(), "subj", m.Subj)
	}
}

func (s *Service) serveFuncs(*hub.Msg) interface{} {
	names := s.reg.Names()
	res := make([]Func, 0, len(names))
	for _, n := range names {
		res = append(res, Func{Name: n, Arities: s.reg.Arities(n)})
	}
	return res
}

func decode(m *hub.Msg) (*Request, error) {
	switch d := m.Data.(type) {
	case *Request:
		return d, nil
	case Request:
		return &d, nil
	}
	var req Request
	if err := json.Unmarshal(m.Raw, &req); err != nil {
		return nil, errors.Wrap(err, "invalid eval request")
	}
	return &req, nil
}

func (s *Service) serveEval(m *hub.Msg) interface{} {
	start := time.Now()
	res := &Response{ID: uuid.NewString()}
	defer func() { res.Elapsed = time.Since(start).String() }()
	req, err := decode(m)
	if err != nil {
		res.Err = &Error{Kind: "request", Msg: err.Error()}
		return res
	}
	timeout := s.Timeout
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			res.Err = &Error{Kind: "request", Msg: "invalid timeout " + req.Timeout}
			return res
		}
		if timeout <= 0 || d < timeout {
			timeout = d
		}
	}
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	l := s.log.With("req", res.ID)
	env := eval.NewRoot(s.src, s.reg, eval.WithLogger(l), eval.WithMaxRows(s.MaxRows))
	v, err := Exec(ctx, env, req.Expr)
	if err != nil {
		res.Err = ErrorOf(err)
		l.Debug("eval failed", "conn", m.From.ID(), "err", err)
		return res
	}
	res.Kind = v.Kind().String()
	res.Result = JSON(v)
	res.Text = val.Format(v)
	return res
}

// Exec parses and evaluates the statement raw in env. Sequence results are collected into lists.
func Exec(ctx context.Context, env *eval.Env, raw string) (val.Value, error) {
	x, err := syn.Parse(raw)
	if err != nil {
		return nil, err
	}
	v, err := eval.Evaluate(ctx, x, env)
	if err != nil {
		return nil, err
	}
	if sq, ok := v.(*val.Seq); ok {
		return eval.Collect(ctx, env, sq)
	}
	return v, nil
}

// ErrorOf returns the error description for err.
func ErrorOf(err error) *Error {
	var se *syn.Error
	var re *eval.RuntimeError
	switch {
	case errors.As(err, &se):
		return &Error{Kind: "syntax", Msg: se.Msg, Line: se.Pos.Line, Col: se.Pos.Col}
	case eval.IsCancelled(err):
		return &Error{Kind: "cancelled", Msg: err.Error()}
	case errors.As(err, &re):
		res := &Error{Kind: "runtime", Msg: re.Err.Error(), Line: re.Pos.Line, Col: re.Pos.Col}
		if re.Thrown != nil {
			res.Thrown = JSON(re.Thrown)
		}
		return res
	}
	return &Error{Kind: "runtime", Msg: err.Error()}
}

// JSON returns v as plain go value suitable for JSON encoding. Tuples with names become objects.
func JSON(v val.Value) interface{} {
	switch v := v.(type) {
	case val.Null:
		return nil
	case val.Bool:
		return bool(v)
	case val.Int:
		return int64(v)
	case val.Real:
		return float64(v)
	case val.Raw:
		if v.Nil {
			return nil
		}
		return v.Text
	case val.Char, val.Str, val.Key, val.Time, val.Dur:
		return val.String(v)
	case *val.Tuple:
		if v.Shape != nil {
			res := make(map[string]interface{}, len(v.Vals))
			for i, e := range v.Vals {
				if n := v.Shape.Name(i); n != "" {
					res[n] = JSON(e)
					continue
				}
				return tupleList(v)
			}
			return res
		}
		return tupleList(v)
	case val.List:
		res := make([]interface{}, 0, len(v))
		for _, e := range v {
			res = append(res, JSON(e))
		}
		return res
	case val.Range:
		return map[string]int64{"start": v.Start, "end": v.End}
	}
	return val.Format(v)
}

func tupleList(t *val.Tuple) []interface{} {
	res := make([]interface{}, 0, len(t.Vals))
	for _, e := range t.Vals {
		res = append(res, JSON(e))
	}
	return res
}
