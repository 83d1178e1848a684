package hub

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/log"
)

func TestHub(t *testing.T) {
	h := NewHub(&log.Testing{TB: t})
	var signons int32
	r := Routers{
		RouterFunc(func(m *Msg) {
			if m.Subj == SubjSignon {
				atomic.AddInt32(&signons, 1)
			}
		}),
		Subjects(RouterFunc(func(m *Msg) {
			m.From.Chan() <- m.Reply(h, strings.ToUpper(string(m.Raw)))
		}), "echo"),
	}
	go h.Run(r)
	defer h.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := Req(ctx, h, &Msg{Subj: "echo", Tok: []byte("t1"), Raw: []byte("hi")})
	if err != nil {
		t.Fatalf("req: %v", err)
	}
	if res.Data != "HI" || string(res.Tok) != "t1" || res.From != h {
		t.Errorf("want reply HI#t1 from hub got %v#%s", res.Data, res.Tok)
	}

	short, stop := context.WithTimeout(ctx, 20*time.Millisecond)
	defer stop()
	_, err = Req(short, h, &Msg{Subj: "other"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("want deadline error for unrouted subject got %v", err)
	}

	ch := make(chan *Msg, 1)
	c := NewChanConn(NextID(), ch)
	Signon(h, c)
	Signoff(h, c)
	select {
	case m := <-ch:
		if m != nil {
			t.Errorf("want nil message after signoff got %v", m)
		}
	case <-ctx.Done():
		t.Fatalf("no signoff message")
	}
	if n := atomic.LoadInt32(&signons); n != 1 {
		t.Errorf("want 1 signon got %d", n)
	}
	if n := h.Conns(); n != 0 {
		t.Errorf("want no conns got %d", n)
	}
}

func TestRequestMap(t *testing.T) {
	var rm RequestMap
	ch := make(chan *Msg, 1)
	c := NewChanConn(5, ch)
	tok := rm.Note(&Msg{From: c, Subj: "x", Tok: []byte("orig")})
	if string(tok) != "1" {
		t.Errorf("want token 1 got %s", tok)
	}
	if err := rm.Response(&Msg{Subj: "x", Tok: tok, Data: 1}); err != nil {
		t.Fatalf("response: %v", err)
	}
	if m := <-ch; string(m.Tok) != "orig" || m.Data != 1 {
		t.Errorf("want response with original token got %s %v", m.Tok, m.Data)
	}
	for _, m := range []*Msg{{Subj: "x", Tok: tok}, {Subj: "x"}, {Subj: "x", Tok: []byte("zz")}} {
		if err := rm.Response(m); err == nil {
			t.Errorf("want error for response token %q", m.Tok)
		}
	}
	rm.Note(&Msg{From: c, Subj: "y"})
	rm.Close()
	if m := <-ch; m != nil {
		t.Errorf("want nil message on close got %v", m)
	}
}

func TestServices(t *testing.T) {
	s := Services{"ping": ServiceFunc(func(*Msg) interface{} { return "pong" })}
	res, err := s.Handle(&Msg{Subj: "ping"})
	if err != nil || res != "pong" {
		t.Errorf("want pong got %v %v", res, err)
	}
	_, err = s.Handle(&Msg{Subj: "nope"})
	if !errors.Is(err, ErrNoService) {
		t.Errorf("want no service error got %v", err)
	}
}
