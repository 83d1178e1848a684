// Package hub provides a transport agnostic connection hub.
package hub

import (
	"sync"

	"github.com/smackem/redis-q-sub000/log"
)

const (
	SubjSignon  = "+"
	SubjSignoff = "-"
)

// Msg is a request or reply passed through the hub.
//
// Eval requests carry their statement either as typed data from in-process callers or as raw
// JSON from remote clients. Replies keep the token of the request so that clients can match them.
type Msg struct {
	From Conn
	// Subj selects the service, like eval or funcs.
	Subj string
	// Tok is an opaque request token chosen by the sender.
	Tok []byte
	// Raw is the encoded body as received by a transport.
	Raw []byte
	// Data is the decoded or typed body. Transports encode it as JSON if raw is empty.
	Data interface{}
}

// Reply returns a reply message for m from c with data. The token of m is kept.
func (m *Msg) Reply(c Conn, data interface{}) *Msg {
	return &Msg{From: c, Subj: m.Subj, Tok: m.Tok, Data: data}
}

// Router handles messages received by the hub.
type Router interface{ Route(*Msg) }

// Conn is a hub participant.
type Conn interface {
	// ID is 0 for the hub, -1 for one-off request connections and positive otherwise.
	ID() int64
	// Chan returns the channel the participant receives messages on. A nil message is sent after
	// the participant signed off.
	Chan() chan<- *Msg
}

// Hub routes messages of all connected clients to one router and tracks signed on connections.
// The hub is itself a Conn with ID 0, so services reply from it.
//
// Connections created by Req are not signed on. Services must reply to them directly and drop
// them afterwards.
type Hub struct {
	sync.Mutex
	Log  log.Logger
	cmap map[int64]Conn
	mque chan *Msg
}

// NewHub returns a hub logging to l.
func NewHub(l log.Logger) *Hub {
	if l == nil {
		l = log.Root
	}
	return &Hub{
		Log:  l.With("mod", "hub"),
		cmap: make(map[int64]Conn, 64),
		mque: make(chan *Msg, 128),
	}
}

func (h *Hub) ID() int64         { return 0 }
func (h *Hub) Chan() chan<- *Msg { return h.mque }

// Conns returns the number of signed on connections.
func (h *Hub) Conns() int {
	h.Lock()
	defer h.Unlock()
	return len(h.cmap)
}

// Signon sends a sign-on message for c to the hub.
func Signon(h Conn, c Conn) { h.Chan() <- &Msg{From: c, Subj: SubjSignon} }

// Signoff sends a sign-off message for c to the hub.
func Signoff(h Conn, c Conn) { h.Chan() <- &Msg{From: c, Subj: SubjSignoff} }

// Run passes queued messages to r until Stop is called.
func (h *Hub) Run(r Router) {
	for m := range h.mque {
		if m == nil {
			break
		}
		if m.Subj == SubjSignon {
			h.Lock()
			h.cmap[m.From.ID()] = m.From
			h.Unlock()
			h.Log.Debug("conn signon", "conn", m.From.ID())
		}
		r.Route(m)
		if m.Subj == SubjSignoff {
			h.Lock()
			delete(h.cmap, m.From.ID())
			m.From.Chan() <- nil
			h.Unlock()
			h.Log.Debug("conn signoff", "conn", m.From.ID())
		}
	}
}

// Stop stops the routing loop after all queued messages.
func (h *Hub) Stop() { h.mque <- nil }
