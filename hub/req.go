package hub

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
)

// lastID holds the last id returned from next id. It must only be accessed as atomic primitives.
var lastID = new(int64)

// NextID returns a new unused normal connection id.
func NextID() int64 { return atomic.AddInt64(lastID, 1) }

// ChanConn is a channel based connection used for simple in-process hub participants.
type ChanConn struct {
	id int64
	ch chan *Msg
}

// NewChanConn returns a new channel connection with the given id and channel.
func NewChanConn(id int64, c chan *Msg) *ChanConn { return &ChanConn{id, c} }

func (c *ChanConn) ID() int64         { return c.id }
func (c *ChanConn) Chan() chan<- *Msg { return c.ch }

// ErrClosed is returned by Req when the connection was closed before a response arrived.
var ErrClosed = errors.New("conn closed")

// Req sends req to c from a newly created transient connection and returns the first response
// or an error if the context is done first.
func Req(ctx context.Context, c Conn, req *Msg) (*Msg, error) {
	ch := make(chan *Msg, 1)
	req.From = NewChanConn(-1, ch)
	select {
	case c.Chan() <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-ch:
		if res == nil {
			return nil, ErrClosed
		}
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
