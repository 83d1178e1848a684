package wshub

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/hub"
	"github.com/smackem/redis-q-sub000/log"
)

// Client is a hub connection to a remote websocket hub. Messages sent to the client are
// forwarded to the server, and replies are routed back to the sender by token. Use hub.Req
// for request-response round trips.
type Client struct {
	url  string
	id   int64
	send chan *hub.Msg
	*websocket.Dialer
	Header http.Header
	Log    log.Logger
	reqs   hub.RequestMap
	done   chan struct{}
}

func NewClient(url string) *Client {
	return &Client{url: url, id: hub.NextID(), send: make(chan *hub.Msg, 32)}
}

func (c *Client) ID() int64             { return c.id }
func (c *Client) Chan() chan<- *hub.Msg { return c.send }

// Dial connects to the server and starts forwarding messages.
func (c *Client) Dial(ctx context.Context) error {
	c.init()
	wc, _, err := c.DialContext(ctx, c.url, c.Header)
	if err != nil {
		return errors.Wrapf(err, "dial %s", c.url)
	}
	cc := &conn{id: c.id, wc: wc, send: c.send, log: c.Log}
	c.done = make(chan struct{})
	go cc.writeAll(func(m *hub.Msg) { m.Tok = c.reqs.Note(m) })
	go func() {
		defer close(c.done)
		err := cc.read(func(m *hub.Msg) {
			if err := c.reqs.Response(m); err != nil {
				c.Log.Debug("unexpected message", "subj", m.Subj, "err", err)
			}
		})
		if err != nil {
			c.Log.Debug("ws read failed", "url", c.url, "err", err)
		}
		c.reqs.Close()
		select {
		case c.send <- nil:
		default:
		}
	}()
	return nil
}

// Close closes the connection and waits for the reader to finish.
func (c *Client) Close() error {
	if c.done == nil {
		return nil
	}
	select {
	case c.send <- nil:
	case <-c.done:
	}
	<-c.done
	return nil
}

func (c *Client) init() {
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.Log == nil {
		c.Log = log.Root
	}
	c.Log = c.Log.With("mod", "wshub")
}
