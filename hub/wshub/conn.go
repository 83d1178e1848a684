// Package wshub connects hub participants over websockets.
//
// A message is sent as one text frame: the subject, an optional '#' and token, and an optional
// newline followed by the body. Typed message data is encoded as JSON.
package wshub

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/hub"
	"github.com/smackem/redis-q-sub000/log"
)

const (
	writeTimeout = 10 * time.Second
	pingPeriod   = 60 * time.Second
)

type conn struct {
	id   int64
	wc   *websocket.Conn
	send chan *hub.Msg
	log  log.Logger
}

func (c *conn) ID() int64             { return c.id }
func (c *conn) Chan() chan<- *hub.Msg { return c.send }

// read reads messages and calls route for each until the connection is closed.
func (c *conn) read(route func(*hub.Msg)) error {
	for {
		op, r, err := c.wc.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, net.ErrClosed) {
				return nil
			}
			return errors.Wrap(err, "wshub next reader")
		}
		if op != websocket.TextMessage {
			return errors.New("wshub unexpected binary message")
		}
		m, err := readMsg(r)
		if err != nil {
			return errors.Wrap(err, "wshub msg read failed")
		}
		route(m)
	}
}

func readMsg(r io.Reader) (*hub.Msg, error) {
	var b bytes.Buffer
	if _, err := b.ReadFrom(r); err != nil {
		return nil, err
	}
	var tok, body []byte
	head := b.Bytes()
	idx := bytes.IndexByte(head, '\n')
	if idx >= 0 {
		head, body = head[:idx], head[idx+1:]
	}
	idx = bytes.IndexByte(head, '#')
	if idx >= 0 {
		head, tok = head[:idx], head[idx+1:]
	}
	if len(head) == 0 {
		return nil, errors.New("message without subject")
	}
	return &hub.Msg{
		Subj: string(head),
		Tok:  copyBytes(tok),
		Raw:  copyBytes(body),
	}, nil
}

// writeAll writes messages from the send channel until it receives nil. Prep is called for each
// message before it is written and may be nil.
func (c *conn) writeAll(prep func(*hub.Msg)) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	defer c.wc.Close()
	for {
		select {
		case m := <-c.send:
			if m == nil {
				c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
				c.wc.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if prep != nil {
				prep(m)
			}
			if err := c.writeMsg(m); err != nil {
				c.log.Debug("wshub write failed", "conn", c.id, "err", err)
				c.wc.Close()
				c.drain()
				return
			}
		case <-t.C:
			c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.wc.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.wc.Close()
				c.drain()
				return
			}
		}
	}
}

// drain discards messages until the closing nil message, so that senders never block.
func (c *conn) drain() {
	for m := range c.send {
		if m == nil {
			return
		}
	}
}

func (c *conn) writeMsg(m *hub.Msg) error {
	var b bytes.Buffer
	if err := writeMsgTo(&b, m); err != nil {
		return err
	}
	c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.wc.WriteMessage(websocket.TextMessage, b.Bytes())
}

func writeMsgTo(b *bytes.Buffer, m *hub.Msg) error {
	b.WriteString(m.Subj)
	if len(m.Tok) != 0 {
		b.WriteByte('#')
		b.Write(m.Tok)
	}
	if len(m.Raw) != 0 {
		b.WriteByte('\n')
		b.Write(m.Raw)
		return nil
	}
	if m.Data != nil {
		b.WriteByte('\n')
		return json.NewEncoder(b).Encode(m.Data)
	}
	return nil
}

func copyBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	res := make([]byte, len(b))
	copy(res, b)
	return res
}
