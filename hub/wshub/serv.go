package wshub

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/smackem/redis-q-sub000/hub"
	"github.com/smackem/redis-q-sub000/log"
)

// Serve returns a handler that upgrades requests to websocket connections and signs them on to h.
// Received messages are routed through h.
func Serve(h *hub.Hub, l log.Logger) http.HandlerFunc {
	if l == nil {
		l = log.Root
	}
	l = l.With("mod", "wshub")
	upgr := &websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		wc, err := upgr.Upgrade(w, r, nil)
		if err != nil {
			l.Debug("ws upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		c := &conn{id: hub.NextID(), wc: wc, send: make(chan *hub.Msg, 32), log: l}
		hub.Signon(h, c)
		go c.writeAll(nil)
		err = c.read(func(m *hub.Msg) {
			m.From = c
			h.Chan() <- m
		})
		hub.Signoff(h, c)
		if err != nil {
			l.Debug("ws read failed", "conn", c.id, "err", err)
		}
	}
}
