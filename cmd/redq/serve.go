package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/hub"
	"github.com/smackem/redis-q-sub000/hub/wshub"
	"github.com/smackem/redis-q-sub000/lib"
	"github.com/smackem/redis-q-sub000/log"
	"github.com/smackem/redis-q-sub000/srv"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

func newServe(a *app) *cobra.Command {
	var (
		listen string
		rps    float64
		burst  int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve statement evaluation over websocket at /ws",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("listen") {
				a.conf.Listen = listen
			}
			ln, err := net.Listen("tcp", a.conf.Listen)
			if err != nil {
				return errors.Wrap(err, "listen")
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "serving on ws://%s/ws\n", ln.Addr())
			lim := rate.Inf
			if rps > 0 {
				lim = rate.Limit(rps)
			}
			return a.serve(cmd.Context(), ln, srv.Config{
				Timeout: a.conf.Timeout,
				MaxRows: a.conf.MaxRows,
				Rate:    lim,
				Burst:   burst,
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&listen, "listen", "", "listen address, overrides the configured address")
	f.Float64Var(&rps, "rate", 10, "requests per second per connection, 0 for no limit")
	f.IntVar(&burst, "burst", 20, "request burst per connection")
	return cmd
}

var serviceSubjs = []string{hub.SubjSignon, hub.SubjSignoff, srv.SubjEval, srv.SubjFuncs}

// serviceRouter passes connection events and service requests to svc. Messages with other
// subjects are dropped before they reach the rate limiter.
func serviceRouter(svc hub.Router, l log.Logger) hub.Router {
	known := make(map[string]bool, len(serviceSubjs))
	for _, s := range serviceSubjs {
		known[s] = true
	}
	return hub.Routers{
		hub.Subjects(svc, serviceSubjs...),
		hub.RouterFunc(func(m *hub.Msg) {
			if !known[m.Subj] {
				l.Debug("message dropped", "subj", m.Subj)
			}
		}),
	}
}

// serve runs the query service on ln until ctx is done.
func (a *app) serve(ctx context.Context, ln net.Listener, c srv.Config) error {
	s, err := a.open(ctx)
	if err != nil {
		ln.Close()
		return err
	}
	defer s.Close()
	h := hub.NewHub(a.log)
	svc := srv.New(h, s, lib.Default(), c, a.log)
	go h.Run(serviceRouter(svc, a.log))
	mux := http.NewServeMux()
	mux.Handle("/ws", wshub.Serve(h, a.log))
	hs := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- hs.Serve(ln) }()
	select {
	case err = <-errc:
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = hs.Shutdown(sctx)
		cancel()
	}
	svc.Wait()
	h.Stop()
	if err == http.ErrServerClosed {
		err = nil
	}
	return errors.Wrap(err, "serve")
}
