package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/hub"
	"github.com/smackem/redis-q-sub000/hub/wshub"
	"github.com/smackem/redis-q-sub000/srv"
	"github.com/smackem/redis-q-sub000/val"
	"github.com/spf13/cobra"
)

func newEval(a *app) *cobra.Command {
	var remote string
	cmd := &cobra.Command{
		Use:   "eval EXPR",
		Short: "Evaluate a statement and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote != "" {
				return a.evalRemote(cmd.Context(), cmd.OutOrStdout(), remote, args[0])
			}
			return a.eval(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "websocket url of a redq server, like ws://localhost:8480/ws")
	return cmd
}

func (a *app) eval(ctx context.Context, w io.Writer, expr string) error {
	s, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	v, err := srv.Exec(ctx, a.newEnv(s), expr)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, val.Format(v))
	return err
}

func (a *app) evalRemote(ctx context.Context, w io.Writer, url, expr string) error {
	c := wshub.NewClient(url)
	c.Log = a.log
	if err := c.Dial(ctx); err != nil {
		return err
	}
	defer c.Close()
	req := &srv.Request{Expr: expr}
	wait := time.Duration(0)
	if a.conf.Timeout > 0 {
		req.Timeout = a.conf.Timeout.String()
		// leave the server time to answer with its own timeout error
		wait = a.conf.Timeout + 5*time.Second
	}
	ctx, cancel := timeout(ctx, wait)
	defer cancel()
	m, err := hub.Req(ctx, c, &hub.Msg{Subj: srv.SubjEval, Data: req})
	if err != nil {
		return errors.Wrap(err, "remote eval")
	}
	var res srv.Response
	if err = json.Unmarshal(m.Raw, &res); err != nil {
		return errors.Wrap(err, "decode remote response")
	}
	if e := res.Err; e != nil {
		if e.Line > 0 {
			return errors.Errorf("%s error at %d:%d: %s", e.Kind, e.Line, e.Col, e.Msg)
		}
		return errors.Errorf("%s error: %s", e.Kind, e.Msg)
	}
	_, err = fmt.Fprintln(w, res.Text)
	return err
}
