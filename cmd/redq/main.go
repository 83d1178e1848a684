// Command redq evaluates queries against redis keys.
//
// Statements are evaluated against the configured data source, either once with eval, in a
// read-eval-print-loop with repl or for remote clients with serve.
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/smackem/redis-q-sub000/cfg"
	"github.com/smackem/redis-q-sub000/eval"
	"github.com/smackem/redis-q-sub000/lib"
	"github.com/smackem/redis-q-sub000/log"
	"github.com/smackem/redis-q-sub000/src"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRoot().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// app holds the configuration shared by all commands.
type app struct {
	path  string
	flags cfg.Config
	conf  cfg.Config
	log   log.Logger
}

func newRoot() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:               "redq",
		Short:             "Query redis keys with a small query language",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	cmd.CompletionOptions.HiddenDefaultCmd = true
	f := cmd.PersistentFlags()
	f.StringVarP(&a.path, "config", "c", "", "yaml config file")
	f.StringVar(&a.flags.Source, "source", "", "data source: redis, postgres, sqlite or mem")
	f.StringVar(&a.flags.URL, "url", "", "redis url, postgres dsn or sqlite file")
	f.DurationVar(&a.flags.Timeout, "timeout", 0, "evaluation timeout per statement")
	f.IntVar(&a.flags.MaxRows, "max-rows", 0, "row cap for materializing operations")
	f.StringVar(&a.flags.LogLevel, "log-level", "", "log level: debug, info, warn or error")
	f.StringVar(&a.flags.Fixture, "fixture", "", "yaml fixture file or directory loaded into the source")
	cmd.AddCommand(newEval(a), newRepl(a), newServe(a), newParse())
	return cmd
}

// setup loads the configuration and applies the changed flags over it.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	c, err := cfg.Load(a.path)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if f.Changed("source") {
		c.Source = a.flags.Source
	}
	if f.Changed("url") {
		c.URL = a.flags.URL
	}
	if f.Changed("timeout") {
		c.Timeout = a.flags.Timeout
	}
	if f.Changed("max-rows") {
		c.MaxRows = a.flags.MaxRows
	}
	if f.Changed("log-level") {
		c.LogLevel = a.flags.LogLevel
	}
	if f.Changed("fixture") {
		c.Fixture = a.flags.Fixture
	}
	if err = c.Validate(); err != nil {
		return err
	}
	l, err := c.Logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.conf, a.log = c, l
	return nil
}

func (a *app) open(ctx context.Context) (*src.Instrumented, error) {
	return a.conf.Open(ctx, a.log)
}

func (a *app) newEnv(s src.Source) *eval.Env {
	return eval.NewRoot(s, lib.Default(), eval.WithLogger(a.log), eval.WithMaxRows(a.conf.MaxRows))
}

// withTimeout returns ctx limited by the configured timeout, if any.
func (a *app) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return timeout(ctx, a.conf.Timeout)
}

func timeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
