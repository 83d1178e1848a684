package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/eval"
	"github.com/smackem/redis-q-sub000/src"
	"github.com/smackem/redis-q-sub000/srv"
	"github.com/smackem/redis-q-sub000/val"
	"github.com/spf13/cobra"
)

const replHelp = `statements are evaluated in one session, let bindings are kept
  :env     list session bindings
  :stats   show data source command latencies
  :funcs   list functions
  :quit    leave the session
`

func newRepl(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Run a read-eval-print-loop against the data source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			sess := &session{app: a, src: s, env: a.newEnv(s)}
			if f, ok := cmd.InOrStdin().(*os.File); ok && isTerminal(f) {
				return sess.interactive(cmd.Context(), cmd.OutOrStdout())
			}
			return sess.script(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// session evaluates statements in one persistent root environment.
type session struct {
	*app
	src *src.Instrumented
	env *eval.Env
}

// exec evaluates or handles the command line and writes the result to w. It returns false if
// the session should end.
func (s *session) exec(ctx context.Context, w io.Writer, line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return true
	case ":q", ":quit":
		return false
	case ":h", ":help":
		fmt.Fprint(w, replHelp)
		return true
	case ":env":
		for _, n := range s.env.Names() {
			v, _ := s.env.Lookup(n)
			fmt.Fprintf(w, "%s = %s\n", n, val.Format(v))
		}
		return true
	case ":stats":
		for _, st := range s.src.Stats() {
			fmt.Fprintf(w, "%-10s %8d  mean %-10s p50 %-10s p99 %-10s max %s\n",
				st.Cmd, st.Count, st.Mean, st.P50, st.P99, st.Max)
		}
		return true
	case ":funcs":
		reg := s.env.Registry()
		for _, n := range reg.Names() {
			fmt.Fprintf(w, "%s/%v\n", n, reg.Arities(n))
		}
		return true
	}
	if line[0] == '#' {
		return true
	}
	if line[0] == ':' {
		fmt.Fprintf(w, "unknown command %s, try :help\n", line)
		return true
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	v, err := srv.Exec(ctx, s.env, line)
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return true
	}
	fmt.Fprintf(w, "= %s\n", val.Format(v))
	return true
}

// script reads one statement per line from r without prompts.
func (s *session) script(ctx context.Context, r io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if !s.exec(ctx, w, sc.Text()) || ctx.Err() != nil {
			return nil
		}
	}
	return errors.Wrap(sc.Err(), "read statements")
}

func (s *session) interactive(ctx context.Context, w io.Writer) error {
	lin := liner.NewLiner()
	defer lin.Close()
	lin.SetCtrlCAborts(true)
	lin.SetMultiLineMode(true)
	lin.SetCompleter(s.complete)
	hist := historyPath()
	if hist != "" {
		if f, err := os.Open(hist); err == nil {
			lin.ReadHistory(f)
			f.Close()
		}
		defer func() {
			f, err := os.Create(hist)
			if err != nil {
				s.log.Debug("history not saved", "path", hist, "err", err)
				return
			}
			lin.WriteHistory(f)
			f.Close()
		}()
	}
	fmt.Fprint(w, "redq session, :help for commands\n")
	for ctx.Err() == nil {
		got, err := lin.Prompt("> ")
		if err != nil {
			if err == liner.ErrPromptAborted {
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(w)
				return nil
			}
			return errors.Wrap(err, "read prompt")
		}
		if strings.TrimSpace(got) != "" {
			lin.AppendHistory(got)
		}
		if !s.exec(ctx, w, got) {
			return nil
		}
	}
	return nil
}

// complete returns completions of the last name in line from the session bindings and
// function names.
func (s *session) complete(line string) []string {
	i := strings.LastIndexFunc(line, func(r rune) bool {
		return !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	head, pre := line[:i+1], line[i+1:]
	if pre == "" {
		return nil
	}
	var res []string
	for _, n := range s.env.Names() {
		if strings.HasPrefix(n, pre) {
			res = append(res, head+n)
		}
	}
	for _, n := range s.env.Registry().Names() {
		if strings.HasPrefix(n, pre) {
			res = append(res, head+n+"(")
		}
	}
	return res
}

func historyPath() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, ".redq_history")
}
