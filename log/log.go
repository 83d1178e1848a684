// Package log provides the logger interface used throughout redq.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var Root Logger = New(os.Stderr)

// Logger is logger interface. The variadic arguments are key value pairs. The key must be a
// string and the value should have a meaningful string representations.
type Logger interface {
	Debug(string, ...interface{})
	Error(string, ...interface{})
	Crit(string, ...interface{})
	With(...interface{}) Logger
}

// Zero is the default logger writing human readable lines with zerolog.
type Zero struct {
	zerolog.Logger
}

// New returns a console logger writing to w at info level.
func New(w io.Writer) *Zero {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: true}
	return &Zero{zerolog.New(out).Level(zerolog.InfoLevel).With().Timestamp().Logger()}
}

// Level returns a copy of l that logs messages at level name and above.
func (l *Zero) Level(name string) (*Zero, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", name)
	}
	return &Zero{l.Logger.Level(lvl)}, nil
}

func (l *Zero) Debug(m string, s ...interface{}) { l.Logger.Debug().Fields(s).Msg(m) }
func (l *Zero) Error(m string, s ...interface{}) { l.Logger.Error().Fields(s).Msg(m) }
func (l *Zero) Crit(m string, s ...interface{}) {
	l.Logger.WithLevel(zerolog.FatalLevel).Fields(s).Msg(m)
}
func (l *Zero) With(tags ...interface{}) Logger {
	return &Zero{l.Logger.With().Fields(tags).Logger()}
}

// Discard is a logger that drops all messages.
var Discard Logger = &Zero{zerolog.Nop()}

func tfmt(lvl, msg string, all ...[]interface{}) string {
	var b strings.Builder
	b.WriteString(lvl)
	b.WriteString(msg)
	for _, tags := range all {
		for i, v := range tags {
			if i%2 == 0 {
				b.WriteByte(' ')
			} else {
				b.WriteByte('=')
			}
			b.WriteString(fmt.Sprint(v))
		}
	}
	return b.String()
}
