// Package cfg provides the redq configuration and opens the configured data source.
//
// Settings are read from an optional yaml file, then overridden by the environment variables
// REDQ_URL and REDQ_SOURCE, and finally by command line flags.
package cfg

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/eval"
	"github.com/smackem/redis-q-sub000/log"
	"github.com/smackem/redis-q-sub000/src"
	"github.com/smackem/redis-q-sub000/src/srclite"
	"github.com/smackem/redis-q-sub000/src/srcmem"
	"github.com/smackem/redis-q-sub000/src/srcpgx"
	"github.com/smackem/redis-q-sub000/src/srcredis"
	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	Redis    = "redis"
	Postgres = "postgres"
	Sqlite   = "sqlite"
	Mem      = "mem"
)

// Config holds all redq settings.
type Config struct {
	// Source is the data source kind: redis, postgres, sqlite or mem.
	Source string `yaml:"source"`
	// URL is the redis url, postgres dsn or sqlite file of the data source.
	URL string `yaml:"url"`
	// Timeout limits the evaluation of one statement.
	Timeout time.Duration `yaml:"timeout"`
	// MaxRows is the row cap for materializing operations.
	MaxRows int `yaml:"max_rows"`
	// Listen is the address of the websocket endpoint.
	Listen string `yaml:"listen"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
	// Fixture is a yaml file or directory of keys loaded into mem, sqlite and postgres sources.
	Fixture string `yaml:"fixture"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Source:   Redis,
		URL:      "redis://localhost:6379/0",
		Timeout:  30 * time.Second,
		MaxRows:  eval.DefaultMaxRows,
		Listen:   ":8480",
		LogLevel: "info",
	}
}

// Read decodes yaml from r over c. Missing settings keep their value.
func (c *Config) Read(r io.Reader) error {
	err := yaml.NewDecoder(r).Decode(c)
	if err != nil && err != io.EOF {
		return errors.Wrap(err, "decode config")
	}
	return nil
}

// Load returns the configuration from the defaults, the yaml file at path if not empty and
// the environment.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return c, errors.Wrapf(err, "read config %q", path)
		}
		defer f.Close()
		if err = c.Read(f); err != nil {
			return c, errors.Wrapf(err, "config %q", path)
		}
	}
	c.Env(os.LookupEnv)
	return c, c.Validate()
}

// Env overrides settings with the environment variables REDQ_URL and REDQ_SOURCE.
func (c *Config) Env(lookup func(string) (string, bool)) {
	if v, ok := lookup("REDQ_URL"); ok && v != "" {
		c.URL = v
	}
	if v, ok := lookup("REDQ_SOURCE"); ok && v != "" {
		c.Source = v
	}
}

// Validate normalizes c and returns an error for invalid settings.
func (c *Config) Validate() error {
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
	switch c.Source {
	case "pg", "pgx", "postgresql":
		c.Source = Postgres
	case "memory":
		c.Source = Mem
	case Redis, Postgres, Sqlite, Mem:
	default:
		return errors.Errorf("unknown data source %q", c.Source)
	}
	if c.URL == "" && c.Source != Mem {
		return errors.Errorf("missing url for %s data source", c.Source)
	}
	if c.Timeout < 0 {
		return errors.Errorf("negative timeout %s", c.Timeout)
	}
	if c.MaxRows < 0 {
		return errors.Errorf("negative max rows %d", c.MaxRows)
	}
	return nil
}

// Logger returns the root logger at the configured level.
func (c *Config) Logger(w io.Writer) (log.Logger, error) {
	lvl := c.LogLevel
	if lvl == "" {
		lvl = "info"
	}
	l, err := log.New(w).Level(lvl)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Open returns the configured data source wrapped with latency recording. Fixtures are loaded
// into mem, sqlite and postgres sources.
func (c *Config) Open(ctx context.Context, l log.Logger) (*src.Instrumented, error) {
	var fix *srcmem.Fixture
	if c.Fixture != "" {
		f, err := srcmem.ReadFixturePath(c.Fixture)
		if err != nil {
			return nil, err
		}
		fix = f
	}
	var s src.Source
	switch c.Source {
	case Redis:
		if fix != nil {
			return nil, errors.New("fixtures are not loaded into redis data sources")
		}
		b, err := srcredis.New(c.URL, l)
		if err != nil {
			return nil, err
		}
		s = b
	case Postgres:
		b, err := srcpgx.New(c.URL, l)
		if err != nil {
			return nil, err
		}
		if fix != nil {
			if err = b.Load(ctx, fix); err != nil {
				b.Close()
				return nil, err
			}
		}
		s = b
	case Sqlite:
		b := srclite.New(c.URL, l)
		if fix != nil {
			if err := b.Load(ctx, fix); err != nil {
				b.Close()
				return nil, err
			}
		}
		s = b
	case Mem:
		b := srcmem.New()
		if fix != nil {
			if err := b.Load(fix); err != nil {
				return nil, err
			}
		}
		s = b
	default:
		return nil, errors.Errorf("unknown data source %q", c.Source)
	}
	return src.Instrument(s), nil
}
