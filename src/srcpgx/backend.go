// Package srcpgx provides a data source over a key/value table in a postgresql database using
// the pgx client package.
package srcpgx

import (
	"context"
	"sync"

	"github.com/jackc/pgx"
	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/log"
	"github.com/smackem/redis-q-sub000/src"
	"github.com/smackem/redis-q-sub000/src/srcmem"
	"github.com/smackem/redis-q-sub000/src/srcsql"
)

// Backend is a postgresql data source. The connection pool is opened on first use.
type Backend struct {
	conf pgx.ConnConfig
	log  log.Logger
	mu   sync.Mutex
	db   *pgx.ConnPool
}

var _ src.Source = (*Backend)(nil)

// New returns a backend for a postgres url or dsn. No connection is made until the first command.
func New(dsn string, l log.Logger) (*Backend, error) {
	conf, err := pgx.ParseConnectionString(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parsing postgres dsn")
	}
	if l == nil {
		l = log.Root
	}
	l = l.With("src", "pgx", "host", conf.Host)
	conf.Logger = pgxLogger{l}
	conf.LogLevel = pgx.LogLevelWarn
	return &Backend{conf: conf, log: l}, nil
}

// Open returns a connection pool for conf and creates the key/value table.
func Open(ctx context.Context, conf pgx.ConnConfig) (*pgx.ConnPool, error) {
	db, err := pgx.NewConnPool(pgx.ConnPoolConfig{ConnConfig: conf})
	if err != nil {
		return nil, errors.Wrap(err, "creating pgx connection pool")
	}
	for _, stmt := range srcsql.Schema {
		if _, err = db.ExecEx(ctx, stmt, nil); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "creating key table")
		}
	}
	return db, nil
}

func (b *Backend) pool(ctx context.Context) (*pgx.ConnPool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db != nil {
		return b.db, nil
	}
	db, err := Open(ctx, b.conf)
	if err != nil {
		b.log.Error("postgres connect failed", "err", err)
		return nil, err
	}
	b.log.Debug("postgres connected", "db", b.conf.Database)
	b.db = db
	return db, nil
}

type conn struct{ db *pgx.ConnPool }

func (c conn) Query(ctx context.Context, q string, args []interface{},
	row func(scan func(...interface{}) error) error) error {
	rows, err := c.db.QueryEx(ctx, srcsql.Rebind(q), nil, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err = row(rows.Scan); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (b *Backend) Do(ctx context.Context, cmd string, args ...interface{}) (interface{}, error) {
	db, err := b.pool(ctx)
	if err != nil {
		return nil, err
	}
	res, err := srcsql.Do(ctx, conn{db}, cmd, args...)
	if err != nil {
		b.log.Debug("postgres command failed", "cmd", cmd, "err", err)
	}
	return res, err
}

func (b *Backend) Keys(ctx context.Context, pattern string) (src.KeyIter, error) {
	db, err := b.pool(ctx)
	if err != nil {
		return nil, err
	}
	return srcsql.Keys(ctx, conn{db}, pattern)
}

// Load copies all keys of f into the table in one transaction. Existing rows of those keys are
// replaced.
func (b *Backend) Load(ctx context.Context, f *srcmem.Fixture) error {
	db, err := b.pool(ctx)
	if err != nil {
		return err
	}
	rows := srcsql.Rows(f)
	var keys []string
	seen := make(map[string]bool)
	for _, r := range rows {
		if k := r[0].(string); !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	tx, err := db.BeginEx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err = tx.ExecEx(ctx, "DELETE FROM redq_kv WHERE key = ANY($1)", nil, keys); err != nil {
		return errors.Wrap(err, "replace keys")
	}
	_, err = tx.CopyFrom(pgx.Identifier{srcsql.Table}, srcsql.Columns, pgx.CopyFromRows(rows))
	if err != nil {
		return errors.Wrap(err, "copy keys")
	}
	return tx.Commit()
}

// Close closes the connection pool, if it was opened.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db != nil {
		b.db.Close()
		b.db = nil
	}
	return nil
}

type pgxLogger struct{ log.Logger }

func (l pgxLogger) Log(lvl pgx.LogLevel, msg string, data map[string]interface{}) {
	tags := make([]interface{}, 0, len(data)*2)
	for k, v := range data {
		tags = append(tags, k, v)
	}
	if lvl <= pgx.LogLevelError {
		l.Error(msg, tags...)
	} else {
		l.Debug(msg, tags...)
	}
}
