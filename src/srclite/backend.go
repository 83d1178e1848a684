// Package srclite provides a data source over a key/value table in a sqlite database.
package srclite

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/log"
	"github.com/smackem/redis-q-sub000/src"
	"github.com/smackem/redis-q-sub000/src/srcmem"
	"github.com/smackem/redis-q-sub000/src/srcsql"
	_ "modernc.org/sqlite"
)

// Backend is a sqlite data source. The database is opened and its table created on first use.
type Backend struct {
	dsn string
	log log.Logger
	mu  sync.Mutex
	db  *sql.DB
}

var _ src.Source = (*Backend)(nil)

// New returns a backend for the sqlite database file or uri dsn.
// Use "file::memory:" for a private in-memory database.
func New(dsn string, l log.Logger) *Backend {
	if l == nil {
		l = log.Root
	}
	return &Backend{dsn: dsn, log: l.With("src", "sqlite")}
}

func (b *Backend) conn(ctx context.Context) (*conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db != nil {
		return &conn{b.db}, nil
	}
	db, err := sql.Open("sqlite", b.dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", b.dsn)
	}
	// an in-memory database lives only as long as its one connection
	db.SetMaxOpenConns(1)
	for _, stmt := range srcsql.Schema {
		if _, err = db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			b.log.Error("sqlite setup failed", "err", err)
			return nil, errors.Wrap(err, "create sqlite key table")
		}
	}
	b.log.Debug("sqlite opened", "dsn", b.dsn)
	b.db = db
	return &conn{db}, nil
}

type conn struct{ db *sql.DB }

func (c *conn) Query(ctx context.Context, q string, args []interface{},
	row func(scan func(...interface{}) error) error) error {
	rows, err := c.db.QueryContext(ctx, q, args...)
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
	c, err := b.conn(ctx)
	if err != nil {
		return nil, err
	}
	res, err := srcsql.Do(ctx, c, cmd, args...)
	if err != nil {
		b.log.Debug("sqlite command failed", "cmd", cmd, "err", err)
	}
	return res, err
}

func (b *Backend) Keys(ctx context.Context, pattern string) (src.KeyIter, error) {
	c, err := b.conn(ctx)
	if err != nil {
		return nil, err
	}
	return srcsql.Keys(ctx, c, pattern)
}

// Load inserts all keys of f in one transaction. Existing rows of those keys are replaced.
func (b *Backend) Load(ctx context.Context, f *srcmem.Fixture) error {
	c, err := b.conn(ctx)
	if err != nil {
		return err
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	rows := srcsql.Rows(f)
	seen := make(map[string]bool)
	for _, r := range rows {
		k := r[0].(string)
		if !seen[k] {
			seen[k] = true
			if _, err = tx.ExecContext(ctx, "DELETE FROM redq_kv WHERE key = ?", k); err != nil {
				return errors.Wrapf(err, "replace key %s", k)
			}
		}
	}
	ins, err := tx.PrepareContext(ctx,
		"INSERT INTO redq_kv (key, typ, idx, field, score, val) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer ins.Close()
	for _, r := range rows {
		if _, err = ins.ExecContext(ctx, r...); err != nil {
			return errors.Wrapf(err, "insert key %s", r[0])
		}
	}
	return tx.Commit()
}

// Close closes the database, if it was opened.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}
