// Package srcsql implements the data source commands over a key/value table in a sql database.
//
// Every row of the table holds one element of a value: the text of a string, one field of a
// hash, one item of a list at its position, one member of a set or one scored member of a
// sorted set. Database specific packages provide the connection and call Do and Keys.
package srcsql

import (
	"context"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/src"
	"github.com/smackem/redis-q-sub000/src/srcmem"
)

// Table is the name of the key/value table.
const Table = "redq_kv"

// Schema are the statements that create the key/value table if it does not exist.
// The type names are understood by both postgres and sqlite.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS redq_kv (
	key   TEXT NOT NULL,
	typ   TEXT NOT NULL,
	idx   BIGINT NOT NULL DEFAULT 0,
	field TEXT NOT NULL DEFAULT '',
	score DOUBLE PRECISION NOT NULL DEFAULT 0,
	val   TEXT NOT NULL DEFAULT ''
)`,
	`CREATE INDEX IF NOT EXISTS redq_kv_key ON redq_kv (key)`,
}

// Columns are the table columns in the order used by Rows.
var Columns = []string{"key", "typ", "idx", "field", "score", "val"}

// PageSize is the number of keys read per query when enumerating keys.
const PageSize = 100

// Conn is a database connection. Queries use question marks as placeholders.
type Conn interface {
	// Query runs query and calls row for each result row. Scan reads the row columns.
	Query(ctx context.Context, query string, args []interface{},
		row func(scan func(dst ...interface{}) error) error) error
}

// Rebind replaces the question mark placeholders of query with numbered ones like $1.
func Rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Rows returns the table rows for all keys of f in the column order of Columns.
func Rows(f *srcmem.Fixture) [][]interface{} {
	var res [][]interface{}
	add := func(key, typ string, idx int64, field string, score float64, v string) {
		res = append(res, []interface{}{key, typ, idx, field, score, v})
	}
	for k, v := range f.Strings {
		add(k, "string", 0, "", 0, v)
	}
	for k, h := range f.Hashes {
		for fd, v := range h {
			add(k, "hash", 0, fd, 0, v)
		}
	}
	for k, l := range f.Lists {
		for i, v := range l {
			add(k, "list", int64(i), "", 0, v)
		}
	}
	for k, s := range f.Sets {
		for _, m := range s {
			add(k, "set", 0, "", 0, m)
		}
	}
	for k, z := range f.Zsets {
		for m, sc := range z {
			add(k, "zset", 0, "", sc, m)
		}
	}
	return res
}

type command struct {
	min, max int
	fn       func(ctx context.Context, c Conn, args []string) (interface{}, error)
}

var commands map[string]*command

func init() {
	commands = map[string]*command{
		"PING":      {0, 1, cmdPing},
		"DBSIZE":    {0, 0, cmdDBSize},
		"GET":       {1, 1, cmdGet},
		"MGET":      {1, -1, cmdMGet},
		"EXISTS":    {1, -1, cmdExists},
		"TYPE":      {1, 1, cmdType},
		"STRLEN":    {1, 1, cmdStrlen},
		"TTL":       {1, 1, cmdTTL},
		"HGET":      {2, 2, cmdHGet},
		"HGETALL":   {1, 1, cmdHGetAll},
		"HKEYS":     {1, 1, cmdHKeys},
		"HVALS":     {1, 1, cmdHVals},
		"HLEN":      {1, 1, cmdLen("hash")},
		"LRANGE":    {3, 3, cmdLRange},
		"LLEN":      {1, 1, cmdLen("list")},
		"LINDEX":    {2, 2, cmdLIndex},
		"SMEMBERS":  {1, 1, cmdSMembers},
		"SCARD":     {1, 1, cmdLen("set")},
		"SISMEMBER": {2, 2, cmdSIsMember},
		"ZRANGE":    {3, 4, cmdZRange},
		"ZCARD":     {1, 1, cmdLen("zset")},
		"ZSCORE":    {2, 2, cmdZScore},
	}
}

// Do executes the read command cmd against the key/value table.
func Do(ctx context.Context, c Conn, cmd string, args ...interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.ToUpper(cmd)
	x := commands[name]
	if x == nil {
		return nil, src.Unsupported(name)
	}
	if len(args) < x.min || x.max >= 0 && len(args) > x.max {
		return nil, errors.Errorf("wrong number of arguments for '%s' command", strings.ToLower(name))
	}
	strs := make([]string, len(args))
	for i, a := range args {
		strs[i] = src.ArgString(a)
	}
	return x.fn(ctx, c, strs)
}

func queryStrings(ctx context.Context, c Conn, q string, args ...interface{}) ([]string, error) {
	var res []string
	err := c.Query(ctx, q, args, func(scan func(...interface{}) error) error {
		var s string
		if err := scan(&s); err != nil {
			return err
		}
		res = append(res, s)
		return nil
	})
	return res, err
}

func queryInt(ctx context.Context, c Conn, q string, args ...interface{}) (int64, error) {
	var n int64
	err := c.Query(ctx, q, args, func(scan func(...interface{}) error) error {
		return scan(&n)
	})
	return n, err
}

// typeOf returns the type of key or an empty string if it does not exist.
func typeOf(ctx context.Context, c Conn, key string) (string, error) {
	ts, err := queryStrings(ctx, c, "SELECT typ FROM redq_kv WHERE key = ? LIMIT 1", key)
	if err != nil || len(ts) == 0 {
		return "", err
	}
	return ts[0], nil
}

// check returns whether key exists with type typ, or an error if it holds another type.
func check(ctx context.Context, c Conn, key, typ string) (bool, error) {
	t, err := typeOf(ctx, c, key)
	if err != nil {
		return false, err
	}
	if t != "" && t != typ {
		return false, src.ErrWrongType
	}
	return t != "", nil
}

func list(ss []string) []interface{} {
	res := make([]interface{}, 0, len(ss))
	for _, s := range ss {
		res = append(res, s)
	}
	return res
}

func cmdPing(ctx context.Context, c Conn, args []string) (interface{}, error) {
	if _, err := queryInt(ctx, c, "SELECT 1"); err != nil {
		return nil, err
	}
	if len(args) == 1 {
		return args[0], nil
	}
	return "PONG", nil
}

func cmdDBSize(ctx context.Context, c Conn, args []string) (interface{}, error) {
	return queryInt(ctx, c, "SELECT COUNT(DISTINCT key) FROM redq_kv")
}

func cmdGet(ctx context.Context, c Conn, args []string) (interface{}, error) {
	ok, err := check(ctx, c, args[0], "string")
	if !ok {
		return nil, err
	}
	vs, err := queryStrings(ctx, c, "SELECT val FROM redq_kv WHERE key = ? LIMIT 1", args[0])
	if err != nil || len(vs) == 0 {
		return nil, err
	}
	return vs[0], nil
}

func cmdMGet(ctx context.Context, c Conn, args []string) (interface{}, error) {
	res := make([]interface{}, 0, len(args))
	for _, k := range args {
		v, err := cmdGet(ctx, c, []string{k})
		if err == src.ErrWrongType {
			v, err = nil, nil
		}
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, nil
}

func cmdExists(ctx context.Context, c Conn, args []string) (interface{}, error) {
	var n int64
	for _, k := range args {
		t, err := typeOf(ctx, c, k)
		if err != nil {
			return nil, err
		}
		if t != "" {
			n++
		}
	}
	return n, nil
}

func cmdType(ctx context.Context, c Conn, args []string) (interface{}, error) {
	t, err := typeOf(ctx, c, args[0])
	if err != nil {
		return nil, err
	}
	if t == "" {
		return "none", nil
	}
	return t, nil
}

func cmdStrlen(ctx context.Context, c Conn, args []string) (interface{}, error) {
	v, err := cmdGet(ctx, c, args)
	if s, ok := v.(string); ok {
		return int64(len(s)), nil
	}
	return int64(0), err
}

// Keys in the table never expire.
func cmdTTL(ctx context.Context, c Conn, args []string) (interface{}, error) {
	t, err := typeOf(ctx, c, args[0])
	if err != nil {
		return nil, err
	}
	if t == "" {
		return int64(-2), nil
	}
	return int64(-1), nil
}

func cmdHGet(ctx context.Context, c Conn, args []string) (interface{}, error) {
	ok, err := check(ctx, c, args[0], "hash")
	if !ok {
		return nil, err
	}
	vs, err := queryStrings(ctx, c,
		"SELECT val FROM redq_kv WHERE key = ? AND field = ?", args[0], args[1])
	if err != nil || len(vs) == 0 {
		return nil, err
	}
	return vs[0], nil
}

func cmdHGetAll(ctx context.Context, c Conn, args []string) (interface{}, error) {
	res := make(map[string]string)
	ok, err := check(ctx, c, args[0], "hash")
	if !ok {
		return res, err
	}
	err = c.Query(ctx, "SELECT field, val FROM redq_kv WHERE key = ?", []interface{}{args[0]},
		func(scan func(...interface{}) error) error {
			var f, v string
			if err := scan(&f, &v); err != nil {
				return err
			}
			res[f] = v
			return nil
		})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func cmdHKeys(ctx context.Context, c Conn, args []string) (interface{}, error) {
	ok, err := check(ctx, c, args[0], "hash")
	if !ok {
		return []interface{}{}, err
	}
	fs, err := queryStrings(ctx, c, "SELECT field FROM redq_kv WHERE key = ? ORDER BY field", args[0])
	if err != nil {
		return nil, err
	}
	return list(fs), nil
}

func cmdHVals(ctx context.Context, c Conn, args []string) (interface{}, error) {
	ok, err := check(ctx, c, args[0], "hash")
	if !ok {
		return []interface{}{}, err
	}
	vs, err := queryStrings(ctx, c, "SELECT val FROM redq_kv WHERE key = ? ORDER BY field", args[0])
	if err != nil {
		return nil, err
	}
	return list(vs), nil
}

func cmdLen(typ string) func(context.Context, Conn, []string) (interface{}, error) {
	return func(ctx context.Context, c Conn, args []string) (interface{}, error) {
		ok, err := check(ctx, c, args[0], typ)
		if !ok {
			return int64(0), err
		}
		return queryInt(ctx, c, "SELECT COUNT(*) FROM redq_kv WHERE key = ?", args[0])
	}
}

func atoi(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.New("value is not an integer or out of range")
	}
	return n, nil
}

// window resolves the inclusive redis index range [start, stop] against the length of key and
// returns the sql offset and limit. A negative limit means the range is empty.
func window(ctx context.Context, c Conn, key, start, stop string) (int64, int64, error) {
	a, err := atoi(start)
	if err != nil {
		return 0, 0, err
	}
	z, err := atoi(stop)
	if err != nil {
		return 0, 0, err
	}
	if a < 0 || z < 0 {
		n, err := queryInt(ctx, c, "SELECT COUNT(*) FROM redq_kv WHERE key = ?", key)
		if err != nil {
			return 0, 0, err
		}
		if a < 0 {
			a += n
		}
		if z < 0 {
			z += n
		}
	}
	if a < 0 {
		a = 0
	}
	if a > z {
		return 0, -1, nil
	}
	return a, z - a + 1, nil
}

func cmdLRange(ctx context.Context, c Conn, args []string) (interface{}, error) {
	ok, err := check(ctx, c, args[0], "list")
	if !ok {
		return []interface{}{}, err
	}
	off, lim, err := window(ctx, c, args[0], args[1], args[2])
	if err != nil || lim < 0 {
		return []interface{}{}, err
	}
	vs, err := queryStrings(ctx, c,
		"SELECT val FROM redq_kv WHERE key = ? ORDER BY idx LIMIT ? OFFSET ?", args[0], lim, off)
	if err != nil {
		return nil, err
	}
	return list(vs), nil
}

func cmdLIndex(ctx context.Context, c Conn, args []string) (interface{}, error) {
	ok, err := check(ctx, c, args[0], "list")
	if !ok {
		return nil, err
	}
	res, err := cmdLRange(ctx, c, []string{args[0], args[1], args[1]})
	if err != nil {
		return nil, err
	}
	if l := res.([]interface{}); len(l) == 1 {
		return l[0], nil
	}
	return nil, nil
}

func cmdSMembers(ctx context.Context, c Conn, args []string) (interface{}, error) {
	ok, err := check(ctx, c, args[0], "set")
	if !ok {
		return []interface{}{}, err
	}
	ms, err := queryStrings(ctx, c, "SELECT val FROM redq_kv WHERE key = ? ORDER BY val", args[0])
	if err != nil {
		return nil, err
	}
	return list(ms), nil
}

func cmdSIsMember(ctx context.Context, c Conn, args []string) (interface{}, error) {
	ok, err := check(ctx, c, args[0], "set")
	if !ok {
		return int64(0), err
	}
	return queryInt(ctx, c, "SELECT COUNT(*) FROM redq_kv WHERE key = ? AND val = ?", args[0], args[1])
}

func cmdZRange(ctx context.Context, c Conn, args []string) (interface{}, error) {
	withScores := false
	if len(args) == 4 {
		if !strings.EqualFold(args[3], "WITHSCORES") {
			return nil, errors.New("syntax error")
		}
		withScores = true
	}
	ok, err := check(ctx, c, args[0], "zset")
	if !ok {
		return []interface{}{}, err
	}
	off, lim, err := window(ctx, c, args[0], args[1], args[2])
	if err != nil || lim < 0 {
		return []interface{}{}, err
	}
	res := []interface{}{}
	err = c.Query(ctx,
		"SELECT val, score FROM redq_kv WHERE key = ? ORDER BY score, val LIMIT ? OFFSET ?",
		[]interface{}{args[0], lim, off},
		func(scan func(...interface{}) error) error {
			var m string
			var s float64
			if err := scan(&m, &s); err != nil {
				return err
			}
			if withScores {
				res = append(res, []interface{}{m, s})
			} else {
				res = append(res, m)
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func cmdZScore(ctx context.Context, c Conn, args []string) (interface{}, error) {
	ok, err := check(ctx, c, args[0], "zset")
	if !ok {
		return nil, err
	}
	var res interface{}
	err = c.Query(ctx, "SELECT score FROM redq_kv WHERE key = ? AND val = ?",
		[]interface{}{args[0], args[1]},
		func(scan func(...interface{}) error) error {
			var s float64
			if err := scan(&s); err != nil {
				return err
			}
			res = s
			return nil
		})
	return res, err
}

// Keys returns an iterator over the keys matching the glob pattern in lexical order. Keys are
// read in pages of PageSize keys and filtered by the pattern.
func Keys(ctx context.Context, c Conn, pattern string) (src.KeyIter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid key pattern %q", pattern)
	}
	return &keyIter{c: c, g: g}, nil
}

type keyIter struct {
	c     Conn
	g     glob.Glob
	page  []string
	after string
	eof   bool
}

func (it *keyIter) Next(ctx context.Context) (string, bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		for len(it.page) > 0 {
			k := it.page[0]
			it.page = it.page[1:]
			if it.g.Match(k) {
				return k, true, nil
			}
		}
		if it.eof {
			return "", false, nil
		}
		page, err := queryStrings(ctx, it.c,
			"SELECT DISTINCT key FROM redq_kv WHERE key > ? ORDER BY key LIMIT ?",
			it.after, PageSize)
		if err != nil {
			return "", false, err
		}
		if len(page) < PageSize {
			it.eof = true
		}
		if len(page) > 0 {
			it.after = page[len(page)-1]
		}
		it.page = page
	}
}

func (it *keyIter) Close() error {
	it.page, it.eof = nil, true
	return nil
}
