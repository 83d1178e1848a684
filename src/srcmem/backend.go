// Package srcmem provides a data source using in-memory go data-structures.
//
// The backend mimics the reply shapes of a redis server for the commands it supports, so that
// queries and built-in functions behave the same against both.
package srcmem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
	"github.com/smackem/redis-q-sub000/src"
)

// ErrWrongType is an alias for src.ErrWrongType.
var ErrWrongType = src.ErrWrongType

type entry struct {
	typ  string
	str  string
	hash map[string]string
	list []string
	set  map[string]struct{}
	zset map[string]float64
	exp  time.Time
}

// Backend is an in-memory key/value database. It is safe for concurrent use.
type Backend struct {
	mu   sync.Mutex
	data map[string]*entry
	// Now returns the current time used for key expiry.
	Now func() time.Time
}

var _ src.Source = (*Backend)(nil)

func New() *Backend {
	return &Backend{data: make(map[string]*entry), Now: time.Now}
}

func (b *Backend) Close() error { return nil }

// Set stores a string value at key.
func (b *Backend) Set(key, v string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = &entry{typ: "string", str: v}
}

// HSet sets the fields of the hash at key.
func (b *Backend) HSet(key string, fields map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.entry(key, "hash", true)
	if err != nil {
		return err
	}
	for f, v := range fields {
		e.hash[f] = v
	}
	return nil
}

// RPush appends vals to the list at key.
func (b *Backend) RPush(key string, vals ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.entry(key, "list", true)
	if err != nil {
		return err
	}
	e.list = append(e.list, vals...)
	return nil
}

// SAdd adds members to the set at key.
func (b *Backend) SAdd(key string, members ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.entry(key, "set", true)
	if err != nil {
		return err
	}
	for _, m := range members {
		e.set[m] = struct{}{}
	}
	return nil
}

// ZAdd adds members with scores to the sorted set at key.
func (b *Backend) ZAdd(key string, members map[string]float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.entry(key, "zset", true)
	if err != nil {
		return err
	}
	for m, s := range members {
		e.zset[m] = s
	}
	return nil
}

// Expire sets the time to live of key. It returns false if the key does not exist.
func (b *Backend) Expire(key string, ttl time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.get(key)
	if e == nil {
		return false
	}
	e.exp = b.Now().Add(ttl)
	return true
}

// Del removes keys and returns the number of removed keys.
func (b *Backend) Del(keys ...string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int64
	for _, k := range keys {
		if b.get(k) != nil {
			delete(b.data, k)
			n++
		}
	}
	return n
}

// get returns the live entry at key or nil. Expired entries are dropped.
func (b *Backend) get(key string) *entry {
	e := b.data[key]
	if e != nil && !e.exp.IsZero() && !b.Now().Before(e.exp) {
		delete(b.data, key)
		return nil
	}
	return e
}

// entry returns the entry at key checking its type. If create is true, missing entries are
// created, otherwise nil is returned.
func (b *Backend) entry(key, typ string, create bool) (*entry, error) {
	e := b.get(key)
	if e == nil {
		if !create {
			return nil, nil
		}
		e = &entry{typ: typ}
		switch typ {
		case "hash":
			e.hash = make(map[string]string)
		case "set":
			e.set = make(map[string]struct{})
		case "zset":
			e.zset = make(map[string]float64)
		}
		b.data[key] = e
	}
	if e.typ != typ {
		return nil, ErrWrongType
	}
	return e, nil
}

// Keys returns the keys matching the glob pattern in lexical order. The matching keys are
// collected when Keys is called.
func (b *Backend) Keys(ctx context.Context, pattern string) (src.KeyIter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid key pattern %q", pattern)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for k := range b.data {
		if b.get(k) != nil && g.Match(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return &keyIter{keys: keys}, nil
}

type keyIter struct {
	keys []string
	idx  int
}

func (it *keyIter) Next(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if it.idx >= len(it.keys) {
		return "", false, nil
	}
	k := it.keys[it.idx]
	it.idx++
	return k, true, nil
}

func (it *keyIter) Close() error {
	it.idx = len(it.keys)
	return nil
}

// Do executes the command cmd. Arguments are converted to text like a redis client does.
func (b *Backend) Do(ctx context.Context, cmd string, args ...interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.ToUpper(cmd)
	c := commands[name]
	if c == nil {
		return nil, src.Unsupported(name)
	}
	if len(args) < c.min || c.max >= 0 && len(args) > c.max {
		return nil, errors.Errorf("wrong number of arguments for '%s' command", strings.ToLower(name))
	}
	strs := make([]string, len(args))
	for i, a := range args {
		strs[i] = src.ArgString(a)
	}
	// reads may drop expired keys
	b.mu.Lock()
	defer b.mu.Unlock()
	return c.fn(b, strs)
}
