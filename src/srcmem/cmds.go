package srcmem

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type command struct {
	min, max int
	fn       func(b *Backend, args []string) (interface{}, error)
}

var commands map[string]*command

func init() {
	commands = map[string]*command{
		"PING":      {0, 1, cmdPing},
		"DBSIZE":    {0, 0, cmdDBSize},
		"GET":       {1, 1, cmdGet},
		"MGET":      {1, -1, cmdMGet},
		"SET":       {2, 2, cmdSet},
		"DEL":       {1, -1, cmdDel},
		"EXISTS":    {1, -1, cmdExists},
		"TYPE":      {1, 1, cmdType},
		"STRLEN":    {1, 1, cmdStrlen},
		"TTL":       {1, 1, cmdTTL},
		"EXPIRE":    {2, 2, cmdExpire},
		"HGET":      {2, 2, cmdHGet},
		"HSET":      {3, -1, cmdHSet},
		"HGETALL":   {1, 1, cmdHGetAll},
		"HKEYS":     {1, 1, cmdHKeys},
		"HVALS":     {1, 1, cmdHVals},
		"HLEN":      {1, 1, cmdHLen},
		"LRANGE":    {3, 3, cmdLRange},
		"LLEN":      {1, 1, cmdLLen},
		"LINDEX":    {2, 2, cmdLIndex},
		"RPUSH":     {2, -1, cmdRPush},
		"SMEMBERS":  {1, 1, cmdSMembers},
		"SCARD":     {1, 1, cmdSCard},
		"SISMEMBER": {2, 2, cmdSIsMember},
		"SADD":      {2, -1, cmdSAdd},
		"ZRANGE":    {3, 4, cmdZRange},
		"ZCARD":     {1, 1, cmdZCard},
		"ZSCORE":    {2, 2, cmdZScore},
		"ZADD":      {3, -1, cmdZAdd},
	}
}

var errNotInt = errors.New("value is not an integer or out of range")

func atoi(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errNotInt
	}
	return n, nil
}

func cmdPing(b *Backend, args []string) (interface{}, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	return "PONG", nil
}

func cmdDBSize(b *Backend, args []string) (interface{}, error) {
	var n int64
	for k := range b.data {
		if b.get(k) != nil {
			n++
		}
	}
	return n, nil
}

func cmdGet(b *Backend, args []string) (interface{}, error) {
	e, err := b.entry(args[0], "string", false)
	if e == nil {
		return nil, err
	}
	return e.str, nil
}

func cmdMGet(b *Backend, args []string) (interface{}, error) {
	res := make([]interface{}, 0, len(args))
	for _, k := range args {
		if e := b.get(k); e != nil && e.typ == "string" {
			res = append(res, e.str)
		} else {
			res = append(res, nil)
		}
	}
	return res, nil
}

func cmdSet(b *Backend, args []string) (interface{}, error) {
	b.data[args[0]] = &entry{typ: "string", str: args[1]}
	return "OK", nil
}

func cmdDel(b *Backend, args []string) (interface{}, error) {
	var n int64
	for _, k := range args {
		if b.get(k) != nil {
			delete(b.data, k)
			n++
		}
	}
	return n, nil
}

func cmdExists(b *Backend, args []string) (interface{}, error) {
	var n int64
	for _, k := range args {
		if b.get(k) != nil {
			n++
		}
	}
	return n, nil
}

func cmdType(b *Backend, args []string) (interface{}, error) {
	if e := b.get(args[0]); e != nil {
		return e.typ, nil
	}
	return "none", nil
}

func cmdStrlen(b *Backend, args []string) (interface{}, error) {
	e, err := b.entry(args[0], "string", false)
	if e == nil {
		return int64(0), err
	}
	return int64(len(e.str)), nil
}

func cmdTTL(b *Backend, args []string) (interface{}, error) {
	e := b.get(args[0])
	switch {
	case e == nil:
		return int64(-2), nil
	case e.exp.IsZero():
		return int64(-1), nil
	}
	return int64(math.Ceil(e.exp.Sub(b.Now()).Seconds())), nil
}

func cmdExpire(b *Backend, args []string) (interface{}, error) {
	n, err := atoi(args[1])
	if err != nil {
		return nil, err
	}
	e := b.get(args[0])
	if e == nil {
		return int64(0), nil
	}
	e.exp = b.Now().Add(time.Duration(n) * time.Second)
	return int64(1), nil
}

func cmdHGet(b *Backend, args []string) (interface{}, error) {
	e, err := b.entry(args[0], "hash", false)
	if e == nil {
		return nil, err
	}
	if v, ok := e.hash[args[1]]; ok {
		return v, nil
	}
	return nil, nil
}

func cmdHSet(b *Backend, args []string) (interface{}, error) {
	if len(args)%2 != 1 {
		return nil, errors.New("wrong number of arguments for 'hset' command")
	}
	e, err := b.entry(args[0], "hash", true)
	if err != nil {
		return nil, err
	}
	var n int64
	for i := 1; i < len(args); i += 2 {
		if _, ok := e.hash[args[i]]; !ok {
			n++
		}
		e.hash[args[i]] = args[i+1]
	}
	return n, nil
}

func cmdHGetAll(b *Backend, args []string) (interface{}, error) {
	e, err := b.entry(args[0], "hash", false)
	res := make(map[string]string)
	if e != nil {
		for f, v := range e.hash {
			res[f] = v
		}
	}
	return res, err
}

func cmdHKeys(b *Backend, args []string) (interface{}, error) {
	e, err := b.entry(args[0], "hash", false)
	if e == nil {
		return []interface{}{}, err
	}
	fields := sortedFields(e.hash)
	res := make([]interface{}, 0, len(fields))
	for _, f := range fields {
		res = append(res, f)
	}
	return res, nil
}

func cmdHVals(b *Backend, args []string) (interface{}, error) {
	e, err := b.entry(args[0], "hash", false)
	if e == nil {
		return []interface{}{}, err
	}
	fields := sortedFields(e.hash)
	res := make([]interface{}, 0, len(fields))
	for _, f := range fields {
		res = append(res, e.hash[f])
	}
	return res, nil
}

func cmdHLen(b *Backend, args []string) (interface{}, error) {
	e, err := b.entry(args[0], "hash", false)
	if e == nil {
		return int64(0), err
	}
	return int64(len(e.hash)), nil
}

func sortedFields(m map[string]string) []string {
	res := make([]string, 0, len(m))
	for f := range m {
		res = append(res, f)
	}
	sort.Strings(res)
	return res
}

// span resolves the inclusive redis index range [start, stop] against length n.
func span(start, stop string, n int) (int, int, error) {
	a, err := atoi(start)
	if err != nil {
		return 0, 0, err
	}
	z, err := atoi(stop)
	if err != nil {
		return 0, 0, err
	}
	if a < 0 {
		a += int64(n)
	}
	if z < 0 {
		z += int64(n)
	}
	if a < 0 {
		a = 0
	}
	if z >= int64(n) {
		z = int64(n) - 1
	}
	if a > z {
		return 0, 0, nil
	}
	return int(a), int(z) + 1, nil
}

func cmdLRange(b *Backend, args []string) (interface{}, error) {
	e, err := b.entry(args[0], "list", false)
	if e == nil {
		return []interface{}{}, err
	}
	a, z, err := span(args[1], args[2], len(e.list))
	if err != nil {
		return nil, err
	}
	res := make([]interface{}, 0, z-a)
	for _, v := range e.list[a:z] {
		res = append(res, v)
	}
	return res, nil
}

func cmdLLen(b *Backend, args []string) (interface{}, error) {
	e, err := b.entry(args[0], "list", false)
	if e == nil {
		return int64(0), err
	}
	return int64(len(e.list)), nil
}

func cmdLIndex(b *Backend, args []string) (interface{}, error) {
	e, err := b.entry(args[0], "list", false)
	if e == nil {
		return nil, err
	}
	i, err := atoi(args[1])
	if err != nil {
		return nil, err
	}
	if i < 0 {
		i += int64(len(e.list))
	}
	if i < 0 || i >= int64(len(e.list)) {
		return nil, nil
	}
	return e.list[i], nil
}

func cmdRPush(b *Backend, args []string) (interface{}, error) {
	e, err := b.entry(args[0], "list", true)
	if err != nil {
		return nil, err
	}
	e.list = append(e.list, args[1:]...)
	return int64(len(e.list)), nil
}

func cmdSMembers(b *Backend, args []string) (interface{}, error) {
	e, err := b.entry(args[0], "set", false)
	if e == nil {
		return []interface{}{}, err
	}
	ms := make([]string, 0, len(e.set))
	for m := range e.set {
		ms = append(ms, m)
	}
	sort.Strings(ms)
	res := make([]interface{}, 0, len(ms))
	for _, m := range ms {
		res = append(res, m)
	}
	return res, nil
}

func cmdSCard(b *Backend, args []string) (interface{}, error) {
	e, err := b.entry(args[0], "set", false)
	if e == nil {
		return int64(0), err
	}
	return int64(len(e.set)), nil
}

func cmdSIsMember(b *Backend, args []string) (interface{}, error) {
	e, err := b.entry(args[0], "set", false)
	if e == nil {
		return int64(0), err
	}
	if _, ok := e.set[args[1]]; ok {
		return int64(1), nil
	}
	return int64(0), nil
}

func cmdSAdd(b *Backend, args []string) (interface{}, error) {
	e, err := b.entry(args[0], "set", true)
	if err != nil {
		return nil, err
	}
	var n int64
	for _, m := range args[1:] {
		if _, ok := e.set[m]; !ok {
			e.set[m] = struct{}{}
			n++
		}
	}
	return n, nil
}

type scored struct {
	member string
	score  float64
}

func ranked(z map[string]float64) []scored {
	res := make([]scored, 0, len(z))
	for m, s := range z {
		res = append(res, scored{m, s})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].score != res[j].score {
			return res[i].score < res[j].score
		}
		return res[i].member < res[j].member
	})
	return res
}

func cmdZRange(b *Backend, args []string) (interface{}, error) {
	withScores := false
	if len(args) == 4 {
		if !strings.EqualFold(args[3], "WITHSCORES") {
			return nil, errors.New("syntax error")
		}
		withScores = true
	}
	e, err := b.entry(args[0], "zset", false)
	if e == nil {
		return []interface{}{}, err
	}
	rs := ranked(e.zset)
	a, z, err := span(args[1], args[2], len(rs))
	if err != nil {
		return nil, err
	}
	res := make([]interface{}, 0, z-a)
	for _, r := range rs[a:z] {
		if withScores {
			res = append(res, []interface{}{r.member, r.score})
		} else {
			res = append(res, r.member)
		}
	}
	return res, nil
}

func cmdZCard(b *Backend, args []string) (interface{}, error) {
	e, err := b.entry(args[0], "zset", false)
	if e == nil {
		return int64(0), err
	}
	return int64(len(e.zset)), nil
}

func cmdZScore(b *Backend, args []string) (interface{}, error) {
	e, err := b.entry(args[0], "zset", false)
	if e == nil {
		return nil, err
	}
	if s, ok := e.zset[args[1]]; ok {
		return s, nil
	}
	return nil, nil
}

func cmdZAdd(b *Backend, args []string) (interface{}, error) {
	if len(args)%2 != 1 {
		return nil, errors.New("syntax error")
	}
	e, err := b.entry(args[0], "zset", true)
	if err != nil {
		return nil, err
	}
	var n int64
	for i := 1; i < len(args); i += 2 {
		s, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return nil, errors.New("value is not a valid float")
		}
		if _, ok := e.zset[args[i+1]]; !ok {
			n++
		}
		e.zset[args[i+1]] = s
	}
	return n, nil
}
