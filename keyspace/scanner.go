package keyspace

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/joomcode/errorx"

	"github.com/joomcode/redisbulk/redis"
)

// DefaultCount is a SCAN COUNT hint used when Filter.Count is zero.
const DefaultCount = 1000

// KnownTypes are data types accepted in Filter.Type.
var KnownTypes = []string{
	"string", "list", "set", "zset", "hash", "stream",
	"ReJSON-RL", "TSDB-TYPE", "MBbloom--",
}

// Filter selects keys to be visited.
type Filter struct {
	// Match is a glob-style pattern.
	Match string
	// Type restricts keys to single data type. Empty means any.
	Type string
	// Count is SCAN COUNT hint, i.e. approximate batch size.
	Count int
}

// Validate checks filter.
func (f Filter) Validate() error {
	if f.Match == "" {
		return ErrInvalidFilter.New("match pattern is empty")
	}
	if f.Count <= 0 {
		return ErrInvalidFilter.New("count should be positive, got %d", f.Count)
	}
	if f.Type != "" {
		for _, t := range KnownTypes {
			if t == f.Type {
				return nil
			}
		}
		return ErrInvalidFilter.New("unknown data type %q", f.Type)
	}
	return nil
}

// Unknown introspection values.
const (
	UnknownSize = -1
	UnknownTTL  = -3
)

// KeyInfo describes single key.
type KeyInfo struct {
	Name []byte
	Type string
	// TTL in seconds; -1 means no expiration.
	TTL int64
	// Size is memory usage in bytes.
	Size int64
}

// Batch is a result of single SCAN call.
type Batch struct {
	// Cursor returned by server. Zero means iteration is complete.
	Cursor uint64
	// Scanned is a number of keys returned by SCAN, including dropped ones.
	Scanned int
	Keys    []KeyInfo
	Last    bool
}

// Scanner walks keyspace of single node.
// It is not safe for concurrent use.
type Scanner struct {
	node   Node
	filter Filter
	cursor []byte
	done   bool
}

// NewScanner returns scanner positioned at the beginning of keyspace.
func NewScanner(node Node, filter Filter) *Scanner {
	if filter.Count <= 0 {
		filter.Count = DefaultCount
	}
	return &Scanner{node: node, filter: filter, cursor: []byte("0")}
}

// Node returns scanned node.
func (s *Scanner) Node() Node {
	return s.node
}

// Done reports whether server completed iteration.
func (s *Scanner) Done() bool {
	return s.done
}

// Total returns number of keys in node's logical database.
// It prefers INFO keyspace and falls back to DBSIZE.
func (s *Scanner) Total(ctx context.Context) (int64, error) {
	conn := redis.SyncCtx{S: s.node}
	res := conn.Do(ctx, "INFO", "keyspace")
	if err := redis.AsError(res); err == nil {
		if total, ok := parseKeyspaceInfo(res, s.node.DB()); ok {
			return total, nil
		}
	}
	res = conn.Do(ctx, "DBSIZE")
	if err := redis.AsError(res); err != nil {
		return 0, s.nodeError(err, "could not count keys")
	}
	total, ok := res.(int64)
	if !ok {
		return 0, ErrNode.New("unexpected DBSIZE reply").
			WithProperty(EKNode, s.node.Addr()).
			WithProperty(redis.EKResponse, res)
	}
	return total, nil
}

// parseKeyspaceInfo finds `dbN:keys=K,...` line. Absent line means empty database.
func parseKeyspaceInfo(res interface{}, db int) (int64, bool) {
	var text []byte
	switch v := res.(type) {
	case []byte:
		text = v
	case string:
		text = []byte(v)
	default:
		return 0, false
	}
	prefix := "db" + strconv.Itoa(db) + ":"
	sc := bufio.NewScanner(bytes.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		for _, field := range strings.Split(line[len(prefix):], ",") {
			if strings.HasPrefix(field, "keys=") {
				n, err := strconv.ParseInt(field[len("keys="):], 10, 64)
				if err != nil || n < 0 {
					return 0, false
				}
				return n, true
			}
		}
		return 0, false
	}
	return 0, true
}

// Next performs one SCAN step and introspects returned keys.
// After the last batch it returns empty Batch with Last set.
func (s *Scanner) Next(ctx context.Context) (Batch, error) {
	if s.done {
		return Batch{Last: true}, nil
	}
	opts := redis.ScanOpts{Match: s.filter.Match, Type: s.filter.Type, Count: s.filter.Count}
	conn := redis.SyncCtx{S: s.node}
	it, keys, err := redis.ScanResponse(conn.Send(ctx, opts.Request(s.cursor)))
	if err != nil {
		return Batch{}, s.nodeError(err, "scan failed")
	}
	cursor, perr := strconv.ParseUint(string(it), 10, 64)
	if perr != nil {
		return Batch{}, ErrNode.Wrap(perr, "malformed cursor %q", it).WithProperty(EKNode, s.node.Addr())
	}
	s.cursor = it
	s.done = redis.ScanEOF(it)

	batch := Batch{
		Cursor:  cursor,
		Scanned: len(keys),
		Last:    s.done,
	}
	if len(keys) == 0 {
		batch.Keys = []KeyInfo{}
		return batch, nil
	}

	reqs := make([]redis.Request, 0, len(keys)*3)
	for _, k := range keys {
		reqs = append(reqs,
			redis.Req("MEMORY USAGE", k),
			redis.Req("TYPE", k),
			redis.Req("TTL", k))
	}
	ress := conn.SendMany(ctx, reqs)

	batch.Keys = make([]KeyInfo, 0, len(keys))
	for i, k := range keys {
		info := KeyInfo{Name: k, Size: UnknownSize, TTL: UnknownTTL}
		if size, ok := ress[i*3].(int64); ok {
			info.Size = size
		}
		if typ, ok := ress[i*3+1].(string); ok {
			info.Type = typ
		}
		if ttl, ok := ress[i*3+2].(int64); ok {
			info.TTL = ttl
		}
		if info.Type == "none" {
			// removed after SCAN
			continue
		}
		if s.filter.Type != "" && info.Type != "" && info.Type != s.filter.Type {
			continue
		}
		batch.Keys = append(batch.Keys, info)
	}
	return batch, nil
}

// nodeError keeps type and traits of cause, so callers could still tell
// connectivity problems apart.
func (s *Scanner) nodeError(err error, msg string) error {
	if xerr := errorx.Cast(err); xerr != nil {
		return errorx.Decorate(xerr, msg).WithProperty(EKNode, s.node.Addr())
	}
	return ErrNode.Wrap(err, msg).WithProperty(EKNode, s.node.Addr())
}
