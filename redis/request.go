package redis

import (
	"strconv"
	"strings"
)

// Request represents request to be passed to redis.
type Request struct {
	// Cmd is a command to be sent.
	// It could contain single space, then it will be split, and last part will be serialized as an argument.
	Cmd  string
	Args []interface{}
}

// Req - convenient wrapper to create Request.
func Req(cmd string, args ...interface{}) Request {
	return Request{cmd, args}
}

func (r Request) String() string {
	args := r.Args
	if len(args) > 5 {
		args = args[:5]
	}
	var b strings.Builder
	b.WriteString("Req(")
	b.WriteString(strconv.Quote(r.Cmd))
	for _, arg := range args {
		b.WriteString(", ")
		if s, ok := ArgToString(arg); ok {
			b.WriteString(strconv.Quote(s))
		} else {
			b.WriteString("?")
		}
	}
	if len(r.Args) > 5 {
		b.WriteString(", ...")
	}
	b.WriteString(")")
	return b.String()
}

// Future is interface accepted by Sender to signal request completion.
type Future interface {
	// Resolve is called by sender to pass result (or error) for particular request.
	// Single future could be used for accepting multiple results.
	// n argument is used then to distinguish request this result is for.
	Resolve(res interface{}, n uint64)
	// Cancelled method could inform sender that request is abandoned.
	// It is called usually before sending request, and if Cancelled returns non-nil error,
	// then Sender calls Resolve with ErrRequestCancelled error wrapped around returned error.
	Cancelled() error
}

// FuncFuture simple wrapper that makes Future from function.
type FuncFuture func(res interface{}, n uint64)

// Cancelled implements Future.Cancelled (always false).
func (f FuncFuture) Cancelled() error { return nil }

// Resolve implements Future.Resolve (by calling wrapped function).
func (f FuncFuture) Resolve(res interface{}, n uint64) { f(res, n) }

// Sender is interface of client implementation.
// It provides interface in term of Future, and could be either synchronous or asynchronous.
type Sender interface {
	// Send sends request to redis. When response will arrive, cb.Resolve(result, n) will be called.
	Send(r Request, cb Future, n uint64)
	// SendMany sends many requests at once.
	// When responses will arrive, cb.Resolve will be called with distinct n values:
	// - first request's response will be passed as cb.Resolve(response, n)
	// - second request's response will be passed as cb.Resolve(response, n+1)
	// - third ... cb.Resolve(response, n+2)
	SendMany(r []Request, cb Future, n uint64)
	// Close closes client. All following requests will be immediately resolved with error.
	Close()
}

// ScanOpts is options for scanning.
type ScanOpts struct {
	// Cmd - command to be sent. Could be 'SCAN', 'SSCAN', 'HSCAN', 'ZSCAN'.
	// default is 'SCAN'.
	Cmd string
	// Key - key for SSCAN, HSCAN and ZSCAN command.
	Key string
	// Match - pattern for filtering keys.
	Match string
	// Type - data type filter (SCAN only, redis 6.0+).
	Type string
	// Count - soft limit for single iteration.
	Count int
}

// Request returns corresponding request to be send.
// Used mostly internally.
func (s ScanOpts) Request(it []byte) Request {
	if it == nil {
		it = []byte("0")
	}
	args := make([]interface{}, 0, 8)
	if s.Cmd == "" {
		s.Cmd = "SCAN"
	}
	if s.Cmd != "SCAN" {
		args = append(args, s.Key)
	}
	args = append(args, it)
	if s.Match != "" {
		args = append(args, "MATCH", s.Match)
	}
	if s.Count > 0 {
		args = append(args, "COUNT", s.Count)
	}
	if s.Type != "" && s.Cmd == "SCAN" {
		args = append(args, "TYPE", s.Type)
	}
	return Request{s.Cmd, args}
}

// ScanResponse parses response of Scan command, returns iterator and array of keys.
// Keys are returned as is, without decoding.
func ScanResponse(res interface{}) ([]byte, [][]byte, error) {
	if err := AsError(res); err != nil {
		return nil, nil, err
	}
	var ok bool
	var arr []interface{}
	var it []byte
	var keys []interface{}
	var out [][]byte
	if arr, ok = res.([]interface{}); !ok || len(arr) != 2 {
		goto wrong
	}
	if it, ok = arr[0].([]byte); !ok {
		goto wrong
	}
	if keys, ok = arr[1].([]interface{}); !ok {
		goto wrong
	}
	out = make([][]byte, len(keys))
	for i, k := range keys {
		if out[i], ok = k.([]byte); !ok {
			goto wrong
		}
	}
	return it, out, nil

wrong:
	return nil, nil, ErrResponseUnexpected.NewWithNoMessage().WithProperty(EKResponse, res)
}

// ScanEOF reports whether iterator returned by ScanResponse signals the end of iteration.
func ScanEOF(it []byte) bool {
	return len(it) == 1 && it[0] == '0'
}
