package testbed

import (
	"bufio"
	"net"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joomcode/redisbulk/redis"
)

// Server is a fake redis server.
// Zero value is ready to Start; address is kept between Stop and Start.
type Server struct {
	// Password enables AUTH requirement.
	Password string
	// Username is accepted together with Password in two-arguments AUTH.
	Username string

	mu       sync.Mutex
	cond     *sync.Cond
	ln       net.Listener
	addr     string
	conns    map[net.Conn]struct{}
	paused   bool
	dbs      map[int]*db
	seq      uint64
	failures map[failKey]interface{}
	denied   map[string]string
	calls    map[string]int

	clusterNodes string
	clusterSlots []interface{}
	sentinel     map[string]string
}

type db struct {
	keys map[string]*entry
}

type entry struct {
	id       uint64
	typ      string
	value    []byte
	expireAt time.Time
}

type failKey struct {
	cmd string
	key string
}

func (s *Server) init() {
	if s.cond == nil {
		s.cond = sync.NewCond(&s.mu)
		s.conns = make(map[net.Conn]struct{})
		s.dbs = make(map[int]*db)
		s.failures = make(map[failKey]interface{})
		s.denied = make(map[string]string)
		s.calls = make(map[string]int)
		s.sentinel = make(map[string]string)
	}
}

// Start starts listening. It is noop for started server.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	if s.ln != nil {
		return nil
	}
	addr := s.addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.addr = ln.Addr().String()
	s.paused = false
	go s.accept(ln)
	return nil
}

// Stop closes listener and all client connections. Data is kept.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return
	}
	s.ln.Close()
	s.ln = nil
	for c := range s.conns {
		c.Close()
	}
	s.conns = make(map[net.Conn]struct{})
	s.paused = false
	s.cond.Broadcast()
}

// Pause makes server accept connections and read requests, but not answer them.
func (s *Server) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume reverts Pause.
func (s *Server) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	s.cond.Broadcast()
}

// Addr returns listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Do sends command to server with one-shot connection.
func (s *Server) Do(cmd string, args ...interface{}) interface{} {
	return Do(s.Addr(), cmd, args...)
}

// Set stores key of given type in database n.
func (s *Server) Set(n int, key string, typ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.setLocked(n, key, typ, nil)
}

// SetTTL sets time to live for existing key.
func (s *Server) SetTTL(n int, key string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	if e := s.get(n, key); e != nil {
		e.expireAt = time.Now().Add(ttl)
	}
}

// Fill stores count string keys named prefix0..prefixN-1 in database n.
func (s *Server) Fill(n int, prefix string, count int, typ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	for i := 0; i < count; i++ {
		s.setLocked(n, prefix+strconv.Itoa(i), typ, nil)
	}
}

// Keys returns sorted live keys of database n.
func (s *Server) Keys(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	d := s.dbs[n]
	if d == nil {
		return nil
	}
	res := make([]string, 0, len(d.keys))
	for k := range d.keys {
		if s.get(n, k) != nil {
			res = append(res, k)
		}
	}
	sort.Strings(res)
	return res
}

// TTL returns remaining time to live of key, -1 for persistent and -2 for missing key.
func (s *Server) TTL(n int, key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	e := s.get(n, key)
	switch {
	case e == nil:
		return -2
	case e.expireAt.IsZero():
		return -1
	}
	return time.Until(e.expireAt)
}

// FailKey makes command cmd on key answer with error msg.
func (s *Server) FailKey(cmd, key, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.failures[failKey{strings.ToUpper(cmd), key}] = errReply(msg)
}

// Override makes command cmd on key answer with fixed reply.
// Reply could be nil, int, int64, string (bulk), Status, []byte or []interface{}.
func (s *Server) Override(cmd, key string, reply interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.failures[failKey{strings.ToUpper(cmd), key}] = reply
}

// Deny makes every call of cmd answer with error msg.
func (s *Server) Deny(cmd, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.denied[strings.ToUpper(cmd)] = msg
}

// Calls returns number of times cmd were executed.
func (s *Server) Calls(cmd string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	return s.calls[strings.ToUpper(cmd)]
}

// SetClusterNodes sets reply for CLUSTER NODES. Empty text disables cluster commands.
func (s *Server) SetClusterNodes(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.clusterNodes = text
}

// SetClusterSlots sets reply for CLUSTER SLOTS.
func (s *Server) SetClusterSlots(reply []interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.clusterSlots = reply
}

// SetSentinelMaster registers master address for SENTINEL get-master-addr-by-name.
func (s *Server) SetSentinelMaster(name, addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.sentinel[name] = addr
}

func (s *Server) setLocked(n int, key string, typ string, value []byte) {
	d := s.dbs[n]
	if d == nil {
		d = &db{keys: make(map[string]*entry)}
		s.dbs[n] = d
	}
	if e, ok := d.keys[key]; ok && s.live(e) {
		e.typ = typ
		e.value = value
		e.expireAt = time.Time{}
		return
	}
	s.seq++
	d.keys[key] = &entry{id: s.seq, typ: typ, value: value}
}

func (s *Server) live(e *entry) bool {
	return e.expireAt.IsZero() || time.Now().Before(e.expireAt)
}

func (s *Server) get(n int, key string) *entry {
	d := s.dbs[n]
	if d == nil {
		return nil
	}
	e := d.keys[key]
	if e == nil {
		return nil
	}
	if !s.live(e) {
		delete(d.keys, key)
		return nil
	}
	return e
}

func (s *Server) accept(ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.ln != ln {
			s.mu.Unlock()
			c.Close()
			return
		}
		s.conns[c] = struct{}{}
		s.mu.Unlock()
		go s.serve(c)
	}
}

type session struct {
	db     int
	authed bool
}

func (s *Server) serve(c net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		c.Close()
	}()
	r := bufio.NewReader(c)
	w := bufio.NewWriter(c)
	sess := &session{}
	for {
		req := redis.ReadResponse(r)
		if redis.AsError(req) != nil {
			return
		}
		arr, ok := req.([]interface{})
		if !ok || len(arr) == 0 {
			return
		}
		args := make([]string, len(arr))
		for i, a := range arr {
			b, ok := a.([]byte)
			if !ok {
				return
			}
			args[i] = string(b)
		}

		s.mu.Lock()
		for s.paused {
			s.cond.Wait()
		}
		if _, alive := s.conns[c]; !alive {
			s.mu.Unlock()
			return
		}
		reply := s.exec(sess, args)
		s.mu.Unlock()

		writeReply(w, reply)
		// flush only when pipeline is drained
		if r.Buffered() == 0 {
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}

// errReply is written as RESP error.
type errReply string

// Status is written as RESP simple string.
type Status string

func writeReply(w *bufio.Writer, v interface{}) {
	switch r := v.(type) {
	case nil:
		w.WriteString("$-1\r\n")
	case Status:
		w.WriteString("+" + string(r) + "\r\n")
	case errReply:
		w.WriteString("-" + string(r) + "\r\n")
	case int:
		w.WriteString(":" + strconv.Itoa(r) + "\r\n")
	case int64:
		w.WriteString(":" + strconv.FormatInt(r, 10) + "\r\n")
	case string:
		w.WriteString("$" + strconv.Itoa(len(r)) + "\r\n" + r + "\r\n")
	case []byte:
		w.WriteString("$" + strconv.Itoa(len(r)) + "\r\n")
		w.Write(r)
		w.WriteString("\r\n")
	case []interface{}:
		w.WriteString("*" + strconv.Itoa(len(r)) + "\r\n")
		for _, item := range r {
			writeReply(w, item)
		}
	default:
		w.WriteString("-ERR testbed: unsupported reply\r\n")
	}
}

func match(pattern, key string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	ok, err := path.Match(pattern, key)
	return err == nil && ok
}
