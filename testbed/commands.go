package testbed

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const numDBs = 16

func wrongArgs(cmd string) errReply {
	return errReply(fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(cmd)))
}

// exec runs single command. It is called with s.mu held.
func (s *Server) exec(sess *session, args []string) interface{} {
	cmd := strings.ToUpper(args[0])
	args = args[1:]
	if (cmd == "CLUSTER" || cmd == "MEMORY" || cmd == "SENTINEL") && len(args) > 0 {
		cmd += " " + strings.ToUpper(args[0])
		args = args[1:]
	}
	s.calls[cmd]++

	if cmd == "AUTH" {
		return s.auth(sess, args)
	}
	if s.Password != "" && !sess.authed {
		return errReply("NOAUTH Authentication required.")
	}
	if msg, ok := s.denied[cmd]; ok {
		return errReply(msg)
	}
	if len(args) > 0 {
		if reply, ok := s.failures[failKey{cmd, args[0]}]; ok {
			return reply
		}
	}

	switch cmd {
	case "PING":
		if len(args) > 0 {
			return args[0]
		}
		return Status("PONG")
	case "SELECT":
		if len(args) != 1 {
			return wrongArgs(cmd)
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 || n >= numDBs {
			return errReply("ERR DB index is out of range")
		}
		sess.db = n
		return Status("OK")
	case "SET":
		if len(args) < 2 {
			return wrongArgs(cmd)
		}
		s.setLocked(sess.db, args[0], "string", []byte(args[1]))
		return Status("OK")
	case "GET":
		if len(args) != 1 {
			return wrongArgs(cmd)
		}
		e := s.get(sess.db, args[0])
		if e == nil {
			return nil
		}
		if e.typ != "string" {
			return errReply("WRONGTYPE Operation against a key holding the wrong kind of value")
		}
		return e.value
	case "DBSIZE":
		return s.dbsize(sess.db)
	case "INFO":
		return s.info()
	case "SCAN":
		return s.scan(sess.db, args)
	case "TYPE":
		if len(args) != 1 {
			return wrongArgs(cmd)
		}
		if e := s.get(sess.db, args[0]); e != nil {
			return Status(e.typ)
		}
		return Status("none")
	case "TTL":
		if len(args) != 1 {
			return wrongArgs(cmd)
		}
		e := s.get(sess.db, args[0])
		switch {
		case e == nil:
			return -2
		case e.expireAt.IsZero():
			return -1
		}
		return int64((time.Until(e.expireAt) + time.Second - 1) / time.Second)
	case "MEMORY USAGE":
		if len(args) < 1 {
			return wrongArgs(cmd)
		}
		e := s.get(sess.db, args[0])
		if e == nil {
			return nil
		}
		return int64(48 + len(args[0]) + len(e.value))
	case "DEL", "UNLINK":
		if len(args) < 1 {
			return wrongArgs(cmd)
		}
		removed := 0
		for _, k := range args {
			if s.get(sess.db, k) != nil {
				delete(s.dbs[sess.db].keys, k)
				removed++
			}
		}
		return removed
	case "EXPIRE":
		if len(args) != 2 {
			return wrongArgs(cmd)
		}
		secs, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return errReply("ERR value is not an integer or out of range")
		}
		e := s.get(sess.db, args[0])
		if e == nil {
			return 0
		}
		if secs <= 0 {
			delete(s.dbs[sess.db].keys, args[0])
			return 1
		}
		e.expireAt = time.Now().Add(time.Duration(secs) * time.Second)
		return 1
	case "PERSIST":
		if len(args) != 1 {
			return wrongArgs(cmd)
		}
		e := s.get(sess.db, args[0])
		if e == nil || e.expireAt.IsZero() {
			return 0
		}
		e.expireAt = time.Time{}
		return 1
	case "CLUSTER NODES":
		if s.clusterNodes == "" {
			return errReply("ERR This instance has cluster support disabled")
		}
		return s.clusterNodes
	case "CLUSTER SLOTS":
		if s.clusterSlots == nil {
			return errReply("ERR This instance has cluster support disabled")
		}
		return s.clusterSlots
	case "SENTINEL GET-MASTER-ADDR-BY-NAME":
		if len(args) != 1 {
			return wrongArgs(cmd)
		}
		addr, ok := s.sentinel[args[0]]
		if !ok {
			return nil
		}
		i := strings.LastIndexByte(addr, ':')
		return []interface{}{addr[:i], addr[i+1:]}
	}
	return errReply(fmt.Sprintf("ERR unknown command '%s'", strings.ToLower(cmd)))
}

func (s *Server) auth(sess *session, args []string) interface{} {
	var user, pass string
	switch len(args) {
	case 1:
		pass = args[0]
	case 2:
		user, pass = args[0], args[1]
	default:
		return wrongArgs("auth")
	}
	if s.Password == "" {
		return errReply("ERR AUTH <password> called without any password configured for the default user. Are you sure your configuration is correct?")
	}
	if pass != s.Password || (user != "" && user != s.Username && user != "default") {
		return errReply("WRONGPASS invalid username-password pair or user is disabled.")
	}
	sess.authed = true
	return Status("OK")
}

func (s *Server) dbsize(n int) int {
	d := s.dbs[n]
	if d == nil {
		return 0
	}
	cnt := 0
	for k := range d.keys {
		if s.get(n, k) != nil {
			cnt++
		}
	}
	return cnt
}

func (s *Server) info() interface{} {
	var b strings.Builder
	b.WriteString("# Server\r\nredis_version:7.2.0\r\nredis_mode:standalone\r\n\r\n# Keyspace\r\n")
	nums := make([]int, 0, len(s.dbs))
	for n := range s.dbs {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	for _, n := range nums {
		keys := s.dbsize(n)
		if keys == 0 {
			continue
		}
		expires := 0
		for _, e := range s.dbs[n].keys {
			if !e.expireAt.IsZero() {
				expires++
			}
		}
		fmt.Fprintf(&b, "db%d:keys=%d,expires=%d,avg_ttl=0\r\n", n, keys, expires)
	}
	return b.String()
}

// scan iterates keys in creation order; cursor is the next entry id to visit.
func (s *Server) scan(n int, args []string) interface{} {
	if len(args) < 1 {
		return wrongArgs("scan")
	}
	cursor, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return errReply("ERR invalid cursor")
	}
	pattern, typ, count := "", "", 10
	for i := 1; i < len(args); i += 2 {
		if i+1 >= len(args) {
			return errReply("ERR syntax error")
		}
		switch strings.ToUpper(args[i]) {
		case "MATCH":
			pattern = args[i+1]
		case "TYPE":
			typ = args[i+1]
		case "COUNT":
			count, err = strconv.Atoi(args[i+1])
			if err != nil || count < 1 {
				return errReply("ERR syntax error")
			}
		default:
			return errReply("ERR syntax error")
		}
	}

	type item struct {
		id  uint64
		key string
	}
	var items []item
	if d := s.dbs[n]; d != nil {
		for k, e := range d.keys {
			if e.id >= cursor {
				items = append(items, item{e.id, k})
			}
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].id < items[j].id })

	next := uint64(0)
	if len(items) > count {
		next = items[count].id
		items = items[:count]
	}
	keys := make([]interface{}, 0, len(items))
	for _, it := range items {
		e := s.get(n, it.key)
		if e == nil || !match(pattern, it.key) || (typ != "" && e.typ != typ) {
			continue
		}
		keys = append(keys, it.key)
	}
	return []interface{}{strconv.FormatUint(next, 10), keys}
}
