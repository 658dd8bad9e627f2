package keyspace

import (
	"context"
	"testing"
	"time"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/suite"

	"github.com/joomcode/redisbulk/redis"
	"github.com/joomcode/redisbulk/redisconn"
	"github.com/joomcode/redisbulk/testbed"
)

type ScannerSuite struct {
	suite.Suite
	srv  *testbed.Server
	conn *redisconn.Connection
	node Node
	ctx  context.Context
}

func (s *ScannerSuite) SetupTest() {
	s.ctx = context.Background()
	s.srv = &testbed.Server{}
	s.Require().NoError(s.srv.Start())
	var err error
	s.conn, err = redisconn.Connect(s.ctx, s.srv.Addr(), redisconn.Opts{
		DB:        2,
		IOTimeout: time.Second,
		Logger:    redisconn.NoopLogger{},
	})
	s.Require().NoError(err)
	nodes, err := NewStandaloneClient(s.conn, Standalone).Nodes(RoleMaster)
	s.Require().NoError(err)
	s.Require().Len(nodes, 1)
	s.node = nodes[0]
}

func (s *ScannerSuite) TearDownTest() {
	s.conn.Close()
	s.srv.Stop()
}

func (s *ScannerSuite) scanAll(sc *Scanner) ([]KeyInfo, int) {
	var keys []KeyInfo
	scanned := 0
	for i := 0; !sc.Done(); i++ {
		s.Require().Less(i, 10000, "scan does not finish")
		b, err := sc.Next(s.ctx)
		s.Require().NoError(err)
		scanned += b.Scanned
		keys = append(keys, b.Keys...)
		s.Equal(b.Cursor == 0, b.Last)
	}
	return keys, scanned
}

func (s *ScannerSuite) TestTotal_Info() {
	s.srv.Fill(2, "a:", 25, "string")
	s.srv.Fill(0, "b:", 7, "string")

	total, err := NewScanner(s.node, Filter{Match: "*"}).Total(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(25), total)
	s.Equal(0, s.srv.Calls("DBSIZE"))
}

func (s *ScannerSuite) TestTotal_EmptyDB() {
	s.srv.Fill(0, "b:", 7, "string")
	total, err := NewScanner(s.node, Filter{Match: "*"}).Total(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(0), total)
}

func (s *ScannerSuite) TestTotal_FallbackToDBSize() {
	s.srv.Fill(2, "a:", 13, "string")
	s.srv.Deny("INFO", "NOPERM this user has no permissions to run the 'info' command")

	total, err := NewScanner(s.node, Filter{Match: "*"}).Total(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(13), total)
	s.Equal(1, s.srv.Calls("DBSIZE"))
}

func (s *ScannerSuite) TestTotal_Error() {
	s.srv.Deny("INFO", "ERR no")
	s.srv.Deny("DBSIZE", "ERR no")
	_, err := NewScanner(s.node, Filter{Match: "*"}).Total(s.ctx)
	s.Require().Error(err)
	s.True(errorx.IsOfType(err, redis.ErrResult))
	node, ok := errorx.Cast(err).Property(EKNode)
	s.True(ok)
	s.Equal(s.srv.Addr(), node)
}

func (s *ScannerSuite) TestNext_AllKeys() {
	s.srv.Fill(2, "user:", 120, "hash")
	s.srv.Fill(2, "session:", 30, "string")
	s.srv.SetTTL(2, "user:5", time.Hour)

	keys, scanned := s.scanAll(NewScanner(s.node, Filter{Match: "user:*", Count: 17}))
	s.Len(keys, 120)
	s.LessOrEqual(scanned, 150)

	seen := make(map[string]bool)
	for _, k := range keys {
		s.False(seen[string(k.Name)], "duplicate %s", k.Name)
		seen[string(k.Name)] = true
		s.Equal("hash", k.Type)
		s.Greater(k.Size, int64(0))
		if string(k.Name) == "user:5" {
			s.InDelta(3600, k.TTL, 2)
		} else {
			s.Equal(int64(-1), k.TTL)
		}
	}
}

func (s *ScannerSuite) TestNext_TypeFilter() {
	s.srv.Fill(2, "k:h", 10, "hash")
	s.srv.Fill(2, "k:s", 10, "string")

	keys, _ := s.scanAll(NewScanner(s.node, Filter{Match: "k:*", Type: "string", Count: 3}))
	s.Len(keys, 10)
	for _, k := range keys {
		s.Equal("string", k.Type)
	}
}

func (s *ScannerSuite) TestNext_IntrospectionErrorsDegrade() {
	s.srv.Fill(2, "k:", 3, "string")
	s.srv.FailKey("MEMORY USAGE", "k:1", "ERR memory failure")
	s.srv.FailKey("TYPE", "k:1", "ERR type failure")
	s.srv.FailKey("TTL", "k:1", "ERR ttl failure")

	keys, scanned := s.scanAll(NewScanner(s.node, Filter{Match: "*", Count: 100}))
	s.Equal(3, scanned)
	s.Require().Len(keys, 3)
	for _, k := range keys {
		if string(k.Name) == "k:1" {
			s.Equal(KeyInfo{Name: []byte("k:1"), Size: UnknownSize, TTL: UnknownTTL}, k)
		} else {
			s.Equal("string", k.Type)
		}
	}
}

func (s *ScannerSuite) TestNext_VanishedKeyDropped() {
	s.srv.Fill(2, "k:", 3, "string")
	// as if key were removed right after SCAN
	s.srv.Override("TYPE", "k:2", testbed.Status("none"))
	keys, scanned := s.scanAll(NewScanner(s.node, Filter{Match: "*", Count: 100}))
	s.Equal(3, scanned)
	s.Len(keys, 2)
}

func (s *ScannerSuite) TestNext_Empty() {
	sc := NewScanner(s.node, Filter{Match: "*", Count: 10})
	b, err := sc.Next(s.ctx)
	s.Require().NoError(err)
	s.True(b.Last)
	s.True(sc.Done())
	s.Equal(0, b.Scanned)
	s.NotNil(b.Keys)
	s.Empty(b.Keys)

	b, err = sc.Next(s.ctx)
	s.Require().NoError(err)
	s.True(b.Last)
	s.Equal(1, s.srv.Calls("SCAN"))
}

func (s *ScannerSuite) TestNext_NodeError() {
	s.srv.Fill(2, "k:", 3, "string")
	sc := NewScanner(s.node, Filter{Match: "*", Count: 10})
	s.srv.Stop()
	time.Sleep(10 * time.Millisecond)

	_, err := sc.Next(s.ctx)
	s.Require().Error(err)
	s.True(errorx.HasTrait(err, redis.ErrTraitConnectivity), "%v", err)
	s.False(sc.Done())
}

func (s *ScannerSuite) TestNext_ServerError() {
	s.srv.Deny("SCAN", "ERR scan disabled")
	_, err := NewScanner(s.node, Filter{Match: "*", Count: 10}).Next(s.ctx)
	s.Require().Error(err)
	s.True(errorx.IsOfType(err, redis.ErrResult))
}

func TestScanner(t *testing.T) {
	suite.Run(t, new(ScannerSuite))
}

func TestParseKeyspaceInfo(t *testing.T) {
	info := "# Keyspace\r\ndb0:keys=12,expires=0,avg_ttl=0\r\ndb3:keys=7,expires=1,avg_ttl=10\r\n"
	for db, exp := range map[int]int64{0: 12, 3: 7, 1: 0} {
		n, ok := parseKeyspaceInfo([]byte(info), db)
		if !ok || n != exp {
			t.Errorf("db%d: got %d %v, want %d", db, n, ok, exp)
		}
	}
	if _, ok := parseKeyspaceInfo([]byte("db0:keys=x"), 0); ok {
		t.Error("malformed keys should not parse")
	}
	if _, ok := parseKeyspaceInfo(int64(1), 0); ok {
		t.Error("non-text reply should not parse")
	}
}
