package bulk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/joomcode/redisbulk/keyspace"
	"github.com/joomcode/redisbulk/redisconn"
	"github.com/joomcode/redisbulk/testbed"
)

type mapResolver map[string]keyspace.Client

func (m mapResolver) Resolve(_ context.Context, id string) (keyspace.Client, error) {
	if c, ok := m[id]; ok {
		return c, nil
	}
	return nil, ErrActionNotFound.New("unknown database %s", id)
}

type snapshotLog struct {
	mu   sync.Mutex
	byID map[string][]Snapshot
}

func (l *snapshotLog) Publish(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byID[s.ID] = append(l.byID[s.ID], s)
}

func (l *snapshotLog) last(id string) (Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	snaps := l.byID[id]
	if len(snaps) == 0 {
		return Snapshot{}, false
	}
	return snaps[len(snaps)-1], true
}

type RegistrySuite struct {
	suite.Suite
	srv  *testbed.Server
	conn *redisconn.Connection
	log  *snapshotLog
	reg  *Registry
}

func (s *RegistrySuite) SetupTest() {
	s.srv = &testbed.Server{}
	s.Require().NoError(s.srv.Start())
	var err error
	s.conn, err = redisconn.Connect(context.Background(), s.srv.Addr(), redisconn.Opts{
		IOTimeout: time.Second,
		Logger:    redisconn.NoopLogger{},
	})
	s.Require().NoError(err)
	s.log = &snapshotLog{byID: make(map[string][]Snapshot)}
	s.reg = NewRegistry(mapResolver{
		"main": keyspace.NewStandaloneClient(s.conn, keyspace.Standalone),
		"odd":  oddClient{},
	}, s.log, Opts{
		MinWait: time.Millisecond,
		MaxWait: 5 * time.Millisecond,
		Logger:  zap.NewNop(),
	})
}

func (s *RegistrySuite) TearDownTest() {
	s.reg.Close()
	s.conn.Close()
	s.srv.Stop()
}

func (s *RegistrySuite) desc() Descriptor {
	return Descriptor{DatabaseID: "main", Kind: Delete, Filter: keyspace.Filter{Match: "*", Count: 5}}
}

func (s *RegistrySuite) wait(a *Action) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(a.Wait(ctx))
}

func (s *RegistrySuite) TestRunsToCompletionAndLeaves() {
	s.srv.Fill(0, "k:", 50, "string")
	a, err := s.reg.AddAction(context.Background(), "alice", s.desc())
	s.Require().NoError(err)
	s.wait(a)

	s.Equal(Completed, a.Status())
	s.Empty(s.srv.Keys(0))
	s.Eventually(func() bool { return len(s.reg.List()) == 0 }, time.Second, time.Millisecond)

	_, err = s.reg.Get(a.ID())
	s.True(errorx.IsOfType(err, ErrActionNotFound))
	s.True(errorx.IsNotFound(err))
	s.True(errorx.IsNotFound(s.reg.Abort(a.ID(), "alice")))

	last, ok := s.log.last(a.ID())
	s.Require().True(ok)
	s.Equal(Completed, last.Status)
	s.Equal(int64(50), last.Summary.Processed)
}

func (s *RegistrySuite) TestReplacesActionOfSameOwner() {
	s.srv.Fill(0, "k:", 5000, "string")
	slow := s.desc()
	reg := NewRegistry(mapResolver{"main": keyspace.NewStandaloneClient(s.conn, keyspace.Standalone)}, s.log,
		Opts{BatchesPerSecond: 10, Logger: zap.NewNop()})
	defer reg.Close()

	first, err := reg.AddAction(context.Background(), "bob", slow)
	s.Require().NoError(err)
	s.Equal([]*Action{first}, reg.FindByOwner("bob"))

	second, err := reg.AddAction(context.Background(), "bob", slow)
	s.Require().NoError(err)
	s.NotEqual(first.ID(), second.ID())
	s.True(first.Aborted())

	s.Equal([]*Action{second}, reg.FindByOwner("bob"))
	_, err = reg.Get(first.ID())
	s.True(errorx.IsOfType(err, ErrActionNotFound))
	_, err = reg.GetOwned(first.ID(), "bob")
	s.True(errorx.IsNotFound(err))

	s.wait(first)
	s.Equal(Aborted, first.Status())

	other, err := reg.AddAction(context.Background(), "carol", slow)
	s.Require().NoError(err)
	s.Len(reg.List(), 2)

	got, err := reg.GetOwned(second.ID(), "bob")
	s.Require().NoError(err)
	s.Equal(second, got)
	_, err = reg.GetOwned(second.ID(), "carol")
	s.True(errorx.IsOfType(err, ErrForbidden))
	err = reg.Abort(second.ID(), "carol")
	s.True(errorx.IsOfType(err, ErrForbidden))
	s.False(second.Aborted())
	s.Require().NoError(reg.Abort(second.ID(), "bob"))
	s.wait(second)
	s.Equal(Aborted, second.Status())
	// owner slot is released only by its own action
	s.Len(reg.FindByOwner("carol"), 1)
	s.Eventually(func() bool { return len(reg.FindByOwner("bob")) == 0 }, time.Second, time.Millisecond)
	reg.Close()
	s.Equal(Aborted, other.Status())
}

func (s *RegistrySuite) TestValidation() {
	d := s.desc()
	d.Filter.Match = ""
	_, err := s.reg.AddAction(context.Background(), "x", d)
	s.True(errorx.IsOfType(err, keyspace.ErrInvalidFilter))

	d = s.desc()
	d.Kind = ExpireSet
	_, err = s.reg.AddAction(context.Background(), "x", d)
	s.True(errorx.IsOfType(err, ErrInvalidParams))

	d = s.desc()
	d.DatabaseID = "nope"
	_, err = s.reg.AddAction(context.Background(), "x", d)
	s.Error(err)

	d = s.desc()
	d.DatabaseID = "odd"
	_, err = s.reg.AddAction(context.Background(), "x", d)
	s.True(errorx.IsOfType(err, keyspace.ErrUnsupportedTopology))

	s.Empty(s.reg.List())
}

func (s *RegistrySuite) TestClosed() {
	s.reg.Close()
	_, err := s.reg.AddAction(context.Background(), "x", s.desc())
	s.True(errorx.IsOfType(err, ErrRegistryClosed))
}

func TestRegistry(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

type oddClient struct{}

func (oddClient) Kind() keyspace.TopologyKind { return keyspace.Unknown }

func (oddClient) Nodes(keyspace.Role) ([]keyspace.Node, error) { return nil, nil }
