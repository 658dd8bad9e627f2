package bulk

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joomcode/redisbulk/redis"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{redis.ErrIO.New("read tcp: i/o timeout"), KindConnectionLost},
		{redis.ErrNotConnected.NewWithNoMessage(), KindConnectionLost},
		{redis.ErrDial.NewWithNoMessage(), KindConnectionLost},
		{redis.ErrRequestCancelled.WrapWithNoMessage(context.Canceled), KindCancelled},
		{redis.ErrContextClosed.NewWithNoMessage(), KindCancelled},
		{redis.ErrMoved.New("MOVED 3999 127.0.0.1:6381"), KindMoved},
		{redis.ErrAsk.New("ASK 3999 127.0.0.1:6381"), KindMoved},
		{redis.ErrResult.New("WRONGTYPE Operation against a key holding the wrong kind of value"), "wrong type"},
		{redis.ErrResult.New("NOPERM this user has no permissions"), "no permission"},
		{redis.ErrResult.New("READONLY You can't write against a read only replica."), "read only"},
		{redis.ErrResult.New("OOM command not allowed when used memory > 'maxmemory'."), "out of memory"},
		{redis.ErrLoading.New("LOADING Redis is loading the dataset in memory"), "loading"},
		{redis.ErrResult.New("BUSY Redis is busy running a script."), "busy"},
		{redis.ErrResult.New("ERR unknown command"), "err"},
		{redis.ErrResult.New("CROSSSLOT Keys in request don't hash to the same slot"), "crossslot"},
		{redis.ErrResult.New("NOSCRIPT"), "noscript"},
		{redis.ErrResponseUnexpected.New("what"), KindOther},
		{errors.New("plain"), KindOther},
	}
	for _, c := range cases {
		kind, msg := ClassifyError(c.err)
		assert.Equal(t, c.kind, kind, "%v", c.err)
		assert.NotEmpty(t, msg)
	}

	kind, msg := ClassifyError(redis.ErrResult.New("WRONGTYPE Operation"))
	assert.Equal(t, "wrong type", kind)
	assert.Equal(t, "WRONGTYPE Operation", msg)

	kind, _ = ClassifyError(nil)
	assert.Equal(t, "", kind)
}

func checkBalanced(t *testing.T, s *Summary) {
	t.Helper()
	v := s.View()
	require.Equal(t, v.Processed, v.Succeeded+v.Failed)
	var cnt int64
	for _, e := range v.Errors {
		cnt += e.Count
	}
	require.Equal(t, v.Failed, cnt)
}

func TestSummary_Fold(t *testing.T) {
	s := NewSummary(0)
	s.Fold([]interface{}{
		int64(1),
		int64(0),
		redis.ErrResult.New("WRONGTYPE a"),
		"OK",
		redis.ErrIO.New("broken"),
		redis.ErrResult.New("WRONGTYPE b"),
	})
	checkBalanced(t, s)
	v := s.View()
	assert.Equal(t, int64(6), v.Processed)
	assert.Equal(t, int64(3), v.Succeeded)
	assert.Equal(t, int64(3), v.Failed)
	assert.Equal(t, []ErrorSample{
		{Kind: "wrong type", Message: "WRONGTYPE a", Count: 2},
		{Kind: KindConnectionLost, Message: redis.ErrIO.New("broken").Error(), Count: 1},
	}, v.Errors)

	s.Fold(nil)
	checkBalanced(t, s)
	assert.Equal(t, int64(6), s.Processed())
}

func TestSummary_MaxErrorKinds(t *testing.T) {
	s := NewSummary(3)
	for i := 0; i < 10; i++ {
		s.Fold([]interface{}{redis.ErrResult.New(fmt.Sprintf("E%d failure", i))})
		checkBalanced(t, s)
	}
	v := s.View()
	require.Len(t, v.Errors, 4)
	assert.Equal(t, "e0", v.Errors[0].Kind)
	assert.Equal(t, "e1", v.Errors[1].Kind)
	assert.Equal(t, "e2", v.Errors[2].Kind)
	assert.Equal(t, KindOther, v.Errors[3].Kind)
	assert.Equal(t, int64(7), v.Errors[3].Count)

	// known kind still counted in its bucket
	s.Fold([]interface{}{redis.ErrResult.New("E1 again")})
	assert.Equal(t, int64(2), s.View().Errors[1].Count)
	checkBalanced(t, s)
}

func TestSummary_EmptyView(t *testing.T) {
	v := NewSummary(0).View()
	assert.NotNil(t, v.Errors)
	assert.Empty(t, v.Errors)
}
