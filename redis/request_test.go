package redis_test

import (
	"testing"
	"time"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"

	. "github.com/joomcode/redisbulk/redis"
)

func TestArgToString(t *testing.T) {
	cases := []struct {
		arg  interface{}
		want string
	}{
		{int(0), "0"},
		{uint(1), "1"},
		{int8(-31), "-31"},
		{uint8(156), "156"},
		{int16(-3906), "-3906"},
		{uint16(19351), "19351"},
		{int32(-488281), "-488281"},
		{uint32(2441406), "2441406"},
		{int64(-9223372036854775808), "-9223372036854775808"},
		{uint64(18446744073709551615), "18446744073709551615"},
		{float32(-10000.25), "-10000.25"},
		{float64(0.25), "0.25"},
		{true, "1"},
		{false, "0"},
		{nil, ""},
		{"asdf", "asdf"},
		{[]byte("asdf"), "asdf"},
	}
	for _, c := range cases {
		k, ok := ArgToString(c.arg)
		assert.True(t, ok, "%#v", c.arg)
		assert.Equal(t, c.want, k, "%#v", c.arg)
	}

	k, ok := ArgToString(make(chan int))
	assert.Equal(t, "", k)
	assert.False(t, ok)
}

func TestAppendRequestArgument(t *testing.T) {
	cases := []struct {
		arg  interface{}
		want string
	}{
		{int(0), "$1\r\n0"},
		{uint(1), "$1\r\n1"},
		{int8(-31), "$3\r\n-31"},
		{int16(-3906), "$5\r\n-3906"},
		{uint32(2441406), "$7\r\n2441406"},
		{int64(12207031), "$8\r\n12207031"},
		{int64(-61035156), "$9\r\n-61035156"},
		{int64(9223372036854775807), "$19\r\n9223372036854775807"},
		{int64(-9223372036854775808), "$20\r\n-9223372036854775808"},
		{uint64(18446744073709551615), "$20\r\n18446744073709551615"},
		{float32(0.25), "$4\r\n0.25"},
		{float64(-10000.25), "$9\r\n-10000.25"},
		{true, "$1\r\n1"},
		{false, "$1\r\n0"},
		{nil, "$0\r\n"},
		{"asdf", "$4\r\nasdf"},
		{[]byte("asdf"), "$4\r\nasdf"},
	}
	for _, c := range cases {
		k, err := AppendRequest(nil, Req("CMD", c.arg))
		assert.NoError(t, err)
		assert.Equal(t, "*2\r\n$3\r\nCMD\r\n"+c.want+"\r\n", string(k), "%#v", c.arg)
	}
}

func TestAppendRequest_SplitsCommand(t *testing.T) {
	k, err := AppendRequest(nil, Req("MEMORY USAGE", "key"))
	assert.NoError(t, err)
	assert.Equal(t, "*3\r\n$6\r\nMEMORY\r\n$5\r\nUSAGE\r\n$3\r\nkey\r\n", string(k))

	k, err = AppendRequest(nil, Req("CLUSTER NODES"))
	assert.NoError(t, err)
	assert.Equal(t, "*2\r\n$7\r\nCLUSTER\r\n$5\r\nNODES\r\n", string(k))
}

func TestAppendRequest_BadArgument(t *testing.T) {
	prefix, err := AppendRequest(nil, Req("GET", "one"))
	assert.NoError(t, err)

	k, err := AppendRequest(prefix, Req("SENDFOO", "a", time.Second))
	assert.Equal(t, prefix, k)
	if assert.Error(t, err) {
		assert.True(t, errorx.IsOfType(err, ErrArgumentType))
		pos, _ := errorx.Cast(err).Property(EKArgPos)
		assert.Equal(t, 1, pos)
	}
}

func TestScanOpts_Request(t *testing.T) {
	req := ScanOpts{Match: "user:*", Count: 100, Type: "hash"}.Request(nil)
	assert.Equal(t, "SCAN", req.Cmd)
	assert.Equal(t, []interface{}{[]byte("0"), "MATCH", "user:*", "COUNT", 100, "TYPE", "hash"}, req.Args)

	req = ScanOpts{Cmd: "HSCAN", Key: "h", Type: "hash"}.Request([]byte("17"))
	assert.Equal(t, []interface{}{"h", []byte("17")}, req.Args)
}
