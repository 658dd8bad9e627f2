package bulk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanProgress_ClampsScanned(t *testing.T) {
	p := NewScanProgress("n:1")
	p.SetTotal(10000)
	p.AddScanned(1000)
	assert.Equal(t, int64(1000), p.Scanned())
	assert.False(t, p.Started())

	p.SetCursor(0)
	assert.Equal(t, int64(10000), p.Scanned())
	assert.Equal(t, int64(CursorDone), p.Cursor())
	assert.True(t, p.Done())
	assert.True(t, p.Started())
}

func TestScanProgress_AddScannedOverTotal(t *testing.T) {
	p := NewScanProgress("n:1")
	p.SetTotal(10000)
	p.AddScanned(200000)
	assert.Equal(t, int64(10000), p.Scanned())

	p.AddScanned(-5)
	assert.Equal(t, int64(10000), p.Scanned())
}

func TestScanProgress_TotalNotBelowScanned(t *testing.T) {
	p := NewScanProgress("n:1")
	p.SetTotal(100)
	p.AddScanned(80)
	p.SetTotal(50)
	assert.Equal(t, int64(80), p.Total())
	assert.Equal(t, int64(80), p.Scanned())
}

func TestScanProgress_Cursor(t *testing.T) {
	p := NewScanProgress("n:1")
	p.SetTotal(100)
	p.SetCursor(17)
	assert.Equal(t, int64(17), p.Cursor())
	assert.True(t, p.Started())
	assert.False(t, p.Done())
}

func TestOverview(t *testing.T) {
	a := NewScanProgress("a:1")
	a.SetTotal(10)
	a.AddScanned(4)
	b := NewScanProgress("b:1")
	b.SetTotal(20)
	b.SetCursor(0)
	c := NewScanProgress("c:1")
	c.Fail(errors.New("boom"))

	ov := makeOverview([]*ScanProgress{a, b, c})
	assert.Equal(t, int64(30), ov.Total)
	assert.Equal(t, int64(24), ov.Scanned)
	assert.Equal(t, []NodeOverview{
		{Addr: "a:1", Total: 10, Scanned: 4},
		{Addr: "b:1", Total: 20, Scanned: 20, Cursor: CursorDone},
		{Addr: "c:1", Failed: true, Error: "boom"},
	}, ov.Nodes)
}
