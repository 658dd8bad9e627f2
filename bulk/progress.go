package bulk

// CursorDone is a cursor value of node which completed full SCAN pass.
const CursorDone = -1

// ScanProgress tracks SCAN pass over single node.
// It is not synchronized: Action guards it with its mutex.
type ScanProgress struct {
	addr    string
	total   int64
	scanned int64
	cursor  int64
	started bool
	failed  bool
	err     string
}

// NewScanProgress returns progress for node at addr.
func NewScanProgress(addr string) *ScanProgress {
	return &ScanProgress{addr: addr}
}

// SetTotal sets expected number of keys. Total never drops below already scanned.
func (p *ScanProgress) SetTotal(n int64) {
	if n < p.scanned {
		n = p.scanned
	}
	p.total = n
}

// AddScanned accounts n more scanned keys. Scanned never exceeds total.
func (p *ScanProgress) AddScanned(n int64) {
	if n <= 0 {
		return
	}
	p.scanned += n
	if p.scanned > p.total {
		p.scanned = p.total
	}
}

// SetCursor records cursor returned by server.
// Zero cursor completes the pass.
func (p *ScanProgress) SetCursor(c uint64) {
	p.started = true
	if c == 0 {
		p.cursor = CursorDone
		p.scanned = p.total
		return
	}
	p.cursor = int64(c)
}

// Fail marks node failed.
func (p *ScanProgress) Fail(err error) {
	p.failed = true
	if err != nil {
		p.err = err.Error()
	}
}

// Addr returns address of scanned node.
func (p *ScanProgress) Addr() string { return p.addr }

// Total returns number of keys reported by node before the pass, or 0 if unknown.
func (p *ScanProgress) Total() int64 { return p.total }

// Scanned returns number of keys returned by SCAN so far.
func (p *ScanProgress) Scanned() int64 { return p.scanned }

// Cursor returns last SCAN cursor, CursorDone after the final batch.
func (p *ScanProgress) Cursor() int64 { return p.cursor }

// Started reports whether the first SCAN were issued.
func (p *ScanProgress) Started() bool { return p.started }

// Failed reports whether node pass were stopped by error.
func (p *ScanProgress) Failed() bool { return p.failed }

// Done reports whether pass is complete.
func (p *ScanProgress) Done() bool {
	return p.cursor == CursorDone
}

// NodeOverview is a snapshot of ScanProgress.
type NodeOverview struct {
	Addr    string `json:"addr" yaml:"addr"`
	Total   int64  `json:"total" yaml:"total"`
	Scanned int64  `json:"scanned" yaml:"scanned"`
	Cursor  int64  `json:"cursor" yaml:"cursor"`
	Failed  bool   `json:"failed,omitempty" yaml:"failed,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Overview aggregates progress of all nodes of action.
type Overview struct {
	Total   int64          `json:"total" yaml:"total"`
	Scanned int64          `json:"scanned" yaml:"scanned"`
	Nodes   []NodeOverview `json:"nodes" yaml:"nodes"`
}

func (p *ScanProgress) overview() NodeOverview {
	return NodeOverview{
		Addr:    p.addr,
		Total:   p.total,
		Scanned: p.scanned,
		Cursor:  p.cursor,
		Failed:  p.failed,
		Error:   p.err,
	}
}

func makeOverview(nodes []*ScanProgress) Overview {
	ov := Overview{Nodes: make([]NodeOverview, len(nodes))}
	for i, p := range nodes {
		ov.Nodes[i] = p.overview()
		ov.Total += p.total
		ov.Scanned += p.scanned
	}
	return ov
}
