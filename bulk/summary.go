package bulk

import (
	"strings"

	"github.com/joomcode/errorx"

	"github.com/joomcode/redisbulk/redis"
)

// DefaultMaxErrorKinds limits number of distinct error kinds kept by Summary.
const DefaultMaxErrorKinds = 10

// Error kinds produced by ClassifyError.
const (
	KindConnectionLost = "connection lost"
	KindCancelled      = "cancelled"
	KindMoved          = "moved"
	KindOther          = "other"
)

var serverErrorKinds = map[string]string{
	"WRONGTYPE": "wrong type",
	"NOPERM":    "no permission",
	"READONLY":  "read only",
	"OOM":       "out of memory",
	"LOADING":   "loading",
	"BUSY":      "busy",
}

// ClassifyError maps error to short kind and message.
func ClassifyError(err error) (kind string, message string) {
	if err == nil {
		return "", ""
	}
	message = err.Error()
	switch {
	case errorx.HasTrait(err, redis.ErrTraitConnectivity):
		return KindConnectionLost, message
	case errorx.IsOfType(err, redis.ErrRequestCancelled), errorx.IsOfType(err, redis.ErrContextClosed):
		return KindCancelled, message
	case errorx.HasTrait(err, redis.ErrTraitClusterMove):
		return KindMoved, message
	case errorx.IsOfType(err, redis.ErrResult):
		text := errorx.Cast(err).Message()
		prefix := text
		if ix := strings.IndexByte(text, ' '); ix != -1 {
			prefix = text[:ix]
		}
		if prefix == "" {
			return KindOther, text
		}
		if kind, ok := serverErrorKinds[prefix]; ok {
			return kind, text
		}
		return strings.ToLower(prefix), text
	}
	return KindOther, message
}

// ErrorSample is a group of failures of the same kind.
type ErrorSample struct {
	Kind    string `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
	Count   int64  `json:"count" yaml:"count"`
}

// Summary counts results of mutation commands.
// It is not synchronized: Action guards it with its mutex.
type Summary struct {
	processed int64
	succeeded int64
	failed    int64

	maxKinds int
	errors   map[string]*ErrorSample
	order    []string
}

// NewSummary returns empty summary keeping at most maxKinds error kinds besides "other".
func NewSummary(maxKinds int) *Summary {
	if maxKinds <= 0 {
		maxKinds = DefaultMaxErrorKinds
	}
	return &Summary{
		maxKinds: maxKinds,
		errors:   make(map[string]*ErrorSample),
	}
}

// Fold accounts results of one batch, one result per key.
func (s *Summary) Fold(results []interface{}) {
	for _, res := range results {
		if err := redis.AsError(res); err != nil {
			s.AddFailure(err)
		} else {
			s.processed++
			s.succeeded++
		}
	}
}

// AddFailure accounts single failed key.
func (s *Summary) AddFailure(err error) {
	s.processed++
	s.failed++
	kind, msg := ClassifyError(err)
	sample, ok := s.errors[kind]
	if !ok {
		if kind != KindOther && len(s.order)-s.otherIndex() >= s.maxKinds {
			kind = KindOther
			sample = s.errors[kind]
		}
		if sample == nil {
			sample = &ErrorSample{Kind: kind, Message: msg}
			s.errors[kind] = sample
			s.order = append(s.order, kind)
		}
	}
	sample.Count++
}

// otherIndex returns 1 if "other" bucket exists, so it is not counted against the limit.
func (s *Summary) otherIndex() int {
	if _, ok := s.errors[KindOther]; ok {
		return 1
	}
	return 0
}

// Processed returns number of keys mutation were attempted for.
func (s *Summary) Processed() int64 { return s.processed }

// Succeeded returns number of keys mutated successfully.
func (s *Summary) Succeeded() int64 { return s.succeeded }

// Failed returns number of keys mutation failed for.
func (s *Summary) Failed() int64 { return s.failed }

// SummaryView is a snapshot of Summary.
type SummaryView struct {
	Processed int64         `json:"processed" yaml:"processed"`
	Succeeded int64         `json:"succeeded" yaml:"succeeded"`
	Failed    int64         `json:"failed" yaml:"failed"`
	Errors    []ErrorSample `json:"errors" yaml:"errors"`
}

// View returns snapshot. Errors are ordered by first occurrence.
func (s *Summary) View() SummaryView {
	v := SummaryView{
		Processed: s.processed,
		Succeeded: s.succeeded,
		Failed:    s.failed,
		Errors:    make([]ErrorSample, 0, len(s.order)),
	}
	for _, kind := range s.order {
		v.Errors = append(v.Errors, *s.errors[kind])
	}
	return v
}
