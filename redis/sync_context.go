package redis

import (
	"context"
	"sync/atomic"
)

// SyncCtx provides convenient synchronous interface over asynchronous Sender.
// Its methods accept context, and will return early if context is closed.
type SyncCtx struct {
	S Sender
}

// Do is convenient method to construct and send request.
// Returns value that could be either result or error.
// When context is cancelled, Do returns ErrRequestCancelled error.
func (s SyncCtx) Do(ctx context.Context, cmd string, args ...interface{}) interface{} {
	return s.Send(ctx, Request{cmd, args})
}

// Send sends request to redis.
// Returns value that could be either result or error.
// When context is cancelled, Send returns ErrRequestCancelled error.
func (s SyncCtx) Send(ctx context.Context, r Request) interface{} {
	ctxr := &ctxRes{active: newActive(ctx)}

	s.S.Send(r, ctxr, 0)

	select {
	case <-ctx.Done():
		return ErrRequestCancelled.WrapWithNoMessage(ctx.Err())
	case <-ctxr.ch:
		return ctxr.r
	}
}

// SendMany sends several requests in "parallel" and returns slice of results in same order.
// Each result could be value or error.
// When context is cancelled, SendMany returns slice of ErrRequestCancelled errors for
// requests that were not resolved yet.
func (s SyncCtx) SendMany(ctx context.Context, reqs []Request) []interface{} {
	if len(reqs) == 0 {
		return nil
	}

	res := &ctxBatch{
		active: newActive(ctx),
		r:      make([]interface{}, len(reqs)),
		o:      make([]uint32, len(reqs)),
	}

	s.S.SendMany(reqs, res, 0)

	select {
	case <-ctx.Done():
		err := ErrRequestCancelled.WrapWithNoMessage(ctx.Err())
		for i := range res.o {
			res.Resolve(err, uint64(i))
		}
		<-res.ch
	case <-res.ch:
	}
	return res.r
}

type active struct {
	ctx context.Context
	ch  chan struct{}
}

func newActive(ctx context.Context) active {
	return active{ctx, make(chan struct{})}
}

func (c active) Cancelled() error {
	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		return nil
	}
}

func (c active) done() {
	close(c.ch)
}

type ctxRes struct {
	active
	r interface{}
}

func (c *ctxRes) Resolve(r interface{}, _ uint64) {
	c.r = r
	c.done()
}

type ctxBatch struct {
	active
	r   []interface{}
	o   []uint32
	cnt uint32
}

func (s *ctxBatch) Resolve(res interface{}, i uint64) {
	if atomic.CompareAndSwapUint32(&s.o[i], 0, 1) {
		s.r[i] = res
		if int(atomic.AddUint32(&s.cnt, 1)) == len(s.r) {
			s.done()
		}
	}
}
