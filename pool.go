// Pool is grounded on the teacher's internal/pool.TenantPool, generalized
// from "one tenant's fixed backend" to "one DSN" and stripped of the
// tenant/multi-backend/MySQL concerns (see DESIGN.md). Idle connections sit
// in a plain LIFO slice. The waiter queue is a deliberate departure from the
// teacher's sync.Cond.Broadcast-based signaling: §8 requires exact FIFO
// resolution order, which Broadcast only approximates (every waiter wakes,
// re-acquires the mutex in OS-scheduler order, and races for the
// connection), so a container/list FIFO of per-waiter result channels is
// used instead — each Release resolves exactly the head waiter, in
// registration order.
package pglink

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// PoolStats mirrors the teacher's Stats(), trimmed to one pool instead of
// a Manager of many tenants, per §4.9.
type PoolStats struct {
	Active      int
	Idle        int
	Total       int
	Waiting     int
	Capacity    int
	Exhausted   int64
	Reconnects  int64
}

// PoolOptions configures a Pool, per §4.9.
type PoolOptions struct {
	Capacity int
	Lazy     bool
	Metrics  *Collector
}

type waiter struct {
	result chan waiterResult
}

type waiterResult struct {
	conn *Conn
	err  error
}

// Pool is a LIFO stack of idle connections plus a FIFO waiter queue,
// sharing one Config across every connection it creates.
type Pool struct {
	mu sync.Mutex

	cfg     Config
	opt     PoolOptions
	idle    []*Conn
	waiters *list.List // of *waiter, front = head of FIFO

	initialized int
	active      int
	exhausted   int64
	reconnects  int64
	closed      bool
}

// NewPool constructs a Pool against cfg. In eager mode (the default, with
// opt.Lazy false) it creates opt.Capacity connections immediately; in lazy
// mode creation is deferred to the first Acquire, per §4.9.
func NewPool(ctx context.Context, cfg Config, opt PoolOptions) (*Pool, error) {
	p := &Pool{
		cfg:     cfg,
		opt:     opt,
		waiters: list.New(),
	}
	if !opt.Lazy {
		for i := 0; i < opt.Capacity; i++ {
			c, err := p.dial(ctx)
			if err != nil {
				p.End()
				return nil, err
			}
			p.idle = append(p.idle, c)
			p.initialized++
		}
	}
	return p, nil
}

// dial creates a connection against the pool's Config and tags it with
// the pool's metrics Collector, if any.
func (p *Pool) dial(ctx context.Context) (*Conn, error) {
	c, err := dialConn(ctx, p.cfg)
	if err != nil {
		return nil, err
	}
	c.metrics = p.opt.Metrics
	return c, nil
}

// Acquire returns an idle connection if one exists; otherwise, if capacity
// allows, creates one; otherwise registers a FIFO waiter and suspends
// until Release resolves it or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, newLifecycleError(Terminated)
	}

	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.active++
		p.mu.Unlock()
		p.observeAcquire()
		return c, nil
	}

	if p.initialized < p.opt.Capacity {
		p.initialized++
		p.mu.Unlock()
		c, err := p.dial(ctx)
		if err != nil {
			p.mu.Lock()
			p.initialized--
			p.mu.Unlock()
			return nil, err
		}
		p.mu.Lock()
		p.active++
		p.mu.Unlock()
		p.observeAcquire()
		return c, nil
	}

	if p.opt.Capacity == 0 {
		p.mu.Unlock()
		return nil, newLifecycleError(PoolExhausted)
	}

	w := &waiter{result: make(chan waiterResult, 1)}
	elem := p.waiters.PushBack(w)
	p.exhausted++
	p.mu.Unlock()
	p.observeExhausted()

	select {
	case res := <-w.result:
		if res.err != nil {
			return nil, res.err
		}
		p.observeAcquire()
		return res.conn, nil
	case <-ctx.Done():
		p.mu.Lock()
		p.waiters.Remove(elem)
		p.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Release runs the post-return health check and, per §4.9, resolves the
// head waiter directly with this connection (no intermediate idle state)
// if one is queued; otherwise pushes the connection onto the idle stack.
func (p *Pool) Release(ctx context.Context, c *Conn) {
	c, ok := p.postCheck(ctx, c)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.active--

	if p.closed {
		if ok {
			c.End()
		}
		return
	}

	if !ok {
		p.initialized--
		return
	}

	if front := p.waiters.Front(); front != nil {
		p.waiters.Remove(front)
		w := front.Value.(*waiter)
		p.active++
		w.result <- waiterResult{conn: c}
		return
	}

	p.idle = append(p.idle, c)
}

// postCheck reconnects a disconnected connection (bounded by the configured
// attempts) before it is made available again; it is discarded if
// reconnection fails or attempts are exhausted, per §4.9.
func (p *Pool) postCheck(ctx context.Context, c *Conn) (*Conn, bool) {
	if !c.raw.IsClosed() {
		return c, true
	}
	attempts := p.cfg.Connection.Attempts
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && p.cfg.Connection.Interval != nil {
			select {
			case <-time.After(p.cfg.Connection.Interval(attempt)):
			case <-ctx.Done():
				return nil, false
			}
		}
		fresh, err := p.dial(ctx)
		if err == nil {
			p.mu.Lock()
			p.reconnects++
			p.mu.Unlock()
			p.observeReconnect()
			return fresh, true
		}
	}
	return nil, false
}

// End closes every idle connection and rejects outstanding waiters; the
// pool may be reinitialized after End by constructing a new Pool, per §4.9.
func (p *Pool) End() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, c := range p.idle {
		c.End()
	}
	p.idle = nil
	for e := p.waiters.Front(); e != nil; e = e.Next() {
		w := e.Value.(*waiter)
		w.result <- waiterResult{err: newLifecycleError(Terminated)}
	}
	p.waiters.Init()
}

// Stats returns a snapshot of the pool's current state.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Active:     p.active,
		Idle:       len(p.idle),
		Total:      p.initialized,
		Waiting:    p.waiters.Len(),
		Capacity:   p.opt.Capacity,
		Exhausted:  p.exhausted,
		Reconnects: p.reconnects,
	}
}

func (p *Pool) observeAcquire() {
	if p.opt.Metrics != nil {
		p.opt.Metrics.ObserveAcquire(p.Stats())
	}
}

func (p *Pool) observeExhausted() {
	if p.opt.Metrics != nil {
		p.opt.Metrics.ObservePoolExhausted()
	}
}

func (p *Pool) observeReconnect() {
	if p.opt.Metrics != nil {
		p.opt.Metrics.ObserveReconnect()
	}
}
