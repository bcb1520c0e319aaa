package pglink

import (
	"context"
	"sync"
)

// Client is the top-level facade from §4.10: connect, end, query_array,
// query_object, create_transaction. Every operation before Connect fails
// with NotConnected; every operation after End fails with Terminated.
type Client struct {
	mu        sync.Mutex
	conn      *Conn
	connected bool
	ended     bool
	metrics   *Collector
}

// Connect dials a single connection per cfg and returns a ready Client.
// A pool-backed client is built by wrapping a *Pool directly; Client is
// the single-connection facade §4.10 describes.
func Connect(ctx context.Context, cfg Config, metrics *Collector) (*Client, error) {
	conn, err := dialConn(ctx, cfg)
	if err != nil {
		return nil, err
	}
	conn.metrics = metrics
	return &Client{conn: conn, connected: true, metrics: metrics}, nil
}

func (cl *Client) guard() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.ended {
		return newLifecycleError(Terminated)
	}
	if !cl.connected {
		return newLifecycleError(NotConnected)
	}
	return nil
}

// End terminates the underlying connection; idempotent.
func (cl *Client) End() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.ended {
		return nil
	}
	if !cl.connected {
		return newLifecycleError(NotConnected)
	}
	cl.ended = true
	cl.connected = false
	return cl.conn.End()
}

// QueryArray executes q and materializes its rows positionally.
func (cl *Client) QueryArray(ctx context.Context, q *Query) (*ArrayResult, error) {
	if err := cl.guard(); err != nil {
		return nil, err
	}
	return cl.conn.QueryArray(ctx, q)
}

// QueryObject executes q and materializes its rows as field-name-keyed maps.
func (cl *Client) QueryObject(ctx context.Context, q *Query, opts ObjectOptions) (*ObjectResult, error) {
	if err := cl.guard(); err != nil {
		return nil, err
	}
	return cl.conn.QueryObject(ctx, q, opts)
}

// CreateTransaction begins a transaction on the client's connection.
func (cl *Client) CreateTransaction(ctx context.Context, opts TxOptions) (*Tx, error) {
	if err := cl.guard(); err != nil {
		return nil, err
	}
	return cl.conn.Begin(ctx, opts)
}
