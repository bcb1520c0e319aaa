package pglink

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestPoolEagerInitializesCapacity(t *testing.T) {
	fs := newFakeServer(t)
	for i := 0; i < 2; i++ {
		fs.acceptAndHandshake(t, func(conn net.Conn) {
			<-make(chan struct{}) // keep connection open until test cleanup closes the listener
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p, err := NewPool(ctx, fs.config(), PoolOptions{Capacity: 2, Lazy: false})
	if err != nil {
		t.Fatal(err)
	}
	defer p.End()

	stats := p.Stats()
	if stats.Idle != 2 || stats.Total != 2 {
		t.Fatalf("got %+v", stats)
	}
}

func TestPoolLazyDefersDial(t *testing.T) {
	fs := newFakeServer(t)
	fs.acceptAndHandshake(t, func(conn net.Conn) {
		<-make(chan struct{})
	})

	ctx := context.Background()
	p, err := NewPool(ctx, fs.config(), PoolOptions{Capacity: 1, Lazy: true})
	if err != nil {
		t.Fatal(err)
	}
	defer p.End()

	if stats := p.Stats(); stats.Total != 0 {
		t.Fatalf("expected no connections yet, got %+v", stats)
	}

	acquireCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	c, err := p.Acquire(acquireCtx)
	if err != nil {
		t.Fatal(err)
	}
	if stats := p.Stats(); stats.Total != 1 || stats.Active != 1 {
		t.Fatalf("got %+v", stats)
	}
	p.Release(ctx, c)
	if stats := p.Stats(); stats.Idle != 1 || stats.Active != 0 {
		t.Fatalf("got %+v", stats)
	}
}

func TestPoolWaiterFIFOOrder(t *testing.T) {
	fs := newFakeServer(t)
	fs.acceptAndHandshake(t, func(conn net.Conn) {
		<-make(chan struct{})
	})

	ctx := context.Background()
	p, err := NewPool(ctx, fs.config(), PoolOptions{Capacity: 1, Lazy: false})
	if err != nil {
		t.Fatal(err)
	}
	defer p.End()

	held, err := p.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}

	order := make(chan int, 2)
	for i := 0; i < 2; i++ {
		i := i
		go func() {
			acquireCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if _, err := p.Acquire(acquireCtx); err != nil {
				return
			}
			order <- i
		}()
		time.Sleep(20 * time.Millisecond) // ensure registration order
	}

	p.Release(ctx, held)
	first := <-order

	if stats := p.Stats(); stats.Waiting != 1 {
		t.Fatalf("expected one waiter still queued, got %+v", stats)
	}
	if first != 0 {
		t.Fatalf("expected waiter 0 to be served first (FIFO), got %d", first)
	}
}

func TestPoolAcquireOnClosedPool(t *testing.T) {
	fs := newFakeServer(t)
	fs.acceptAndHandshake(t, func(conn net.Conn) {
		<-make(chan struct{})
	})

	ctx := context.Background()
	p, err := NewPool(ctx, fs.config(), PoolOptions{Capacity: 1, Lazy: true})
	if err != nil {
		t.Fatal(err)
	}
	p.End()

	_, err = p.Acquire(ctx)
	if err == nil {
		t.Fatal("expected Terminated error")
	}
	le, ok := err.(*LifecycleError)
	if !ok || le.Kind != Terminated {
		t.Fatalf("got %v", err)
	}
}

func TestPoolZeroCapacityExhaustsImmediately(t *testing.T) {
	ctx := context.Background()
	p, err := NewPool(ctx, Config{User: "u", Database: "d", HostType: HostTCP, Port: 5432, Connection: ConnectionConfig{Attempts: 1}}, PoolOptions{Capacity: 0, Lazy: true})
	if err != nil {
		t.Fatal(err)
	}
	defer p.End()

	_, err = p.Acquire(ctx)
	if err == nil {
		t.Fatal("expected PoolExhausted error")
	}
	le, ok := err.(*LifecycleError)
	if !ok || le.Kind != PoolExhausted {
		t.Fatalf("got %v", err)
	}
}
