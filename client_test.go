package pglink

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestClientConnectAndQuery(t *testing.T) {
	fs := newFakeServer(t)
	fs.acceptAndHandshake(t, func(conn net.Conn) {
		expectQuery(t, conn, "SELECT 1")
		writeSimpleQueryOK(conn, "SELECT 1")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cl, err := Connect(ctx, fs.config(), nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := cl.QueryArray(ctx, NewQuery("SELECT 1"))
	if err != nil {
		t.Fatal(err)
	}
	if res.CommandTag.Command != "SELECT" {
		t.Fatalf("got %+v", res.CommandTag)
	}

	if err := cl.End(); err != nil {
		t.Fatal(err)
	}
	// End is idempotent.
	if err := cl.End(); err != nil {
		t.Fatal(err)
	}
}

func TestClientOperationsFailBeforeConnectOrAfterEnd(t *testing.T) {
	cl := &Client{}
	if _, err := cl.QueryArray(context.Background(), NewQuery("SELECT 1")); err == nil {
		t.Fatal("expected NotConnected error")
	} else if le, ok := err.(*LifecycleError); !ok || le.Kind != NotConnected {
		t.Fatalf("got %v", err)
	}

	fs := newFakeServer(t)
	fs.acceptAndHandshake(t, func(conn net.Conn) {})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	live, err := Connect(ctx, fs.config(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := live.End(); err != nil {
		t.Fatal(err)
	}
	if _, err := live.QueryArray(ctx, NewQuery("SELECT 1")); err == nil {
		t.Fatal("expected Terminated error")
	} else if le, ok := err.(*LifecycleError); !ok || le.Kind != Terminated {
		t.Fatalf("got %v", err)
	}
}
