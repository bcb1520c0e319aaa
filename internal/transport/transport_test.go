package transport

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"
)

// fakeServer accepts one connection, reads the 8-byte SSLRequest, and
// writes back the given reply byte.
func fakeServer(t *testing.T, reply byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 8)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		conn.Write([]byte{reply})
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func TestDialUnencryptedOnNReply(t *testing.T) {
	addr := fakeServer(t, 'N')
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		t.Fatal(err)
	}

	conn, usedTLS, err := Dial(context.Background(), Options{
		HostType:    TCP,
		Host:        host,
		Port:        portNum,
		DialTimeout: 2 * time.Second,
		TLSEnabled:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if usedTLS {
		t.Fatal("expected plaintext connection after 'N' reply")
	}
}

func TestDialBadTLSAvailability(t *testing.T) {
	addr := fakeServer(t, 'X')
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = Dial(context.Background(), Options{
		HostType:    TCP,
		Host:        host,
		Port:        portNum,
		DialTimeout: 2 * time.Second,
		TLSEnabled:  true,
	})
	if err != ErrBadTLSAvailability {
		t.Fatalf("expected ErrBadTLSAvailability, got %v", err)
	}
}

func TestSocketPath(t *testing.T) {
	if got := SocketPath("/tmp", 5432); got != "/tmp/.s.PGSQL.5432" {
		t.Fatalf("got %q", got)
	}
}
