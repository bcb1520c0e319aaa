package pglink

import (
	"net"
	"testing"

	"github.com/dbbouncer/pglink/internal/buffer"
	"github.com/dbbouncer/pglink/internal/protocol"
)

// fakeServer accepts one TCP connection per Accept call and drives the
// minimal v3 handshake (trust auth, no TLS) plus whatever script the caller
// runs against each accepted connection, mirroring the teacher's
// net.Pipe-based protocol tests but over a real TCP loopback listener so
// dialConn's full transport.Dial path is exercised.
type fakeServer struct {
	ln   net.Listener
	addr string
	port int
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	fs := &fakeServer{ln: ln, addr: addr.IP.String(), port: addr.Port}
	t.Cleanup(func() { ln.Close() })
	return fs
}

func (fs *fakeServer) config() Config {
	cfg := DefaultConfig()
	cfg.User = "u"
	cfg.Database = "d"
	cfg.Host = fs.addr
	cfg.Port = fs.port
	cfg.TLS.Enabled = false
	return cfg
}

// acceptAndHandshake accepts the next connection, consumes its
// StartupMessage, and replies with trust AuthOK + ReadyForQuery, handing the
// raw net.Conn to fn for the rest of the session script.
func (fs *fakeServer) acceptAndHandshake(t *testing.T, fn func(conn net.Conn)) {
	t.Helper()
	go func() {
		conn, err := fs.ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		// StartupMessage has no leading type byte; read its raw length-prefixed body.
		if _, err := readUntaggedFrame(conn); err != nil {
			return
		}

		authBody := buffer.NewWriter(4)
		authBody.Int32(protocol.AuthOK)
		protocol.WriteFrame(conn, protocol.Authentication, authBody.Bytes())
		protocol.WriteFrame(conn, protocol.ReadyForQuery, []byte{protocol.TxIdle})

		fn(conn)
	}()
}

func readUntaggedFrame(conn net.Conn) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := readFull(conn, lenBuf); err != nil {
		return nil, err
	}
	length := int(lenBuf[0])<<24 | int(lenBuf[1])<<16 | int(lenBuf[2])<<8 | int(lenBuf[3])
	body := make([]byte, length-4)
	if _, err := readFull(conn, body); err != nil {
		return nil, err
	}
	return body, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// writeSimpleQueryOK writes one statement's RowDescription-free
// CommandComplete reply followed by ReadyForQuery, used for statements like
// BEGIN/COMMIT/SAVEPOINT that return no rows.
func writeSimpleQueryOK(conn net.Conn, tag string) {
	tw := buffer.NewWriter(len(tag) + 1)
	tw.CString(tag)
	protocol.WriteFrame(conn, protocol.CommandComplete, tw.Bytes())
	protocol.WriteFrame(conn, protocol.ReadyForQuery, []byte{protocol.TxIdle})
}

func writeSimpleQueryOKInTx(conn net.Conn, tag string) {
	tw := buffer.NewWriter(len(tag) + 1)
	tw.CString(tag)
	protocol.WriteFrame(conn, protocol.CommandComplete, tw.Bytes())
	protocol.WriteFrame(conn, protocol.ReadyForQuery, []byte{protocol.TxActive})
}

func writeErrorResponse(conn net.Conn, msg string) {
	eb := buffer.NewWriter(32)
	eb.Byte(byte(protocol.FieldSeverity))
	eb.CString("ERROR")
	eb.Byte(byte(protocol.FieldMessage))
	eb.CString(msg)
	eb.Byte(0)
	protocol.WriteFrame(conn, protocol.ErrorResponse, eb.Bytes())
	protocol.WriteFrame(conn, protocol.ReadyForQuery, []byte{protocol.TxFailed})
}

