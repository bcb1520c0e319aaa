package pglink

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dbbouncer/pglink/internal/protocol"
)

func dialTestConn(t *testing.T, fs *fakeServer) *Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := dialConn(ctx, fs.config())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.End() })
	return c
}

func expectQuery(t *testing.T, conn net.Conn, want string) {
	t.Helper()
	frame, err := protocol.NewReader(conn).ReadFrame()
	if err != nil {
		t.Errorf("reading frame: %v", err)
		return
	}
	if frame.Kind != protocol.Query {
		t.Errorf("expected Query frame, got %q", frame.Kind)
		return
	}
	got := string(frame.Body[:len(frame.Body)-1]) // strip trailing NUL
	if got != want {
		t.Errorf("query text = %q, want %q", got, want)
	}
}

func TestBeginCommit(t *testing.T) {
	fs := newFakeServer(t)
	fs.acceptAndHandshake(t, func(conn net.Conn) {
		expectQuery(t, conn, "BEGIN")
		writeSimpleQueryOKInTx(conn, "BEGIN")
		expectQuery(t, conn, "COMMIT")
		writeSimpleQueryOK(conn, "COMMIT")
	})

	c := dialTestConn(t, fs)
	ctx := context.Background()
	tx, err := c.Begin(ctx, TxOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(ctx, false); err != nil {
		t.Fatal(err)
	}
	if tx.state != TxCommitted {
		t.Fatalf("got state %v", tx.state)
	}
	if c.tx != nil {
		t.Fatal("expected connection's tx slot to be cleared after commit")
	}
}

func TestBeginWithIsolationAndReadOnly(t *testing.T) {
	fs := newFakeServer(t)
	fs.acceptAndHandshake(t, func(conn net.Conn) {
		expectQuery(t, conn, "BEGIN ISOLATION LEVEL SERIALIZABLE READ ONLY")
		writeSimpleQueryOKInTx(conn, "BEGIN")
		expectQuery(t, conn, "ROLLBACK")
		writeSimpleQueryOK(conn, "ROLLBACK")
	})

	c := dialTestConn(t, fs)
	ctx := context.Background()
	tx, err := c.Begin(ctx, TxOptions{Isolation: "SERIALIZABLE", ReadOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(ctx, false, ""); err != nil {
		t.Fatal(err)
	}
	if tx.state != TxRolledBack {
		t.Fatalf("got state %v", tx.state)
	}
}

func TestBeginRejectsWhenAlreadyActive(t *testing.T) {
	fs := newFakeServer(t)
	fs.acceptAndHandshake(t, func(conn net.Conn) {
		expectQuery(t, conn, "BEGIN")
		writeSimpleQueryOKInTx(conn, "BEGIN")
	})

	c := dialTestConn(t, fs)
	ctx := context.Background()
	if _, err := c.Begin(ctx, TxOptions{}); err != nil {
		t.Fatal(err)
	}
	_, err := c.Begin(ctx, TxOptions{})
	if err == nil {
		t.Fatal("expected TransactionBusy error")
	}
	te, ok := err.(*TransactionError)
	if !ok || te.Kind != TransactionBusy {
		t.Fatalf("got %v", err)
	}
}

func TestTransactionAbortsOnPostgresError(t *testing.T) {
	fs := newFakeServer(t)
	fs.acceptAndHandshake(t, func(conn net.Conn) {
		expectQuery(t, conn, "BEGIN")
		writeSimpleQueryOKInTx(conn, "BEGIN")
		expectQuery(t, conn, "SELECT bad")
		writeErrorResponse(conn, "syntax error")
	})

	c := dialTestConn(t, fs)
	ctx := context.Background()
	tx, err := c.Begin(ctx, TxOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.exec(ctx, "SELECT bad"); err == nil {
		t.Fatal("expected error")
	}
	if tx.state != TxAborted {
		t.Fatalf("got state %v", tx.state)
	}
	if c.tx != nil {
		t.Fatal("expected connection's tx slot cleared on abort")
	}

	// Further use of the aborted transaction is rejected locally, with no
	// further wire traffic.
	if err := tx.exec(ctx, "SELECT 1"); err == nil {
		t.Fatal("expected TransactionAborted")
	} else if te, ok := err.(*TransactionError); !ok || te.Kind != TransactionAborted {
		t.Fatalf("got %v", err)
	}
}

func TestQueryArrayAbortsActiveTransaction(t *testing.T) {
	fs := newFakeServer(t)
	fs.acceptAndHandshake(t, func(conn net.Conn) {
		expectQuery(t, conn, "BEGIN")
		writeSimpleQueryOKInTx(conn, "BEGIN")
		expectQuery(t, conn, "SELECT bad")
		writeErrorResponse(conn, "syntax error")
	})

	c := dialTestConn(t, fs)
	ctx := context.Background()
	tx, err := c.Begin(ctx, TxOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.QueryArray(ctx, NewQuery("SELECT bad")); err == nil {
		t.Fatal("expected error")
	}

	if tx.state != TxAborted {
		t.Fatalf("got state %v", tx.state)
	}
	if c.tx != nil {
		t.Fatal("expected connection's tx slot cleared after ordinary query abort")
	}

	if err := tx.Commit(ctx, false); err == nil {
		t.Fatal("expected TransactionAborted on commit of already-aborted transaction")
	} else if te, ok := err.(*TransactionError); !ok || te.Kind != TransactionAborted {
		t.Fatalf("got %v", err)
	}
}

func TestCommitAndChainKeepsTransactionActive(t *testing.T) {
	fs := newFakeServer(t)
	fs.acceptAndHandshake(t, func(conn net.Conn) {
		expectQuery(t, conn, "BEGIN")
		writeSimpleQueryOKInTx(conn, "BEGIN")
		expectQuery(t, conn, "COMMIT AND CHAIN")
		writeSimpleQueryOKInTx(conn, "COMMIT")
	})

	c := dialTestConn(t, fs)
	ctx := context.Background()
	tx, err := c.Begin(ctx, TxOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(ctx, true); err != nil {
		t.Fatal(err)
	}
	if tx.state != TxActive {
		t.Fatalf("expected still Active after chained commit, got %v", tx.state)
	}
	if c.tx != tx {
		t.Fatal("expected connection's tx slot to remain held after chained commit")
	}
}

func TestRollbackRejectsChainAndSavepointTogether(t *testing.T) {
	tx := &Tx{state: TxActive, savepoints: make(map[string]int)}
	err := tx.Rollback(context.Background(), true, "sp1")
	if err == nil {
		t.Fatal("expected InvalidRollback error")
	}
	te, ok := err.(*TransactionError)
	if !ok || te.Kind != InvalidRollback {
		t.Fatalf("got %v", err)
	}
}
