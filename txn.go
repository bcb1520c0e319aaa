package pglink

import (
	"context"
	"fmt"

	"github.com/dbbouncer/pglink/internal/pgconn"
)

// TxState is the transaction controller's state machine from §4.8:
// NotStarted -> Active -> {Committed, RolledBack, Aborted}.
type TxState int

const (
	TxNotStarted TxState = iota
	TxActive
	TxCommitted
	TxRolledBack
	TxAborted
)

// TxOptions configures Begin, per §4.8.
type TxOptions struct {
	Isolation  string // e.g. "SERIALIZABLE"; empty means server default
	ReadOnly   bool
	SnapshotID string
}

// Tx is one connection's transaction controller. Only one Tx per
// connection may be Active; Begin on a connection already holding an
// Active transaction fails with TransactionBusy.
type Tx struct {
	conn       *Conn
	state      TxState
	name       string
	savepoints map[string]int // name -> instances, per §4.8
}

// Begin acquires the connection's transaction slot and emits BEGIN.
func (c *Conn) Begin(ctx context.Context, opts TxOptions) (*Tx, error) {
	if c.tx != nil && c.tx.state == TxActive {
		return nil, newTxError(TransactionBusy, c.tx.name)
	}

	stmt := "BEGIN"
	if opts.Isolation != "" {
		stmt += " ISOLATION LEVEL " + opts.Isolation
	}
	if opts.ReadOnly {
		stmt += " READ ONLY"
	}
	if _, err := c.raw.SimpleQuery(ctx, stmt); err != nil {
		return nil, translateConnErr(err)
	}
	if opts.SnapshotID != "" {
		if _, err := c.raw.SimpleQuery(ctx, fmt.Sprintf("SET TRANSACTION SNAPSHOT '%s'", opts.SnapshotID)); err != nil {
			return nil, translateConnErr(err)
		}
	}

	tx := &Tx{conn: c, state: TxActive, savepoints: make(map[string]int)}
	c.tx = tx
	return tx, nil
}

func (tx *Tx) requireActive() error {
	switch tx.state {
	case TxActive:
		return nil
	case TxAborted:
		return newTxError(TransactionAborted, tx.name)
	default:
		return newTxError(TransactionBusy, tx.name)
	}
}

func (tx *Tx) exec(ctx context.Context, stmt string) error {
	if err := tx.requireActive(); err != nil {
		return err
	}
	_, err := tx.conn.raw.SimpleQuery(ctx, stmt)
	if err != nil {
		if _, ok := err.(*pgconn.PostgresError); ok {
			tx.state = TxAborted
			tx.conn.tx = nil
		}
		return translateConnErr(err)
	}
	return nil
}

// Commit emits COMMIT, or COMMIT AND CHAIN when chain is true (which keeps
// the slot held and logically reopens a new transaction under this same
// controller, per §4.8).
func (tx *Tx) Commit(ctx context.Context, chain bool) error {
	stmt := "COMMIT"
	if chain {
		stmt = "COMMIT AND CHAIN"
	}
	if err := tx.exec(ctx, stmt); err != nil {
		return err
	}
	if chain {
		return nil
	}
	tx.state = TxCommitted
	tx.conn.tx = nil
	return nil
}

// Rollback emits ROLLBACK, ROLLBACK AND CHAIN, or ROLLBACK TO SAVEPOINT
// <name>. chain and savepoint are mutually exclusive, per §4.8. A rollback
// to a savepoint decrements that savepoint's instance count (never below
// zero).
func (tx *Tx) Rollback(ctx context.Context, chain bool, savepoint string) error {
	if chain && savepoint != "" {
		return newTxError(InvalidRollback, tx.name)
	}

	var stmt string
	switch {
	case savepoint != "":
		stmt = "ROLLBACK TO SAVEPOINT " + savepoint
	case chain:
		stmt = "ROLLBACK AND CHAIN"
	default:
		stmt = "ROLLBACK"
	}
	if err := tx.exec(ctx, stmt); err != nil {
		return err
	}
	if savepoint != "" {
		if tx.savepoints[savepoint] > 0 {
			tx.savepoints[savepoint]--
		}
		return nil
	}
	if chain {
		return nil
	}
	tx.state = TxRolledBack
	tx.conn.tx = nil
	return nil
}
