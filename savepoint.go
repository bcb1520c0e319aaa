package pglink

import (
	"context"
	"regexp"
)

// Savepoint is a named savepoint within an Active transaction, with an
// instance counter per §4.8: each Update (re-declaration, typically after
// a partial rollback) increments it, each Release and each Tx.Rollback to
// it decrements it, and releasing with zero instances fails with
// NoSavepointInstance.
type Savepoint struct {
	tx   *Tx
	name string
}

var savepointNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

func validateSavepointName(name string) error {
	if !savepointNamePattern.MatchString(name) {
		return newTxError(InvalidSavepointName, name)
	}
	return nil
}

// Savepoint declares a savepoint, emitting SAVEPOINT <name> and setting its
// instance count to 1 on every call, including repeat calls for one name.
func (tx *Tx) Savepoint(ctx context.Context, name string) (*Savepoint, error) {
	if err := validateSavepointName(name); err != nil {
		return nil, err
	}
	if err := tx.exec(ctx, "SAVEPOINT "+name); err != nil {
		return nil, err
	}
	tx.savepoints[name] = 1
	return &Savepoint{tx: tx, name: name}, nil
}

// Update re-declares the savepoint (typically after a partial rollback to
// it), emitting SAVEPOINT <name> again and incrementing its instance count.
func (sp *Savepoint) Update(ctx context.Context) error {
	if err := sp.tx.exec(ctx, "SAVEPOINT "+sp.name); err != nil {
		return err
	}
	sp.tx.savepoints[sp.name]++
	return nil
}

// Release emits RELEASE SAVEPOINT <name> and decrements the instance
// count. Releasing a savepoint with zero instances fails with
// NoSavepointInstance.
func (sp *Savepoint) Release(ctx context.Context) error {
	if sp.tx.savepoints[sp.name] <= 0 {
		return newTxError(NoSavepointInstance, sp.name)
	}
	if err := sp.tx.exec(ctx, "RELEASE SAVEPOINT "+sp.name); err != nil {
		return err
	}
	sp.tx.savepoints[sp.name]--
	return nil
}
