package pglink

import "fmt"

// ConfigError reports an invalid or incomplete Config value.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("pglink: config error: %s: %s", e.Field, e.Msg) }

func newConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// ConnectionError reports a transport-level failure.
type ConnectionError struct {
	Msg string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pglink: connection error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("pglink: connection error: %s", e.Msg)
}
func (e *ConnectionError) Unwrap() error { return e.Err }

// ErrConnectionLost is returned for the in-flight query that was
// interrupted by a mid-query disconnect, per §4.6/§9: the query is not
// retried, even if reconnection for subsequent queries succeeds.
var ErrConnectionLost = &ConnectionError{Msg: "connection lost mid-query"}

// QueryErrorKind enumerates the QueryError taxonomy.
type QueryErrorKind int

const (
	DuplicateArgument QueryErrorKind = iota
	DuplicateField
	InvalidFieldName
	FieldCountMismatch
	ShapeMismatch
)

func (k QueryErrorKind) String() string {
	switch k {
	case DuplicateArgument:
		return "DuplicateArgument"
	case DuplicateField:
		return "DuplicateField"
	case InvalidFieldName:
		return "InvalidFieldName"
	case FieldCountMismatch:
		return "FieldCountMismatch"
	case ShapeMismatch:
		return "ShapeMismatch"
	default:
		return "Unknown"
	}
}

// QueryError reports a problem constructing a Query or materializing a
// Result, per §7.
type QueryError struct {
	Kind QueryErrorKind
	Msg  string
}

func (e *QueryError) Error() string { return fmt.Sprintf("pglink: query error: %s: %s", e.Kind, e.Msg) }

func newQueryError(k QueryErrorKind, format string, args ...any) *QueryError {
	return &QueryError{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// TransactionErrorKind enumerates the TransactionError taxonomy.
type TransactionErrorKind int

const (
	TransactionBusy TransactionErrorKind = iota
	TransactionAborted
	InvalidRollback
	NoSavepointInstance
	InvalidSavepointName
)

func (k TransactionErrorKind) String() string {
	switch k {
	case TransactionBusy:
		return "TransactionBusy"
	case TransactionAborted:
		return "TransactionAborted"
	case InvalidRollback:
		return "InvalidRollback"
	case NoSavepointInstance:
		return "NoSavepointInstance"
	case InvalidSavepointName:
		return "InvalidSavepointName"
	default:
		return "Unknown"
	}
}

// TransactionError reports a violation of the transaction/savepoint state
// machine, per §4.8/§7.
type TransactionError struct {
	Kind TransactionErrorKind
	Name string
}

func (e *TransactionError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("pglink: transaction error: %s(%s)", e.Kind, e.Name)
	}
	return fmt.Sprintf("pglink: transaction error: %s", e.Kind)
}

func newTxError(k TransactionErrorKind, name string) *TransactionError {
	return &TransactionError{Kind: k, Name: name}
}

// LifecycleErrorKind enumerates the LifecycleError taxonomy.
type LifecycleErrorKind int

const (
	NotConnected LifecycleErrorKind = iota
	Terminated
	PoolExhausted
)

func (k LifecycleErrorKind) String() string {
	switch k {
	case NotConnected:
		return "NotConnected"
	case Terminated:
		return "Terminated"
	case PoolExhausted:
		return "PoolExhausted"
	default:
		return "Unknown"
	}
}

// LifecycleError reports a Client/Pool operation attempted outside of its
// valid lifecycle window, per §4.9/§4.10/§7.
type LifecycleError struct {
	Kind LifecycleErrorKind
}

func (e *LifecycleError) Error() string { return fmt.Sprintf("pglink: lifecycle error: %s", e.Kind) }

func newLifecycleError(k LifecycleErrorKind) *LifecycleError { return &LifecycleError{Kind: k} }
