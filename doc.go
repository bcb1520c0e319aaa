// Package pglink implements a PostgreSQL v3 frontend/backend wire-protocol
// client: connection startup and authentication (cleartext, MD5,
// SCRAM-SHA-256), simple and extended query execution, typed result
// materialization, transactions with savepoints, and a connection pool.
package pglink
