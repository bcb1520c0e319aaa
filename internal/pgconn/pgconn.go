// Package pgconn implements the PostgreSQL connection state machine:
// startup, simple query, extended query, and termination, built on
// internal/transport, internal/protocol and internal/auth. Grounded on the
// teacher's internal/pool.TenantPool.dial+authenticatePG state machine,
// generalized from "dial once into a fixed tenant backend" to "drive one
// connection's full query lifecycle".
package pgconn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dbbouncer/pglink/internal/auth"
	"github.com/dbbouncer/pglink/internal/buffer"
	"github.com/dbbouncer/pglink/internal/protocol"
	"github.com/dbbouncer/pglink/internal/transport"
)

// Kind discriminates the ProtocolError/ConnectionError taxonomy from §7.
type Kind int

const (
	KindUnexpectedFrame Kind = iota
	KindMalformedFrame
	KindConnectionLost
	KindConnectionRefused
	KindBadTLSAvailability
	KindTLSCertificateInvalid
)

// Error is the ConnectionError/ProtocolError taxonomy entry from §7.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pgconn: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("pgconn: %s", e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(k Kind, msg string, err error) *Error {
	return &Error{Kind: k, Msg: msg, Err: err}
}

// PostgresError is a structured error delivered in a backend 'E' frame.
type PostgresError struct {
	Fields map[protocol.NoticeField]string
	Query  string // attached only when debug.query_in_error is set by the caller
}

func (e *PostgresError) Error() string {
	return fmt.Sprintf("pgconn: postgres error: %s: %s", e.Fields[protocol.FieldSeverity], e.Fields[protocol.FieldMessage])
}

// Notice is a NoticeResponse delivered outside of error handling.
type Notice struct {
	Fields map[protocol.NoticeField]string
}

// ReconnectPolicy holds reconnect attempt and interval settings in Options.
// Conn does not read it and never reconnects: a disconnect detected
// mid-query closes the Conn and the query fails with KindConnectionLost.
type ReconnectPolicy struct {
	Attempts int
	Interval func(attempt int) time.Duration
}

// DefaultReconnectPolicy is exponential with +500ms per attempt, per §4.6.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Attempts: 3,
		Interval: func(attempt int) time.Duration {
			return time.Duration(attempt+1) * 500 * time.Millisecond
		},
	}
}

// Options configures a new Conn's startup, transport and reconnect policy.
type Options struct {
	Transport transport.Options

	User            string
	Database        string
	ApplicationName string
	RuntimeOptions  string // the "options" startup parameter, already escaped
	ExtraParams     map[string]string

	Password string

	Reconnect ReconnectPolicy

	OnNotice func(Notice)
	Debug    bool
}

// Conn drives one connection's protocol state. The queue lock is a
// capacity-1 channel: acquiring is a channel send, releasing a receive,
// matching the teacher's single-owner acquire pattern but scoped to one
// in-flight query instead of one pool slot.
type Conn struct {
	opt Options

	mu        sync.Mutex
	conn      netConn
	reader    *protocol.Reader
	usedTLS   bool
	closed    bool
	pid       int32
	secretKey int32
	params    map[string]string
	txStatus  byte

	lock chan struct{}
}

// netConn is the minimal surface Conn needs from the dialed connection.
type netConn interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// Dial opens the transport, negotiates TLS, and runs Startup, returning a
// ready-to-query Conn.
func Dial(ctx context.Context, opt Options) (*Conn, error) {
	rawConn, usedTLS, err := transport.Dial(ctx, opt.Transport)
	if err != nil {
		return nil, classifyDialError(err)
	}
	c := &Conn{
		opt:     opt,
		conn:    rawConn,
		reader:  protocol.NewReader(rawConn),
		usedTLS: usedTLS,
		params:  make(map[string]string),
		lock:    make(chan struct{}, 1),
	}
	if err := c.startup(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return c, nil
}

func classifyDialError(err error) error {
	if err == transport.ErrBadTLSAvailability {
		return newErr(KindBadTLSAvailability, "TLS availability negotiation failed", err)
	}
	return newErr(KindConnectionRefused, "dial failed", err)
}

// acquire takes the single-slot queue lock; release gives it back. Every
// query/startup is bracketed acquire-then-release, per §4.6/§5.
func (c *Conn) acquire(ctx context.Context) error {
	select {
	case c.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) release() {
	<-c.lock
}

// WriteFrame implements auth.FrameReadWriter.
func (c *Conn) WriteFrame(kind byte, body []byte) error {
	return protocol.WriteFrame(c.conn, kind, body)
}

// ReadFrame implements auth.FrameReadWriter.
func (c *Conn) ReadFrame() (protocol.Frame, error) {
	return c.reader.ReadFrame()
}

// startup sends StartupMessage and drives the frame loop through
// ReadyForQuery, dispatching auth/backend-key/parameter/notice frames per
// §4.6 step 3.
func (c *Conn) startup(ctx context.Context) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	if err := c.sendStartupMessage(); err != nil {
		return newErr(KindConnectionLost, "writing StartupMessage", err)
	}

	for {
		frame, err := c.reader.ReadFrame()
		if err != nil {
			return newErr(KindConnectionLost, "reading during startup", err)
		}
		switch frame.Kind {
		case protocol.ErrorResponse:
			return &PostgresError{Fields: protocol.ParseFields(frame.Body)}
		case protocol.Authentication:
			if err := auth.Authenticate(c, c.opt.User, c.opt.Password, frame.Body); err != nil {
				return err
			}
		case protocol.BackendKeyData:
			r := buffer.NewReader(frame.Body)
			pid, _ := r.Int32()
			secret, _ := r.Int32()
			c.pid, c.secretKey = pid, secret
		case protocol.ParameterStatus:
			r := buffer.NewReader(frame.Body)
			name, _ := r.CString()
			value, _ := r.CString()
			c.params[name] = value
		case protocol.NoticeResponse:
			c.deliverNotice(frame.Body)
		case protocol.ReadyForQuery:
			r := buffer.NewReader(frame.Body)
			status, _ := r.Byte()
			c.txStatus = status
			return nil
		default:
			return newErr(KindUnexpectedFrame, fmt.Sprintf("unexpected frame %q during startup", frame.Kind), nil)
		}
	}
}

func (c *Conn) sendStartupMessage() error {
	w := buffer.NewWriter(128)
	w.UntaggedFrame(func(w *buffer.Writer) {
		w.Int32(protocol.ProtocolVersion3)
		w.CString("user")
		w.CString(c.opt.User)
		if c.opt.Database != "" {
			w.CString("database")
			w.CString(c.opt.Database)
		}
		if c.opt.ApplicationName != "" {
			w.CString("application_name")
			w.CString(c.opt.ApplicationName)
		}
		w.CString("client_encoding")
		w.CString("utf-8")
		if c.opt.RuntimeOptions != "" {
			w.CString("options")
			w.CString(c.opt.RuntimeOptions)
		}
		for k, v := range c.opt.ExtraParams {
			w.CString(k)
			w.CString(v)
		}
		w.Byte(0)
	})
	_, err := c.conn.Write(w.Bytes())
	return err
}

func (c *Conn) deliverNotice(body []byte) {
	if c.opt.OnNotice != nil {
		c.opt.OnNotice(Notice{Fields: protocol.ParseFields(body)})
	}
}

// PID returns the backend process ID captured during startup.
func (c *Conn) PID() int32 { return c.pid }

// Parameter returns a ParameterStatus value captured during startup or
// over the connection's lifetime, and whether it was ever reported.
func (c *Conn) Parameter(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.params[name]
	return v, ok
}

// TransactionStatus returns the most recent ReadyForQuery status byte
// ('I' idle, 'T' in transaction, 'E' failed transaction).
func (c *Conn) TransactionStatus() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txStatus
}

// UsedTLS reports whether the connection was upgraded to TLS.
func (c *Conn) UsedTLS() bool { return c.usedTLS }

// End sends Terminate and closes the transport; idempotent.
func (c *Conn) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	protocol.WriteFrame(c.conn, protocol.Terminate, nil)
	return c.conn.Close()
}

func (c *Conn) poison() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.conn.Close()
	}
}

// IsClosed reports whether End or a poisoning error has already closed
// the underlying transport.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
