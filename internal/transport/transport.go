// Package transport opens the raw connection (TCP or Unix socket) and
// performs the protocol-level TLS upgrade handshake, grounded on the
// teacher's internal/pool.TenantPool.dial dialer construction.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dbbouncer/pglink/internal/protocol"
)

// ErrBadTLSAvailability is returned when the server's SSLRequest reply is
// neither 'S' nor 'N'.
var ErrBadTLSAvailability = errors.New("transport: unexpected SSLRequest reply")

// HostType selects how the address is interpreted.
type HostType int

const (
	TCP HostType = iota
	Socket
)

// Options controls how Dial opens and optionally upgrades the connection.
type Options struct {
	HostType    HostType
	Host        string // hostname for TCP, directory for Socket
	Port        int
	DialTimeout time.Duration

	TLSEnabled bool
	TLSEnforce bool
	TLSConfig  *tls.Config // caller-built (ServerName, RootCAs, …); may be nil
}

// Dial opens the raw connection and, if requested, negotiates TLS per the
// PostgreSQL protocol-level SSLRequest handshake (§4.2): an 8-byte probe is
// sent immediately after the TCP connection opens, and the single-byte
// reply selects whether to upgrade.
func Dial(ctx context.Context, opt Options) (conn net.Conn, usedTLS bool, err error) {
	conn, err = dialRaw(ctx, opt)
	if err != nil {
		return nil, false, err
	}

	if opt.HostType == Socket || !opt.TLSEnabled {
		return conn, false, nil
	}

	reply, err := sendSSLRequest(conn)
	if err != nil {
		conn.Close()
		return nil, false, err
	}

	switch reply {
	case 'N':
		return conn, false, nil
	case 'S':
		upgraded, err := upgradeTLS(conn, opt)
		if err == nil {
			return upgraded, true, nil
		}
		conn.Close()
		if opt.TLSEnforce {
			return nil, false, err
		}
		// Not enforced: fall back to a fresh unencrypted connection.
		conn, err = dialRaw(ctx, opt)
		if err != nil {
			return nil, false, err
		}
		return conn, false, nil
	default:
		conn.Close()
		return nil, false, ErrBadTLSAvailability
	}
}

func dialRaw(ctx context.Context, opt Options) (net.Conn, error) {
	dialer := net.Dialer{
		Timeout:   opt.DialTimeout,
		KeepAlive: 30 * time.Second,
	}
	switch opt.HostType {
	case Socket:
		path := SocketPath(opt.Host, opt.Port)
		return dialer.DialContext(ctx, "unix", path)
	default:
		addr := net.JoinHostPort(opt.Host, fmt.Sprintf("%d", opt.Port))
		return dialer.DialContext(ctx, "tcp", addr)
	}
}

// SocketPath builds the conventional PostgreSQL Unix socket path from a
// directory and port, e.g. "/tmp/.s.PGSQL.5432".
func SocketPath(dir string, port int) string {
	return fmt.Sprintf("%s/.s.PGSQL.%d", dir, port)
}

func sendSSLRequest(conn net.Conn) (byte, error) {
	req := make([]byte, 8)
	binary.BigEndian.PutUint32(req[0:4], 8)
	binary.BigEndian.PutUint32(req[4:8], uint32(protocol.SSLRequestCode))
	if _, err := conn.Write(req); err != nil {
		return 0, fmt.Errorf("transport: sending SSLRequest: %w", err)
	}
	reply, err := protocol.ReadSSLReply(conn)
	if err != nil {
		return 0, fmt.Errorf("transport: reading SSLRequest reply: %w", err)
	}
	return reply, nil
}

func upgradeTLS(conn net.Conn, opt Options) (net.Conn, error) {
	cfg := opt.TLSConfig
	if cfg == nil {
		cfg = &tls.Config{}
	}
	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return nil, fmt.Errorf("transport: TLS handshake: %w", err)
	}
	return tlsConn, nil
}

// NewCertPool builds an x509.CertPool from a list of PEM-encoded CA
// certificate strings, per the tls.ca_certificates config option.
func NewCertPool(pemCerts []string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	for i, pem := range pemCerts {
		if ok := pool.AppendCertsFromPEM([]byte(pem)); !ok {
			return nil, fmt.Errorf("transport: failed to parse CA certificate at index %d", i)
		}
	}
	return pool, nil
}
