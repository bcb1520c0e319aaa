package pglink

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/dbbouncer/pglink/internal/codec"
	"github.com/dbbouncer/pglink/internal/pgconn"
	"github.com/dbbouncer/pglink/internal/transport"
)

// Conn is one established connection's public surface: query execution and
// transaction creation. It wraps internal/pgconn.Conn (the state machine)
// with the codec registry and query-layer materialization from C7.
type Conn struct {
	raw      *pgconn.Conn
	registry *codec.Registry
	tx       *Tx // the single Active transaction slot, per §4.8
	metrics  *Collector
}

func dialConn(ctx context.Context, cfg Config) (*Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hostType := transport.TCP
	if cfg.HostType == HostSocket {
		hostType = transport.Socket
	}

	var tlsConfig *tls.Config
	if cfg.TLS.Enabled {
		tlsConfig = &tls.Config{ServerName: cfg.Host}
		switch {
		case cfg.TLS.CAWatcher != nil:
			tlsConfig.RootCAs = cfg.TLS.CAWatcher.Pool()
		case len(cfg.TLS.CACertificates) > 0:
			pool, err := transport.NewCertPool(cfg.TLS.CACertificates)
			if err != nil {
				return nil, &ConnectionError{Msg: "building CA pool", Err: err}
			}
			tlsConfig.RootCAs = pool
		}
	}

	raw, err := pgconn.Dial(ctx, pgconn.Options{
		Transport: transport.Options{
			HostType:    hostType,
			Host:        cfg.Host,
			Port:        cfg.Port,
			DialTimeout: 10 * time.Second,
			TLSEnabled:  cfg.TLS.Enabled,
			TLSEnforce:  cfg.TLS.Enforce,
			TLSConfig:   tlsConfig,
		},
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		ApplicationName: cfg.ApplicationName,
		ExtraParams:     cfg.Options,
		Reconnect: pgconn.ReconnectPolicy{
			Attempts: cfg.Connection.Attempts,
			Interval: cfg.Connection.Interval,
		},
		Debug: cfg.Controls.Debug[DebugQueries] || cfg.Controls.Debug[DebugNotices],
	})
	if err != nil {
		return nil, &ConnectionError{Msg: "connecting", Err: err}
	}

	strategy := codec.StrategyAuto
	if cfg.Controls.DecodeStrategy == DecodeString {
		strategy = codec.StrategyString
	}
	registry := codec.NewDefaultRegistry()
	registry.SetStrategy(strategy)

	return &Conn{raw: raw, registry: registry}, nil
}

// QueryArray executes q and materializes its rows positionally.
func (c *Conn) QueryArray(ctx context.Context, q *Query) (*ArrayResult, error) {
	res, err := c.execute(ctx, q)
	if err != nil {
		return nil, err
	}
	return materializeArray(c.registry, res)
}

// QueryObject executes q and materializes its rows as field-name-keyed
// maps, per opts.
func (c *Conn) QueryObject(ctx context.Context, q *Query, opts ObjectOptions) (*ObjectResult, error) {
	res, err := c.execute(ctx, q)
	if err != nil {
		return nil, err
	}
	return materializeObject(c.registry, res, opts)
}

// execute runs q via the simple query protocol when it has no arguments
// (so multi-statement text and un-parameterized DDL keep working) and the
// extended query protocol otherwise, per §4.6. Any *pgconn.PostgresError
// returned while c.tx is Active forces it to Aborted and releases the
// connection's transaction slot, per §4.8/§4.6. This is the only path by
// which an ordinary Client/Conn query run during an open transaction can
// abort it; tx.exec applies the same rule for BEGIN/COMMIT/ROLLBACK/
// SAVEPOINT traffic.
func (c *Conn) execute(ctx context.Context, q *Query) (*pgconn.Result, error) {
	start := time.Now()
	defer func() { c.metrics.ObserveQueryDuration(time.Since(start)) }()

	if len(q.Args) == 0 {
		results, err := c.raw.SimpleQuery(ctx, q.Text)
		if err != nil {
			c.abortTxOnPostgresError(err)
			return nil, translateConnErr(err)
		}
		if len(results) == 0 {
			return &pgconn.Result{}, nil
		}
		return results[len(results)-1], nil
	}

	params, err := encodeParams(q.Args)
	if err != nil {
		return nil, err
	}
	pgParams := make([]pgconn.Param, len(params))
	for i, p := range params {
		pgParams[i] = pgconn.Param{Text: p.text, IsNull: p.isNull, Binary: p.binary, RawBody: p.raw}
	}
	res, err := c.raw.ExtendedQuery(ctx, q.Text, pgParams)
	if err != nil {
		c.abortTxOnPostgresError(err)
		return nil, translateConnErr(err)
	}
	return res, nil
}

// abortTxOnPostgresError forces c.tx to Aborted and frees the connection's
// transaction slot when err is a backend ErrorResponse received while that
// transaction is Active.
func (c *Conn) abortTxOnPostgresError(err error) {
	if c.tx == nil || c.tx.state != TxActive {
		return
	}
	if _, ok := err.(*pgconn.PostgresError); ok {
		c.tx.state = TxAborted
		c.tx = nil
	}
}

func translateConnErr(err error) error {
	if ce, ok := err.(*pgconn.Error); ok && ce.Kind == pgconn.KindConnectionLost {
		return ErrConnectionLost
	}
	return err
}

// End sends Terminate and closes the transport; idempotent.
func (c *Conn) End() error {
	return c.raw.End()
}
