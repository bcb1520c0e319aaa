package pgconn

import (
	"context"

	"github.com/dbbouncer/pglink/internal/buffer"
	"github.com/dbbouncer/pglink/internal/protocol"
)

// Param is one extended-query bind parameter: Text is its wire text form
// (per codec.EncodeArg), and Binary is set when the argument was raw bytes
// — per §4.6, binary format is used per-parameter only when that argument
// is raw bytes, all other parameters stay text.
type Param struct {
	Text    string
	IsNull  bool
	Binary  bool
	RawBody []byte // used verbatim when Binary is set
}

// SimpleQuery sends sql via the simple query protocol and reads frames
// until ReadyForQuery, accumulating one *Result per statement boundary
// (a CommandComplete followed by another T/C/D begins a new result for
// multi-statement text), per §4.6.
func (c *Conn) SimpleQuery(ctx context.Context, sql string) ([]*Result, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	w := buffer.NewWriter(len(sql) + 1)
	w.CString(sql)
	if err := protocol.WriteFrame(c.conn, protocol.Query, w.Bytes()); err != nil {
		c.poison()
		return nil, newErr(KindConnectionLost, "writing simple query", err)
	}

	var results []*Result
	cur := &Result{}
	var pendingErr error

	for {
		frame, err := c.reader.ReadFrame()
		if err != nil {
			c.poison()
			return nil, newErr(KindConnectionLost, "reading simple query response", err)
		}
		switch frame.Kind {
		case protocol.RowDescription:
			fields, err := parseRowDescription(frame.Body)
			if err != nil {
				return nil, newErr(KindMalformedFrame, "bad RowDescription", err)
			}
			cur.Fields = fields
		case protocol.NoData:
			// no row descriptor for this statement
		case protocol.EmptyQueryResp:
			// "" query: no CommandComplete follows, results list stays as-is
		case protocol.DataRow:
			row, err := parseDataRow(frame.Body)
			if err != nil {
				return nil, newErr(KindMalformedFrame, "bad DataRow", err)
			}
			cur.Rows = append(cur.Rows, row)
		case protocol.CommandComplete:
			r := buffer.NewReader(frame.Body)
			tag, _ := r.CString()
			cur.CommandTag = tag
			results = append(results, cur)
			cur = &Result{}
		case protocol.NoticeResponse:
			n := Notice{Fields: protocol.ParseFields(frame.Body)}
			cur.Warnings = append(cur.Warnings, n)
			c.deliverNotice(frame.Body)
		case protocol.ParameterStatus:
			r := buffer.NewReader(frame.Body)
			name, _ := r.CString()
			value, _ := r.CString()
			c.mu.Lock()
			c.params[name] = value
			c.mu.Unlock()
		case protocol.ErrorResponse:
			pendingErr = &PostgresError{Fields: protocol.ParseFields(frame.Body)}
		case protocol.ReadyForQuery:
			r := buffer.NewReader(frame.Body)
			status, _ := r.Byte()
			c.txStatus = status
			if pendingErr != nil {
				return nil, pendingErr
			}
			return results, nil
		default:
			return nil, newErr(KindUnexpectedFrame, "unexpected frame in simple query", nil)
		}
	}
}

// ExtendedQuery drives Parse/Bind/Describe/Execute/Sync for one
// parameterized statement, per §4.6. No statement/portal naming, no OID
// type hints, no row limit, exactly the Open Question #? resolution in §9
// (no extra Sync beyond the one trailing the flow).
func (c *Conn) ExtendedQuery(ctx context.Context, sql string, params []Param) (*Result, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	if err := c.sendExtendedQuery(sql, params); err != nil {
		c.poison()
		return nil, newErr(KindConnectionLost, "writing extended query", err)
	}

	result := &Result{}
	var pendingErr error

	for {
		frame, err := c.reader.ReadFrame()
		if err != nil {
			c.poison()
			return nil, newErr(KindConnectionLost, "reading extended query response", err)
		}
		switch frame.Kind {
		case protocol.ParseComplete, protocol.BindComplete:
			// expected, no state to update
		case protocol.RowDescription:
			fields, err := parseRowDescription(frame.Body)
			if err != nil {
				return nil, newErr(KindMalformedFrame, "bad RowDescription", err)
			}
			result.Fields = fields
		case protocol.NoData:
		case protocol.EmptyQueryResp:
			// "" query: no CommandComplete follows
		case protocol.DataRow:
			row, err := parseDataRow(frame.Body)
			if err != nil {
				return nil, newErr(KindMalformedFrame, "bad DataRow", err)
			}
			result.Rows = append(result.Rows, row)
		case protocol.CommandComplete:
			r := buffer.NewReader(frame.Body)
			tag, _ := r.CString()
			result.CommandTag = tag
		case protocol.NoticeResponse:
			n := Notice{Fields: protocol.ParseFields(frame.Body)}
			result.Warnings = append(result.Warnings, n)
			c.deliverNotice(frame.Body)
		case protocol.ParameterStatus:
			r := buffer.NewReader(frame.Body)
			name, _ := r.CString()
			value, _ := r.CString()
			c.mu.Lock()
			c.params[name] = value
			c.mu.Unlock()
		case protocol.ErrorResponse:
			// Sync has already been sent, so the error is held and returned
			// once the trailing ReadyForQuery has resynchronized the stream.
			pendingErr = &PostgresError{Fields: protocol.ParseFields(frame.Body)}
		case protocol.ReadyForQuery:
			r := buffer.NewReader(frame.Body)
			status, _ := r.Byte()
			c.txStatus = status
			if pendingErr != nil {
				return nil, pendingErr
			}
			return result, nil
		default:
			return nil, newErr(KindUnexpectedFrame, "unexpected frame in extended query", nil)
		}
	}
}

func (c *Conn) sendExtendedQuery(sql string, params []Param) error {
	w := buffer.NewWriter(256)

	w.Frame(protocol.Parse, func(w *buffer.Writer) {
		w.CString("")
		w.CString(sql)
		w.Int16(0) // no parameter OID hints
	})

	w.Frame(protocol.Bind, func(w *buffer.Writer) {
		w.CString("")
		w.CString("")
		anyBinary := false
		for _, p := range params {
			if p.Binary {
				anyBinary = true
				break
			}
		}
		if !anyBinary {
			w.Int16(0) // zero format codes means "all text"
		} else {
			w.Int16(int16(len(params)))
			for _, p := range params {
				if p.Binary {
					w.Int16(1)
				} else {
					w.Int16(0)
				}
			}
		}
		w.Int16(int16(len(params)))
		for _, p := range params {
			if p.IsNull {
				w.Int32(-1)
				continue
			}
			if p.Binary {
				w.Int32(int32(len(p.RawBody)))
				w.RawBytes(p.RawBody)
			} else {
				w.Int32(int32(len(p.Text)))
				w.RawBytes([]byte(p.Text))
			}
		}
		w.Int16(0) // result format codes: all text
	})

	w.Frame(protocol.Describe, func(w *buffer.Writer) {
		w.Byte('P')
		w.CString("")
	})

	w.Frame(protocol.Execute, func(w *buffer.Writer) {
		w.CString("")
		w.Int32(0) // no row limit
	})

	w.Frame(protocol.Sync, func(w *buffer.Writer) {})

	_, err := c.conn.Write(w.Bytes())
	return err
}
