// Package protocol centralizes PostgreSQL v3 wire message-kind constants
// and the frame reader/writer used by every other internal package. The
// teacher inlines these as local byte consts next to each call site
// (internal/pool/pool.go, internal/proxy/postgres.go); a standalone
// driver centralizes them once so auth, pgconn and codec share one source
// of truth.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dbbouncer/pglink/internal/buffer"
)

// Frontend (client -> server) message kinds.
const (
	Password  byte = 'p' // also carries SASLInitialResponse/SASLResponse
	Query     byte = 'Q'
	Parse     byte = 'P'
	Bind      byte = 'B'
	Describe  byte = 'D'
	Execute   byte = 'E'
	Sync      byte = 'S'
	Terminate byte = 'X'
)

// Backend (server -> client) message kinds.
const (
	Authentication   byte = 'R'
	BackendKeyData   byte = 'K'
	ParameterStatus  byte = 'S'
	ReadyForQuery    byte = 'Z'
	RowDescription   byte = 'T'
	DataRow          byte = 'D'
	CommandComplete  byte = 'C'
	NoData           byte = 'n'
	NoticeResponse   byte = 'N'
	ErrorResponse    byte = 'E'
	ParseComplete    byte = '1'
	BindComplete     byte = '2'
	EmptyQueryResp   byte = 'I'
)

// Authentication request sub-codes carried in the first int32 of an 'R' body.
const (
	AuthOK                = 0
	AuthCleartext         = 3
	AuthMD5               = 5
	AuthSCM               = 6
	AuthGSS               = 7
	AuthGSSContinue       = 8
	AuthSSPI              = 9
	AuthSASL              = 10
	AuthSASLContinue      = 11
	AuthSASLFinal         = 12
)

// Transaction status bytes carried in ReadyForQuery.
const (
	TxIdle   byte = 'I'
	TxActive byte = 'T'
	TxFailed byte = 'E'
)

// SSLRequest is the fixed 8-byte probe: length=8, code=80877103.
const SSLRequestCode int32 = 80877103

// ProtocolVersion3 is "3.0" packed as (major<<16 | minor).
const ProtocolVersion3 int32 = 3 << 16

// Frame is one fully-drained backend message.
type Frame struct {
	Kind byte
	Body []byte
}

// Reader reads length-prefixed, type-tagged frames off the wire. Each call
// to ReadFrame fully drains the body into its own slice before returning,
// so no frame's body can outlive the next ReadFrame call.
type Reader struct {
	r       io.Reader
	hdr     [5]byte
	scratch []byte
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFrame reads one tagged frame: kind(1) + length(4, includes itself) + body.
func (fr *Reader) ReadFrame() (Frame, error) {
	if _, err := io.ReadFull(fr.r, fr.hdr[:]); err != nil {
		return Frame{}, err
	}
	kind := fr.hdr[0]
	length := int(binary.BigEndian.Uint32(fr.hdr[1:5]))
	if length < 4 {
		return Frame{}, fmt.Errorf("protocol: invalid frame length %d for kind %q", length, kind)
	}
	bodyLen := length - 4
	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(fr.r, body); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Kind: kind, Body: body}, nil
}

// ReadSSLReply reads the single-byte SSLRequest reply ('S' or 'N').
func ReadSSLReply(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteFrame writes a single tagged frame to w.
func WriteFrame(w io.Writer, kind byte, body []byte) error {
	bw := buffer.NewWriter(len(body) + 5)
	bw.Frame(kind, func(bw *buffer.Writer) {
		bw.RawBytes(body)
	})
	_, err := w.Write(bw.Bytes())
	return err
}

// WriteUntagged writes an untagged, length-prefixed-only frame (StartupMessage, SSLRequest).
func WriteUntagged(w io.Writer, body []byte) error {
	bw := buffer.NewWriter(len(body) + 4)
	bw.UntaggedFrame(func(bw *buffer.Writer) {
		bw.RawBytes(body)
	})
	_, err := w.Write(bw.Bytes())
	return err
}
