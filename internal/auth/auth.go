// Package auth implements the PostgreSQL authentication sub-protocols:
// cleartext, MD5, and SCRAM-SHA-256 (RFC 5802 / 7677). Grounded on the
// teacher's internal/pool.authenticatePG auth dispatch and
// internal/pool/scram.go SCRAM exchange.
package auth

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/dbbouncer/pglink/internal/buffer"
	"github.com/dbbouncer/pglink/internal/protocol"
)

// Kind identifies which failure mode an AuthError represents.
type Kind int

const (
	UnsupportedMechanism Kind = iota
	BadServerNonce
	BadSalt
	BadIterationCount
	BadVerifier
	Rejected
	UnsafeChars
	Protocol
)

func (k Kind) String() string {
	switch k {
	case UnsupportedMechanism:
		return "UnsupportedMechanism"
	case BadServerNonce:
		return "BadServerNonce"
	case BadSalt:
		return "BadSalt"
	case BadIterationCount:
		return "BadIterationCount"
	case BadVerifier:
		return "BadVerifier"
	case Rejected:
		return "Rejected"
	case UnsafeChars:
		return "UnsafeChars"
	case Protocol:
		return "Protocol"
	default:
		return "Unknown"
	}
}

// Error is the AuthError{kind} taxonomy entry from §7.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("auth: %s: %s", e.Kind, e.Msg) }

func newErr(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// FrameReadWriter is the minimal surface Authenticate needs from a
// connection: send a frame, read the next one.
type FrameReadWriter interface {
	WriteFrame(kind byte, body []byte) error
	ReadFrame() (protocol.Frame, error)
}

// Authenticate dispatches on the AuthenticationRequest sub-code carried in
// authBody (the payload of the first 'R' frame, including its leading
// int32 code). It drives additional frame exchanges as needed and returns
// once AuthenticationOk would be the next frame (the caller still reads
// that frame itself, since Authenticate is only invoked once per code and
// SCRAM's final step already consumes the SASLFinal frame but not Ok).
func Authenticate(rw FrameReadWriter, user, password string, authBody []byte) error {
	r := buffer.NewReader(authBody)
	code, err := r.Int32()
	if err != nil {
		return newErr(Protocol, "truncated AuthenticationRequest")
	}

	switch code {
	case protocol.AuthOK:
		return nil
	case protocol.AuthCleartext:
		return sendPassword(rw, password)
	case protocol.AuthMD5:
		salt, err := r.Bytes(4)
		if err != nil {
			return newErr(Protocol, "truncated MD5 salt")
		}
		return sendPassword(rw, md5Password(user, password, salt))
	case protocol.AuthSASL:
		return scramSHA256(rw, user, password)
	case protocol.AuthGSS, protocol.AuthGSSContinue, protocol.AuthSCM, protocol.AuthSSPI:
		return newErr(UnsupportedMechanism, "auth code %d not supported", code)
	default:
		return newErr(UnsupportedMechanism, "unknown auth code %d", code)
	}
}

func sendPassword(rw FrameReadWriter, payload string) error {
	w := buffer.NewWriter(len(payload) + 1)
	w.CString(payload)
	return rw.WriteFrame(protocol.Password, w.Bytes())
}

// md5Password computes "md5" || hex(md5(hex(md5(password||username)) || salt)).
func md5Password(user, password string, salt []byte) string {
	h1 := md5.Sum([]byte(password + user))
	hex1 := hex.EncodeToString(h1[:])
	h2 := md5.Sum(append([]byte(hex1), salt...))
	return "md5" + hex.EncodeToString(h2[:])
}
