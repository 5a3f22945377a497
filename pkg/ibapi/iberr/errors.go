// Package iberr holds the error taxonomy shared by the gateway protocol packages.
//
// Callers match categories with errors.Is; details travel in FieldError or
// in wrapped fmt.Errorf messages.
package iberr

import (
	"errors"
	"fmt"
)

var (
	// ErrNeedMoreData is codec control flow: the buffer holds an incomplete frame.
	ErrNeedMoreData = errors.New("ibapi: need more data")

	// ErrMalformedFrame means the length header or delimiter layout is corrupt.
	// Fatal for the connection.
	ErrMalformedFrame = errors.New("ibapi: malformed frame")

	// ErrInvalidField means a single field could not be encoded or decoded.
	ErrInvalidField = errors.New("ibapi: invalid field")

	// ErrTruncatedMessage means a message has fewer fields than its layout requires.
	ErrTruncatedMessage = errors.New("ibapi: truncated message")

	// ErrUnknownMessageType is reported for message codes the decoder does not know.
	ErrUnknownMessageType = errors.New("ibapi: unknown message type")

	// ErrEncoding means a command carries a value that cannot be put on the wire.
	ErrEncoding = errors.New("ibapi: encoding error")

	ErrConnectionLost   = errors.New("ibapi: connection lost")
	ErrConnectionClosed = errors.New("ibapi: connection closed")
	ErrTimeout          = errors.New("ibapi: request timeout")
	ErrHandshakeFailed  = errors.New("ibapi: handshake failed")
)

// FieldError describes a field level failure.
type FieldError struct {
	Kind  error  // ErrInvalidField, ErrTruncatedMessage or ErrEncoding
	Index int    // position in the field list, -1 if unknown
	Name  string // logical field name, may be empty
	Value string
	Err   error // underlying parse error, may be nil
}

func (e *FieldError) Error() string {
	msg := e.Kind.Error()
	if e.Name != "" {
		msg += fmt.Sprintf(" %s", e.Name)
	}
	if e.Index >= 0 {
		msg += fmt.Sprintf(" at #%d", e.Index)
	}
	if e.Value != "" {
		msg += fmt.Sprintf(" (%q)", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the category sentinel.
func (e *FieldError) Is(target error) bool { return target == e.Kind }

func (e *FieldError) Unwrap() error { return e.Err }

// Invalid builds an ErrInvalidField error.
func Invalid(index int, name, value string, err error) error {
	return &FieldError{Kind: ErrInvalidField, Index: index, Name: name, Value: value, Err: err}
}

// Truncated builds an ErrTruncatedMessage error.
func Truncated(index int, name string) error {
	return &FieldError{Kind: ErrTruncatedMessage, Index: index, Name: name}
}

// Encoding wraps a domain validation failure as ErrEncoding.
func Encoding(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrEncoding, fmt.Sprintf(format, args...))
}

// IsFatal reports whether err must tear down the connection.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMalformedFrame) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrConnectionClosed)
}
