// Package wire implements the gateway frame format.
//
// A frame is a 4-byte big-endian payload length followed by the payload.
// The payload is a sequence of text fields, each terminated by a NUL byte.
// Field 0 is always the message code.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/iberr"
)

const (
	// Delimiter terminates every field.
	Delimiter byte = 0

	// HeaderSize is the length prefix size in bytes.
	HeaderSize = 4

	// MaxFrameSize bounds the declared payload length.
	MaxFrameSize = 16 << 20
)

// Encode builds a complete frame: header, message code and fields.
func Encode(code int, fields ...string) ([]byte, error) {
	all := make([]string, 0, len(fields)+1)
	all = append(all, strconv.Itoa(code))
	all = append(all, fields...)
	return EncodeFields(all)
}

// EncodeFields frames an already ordered field list.
func EncodeFields(fields []string) ([]byte, error) {
	size := 0
	for i, f := range fields {
		if idx := strings.IndexByte(f, Delimiter); idx >= 0 {
			return nil, iberr.Invalid(i, "", f, fmt.Errorf("delimiter at byte %d", idx))
		}
		size += len(f) + 1
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", iberr.ErrEncoding, size, MaxFrameSize)
	}

	buf := make([]byte, HeaderSize, HeaderSize+size)
	binary.BigEndian.PutUint32(buf, uint32(size))
	for _, f := range fields {
		buf = append(buf, f...)
		buf = append(buf, Delimiter)
	}
	return buf, nil
}

// Frame prefixes an arbitrary payload with its length header.
func Frame(payload []byte) []byte {
	buf := make([]byte, HeaderSize, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	return append(buf, payload...)
}

// DecodeNext splits the first frame off buf.
//
// It returns iberr.ErrNeedMoreData while the frame is incomplete; the caller
// keeps buf and retries once more bytes arrive. iberr.ErrMalformedFrame is
// returned for a zero or oversized length or a payload that does not end with
// the delimiter. payload aliases buf.
func DecodeNext(buf []byte) (payload, rest []byte, err error) {
	if len(buf) < HeaderSize {
		return nil, buf, iberr.ErrNeedMoreData
	}
	n := binary.BigEndian.Uint32(buf[:HeaderSize])
	if n == 0 || n > MaxFrameSize {
		return nil, buf, fmt.Errorf("%w: declared length %d", iberr.ErrMalformedFrame, n)
	}
	end := HeaderSize + int(n)
	if len(buf) < end {
		return nil, buf, iberr.ErrNeedMoreData
	}
	payload = buf[HeaderSize:end]
	if payload[len(payload)-1] != Delimiter {
		return nil, buf, fmt.Errorf("%w: payload of %d bytes is not delimiter terminated", iberr.ErrMalformedFrame, n)
	}
	return payload, buf[end:], nil
}

// Fields splits a payload into its fields. The trailing delimiter does not
// produce an extra empty field.
func Fields(payload []byte) []string {
	if len(payload) == 0 {
		return nil
	}
	if payload[len(payload)-1] == Delimiter {
		payload = payload[:len(payload)-1]
	}
	parts := bytes.Split(payload, []byte{Delimiter})
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = string(p)
	}
	return out
}
