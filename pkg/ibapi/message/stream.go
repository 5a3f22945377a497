package message

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/iberr"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/wire"
)

const readChunk = 32 << 10

// DecodeError reports a single frame that could not be decoded.
// The stream stays usable after it.
type DecodeError struct {
	Code    int // -1 when the code itself was unreadable
	Payload []byte
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode message %d: %v", e.Code, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Stream turns a byte stream into a lazy sequence of events.
// It is not safe for concurrent use and cannot be restarted.
type Stream struct {
	r             io.Reader
	buf           []byte
	chunk         []byte
	serverVersion int
	err           error
}

func NewStream(r io.Reader, serverVersion int) *Stream {
	return &Stream{r: r, chunk: make([]byte, readChunk), serverVersion: serverVersion}
}

// Next returns the next event. A *DecodeError affects only the frame it
// describes; the Unknown event for an unrecognised code is returned
// alongside its DecodeError. Any other error is terminal and returned
// again by every later call: io.EOF, read failures and iberr.ErrMalformedFrame.
func (s *Stream) Next() (Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	for {
		payload, rest, err := wire.DecodeNext(s.buf)
		switch {
		case err == nil:
			s.buf = rest
			return s.decode(payload)
		case errors.Is(err, iberr.ErrNeedMoreData):
			if rerr := s.fill(); rerr != nil {
				s.err = rerr
				return nil, rerr
			}
		default:
			s.err = err
			return nil, err
		}
	}
}

func (s *Stream) decode(payload []byte) (Event, error) {
	ev, err := Decode(payload, s.serverVersion)
	if err == nil {
		return ev, nil
	}
	code := -1
	if ev != nil {
		code = ev.Code()
	} else if f := wire.Fields(payload); len(f) > 0 {
		if n, cerr := strconv.Atoi(f[0]); cerr == nil {
			code = n
		}
	}
	return ev, &DecodeError{Code: code, Payload: payload, Err: err}
}

func (s *Stream) fill() error {
	n, err := s.r.Read(s.chunk)
	if n > 0 {
		s.buf = append(s.buf, s.chunk[:n]...)
		return nil
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) && len(s.buf) > 0 {
		return io.ErrUnexpectedEOF
	}
	return err
}
