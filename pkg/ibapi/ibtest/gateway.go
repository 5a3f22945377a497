// Package ibtest runs an in-process fake gateway for client tests.
//
// The gateway speaks the real framing: it accepts the "API\0" greeting,
// answers the version range with a configurable server hello and then
// hands every inbound frame to per-code handlers. Tests drive the
// session by hand with Send and inspect what the client wrote via
// Received.
package ibtest

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/command"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/message"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/wire"
)

// DefaultAccount is announced after StartAPI.
const DefaultAccount = "DU12345"

// Handler reacts to one inbound frame. fields[0] is the message code.
type Handler func(s *Session, fields []string)

// Option configures a Gateway.
type Option func(*Gateway)

// WithServerVersion sets the version announced in the server hello.
func WithServerVersion(v int) Option { return func(g *Gateway) { g.version = v } }

// WithRawHello replaces the framed server hello with arbitrary bytes.
func WithRawHello(b []byte) Option { return func(g *Gateway) { g.rawHello = b } }

// WithHandler installs h for inbound frames with the given code.
func WithHandler(code int, h Handler) Option {
	return func(g *Gateway) { g.handlers[code] = h }
}

// WithoutStartAPIReply disables the NextValidID and ManagedAccounts
// messages normally sent after StartAPI.
func WithoutStartAPIReply() Option {
	return func(g *Gateway) { delete(g.handlers, command.CodeStartAPI) }
}

// Gateway listens on a loopback port.
type Gateway struct {
	t        testing.TB
	ln       net.Listener
	version  int
	connTime string
	rawHello []byte
	handlers map[int]Handler

	sessions chan *Session

	mu     sync.Mutex
	open   []*Session
	closed bool
	wg     sync.WaitGroup
}

// New starts a gateway and registers its shutdown with t.Cleanup.
func New(t testing.TB, opts ...Option) *Gateway {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ibtest: listen: %v", err)
	}
	g := &Gateway{
		t:        t,
		ln:       ln,
		version:  wire.MaxClientVersion,
		connTime: "20240102 10:00:00 UTC",
		handlers: map[int]Handler{command.CodeStartAPI: startAPI},
		sessions: make(chan *Session, 8),
	}
	for _, o := range opts {
		o(g)
	}
	g.wg.Add(1)
	go g.acceptLoop()
	t.Cleanup(g.Close)
	return g
}

// Addr is the host:port clients dial.
func (g *Gateway) Addr() string { return g.ln.Addr().String() }

// Session waits for the next connection that completed the greeting.
func (g *Gateway) Session(timeout time.Duration) *Session {
	g.t.Helper()
	select {
	case s := <-g.sessions:
		return s
	case <-time.After(timeout):
		g.t.Fatalf("ibtest: no session within %s", timeout)
		return nil
	}
}

// Close stops accepting and drops every open session.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	open := g.open
	g.mu.Unlock()

	_ = g.ln.Close()
	for _, s := range open {
		s.Close()
	}
	g.wg.Wait()
}

func (g *Gateway) acceptLoop() {
	defer g.wg.Done()
	for {
		nc, err := g.ln.Accept()
		if err != nil {
			return
		}
		s := &Session{
			gw:       g,
			nc:       nc,
			Received: make(chan []string, 256),
			done:     make(chan struct{}),
		}
		g.mu.Lock()
		if g.closed {
			g.mu.Unlock()
			_ = nc.Close()
			return
		}
		g.open = append(g.open, s)
		g.mu.Unlock()

		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			s.serve()
		}()
	}
}

// Session is one accepted client connection.
type Session struct {
	gw *Gateway
	nc net.Conn

	// Hello is the version token the client sent, e.g. "v100..176".
	Hello string
	// Received carries every inbound frame as fields, code first.
	Received chan []string

	wmu       sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Session) serve() {
	defer s.Close()
	br := bufio.NewReader(s.nc)

	prefix := make([]byte, len(wire.APIPrefix))
	if _, err := io.ReadFull(br, prefix); err != nil || string(prefix) != wire.APIPrefix {
		return
	}
	payload, err := readFrame(br)
	if err != nil {
		return
	}
	s.Hello = string(payload)

	if s.gw.rawHello != nil {
		if err := s.SendRaw(s.gw.rawHello); err != nil {
			return
		}
	} else {
		hello, _ := wire.EncodeFields([]string{strconv.Itoa(s.gw.version), s.gw.connTime})
		if err := s.SendRaw(hello); err != nil {
			return
		}
	}

	select {
	case s.gw.sessions <- s:
	default:
	}

	for {
		payload, err := readFrame(br)
		if err != nil {
			return
		}
		fields := wire.Fields(payload)
		select {
		case s.Received <- fields:
		case <-s.done:
			return
		}
		code, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		if h, ok := s.gw.handlers[code]; ok {
			h(s, fields)
		}
	}
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [wire.HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 || n > wire.MaxFrameSize {
		return nil, fmt.Errorf("ibtest: frame length %d", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Send writes one framed message.
func (s *Session) Send(code int, fields ...string) error {
	frame, err := wire.Encode(code, fields...)
	if err != nil {
		return err
	}
	return s.SendRaw(frame)
}

// SendRaw writes bytes as they are. After Close it returns net.ErrClosed.
func (s *Session) SendRaw(b []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	select {
	case <-s.done:
		return net.ErrClosed
	default:
	}
	_, err := s.nc.Write(b)
	return err
}

// Expect waits for the next inbound frame with the given code, skipping
// others. It fails the test on timeout.
func (s *Session) Expect(code int, timeout time.Duration) []string {
	s.gw.t.Helper()
	want := strconv.Itoa(code)
	deadline := time.After(timeout)
	for {
		select {
		case f := <-s.Received:
			if f[0] == want {
				return f
			}
		case <-deadline:
			s.gw.t.Fatalf("ibtest: no frame with code %d within %s", code, timeout)
			return nil
		}
	}
}

// Close drops the connection.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.nc.Close()
	})
}

func startAPI(s *Session, _ []string) {
	_ = s.Send(message.CodeNextValidID, "1", "1")
	_ = s.Send(message.CodeManagedAccts, "1", DefaultAccount)
}
