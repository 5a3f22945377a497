// Package client owns a gateway socket: handshake, serialized writes,
// the read loop and the request/response command surface.
package client

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/command"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/iberr"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/message"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/registry"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/wire"
	"github.com/YaganovValera/ibkr-collector/pkg/logger"
	"github.com/YaganovValera/ibkr-collector/pkg/telemetry"
)

// Conn is one gateway session. All methods are safe for concurrent use.
type Conn struct {
	cfg    Config
	log    *logger.Logger
	tracer trace.Tracer
	// spanAttrs describe the session on every request span; set once
	// the handshake settled the server version.
	spanAttrs []attribute.KeyValue

	nc            net.Conn
	serverVersion int
	connTime      string

	wmu sync.Mutex

	smu   sync.Mutex
	state State

	reg    *registry.Registry[message.Event]
	events chan message.Event

	nextOrderID atomic.Int64
	accounts    atomic.Value // []string

	done    chan struct{}
	errMu   sync.Mutex
	err     error
	closeMu sync.Mutex
}

// Dial connects, performs the version handshake and sends StartAPI.
// The returned Conn is Ready.
func Dial(ctx context.Context, cfg Config, log *logger.Logger) (*Conn, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Conn{
		cfg:    cfg,
		log:    log.Named("ibapi-conn").With(zap.String("addr", cfg.Addr), zap.Int("client_id", cfg.ClientID)),
		tracer: otel.Tracer("ibapi/client"),
		reg: registry.New[message.Event](
			registry.WithStartID(cfg.StartRequestID),
			registry.WithDropHook(func(registry.Key) { registryDrops.Inc() }),
		),
		events: make(chan message.Event, cfg.EventBuffer),
		done:   make(chan struct{}),
	}
	c.accounts.Store([]string(nil))

	ctx, span := c.tracer.Start(ctx, "ibapi.Dial",
		trace.WithAttributes(telemetry.SessionAttrs(cfg.Addr, cfg.ClientID, 0)...))
	defer span.End()

	_ = c.transition(StateConnecting)
	dialCtx, cancel := c.bound(ctx, cfg.ConnectTimeout)
	defer cancel()

	var d net.Dialer
	nc, err := d.DialContext(dialCtx, "tcp", cfg.Addr)
	if err != nil {
		_ = c.transition(StateFailed)
		recordErr(span, err)
		return nil, fmt.Errorf("ibapi client: dial %s: %w", cfg.Addr, err)
	}
	c.nc = nc

	_ = c.transition(StateHandshaking)
	br := bufio.NewReaderSize(countingReader{nc}, 64<<10)
	if err := c.handshake(dialCtx, br); err != nil {
		_ = nc.Close()
		_ = c.transition(StateFailed)
		c.setErr(err)
		recordErr(span, err)
		return nil, err
	}
	c.spanAttrs = telemetry.SessionAttrs(cfg.Addr, cfg.ClientID, c.serverVersion)
	span.SetAttributes(telemetry.ServerVersionKey.Int(c.serverVersion))

	frame, err := command.Encode(command.StartAPI{
		ClientID:             cfg.ClientID,
		OptionalCapabilities: cfg.OptionalCapabilities,
	}, c.serverVersion)
	if err == nil {
		err = c.write(dialCtx, frame, "StartAPI", false)
	}
	if err != nil {
		_ = nc.Close()
		_ = c.transition(StateFailed)
		c.setErr(err)
		recordErr(span, err)
		return nil, err
	}

	go c.readLoop(message.NewStream(br, c.serverVersion))
	if err := c.transition(StateReady); err != nil {
		// the read loop failed the connection already
		return nil, c.Err()
	}

	c.log.Info("gateway session ready",
		zap.Int("server_version", c.serverVersion),
		zap.String("connection_time", c.connTime),
	)
	return c, nil
}

func (c *Conn) handshake(ctx context.Context, br *bufio.Reader) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.nc.SetDeadline(dl)
		defer c.nc.SetDeadline(time.Time{})
	}

	hello, err := wire.Hello(c.cfg.MinVersion, c.cfg.MaxVersion, c.cfg.helloOptions())
	if err != nil {
		return err
	}
	if _, err := c.nc.Write(hello); err != nil {
		return fmt.Errorf("%w: write hello: %w", iberr.ErrHandshakeFailed, err)
	}
	bytesOut.Add(float64(len(hello)))

	var hdr [wire.HeaderSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return fmt.Errorf("%w: read server hello: %w", iberr.ErrHandshakeFailed, err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 || n > wire.MaxFrameSize {
		return fmt.Errorf("%w: server hello length %d", iberr.ErrHandshakeFailed, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(br, payload); err != nil {
		return fmt.Errorf("%w: read server hello: %w", iberr.ErrHandshakeFailed, err)
	}

	sh, err := wire.ParseServerHello(payload)
	if err != nil {
		return err
	}
	if sh.Version < c.cfg.MinVersion || sh.Version > c.cfg.MaxVersion {
		return fmt.Errorf("%w: server version %d outside [%d,%d]",
			iberr.ErrHandshakeFailed, sh.Version, c.cfg.MinVersion, c.cfg.MaxVersion)
	}
	c.serverVersion = sh.Version
	c.connTime = sh.ConnectionTime
	return nil
}

/* --- accessors --- */

func (c *Conn) State() State {
	c.smu.Lock()
	defer c.smu.Unlock()
	return c.state
}

// Ready reports whether commands can be sent.
func (c *Conn) Ready() bool { return c.State() == StateReady }

// ServerVersion is the negotiated version every frame is encoded with.
func (c *Conn) ServerVersion() int { return c.serverVersion }

// ConnectionTime is the gateway's session timestamp from the handshake.
func (c *Conn) ConnectionTime() string { return c.connTime }

// Done is closed when the read loop exits.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended, nil while it is alive.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Events delivers events no caller waits for: unsolicited order status,
// account updates without a subscriber, notices, commission reports.
func (c *Conn) Events() <-chan message.Event { return c.events }

// Accounts is the last managed accounts list the gateway sent.
func (c *Conn) Accounts() []string {
	v, _ := c.accounts.Load().([]string)
	return v
}

// PendingRequests is the number of live waiters.
func (c *Conn) PendingRequests() int { return c.reg.Len() }

// DroppedEvents counts correlated events that arrived with no waiter.
func (c *Conn) DroppedEvents() int64 { return c.reg.Dropped() }

/* --- lifecycle --- */

func (c *Conn) transition(to State) error {
	c.smu.Lock()
	from := c.state
	if !canTransition(from, to) {
		c.smu.Unlock()
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
	}
	c.state = to
	c.smu.Unlock()

	stateTransitions.WithLabelValues(to.String()).Inc()
	c.log.Debug("state transition", zap.Stringer("from", from), zap.Stringer("to", to))
	return nil
}

func (c *Conn) setErr(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
}

// Close shuts the socket down. Every waiter receives iberr.ErrConnectionClosed.
func (c *Conn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if err := c.transition(StateClosing); err != nil {
		if c.State().Terminal() {
			return nil
		}
		return err
	}
	c.setErr(iberr.ErrConnectionClosed)
	c.reg.FailAll(iberr.ErrConnectionClosed)

	err := c.nc.Close()
	<-c.done
	_ = c.transition(StateClosed)
	c.log.Info("gateway session closed")
	return err
}

// fail moves to Failed and resolves every waiter with ErrConnectionLost.
func (c *Conn) fail(cause error) {
	if c.State() == StateClosing {
		return
	}
	if err := c.transition(StateFailed); err != nil {
		return
	}
	lost := fmt.Errorf("%w: %w", iberr.ErrConnectionLost, cause)
	c.setErr(lost)
	c.reg.FailAll(lost)
	_ = c.nc.Close()
	c.log.Error("gateway session failed", zap.Error(cause))
}

/* --- I/O --- */

// write puts one frame on the wire. Only one frame is in flight at a time.
func (c *Conn) write(ctx context.Context, frame []byte, name string, requireReady bool) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if requireReady {
		if st := c.State(); st != StateReady {
			return c.notReady(st)
		}
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.nc.SetWriteDeadline(dl)
	} else {
		_ = c.nc.SetWriteDeadline(time.Time{})
	}
	if _, err := c.nc.Write(frame); err != nil {
		if st := c.State(); st == StateClosing || st == StateClosed {
			return fmt.Errorf("%w: write %s: %w", iberr.ErrConnectionClosed, name, err)
		}
		c.fail(err)
		return fmt.Errorf("%w: write %s: %w", iberr.ErrConnectionLost, name, err)
	}
	framesOut.WithLabelValues(name).Inc()
	bytesOut.Add(float64(len(frame)))
	return nil
}

func (c *Conn) notReady(st State) error {
	switch st {
	case StateClosing, StateClosed:
		return iberr.ErrConnectionClosed
	case StateFailed:
		if err := c.Err(); err != nil {
			return err
		}
		return iberr.ErrConnectionLost
	}
	return fmt.Errorf("ibapi client: connection is %s", st)
}

// send encodes cmd before taking the write lock, so an encoding error
// never reaches the socket.
func (c *Conn) send(ctx context.Context, cmd command.Command) error {
	frame, err := command.Encode(cmd, c.serverVersion)
	if err != nil {
		return err
	}
	return c.write(ctx, frame, command.Name(cmd), true)
}

func (c *Conn) readLoop(s *message.Stream) {
	defer close(c.done)
	for {
		ev, err := s.Next()
		if err != nil {
			var de *message.DecodeError
			if errors.As(err, &de) {
				c.skip(de)
				continue
			}
			if st := c.State(); st == StateClosing || st == StateClosed {
				return
			}
			c.fail(err)
			return
		}
		framesIn.WithLabelValues(strconv.Itoa(ev.Code())).Inc()
		c.dispatch(ev)
	}
}

func (c *Conn) skip(de *message.DecodeError) {
	switch {
	case errors.Is(de, iberr.ErrUnknownMessageType):
		decodeErrors.WithLabelValues("unknown").Inc()
		unknownMessages.WithLabelValues(strconv.Itoa(de.Code)).Inc()
		c.log.Debug("skipping unknown message", zap.Int("code", de.Code))
	case errors.Is(de, iberr.ErrTruncatedMessage):
		decodeErrors.WithLabelValues("truncated").Inc()
		c.log.Warn("skipping truncated message", zap.Int("code", de.Code), zap.Error(de.Err))
	default:
		decodeErrors.WithLabelValues("invalid").Inc()
		c.log.Warn("skipping undecodable message", zap.Int("code", de.Code), zap.Error(de.Err))
	}
}

type countingReader struct{ r io.Reader }

func (cr countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		bytesIn.Add(float64(n))
	}
	return n, err
}
