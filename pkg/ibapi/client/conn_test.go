package client_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/client"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/command"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/domain"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/ibtest"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/iberr"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/message"
	"github.com/YaganovValera/ibkr-collector/pkg/logger"
)

const wait = 2 * time.Second

func dial(t *testing.T, gw *ibtest.Gateway, mutate ...func(*client.Config)) (*client.Conn, *ibtest.Session) {
	t.Helper()
	cfg := client.Config{Addr: gw.Addr(), ClientID: 3, RequestTimeout: wait}
	for _, m := range mutate {
		m(&cfg)
	}
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	c, err := client.Dial(ctx, cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, gw.Session(wait)
}

func aapl() domain.Contract {
	return domain.Contract{Symbol: "AAPL", SecType: domain.SecTypeStock, Exchange: "SMART", Currency: "USD"}
}

func TestDialHandshake(t *testing.T) {
	gw := ibtest.New(t)
	c, s := dial(t, gw)

	assert.Equal(t, client.StateReady, c.State())
	assert.Equal(t, 176, c.ServerVersion())
	assert.Equal(t, "v100..176", s.Hello)

	start := s.Expect(command.CodeStartAPI, wait)
	assert.Equal(t, []string{"71", "2", "3", ""}, start)

	require.Eventually(t, func() bool { return len(c.Accounts()) == 1 }, wait, 10*time.Millisecond)
	assert.Equal(t, []string{ibtest.DefaultAccount}, c.Accounts())

	id, err := c.NextOrderID()
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	id, err = c.NextOrderID()
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
}

func TestDialPacingOption(t *testing.T) {
	gw := ibtest.New(t)
	_, s := dial(t, gw, func(c *client.Config) { c.PacingAPI = true })
	assert.Equal(t, "v100..176 +PACEAPI", s.Hello)
}

func TestDialHandshakeFailures(t *testing.T) {
	tests := []struct {
		name string
		opt  ibtest.Option
	}{
		{"version below range", ibtest.WithServerVersion(99)},
		{"version above range", ibtest.WithServerVersion(200)},
		{"garbage version", ibtest.WithRawHello([]byte{0, 0, 0, 4, 'a', 'b', 'c', 0})},
		{"zero length hello", ibtest.WithRawHello([]byte{0, 0, 0, 0})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := ibtest.New(t, tt.opt)
			ctx, cancel := context.WithTimeout(context.Background(), wait)
			defer cancel()

			_, err := client.Dial(ctx, client.Config{Addr: gw.Addr()}, logger.NewNop())
			require.Error(t, err)
			assert.True(t, errors.Is(err, iberr.ErrHandshakeFailed), "got %v", err)
		})
	}
}

func TestDialInvalidConfig(t *testing.T) {
	_, err := client.Dial(context.Background(), client.Config{}, logger.NewNop())
	require.Error(t, err)
}

func TestCurrentTime(t *testing.T) {
	gw := ibtest.New(t, ibtest.WithHandler(command.CodeRequestCurrentTime, func(s *ibtest.Session, _ []string) {
		_ = s.Send(message.CodeCurrentTime, "1", "1700000000")
	}))
	c, _ := dial(t, gw)

	got, err := c.CurrentTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), got)
	assert.Equal(t, 0, c.PendingRequests())
}

// awaitEvent drains Events until an event of type T arrives.
func awaitEvent[T message.Event](t *testing.T, c *client.Conn) T {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case ev := <-c.Events():
			if e, ok := ev.(T); ok {
				return e
			}
		case <-deadline:
			var zero T
			t.Fatalf("no %T delivered to Events", zero)
			return zero
		}
	}
}

func execFields(reqID, orderID, execID string) []string {
	return []string{
		reqID, orderID,
		"265598", "AAPL", "STK", "", "", "", "", "ISLAND", "USD", "AAPL", "NMS",
		execID, "20240102-15:04:05", "DU12345", "ISLAND", "BOT", "100", "150.25", "555", "3", "0", "100", "150.25", "", "", "", "", "1",
	}
}

func TestExecutionsCollectsUntilEnd(t *testing.T) {
	gw := ibtest.New(t, ibtest.WithHandler(command.CodeRequestExecutions, func(s *ibtest.Session, f []string) {
		reqID := f[2]
		_ = s.Send(message.CodeExecutionData, execFields("999", "7", "stray")...)
		_ = s.Send(message.CodeErrMsg, "2", reqID, "2104", "Market data farm connection is OK")
		_ = s.Send(message.CodeExecutionData, execFields(reqID, "7", "e1")...)
		_ = s.Send(message.CodeExecutionData, execFields(reqID, "8", "e2")...)
		_ = s.Send(message.CodeExecutionDataEnd, "1", reqID)
	}))
	c, _ := dial(t, gw)

	got, err := c.Executions(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e1", got[0].Execution.ExecID)
	assert.Equal(t, "e2", got[1].Execution.ExecID)
	assert.True(t, decimal.NewFromInt(100).Equal(got[0].Execution.Shares))

	// the stray request id found no waiter and was never published
	assert.Equal(t, int64(1), c.DroppedEvents())
	select {
	case ev := <-c.Events():
		if _, ok := ev.(message.ExecutionData); ok {
			t.Fatalf("request scoped event leaked to the unsolicited channel: %+v", ev)
		}
	default:
	}
}

func TestLiveFillReachesEvents(t *testing.T) {
	gw := ibtest.New(t)
	c, s := dial(t, gw)

	require.NoError(t, s.Send(message.CodeExecutionData, execFields("-1", "7", "live")...))

	x := awaitEvent[message.ExecutionData](t, c)
	assert.Equal(t, "live", x.Execution.ExecID)
	assert.Equal(t, int64(7), x.Execution.OrderID)
	assert.Equal(t, int64(0), c.DroppedEvents())
}

func TestLiveFillFollowsOrderTicket(t *testing.T) {
	gw := ibtest.New(t)
	c, s := dial(t, gw)

	order := domain.Order{
		Action:        domain.ActionBuy,
		TotalQuantity: decimal.NewFromInt(100),
		OrderType:     domain.OrderTypeMarket,
		TIF:           domain.TIFDay,
		Transmit:      true,
	}
	ticket, err := c.PlaceOrder(context.Background(), 7, aapl(), order)
	require.NoError(t, err)
	s.Expect(command.CodePlaceOrder, wait)

	require.NoError(t, s.Send(message.CodeExecutionData, execFields("-1", "7", "fill-1")...))

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	ev, err := ticket.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fill-1", ev.(message.ExecutionData).Execution.ExecID)
	require.NoError(t, ticket.Cancel(ctx))
}

func TestContractDetailsAPIError(t *testing.T) {
	gw := ibtest.New(t, ibtest.WithHandler(command.CodeRequestContractDetails, func(s *ibtest.Session, f []string) {
		_ = s.Send(message.CodeErrMsg, "2", f[2], "200", "No security definition has been found")
	}))
	c, _ := dial(t, gw)

	_, err := c.ContractDetails(context.Background(), aapl())
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 200, apiErr.Code)
	assert.Equal(t, int64(1), apiErr.ID)
	assert.Equal(t, 0, c.PendingRequests())
}

func TestContractDetailsEmpty(t *testing.T) {
	gw := ibtest.New(t, ibtest.WithHandler(command.CodeRequestContractDetails, func(s *ibtest.Session, f []string) {
		_ = s.Send(message.CodeContractDataEnd, "1", f[2])
	}))
	c, _ := dial(t, gw)

	got, err := c.ContractDetails(context.Background(), aapl())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEncodingErrorNeverReachesSocket(t *testing.T) {
	gw := ibtest.New(t)
	c, s := dial(t, gw)
	s.Expect(command.CodeStartAPI, wait)

	_, err := c.ContractDetails(context.Background(), domain.Contract{Symbol: "A\x00B"})
	require.ErrorIs(t, err, iberr.ErrEncoding)
	assert.Equal(t, 0, c.PendingRequests())

	select {
	case f := <-s.Received:
		t.Fatalf("unexpected frame %v", f)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, client.StateReady, c.State())
}

func TestTimeoutDropsLateResponse(t *testing.T) {
	gw := ibtest.New(t)
	c, s := dial(t, gw)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Executions(ctx, nil)
	require.ErrorIs(t, err, iberr.ErrTimeout)
	assert.Equal(t, 0, c.PendingRequests())

	req := s.Expect(command.CodeRequestExecutions, wait)
	before := c.DroppedEvents()
	require.NoError(t, s.Send(message.CodeExecutionDataEnd, "1", req[2]))
	require.Eventually(t, func() bool { return c.DroppedEvents() == before+1 }, wait, 10*time.Millisecond)
	assert.Equal(t, client.StateReady, c.State())
}

func TestMalformedFrameFailsConnection(t *testing.T) {
	gw := ibtest.New(t)
	c, s := dial(t, gw)

	errc := make(chan error, 1)
	go func() {
		_, err := c.CurrentTime(context.Background())
		errc <- err
	}()
	s.Expect(command.CodeRequestCurrentTime, wait)
	require.NoError(t, s.SendRaw([]byte{0, 0, 0, 0}))

	select {
	case err := <-errc:
		require.ErrorIs(t, err, iberr.ErrConnectionLost)
	case <-time.After(wait):
		t.Fatal("pending request was not resolved")
	}
	<-c.Done()
	assert.Equal(t, client.StateFailed, c.State())
	assert.ErrorIs(t, c.Err(), iberr.ErrMalformedFrame)

	_, err := c.CurrentTime(context.Background())
	assert.ErrorIs(t, err, iberr.ErrConnectionLost)
}

func TestPeerCloseFailsConnection(t *testing.T) {
	gw := ibtest.New(t)
	c, s := dial(t, gw)
	s.Close()

	select {
	case <-c.Done():
	case <-time.After(wait):
		t.Fatal("read loop did not stop")
	}
	require.Eventually(t, func() bool { return c.State() == client.StateFailed }, wait, 10*time.Millisecond)
	assert.ErrorIs(t, c.Err(), iberr.ErrConnectionLost)
}

func TestCloseResolvesPending(t *testing.T) {
	gw := ibtest.New(t)
	c, s := dial(t, gw)

	errc := make(chan error, 1)
	go func() {
		_, err := c.CurrentTime(context.Background())
		errc <- err
	}()
	s.Expect(command.CodeRequestCurrentTime, wait)
	require.NoError(t, c.Close())

	select {
	case err := <-errc:
		require.ErrorIs(t, err, iberr.ErrConnectionClosed)
	case <-time.After(wait):
		t.Fatal("pending request was not resolved")
	}
	assert.Equal(t, client.StateClosed, c.State())
	assert.NoError(t, c.Close())

	_, err := c.CurrentTime(context.Background())
	assert.ErrorIs(t, err, iberr.ErrConnectionClosed)
}

func TestUnsolicitedEvents(t *testing.T) {
	gw := ibtest.New(t)
	c, s := dial(t, gw)

	require.NoError(t, s.Send(message.CodeOrderStatus, "42", "Filled", "10", "0", "1.5", "77", "0", "1.5", "3", "", ""))
	require.NoError(t, s.Send(message.CodeErrMsg, "2", "-1", "2104", "Market data farm connection is OK"))

	var gotStatus, gotNotice bool
	deadline := time.After(wait)
	for !(gotStatus && gotNotice) {
		select {
		case ev := <-c.Events():
			switch e := ev.(type) {
			case message.OrderStatus:
				assert.Equal(t, int64(42), e.OrderID)
				assert.Equal(t, domain.OrderFilled, e.Status)
				gotStatus = true
			case message.ErrorMessage:
				assert.True(t, e.IsWarning())
				gotNotice = true
			}
		case <-deadline:
			t.Fatal("unsolicited events not delivered")
		}
	}
}

func TestMarketDataCancel(t *testing.T) {
	gw := ibtest.New(t)
	c, s := dial(t, gw)

	sub, err := c.MarketData(context.Background(), client.MarketDataRequest{Contract: aapl()})
	require.NoError(t, err)
	req := s.Expect(command.CodeRequestMarketData, wait)
	id := strconv.FormatInt(sub.ID(), 10)
	require.Equal(t, id, req[2])

	require.NoError(t, s.Send(message.CodeTickPrice, "6", id, "1", "150.5", "200", "3"))
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	tick, ok := ev.(message.TickPrice)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, 150.5, tick.Price)
	assert.True(t, tick.CanAutoExecute)

	require.NoError(t, sub.Cancel(ctx))
	require.NoError(t, sub.Cancel(ctx))
	cancelFrame := s.Expect(command.CodeCancelMarketData, wait)
	assert.Equal(t, []string{"2", "2", id}, cancelFrame)
	assert.Equal(t, 0, c.PendingRequests())
}

func TestPlaceOrderOnOlderServer(t *testing.T) {
	gw := ibtest.New(t, ibtest.WithServerVersion(120))
	c, s := dial(t, gw, func(c *client.Config) { c.MaxVersion = 150 })
	require.Equal(t, 120, c.ServerVersion())
	assert.Equal(t, "v100..150", s.Hello)

	order := domain.Order{
		Action:        domain.ActionBuy,
		TotalQuantity: decimal.NewFromInt(100),
		OrderType:     domain.OrderTypeLimit,
		LmtPrice:      decimal.NewNullDecimal(decimal.NewFromInt(150)),
		TIF:           domain.TIFDay,
		Transmit:      true,
	}
	ticket, err := c.PlaceOrder(context.Background(), 7, aapl(), order)
	require.NoError(t, err)
	assert.Equal(t, int64(7), ticket.OrderID())

	frame := s.Expect(command.CodePlaceOrder, wait)
	assert.Equal(t, []string{"3", "7", "0", "AAPL", "STK"}, frame[:5])

	// version field present below the market cap price layout
	require.NoError(t, s.Send(message.CodeOrderStatus, "1", "7", "Submitted", "0", "100", "0", "88", "0", "0", "3", ""))

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	st, err := ticket.WaitStatus(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderSubmitted, st.Status)
	assert.Nil(t, st.MktCapPrice)

	require.NoError(t, s.Send(message.CodeErrMsg, "2", "7", "201", "Order rejected"))
	_, err = ticket.Next(ctx)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 201, apiErr.Code)

	require.NoError(t, ticket.Cancel(ctx))
	assert.Equal(t, 0, c.PendingRequests())
}

func TestOpenOrdersEmpty(t *testing.T) {
	gw := ibtest.New(t, ibtest.WithHandler(command.CodeRequestAllOpenOrders, func(s *ibtest.Session, _ []string) {
		_ = s.Send(message.CodeOpenOrderEnd, "1")
	}))
	c, _ := dial(t, gw)

	got, err := c.Orders(context.Background(), domain.OrdersAllOpen)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAutoOpenOrders(t *testing.T) {
	gw := ibtest.New(t)
	c, s := dial(t, gw)

	_, err := c.Orders(context.Background(), domain.OrdersAutoOpen)
	require.ErrorIs(t, err, client.ErrNoListing)
	assert.Equal(t, 0, c.PendingRequests())

	require.NoError(t, c.AutoOpenOrders(context.Background(), false))
	assert.Equal(t, []string{"15", "1", "0"}, s.Expect(command.CodeRequestAutoOpenOrders, wait))
	require.NoError(t, c.AutoOpenOrders(context.Background(), true))
	assert.Equal(t, []string{"15", "1", "1"}, s.Expect(command.CodeRequestAutoOpenOrders, wait))

	// forwarded orders have no waiter and surface as unsolicited events
	require.NoError(t, s.Send(message.CodeOrderStatus, "12", "PreSubmitted", "0", "5", "0", "91", "0", "0", "0", "", ""))
	assert.Equal(t, int64(12), awaitEvent[message.OrderStatus](t, c).OrderID)
}

func TestRealtimeBarsStream(t *testing.T) {
	gw := ibtest.New(t)
	c, s := dial(t, gw)

	sub, err := c.RealtimeBars(context.Background(), client.RealtimeBarsRequest{Contract: aapl(), WhatToShow: domain.BarsTrades})
	require.NoError(t, err)
	req := s.Expect(command.CodeRequestRealtimeBars, wait)
	id := strconv.FormatInt(sub.ID(), 10)
	require.Equal(t, id, req[2])
	assert.Equal(t, []string{"5", "TRADES", "0", ""}, req[len(req)-4:])

	require.NoError(t, s.Send(message.CodeRealtimeBar, "3", id, "1700000000", "150.1", "150.9", "149.8", "150.5", "1200", "150.42", "37"))
	require.NoError(t, s.Send(message.CodeRealtimeBar, "3", id, "1700000005", "150.5", "150.6", "150.2", "150.3", "300", "150.4", "9"))

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	for _, want := range []int64{1700000000, 1700000005} {
		ev, err := sub.Next(ctx)
		require.NoError(t, err)
		bar, ok := ev.(message.RealtimeBar)
		require.True(t, ok, "got %T", ev)
		assert.Equal(t, want, bar.Time.Unix())
	}

	require.NoError(t, sub.Cancel(ctx))
	assert.Equal(t, []string{"51", "1", id}, s.Expect(command.CodeCancelRealtimeBars, wait))
	assert.Equal(t, 0, c.PendingRequests())
}

func TestAccountSummaryStream(t *testing.T) {
	gw := ibtest.New(t)
	c, s := dial(t, gw)

	sub, err := c.AccountSummary(context.Background(), "", []string{domain.TagNetLiquidation})
	require.NoError(t, err)
	req := s.Expect(command.CodeRequestAccountSummary, wait)
	assert.Equal(t, []string{"62", "1", strconv.FormatInt(sub.ID(), 10), "All", "NetLiquidation"}, req)

	id := req[2]
	require.NoError(t, s.Send(message.CodeAccountSummary, "1", id, "DU12345", "NetLiquidation", "250000", "USD"))
	require.NoError(t, s.Send(message.CodeAccountSummaryEnd, "1", id))

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	row, ok := ev.(message.AccountSummary)
	require.True(t, ok)
	assert.Equal(t, "250000", row.Value)

	ev, err = sub.Next(ctx)
	require.NoError(t, err)
	assert.IsType(t, message.AccountSummaryEnd{}, ev)

	require.NoError(t, sub.Cancel(ctx))
	s.Expect(command.CodeCancelAccountSummary, wait)
}
