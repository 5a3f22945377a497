package command

import (
	"fmt"
	"strings"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/domain"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/iberr"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/wire"
)

// Encode turns cmd into a complete frame for a session negotiated at
// serverVersion. It performs no I/O. Any failure matches iberr.ErrEncoding.
func Encode(cmd Command, serverVersion int) ([]byte, error) {
	fields, err := Fields(cmd, serverVersion)
	if err != nil {
		return nil, err
	}
	frame, err := wire.EncodeFields(fields)
	if err != nil {
		return nil, wrapEncoding(cmd, err)
	}
	return frame, nil
}

// Fields returns the ordered field list of cmd, message code first.
func Fields(cmd Command, serverVersion int) ([]string, error) {
	var (
		e   *wire.Encoder
		err error
	)
	switch c := cmd.(type) {
	case StartAPI:
		e = encodeStartAPI(c, serverVersion)
	case RequestCurrentTime:
		e = wire.NewEncoder(CodeRequestCurrentTime)
		e.Int(1)
	case SetServerLogLevel:
		e, err = encodeSetServerLogLevel(c)
	case RequestIDs:
		e, err = encodeRequestIDs(c)
	case PlaceOrder:
		e, err = encodePlaceOrder(c, serverVersion)
	case CancelOrder:
		e, err = encodeCancelOrder(c)
	case RequestExecutions:
		e = encodeRequestExecutions(c)
	case RequestContractDetails:
		e = encodeRequestContractDetails(c, serverVersion)
	case RequestAccountSummary:
		e, err = encodeRequestAccountSummary(c)
	case CancelAccountSummary:
		e = wire.NewEncoder(CodeCancelAccountSummary)
		e.Int(1)
		e.Int64(c.RequestID)
	case RequestAccountUpdates:
		e = wire.NewEncoder(CodeRequestAccountUpdates)
		e.Int(2)
		e.Bool(c.Subscribe)
		e.String(c.Account)
	case RequestOrders:
		e, err = encodeRequestOrders(c)
	case RequestMarketData:
		e, err = encodeRequestMarketData(c)
	case CancelMarketData:
		e = wire.NewEncoder(CodeCancelMarketData)
		e.Int(2)
		e.Int64(c.RequestID)
	case RequestMarketDataType:
		e, err = encodeRequestMarketDataType(c)
	case RequestRealtimeBars:
		e, err = encodeRequestRealtimeBars(c)
	case CancelRealtimeBars:
		e = wire.NewEncoder(CodeCancelRealtimeBars)
		e.Int(1)
		e.Int64(c.RequestID)
	default:
		return nil, iberr.Encoding("unsupported command %T", cmd)
	}
	if err != nil {
		return nil, err
	}
	if e.Err() != nil {
		return nil, wrapEncoding(cmd, e.Err())
	}
	return e.Fields(), nil
}

func wrapEncoding(cmd Command, err error) error {
	return fmt.Errorf("%w: %s: %w", iberr.ErrEncoding, Name(cmd), err)
}

func encodeStartAPI(c StartAPI, sv int) *wire.Encoder {
	e := wire.NewEncoder(CodeStartAPI)
	e.Int(2)
	e.Int(c.ClientID)
	if sv >= wire.VersionOptionalCapabilities {
		e.String(c.OptionalCapabilities)
	}
	return e
}

func encodeSetServerLogLevel(c SetServerLogLevel) (*wire.Encoder, error) {
	if c.Level < domain.LogSystem || c.Level > domain.LogDetail {
		return nil, iberr.Encoding("server log level %d out of range", c.Level)
	}
	e := wire.NewEncoder(CodeSetServerLogLevel)
	e.Int(1)
	e.Int(int(c.Level))
	return e, nil
}

func encodeRequestIDs(c RequestIDs) (*wire.Encoder, error) {
	n := c.NumIDs
	if n < 0 {
		return nil, iberr.Encoding("negative id count %d", n)
	}
	if n == 0 {
		n = 1
	}
	e := wire.NewEncoder(CodeRequestIDs)
	e.Int(1)
	e.Int(n)
	return e, nil
}

func encodeCancelOrder(c CancelOrder) (*wire.Encoder, error) {
	if c.OrderID < 0 {
		return nil, iberr.Encoding("negative order id %d", c.OrderID)
	}
	e := wire.NewEncoder(CodeCancelOrder)
	e.Int(1)
	e.Int64(c.OrderID)
	return e, nil
}

func encodeRequestExecutions(c RequestExecutions) *wire.Encoder {
	e := wire.NewEncoder(CodeRequestExecutions)
	e.Int(3)
	e.Int64(c.RequestID)
	f := c.Filter
	if f == nil {
		f = &domain.ExecutionFilter{}
	}
	e.OptInt(f.ClientID)
	e.String(f.AcctCode)
	e.Time(f.Time)
	e.String(f.Symbol)
	e.String(string(f.SecType))
	e.String(f.Exchange)
	e.String(f.Side)
	return e
}

func encodeRequestContractDetails(c RequestContractDetails, sv int) *wire.Encoder {
	e := wire.NewEncoder(CodeRequestContractDetails)
	e.Int(8)
	e.Int64(c.RequestID)
	k := c.Contract
	e.Int64(k.ConID)
	e.String(k.Symbol)
	e.String(string(k.SecType))
	e.String(k.LastTradeDateOrContractMonth)
	e.OptDecimal(k.Strike)
	e.String(string(k.Right))
	e.String(k.Multiplier)
	e.String(k.Exchange)
	e.String(k.PrimaryExchange)
	e.String(k.Currency)
	e.String(k.LocalSymbol)
	e.String(k.TradingClass)
	e.Bool(k.IncludeExpired)
	e.String(k.SecIDType)
	e.String(k.SecID)
	if sv >= wire.VersionBondIssuerID {
		e.String(k.IssuerID)
	}
	return e
}

func encodeRequestAccountSummary(c RequestAccountSummary) (*wire.Encoder, error) {
	if len(c.Tags) == 0 {
		return nil, iberr.Encoding("account summary without tags")
	}
	for _, t := range c.Tags {
		if t == "" || strings.Contains(t, ",") {
			return nil, iberr.Encoding("bad account summary tag %q", t)
		}
	}
	group := c.Group
	if group == "" {
		group = "All"
	}
	e := wire.NewEncoder(CodeRequestAccountSummary)
	e.Int(1)
	e.Int64(c.RequestID)
	e.String(group)
	e.String(strings.Join(c.Tags, ","))
	return e, nil
}

func encodeRequestOrders(c RequestOrders) (*wire.Encoder, error) {
	var e *wire.Encoder
	switch c.Kind {
	case domain.OrdersOpen:
		e = wire.NewEncoder(CodeRequestOpenOrders)
		e.Int(1)
	case domain.OrdersAllOpen:
		e = wire.NewEncoder(CodeRequestAllOpenOrders)
		e.Int(1)
	case domain.OrdersAutoOpen:
		e = wire.NewEncoder(CodeRequestAutoOpenOrders)
		e.Int(1)
		e.Bool(c.AutoBind)
	case domain.OrdersCompleted:
		e = wire.NewEncoder(CodeRequestCompletedOrders)
		e.Bool(c.APIOnly)
	default:
		return nil, iberr.Encoding("unknown order kind %d", c.Kind)
	}
	return e, nil
}

// checkTickerContract validates contracts sent in the ticker layout.
func checkTickerContract(k domain.Contract) error {
	if k.ConID <= 0 && k.Symbol == "" {
		return iberr.Encoding("contract needs a con id or symbol")
	}
	if k.SecType == domain.SecTypeCombo {
		return iberr.Encoding("combo contracts are not supported")
	}
	return nil
}

// writeTickerContract writes the contract layout shared by market data
// and realtime bars requests.
func writeTickerContract(e *wire.Encoder, k domain.Contract) {
	e.Int64(k.ConID)
	e.String(k.Symbol)
	e.String(string(k.SecType))
	e.String(k.LastTradeDateOrContractMonth)
	e.OptDecimal(k.Strike)
	e.String(string(k.Right))
	e.String(k.Multiplier)
	e.String(k.Exchange)
	e.String(k.PrimaryExchange)
	e.String(k.Currency)
	e.String(k.LocalSymbol)
	e.String(k.TradingClass)
}

func encodeRequestMarketData(c RequestMarketData) (*wire.Encoder, error) {
	if err := checkTickerContract(c.Contract); err != nil {
		return nil, err
	}
	for _, t := range c.GenericTicks {
		if strings.Contains(t, ",") {
			return nil, iberr.Encoding("bad generic tick %q", t)
		}
	}
	e := wire.NewEncoder(CodeRequestMarketData)
	e.Int(11)
	e.Int64(c.RequestID)
	writeTickerContract(e, c.Contract)
	e.Bool(false) // delta neutral contract
	e.String(strings.Join(c.GenericTicks, ","))
	e.Bool(c.Snapshot)
	e.Bool(c.RegulatorySnapshot)
	e.Empty() // market data options
	return e, nil
}

func encodeRequestRealtimeBars(c RequestRealtimeBars) (*wire.Encoder, error) {
	if err := checkTickerContract(c.Contract); err != nil {
		return nil, err
	}
	if !c.WhatToShow.Valid() {
		return nil, iberr.Encoding("bad bar source %q", c.WhatToShow)
	}
	e := wire.NewEncoder(CodeRequestRealtimeBars)
	e.Int(3)
	e.Int64(c.RequestID)
	writeTickerContract(e, c.Contract)
	e.Int(5) // bar size, the only one the gateway serves
	e.String(string(c.WhatToShow))
	e.Bool(c.UseRTH)
	e.Empty() // realtime bars options
	return e, nil
}

func encodeRequestMarketDataType(c RequestMarketDataType) (*wire.Encoder, error) {
	if c.Kind < domain.MarketDataRealTime || c.Kind > domain.MarketDataFrozenDelayed {
		return nil, iberr.Encoding("market data type %d out of range", c.Kind)
	}
	e := wire.NewEncoder(CodeRequestMarketDataType)
	e.Int(1)
	e.Int(int(c.Kind))
	return e, nil
}
