// Package message decodes inbound gateway frames into typed events.
package message

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/domain"
)

// Inbound message codes.
const (
	CodeTickPrice          = 1
	CodeTickSize           = 2
	CodeOrderStatus        = 3
	CodeErrMsg             = 4
	CodeOpenOrder          = 5
	CodeAcctValue          = 6
	CodePortfolioValue     = 7
	CodeAcctUpdateTime     = 8
	CodeNextValidID        = 9
	CodeContractData       = 10
	CodeExecutionData      = 11
	CodeManagedAccts       = 15
	CodeTickGeneric        = 45
	CodeTickString         = 46
	CodeRealtimeBar        = 50
	CodeCurrentTime        = 49
	CodeContractDataEnd    = 52
	CodeOpenOrderEnd       = 53
	CodeAcctDownloadEnd    = 54
	CodeExecutionDataEnd   = 55
	CodeTickSnapshotEnd    = 57
	CodeMarketDataType     = 58
	CodeCommissionReport   = 59
	CodeAccountSummary     = 63
	CodeAccountSummaryEnd  = 64
	CodeCompletedOrder     = 101
	CodeCompletedOrdersEnd = 102
)

// Event is one decoded inbound message.
type Event interface {
	Code() int
	// RequestID reports the correlation id; unsolicited events return false.
	RequestID() (int64, bool)
}

type uncorrelated struct{}

func (uncorrelated) RequestID() (int64, bool) { return 0, false }

type correlated struct {
	ReqID int64 `json:"request_id"`
}

func (c correlated) RequestID() (int64, bool) { return c.ReqID, true }

/* --- market data --- */

type TickPrice struct {
	correlated
	TickType       int                 `json:"tick_type"`
	Price          float64             `json:"price"`
	Size           decimal.NullDecimal `json:"size"`
	CanAutoExecute bool                `json:"can_auto_execute"`
	PastLimit      bool                `json:"past_limit"`
	PreOpen        bool                `json:"pre_open"`
}

type TickSize struct {
	correlated
	TickType int             `json:"tick_type"`
	Size     decimal.Decimal `json:"size"`
}

type TickString struct {
	correlated
	TickType int    `json:"tick_type"`
	Value    string `json:"value"`
}

type TickGeneric struct {
	correlated
	TickType int     `json:"tick_type"`
	Value    float64 `json:"value"`
}

type TickSnapshotEnd struct {
	correlated
}

type MarketDataType struct {
	correlated
	Kind domain.MarketDataKind `json:"kind"`
}

/* --- orders --- */

// OrderStatus is correlated by order id, not request id.
type OrderStatus struct {
	uncorrelated
	OrderID       int64                   `json:"order_id"`
	Status        domain.OrderStatusValue `json:"status"`
	Filled        decimal.Decimal         `json:"filled"`
	Remaining     decimal.Decimal         `json:"remaining"`
	AvgFillPrice  float64                 `json:"avg_fill_price"`
	PermID        int64                   `json:"perm_id"`
	ParentID      int64                   `json:"parent_id"`
	LastFillPrice float64                 `json:"last_fill_price"`
	ClientID      int                     `json:"client_id"`
	WhyHeld       string                  `json:"why_held,omitempty"`
	MktCapPrice   *float64                `json:"mkt_cap_price,omitempty"`
}

// OrderInfo is the prefix of an open or completed order description.
type OrderInfo struct {
	OrderID          int64               `json:"order_id"`
	Contract         domain.Contract     `json:"contract"`
	Action           domain.Action       `json:"action"`
	TotalQuantity    decimal.Decimal     `json:"total_quantity"`
	OrderType        domain.OrderType    `json:"order_type"`
	LmtPrice         decimal.NullDecimal `json:"lmt_price"`
	AuxPrice         decimal.NullDecimal `json:"aux_price"`
	TIF              domain.TimeInForce  `json:"tif"`
	OcaGroup         string              `json:"oca_group,omitempty"`
	Account          string              `json:"account,omitempty"`
	OpenClose        string              `json:"open_close,omitempty"`
	Origin           int                 `json:"origin"`
	OrderRef         string              `json:"order_ref,omitempty"`
	ClientID         int                 `json:"client_id"`
	PermID           int64               `json:"perm_id"`
	OutsideRTH       bool                `json:"outside_rth"`
	Hidden           bool                `json:"hidden"`
	DiscretionaryAmt decimal.NullDecimal `json:"discretionary_amt"`
	GoodAfterTime    string              `json:"good_after_time,omitempty"`
}

type OpenOrder struct {
	uncorrelated
	OrderInfo
}

type OpenOrderEnd struct {
	uncorrelated
}

type CompletedOrder struct {
	uncorrelated
	OrderInfo
}

type CompletedOrdersEnd struct {
	uncorrelated
}

type NextValidID struct {
	uncorrelated
	OrderID int64 `json:"order_id"`
}

/* --- errors --- */

// ErrorMessage carries the gateway's error or notice for ID, which is a
// request id, an order id or -1.
type ErrorMessage struct {
	ID      int64  `json:"id"`
	ErrCode int    `json:"code"`
	Message string `json:"message"`
}

func (e ErrorMessage) RequestID() (int64, bool) { return e.ID, e.ID >= 0 }

// IsWarning reports notices that do not end the request they refer to:
// farm status messages, order warnings and delayed data notices.
func (e ErrorMessage) IsWarning() bool {
	switch {
	case e.ErrCode >= 2100 && e.ErrCode < 2200:
		return true
	case e.ErrCode == 399, e.ErrCode == 10167, e.ErrCode == 10197:
		return true
	}
	return false
}

/* --- account --- */

type AccountValue struct {
	uncorrelated
	Key      string `json:"key"`
	Value    string `json:"value"`
	Currency string `json:"currency"`
	Account  string `json:"account"`
}

type PortfolioValue struct {
	uncorrelated
	Contract      domain.Contract `json:"contract"`
	Position      decimal.Decimal `json:"position"`
	MarketPrice   float64         `json:"market_price"`
	MarketValue   float64         `json:"market_value"`
	AverageCost   float64         `json:"average_cost"`
	UnrealizedPNL float64         `json:"unrealized_pnl"`
	RealizedPNL   float64         `json:"realized_pnl"`
	Account       string          `json:"account"`
}

type AccountUpdateTime struct {
	uncorrelated
	Time string `json:"time"`
}

type AccountDownloadEnd struct {
	uncorrelated
	Account string `json:"account"`
}

type AccountSummary struct {
	correlated
	Account  string `json:"account"`
	Tag      string `json:"tag"`
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type AccountSummaryEnd struct {
	correlated
}

type ManagedAccounts struct {
	uncorrelated
	Accounts []string `json:"accounts"`
}

/* --- contracts and executions --- */

type ContractDetails struct {
	correlated
	Details domain.ContractDetails `json:"details"`
}

type ContractDetailsEnd struct {
	correlated
}

// ExecutionData answers an executions request, or reports a live fill
// with request id -1.
type ExecutionData struct {
	correlated
	Contract  domain.Contract  `json:"contract"`
	Execution domain.Execution `json:"execution"`
}

func (e ExecutionData) RequestID() (int64, bool) { return e.ReqID, e.ReqID >= 0 }

type ExecutionDataEnd struct {
	correlated
}

type CommissionReport struct {
	uncorrelated
	Report domain.CommissionReport `json:"report"`
}

type CurrentTime struct {
	uncorrelated
	Time time.Time `json:"time"`
}

// RealtimeBar is one five-second bar of a realtime bars stream.
type RealtimeBar struct {
	correlated
	Time   time.Time       `json:"time"`
	Open   float64         `json:"open"`
	High   float64         `json:"high"`
	Low    float64         `json:"low"`
	Close  float64         `json:"close"`
	Volume decimal.Decimal `json:"volume"`
	WAP    decimal.Decimal `json:"wap"`
	Count  int             `json:"count"`
}

// Unknown is returned for codes this package cannot decode.
type Unknown struct {
	uncorrelated
	MsgCode int      `json:"code"`
	Fields  []string `json:"fields"`
}

func (TickPrice) Code() int          { return CodeTickPrice }
func (TickSize) Code() int           { return CodeTickSize }
func (TickString) Code() int         { return CodeTickString }
func (TickGeneric) Code() int        { return CodeTickGeneric }
func (TickSnapshotEnd) Code() int    { return CodeTickSnapshotEnd }
func (MarketDataType) Code() int     { return CodeMarketDataType }
func (OrderStatus) Code() int        { return CodeOrderStatus }
func (OpenOrder) Code() int          { return CodeOpenOrder }
func (OpenOrderEnd) Code() int       { return CodeOpenOrderEnd }
func (CompletedOrder) Code() int     { return CodeCompletedOrder }
func (CompletedOrdersEnd) Code() int { return CodeCompletedOrdersEnd }
func (NextValidID) Code() int        { return CodeNextValidID }
func (ErrorMessage) Code() int       { return CodeErrMsg }
func (AccountValue) Code() int       { return CodeAcctValue }
func (PortfolioValue) Code() int     { return CodePortfolioValue }
func (AccountUpdateTime) Code() int  { return CodeAcctUpdateTime }
func (AccountDownloadEnd) Code() int { return CodeAcctDownloadEnd }
func (AccountSummary) Code() int     { return CodeAccountSummary }
func (AccountSummaryEnd) Code() int  { return CodeAccountSummaryEnd }
func (ManagedAccounts) Code() int    { return CodeManagedAccts }
func (ContractDetails) Code() int    { return CodeContractData }
func (ContractDetailsEnd) Code() int { return CodeContractDataEnd }
func (ExecutionData) Code() int      { return CodeExecutionData }
func (ExecutionDataEnd) Code() int   { return CodeExecutionDataEnd }
func (CommissionReport) Code() int   { return CodeCommissionReport }
func (CurrentTime) Code() int        { return CodeCurrentTime }
func (RealtimeBar) Code() int        { return CodeRealtimeBar }
func (u Unknown) Code() int          { return u.MsgCode }
