package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionBuy       Action = "BUY"
	ActionSell      Action = "SELL"
	ActionSellShort Action = "SSHORT"
)

type OrderType string

const (
	OrderTypeMarket        OrderType = "MKT"
	OrderTypeLimit         OrderType = "LMT"
	OrderTypeStop          OrderType = "STP"
	OrderTypeStopLimit     OrderType = "STP LMT"
	OrderTypeTrail         OrderType = "TRAIL"
	OrderTypeMarketOnClose OrderType = "MOC"
	OrderTypeLimitOnClose  OrderType = "LOC"
	OrderTypeRelative      OrderType = "REL"
)

type TimeInForce string

const (
	TIFDay TimeInForce = "DAY"
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
	TIFGTD TimeInForce = "GTD"
	TIFOPG TimeInForce = "OPG"
	TIFFOK TimeInForce = "FOK"
)

// Order carries the order attributes sent with a place order request.
// Optional prices use decimal.NullDecimal; an invalid value goes out as an empty field.
type Order struct {
	Action        Action              `json:"action"`
	TotalQuantity decimal.Decimal     `json:"total_quantity"`
	OrderType     OrderType           `json:"order_type"`
	LmtPrice      decimal.NullDecimal `json:"lmt_price"`
	AuxPrice      decimal.NullDecimal `json:"aux_price"`
	TIF           TimeInForce         `json:"tif,omitempty"`
	OcaGroup      string              `json:"oca_group,omitempty"`
	Account       string              `json:"account,omitempty"`
	OpenClose     string              `json:"open_close,omitempty"`
	Origin        int                 `json:"origin"`
	OrderRef      string              `json:"order_ref,omitempty"`
	Transmit      bool                `json:"transmit"`
	ParentID      int64               `json:"parent_id,omitempty"`
	BlockOrder    bool                `json:"block_order,omitempty"`
	SweepToFill   bool                `json:"sweep_to_fill,omitempty"`
	DisplaySize   int                 `json:"display_size,omitempty"`
	TriggerMethod int                 `json:"trigger_method,omitempty"`
	OutsideRTH    bool                `json:"outside_rth,omitempty"`
	Hidden        bool                `json:"hidden,omitempty"`

	DiscretionaryAmt decimal.NullDecimal `json:"discretionary_amt"`
	GoodAfterTime    time.Time           `json:"good_after_time,omitempty"`
	GoodTillDate     time.Time           `json:"good_till_date,omitempty"`
	FaGroup          string              `json:"fa_group,omitempty"`
	FaMethod         string              `json:"fa_method,omitempty"`
	FaPercentage     string              `json:"fa_percentage,omitempty"`
	FaProfile        string              `json:"fa_profile,omitempty"`
	ModelCode        string              `json:"model_code,omitempty"`
	OcaType          int                 `json:"oca_type,omitempty"`
	AllOrNone        bool                `json:"all_or_none,omitempty"`
	MinQty           *int                `json:"min_qty,omitempty"`
	PercentOffset    *float64            `json:"percent_offset,omitempty"`
	TrailStopPrice   decimal.NullDecimal `json:"trail_stop_price"`
	TrailingPercent  *float64            `json:"trailing_percent,omitempty"`
	NotHeld          bool                `json:"not_held,omitempty"`
	AlgoStrategy     string              `json:"algo_strategy,omitempty"`
	AlgoParams       []TagValue          `json:"algo_params,omitempty"`
	AlgoID           string              `json:"algo_id,omitempty"`
	WhatIf           bool                `json:"what_if,omitempty"`
	CashQty          decimal.NullDecimal `json:"cash_qty"`
	// UsePriceMgmtAlgo is sent only to servers that understand it; nil leaves the choice to the gateway.
	UsePriceMgmtAlgo *bool `json:"use_price_mgmt_algo,omitempty"`
}

// OrderStatusValue is the textual order state reported by the gateway.
type OrderStatusValue string

const (
	OrderPendingSubmit OrderStatusValue = "PendingSubmit"
	OrderPendingCancel OrderStatusValue = "PendingCancel"
	OrderPreSubmitted  OrderStatusValue = "PreSubmitted"
	OrderSubmitted     OrderStatusValue = "Submitted"
	OrderApiCancelled  OrderStatusValue = "ApiCancelled"
	OrderCancelled     OrderStatusValue = "Cancelled"
	OrderFilled        OrderStatusValue = "Filled"
	OrderInactive      OrderStatusValue = "Inactive"
)

// Done reports whether no further status updates are expected.
func (s OrderStatusValue) Done() bool {
	switch s {
	case OrderApiCancelled, OrderCancelled, OrderFilled, OrderInactive:
		return true
	}
	return false
}
