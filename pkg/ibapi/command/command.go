// Package command encodes outgoing gateway requests.
//
// Command is a closed set: every variant is declared here and Encode
// switches over all of them.
package command

import (
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/domain"
)

// Outgoing message codes.
const (
	CodeRequestMarketData      = 1
	CodeCancelMarketData       = 2
	CodePlaceOrder             = 3
	CodeCancelOrder            = 4
	CodeRequestOpenOrders      = 5
	CodeRequestAccountUpdates  = 6
	CodeRequestExecutions      = 7
	CodeRequestIDs             = 8
	CodeRequestContractDetails = 9
	CodeSetServerLogLevel      = 14
	CodeRequestAutoOpenOrders  = 15
	CodeRequestAllOpenOrders   = 16
	CodeRequestCurrentTime     = 49
	CodeRequestRealtimeBars    = 50
	CodeCancelRealtimeBars     = 51
	CodeRequestMarketDataType  = 59
	CodeRequestAccountSummary  = 62
	CodeCancelAccountSummary   = 63
	CodeStartAPI               = 71
	CodeRequestCompletedOrders = 99
)

// Command is any request the client can put on the wire.
type Command interface {
	isCommand()
}

type StartAPI struct {
	ClientID             int
	OptionalCapabilities string
}

type RequestCurrentTime struct{}

type SetServerLogLevel struct {
	Level domain.ServerLogLevel
}

type RequestIDs struct {
	NumIDs int
}

// PlaceOrder submits or modifies the order with OrderID.
type PlaceOrder struct {
	OrderID  int64
	Contract domain.Contract
	Order    domain.Order
}

type CancelOrder struct {
	OrderID int64
}

// RequestExecutions asks for today's fills. A nil Filter matches all.
type RequestExecutions struct {
	RequestID int64
	Filter    *domain.ExecutionFilter
}

type RequestContractDetails struct {
	RequestID int64
	Contract  domain.Contract
}

type RequestAccountSummary struct {
	RequestID int64
	Group     string
	Tags      []string
}

type CancelAccountSummary struct {
	RequestID int64
}

type RequestAccountUpdates struct {
	Subscribe bool
	Account   string
}

// RequestOrders lists orders of the given kind. AutoBind applies to
// OrdersAutoOpen only, APIOnly to OrdersCompleted only.
type RequestOrders struct {
	Kind     domain.OrderKind
	AutoBind bool
	APIOnly  bool
}

type RequestMarketData struct {
	RequestID          int64
	Contract           domain.Contract
	GenericTicks       []string
	Snapshot           bool
	RegulatorySnapshot bool
}

type CancelMarketData struct {
	RequestID int64
}

type RequestMarketDataType struct {
	Kind domain.MarketDataKind
}

// RequestRealtimeBars subscribes to five-second bars built from WhatToShow.
type RequestRealtimeBars struct {
	RequestID  int64
	Contract   domain.Contract
	WhatToShow domain.BarSource
	UseRTH     bool
}

type CancelRealtimeBars struct {
	RequestID int64
}

func (StartAPI) isCommand()               {}
func (RequestCurrentTime) isCommand()     {}
func (SetServerLogLevel) isCommand()      {}
func (RequestIDs) isCommand()             {}
func (PlaceOrder) isCommand()             {}
func (CancelOrder) isCommand()            {}
func (RequestExecutions) isCommand()      {}
func (RequestContractDetails) isCommand() {}
func (RequestAccountSummary) isCommand()  {}
func (CancelAccountSummary) isCommand()   {}
func (RequestAccountUpdates) isCommand()  {}
func (RequestOrders) isCommand()          {}
func (RequestMarketData) isCommand()      {}
func (CancelMarketData) isCommand()       {}
func (RequestMarketDataType) isCommand()  {}
func (RequestRealtimeBars) isCommand()    {}
func (CancelRealtimeBars) isCommand()     {}

// Name returns a short label used in logs, metrics and spans.
func Name(cmd Command) string {
	switch c := cmd.(type) {
	case StartAPI:
		return "StartAPI"
	case RequestCurrentTime:
		return "RequestCurrentTime"
	case SetServerLogLevel:
		return "SetServerLogLevel"
	case RequestIDs:
		return "RequestIDs"
	case PlaceOrder:
		return "PlaceOrder"
	case CancelOrder:
		return "CancelOrder"
	case RequestExecutions:
		return "RequestExecutions"
	case RequestContractDetails:
		return "RequestContractDetails"
	case RequestAccountSummary:
		return "RequestAccountSummary"
	case CancelAccountSummary:
		return "CancelAccountSummary"
	case RequestAccountUpdates:
		return "RequestAccountUpdates"
	case RequestOrders:
		return "RequestOrders/" + c.Kind.String()
	case RequestMarketData:
		return "RequestMarketData"
	case CancelMarketData:
		return "CancelMarketData"
	case RequestMarketDataType:
		return "RequestMarketDataType"
	case RequestRealtimeBars:
		return "RequestRealtimeBars"
	case CancelRealtimeBars:
		return "CancelRealtimeBars"
	}
	return "Unknown"
}
