package domain

// ServerLogLevel controls the verbosity of the gateway's own log.
type ServerLogLevel int

const (
	LogSystem      ServerLogLevel = 1
	LogError       ServerLogLevel = 2
	LogWarning     ServerLogLevel = 3
	LogInformation ServerLogLevel = 4
	LogDetail      ServerLogLevel = 5
)

// MarketDataKind selects live, frozen or delayed quotes.
type MarketDataKind int

const (
	MarketDataRealTime      MarketDataKind = 1
	MarketDataFrozen        MarketDataKind = 2
	MarketDataDelayed       MarketDataKind = 3
	MarketDataFrozenDelayed MarketDataKind = 4
)

func (k MarketDataKind) String() string {
	switch k {
	case MarketDataRealTime:
		return "realtime"
	case MarketDataFrozen:
		return "frozen"
	case MarketDataDelayed:
		return "delayed"
	case MarketDataFrozenDelayed:
		return "frozen-delayed"
	}
	return "unknown"
}

// Account summary tags accepted by an account summary request.
const (
	TagAccountType                 = "AccountType"
	TagNetLiquidation              = "NetLiquidation"
	TagTotalCashValue              = "TotalCashValue"
	TagSettledCash                 = "SettledCash"
	TagAccruedCash                 = "AccruedCash"
	TagBuyingPower                 = "BuyingPower"
	TagEquityWithLoanValue         = "EquityWithLoanValue"
	TagPreviousEquityWithLoanValue = "PreviousEquityWithLoanValue"
	TagGrossPositionValue          = "GrossPositionValue"
	TagRegTEquity                  = "RegTEquity"
	TagRegTMargin                  = "RegTMargin"
	TagSMA                         = "SMA"
	TagInitMarginReq               = "InitMarginReq"
	TagMaintMarginReq              = "MaintMarginReq"
	TagAvailableFunds              = "AvailableFunds"
	TagExcessLiquidity             = "ExcessLiquidity"
	TagCushion                     = "Cushion"
	TagFullInitMarginReq           = "FullInitMarginReq"
	TagFullMaintMarginReq          = "FullMaintMarginReq"
	TagFullAvailableFunds          = "FullAvailableFunds"
	TagFullExcessLiquidity         = "FullExcessLiquidity"
	TagLookAheadNextChange         = "LookAheadNextChange"
	TagLookAheadInitMarginReq      = "LookAheadInitMarginReq"
	TagLookAheadMaintMarginReq     = "LookAheadMaintMarginReq"
	TagLookAheadAvailableFunds     = "LookAheadAvailableFunds"
	TagLookAheadExcessLiquidity    = "LookAheadExcessLiquidity"
	TagHighestSeverity             = "HighestSeverity"
	TagDayTradesRemaining          = "DayTradesRemaining"
	TagLeverage                    = "Leverage"
	TagLedger                      = "$LEDGER"
	TagLedgerAll                   = "$LEDGER:ALL"
)

// AccountSummaryTags lists every standard tag.
var AccountSummaryTags = []string{
	TagAccountType, TagNetLiquidation, TagTotalCashValue, TagSettledCash, TagAccruedCash,
	TagBuyingPower, TagEquityWithLoanValue, TagPreviousEquityWithLoanValue, TagGrossPositionValue,
	TagRegTEquity, TagRegTMargin, TagSMA, TagInitMarginReq, TagMaintMarginReq, TagAvailableFunds,
	TagExcessLiquidity, TagCushion, TagFullInitMarginReq, TagFullMaintMarginReq, TagFullAvailableFunds,
	TagFullExcessLiquidity, TagLookAheadNextChange, TagLookAheadInitMarginReq, TagLookAheadMaintMarginReq,
	TagLookAheadAvailableFunds, TagLookAheadExcessLiquidity, TagHighestSeverity, TagDayTradesRemaining,
	TagLeverage,
}

// OrderKind selects which order listing a RequestOrders command asks for.
type OrderKind int

const (
	OrdersOpen OrderKind = iota
	OrdersAllOpen
	OrdersAutoOpen
	OrdersCompleted
)

func (k OrderKind) String() string {
	switch k {
	case OrdersOpen:
		return "open"
	case OrdersAllOpen:
		return "all-open"
	case OrdersAutoOpen:
		return "auto-open"
	case OrdersCompleted:
		return "completed"
	}
	return "unknown"
}

// BarSource selects the price series behind realtime bars.
type BarSource string

const (
	BarsTrades   BarSource = "TRADES"
	BarsMidpoint BarSource = "MIDPOINT"
	BarsBid      BarSource = "BID"
	BarsAsk      BarSource = "ASK"
)

// Valid reports whether the gateway accepts s for realtime bars.
func (s BarSource) Valid() bool {
	switch s {
	case BarsTrades, BarsMidpoint, BarsBid, BarsAsk:
		return true
	}
	return false
}
