package message

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/domain"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/iberr"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/wire"
)

type decodeFunc func(d *wire.Decoder, serverVersion int) Event

var decoders = map[int]decodeFunc{
	CodeTickPrice:          decodeTickPrice,
	CodeTickSize:           decodeTickSize,
	CodeOrderStatus:        decodeOrderStatus,
	CodeErrMsg:             decodeErrMsg,
	CodeOpenOrder:          decodeOpenOrder,
	CodeAcctValue:          decodeAcctValue,
	CodePortfolioValue:     decodePortfolioValue,
	CodeAcctUpdateTime:     decodeAcctUpdateTime,
	CodeNextValidID:        decodeNextValidID,
	CodeContractData:       decodeContractData,
	CodeExecutionData:      decodeExecutionData,
	CodeManagedAccts:       decodeManagedAccts,
	CodeTickGeneric:        decodeTickGeneric,
	CodeTickString:         decodeTickString,
	CodeCurrentTime:        decodeCurrentTime,
	CodeRealtimeBar:        decodeRealtimeBar,
	CodeContractDataEnd:    decodeContractDataEnd,
	CodeOpenOrderEnd:       decodeOpenOrderEnd,
	CodeAcctDownloadEnd:    decodeAcctDownloadEnd,
	CodeExecutionDataEnd:   decodeExecutionDataEnd,
	CodeTickSnapshotEnd:    decodeTickSnapshotEnd,
	CodeMarketDataType:     decodeMarketDataType,
	CodeCommissionReport:   decodeCommissionReport,
	CodeAccountSummary:     decodeAccountSummary,
	CodeAccountSummaryEnd:  decodeAccountSummaryEnd,
	CodeCompletedOrder:     decodeCompletedOrder,
	CodeCompletedOrdersEnd: func(*wire.Decoder, int) Event { return CompletedOrdersEnd{} },
}

// Known reports whether code has a decoder.
func Known(code int) bool {
	_, ok := decoders[code]
	return ok
}

// Decode turns one frame payload into an event using the layout of
// serverVersion. Unknown codes yield an Unknown event together with
// iberr.ErrUnknownMessageType. Extra trailing fields are ignored.
func Decode(payload []byte, serverVersion int) (Event, error) {
	fields := wire.Fields(payload)
	if len(fields) == 0 {
		return nil, iberr.Truncated(0, "code")
	}
	code, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, iberr.Invalid(0, "code", fields[0], err)
	}

	fn, ok := decoders[code]
	if !ok {
		return Unknown{MsgCode: code, Fields: fields[1:]}, fmt.Errorf("%w: %d", iberr.ErrUnknownMessageType, code)
	}

	d := wire.NewDecoder(fields)
	d.Skip(1, "code")
	ev := fn(d, serverVersion)
	if err := d.Err(); err != nil {
		return nil, err
	}
	return ev, nil
}

/* --- market data --- */

func decodeTickPrice(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	var ev TickPrice
	ev.ReqID = d.Int64("reqId")
	ev.TickType = d.Int("tickType")
	ev.Price = d.Float("price")
	ev.Size = d.OptDecimal("size")
	mask := d.Int("attrMask")
	ev.CanAutoExecute = mask&1 != 0
	ev.PastLimit = mask&2 != 0
	ev.PreOpen = mask&4 != 0
	return ev
}

func decodeTickSize(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	var ev TickSize
	ev.ReqID = d.Int64("reqId")
	ev.TickType = d.Int("tickType")
	ev.Size = d.Decimal("size")
	return ev
}

func decodeTickString(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	var ev TickString
	ev.ReqID = d.Int64("reqId")
	ev.TickType = d.Int("tickType")
	ev.Value = d.String("value")
	return ev
}

func decodeTickGeneric(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	var ev TickGeneric
	ev.ReqID = d.Int64("reqId")
	ev.TickType = d.Int("tickType")
	ev.Value = d.Float("value")
	return ev
}

func decodeTickSnapshotEnd(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	var ev TickSnapshotEnd
	ev.ReqID = d.Int64("reqId")
	return ev
}

func decodeMarketDataType(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	var ev MarketDataType
	ev.ReqID = d.Int64("reqId")
	ev.Kind = domain.MarketDataKind(d.Int("marketDataType"))
	return ev
}

/* --- orders --- */

func decodeOrderStatus(d *wire.Decoder, sv int) Event {
	if sv < wire.VersionMarketCapPrice {
		d.Skip(1, "version")
	}
	ev := OrderStatus{
		OrderID:       d.Int64("orderId"),
		Status:        domain.OrderStatusValue(d.String("status")),
		Filled:        d.Decimal("filled"),
		Remaining:     d.Decimal("remaining"),
		AvgFillPrice:  d.Float("avgFillPrice"),
		PermID:        d.Int64("permId"),
		ParentID:      d.Int64("parentId"),
		LastFillPrice: d.Float("lastFillPrice"),
		ClientID:      d.Int("clientId"),
		WhyHeld:       d.String("whyHeld"),
	}
	if sv >= wire.VersionMarketCapPrice {
		ev.MktCapPrice = d.OptFloat("mktCapPrice")
	}
	return ev
}

// decodeOrderContract reads the contract block shared by order,
// execution and portfolio messages.
func decodeOrderContract(d *wire.Decoder) domain.Contract {
	return domain.Contract{
		ConID:                        d.Int64("conId"),
		Symbol:                       d.String("symbol"),
		SecType:                      domain.SecType(d.String("secType")),
		LastTradeDateOrContractMonth: d.String("lastTradeDate"),
		Strike:                       d.OptDecimal("strike"),
		Right:                        domain.Right(d.String("right")),
		Multiplier:                   d.String("multiplier"),
		Exchange:                     d.String("exchange"),
		Currency:                     d.String("currency"),
		LocalSymbol:                  d.String("localSymbol"),
		TradingClass:                 d.String("tradingClass"),
	}
}

func decodeOrderHead(d *wire.Decoder, info *OrderInfo, withClientID bool) {
	info.Contract = decodeOrderContract(d)
	info.Action = domain.Action(d.String("action"))
	info.TotalQuantity = d.Decimal("totalQuantity")
	info.OrderType = domain.OrderType(d.String("orderType"))
	info.LmtPrice = d.OptDecimal("lmtPrice")
	info.AuxPrice = d.OptDecimal("auxPrice")
	info.TIF = domain.TimeInForce(d.String("tif"))
	info.OcaGroup = d.String("ocaGroup")
	info.Account = d.String("account")
	info.OpenClose = d.String("openClose")
	info.Origin = d.Int("origin")
	info.OrderRef = d.String("orderRef")
	if withClientID {
		info.ClientID = d.Int("clientId")
	}
	info.PermID = d.Int64("permId")
	info.OutsideRTH = d.Bool("outsideRth")
	info.Hidden = d.Bool("hidden")
	info.DiscretionaryAmt = d.OptDecimal("discretionaryAmt")
	info.GoodAfterTime = d.String("goodAfterTime")
}

func decodeOpenOrder(d *wire.Decoder, sv int) Event {
	if sv < wire.VersionOrderContainer {
		d.Skip(1, "version")
	}
	var ev OpenOrder
	ev.OrderID = d.Int64("orderId")
	decodeOrderHead(d, &ev.OrderInfo, true)
	return ev
}

func decodeOpenOrderEnd(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	return OpenOrderEnd{}
}

func decodeCompletedOrder(d *wire.Decoder, _ int) Event {
	var ev CompletedOrder
	decodeOrderHead(d, &ev.OrderInfo, false)
	return ev
}

func decodeNextValidID(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	return NextValidID{OrderID: d.Int64("orderId")}
}

func decodeErrMsg(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	return ErrorMessage{
		ID:      d.Int64("id"),
		ErrCode: d.Int("errorCode"),
		Message: d.String("errorMsg"),
	}
}

/* --- account --- */

func decodeAcctValue(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	return AccountValue{
		Key:      d.String("key"),
		Value:    d.String("value"),
		Currency: d.String("currency"),
		Account:  d.String("account"),
	}
}

func decodePortfolioValue(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	var ev PortfolioValue
	ev.Contract = domain.Contract{
		ConID:                        d.Int64("conId"),
		Symbol:                       d.String("symbol"),
		SecType:                      domain.SecType(d.String("secType")),
		LastTradeDateOrContractMonth: d.String("lastTradeDate"),
		Strike:                       d.OptDecimal("strike"),
		Right:                        domain.Right(d.String("right")),
		Multiplier:                   d.String("multiplier"),
		PrimaryExchange:              d.String("primaryExchange"),
		Currency:                     d.String("currency"),
		LocalSymbol:                  d.String("localSymbol"),
		TradingClass:                 d.String("tradingClass"),
	}
	ev.Position = d.Decimal("position")
	ev.MarketPrice = d.Float("marketPrice")
	ev.MarketValue = d.Float("marketValue")
	ev.AverageCost = d.Float("averageCost")
	ev.UnrealizedPNL = d.Float("unrealizedPNL")
	ev.RealizedPNL = d.Float("realizedPNL")
	ev.Account = d.String("accountName")
	return ev
}

func decodeAcctUpdateTime(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	return AccountUpdateTime{Time: d.String("timeStamp")}
}

func decodeAcctDownloadEnd(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	return AccountDownloadEnd{Account: d.String("account")}
}

func decodeAccountSummary(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	var ev AccountSummary
	ev.ReqID = d.Int64("reqId")
	ev.Account = d.String("account")
	ev.Tag = d.String("tag")
	ev.Value = d.String("value")
	ev.Currency = d.String("currency")
	return ev
}

func decodeAccountSummaryEnd(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	var ev AccountSummaryEnd
	ev.ReqID = d.Int64("reqId")
	return ev
}

func decodeManagedAccts(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	var ev ManagedAccounts
	for _, a := range strings.Split(d.String("accountsList"), ",") {
		if a = strings.TrimSpace(a); a != "" {
			ev.Accounts = append(ev.Accounts, a)
		}
	}
	return ev
}

func decodeCurrentTime(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	return CurrentTime{Time: time.Unix(d.Int64("time"), 0).UTC()}
}

func decodeRealtimeBar(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	var ev RealtimeBar
	ev.ReqID = d.Int64("reqId")
	ev.Time = time.Unix(d.Int64("time"), 0).UTC()
	ev.Open = d.Float("open")
	ev.High = d.Float("high")
	ev.Low = d.Float("low")
	ev.Close = d.Float("close")
	ev.Volume = d.Decimal("volume")
	ev.WAP = d.Decimal("wap")
	ev.Count = d.Int("count")
	return ev
}

/* --- contracts and executions --- */

func decodeContractData(d *wire.Decoder, sv int) Event {
	if sv < wire.VersionSizeRules {
		d.Skip(1, "version")
	}
	var ev ContractDetails
	ev.ReqID = d.Int64("reqId")

	cd := &ev.Details
	cd.Contract.Symbol = d.String("symbol")
	cd.Contract.SecType = domain.SecType(d.String("secType"))
	cd.Contract.LastTradeDateOrContractMonth = d.String("lastTradeDate")
	cd.Contract.Strike = d.OptDecimal("strike")
	cd.Contract.Right = domain.Right(d.String("right"))
	cd.Contract.Exchange = d.String("exchange")
	cd.Contract.Currency = d.String("currency")
	cd.Contract.LocalSymbol = d.String("localSymbol")
	cd.MarketName = d.String("marketName")
	cd.Contract.TradingClass = d.String("tradingClass")
	cd.Contract.ConID = d.Int64("conId")
	cd.MinTick = d.Float("minTick")
	if sv >= wire.VersionMdSizeMultiplier && sv < wire.VersionSizeRules {
		cd.MdSizeMultiplier = d.Int("mdSizeMultiplier")
	}
	cd.Contract.Multiplier = d.String("multiplier")
	cd.OrderTypes = d.String("orderTypes")
	cd.ValidExchanges = d.String("validExchanges")
	cd.PriceMagnifier = d.Int("priceMagnifier")
	cd.UnderConID = d.Int64("underConId")
	cd.LongName = d.String("longName")
	cd.Contract.PrimaryExchange = d.String("primaryExchange")
	cd.ContractMonth = d.String("contractMonth")
	cd.Industry = d.String("industry")
	cd.Category = d.String("category")
	cd.Subcategory = d.String("subcategory")
	cd.TimeZoneID = d.String("timeZoneId")
	cd.TradingHours = d.String("tradingHours")
	cd.LiquidHours = d.String("liquidHours")
	cd.EvRule = d.String("evRule")
	cd.EvMultiplier = d.OptFloat("evMultiplier")

	n := d.Int("secIdListCount")
	if n < 0 {
		n = 0
	}
	for i := 0; i < n && d.Err() == nil; i++ {
		cd.SecIDList = append(cd.SecIDList, domain.TagValue{Tag: d.String("secIdTag"), Value: d.String("secIdValue")})
	}

	if sv >= wire.VersionAggGroup {
		cd.AggGroup = d.OptInt("aggGroup")
	}
	if sv >= wire.VersionUnderlyingInfo {
		cd.UnderSymbol = d.String("underSymbol")
		cd.UnderSecType = d.String("underSecType")
	}
	if sv >= wire.VersionMarketRules {
		cd.MarketRuleIDs = d.String("marketRuleIds")
	}
	if sv >= wire.VersionRealExpirationDate {
		if t := d.Date("realExpirationDate"); !t.IsZero() {
			cd.RealExpirationDate = t.Format(wire.DateLayout)
		}
	}
	if sv >= wire.VersionStockType {
		cd.StockType = d.String("stockType")
	}
	return ev
}

func decodeContractDataEnd(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	var ev ContractDetailsEnd
	ev.ReqID = d.Int64("reqId")
	return ev
}

func decodeExecutionData(d *wire.Decoder, sv int) Event {
	msgVersion := sv
	if sv < wire.VersionLastLiquidity {
		msgVersion = d.Int("version")
	}
	var ev ExecutionData
	ev.ReqID = -1
	if msgVersion >= 7 {
		ev.ReqID = d.Int64("reqId")
	}

	x := &ev.Execution
	x.OrderID = d.Int64("orderId")
	ev.Contract = decodeOrderContract(d)
	x.ExecID = d.String("execId")
	x.Time = d.String("time")
	x.AcctNumber = d.String("acctNumber")
	x.Exchange = d.String("exchange")
	x.Side = d.String("side")
	x.Shares = d.Decimal("shares")
	x.Price = d.Float("price")
	x.PermID = d.Int64("permId")
	x.ClientID = d.Int("clientId")
	x.Liquidation = d.Int("liquidation")
	x.CumQty = d.Decimal("cumQty")
	x.AvgPrice = d.Float("avgPrice")
	x.OrderRef = d.String("orderRef")
	x.EvRule = d.String("evRule")
	x.EvMultiplier = d.OptFloat("evMultiplier")
	if sv >= wire.VersionModelsSupport {
		x.ModelCode = d.String("modelCode")
	}
	if sv >= wire.VersionLastLiquidity {
		x.LastLiquidity = d.Int("lastLiquidity")
	}
	return ev
}

func decodeExecutionDataEnd(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	var ev ExecutionDataEnd
	ev.ReqID = d.Int64("reqId")
	return ev
}

func decodeCommissionReport(d *wire.Decoder, _ int) Event {
	d.Skip(1, "version")
	return CommissionReport{Report: domain.CommissionReport{
		ExecID:              d.String("execId"),
		Commission:          d.Float("commission"),
		Currency:            d.String("currency"),
		RealizedPNL:         d.OptFloat("realizedPNL"),
		Yield:               d.OptFloat("yield"),
		YieldRedemptionDate: d.OptInt("yieldRedemptionDate"),
	}}
}
