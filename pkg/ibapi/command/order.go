package command

import (
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/domain"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/iberr"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/wire"
)

func validateOrder(c PlaceOrder) error {
	k, o := c.Contract, c.Order
	switch {
	case c.OrderID < 0:
		return iberr.Encoding("negative order id %d", c.OrderID)
	case k.ConID <= 0 && k.Symbol == "":
		return iberr.Encoding("order contract needs a con id or symbol")
	case k.ConID <= 0 && k.SecType == "":
		return iberr.Encoding("order contract for %s has no security type", k.Symbol)
	case k.SecType == domain.SecTypeCombo:
		return iberr.Encoding("combo orders are not supported")
	case o.Action == "":
		return iberr.Encoding("order has no action")
	case o.OrderType == "":
		return iberr.Encoding("order has no type")
	case o.TotalQuantity.IsNegative():
		return iberr.Encoding("negative order quantity %s", o.TotalQuantity)
	case o.LmtPrice.Valid && o.LmtPrice.Decimal.IsNegative() && o.OrderType != domain.OrderTypeRelative:
		return iberr.Encoding("negative limit price %s", o.LmtPrice.Decimal)
	case o.CashQty.Valid && o.CashQty.Decimal.IsNegative():
		return iberr.Encoding("negative cash quantity %s", o.CashQty.Decimal)
	}
	return nil
}

// encodePlaceOrder has no version marker: field 1 is always the order id.
func encodePlaceOrder(c PlaceOrder, sv int) (*wire.Encoder, error) {
	if err := validateOrder(c); err != nil {
		return nil, err
	}
	k, o := c.Contract, c.Order

	e := wire.NewEncoder(CodePlaceOrder)
	e.Int64(c.OrderID)

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
	e.String(k.SecIDType)
	e.String(k.SecID)

	e.String(string(o.Action))
	e.Decimal(o.TotalQuantity)
	e.String(string(o.OrderType))
	e.OptDecimal(o.LmtPrice)
	e.OptDecimal(o.AuxPrice)
	e.String(string(o.TIF))
	e.String(o.OcaGroup)
	e.String(o.Account)
	e.String(o.OpenClose)
	e.Int(o.Origin)
	e.String(o.OrderRef)
	e.Bool(o.Transmit)
	e.Int64(o.ParentID)
	e.Bool(o.BlockOrder)
	e.Bool(o.SweepToFill)
	e.Int(o.DisplaySize)
	e.Int(o.TriggerMethod)
	e.Bool(o.OutsideRTH)
	e.Bool(o.Hidden)

	e.Empty() // deprecated shares allocation
	e.OptDecimal(o.DiscretionaryAmt)
	e.Time(o.GoodAfterTime)
	e.Time(o.GoodTillDate)
	e.String(o.FaGroup)
	e.String(o.FaMethod)
	e.String(o.FaPercentage)
	if sv < wire.VersionFAProfileDesupport {
		e.String(o.FaProfile)
	}
	if sv >= wire.VersionModelsSupport {
		e.String(o.ModelCode)
	}

	e.Int(0)  // short sale slot
	e.Empty() // designated location
	e.Int(-1) // exempt code
	e.Int(o.OcaType)
	e.Empty() // rule 80A
	e.Empty() // settling firm
	e.Bool(o.AllOrNone)
	e.OptInt(o.MinQty)
	e.OptFloat(o.PercentOffset)
	e.Bool(false) // e-trade only
	e.Bool(false) // firm quote only
	e.Empty()     // nbbo price cap
	e.Int(0)      // auction strategy
	e.Empty()     // starting price
	e.Empty()     // stock ref price
	e.Empty()     // delta
	e.Empty()     // stock range lower
	e.Empty()     // stock range upper
	e.Bool(false) // override percentage constraints
	e.Empty()     // volatility
	e.Empty()     // volatility type
	e.Empty()     // delta neutral order type
	e.Empty()     // delta neutral aux price
	e.Bool(false) // continuous update
	e.Empty()     // reference price type
	e.OptDecimal(o.TrailStopPrice)
	e.OptFloat(o.TrailingPercent)
	e.Empty()     // scale init level size
	e.Empty()     // scale subs level size
	e.Empty()     // scale price increment
	e.Empty()     // scale table
	e.Empty()     // active start time
	e.Empty()     // active stop time
	e.Empty()     // hedge type
	e.Bool(false) // opt out smart routing
	e.Empty()     // clearing account
	e.Empty()     // clearing intent
	e.Bool(o.NotHeld)
	e.Bool(false) // delta neutral contract

	e.String(o.AlgoStrategy)
	if o.AlgoStrategy != "" {
		e.Int(len(o.AlgoParams))
		for _, p := range o.AlgoParams {
			e.String(p.Tag)
			e.String(p.Value)
		}
	}
	e.String(o.AlgoID)
	e.Bool(o.WhatIf)
	e.Empty()     // misc options
	e.Bool(false) // solicited
	e.Bool(false) // randomize size
	e.Bool(false) // randomize price
	e.Int(0)      // conditions
	e.Empty()     // adjusted order type
	e.Empty()     // trigger price
	e.Empty()     // limit price offset
	e.Empty()     // adjusted stop price
	e.Empty()     // adjusted stop limit price
	e.Empty()     // adjusted trailing amount
	e.Int(0)      // adjustable trailing unit
	e.Empty()     // ext operator
	e.Empty()     // soft dollar tier name
	e.Empty()     // soft dollar tier value
	e.OptDecimal(o.CashQty)
	e.Empty()     // mifid2 decision maker
	e.Empty()     // mifid2 decision algo
	e.Empty()     // mifid2 execution trader
	e.Empty()     // mifid2 execution algo
	e.Bool(false) // dont use auto price for hedge
	if sv >= wire.VersionOrderContainer {
		e.Bool(false) // oms container
	}
	e.Bool(false) // discretionary up to limit price
	if sv >= wire.VersionPriceMgmtAlgo {
		if o.UsePriceMgmtAlgo == nil {
			e.Empty()
		} else {
			e.Bool(*o.UsePriceMgmtAlgo)
		}
	}
	if sv >= wire.VersionDuration {
		e.Empty()
	}
	if sv >= wire.VersionPostToATS {
		e.Empty()
	}
	if sv >= wire.VersionAutoCancelParent {
		e.Bool(false)
	}
	if sv >= wire.VersionAdvancedOrderReject {
		e.Empty()
	}
	if sv >= wire.VersionManualOrderTime {
		e.Empty()
	}
	return e, nil
}
