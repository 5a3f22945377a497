// Package domain holds the plain value objects passed into gateway commands
// and produced by decoded events. Nothing here touches the wire.
package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type SecType string

const (
	SecTypeStock     SecType = "STK"
	SecTypeOption    SecType = "OPT"
	SecTypeFuture    SecType = "FUT"
	SecTypeIndex     SecType = "IND"
	SecTypeFutOption SecType = "FOP"
	SecTypeCash      SecType = "CASH"
	SecTypeCFD       SecType = "CFD"
	SecTypeCombo     SecType = "BAG"
	SecTypeBond      SecType = "BOND"
	SecTypeWarrant   SecType = "WAR"
	SecTypeCommodity SecType = "CMDTY"
	SecTypeFund      SecType = "FUND"
	SecTypeCrypto    SecType = "CRYPTO"
)

type Right string

const (
	RightNone Right = ""
	RightCall Right = "C"
	RightPut  Right = "P"
)

// Contract identifies an instrument.
type Contract struct {
	ConID                        int64               `json:"con_id,omitempty"`
	Symbol                       string              `json:"symbol"`
	SecType                      SecType             `json:"sec_type"`
	LastTradeDateOrContractMonth string              `json:"last_trade_date,omitempty"`
	Strike                       decimal.NullDecimal `json:"strike"`
	Right                        Right               `json:"right,omitempty"`
	Multiplier                   string              `json:"multiplier,omitempty"`
	Exchange                     string              `json:"exchange,omitempty"`
	PrimaryExchange              string              `json:"primary_exchange,omitempty"`
	Currency                     string              `json:"currency"`
	LocalSymbol                  string              `json:"local_symbol,omitempty"`
	TradingClass                 string              `json:"trading_class,omitempty"`
	IncludeExpired               bool                `json:"include_expired,omitempty"`
	SecIDType                    string              `json:"sec_id_type,omitempty"`
	SecID                        string              `json:"sec_id,omitempty"`
	IssuerID                     string              `json:"issuer_id,omitempty"`
}

// Key is a stable identity used by caches; the contract id wins when known.
func (c Contract) Key() string {
	if c.ConID > 0 {
		return fmt.Sprintf("%d", c.ConID)
	}
	return strings.ToUpper(strings.Join([]string{
		c.Symbol, string(c.SecType), c.Exchange, c.Currency, c.LastTradeDateOrContractMonth, string(c.Right), c.Strike.Decimal.String(),
	}, ":"))
}

// TagValue is a generic key/value option.
type TagValue struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// ContractDetails is the full description returned by a contract details request.
type ContractDetails struct {
	Contract           Contract   `json:"contract"`
	MarketName         string     `json:"market_name"`
	MinTick            float64    `json:"min_tick"`
	MdSizeMultiplier   int        `json:"md_size_multiplier,omitempty"`
	OrderTypes         string     `json:"order_types"`
	ValidExchanges     string     `json:"valid_exchanges"`
	PriceMagnifier     int        `json:"price_magnifier"`
	UnderConID         int64      `json:"under_con_id,omitempty"`
	LongName           string     `json:"long_name"`
	ContractMonth      string     `json:"contract_month,omitempty"`
	Industry           string     `json:"industry,omitempty"`
	Category           string     `json:"category,omitempty"`
	Subcategory        string     `json:"subcategory,omitempty"`
	TimeZoneID         string     `json:"time_zone_id,omitempty"`
	TradingHours       string     `json:"trading_hours,omitempty"`
	LiquidHours        string     `json:"liquid_hours,omitempty"`
	EvRule             string     `json:"ev_rule,omitempty"`
	EvMultiplier       *float64   `json:"ev_multiplier,omitempty"`
	SecIDList          []TagValue `json:"sec_id_list,omitempty"`
	AggGroup           *int       `json:"agg_group,omitempty"`
	UnderSymbol        string     `json:"under_symbol,omitempty"`
	UnderSecType       string     `json:"under_sec_type,omitempty"`
	MarketRuleIDs      string     `json:"market_rule_ids,omitempty"`
	RealExpirationDate string     `json:"real_expiration_date,omitempty"`
	StockType          string     `json:"stock_type,omitempty"`
}
