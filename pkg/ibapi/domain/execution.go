package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionFilter narrows an executions request. Zero values match everything.
type ExecutionFilter struct {
	ClientID *int      `json:"client_id,omitempty"`
	AcctCode string    `json:"acct_code,omitempty"`
	Time     time.Time `json:"time,omitempty"`
	Symbol   string    `json:"symbol,omitempty"`
	SecType  SecType   `json:"sec_type,omitempty"`
	Exchange string    `json:"exchange,omitempty"`
	Side     string    `json:"side,omitempty"`
}

// Execution is a single fill.
type Execution struct {
	OrderID       int64           `json:"order_id"`
	ExecID        string          `json:"exec_id"`
	Time          string          `json:"time"`
	AcctNumber    string          `json:"acct_number"`
	Exchange      string          `json:"exchange"`
	Side          string          `json:"side"`
	Shares        decimal.Decimal `json:"shares"`
	Price         float64         `json:"price"`
	PermID        int64           `json:"perm_id"`
	ClientID      int             `json:"client_id"`
	Liquidation   int             `json:"liquidation"`
	CumQty        decimal.Decimal `json:"cum_qty"`
	AvgPrice      float64         `json:"avg_price"`
	OrderRef      string          `json:"order_ref,omitempty"`
	EvRule        string          `json:"ev_rule,omitempty"`
	EvMultiplier  *float64        `json:"ev_multiplier,omitempty"`
	ModelCode     string          `json:"model_code,omitempty"`
	LastLiquidity int             `json:"last_liquidity,omitempty"`
}

// CommissionReport follows every execution.
type CommissionReport struct {
	ExecID              string   `json:"exec_id"`
	Commission          float64  `json:"commission"`
	Currency            string   `json:"currency"`
	RealizedPNL         *float64 `json:"realized_pnl,omitempty"`
	Yield               *float64 `json:"yield,omitempty"`
	YieldRedemptionDate *int     `json:"yield_redemption_date,omitempty"`
}
