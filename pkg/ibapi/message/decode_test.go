package message

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/domain"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/iberr"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/wire"
)

func payload(t *testing.T, fields ...string) []byte {
	t.Helper()
	frame, err := wire.EncodeFields(fields)
	require.NoError(t, err)
	return frame[wire.HeaderSize:]
}

func TestDecodeOrderStatusVersions(t *testing.T) {
	t.Run("before market cap price", func(t *testing.T) {
		ev, err := Decode(payload(t, "3", "6", "7", "Submitted", "0", "100", "0", "1234", "0", "0", "1", ""), 120)
		require.NoError(t, err)
		st := ev.(OrderStatus)
		assert.Equal(t, int64(7), st.OrderID)
		assert.Equal(t, domain.OrderSubmitted, st.Status)
		assert.True(t, st.Remaining.Equal(decimal.NewFromInt(100)))
		assert.Equal(t, int64(1234), st.PermID)
		assert.Nil(t, st.MktCapPrice)
	})
	t.Run("with market cap price", func(t *testing.T) {
		ev, err := Decode(payload(t, "3", "7", "Filled", "100", "0", "150.25", "1234", "0", "150.25", "1", "", "151.5"), 150)
		require.NoError(t, err)
		st := ev.(OrderStatus)
		assert.Equal(t, int64(7), st.OrderID)
		assert.True(t, st.Status.Done())
		assert.Equal(t, 150.25, st.AvgFillPrice)
		require.NotNil(t, st.MktCapPrice)
		assert.Equal(t, 151.5, *st.MktCapPrice)
	})
	t.Run("old layout at new version is rejected", func(t *testing.T) {
		_, err := Decode(payload(t, "3", "6", "7", "Submitted", "0", "100", "0", "1234", "0", "0", "1", ""), 150)
		assert.ErrorIs(t, err, iberr.ErrInvalidField)
	})
	_, ok := OrderStatus{}.RequestID()
	assert.False(t, ok)
}

func contractDataFields(sv int) []string {
	f := []string{"10"}
	if sv < wire.VersionSizeRules {
		f = append(f, "8")
	}
	f = append(f, "3", "AAPL", "STK", "", "0", "", "SMART", "USD", "AAPL", "NMS", "NMS", "265598", "0.01")
	if sv >= wire.VersionMdSizeMultiplier && sv < wire.VersionSizeRules {
		f = append(f, "100")
	}
	f = append(f, "", "LMT,MKT", "SMART,NASDAQ", "1", "0", "APPLE INC", "NASDAQ", "", "Technology",
		"Computers", "Computers", "US/Eastern", "0930-1600", "0930-1600", "", "", "1", "ISIN", "US0378331005")
	if sv >= wire.VersionAggGroup {
		f = append(f, "1")
	}
	if sv >= wire.VersionUnderlyingInfo {
		f = append(f, "", "")
	}
	if sv >= wire.VersionMarketRules {
		f = append(f, "26")
	}
	if sv >= wire.VersionRealExpirationDate {
		f = append(f, "20240621")
	}
	if sv >= wire.VersionStockType {
		f = append(f, "COMMON")
	}
	return f
}

func TestDecodeContractDataVersions(t *testing.T) {
	for _, sv := range []int{100, 120, 126, 150, 164, 176} {
		ev, err := Decode(payload(t, contractDataFields(sv)...), sv)
		require.NoError(t, err, "server version %d", sv)

		cd := ev.(ContractDetails)
		id, ok := cd.RequestID()
		assert.True(t, ok)
		assert.Equal(t, int64(3), id)
		assert.Equal(t, int64(265598), cd.Details.Contract.ConID)
		assert.Equal(t, "NASDAQ", cd.Details.Contract.PrimaryExchange)
		assert.Equal(t, "APPLE INC", cd.Details.LongName)
		assert.Equal(t, []domain.TagValue{{Tag: "ISIN", Value: "US0378331005"}}, cd.Details.SecIDList)

		assert.Equal(t, sv >= wire.VersionAggGroup, cd.Details.AggGroup != nil, "agg group at %d", sv)
		if sv >= wire.VersionMarketRules {
			assert.Equal(t, "26", cd.Details.MarketRuleIDs)
		} else {
			assert.Empty(t, cd.Details.MarketRuleIDs)
		}
		if sv >= wire.VersionRealExpirationDate {
			assert.Equal(t, "20240621", cd.Details.RealExpirationDate)
		}
		if sv >= wire.VersionMdSizeMultiplier && sv < wire.VersionSizeRules {
			assert.Equal(t, 100, cd.Details.MdSizeMultiplier)
		}
	}
}

func TestDecodeExecutionData(t *testing.T) {
	contract := []string{"265598", "AAPL", "STK", "", "0", "", "", "ISLAND", "USD", "AAPL", "NMS"}
	exec := []string{"0001f4e8.65f0.01.01", "20240305  14:30:00", "DU1", "ISLAND", "BOT", "100", "150.25", "1234", "1", "0", "100", "150.25", "", "", ""}

	t.Run("versioned", func(t *testing.T) {
		f := append([]string{"11", "10", "5", "7"}, contract...)
		f = append(f, exec...)
		f = append(f, "") // model code
		ev, err := Decode(payload(t, f...), 120)
		require.NoError(t, err)
		x := ev.(ExecutionData)
		id, _ := x.RequestID()
		assert.Equal(t, int64(5), id)
		assert.Equal(t, int64(7), x.Execution.OrderID)
		assert.Equal(t, "20240305  14:30:00", x.Execution.Time)
		assert.True(t, x.Execution.Shares.Equal(decimal.NewFromInt(100)))
		assert.Equal(t, "ISLAND", x.Contract.Exchange)
	})
	t.Run("unversioned with last liquidity", func(t *testing.T) {
		f := append([]string{"11", "5", "7"}, contract...)
		f = append(f, exec...)
		f = append(f, "", "2")
		ev, err := Decode(payload(t, f...), 150)
		require.NoError(t, err)
		assert.Equal(t, 2, ev.(ExecutionData).Execution.LastLiquidity)
	})
	t.Run("live fill is not correlated", func(t *testing.T) {
		f := append([]string{"11", "-1", "7"}, contract...)
		f = append(f, exec...)
		f = append(f, "", "2")
		ev, err := Decode(payload(t, f...), 176)
		require.NoError(t, err)
		_, ok := ev.RequestID()
		assert.False(t, ok)
		assert.Equal(t, int64(7), ev.(ExecutionData).Execution.OrderID)
	})
}

func TestDecodeSimpleMessages(t *testing.T) {
	cases := []struct {
		name   string
		fields []string
		check  func(t *testing.T, ev Event)
	}{
		{"tick price", []string{"1", "6", "4", "1", "150.5", "200", "3"}, func(t *testing.T, ev Event) {
			tp := ev.(TickPrice)
			assert.Equal(t, 150.5, tp.Price)
			assert.True(t, tp.CanAutoExecute)
			assert.True(t, tp.PastLimit)
			assert.False(t, tp.PreOpen)
			id, ok := tp.RequestID()
			assert.True(t, ok)
			assert.Equal(t, int64(4), id)
		}},
		{"tick size", []string{"2", "6", "4", "0", "300"}, func(t *testing.T, ev Event) {
			assert.True(t, ev.(TickSize).Size.Equal(decimal.NewFromInt(300)))
		}},
		{"tick string", []string{"46", "6", "4", "45", "1709650000"}, func(t *testing.T, ev Event) {
			assert.Equal(t, "1709650000", ev.(TickString).Value)
		}},
		{"tick generic", []string{"45", "6", "4", "49", "0.5"}, func(t *testing.T, ev Event) {
			assert.Equal(t, 0.5, ev.(TickGeneric).Value)
		}},
		{"snapshot end", []string{"57", "1", "4"}, func(t *testing.T, ev Event) {
			id, _ := ev.RequestID()
			assert.Equal(t, int64(4), id)
		}},
		{"market data type", []string{"58", "1", "4", "3"}, func(t *testing.T, ev Event) {
			assert.Equal(t, domain.MarketDataDelayed, ev.(MarketDataType).Kind)
		}},
		{"error with id", []string{"4", "2", "9", "200", "No security definition"}, func(t *testing.T, ev Event) {
			em := ev.(ErrorMessage)
			assert.Equal(t, 200, em.ErrCode)
			id, ok := em.RequestID()
			assert.True(t, ok)
			assert.Equal(t, int64(9), id)
		}},
		{"error without id", []string{"4", "2", "-1", "2104", "Market data farm connection is OK"}, func(t *testing.T, ev Event) {
			_, ok := ev.RequestID()
			assert.False(t, ok)
		}},
		{"next valid id", []string{"9", "1", "1000"}, func(t *testing.T, ev Event) {
			assert.Equal(t, int64(1000), ev.(NextValidID).OrderID)
		}},
		{"current time", []string{"49", "1", "1709650000"}, func(t *testing.T, ev Event) {
			assert.Equal(t, int64(1709650000), ev.(CurrentTime).Time.Unix())
		}},
		{"realtime bar", []string{"50", "3", "8", "1709650000", "150.1", "150.9", "149.8", "150.5", "1200", "150.42", "37"}, func(t *testing.T, ev Event) {
			bar := ev.(RealtimeBar)
			id, ok := bar.RequestID()
			assert.True(t, ok)
			assert.Equal(t, int64(8), id)
			assert.Equal(t, int64(1709650000), bar.Time.Unix())
			assert.Equal(t, 150.9, bar.High)
			assert.Equal(t, 149.8, bar.Low)
			assert.True(t, bar.Volume.Equal(decimal.NewFromInt(1200)))
			assert.Equal(t, "150.42", bar.WAP.String())
			assert.Equal(t, 37, bar.Count)
		}},
		{"managed accounts", []string{"15", "1", "DU1,DU2,"}, func(t *testing.T, ev Event) {
			assert.Equal(t, []string{"DU1", "DU2"}, ev.(ManagedAccounts).Accounts)
		}},
		{"account value", []string{"6", "2", "NetLiquidation", "100000.00", "USD", "DU1"}, func(t *testing.T, ev Event) {
			assert.Equal(t, AccountValue{Key: "NetLiquidation", Value: "100000.00", Currency: "USD", Account: "DU1"}, ev)
		}},
		{"portfolio value", []string{"7", "8", "265598", "AAPL", "STK", "", "0", "", "", "NASDAQ", "USD", "AAPL", "NMS",
			"100", "150.0", "15000.0", "140.0", "1000.0", "0.0", "DU1"}, func(t *testing.T, ev Event) {
			pv := ev.(PortfolioValue)
			assert.Equal(t, "NASDAQ", pv.Contract.PrimaryExchange)
			assert.True(t, pv.Position.Equal(decimal.NewFromInt(100)))
			assert.Equal(t, "DU1", pv.Account)
		}},
		{"account update time", []string{"8", "1", "14:30"}, func(t *testing.T, ev Event) {
			assert.Equal(t, "14:30", ev.(AccountUpdateTime).Time)
		}},
		{"account download end", []string{"54", "1", "DU1"}, func(t *testing.T, ev Event) {
			assert.Equal(t, "DU1", ev.(AccountDownloadEnd).Account)
		}},
		{"account summary", []string{"63", "1", "2", "DU1", "NetLiquidation", "100000.00", "USD"}, func(t *testing.T, ev Event) {
			as := ev.(AccountSummary)
			assert.Equal(t, "NetLiquidation", as.Tag)
			id, _ := as.RequestID()
			assert.Equal(t, int64(2), id)
		}},
		{"account summary end", []string{"64", "1", "2"}, func(t *testing.T, ev Event) {
			assert.IsType(t, AccountSummaryEnd{}, ev)
		}},
		{"contract data end", []string{"52", "1", "3"}, func(t *testing.T, ev Event) {
			id, _ := ev.RequestID()
			assert.Equal(t, int64(3), id)
		}},
		{"execution data end", []string{"55", "1", "5"}, func(t *testing.T, ev Event) {
			id, _ := ev.RequestID()
			assert.Equal(t, int64(5), id)
		}},
		{"commission report", []string{"59", "1", "0001f4e8.65f0.01.01", "1.0", "USD", "1.7976931348623157E308", "1.7976931348623157E308", "2147483647"},
			func(t *testing.T, ev Event) {
				cr := ev.(CommissionReport).Report
				assert.Equal(t, 1.0, cr.Commission)
				assert.Nil(t, cr.RealizedPNL)
				assert.Nil(t, cr.YieldRedemptionDate)
			}},
		{"open order end", []string{"53", "1"}, func(t *testing.T, ev Event) {
			assert.IsType(t, OpenOrderEnd{}, ev)
		}},
		{"completed orders end", []string{"102"}, func(t *testing.T, ev Event) {
			assert.IsType(t, CompletedOrdersEnd{}, ev)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Decode(payload(t, tc.fields...), 150)
			require.NoError(t, err)
			assert.Equal(t, atoi(t, tc.fields[0]), ev.Code())
			tc.check(t, ev)
		})
	}
}

func TestDecodeOrders(t *testing.T) {
	contract := []string{"265598", "AAPL", "STK", "", "0", "", "", "SMART", "USD", "AAPL", "NMS"}
	head := []string{"BUY", "100", "LMT", "150.0", "1.7976931348623157E308", "DAY", "", "DU1", "O", "0", "ref-1"}

	open := append([]string{"5", "7"}, contract...)
	open = append(open, head...)
	open = append(open, "1", "1234", "0", "0", "", "", "more", "fields")

	ev, err := Decode(payload(t, open...), 150)
	require.NoError(t, err)
	oo := ev.(OpenOrder)
	assert.Equal(t, int64(7), oo.OrderID)
	assert.Equal(t, "AAPL", oo.Contract.Symbol)
	assert.True(t, oo.LmtPrice.Valid)
	assert.False(t, oo.AuxPrice.Valid)
	assert.Equal(t, 1, oo.ClientID)
	assert.Equal(t, int64(1234), oo.PermID)

	completed := append([]string{"101"}, contract...)
	completed = append(completed, head...)
	completed = append(completed, "1234", "0", "0", "", "")
	ev, err = Decode(payload(t, completed...), 150)
	require.NoError(t, err)
	co := ev.(CompletedOrder)
	assert.Equal(t, int64(1234), co.PermID)
	assert.Equal(t, "ref-1", co.OrderRef)
}

func TestDecodeErrors(t *testing.T) {
	t.Run("truncated", func(t *testing.T) {
		_, err := Decode(payload(t, "9", "1"), 150)
		assert.ErrorIs(t, err, iberr.ErrTruncatedMessage)
	})
	t.Run("unknown code", func(t *testing.T) {
		ev, err := Decode(payload(t, "9999", "a", "b"), 150)
		assert.ErrorIs(t, err, iberr.ErrUnknownMessageType)
		assert.Equal(t, Unknown{MsgCode: 9999, Fields: []string{"a", "b"}}, ev)
	})
	t.Run("bad code", func(t *testing.T) {
		_, err := Decode(payload(t, "x"), 150)
		assert.ErrorIs(t, err, iberr.ErrInvalidField)
	})
	t.Run("scientific decimal", func(t *testing.T) {
		_, err := Decode(payload(t, "2", "6", "4", "0", "1e3"), 150)
		assert.ErrorIs(t, err, iberr.ErrInvalidField)
	})
	t.Run("trailing fields ignored", func(t *testing.T) {
		ev, err := Decode(payload(t, "9", "1", "5", "extra", "more"), 150)
		require.NoError(t, err)
		assert.Equal(t, NextValidID{OrderID: 5}, ev)
	})
	t.Run("known", func(t *testing.T) {
		assert.True(t, Known(CodeOrderStatus))
		assert.False(t, Known(9999))
	})
}
