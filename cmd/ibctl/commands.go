// cmd/ibctl/commands.go
package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/client"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/domain"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/message"
)

type contractFlags struct {
	secType  string
	exchange string
	primary  string
	currency string
	expiry   string
}

func (f *contractFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.secType, "sec-type", "STK", "security type")
	cmd.Flags().StringVar(&f.exchange, "exchange", "SMART", "exchange")
	cmd.Flags().StringVar(&f.primary, "primary-exchange", "", "primary exchange")
	cmd.Flags().StringVar(&f.currency, "currency", "USD", "currency")
	cmd.Flags().StringVar(&f.expiry, "expiry", "", "last trade date or contract month")
}

func (f *contractFlags) contract(symbol string) domain.Contract {
	return domain.Contract{
		Symbol:                       strings.ToUpper(symbol),
		SecType:                      domain.SecType(strings.ToUpper(f.secType)),
		Exchange:                     f.exchange,
		PrimaryExchange:              f.primary,
		Currency:                     f.currency,
		LastTradeDateOrContractMonth: f.expiry,
	}
}

func timeCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "time",
		Short: "Print the gateway's current time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withConn(cmd, gf, func(ctx context.Context, c *client.Conn) error {
				t, err := c.CurrentTime(ctx)
				if err != nil {
					return err
				}
				return printJSON(map[string]interface{}{
					"time":            t,
					"server_version":  c.ServerVersion(),
					"connection_time": c.ConnectionTime(),
					"accounts":        c.Accounts(),
				})
			})
		},
	}
}

func contractCmd(gf *globalFlags) *cobra.Command {
	var cf contractFlags
	cmd := &cobra.Command{
		Use:   "contract SYMBOL",
		Short: "Look up contract details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(cmd, gf, func(ctx context.Context, c *client.Conn) error {
				out, err := c.ContractDetails(ctx, cf.contract(args[0]))
				if err != nil {
					return err
				}
				return printJSON(out)
			})
		},
	}
	cf.bind(cmd)
	return cmd
}

func executionsCmd(gf *globalFlags) *cobra.Command {
	var filter domain.ExecutionFilter
	cmd := &cobra.Command{
		Use:   "executions",
		Short: "List today's executions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withConn(cmd, gf, func(ctx context.Context, c *client.Conn) error {
				out, err := c.Executions(ctx, &filter)
				if err != nil {
					return err
				}
				return printJSON(out)
			})
		},
	}
	cmd.Flags().StringVar(&filter.AcctCode, "account", "", "account code")
	cmd.Flags().StringVar(&filter.Symbol, "symbol", "", "symbol")
	cmd.Flags().StringVar(&filter.Side, "side", "", "BUY or SELL")
	return cmd
}

func ordersCmd(gf *globalFlags) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List open or completed orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := parseOrderKind(kind)
			if err != nil {
				return err
			}
			return withConn(cmd, gf, func(ctx context.Context, c *client.Conn) error {
				out, err := c.Orders(ctx, k)
				if err != nil {
					return err
				}
				return printJSON(out)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "open", "open | all-open | completed")
	return cmd
}

// parseOrderKind принимает только листинги с маркером конца; auto-open — отдельная команда.
func parseOrderKind(s string) (domain.OrderKind, error) {
	for _, k := range []domain.OrderKind{domain.OrdersOpen, domain.OrdersAllOpen, domain.OrdersCompleted} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown order kind %q", s)
}

func summaryCmd(gf *globalFlags) *cobra.Command {
	var (
		group string
		tags  []string
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print one account summary snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(tags) == 0 {
				tags = domain.AccountSummaryTags
			}
			return withConn(cmd, gf, func(ctx context.Context, c *client.Conn) error {
				sub, err := c.AccountSummary(ctx, group, tags)
				if err != nil {
					return err
				}
				defer func() { _ = sub.Cancel(context.Background()) }()
				ctx, cancel := context.WithTimeout(ctx, gf.timeout)
				defer cancel()

				var rows []message.AccountSummary
				for {
					ev, err := sub.Next(ctx)
					if err != nil {
						return err
					}
					switch e := ev.(type) {
					case message.AccountSummary:
						rows = append(rows, e)
					case message.AccountSummaryEnd:
						return printJSON(rows)
					}
				}
			})
		},
	}
	cmd.Flags().StringVar(&group, "group", "All", "account group")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "summary tags (default: all standard tags)")
	return cmd
}

func quoteCmd(gf *globalFlags) *cobra.Command {
	var (
		cf    contractFlags
		ticks []string
	)
	cmd := &cobra.Command{
		Use:   "quote SYMBOL",
		Short: "Request a market data snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(cmd, gf, func(ctx context.Context, c *client.Conn) error {
				sub, err := c.MarketData(ctx, client.MarketDataRequest{
					Contract:     cf.contract(args[0]),
					GenericTicks: ticks,
					Snapshot:     true,
				})
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(ctx, gf.timeout)
				defer cancel()

				var out []message.Event
				for {
					ev, err := sub.Next(ctx)
					if err != nil {
						return err
					}
					if _, end := ev.(message.TickSnapshotEnd); end {
						return printJSON(out)
					}
					out = append(out, ev)
				}
			})
		},
	}
	cf.bind(cmd)
	cmd.Flags().StringSliceVar(&ticks, "generic-ticks", nil, "generic tick list")
	return cmd
}

func placeCmd(gf *globalFlags) *cobra.Command {
	var (
		cf        contractFlags
		action    string
		qty       string
		orderType string
		limit     string
		tif       string
		account   string
		wait      bool
	)
	cmd := &cobra.Command{
		Use:   "place SYMBOL",
		Short: "Place an order and follow its status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := buildOrder(action, qty, orderType, limit, tif, account)
			if err != nil {
				return err
			}
			return withConn(cmd, gf, func(ctx context.Context, c *client.Conn) error {
				id, err := c.NextOrderID()
				if errors.Is(err, client.ErrNoOrderID) {
					id, err = c.RequestIDs(ctx)
				}
				if err != nil {
					return err
				}
				ticket, err := c.PlaceOrder(ctx, id, cf.contract(args[0]), order)
				if err != nil {
					return err
				}
				defer func() { _ = ticket.Cancel(context.Background()) }()

				st, err := ticket.WaitStatus(ctx, func(s message.OrderStatus) bool {
					return !wait || s.Status.Done()
				})
				if err != nil {
					return err
				}
				return printJSON(st)
			})
		},
	}
	cf.bind(cmd)
	cmd.Flags().StringVar(&action, "action", "BUY", "BUY | SELL | SSHORT")
	cmd.Flags().StringVar(&qty, "qty", "", "total quantity (decimal)")
	cmd.Flags().StringVar(&orderType, "type", "LMT", "order type")
	cmd.Flags().StringVar(&limit, "limit", "", "limit price")
	cmd.Flags().StringVar(&tif, "tif", "DAY", "time in force")
	cmd.Flags().StringVar(&account, "account", "", "account")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for a final status (Filled, Cancelled, Inactive)")
	_ = cmd.MarkFlagRequired("qty")
	return cmd
}

func buildOrder(action, qty, orderType, limit, tif, account string) (domain.Order, error) {
	q, err := decimal.NewFromString(qty)
	if err != nil || !q.IsPositive() {
		return domain.Order{}, fmt.Errorf("bad --qty %q", qty)
	}
	o := domain.Order{
		Action:        domain.Action(strings.ToUpper(action)),
		TotalQuantity: q,
		OrderType:     domain.OrderType(strings.ToUpper(orderType)),
		TIF:           domain.TimeInForce(strings.ToUpper(tif)),
		Account:       account,
		Transmit:      true,
	}
	if limit != "" {
		p, err := decimal.NewFromString(limit)
		if err != nil {
			return domain.Order{}, fmt.Errorf("bad --limit %q", limit)
		}
		o.LmtPrice = decimal.NewNullDecimal(p)
	}
	if o.OrderType == domain.OrderTypeLimit && !o.LmtPrice.Valid {
		return domain.Order{}, errors.New("limit orders need --limit")
	}
	return o, nil
}

func cancelCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ORDER_ID",
		Short: "Cancel an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("bad order id %q", args[0])
			}
			return withConn(cmd, gf, func(ctx context.Context, c *client.Conn) error {
				return c.CancelOrder(ctx, id)
			})
		},
	}
}
