// cmd/ibctl/stream.go
package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/client"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/domain"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/message"
)

func barsCmd(gf *globalFlags) *cobra.Command {
	var (
		cf     contractFlags
		what   string
		useRTH bool
		count  int
	)
	cmd := &cobra.Command{
		Use:   "bars SYMBOL",
		Short: "Stream five-second realtime bars",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := parseBarSource(what)
			if err != nil {
				return err
			}
			return withConn(cmd, gf, func(ctx context.Context, c *client.Conn) error {
				sub, err := c.RealtimeBars(ctx, client.RealtimeBarsRequest{
					Contract:   cf.contract(args[0]),
					WhatToShow: src,
					UseRTH:     useRTH,
				})
				if err != nil {
					return err
				}
				defer func() { _ = sub.Cancel(context.Background()) }()

				for n := 0; count <= 0 || n < count; {
					ev, err := sub.Next(ctx)
					if err != nil {
						if errors.Is(err, context.Canceled) {
							return nil
						}
						return err
					}
					if bar, ok := ev.(message.RealtimeBar); ok {
						if err := printJSON(bar); err != nil {
							return err
						}
						n++
					}
				}
				return nil
			})
		},
	}
	cf.bind(cmd)
	cmd.Flags().StringVar(&what, "what", "TRADES", "TRADES | MIDPOINT | BID | ASK")
	cmd.Flags().BoolVar(&useRTH, "rth", false, "regular trading hours only")
	cmd.Flags().IntVar(&count, "count", 0, "stop after N bars (0: until interrupted)")
	return cmd
}

func parseBarSource(s string) (domain.BarSource, error) {
	src := domain.BarSource(strings.ToUpper(s))
	if !src.Valid() {
		return "", fmt.Errorf("unknown bar source %q", s)
	}
	return src, nil
}

func autoOpenCmd(gf *globalFlags) *cobra.Command {
	var (
		bind     bool
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "auto-open",
		Short: "Forward orders placed in TWS and print them",
		Long: "Requests auto-open orders (client id 0 only) and prints the forwarded " +
			"OpenOrder and OrderStatus events until --duration passes or the command is interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withConn(cmd, gf, func(ctx context.Context, c *client.Conn) error {
				if err := c.AutoOpenOrders(ctx, bind); err != nil {
					return err
				}
				if duration > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, duration)
					defer cancel()
				}
				for {
					select {
					case ev := <-c.Events():
						if !isOrderEvent(ev) {
							continue
						}
						if err := printJSON(map[string]interface{}{"type": fmt.Sprintf("%T", ev), "event": ev}); err != nil {
							return err
						}
					case <-c.Done():
						return c.Err()
					case <-ctx.Done():
						return nil
					}
				}
			})
		},
	}
	cmd.Flags().BoolVar(&bind, "bind", true, "bind forwarded orders to this client")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0: until interrupted)")
	return cmd
}

func isOrderEvent(ev message.Event) bool {
	switch ev.(type) {
	case message.OpenOrder, message.OrderStatus, message.ExecutionData, message.CommissionReport:
		return true
	}
	return false
}
