// cmd/ibctl/main.go
//
// ibctl — консольный клиент шлюза для разовых запросов.
// Команда tail читает топики ib-collector из Kafka.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/client"
	"github.com/YaganovValera/ibkr-collector/pkg/logger"
)

type globalFlags struct {
	addr     string
	clientID int
	timeout  time.Duration
	pacing   bool
	logLevel string
}

func main() {
	var gf globalFlags

	root := &cobra.Command{
		Use:           "ibctl",
		Short:         "Talk to TWS / IB Gateway from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&gf.addr, "addr", "127.0.0.1:4002", "gateway host:port")
	root.PersistentFlags().IntVar(&gf.clientID, "client-id", 99, "API client id")
	root.PersistentFlags().DurationVar(&gf.timeout, "timeout", 15*time.Second, "connect and request timeout")
	root.PersistentFlags().BoolVar(&gf.pacing, "pacing", false, "ask the gateway to pace requests (+PACEAPI)")
	root.PersistentFlags().StringVar(&gf.logLevel, "log-level", "warn", "debug | info | warn | error")

	root.AddCommand(
		timeCmd(&gf),
		contractCmd(&gf),
		executionsCmd(&gf),
		ordersCmd(&gf),
		autoOpenCmd(&gf),
		summaryCmd(&gf),
		quoteCmd(&gf),
		barsCmd(&gf),
		placeCmd(&gf),
		cancelCmd(&gf),
		tailCmd(&gf),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ibctl: %v\n", err)
		os.Exit(1)
	}
}

// withConn открывает сессию, выполняет fn и закрывает сессию.
func withConn(cmd *cobra.Command, gf *globalFlags, fn func(ctx context.Context, c *client.Conn) error) error {
	log, err := logger.New(logger.Config{Level: gf.logLevel, DevMode: true})
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	conn, err := client.Dial(ctx, client.Config{
		Addr:           gf.addr,
		ClientID:       gf.clientID,
		PacingAPI:      gf.pacing,
		ConnectTimeout: gf.timeout,
		RequestTimeout: gf.timeout,
	}, log)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, conn)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
