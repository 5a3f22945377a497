// cmd/ib-collector/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/YaganovValera/ibkr-collector/internal/app"
	"github.com/YaganovValera/ibkr-collector/internal/config"
	"github.com/YaganovValera/ibkr-collector/pkg/logger"
)

func main() {
	// 1) Путь до конфига
	var configPath string
	pflag.StringVar(&configPath, "config", "", "path to config file (empty: defaults + IBCOLLECTOR_* env)")
	pflag.Parse()

	// 2) Загрузка конфига
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	// 3) Логгер
	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.Logging.DevMode {
		cfg.Print()
	}

	log.Info("starting ib-collector",
		zap.String("service.name", cfg.ServiceName),
		zap.String("service.version", cfg.ServiceVersion),
		zap.String("gateway.addr", cfg.Gateway.Addr),
		zap.Int("gateway.client_id", cfg.Gateway.ClientID),
	)

	// 4) Контекст с отменой по SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 5) Запуск приложения
	if err := app.Run(ctx, cfg, log); err != nil {
		log.Error("application exited with error", zap.Error(err))
		os.Exit(1)
	}

	log.Info("shutdown complete")
}
