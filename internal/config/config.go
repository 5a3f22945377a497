// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/YaganovValera/ibkr-collector/pkg/backoff"
	"github.com/YaganovValera/ibkr-collector/pkg/configloader"
	"github.com/YaganovValera/ibkr-collector/pkg/httpserver"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/client"
	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/domain"
	"github.com/YaganovValera/ibkr-collector/pkg/kafka"
	"github.com/YaganovValera/ibkr-collector/pkg/logger"
	"github.com/YaganovValera/ibkr-collector/pkg/redis"
	"github.com/YaganovValera/ibkr-collector/pkg/telemetry"
)

// EnvPrefix — префикс переменных окружения: gateway.addr → IBCOLLECTOR_GATEWAY_ADDR.
const EnvPrefix = "IBCOLLECTOR"

// Форматы конверта события в Kafka.
const (
	EncodingJSON  = "json"
	EncodingProto = "protobuf"
)

/*
   --------------------------------------------------------------------------
   СТРУКТУРЫ
   --------------------------------------------------------------------------
*/

// Config — все настройки сервиса.
type Config struct {
	ServiceName    string              `mapstructure:"service_name"`
	ServiceVersion string              `mapstructure:"service_version"`
	Gateway        GatewayConfig       `mapstructure:"gateway"`
	Subscriptions  SubscriptionsConfig `mapstructure:"subscriptions"`
	Kafka          KafkaConfig         `mapstructure:"kafka"`
	Redis          redis.Config        `mapstructure:"redis"`
	Telemetry      telemetry.Config    `mapstructure:"telemetry"`
	Logging        logger.Config       `mapstructure:"logging"`
	HTTP           httpserver.Config   `mapstructure:"http"`
}

// GatewayConfig — параметры соединения с TWS / IB Gateway и политика переподключения.
type GatewayConfig struct {
	client.Config `mapstructure:",squash"`
	Backoff       backoff.Config `mapstructure:"backoff"`
}

// SubscriptionsConfig описывает, какие потоки держать открытыми в каждой сессии.
type SubscriptionsConfig struct {
	// Account — счёт для account updates; пусто → первый из managed accounts.
	Account string `mapstructure:"account"`
	// AccountSummaryGroup — группа для account summary ("All" по умолчанию).
	AccountSummaryGroup string `mapstructure:"account_summary_group"`
	// AccountSummaryTags — пусто → account summary не запрашивается.
	AccountSummaryTags []string `mapstructure:"account_summary_tags"`
	// MarketDataType: 1 realtime, 2 frozen, 3 delayed, 4 frozen-delayed; 0 → не менять.
	MarketDataType int                `mapstructure:"market_data_type"`
	MarketData     []MarketDataConfig `mapstructure:"market_data"`
	// ResolveTimeout ограничивает запрос contract details для одного инструмента.
	ResolveTimeout time.Duration `mapstructure:"resolve_timeout"`
}

// MarketDataConfig — один инструмент для потоковых котировок.
type MarketDataConfig struct {
	Symbol          string   `mapstructure:"symbol"`
	SecType         string   `mapstructure:"sec_type"`
	Exchange        string   `mapstructure:"exchange"`
	PrimaryExchange string   `mapstructure:"primary_exchange"`
	Currency        string   `mapstructure:"currency"`
	GenericTicks    []string `mapstructure:"generic_ticks"`
	// RealtimeBars — TRADES, MIDPOINT, BID или ASK; пусто → бары не запрашиваются.
	RealtimeBars string `mapstructure:"realtime_bars"`
	// UseRTH — бары только по основной торговой сессии.
	UseRTH bool `mapstructure:"use_rth"`
}

// Contract собирает domain.Contract для запроса contract details.
func (m MarketDataConfig) Contract() domain.Contract {
	return domain.Contract{
		Symbol:          strings.ToUpper(m.Symbol),
		SecType:         domain.SecType(strings.ToUpper(m.SecType)),
		Exchange:        m.Exchange,
		PrimaryExchange: m.PrimaryExchange,
		Currency:        m.Currency,
	}
}

// KafkaConfig — продьюсер плюс топики и формат конверта.
type KafkaConfig struct {
	kafka.Config `mapstructure:",squash"`
	EventsTopic  string `mapstructure:"events_topic"`
	TicksTopic   string `mapstructure:"ticks_topic"`
	BarsTopic    string `mapstructure:"bars_topic"`
	Encoding     string `mapstructure:"encoding"`
}

/*
   --------------------------------------------------------------------------
   LOADER
   --------------------------------------------------------------------------
*/

func defaults() configloader.Defaults {
	return configloader.Defaults{
		"service_name":    "ib-collector",
		"service_version": "v1.0.0",

		// Gateway
		"gateway.addr":                         "127.0.0.1:4002",
		"gateway.client_id":                    0,
		"gateway.min_version":                  0,
		"gateway.max_version":                  0,
		"gateway.optional_capabilities":        "",
		"gateway.pacing_api":                   false,
		"gateway.connect_timeout":              "10s",
		"gateway.request_timeout":              "30s",
		"gateway.event_buffer":                 1024,
		"gateway.backoff.initial_interval":     "1s",
		"gateway.backoff.randomization_factor": 0.5,
		"gateway.backoff.multiplier":           2.0,
		"gateway.backoff.max_interval":         "30s",
		"gateway.backoff.max_elapsed_time":     "0s",

		// Subscriptions
		"subscriptions.account":               "",
		"subscriptions.account_summary_group": "All",
		"subscriptions.account_summary_tags":  []string{},
		"subscriptions.market_data_type":      0,
		"subscriptions.market_data":           []interface{}{},
		"subscriptions.resolve_timeout":       "10s",

		// Kafka
		"kafka.brokers":         []string{"localhost:9092"},
		"kafka.events_topic":    "ib.events",
		"kafka.ticks_topic":     "ib.ticks",
		"kafka.bars_topic":      "ib.bars",
		"kafka.encoding":        EncodingJSON,
		"kafka.acks":            "all",
		"kafka.timeout":         "15s",
		"kafka.compression":     "none",
		"kafka.flush_frequency": "0s",
		"kafka.flush_messages":  0,

		// Redis (пустой url → кэш contract details выключен)
		"redis.url":    "",
		"redis.ttl":    "24h",
		"redis.prefix": "ibcollector:",

		// Telemetry (пустой endpoint → трассировка выключена)
		"telemetry.otel_endpoint": "",
		"telemetry.insecure":      true,
		"telemetry.sampler_ratio": 1.0,

		// Logging
		"logging.level":    "info",
		"logging.dev_mode": false,

		// HTTP
		"http.addr":             ":8080",
		"http.read_timeout":     "10s",
		"http.write_timeout":    "15s",
		"http.idle_timeout":     "60s",
		"http.shutdown_timeout": "5s",
		"http.metrics_path":     "/metrics",
		"http.healthz_path":     "/healthz",
		"http.readyz_path":      "/readyz",
	}
}

// Load загружает и валидирует конфиг. Пустой path → только ENV и defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := configloader.Load(path, EnvPrefix, defaults(), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

/*
   --------------------------------------------------------------------------
   VALIDATION
   --------------------------------------------------------------------------
*/

func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service_version is required")
	}

	// Gateway
	if c.Gateway.Addr == "" {
		return fmt.Errorf("gateway.addr is required")
	}
	if c.Gateway.ClientID < 0 {
		return fmt.Errorf("gateway.client_id must be >= 0")
	}
	if c.Gateway.ConnectTimeout <= 0 {
		return fmt.Errorf("gateway.connect_timeout must be > 0")
	}

	// Subscriptions
	if t := c.Subscriptions.MarketDataType; t < 0 || t > int(domain.MarketDataFrozenDelayed) {
		return fmt.Errorf("subscriptions.market_data_type must be between 0 and 4")
	}
	for i, md := range c.Subscriptions.MarketData {
		if md.Symbol == "" || md.SecType == "" {
			return fmt.Errorf("subscriptions.market_data[%d]: symbol and sec_type are required", i)
		}
		if md.RealtimeBars != "" && !domain.BarSource(strings.ToUpper(md.RealtimeBars)).Valid() {
			return fmt.Errorf("subscriptions.market_data[%d]: realtime_bars must be one of [TRADES, MIDPOINT, BID, ASK]", i)
		}
	}

	// Kafka
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	if c.Kafka.EventsTopic == "" || c.Kafka.TicksTopic == "" || c.Kafka.BarsTopic == "" {
		return fmt.Errorf("kafka.events_topic, kafka.ticks_topic and kafka.bars_topic are required")
	}
	switch strings.ToLower(c.Kafka.Encoding) {
	case EncodingJSON, EncodingProto:
	default:
		return fmt.Errorf("kafka.encoding must be one of [json, protobuf]")
	}
	switch strings.ToLower(c.Kafka.RequiredAcks) {
	case "all", "leader", "none":
	default:
		return fmt.Errorf("kafka.acks must be one of [all, leader, none]")
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error]")
	}

	// HTTP
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	paths := map[string]string{
		"http.metrics_path": c.HTTP.MetricsPath,
		"http.healthz_path": c.HTTP.HealthzPath,
		"http.readyz_path":  c.HTTP.ReadyzPath,
	}
	for k, p := range paths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with '/'", k)
		}
	}
	return nil
}

/*
   --------------------------------------------------------------------------
   DEBUG PRINT
   --------------------------------------------------------------------------
*/

// Print выводит текущий конфиг в JSON (удобно в DevMode).
func (c *Config) Print() {
	fmt.Println("Loaded configuration:\n", configloader.Sprint(c))
}
