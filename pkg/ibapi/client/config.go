package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/wire"
)

// Config describes one gateway session.
type Config struct {
	// Addr is host:port of TWS or IB Gateway.
	Addr string `mapstructure:"addr"`

	ClientID int `mapstructure:"client_id"`

	// MinVersion and MaxVersion bound the negotiated server version.
	MinVersion int `mapstructure:"min_version"`
	MaxVersion int `mapstructure:"max_version"`

	// OptionalCapabilities is passed to StartAPI on servers that accept it.
	OptionalCapabilities string `mapstructure:"optional_capabilities"`

	// PacingAPI asks the gateway to pace requests instead of rejecting them.
	PacingAPI bool `mapstructure:"pacing_api"`

	// ConnectTimeout bounds dial plus handshake when ctx has no deadline.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// RequestTimeout bounds request/response calls when ctx has no deadline.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// EventBuffer is the capacity of the unsolicited event channel.
	EventBuffer int `mapstructure:"event_buffer"`

	// StartRequestID is the first request id handed out. Zero → 1.
	StartRequestID int64 `mapstructure:"start_request_id"`
}

func (c *Config) applyDefaults() {
	if c.MinVersion <= 0 {
		c.MinVersion = wire.MinClientVersion
	}
	if c.MaxVersion <= 0 {
		c.MaxVersion = wire.MaxClientVersion
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 1024
	}
	if c.StartRequestID <= 0 {
		c.StartRequestID = 1
	}
}

func (c Config) validate() error {
	var errs []string
	if c.Addr == "" {
		errs = append(errs, "addr is required")
	}
	if c.ClientID < 0 {
		errs = append(errs, "client_id must be ≥ 0")
	}
	if c.MaxVersion < c.MinVersion {
		errs = append(errs, fmt.Sprintf("version range [%d,%d] is empty", c.MinVersion, c.MaxVersion))
	}
	if len(errs) > 0 {
		return fmt.Errorf("ibapi client: invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c Config) helloOptions() string {
	if c.PacingAPI {
		return "+PACEAPI"
	}
	return ""
}
