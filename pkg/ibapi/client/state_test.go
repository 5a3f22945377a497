package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateDisconnected, StateConnecting, true},
		{StateConnecting, StateHandshaking, true},
		{StateHandshaking, StateReady, true},
		{StateReady, StateClosing, true},
		{StateClosing, StateClosed, true},
		{StateReady, StateFailed, true},
		{StateHandshaking, StateFailed, true},
		{StateDisconnected, StateReady, false},
		{StateReady, StateConnecting, false},
		{StateClosed, StateReady, false},
		{StateFailed, StateReady, false},
		{StateFailed, StateClosing, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, canTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StateClosed.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateReady.Terminal())
	assert.Equal(t, "state(42)", State(42).String())
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Addr: "127.0.0.1:4002"}
	cfg.applyDefaults()
	assert.NoError(t, cfg.validate())
	assert.Equal(t, 100, cfg.MinVersion)
	assert.Equal(t, 176, cfg.MaxVersion)
	assert.Equal(t, int64(1), cfg.StartRequestID)
	assert.Equal(t, "", cfg.helloOptions())

	bad := Config{MinVersion: 150, MaxVersion: 120, ClientID: -1}
	assert.Error(t, bad.validate())
}
