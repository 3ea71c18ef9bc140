package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_MODE", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()

	assert.Equal(t, ":8084", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Broadcaster.ReconnectDelay)
	assert.Equal(t, "websocket", cfg.Broadcaster.LiveTransport)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "auction.bid.accepted", cfg.Kafka.Topics.BidAccepted)
	assert.Equal(t, 15*time.Second, cfg.Lifecycle.SweepInterval)
	assert.Equal(t, "oidc", cfg.Auth.Mode)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("BROADCASTER_RECONNECT_DELAY", "250ms")
	t.Setenv("AUTO_MIGRATE", "true")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")
	t.Setenv("AUTH_MODE", "HS256")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 250*time.Millisecond, cfg.Broadcaster.ReconnectDelay)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "hs256", cfg.Auth.Mode)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name: "hs256 with secret",
			mutate: func(c *Config) {
				c.Auth.Mode = "hs256"
				c.Auth.HMACSecret = "secret"
			},
		},
		{
			name:    "oidc without issuer",
			mutate:  func(c *Config) { c.Auth.Mode = "oidc"; c.Auth.Issuer = "" },
			wantErr: "OIDC_ISSUER",
		},
		{
			name:    "hs256 without secret",
			mutate:  func(c *Config) { c.Auth.Mode = "hs256"; c.Auth.HMACSecret = "" },
			wantErr: "AUTH_HMAC_SECRET",
		},
		{
			name: "kafka transport without kafka",
			mutate: func(c *Config) {
				c.Auth.Mode = "hs256"
				c.Auth.HMACSecret = "secret"
				c.Broadcaster.LiveTransport = "kafka"
				c.Kafka.Enabled = false
			},
			wantErr: "KAFKA_ENABLED",
		},
		{
			name: "unknown transport",
			mutate: func(c *Config) {
				c.Auth.Mode = "hs256"
				c.Auth.HMACSecret = "secret"
				c.Broadcaster.LiveTransport = "carrier-pigeon"
			},
			wantErr: "LIVE_TRANSPORT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
