package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "storefront", cfg.ServiceName)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, StoreMySQL, cfg.Store)
	assert.Equal(t, BrokerBus, cfg.OutboxBroker)
	assert.Equal(t, 15*time.Second, cfg.PaynowTimeout)
	assert.Equal(t, 15*time.Second, cfg.PayPalTimeout)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.RelayInServe)
	assert.Equal(t, 10, cfg.LowStockThreshold)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE", "Memory")
	t.Setenv("OUTBOX_BROKER", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PAYNOW_TIMEOUT", "3s")
	t.Setenv("OUTBOX_RELAY_BATCH", "25")
	t.Setenv("OUTBOX_RELAY_IN_SERVE", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, BrokerKafka, cfg.OutboxBroker)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3*time.Second, cfg.PaynowTimeout)
	assert.Equal(t, 25, cfg.RelayBatch)
	assert.False(t, cfg.RelayInServe)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("PAYPAL_TIMEOUT", "soon")
	t.Setenv("REDIS_DB", "zero")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAYPAL_TIMEOUT")
	assert.Contains(t, err.Error(), "REDIS_DB")
}

func TestValidate(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	bad := cfg
	bad.Store = "postgres"
	assert.ErrorContains(t, bad.Validate(), "STORE")

	bad = cfg
	bad.OutboxBroker = "nats"
	assert.ErrorContains(t, bad.Validate(), "OUTBOX_BROKER")

	bad = cfg
	bad.OutboxBroker = BrokerKafka
	bad.KafkaBrokers = nil
	assert.ErrorContains(t, bad.Validate(), "KAFKA_BROKERS")

	bad = cfg
	bad.PaynowTimeout = 0
	assert.Error(t, bad.Validate())
}
