package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FREE_SHIPPING_THRESHOLD", "")
	t.Setenv("SHIPPING_FEE", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()

	assert.Equal(t, int64(50000), cfg.FreeShippingThreshold)
	assert.Equal(t, int64(5000), cfg.ShippingFee)
	assert.Equal(t, "XAF", cfg.Currency)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("SHIPPING_FEE", "2500")
	t.Setenv("AUTO_MIGRATE", "false")
	t.Setenv("FULFILLMENT_WORKERS", "not-a-number")

	cfg := Load()

	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, int64(2500), cfg.ShippingFee)
	assert.False(t, cfg.AutoMigrate)
	assert.Equal(t, 8, cfg.FulfillmentWorkers)
}
