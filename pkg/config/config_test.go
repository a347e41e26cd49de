package config_test

import (
	"testing"

	"github.com/Vorion-Labs/aci/core/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ACI_LOG_LEVEL", "")
	t.Setenv("ACI_STORE", "")
	t.Setenv("ACI_STORE_PATH", "")
	t.Setenv("ACI_DATABASE_URL", "")
	t.Setenv("ACI_REDIS_ADDR", "")
	t.Setenv("ACI_AUDIT_CAPACITY", "")
	t.Setenv("ACI_OTLP_ENDPOINT", "")

	cfg := config.Load()

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, "aci-trust.db", cfg.StorePath)
	assert.Contains(t, cfg.DatabaseURL, "localhost")
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 0, cfg.AuditCapacity)
	assert.Empty(t, cfg.OTLPEndpoint)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ACI_LOG_LEVEL", "DEBUG")
	t.Setenv("ACI_STORE", "postgres")
	t.Setenv("ACI_DATABASE_URL", "postgres://aci@db:5432/aci")
	t.Setenv("ACI_AUDIT_CAPACITY", "500")
	t.Setenv("ACI_ATTESTATION_KEY", "s3cret")
	t.Setenv("ACI_OTLP_ENDPOINT", "collector:4317")

	cfg := config.Load()

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, "postgres://aci@db:5432/aci", cfg.DatabaseURL)
	assert.Equal(t, 500, cfg.AuditCapacity)
	assert.Equal(t, "s3cret", cfg.AttestationKey)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("ACI_AUDIT_CAPACITY", "lots")
	t.Setenv("ACI_REDIS_DB", "nan")

	cfg := config.Load()

	assert.Equal(t, 0, cfg.AuditCapacity)
	assert.Equal(t, 0, cfg.RedisDB)
}
