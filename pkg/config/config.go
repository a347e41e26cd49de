// Package config loads runtime configuration from environment variables and
// decay profile packs from YAML.
package config

import (
	"os"
	"strconv"
)

// Config holds service configuration.
type Config struct {
	LogLevel       string
	StoreBackend   string // memory | file | sqlite | postgres | redis
	StorePath      string // file and sqlite backends
	DatabaseURL    string // postgres backend
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	AttestationKey string
	AuditCapacity  int
	ProfilePack    string // optional path to a profile pack YAML
	OTLPEndpoint   string // gRPC endpoint; telemetry is a no-op when empty
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("ACI_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	backend := os.Getenv("ACI_STORE")
	if backend == "" {
		backend = "memory"
	}

	storePath := os.Getenv("ACI_STORE_PATH")
	if storePath == "" {
		storePath = "aci-trust.db"
	}

	dbURL := os.Getenv("ACI_DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://aci@localhost:5432/aci?sslmode=disable"
	}

	redisAddr := os.Getenv("ACI_REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisDB := 0
	if v := os.Getenv("ACI_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			redisDB = n
		}
	}

	auditCap := 0
	if v := os.Getenv("ACI_AUDIT_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			auditCap = n
		}
	}

	return &Config{
		LogLevel:       logLevel,
		StoreBackend:   backend,
		StorePath:      storePath,
		DatabaseURL:    dbURL,
		RedisAddr:      redisAddr,
		RedisPassword:  os.Getenv("ACI_REDIS_PASSWORD"),
		RedisDB:        redisDB,
		AttestationKey: os.Getenv("ACI_ATTESTATION_KEY"),
		AuditCapacity:  auditCap,
		ProfilePack:    os.Getenv("ACI_PROFILE_PACK"),
		OTLPEndpoint:   os.Getenv("ACI_OTLP_ENDPOINT"),
	}
}
