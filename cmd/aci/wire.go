package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Vorion-Labs/aci/core/pkg/ceiling"
	"github.com/Vorion-Labs/aci/core/pkg/config"
	"github.com/Vorion-Labs/aci/core/pkg/events"
	"github.com/Vorion-Labs/aci/core/pkg/observability"
	"github.com/Vorion-Labs/aci/core/pkg/store"
	"github.com/Vorion-Labs/aci/core/pkg/trust"
)

// Runtime bundles the wired subsystems behind one Close.
type Runtime struct {
	Engine *trust.Engine
	Bus    *events.Bus
	Audit  *ceiling.AuditLog
	Store  store.Provider
	Obs    *observability.Provider

	unwatch func()
}

// Close detaches the telemetry watcher, flushes exporters, and releases the
// store. Safe to call once.
func (r *Runtime) Close() error {
	if r.unwatch != nil {
		r.unwatch()
	}
	var errs []error
	if r.Obs != nil {
		if err := r.Obs.Shutdown(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// buildRuntime wires config -> store -> engine -> telemetry.
func buildRuntime(cfg *config.Config) (*Runtime, error) {
	provider, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus()
	audit := ceiling.NewAuditLog(cfg.AuditCapacity)

	opts := []trust.Option{trust.WithAuditLog(audit)}
	if cfg.ProfilePack != "" {
		pack, err := config.LoadProfilePack(cfg.ProfilePack)
		if err != nil {
			provider.Close()
			return nil, err
		}
		opts = append(opts, trust.WithProfiles(pack.ProfileMap()))
	}

	engine, err := trust.NewEngine(provider, bus, opts...)
	if err != nil {
		provider.Close()
		return nil, err
	}

	obs, err := buildObservability(cfg)
	if err != nil {
		provider.Close()
		return nil, err
	}

	return &Runtime{
		Engine:  engine,
		Bus:     bus,
		Audit:   audit,
		Store:   provider,
		Obs:     obs,
		unwatch: observability.Watch(bus, obs),
	}, nil
}

// buildObservability returns a provider fed by the trust event stream; with
// no endpoint configured it stays a no-op.
func buildObservability(cfg *config.Config) (*observability.Provider, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	obsCfg.Enabled = cfg.OTLPEndpoint != ""
	return observability.New(context.Background(), obsCfg)
}

func openStore(cfg *config.Config) (store.Provider, error) {
	switch cfg.StoreBackend {
	case "memory":
		return store.NewMemory(), nil
	case "file":
		return store.OpenFile(cfg.StorePath, store.FileOptions{SyncWrites: true})
	case "sqlite":
		return store.OpenSQLite(cfg.StorePath)
	case "postgres":
		return store.OpenPostgres(cfg.DatabaseURL)
	case "redis":
		return store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
