package main

import (
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/mguard/internal/gatt"
	"github.com/srg/mguard/internal/monitor"
	"github.com/srg/mguard/internal/registry"
	"github.com/srg/mguard/internal/repository"
	"github.com/srg/mguard/internal/topology"
	"github.com/srg/mguard/pkg/config"
)

// loadConfig reads the --config flag and loads the file (or defaults).
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// buildManager wires a Manager from configuration. The returned cleanup
// closes any backend connections the wiring opened.
func buildManager(cfg *config.Config, central gatt.Central, logger *logrus.Logger) (*monitor.Manager, func(), error) {
	cleanups := make([]func(), 0, 2)
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var store topology.Store
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cleanups = append(cleanups, func() { _ = client.Close() })
		store = topology.NewRedisStore(client)
		logger.WithField("addr", cfg.Redis.Addr).Info("Using Redis topology store")
	} else {
		store = topology.NewMemoryStore()
		logger.Info("Using in-memory topology store (no restoration across relaunch)")
	}

	var repo repository.SensorRepository = repository.Nop{}
	if cfg.Postgres.DSN != "" {
		pg, err := repository.OpenPostgres(cfg.Postgres.DSN, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cleanups = append(cleanups, func() { _ = pg.Close() })
		repo = pg
		logger.Info("Using Postgres sensor repository")
	}

	mgr := monitor.NewManager(central, store, registry.New(logger), repo, logger)
	mgr.SetThresholds(cfg.Thresholds)
	return mgr, cleanup, nil
}
