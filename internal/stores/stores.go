// Package stores opens the configured record store and builds both engines on it.
package stores

import (
	"context"
	"fmt"
	"log/slog"

	"durable-lists/internal/config"
	"durable-lists/internal/db"
	"durable-lists/pkg/flight"
	"durable-lists/pkg/quest"
)

// Engines holds the quest queue and flight list sharing one store.
type Engines struct {
	Quests  *quest.Queue
	Flights *flight.List
	close   func()
}

// Close releases the underlying connections.
func (e *Engines) Close() {
	if e.close != nil {
		e.close()
	}
}

type tableOwner interface {
	EnsureTable(ctx context.Context) error
}

// Open connects to the store named by cfg.Driver, creates missing tables and
// returns the engines.
func Open(ctx context.Context, cfg config.DBConfig) (*Engines, error) {
	var (
		qs      quest.Store
		fs      flight.Store
		closeFn func()
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		qs, fs, closeFn = quest.NewPgStore(pool), flight.NewPgStore(pool), pool.Close
	case config.DriverSQLite:
		sqlDB, err := db.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		qs, fs = quest.NewSQLiteStore(sqlDB), flight.NewSQLiteStore(sqlDB)
		closeFn = func() { _ = sqlDB.Close() }
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}

	for name, s := range map[string]tableOwner{"quest": qs, "flight": fs} {
		if err := s.EnsureTable(ctx); err != nil {
			closeFn()
			return nil, fmt.Errorf("ensure %s tables: %w", name, err)
		}
	}
	slog.Info("store ready", slog.String("driver", cfg.Driver))

	return &Engines{
		Quests:  quest.NewQueue(qs),
		Flights: flight.NewList(fs),
		close:   closeFn,
	}, nil
}
