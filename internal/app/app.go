// Package app initializes and holds the long-lived services of one tool run,
// acting as a small dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/fandom-data/internal/config"
	"github.com/JakeFAU/fandom-data/internal/fetch"
	collyfetcher "github.com/JakeFAU/fandom-data/internal/fetcher/colly"
	"github.com/JakeFAU/fandom-data/internal/id"
	"github.com/JakeFAU/fandom-data/internal/logging"
	"github.com/JakeFAU/fandom-data/internal/metrics"
	"github.com/JakeFAU/fandom-data/internal/storage"
	"github.com/JakeFAU/fandom-data/internal/storage/gcs"
	"github.com/JakeFAU/fandom-data/internal/store"
	blevestore "github.com/JakeFAU/fandom-data/internal/store/bleve"
	"github.com/JakeFAU/fandom-data/internal/store/es"
	"github.com/JakeFAU/fandom-data/internal/store/postgres"
)

const shutdownTimeout = 5 * time.Second

// App holds the services shared by a command for the length of one run.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	runID   string
	metrics *metrics.Server
	remote  *gcs.Backend
	stores  []store.Store
}

// New builds the logger, assigns a run id, and starts the optional metrics
// listener. It fails fast when any of them cannot be set up.
func New(cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	runID, err := id.NewRunID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	logger = logger.With(zap.String("run_id", runID))

	srv, err := metrics.Start(cfg.Metrics.Addr, logger)
	if err != nil {
		return nil, fmt.Errorf("start metrics server: %w", err)
	}
	return &App{cfg: cfg, logger: logger, runID: runID, metrics: srv}, nil
}

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// RunID identifies this run in logs.
func (a *App) RunID() string {
	return a.runID
}

// NewFetcher builds the page fetcher from the fetch settings.
func (a *App) NewFetcher() fetch.Fetcher {
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Fetch.UserAgent,
		RespectRobots: a.cfg.Fetch.RespectRobots,
		Timeout:       a.cfg.Fetch.Timeout(),
	})
}

// Opener returns a file opener that can reach uri, creating the object
// storage client the first time a gs:// location is used.
func (a *App) Opener(ctx context.Context, uri string) (storage.Opener, error) {
	if !storage.IsRemote(uri) {
		return storage.Opener{}, nil
	}
	if a.remote == nil {
		backend, err := gcs.New(ctx)
		if err != nil {
			return storage.Opener{}, err
		}
		a.remote = backend
	}
	return storage.Opener{Remote: a.remote}, nil
}

// NewStore connects the configured document store. The store is closed with
// the App.
func (a *App) NewStore(ctx context.Context) (store.Store, error) {
	cfg := a.cfg.Index
	var (
		st  store.Store
		err error
	)
	switch cfg.Backend {
	case config.BackendElasticsearch:
		a.logger.Info("using elasticsearch store", zap.Strings("nodes", cfg.Nodes()), zap.String("index", cfg.IndexName))
		st, err = es.New(ctx, es.Config{
			Addresses: cfg.Nodes(),
			Username:  cfg.ESUsername,
			Password:  cfg.ESPassword,
			Index:     cfg.IndexName,
			Refresh:   cfg.Refresh,
		})
	case config.BackendBleve:
		if cfg.BlevePath == "" {
			a.logger.Info("using in-memory bleve store; documents are discarded on exit")
		} else {
			a.logger.Info("using bleve store", zap.String("path", cfg.BlevePath))
		}
		st, err = blevestore.Open(cfg.BlevePath)
	case config.BackendPostgres:
		a.logger.Info("using postgres store", zap.String("table", cfg.PostgresTable))
		st, err = postgres.New(ctx, postgres.Config{DSN: cfg.PostgresDSN, Table: cfg.PostgresTable})
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s store: %w", cfg.Backend, err)
	}
	a.stores = append(a.stores, st)
	return st, nil
}

// Close shuts down every service created through the App and flushes logs.
func (a *App) Close() {
	for _, st := range a.stores {
		if err := st.Close(); err != nil {
			a.logger.Warn("error closing store", zap.Error(err))
		}
	}
	if a.remote != nil {
		if err := a.remote.Close(); err != nil {
			a.logger.Warn("error closing object storage client", zap.Error(err))
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.metrics.Shutdown(ctx); err != nil {
		a.logger.Warn("error stopping metrics server", zap.Error(err))
	}
	// stderr sync fails on some platforms; nothing useful to do about it
	_ = a.logger.Sync()
}
