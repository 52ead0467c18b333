package ganttsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/surrealdb/ganttsync/internal/logger"
	"github.com/surrealdb/ganttsync/pkg/graph"
	"github.com/surrealdb/ganttsync/pkg/graph/memory"
	"github.com/surrealdb/ganttsync/pkg/graph/postgres"
	sdbstore "github.com/surrealdb/ganttsync/pkg/graph/surrealdb"
	"github.com/surrealdb/ganttsync/pkg/syncer"
)

// App holds the application state.
type App struct {
	config  *Config
	store   graph.Store
	syncer  *syncer.Syncer
	log     zerolog.Logger
	logData *logger.LogData

	readOnly atomic.Bool
}

// Option configures an App.
type Option func(*options)

type options struct {
	store     graph.Store
	logWriter io.Writer
}

// WithStore makes the App use store instead of opening the configured one.
func WithStore(store graph.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithLogWriter sends logs to w instead of stderr or the configured file.
func WithLogWriter(w io.Writer) Option {
	return func(o *options) {
		o.logWriter = w
	}
}

// New creates the application: it builds the logger, connects to the
// configured store and wraps it so writes can be switched off at runtime.
func New(ctx context.Context, config *Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	build := logger.New().Level(config.Log.Level).Console(config.Log.Console)
	switch {
	case o.logWriter != nil:
		build = build.FromBuffer(o.logWriter)
	case config.Log.File != "":
		build = build.FromPath(config.Log.File)
	}
	logData, err := build.Make()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	store := o.store
	if store == nil {
		if store, err = openStore(ctx, config); err != nil {
			_ = logData.Close()
			return nil, err
		}
		logData.Logger.Info().Str("store", config.Store).Msg("connected to store")
	}

	app := &App{
		config:  config,
		log:     logData.Logger,
		logData: logData,
	}
	app.readOnly.Store(config.ReadOnly)
	app.store = graph.NewReadOnlyStore(store, app.IsReadOnly)
	app.syncer = syncer.New(app.store,
		syncer.WithLogger(app.log.With().Str("component", "syncer").Logger()),
		syncer.WithConcurrency(config.Sync.Concurrent),
	)
	return app, nil
}

func openStore(ctx context.Context, config *Config) (graph.Store, error) {
	switch config.Store {
	case StoreMemory:
		return memory.New(), nil
	case StoreSurrealDB:
		store, err := sdbstore.New(ctx, sdbstore.Config{
			URL:       config.SurrealDB.URL,
			Namespace: config.SurrealDB.Namespace,
			Database:  config.SurrealDB.Database,
			Username:  config.SurrealDB.Username,
			Password:  config.SurrealDB.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
		}
		return store, nil
	case StorePostgres:
		store, err := postgres.New(config.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store %q", config.Store)
	}
}

// Close closes the store and the log file.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	errs = append(errs, a.logData.Close())
	return errors.Join(errs...)
}

func (a *App) Store() graph.Store {
	return a.store
}

func (a *App) Syncer() *syncer.Syncer {
	return a.syncer
}

func (a *App) Logger() zerolog.Logger {
	return a.log
}

// SetReadOnly switches writes off or back on. Loads keep working while the
// application is read-only; syncs and imports fail with graph.ErrReadOnly.
func (a *App) SetReadOnly(readOnly bool) {
	a.readOnly.Store(readOnly)
	a.log.Info().Bool("readOnly", readOnly).Msg("read-only mode changed")
}

func (a *App) IsReadOnly() bool {
	return a.readOnly.Load()
}

// Migrate provisions the store schema.
func (a *App) Migrate(ctx context.Context) error {
	a.log.Info().Msg("running migrations")
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.log.Info().Msg("migrations completed")
	return nil
}
