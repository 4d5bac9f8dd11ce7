// Package app wires the brink-auth runtime: config, logging, storage
// selection, metrics, and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lohmander/brink-auth/cmd/identity"
	authapi "github.com/lohmander/brink-auth/cmd/internal/auth/api"
	"github.com/lohmander/brink-auth/cmd/internal/auth/authn"
	"github.com/lohmander/brink-auth/cmd/security/token"
)

// Closer is a small app-level lifecycle abstraction.
// It exists to allow store resources to be closed gracefully.
type Closer interface {
	Close(ctx context.Context) error
}

type nopCloser struct{}

func (nopCloser) Close(_ context.Context) error { return nil }

// App is the brink-auth runtime: it owns store lifecycle and HTTP wiring.
type App struct {
	cfg Config
	log Logger

	closer Closer

	dbPool    *pgxpool.Pool
	dbEnabled bool

	metrics *Metrics
	auth    *authapi.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	closer, dbPool, store, err := newStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	signer, err := token.NewSignerFromEnv()
	if err != nil {
		_ = closer.Close(context.Background())
		return nil, err
	}

	svc := authn.NewService(store, signer, log)

	authHandler, err := authapi.NewHandler(log, svc, authapi.Config{MaxBodyBytes: cfg.MaxBodyBytes})
	if err != nil {
		_ = closer.Close(context.Background())
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		closer:    closer,
		dbPool:    dbPool,
		dbEnabled: dbPool != nil,
		metrics:   NewMetrics(),
		auth:      authHandler,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.metrics, a.auth)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(a.metrics.Wrap(mux), a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var fatal error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		fatal = err
	}

	// The store closes on every exit path, including a fatal server error.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && fatal == nil {
		a.log.Error("server.shutdown.fail", "err", err)
		fatal = err
	}

	if err := a.closer.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	if fatal != nil {
		return fatal
	}
	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStore selects the persistence backend. Explicit BRINK_STORE wins;
// otherwise postgres when a database URL is configured, sqlite as the
// standalone default.
func newStore(ctx context.Context, cfg Config, log Logger) (Closer, *pgxpool.Pool, identity.Store, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Store))
	if mode == "" {
		if cfg.DatabaseURL != "" {
			mode = "postgres"
		} else {
			mode = "sqlite"
		}
	}

	switch mode {
	case "memory":
		log.Info("store.memory")
		return nopCloser{}, nil, identity.NewMemoryStore(), nil

	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, nil, errors.New("store: postgres selected but BRINK_DATABASE_URL is not set")
		}
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		store, err := identity.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		log.Info("store.postgres")
		// Ownership model: app owns the pool lifecycle.
		return poolCloser{pool: pool}, pool, store, nil

	case "sqlite":
		db, err := identity.NewSQLiteDB(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		store, err := identity.NewSQLiteStore(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		log.Info("store.sqlite", "path", cfg.SQLitePath)
		return sqliteCloser{db: db}, nil, store, nil

	default:
		return nil, nil, nil, fmt.Errorf("store: unknown BRINK_STORE value %q", cfg.Store)
	}
}

type poolCloser struct {
	pool *pgxpool.Pool
}

func (c poolCloser) Close(_ context.Context) error {
	if c.pool != nil {
		c.pool.Close()
	}
	return nil
}

type sqliteCloser struct {
	db *identity.SQLiteDB
}

func (c sqliteCloser) Close(_ context.Context) error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
