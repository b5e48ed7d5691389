// Package app wires the jobwire client runtime: config, logging, local state
// storage, the realtime connection manager, and the ops HTTP surface.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"jobwire/cmd/internal/chat"
	"jobwire/cmd/internal/httpapi"
	"jobwire/cmd/internal/identity"
	"jobwire/cmd/internal/notify"
	"jobwire/cmd/internal/realtime"
	"jobwire/cmd/internal/store"
	"jobwire/cmd/internal/unread"
)

// App is the client runtime: it owns the identity store, the realtime
// manager, the per-surface consumers, and the ops HTTP server.
type App struct {
	cfg Config
	log Logger
	reg *prometheus.Registry

	ids          *identity.Store
	mgr          *realtime.Manager
	unbindIdents func()

	kv        store.KV
	dbPool    *pgxpool.Pool
	dbEnabled bool

	surface  identity.Kind
	buffer   *notify.Buffer
	notifier *notify.Notifier
	counter  *unread.Counter
	session  *chat.Session
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	ctx := context.Background()

	kv, dbPool, dbEnabled, err := newStateStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	surface, err := surfaceKind(cfg.ClientType)
	if err != nil {
		_ = kv.Close()
		if dbPool != nil {
			dbPool.Close()
		}
		return nil, err
	}

	ids := identity.NewStore()

	dialer := realtime.NewWSDialer(log, realtime.DefaultWSConfig())
	policy := realtime.ReconnectPolicy{
		Delay:       cfg.ReconnectDelay,
		MaxAttempts: cfg.ReconnectMaxAttempts,
		Multiplier:  cfg.ReconnectMultiplier,
		MaxDelay:    cfg.ReconnectMaxDelay,
	}
	mgr := realtime.NewManager(log, dialer, cfg.WSEndpoint, policy,
		realtime.WithMetrics(realtime.NewMetrics(reg)))
	unbind := mgr.Bind(ids)

	self := ids.Current

	buffer := notify.NewBuffer(ctx, log, kv, surface)
	notifier := notify.NewNotifier(log, surface, buffer, nil, self,
		func() bool { return cfg.Subscribed })
	notifier.Bind(mgr)

	counter := unread.NewCounter(ctx, log, kv, surface, cfg.ChatRoute, cfg.InitialRoute, self)
	counter.Bind(mgr, surface)

	api, err := httpapi.NewClient(log, httpapi.Config{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.APIToken,
	})
	if err != nil {
		_ = kv.Close()
		if dbPool != nil {
			dbPool.Close()
		}
		return nil, err
	}

	session := chat.NewSession(log, self, mgr, api, api)
	session.Bind(mgr)

	a := &App{
		cfg:          cfg,
		log:          log,
		reg:          reg,
		ids:          ids,
		mgr:          mgr,
		unbindIdents: unbind,
		kv:           kv,
		dbPool:       dbPool,
		dbEnabled:    dbEnabled,
		surface:      surface,
		buffer:       buffer,
		notifier:     notifier,
		counter:      counter,
		session:      session,
	}

	// Seed the configured identity; the manager opens the connection from the
	// resulting identity change.
	if cfg.ClientID != "" {
		switch surface {
		case identity.KindUser:
			ids.SetUser(identity.Session{SubjectID: cfg.ClientID})
		case identity.KindCompany:
			ids.SetCompany(identity.Session{SubjectID: cfg.ClientID})
		}
	}

	return a, nil
}

// Session exposes the chat session (UI surfaces drive it).
func (a *App) Session() *chat.Session { return a.session }

// Unread exposes the unread-message counter.
func (a *App) Unread() *unread.Counter { return a.counter }

// Notifications exposes the notification buffer.
func (a *App) Notifications() *notify.Buffer { return a.buffer }

// Identity exposes the identity store.
func (a *App) Identity() *identity.Store { return a.ids }

// Run starts the ops HTTP server and blocks until context cancellation or a
// fatal server error.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.ClientID != "" {
		a.session.LoadHistory(ctx)
	}

	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.reg)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("runtime.start",
		"addr", a.cfg.HTTPAddr,
		"surface", string(a.surface),
		"db_enabled", a.dbEnabled,
		"ws_endpoint", a.cfg.WSEndpoint,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	a.close()

	if err != nil {
		a.log.Error("runtime.fail", "err", err)
		return err
	}
	a.log.Info("runtime.stopped")
	return nil
}

func (a *App) close() {
	a.mgr.Close()
	a.unbindIdents()

	if err := a.kv.Close(); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
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

func surfaceKind(clientType string) (identity.Kind, error) {
	switch clientType {
	case "user", "":
		return identity.KindUser, nil
	case "company":
		return identity.KindCompany, nil
	default:
		return identity.KindNone, errors.New("app: client type must be \"user\" or \"company\"")
	}
}

// newStateStore decides between Postgres, SQLite, and in-memory state.
func newStateStore(ctx context.Context, cfg Config, log Logger) (store.KV, *pgxpool.Pool, bool, error) {
	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, false, err
		}

		// Ownership model:
		// - app owns pool lifecycle
		// - store.Postgres.Close() is a no-op
		kv, err := store.NewPostgres(pool)
		if err != nil {
			pool.Close()
			return nil, nil, false, err
		}

		log.Info("state.postgres")
		return kv, pool, true, nil
	}

	if cfg.StatePath != "" {
		kv, err := store.NewSQLite(cfg.StatePath)
		if err != nil {
			return nil, nil, false, err
		}
		log.Info("state.sqlite", "path", cfg.StatePath)
		return kv, nil, false, nil
	}

	log.Info("state.inmemory")
	return store.NewMemory(), nil, false, nil
}
