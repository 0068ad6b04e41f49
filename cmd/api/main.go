package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"coursebase.org/internal/auth"
	"coursebase.org/internal/config"
	"coursebase.org/internal/httpapi"
	"coursebase.org/internal/oauth"
	"coursebase.org/internal/obs"
	"coursebase.org/internal/store/pg"
	"coursebase.org/internal/stream"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config YAML")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if err := obs.InitLogger(cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer obs.Sync()
	obs.Init()

	if err := run(cfg); err != nil {
		zap.L().Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store auth.Store
		db    *sql.DB
	)
	if cfg.DB.DSN != "" {
		var err error
		db, err = openDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		store = pg.New(db)
		zap.L().Info("using postgres store")
	} else {
		store = auth.NewMemoryStore()
		zap.L().Warn("no database configured, using in-memory store")
	}

	bus := stream.New()
	go logEvents(ctx, bus)

	tokens, err := auth.NewTokenService(cfg.Auth.Secret,
		auth.WithAccessTTL(cfg.AccessTokenTTL()),
		auth.WithRefreshTTL(cfg.RefreshTokenTTL()),
	)
	if err != nil {
		return err
	}
	resolver, err := auth.NewResolver(store)
	if err != nil {
		return err
	}
	authSvc, err := auth.NewService(store, tokens, bus)
	if err != nil {
		return err
	}
	if err := authSvc.EnsureDefaults(ctx); err != nil {
		return err
	}
	adminSvc, err := auth.NewAdminService(store, resolver, bus)
	if err != nil {
		return err
	}
	providers := oauth.New(oauth.Options{
		RedirectBaseURL: cfg.OAuth.RedirectBaseURL,
		Google:          oauth.Credentials(cfg.OAuth.Google),
		Facebook:        oauth.Credentials(cfg.OAuth.Facebook),
		Apple:           oauth.Credentials(cfg.OAuth.Apple),
	})
	oauthSvc, err := auth.NewOAuthService(store, providers, bus)
	if err != nil {
		return err
	}

	api := httpapi.New(httpapi.Options{
		ReadyProbe: httpapi.ReadyProbe{DB: db},
		Version:    version,
		Tokens:     tokens,
		Auth:       authSvc,
		Admin:      adminSvc,
		Resolver:   resolver,
		OAuth:      oauthSvc,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("http server listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// logEvents drains the domain event bus into the structured log.
func logEvents(ctx context.Context, bus *stream.Bus) {
	for env := range bus.Subscribe(ctx) {
		zap.L().Info("domain event",
			zap.String("kind", env.Kind),
			zap.Time("at", env.At),
			zap.Any("event", env.Event),
		)
	}
}
