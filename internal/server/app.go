// Package server wires the sync server together: Postgres storage and its
// migrations, the rows service, the gRPC endpoint, and an HTTP endpoint
// carrying the realtime feed and Prometheus metrics.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xdeleon/offsync/internal/auth"
	"github.com/xdeleon/offsync/internal/logging"
	"github.com/xdeleon/offsync/internal/server/config"
	"github.com/xdeleon/offsync/internal/server/realtime"
	"github.com/xdeleon/offsync/internal/server/repositories/repomanager"
	"github.com/xdeleon/offsync/internal/server/services"

	gs "github.com/xdeleon/offsync/internal/server/grpc"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config    *config.Config
	logger    logging.Logger
	logCloser io.Closer
	db        *sql.DB
	hub       *realtime.Hub
	rows      *services.RowService
	registry  *prometheus.Registry
}

func newLogger(c *config.Config) (logging.Logger, io.Closer) {
	if c.LogFile != "" {
		return logging.NewFileLogger(logging.FileOptions{Path: c.LogFile, Level: c.LogLevel})
	}
	return logging.NewTextLogger(c.LogLevel), nil
}

// NewApp connects to the database and applies pending migrations.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	app := &App{config: c, registry: prometheus.NewRegistry()}
	app.logger, app.logCloser = newLogger(c)

	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		app.closeLog()
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		app.closeLog()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	app.db = db
	app.hub = realtime.NewHub(app.registry)
	app.rows = services.NewRowService(db, rm, app.hub)
	return app, nil
}

// MintToken signs an access token for userID with the configured secret
// and validity. It stands in for the sign-in flow this server does not own.
func MintToken(c *config.Config, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("empty user id")
	}
	return auth.GenerateToken(userID, []byte(c.SecretKey), c.AccessTokenValidityDuration)
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// routes serves the realtime feed and metrics.
func (app *App) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/realtime", realtime.NewHandler(app.hub, app.config.SecretKey, app.logger))
	mux.Handle("/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}))
	return mux
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.rows, app.config.SecretKey)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "grpc server failed", "error", err)
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	lis, err := net.Listen("tcp", app.config.EndpointAddrHTTP)
	if err != nil {
		app.logger.Error(ctx, "http listen failed", "error", err)
		cancelFunc()
		return
	}
	app.serveHTTP(ctx, lis)
}

func (app *App) serveHTTP(ctx context.Context, lis net.Listener) {
	srv := &http.Server{
		Handler:           app.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, "http server failed", "error", err)
	}
}

// Run blocks until ctx is cancelled, a termination signal arrives or one of
// the listeners fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(ctx, cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()
	app.shutdown(context.Background())
}

func (app *App) shutdown(ctx context.Context) {
	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "close database", "error", err)
	}
	app.logger.Info(ctx, "Stopped")
	app.closeLog()
}

func (app *App) closeLog() {
	if app.logCloser != nil {
		_ = app.logCloser.Close()
	}
}
