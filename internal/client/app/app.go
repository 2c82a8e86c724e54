// Package app wires the sync client together: local store, session,
// transport, connectivity monitor and the sync engine. It runs headless and
// logs every local change notification.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xdeleon/offsync/internal/client/client"
	"github.com/xdeleon/offsync/internal/client/config"
	"github.com/xdeleon/offsync/internal/client/connectivity"
	"github.com/xdeleon/offsync/internal/client/engine"
	"github.com/xdeleon/offsync/internal/client/session"
	"github.com/xdeleon/offsync/internal/client/store"
	"github.com/xdeleon/offsync/internal/filex"
	"github.com/xdeleon/offsync/internal/logging"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	logCloser io.Closer
	store     *store.Store
	session   *session.TokenSession
	remote    *client.GRPCClient
	monitor   *connectivity.Monitor
	engine    *engine.Engine
	registry  *prometheus.Registry
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	app := &App{config: c, registry: prometheus.NewRegistry()}

	if c.LogFile != "" {
		app.logger, app.logCloser = logging.NewFileLogger(logging.FileOptions{Path: c.LogFile, Level: c.LogLevel})
	} else {
		app.logger = logging.NewTextLogger(c.LogLevel)
	}

	if err := filex.EnsureParentDir(c.DatabasePath); err != nil {
		app.closeLog()
		return nil, fmt.Errorf("local store init error: %w", err)
	}
	st, err := store.Open(ctx, c.DatabasePath)
	if err != nil {
		app.closeLog()
		return nil, fmt.Errorf("local store init error: %w", err)
	}
	app.store = st

	app.session = session.New(c.AccessToken)
	remote, err := client.NewGRPCClient(c.ServerEndpointAddr, app.session)
	if err != nil {
		_ = st.Close()
		app.closeLog()
		return nil, err
	}
	app.remote = remote

	app.monitor = connectivity.NewMonitor(remote, c.OnlineCheckInterval, app.logger)
	app.engine = engine.New(engine.Deps{
		Store:        st,
		Remote:       remote,
		Realtime:     client.NewRealtimeClient(c.RealtimeURL, app.session, app.logger),
		Session:      app.session,
		Connectivity: app.monitor,
		Logger:       app.logger,
		Metrics:      engine.NewMetrics(app.registry),
		MaxRetries:   c.MaxRetries,
	})
	return app, nil
}

// initSignalHandler cancels on termination signals. SIGHUP reloads the
// configuration and hands the access token to the session, which is how a
// login, logout or account switch reaches a running client.
func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				if sig != syscall.SIGHUP {
					cancelFunc()
					return
				}
				app.reloadToken(ctx)
			}
		}
	}()
}

func (app *App) reloadToken(ctx context.Context) {
	c, err := config.Load(os.Args[1:])
	if err != nil {
		app.logger.Error(ctx, "reload config failed", "error", err)
		return
	}
	app.logger.Info(ctx, "configuration reloaded")
	app.session.SetToken(c.AccessToken)
}

// Run blocks until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancelFunc()
		wg.Wait()
		app.shutdown(ctx)
	}()

	app.logger.Info(ctx, "Starting sync client...", "server", app.config.ServerEndpointAddr, "db", app.config.DatabasePath)
	app.initSignalHandler(ctx, cancelFunc)

	app.session.OnChange(func() {
		go func() {
			if err := app.engine.HandleAuthChange(ctx); err != nil {
				app.logger.Error(ctx, "session change failed", "error", err)
			}
		}()
	})

	// The first probe runs before Start so the engine sees the real state.
	app.monitor.Check(ctx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.monitor.Run(ctx)
	}()

	if err := app.engine.Start(ctx); err != nil && !errors.Is(err, engine.ErrSessionChanged) {
		app.logger.Error(ctx, "engine start failed", "error", err)
		return err
	}

	app.watchChanges(ctx)
	return nil
}

func (app *App) watchChanges(ctx context.Context) {
	for {
		changed := app.engine.Changed()
		select {
		case <-ctx.Done():
			return
		case <-changed:
		}

		containers, err := app.engine.ListContainers(ctx)
		if err != nil {
			app.logger.Warn(ctx, "list containers failed", "error", err)
			continue
		}
		pending, _ := app.engine.PendingCount(ctx)
		args := []any{"marker", app.engine.LastUpdate(), "containers", len(containers), "pending", pending}
		if rec := app.engine.LastError(); rec != nil {
			args = append(args, "last_error", rec.Err.Error())
		}
		app.logger.Info(ctx, "local data changed", args...)
	}
}

func (app *App) shutdown(ctx context.Context) {
	app.logger.Info(ctx, "Stopping sync client...")
	app.engine.Close()
	if err := app.remote.Close(); err != nil {
		app.logger.Warn(ctx, "close grpc client", "error", err)
	}
	if err := app.store.Close(); err != nil {
		app.logger.Warn(ctx, "close local store", "error", err)
	}
	app.closeLog()
}

func (app *App) closeLog() {
	if app.logCloser != nil {
		_ = app.logCloser.Close()
	}
}
