package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xdeleon/offsync/internal/client/config"
)

func TestApp_RunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.ServerEndpointAddr = "127.0.0.1:1"
	cfg.DatabasePath = filepath.Join(dir, "client.db")
	cfg.LogFile = filepath.Join(dir, "client.log")
	cfg.OnlineCheckInterval = 20 * time.Millisecond

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.False(t, app.monitor.IsConnected())
}

func TestNewApp_BadDatabasePath(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	cfg.DatabasePath = filepath.Join(blocker, "client.db")

	_, err := NewApp(context.Background(), cfg)
	require.Error(t, err)
}
