package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/xdeleon/offsync/internal/flagx"
)

// parseFlags overlays Config with command-line flags:
//
//	-a string   address and port of the gRPC server
//	-w string   realtime websocket URL
//	-i int      online check interval in seconds
//	-d string   local database path
//	-t string   access token
//	-m int      max retries before a change is parked
//	-l string   log file
//	-v string   log level
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-w", "-i", "-d", "-t", "-m", "-l", "-v"})

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.RealtimeURL, "w", cfg.RealtimeURL, "realtime websocket url")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database path")
	fs.StringVar(&cfg.AccessToken, "t", cfg.AccessToken, "access token")
	fs.IntVar(&cfg.MaxRetries, "m", cfg.MaxRetries, "max retries before a change is parked (0 = unlimited)")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file (stdout when empty)")
	fs.StringVar(&cfg.LogLevel, "v", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	return nil
}
