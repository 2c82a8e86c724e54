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
//	-a string   gRPC bind address (e.g. ":50051")
//	-h string   HTTP bind address for realtime and metrics
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-l string   log file
//	-v string   log level
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-h", "-d", "-s", "-t", "-l", "-v"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.EndpointAddrGRPC, "a", cfg.EndpointAddrGRPC, "address and port to run gRPC server")
	fs.StringVar(&cfg.EndpointAddrHTTP, "h", cfg.EndpointAddrHTTP, "address and port to run HTTP server")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "secret key")
	accessTokenValidity := fs.Int("t", int(cfg.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "log file (stdout when empty)")
	fs.StringVar(&cfg.LogLevel, "v", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	cfg.AccessTokenValidityDuration = time.Duration(*accessTokenValidity) * time.Minute
	return nil
}
