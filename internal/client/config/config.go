package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the sync client.
//
// Fields:
//   - ServerEndpointAddr: host:port of the server's gRPC endpoint.
//   - RealtimeURL: websocket URL of the change feed.
//   - OnlineCheckInterval: how often the client probes server reachability.
//   - DatabasePath: SQLite file holding the local store.
//   - AccessToken: bearer token identifying the user; empty means signed out.
//   - MaxRetries: failed attempts before a queued change is parked; 0 retries forever.
//   - LogFile / LogLevel: rotating JSON log destination and threshold.
type Config struct {
	ServerEndpointAddr  string
	RealtimeURL         string
	OnlineCheckInterval time.Duration
	DatabasePath        string
	AccessToken         string
	MaxRetries          int
	LogFile             string
	LogLevel            string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.RealtimeURL = "ws://127.0.0.1:8080/realtime"
	c.OnlineCheckInterval = 3 * time.Second
	c.DatabasePath = "offsync.db"
	c.MaxRetries = 10
	c.LogLevel = "info"
}

// Load applies defaults, then the optional JSON file, then flags from args.
// Later sources take precedence over earlier ones.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig is Load over os.Args; it panics on a bad file or flag.
func LoadConfig() *Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		panic(err)
	}
	return cfg
}
