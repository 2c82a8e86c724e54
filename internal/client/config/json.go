package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xdeleon/offsync/internal/flagx"
	"github.com/xdeleon/offsync/internal/timex"
)

// JsonConfig is the on-disk shape. Keys absent from the file keep the value
// already in Config.
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	RealtimeURL         string         `json:"realtime_url"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	DatabasePath        string         `json:"database_path"`
	AccessToken         string         `json:"access_token"`
	MaxRetries          int            `json:"max_retries"`
	LogFile             string         `json:"log_file"`
	LogLevel            string         `json:"log_level"`
}

func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	jc := JsonConfig{
		ServerEndpointAddr:  cfg.ServerEndpointAddr,
		RealtimeURL:         cfg.RealtimeURL,
		OnlineCheckInterval: timex.Duration{Duration: cfg.OnlineCheckInterval},
		DatabasePath:        cfg.DatabasePath,
		AccessToken:         cfg.AccessToken,
		MaxRetries:          cfg.MaxRetries,
		LogFile:             cfg.LogFile,
		LogLevel:            cfg.LogLevel,
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	cfg.RealtimeURL = jc.RealtimeURL
	cfg.OnlineCheckInterval = time.Duration(jc.OnlineCheckInterval.Duration)
	cfg.DatabasePath = jc.DatabasePath
	cfg.AccessToken = jc.AccessToken
	cfg.MaxRetries = jc.MaxRetries
	cfg.LogFile = jc.LogFile
	cfg.LogLevel = jc.LogLevel
	return nil
}
