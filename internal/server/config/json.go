package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xdeleon/offsync/internal/flagx"
	"github.com/xdeleon/offsync/internal/timex"
)

// JsonConfig is the on-disk shape. Durations accept "1h" or integer
// nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC            string         `json:"endpoint_addr_grpc"`
	EndpointAddrHTTP            string         `json:"endpoint_addr_http"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	LogFile                     string         `json:"log_file"`
	LogLevel                    string         `json:"log_level"`
}

// parseJson overlays cfg with the file named by -c/-config or the config
// env var. Keys absent from the file keep their current value.
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
		EndpointAddrGRPC:            cfg.EndpointAddrGRPC,
		EndpointAddrHTTP:            cfg.EndpointAddrHTTP,
		DatabaseDSN:                 cfg.DatabaseDSN,
		SecretKey:                   cfg.SecretKey,
		AccessTokenValidityDuration: timex.Duration{Duration: cfg.AccessTokenValidityDuration},
		LogFile:                     cfg.LogFile,
		LogLevel:                    cfg.LogLevel,
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.EndpointAddrGRPC = jc.EndpointAddrGRPC
	cfg.EndpointAddrHTTP = jc.EndpointAddrHTTP
	cfg.DatabaseDSN = jc.DatabaseDSN
	cfg.SecretKey = jc.SecretKey
	cfg.AccessTokenValidityDuration = jc.AccessTokenValidityDuration.Duration
	cfg.LogFile = jc.LogFile
	cfg.LogLevel = jc.LogLevel
	return nil
}
