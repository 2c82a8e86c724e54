// Package config loads runtime configuration for the sync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c/-config or $OFFSYNC_CONFIG.
//  3. Command-line flags, which override earlier values.
//
// # JSON schema
//
// Intervals use timex.Duration, so values can be strings like "3s" or
// integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "realtime_url": "ws://127.0.0.1:8080/realtime",
//	  "online_check_interval": "3s",
//	  "database_path": "offsync.db",
//	  "max_retries": 10,
//	  "log_file": "offsync.log",
//	  "log_level": "debug"
//	}
package config
