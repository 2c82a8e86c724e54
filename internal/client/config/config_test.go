package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdeleon/offsync/internal/flagx"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "127.0.0.1:50051", c.ServerEndpointAddr)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
	assert.Equal(t, 10, c.MaxRetries)
	assert.Empty(t, c.AccessToken)
}

func TestLoad_Flags(t *testing.T) {
	t.Setenv(flagx.ConfigEnv, "")

	tests := []struct {
		name    string
		args    []string
		want    func(c *Config)
		wantErr bool
	}{
		{
			name: "all flags",
			args: []string{"-a", "10.0.0.1:9090", "-w", "ws://h/realtime", "-i", "10", "-d", "/tmp/x.db",
				"-t", "tok", "-m", "0", "-l", "c.log", "-v", "debug"},
			want: func(c *Config) {
				c.ServerEndpointAddr = "10.0.0.1:9090"
				c.RealtimeURL = "ws://h/realtime"
				c.OnlineCheckInterval = 10 * time.Second
				c.DatabasePath = "/tmp/x.db"
				c.AccessToken = "tok"
				c.MaxRetries = 0
				c.LogFile = "c.log"
				c.LogLevel = "debug"
			},
		},
		{
			name: "unknown flags are ignored",
			args: []string{"-x", "1", "-a", "h:1"},
			want: func(c *Config) { c.ServerEndpointAddr = "h:1" },
		},
		{name: "bad interval", args: []string{"-i", "abc"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			want := &Config{}
			want.LoadDefaults()
			tt.want(want)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
