package main

import (
	"testing"
	"time"

	"github.com/querylens/querylens/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestParseFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want config.Overrides
	}{
		{"none", nil, config.Overrides{}},
		{"mode switches", []string{"--dry-run", "--explain-only", "--otel"},
			config.Overrides{DryRun: true, ExplainOnly: true, OTelEnabled: true}},
		{"connection", []string{"--database-url", "mysql://analyst@localhost:3306/shop", "--max-rows", "500", "--query-timeout", "45s"},
			config.Overrides{
				DatabaseURL:  ptr("mysql://analyst@localhost:3306/shop"),
				MaxRows:      ptr(500),
				QueryTimeout: ptr(45 * time.Second),
			}},
		{"http transport", []string{"--transport", "http", "--http-addr", ":9090", "--http-bearer-token", "tok"},
			config.Overrides{Transport: ptr("http"), HTTPAddr: ptr(":9090"), HTTPBearerToken: ptr("tok")}},
		{"pool", []string{"--pool-max-conns", "20", "--pool-min-conns", "2", "--pool-max-conn-lifetime", "1h"},
			config.Overrides{PoolMaxConns: ptr(int32(20)), PoolMinConns: ptr(int32(2)), PoolMaxConnLifetime: ptr(time.Hour)}},
		{"sessions", []string{"--session-timeout", "10m", "--session-sweep-interval", "30s"},
			config.Overrides{SessionTimeout: ptr(10 * time.Minute), SessionSweepInterval: ptr(30 * time.Second)}},
		{"files and logging", []string{"--audit-log", "/tmp/audit.ndjson", "--policy-file", "policy.yaml", "--log-level", "debug"},
			config.Overrides{AuditLog: "/tmp/audit.ndjson", PolicyFile: ptr("policy.yaml"), LogLevel: ptr("debug")}},
		{"explicit zero is still set", []string{"--pool-min-conns", "0"},
			config.Overrides{PoolMinConns: ptr(int32(0))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseFlags(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFlags_Errors(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{
		{"--unknown-flag"},
		{"--max-rows", "many"},
		{"--query-timeout", "30"},
	} {
		_, err := parseFlags(args)
		assert.Error(t, err, args)
	}
}
