package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracker.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Gateway.Driver)
	assert.Equal(t, "disk", cfg.Objects.Driver)
	assert.Equal(t, 5000, cfg.Undo.GraceMS)
	assert.Equal(t, int64(5<<20), cfg.Uploads.MaxBytes)
}

func TestLoad_YamlOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
gateway:
  driver: postgres
  postgres_dsn: postgres://tracker@localhost/tracker
undo:
  grace_ms: 8000
auth:
  dev_expose_code: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Gateway.Driver)
	assert.Equal(t, "postgres://tracker@localhost/tracker", cfg.Gateway.PostgresDSN)
	assert.Equal(t, 8000, cfg.Undo.GraceMS)
	assert.True(t, cfg.Auth.DevExposeCode)
	// untouched sections keep their defaults
	assert.Equal(t, "disk", cfg.Objects.Driver)
	assert.Equal(t, "tracker_session", cfg.Auth.CookieName)
}

func TestLoad_EnvOverridesYaml(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
`)
	t.Setenv("TRACKER_ADDR", ":7070")
	t.Setenv("TRACKER_GATEWAY_DRIVER", "memory")
	t.Setenv("TRACKER_UNDO_GRACE_MS", "2500")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Gateway.Driver)
	assert.Equal(t, 2500, cfg.Undo.GraceMS)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown gateway driver", "gateway:\n  driver: dynamo\n"},
		{"unknown objects driver", "objects:\n  driver: s3\n"},
		{"postgres without dsn", "gateway:\n  driver: postgres\n"},
		{"gcs without bucket", "objects:\n  driver: gcs\n"},
		{"malformed yaml", "server: [oops\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
