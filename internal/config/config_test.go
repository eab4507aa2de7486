package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadRequiresDevice(t *testing.T) {
	_, err := Load([]string{})
	assert.Error(t, err)
}

func TestLoadFlagsOnly(t *testing.T) {
	cfg, err := Load([]string{"-device", "http://10.0.0.5"})
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5", cfg.DeviceURL)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 10*time.Second, cfg.PollInterval())
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout())
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
device_url: http://192.168.1.50
listen_addr: ":9000"
poll_interval_seconds: 5
archive_path: /tmp/console.db
backup_file: /tmp/irrigation-config.json
timezone: America/Denver
log_level: debug
statsd_addr: 127.0.0.1:8125
statsd_namespace: irrigation.
statsd_tags: ["site:garden"]
`)
	cfg, err := Load([]string{"-config", path})
	require.NoError(t, err)

	assert.Equal(t, "http://192.168.1.50", cfg.DeviceURL)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.PollInterval())
	assert.Equal(t, "/tmp/console.db", cfg.ArchivePath)
	assert.Equal(t, "/tmp/irrigation-config.json", cfg.BackupFile)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
	assert.Equal(t, []string{"site:garden"}, cfg.StatsdTags)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Denver", loc.String())
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
device_url: http://192.168.1.50
log_level: debug
`)
	cfg, err := Load([]string{"-config", path, "-device", "http://other", "-log-level", "warn", "-listen", ":7000"})
	require.NoError(t, err)

	assert.Equal(t, "http://other", cfg.DeviceURL)
	assert.Equal(t, zerolog.WarnLevel, cfg.LogLevel)
	assert.Equal(t, ":7000", cfg.ListenAddr)
}

func TestInvalidTimezone(t *testing.T) {
	cfg, err := Load([]string{"-device", "http://10.0.0.5"})
	require.NoError(t, err)
	cfg.Timezone = "Mars/Olympus_Mons"
	_, err = cfg.Location()
	assert.Error(t, err)
}

func TestBadYAML(t *testing.T) {
	path := writeConfig(t, "device_url: [broken")
	_, err := Load([]string{"-config", path})
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLogLevel(tt.in), tt.in)
	}
}
