package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vango-dev/tickwire/internal/errors"
)

func writeEnv(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, EnvFileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestApplyEnvFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFile(writeConfig(t, dir, `{"server": {"tickRate": 60}}`))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	writeEnv(t, dir, `# overrides
TICKWIRE_TRANSPORT=ws
TICKWIRE_SERVER_ADDR=0.0.0.0:9000
TICKWIRE_METRICS_ADDR=":9100"
UNRELATED=1
`)

	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Server.Transport != "ws" || cfg.Client.Transport != "ws" {
		t.Errorf("Transport = %q/%q, want ws", cfg.Server.Transport, cfg.Client.Transport)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" || cfg.Client.Addr != DefaultAddr {
		t.Errorf("Addr = %q/%q", cfg.Server.Addr, cfg.Client.Addr)
	}
	if cfg.Server.MetricsAddr != ":9100" {
		t.Errorf("MetricsAddr = %q", cfg.Server.MetricsAddr)
	}
	if cfg.Server.TickRate != 60 {
		t.Errorf("TickRate = %d, want 60 from the file", cfg.Server.TickRate)
	}
}

func TestApplyEnvProcessWins(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFile(writeConfig(t, dir, `{}`))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	writeEnv(t, dir, "TICKWIRE_TICK_RATE=20\nTICKWIRE_LOG_LEVEL=warn\n")
	t.Setenv(EnvTickRate, "120")

	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Server.TickRate != 120 || cfg.Client.TickRate != 120 {
		t.Errorf("TickRate = %d/%d, want 120", cfg.Server.TickRate, cfg.Client.TickRate)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
}

func TestApplyEnvWithoutFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFile(writeConfig(t, dir, `{}`))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	t.Setenv(EnvConnectTimeout, "3s")

	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if got := cfg.ConnectTimeoutDuration().String(); got != "3s" {
		t.Errorf("ConnectTimeoutDuration() = %s, want 3s", got)
	}
}

func TestApplyEnvValidation(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		wantCode string
	}{
		{name: "tick rate not a number", key: EnvTickRate, value: "fast", wantCode: errors.CodeInvalidTickRate},
		{name: "tick rate range", key: EnvTickRate, value: "0", wantCode: errors.CodeInvalidTickRate},
		{name: "transport", key: EnvTransport, value: "udp", wantCode: errors.CodeInvalidTransport},
		{name: "server addr", key: EnvServerAddr, value: "7564", wantCode: errors.CodeInvalidAddr},
		{name: "client addr empty", key: EnvClientAddr, value: "", wantCode: errors.CodeInvalidAddr},
		{name: "timeout", key: EnvConnectTimeout, value: "-1s", wantCode: errors.CodeInvalidTimeout},
		{name: "log level", key: EnvLogLevel, value: "loud", wantCode: errors.CodeInvalidLogLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			cfg, err := LoadFile(writeConfig(t, dir, `{}`))
			if err != nil {
				t.Fatalf("LoadFile() error = %v", err)
			}
			t.Setenv(tt.key, tt.value)

			err = cfg.ApplyEnv()
			if !errors.HasCode(err, tt.wantCode) {
				t.Fatalf("ApplyEnv() error = %v, want %s", err, tt.wantCode)
			}
			te := err.(*errors.TickError)
			if want := "Set by " + tt.key; !strings.HasPrefix(te.Detail, want) {
				t.Errorf("Detail = %q, want prefix %q", te.Detail, want)
			}
		})
	}
}

func TestApplyEnvEmptyMetricsAddr(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFile(writeConfig(t, dir, `{"server": {"metricsAddr": ":9100"}}`))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	t.Setenv(EnvMetricsAddr, "")

	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Server.MetricsAddr != "" {
		t.Errorf("MetricsAddr = %q, want disabled", cfg.Server.MetricsAddr)
	}
}

func TestApplyEnvBadFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFile(writeConfig(t, dir, `{}`))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, EnvFileName), 0755); err != nil {
		t.Fatal(err)
	}

	if err := cfg.ApplyEnv(); !errors.HasCode(err, errors.CodeConfigRead) {
		t.Fatalf("ApplyEnv() error = %v, want %s", err, errors.CodeConfigRead)
	}
}
