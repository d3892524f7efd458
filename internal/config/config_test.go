package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vango-dev/tickwire/internal/errors"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Addr != DefaultAddr || cfg.Client.Addr != DefaultAddr {
		t.Errorf("Addr = %q/%q, want %q", cfg.Server.Addr, cfg.Client.Addr, DefaultAddr)
	}
	if cfg.Server.TickRate != 30 || cfg.Client.TickRate != 30 {
		t.Errorf("TickRate = %d/%d, want 30", cfg.Server.TickRate, cfg.Client.TickRate)
	}
	if cfg.Clock.WindowSize != 16 || cfg.Clock.PingEvery != 8 {
		t.Errorf("Clock = %+v", cfg.Clock)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()

	_, err := Load(tmpDir)
	if !errors.HasCode(err, errors.CodeConfigNotFound) {
		t.Fatalf("Load() missing file error = %v, want %s", err, errors.CodeConfigNotFound)
	}

	writeConfig(t, tmpDir, `{
  "server": {
    "addr": ":9000",
    "transport": "ws",
    "tickRate": 60,
    "metricsAddr": ":9100"
  },
  "client": {
    "addr": "10.0.0.1:9000",
    "connectTimeout": "2s"
  },
  "clock": {
    "pingEvery": 4
  },
  "logLevel": "debug"
}
`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != ":9000" || cfg.Server.Transport != "ws" || cfg.Server.TickRate != 60 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Server.MetricsAddr != ":9100" {
		t.Errorf("MetricsAddr = %q", cfg.Server.MetricsAddr)
	}
	if cfg.Client.Transport != DefaultTransport || cfg.Client.TickRate != 30 {
		t.Errorf("Client defaults not kept: %+v", cfg.Client)
	}
	if cfg.ConnectTimeoutDuration() != 2*time.Second {
		t.Errorf("ConnectTimeoutDuration() = %v, want 2s", cfg.ConnectTimeoutDuration())
	}
	if cfg.Clock.PingEvery != 4 || cfg.Clock.WindowSize != 16 {
		t.Errorf("Clock = %+v", cfg.Clock)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.Dir() != tmpDir {
		t.Errorf("Dir() = %q, want %q", cfg.Dir(), tmpDir)
	}
}

func TestLoadFileSyntaxError(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{
  "server": {
    "addr": ":7564",
  }
}
`)

	_, err := LoadFile(path)
	te, ok := err.(*errors.TickError)
	if !ok {
		t.Fatalf("LoadFile() error = %T %v, want *TickError", err, err)
	}
	if te.Code != errors.CodeConfigSyntax {
		t.Errorf("Code = %s, want %s", te.Code, errors.CodeConfigSyntax)
	}
	if te.Location == nil || te.Location.Line != 4 {
		t.Errorf("Location = %v, want line 4", te.Location)
	}
}

func TestLoadFileTypeError(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{"server": {"tickRate": "fast"}}`)

	_, err := LoadFile(path)
	if !errors.HasCode(err, errors.CodeConfigSyntax) {
		t.Fatalf("LoadFile() error = %v, want %s", err, errors.CodeConfigSyntax)
	}
}

func TestLoadFileValidation(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantCode string
		wantLine int
		wantCol  int
	}{
		{
			name:     "client tick rate too high",
			content:  "{\n  \"client\": {\n    \"tickRate\": 300\n  }\n}\n",
			wantCode: errors.CodeInvalidTickRate,
			wantLine: 3,
			wantCol:  5,
		},
		{
			name:     "server tick rate zero",
			content:  "{\n  \"server\": {\n    \"tickRate\": 0\n  }\n}\n",
			wantCode: errors.CodeInvalidTickRate,
			wantLine: 3,
			wantCol:  5,
		},
		{
			name:     "unknown transport",
			content:  "{\n  \"server\": {\"transport\": \"udp\"}\n}\n",
			wantCode: errors.CodeInvalidTransport,
			wantLine: 2,
			wantCol:  14,
		},
		{
			name:     "bad client addr",
			content:  "{\"client\": {\"addr\": \"nohost\"}}",
			wantCode: errors.CodeInvalidAddr,
			wantLine: 1,
			wantCol:  13,
		},
		{
			name:     "bad timeout",
			content:  "{\"client\": {\"connectTimeout\": \"soon\"}}",
			wantCode: errors.CodeInvalidTimeout,
			wantLine: 1,
			wantCol:  13,
		},
		{
			name:     "negative window",
			content:  "{\"clock\": {\"windowSize\": -1}}",
			wantCode: errors.CodeInvalidWindow,
			wantLine: 1,
			wantCol:  12,
		},
		{
			name:     "bad log level",
			content:  "{\n\"logLevel\": \"loud\"\n}",
			wantCode: errors.CodeInvalidLogLevel,
			wantLine: 2,
			wantCol:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)
			_, err := LoadFile(path)
			te, ok := err.(*errors.TickError)
			if !ok {
				t.Fatalf("LoadFile() error = %T %v, want *TickError", err, err)
			}
			if te.Code != tt.wantCode {
				t.Errorf("Code = %s, want %s", te.Code, tt.wantCode)
			}
			if te.Location == nil {
				t.Fatal("Location is nil")
			}
			if te.Location.Line != tt.wantLine || te.Location.Column != tt.wantCol {
				t.Errorf("Location = %d:%d, want %d:%d",
					te.Location.Line, te.Location.Column, tt.wantLine, tt.wantCol)
			}
		})
	}
}

func TestValidateWithoutFile(t *testing.T) {
	cfg := Default()
	cfg.Clock.PingEvery = 0

	err := cfg.Validate()
	te, ok := err.(*errors.TickError)
	if !ok || te.Code != errors.CodeInvalidPingEvery {
		t.Fatalf("Validate() error = %v, want %s", err, errors.CodeInvalidPingEvery)
	}
	if te.Location != nil {
		t.Errorf("Location = %v, want nil without a file", te.Location)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := Default()
	cfg.Server.Transport = "ws"
	cfg.Clock.WindowSize = 32

	if err := cfg.Save(); err == nil {
		t.Fatal("Save() without a path should fail")
	}
	path := filepath.Join(tmpDir, ConfigFileName)
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}
	if cfg.Path() != path {
		t.Errorf("Path() = %q, want %q", cfg.Path(), path)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if loaded.Server.Transport != "ws" || loaded.Clock.WindowSize != 32 {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{}`)
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	got, err := FindProjectRoot(nested)
	if err != nil {
		t.Fatalf("FindProjectRoot() error = %v", err)
	}
	want, _ := filepath.Abs(root)
	if got != want {
		t.Errorf("FindProjectRoot() = %q, want %q", got, want)
	}
	if !Exists(root) || Exists(nested) {
		t.Error("Exists() mismatch")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    slog.Level
		wantErr bool
	}{
		{name: "debug", want: slog.LevelDebug},
		{name: "INFO", want: slog.LevelInfo},
		{name: "", want: slog.LevelInfo},
		{name: "warning", want: slog.LevelWarn},
		{name: "error", want: slog.LevelError},
		{name: "trace", want: slog.LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFlagValidators(t *testing.T) {
	if err := ValidateTickRate(30); err != nil {
		t.Errorf("ValidateTickRate(30) error = %v", err)
	}
	if err := ValidateTickRate(256); !errors.HasCode(err, errors.CodeInvalidTickRate) {
		t.Errorf("ValidateTickRate(256) error = %v", err)
	}
	if err := ValidateTransport("ws"); err != nil {
		t.Errorf("ValidateTransport(ws) error = %v", err)
	}
	if err := ValidateTransport("quic"); !errors.HasCode(err, errors.CodeInvalidTransport) {
		t.Errorf("ValidateTransport(quic) error = %v", err)
	}
	if err := ValidateAddr(":7564"); err != nil {
		t.Errorf("ValidateAddr(:7564) error = %v", err)
	}
	if err := ValidateAddr("7564"); !errors.HasCode(err, errors.CodeInvalidAddr) {
		t.Errorf("ValidateAddr(7564) error = %v", err)
	}
}

func TestClockConfig(t *testing.T) {
	cfg := Default()
	cfg.Clock.WindowSize = 4
	cfg.Clock.PingEvery = 2

	cc := cfg.ClockConfig(60)
	if cc.TickRate != 60 || cc.WindowSize != 4 || cc.PingEvery != 2 {
		t.Errorf("ClockConfig() = %+v", cc)
	}
	if cc.Now == nil || cc.Sleep == nil {
		t.Error("ClockConfig() should keep the real time hooks")
	}
}
