package config

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vango-dev/tickwire/internal/errors"
	"github.com/vango-dev/tickwire/pkg/clock"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "tickwire.json"

	// DefaultAddr is the address a server listens on and a client dials.
	DefaultAddr = "127.0.0.1:7564"

	// DefaultTransport is the transport used when none is configured.
	DefaultTransport = "tcp"

	// DefaultConnectTimeout bounds how long a client waits to connect.
	DefaultConnectTimeout = "500ms"

	// DefaultLogLevel is the slog level used when none is configured.
	DefaultLogLevel = "info"
)

// Transports lists the accepted values of the transport fields.
var Transports = []string{"tcp", "ws"}

// Config represents the complete tickwire.json configuration.
type Config struct {
	// Server configures tickwire serve.
	Server ServerConfig `json:"server"`

	// Client configures tickwire connect.
	Client ClientConfig `json:"client"`

	// Clock tunes the RTT and offset estimators on both ends.
	Clock ClockConfig `json:"clock"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `json:"logLevel,omitempty"`

	configPath string
	raw        []byte
}

// ServerConfig contains server settings.
type ServerConfig struct {
	// Addr is the address to listen on.
	Addr string `json:"addr,omitempty"`

	// Transport is tcp or ws.
	Transport string `json:"transport,omitempty"`

	// TickRate is the number of ticks per second.
	TickRate int `json:"tickRate,omitempty"`

	// MetricsAddr serves /metrics and /healthz when set.
	MetricsAddr string `json:"metricsAddr,omitempty"`
}

// ClientConfig contains client settings.
type ClientConfig struct {
	// Addr is the server address to dial.
	Addr string `json:"addr,omitempty"`

	// Transport is tcp or ws.
	Transport string `json:"transport,omitempty"`

	// TickRate is the number of ticks per second.
	TickRate int `json:"tickRate,omitempty"`

	// ConnectTimeout is a duration string such as "500ms".
	ConnectTimeout string `json:"connectTimeout,omitempty"`
}

// ClockConfig contains estimator settings shared by server and client.
type ClockConfig struct {
	// WindowSize is the number of samples the moving averages keep.
	WindowSize int `json:"windowSize,omitempty"`

	// PingEvery is the number of ticks between pings.
	PingEvery int `json:"pingEvery,omitempty"`
}

// Default creates a new Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      DefaultAddr,
			Transport: DefaultTransport,
			TickRate:  clock.DefaultTickRate,
		},
		Client: ClientConfig{
			Addr:           DefaultAddr,
			Transport:      DefaultTransport,
			TickRate:       clock.DefaultTickRate,
			ConnectTimeout: DefaultConnectTimeout,
		},
		Clock: ClockConfig{
			WindowSize: clock.DefaultWindowSize,
			PingEvery:  clock.DefaultPingEvery,
		},
		LogLevel: DefaultLogLevel,
	}
}

// Load reads configuration from the specified directory.
// It looks for tickwire.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path. Fields missing
// from the file keep their defaults. The result is validated.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeConfigNotFound).
				WithDetail("No " + filepath.Base(path) + " found in " + filepath.Dir(path)).
				WithSuggestion("Run 'tickwire serve' without --config to use the defaults")
		}
		return nil, errors.New(errors.CodeConfigRead).Wrap(err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		te := errors.New(errors.CodeConfigSyntax).Wrap(err).
			WithSuggestion("Check that " + filepath.Base(path) + " is valid JSON")
		var syntax *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case stderrors.As(err, &syntax):
			te.WithOffset(path, data, syntax.Offset)
		case stderrors.As(err, &typeErr):
			te.WithOffset(path, data, typeErr.Offset)
		}
		return nil, te
	}

	cfg.configPath = path
	cfg.raw = data
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New(errors.CodeConfigRead).Wrap(err)
	}

	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New(errors.CodeConfigRead).Wrap(err)
	}

	c.configPath = path
	c.raw = data
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.Transport == "" {
		c.Server.Transport = DefaultTransport
	}
	if c.Client.Addr == "" {
		c.Client.Addr = DefaultAddr
	}
	if c.Client.Transport == "" {
		c.Client.Transport = DefaultTransport
	}
	if c.Client.ConnectTimeout == "" {
		c.Client.ConnectTimeout = DefaultConnectTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Validate checks if the configuration is valid. The returned error is an
// *errors.TickError pointing at the offending key when the config came from
// a file.
func (c *Config) Validate() error {
	if err := validTickRate(c.Server.TickRate); err != nil {
		return c.at(err, "server", "tickRate")
	}
	if err := validTickRate(c.Client.TickRate); err != nil {
		return c.at(err, "client", "tickRate")
	}
	if !validTransport(c.Server.Transport) {
		return c.at(transportError(c.Server.Transport), "server", "transport")
	}
	if !validTransport(c.Client.Transport) {
		return c.at(transportError(c.Client.Transport), "client", "transport")
	}
	if err := validAddr(c.Server.Addr); err != nil {
		return c.at(err, "server", "addr")
	}
	if err := validAddr(c.Client.Addr); err != nil {
		return c.at(err, "client", "addr")
	}
	if c.Server.MetricsAddr != "" {
		if err := validAddr(c.Server.MetricsAddr); err != nil {
			return c.at(err, "server", "metricsAddr")
		}
	}
	if d, err := time.ParseDuration(c.Client.ConnectTimeout); err != nil || d <= 0 {
		te := errors.New(errors.CodeInvalidTimeout)
		if err != nil {
			te.Wrap(err)
		}
		return c.at(te, "client", "connectTimeout")
	}
	if c.Clock.WindowSize < 1 {
		return c.at(errors.New(errors.CodeInvalidWindow), "clock", "windowSize")
	}
	if c.Clock.PingEvery < 1 {
		return c.at(errors.New(errors.CodeInvalidPingEvery), "clock", "pingEvery")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return c.at(err, "", "logLevel")
	}
	return nil
}

// ConnectTimeoutDuration returns Client.ConnectTimeout parsed, falling back
// to DefaultConnectTimeout.
func (c *Config) ConnectTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Client.ConnectTimeout)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultConnectTimeout)
	}
	return d
}

// ClockConfig returns a clock.Config for tickRate with the estimator
// settings applied.
func (c *Config) ClockConfig(tickRate int) clock.Config {
	cc := clock.DefaultConfig(uint8(tickRate))
	if c.Clock.WindowSize > 0 {
		cc.WindowSize = c.Clock.WindowSize
	}
	if c.Clock.PingEvery > 0 {
		cc.PingEvery = c.Clock.PingEvery
	}
	return cc
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	level, err := parseLevel(name)
	if err != nil {
		return level, err
	}
	return level, nil
}

func parseLevel(name string) (slog.Level, *errors.TickError) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, errors.New(errors.CodeInvalidLogLevel).
		WithDetail("Unknown log level " + `"` + name + `"` + ". Use debug, info, warn or error.")
}

// ValidateTickRate reports whether rate fits the tick counter.
func ValidateTickRate(rate int) error {
	if err := validTickRate(rate); err != nil {
		return err
	}
	return nil
}

// ValidateTransport reports whether name is a known transport.
func ValidateTransport(name string) error {
	if !validTransport(name) {
		return transportError(name)
	}
	return nil
}

// ValidateAddr reports whether addr has the host:port form.
func ValidateAddr(addr string) error {
	if err := validAddr(addr); err != nil {
		return err
	}
	return nil
}

func validTickRate(rate int) *errors.TickError {
	if rate < 1 || rate > 255 {
		return errors.New(errors.CodeInvalidTickRate).
			WithExample(`"tickRate": 30`)
	}
	return nil
}

func validTransport(name string) bool {
	for _, t := range Transports {
		if t == name {
			return true
		}
	}
	return false
}

func transportError(name string) *errors.TickError {
	return errors.New(errors.CodeInvalidTransport).
		WithDetail(`Unknown transport "` + name + `". The transport must be one of tcp or ws.`)
}

func validAddr(addr string) *errors.TickError {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return errors.New(errors.CodeInvalidAddr).Wrap(err)
	}
	return nil
}

// at points te at key, looked up after the section key, in the loaded file.
// Keys the file does not mention leave te without a location.
func (c *Config) at(te *errors.TickError, section, key string) *errors.TickError {
	if len(c.raw) == 0 {
		return te
	}
	offset := 0
	if section != "" {
		idx := bytes.Index(c.raw, []byte(`"`+section+`"`))
		if idx < 0 {
			return te
		}
		offset = idx + len(section) + 2
	}
	idx := bytes.Index(c.raw[offset:], []byte(`"`+key+`"`))
	if idx < 0 {
		return te
	}
	return te.WithOffset(c.configPath, c.raw, int64(offset+idx))
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindProjectRoot walks up directories to find one holding tickwire.json.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New(errors.CodeConfigNotFound).
				WithDetail("No " + ConfigFileName + " found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads tickwire.json from the working directory or one
// of its parents. Without one it returns Default.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return Default(), nil
	}

	return Load(root)
}
