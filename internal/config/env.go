package config

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/vango-dev/tickwire/internal/errors"
)

// EnvFileName is read from the configuration directory when present.
const EnvFileName = ".env"

// Environment variables that override tickwire.json.
const (
	EnvServerAddr     = "TICKWIRE_SERVER_ADDR"
	EnvClientAddr     = "TICKWIRE_CLIENT_ADDR"
	EnvTransport      = "TICKWIRE_TRANSPORT"
	EnvTickRate       = "TICKWIRE_TICK_RATE"
	EnvMetricsAddr    = "TICKWIRE_METRICS_ADDR"
	EnvConnectTimeout = "TICKWIRE_CONNECT_TIMEOUT"
	EnvLogLevel       = "TICKWIRE_LOG_LEVEL"
)

var envKeys = []string{
	EnvServerAddr,
	EnvClientAddr,
	EnvTransport,
	EnvTickRate,
	EnvMetricsAddr,
	EnvConnectTimeout,
	EnvLogLevel,
}

// ApplyEnv overrides c with the TICKWIRE_* variables found in the .env file
// next to the configuration and in the process environment. Process
// variables take precedence over the file.
func (c *Config) ApplyEnv() error {
	vars := make(map[string]string)

	path := filepath.Join(c.Dir(), EnvFileName)
	file, err := godotenv.Read(path)
	switch {
	case err == nil:
		for _, key := range envKeys {
			if v, ok := file[key]; ok {
				vars[key] = v
			}
		}
	case !stderrors.Is(err, fs.ErrNotExist):
		return errors.New(errors.CodeConfigRead).Wrap(err).
			WithDetail("Could not parse " + path)
	}

	for _, key := range envKeys {
		if v, ok := os.LookupEnv(key); ok {
			vars[key] = v
		}
	}

	if te := c.applyVars(vars); te != nil {
		return te
	}
	return nil
}

func (c *Config) applyVars(vars map[string]string) *errors.TickError {
	from := func(te *errors.TickError, key string) *errors.TickError {
		return te.WithDetail("Set by " + key + "=" + strconv.Quote(vars[key]) + ".")
	}

	if v, ok := vars[EnvTickRate]; ok {
		rate, err := strconv.Atoi(v)
		if err != nil {
			return from(errors.New(errors.CodeInvalidTickRate).Wrap(err), EnvTickRate)
		}
		if te := validTickRate(rate); te != nil {
			return from(te, EnvTickRate)
		}
		c.Server.TickRate, c.Client.TickRate = rate, rate
	}
	if v, ok := vars[EnvTransport]; ok {
		if !validTransport(v) {
			return from(errors.New(errors.CodeInvalidTransport), EnvTransport)
		}
		c.Server.Transport, c.Client.Transport = v, v
	}

	addrs := []struct {
		key string
		dst *string
	}{
		{EnvServerAddr, &c.Server.Addr},
		{EnvClientAddr, &c.Client.Addr},
		{EnvMetricsAddr, &c.Server.MetricsAddr},
	}
	for _, a := range addrs {
		v, ok := vars[a.key]
		if !ok {
			continue
		}
		// An empty metrics address disables the endpoint.
		if v != "" || a.key != EnvMetricsAddr {
			if te := validAddr(v); te != nil {
				return from(te, a.key)
			}
		}
		*a.dst = v
	}

	if v, ok := vars[EnvConnectTimeout]; ok {
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			te := errors.New(errors.CodeInvalidTimeout)
			if err != nil {
				te.Wrap(err)
			}
			return from(te, EnvConnectTimeout)
		}
		c.Client.ConnectTimeout = v
	}
	if v, ok := vars[EnvLogLevel]; ok {
		if _, te := parseLevel(v); te != nil {
			return from(te, EnvLogLevel)
		}
		c.LogLevel = v
	}
	return nil
}
