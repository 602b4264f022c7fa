// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Only the port is validated strictly; everything
// else falls back to a sane default when unset or unparsable.
type Config struct {
	Env             string        // application environment (e.g. "dev", "prod")
	Port            string        // HTTP port to listen on
	Debug           bool          // verbose diagnostics; off unless explicitly enabled
	ShutdownTimeout time.Duration // graceful shutdown budget
	MetricsAddr     string        // admin listener for /metrics; empty disables it
}

// Default returns the configuration used when no environment is provided.
func Default() Config {
	return Config{
		Env:             "dev",
		Port:            "5000",
		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadDotEnv loads variables from the given .env files (".env" when none
// are named) without overriding variables already set.  A missing file is
// not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if fileExists(f) {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load %s: %w", strings.Join(present, ","), err)
	}
	return nil
}

// Load reads configuration values from environment variables and returns a
// Config.  An invalid APP_PORT or APP_DEBUG is reported as an error instead
// of being silently replaced.
func Load() (Config, error) {
	def := Default()
	cfg := Config{
		Env:             envStr("APP_ENV", def.Env),
		Port:            envStr("APP_PORT", def.Port),
		ShutdownTimeout: envDur("SHUTDOWN_TIMEOUT", def.ShutdownTimeout),
		MetricsAddr:     envStr("METRICS_ADDR", ""),
	}
	debug, err := parseBool(envStr("APP_DEBUG", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid APP_DEBUG: %w", err)
	}
	cfg.Debug = debug
	if err := ValidatePort(cfg.Port); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Addr returns the listen address for the configured port.
func (c Config) Addr() string {
	return ":" + c.Port
}

// ValidatePort checks that p is a decimal TCP port.  Port 0 is accepted so
// tests can ask the kernel for an ephemeral port.
func ValidatePort(p string) error {
	n, err := strconv.Atoi(p)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port %q: must be a number between 0 and 65535", p)
	}
	return nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean", v)
}
