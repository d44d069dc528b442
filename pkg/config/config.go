package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for the nginx instance under test.
const (
	DefaultHost         = "localhost"
	DefaultHTTPSPort    = 8443
	DefaultHTTPPort     = 8081
	DefaultTimeout      = 5 * time.Second
	DefaultBurstSize    = 30
	DefaultAttempts     = 5
	DefaultBackoff      = 1 * time.Second
	DefaultExpectedBody = "Hello from Nginx"
	DefaultLogLevel     = "warn"
)

// Config is the process-wide target configuration. It is read once at
// start and passed explicitly to every test case.
type Config struct {
	Host      string
	HTTPSPort int
	HTTPPort  int

	// Timeout applies to each individual probe.
	Timeout time.Duration

	// Rate limit burst tuning. The nginx under test allows 5 req/s, so
	// a burst of 30 should trip it within a few attempts.
	BurstSize     int
	BurstAttempts int
	BurstBackoff  time.Duration

	ExpectedBody string
	LogLevel     string
}

// Default returns the configuration used when no environment is set.
func Default() Config {
	return Config{
		Host:          DefaultHost,
		HTTPSPort:     DefaultHTTPSPort,
		HTTPPort:      DefaultHTTPPort,
		Timeout:       DefaultTimeout,
		BurstSize:     DefaultBurstSize,
		BurstAttempts: DefaultAttempts,
		BurstBackoff:  DefaultBackoff,
		ExpectedBody:  DefaultExpectedBody,
		LogLevel:      DefaultLogLevel,
	}
}

// Load reads an optional .env file and then the environment. Variables
// already present in the environment take precedence over the file.
// An empty envFile means ".env" in the working directory, which may be
// absent.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	} else if err := godotenv.Load(envFile); err != nil {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an environment lookup function.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	env := envReader{lookup: lookup}

	cfg.Host = env.str("NGINX_HOST", cfg.Host)
	cfg.HTTPSPort = env.integer("NGINX_HTTPS_PORT", cfg.HTTPSPort)
	cfg.HTTPPort = env.integer("NGINX_HTTP_PORT", cfg.HTTPPort)
	cfg.Timeout = env.duration("PROBE_TIMEOUT", cfg.Timeout)
	cfg.BurstSize = env.integer("BURST_SIZE", cfg.BurstSize)
	cfg.BurstAttempts = env.integer("BURST_ATTEMPTS", cfg.BurstAttempts)
	cfg.BurstBackoff = env.duration("BURST_BACKOFF", cfg.BurstBackoff)
	cfg.ExpectedBody = env.str("EXPECTED_BODY", cfg.ExpectedBody)
	cfg.LogLevel = env.str("LOG_LEVEL", cfg.LogLevel)

	if len(env.errs) > 0 {
		return nil, fmt.Errorf("invalid environment: %w", errors.Join(env.errs...))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Host) == "" {
		errs = append(errs, errors.New("host must not be empty"))
	}
	if !validPort(c.HTTPSPort) {
		errs = append(errs, fmt.Errorf("https port %d out of range", c.HTTPSPort))
	}
	if !validPort(c.HTTPPort) {
		errs = append(errs, fmt.Errorf("http port %d out of range", c.HTTPPort))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.BurstSize <= 0 {
		errs = append(errs, fmt.Errorf("burst size must be positive, got %d", c.BurstSize))
	}
	if c.BurstAttempts <= 0 {
		errs = append(errs, fmt.Errorf("burst attempts must be positive, got %d", c.BurstAttempts))
	}
	if c.BurstBackoff < 0 {
		errs = append(errs, fmt.Errorf("burst backoff must not be negative, got %s", c.BurstBackoff))
	}
	return errors.Join(errs...)
}

// HTTPSURL is the endpoint expected to serve 200 and enforce the rate limit.
func (c *Config) HTTPSURL() string {
	return "https://" + net.JoinHostPort(c.Host, strconv.Itoa(c.HTTPSPort))
}

// HTTPURL is the endpoint expected to answer 404.
func (c *Config) HTTPURL() string {
	return "http://" + net.JoinHostPort(c.Host, strconv.Itoa(c.HTTPPort))
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

// str gets an environment variable or returns a default value
func (r *envReader) str(key, defaultValue string) string {
	if value, ok := r.lookup(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func (r *envReader) integer(key string, defaultValue int) int {
	value, ok := r.lookup(key)
	if !ok || value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return n
}

// duration accepts Go durations ("1500ms") or plain seconds ("2").
func (r *envReader) duration(key string, defaultValue time.Duration) time.Duration {
	value, ok := r.lookup(key)
	if !ok || value == "" {
		return defaultValue
	}
	value = strings.TrimSpace(value)
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}
