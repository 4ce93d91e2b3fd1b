package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Environment variables consumed by the service. Every required variable
// missing at startup is reported in a single diagnostic; the process never
// starts with a partially defined configuration.
const (
	EnvBackendURL         = "FINNBOURSE_BACKEND_URL"
	EnvRestAPIURL         = "FINNBOURSE_REST_API_URL"
	EnvSessionSecret      = "FINNBOURSE_SESSION_SECRET"
	EnvSessionCallbackURL = "FINNBOURSE_SESSION_CALLBACK_URL"

	EnvListenAddr     = "FINNBOURSE_LISTEN_ADDR"
	EnvPostgresDSN    = "FINNBOURSE_PG_DSN"
	EnvDebug          = "FINNBOURSE_DEBUG"
	EnvGatewayTimeout = "FINNBOURSE_GATEWAY_TIMEOUT"
)

const (
	defaultListenAddr     = ":8080"
	defaultGatewayTimeout = 15 * time.Second
)

// Config holds the resolved service configuration.
type Config struct {
	BackendURL         string
	RestAPIURL         string
	SessionSecret      string
	SessionCallbackURL string

	ListenAddr     string
	PostgresDSN    string
	Debug          bool
	GatewayTimeout time.Duration
}

// Load reads configuration from the environment. All missing required
// variables are collected and returned as one error.
func Load() (Config, error) {
	var missing []string

	require := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		BackendURL:         require(EnvBackendURL),
		RestAPIURL:         require(EnvRestAPIURL),
		SessionSecret:      require(EnvSessionSecret),
		SessionCallbackURL: require(EnvSessionCallbackURL),

		ListenAddr:     strings.TrimSpace(os.Getenv(EnvListenAddr)),
		PostgresDSN:    strings.TrimSpace(os.Getenv(EnvPostgresDSN)),
		GatewayTimeout: defaultGatewayTimeout,
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if raw := strings.TrimSpace(os.Getenv(EnvDebug)); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%s must be a boolean, got %q", EnvDebug, raw)
		}
		cfg.Debug = v
	}
	if raw := strings.TrimSpace(os.Getenv(EnvGatewayTimeout)); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("%s must be a positive duration, got %q", EnvGatewayTimeout, raw)
		}
		cfg.GatewayTimeout = d
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return Config{}, errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}
	return cfg, nil
}
