package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv(EnvBackendURL, "https://backend.example")
	t.Setenv(EnvRestAPIURL, "https://rest.example")
	t.Setenv(EnvSessionSecret, "secret")
	t.Setenv(EnvSessionCallbackURL, "https://front.example/login")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.GatewayTimeout != 15*time.Second {
		t.Errorf("GatewayTimeout = %s", cfg.GatewayTimeout)
	}
	if cfg.Debug {
		t.Error("Debug defaults to false")
	}
}

func TestLoadReportsAllMissingVariables(t *testing.T) {
	t.Setenv(EnvBackendURL, "")
	t.Setenv(EnvRestAPIURL, "")
	t.Setenv(EnvSessionSecret, "")
	t.Setenv(EnvSessionCallbackURL, "https://front.example/login")

	_, err := Load()
	if err == nil {
		t.Fatal("Load succeeded with missing variables")
	}
	for _, key := range []string{EnvBackendURL, EnvRestAPIURL, EnvSessionSecret} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error does not name %s: %v", key, err)
		}
	}
	if strings.Contains(err.Error(), EnvSessionCallbackURL) {
		t.Errorf("error names a variable that is set: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv(EnvListenAddr, "127.0.0.1:9999")
	t.Setenv(EnvDebug, "true")
	t.Setenv(EnvGatewayTimeout, "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9999" || !cfg.Debug || cfg.GatewayTimeout != 30*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadRejectsBadOptionals(t *testing.T) {
	setRequired(t)

	t.Setenv(EnvDebug, "yep")
	if _, err := Load(); err == nil {
		t.Error("Load accepted a non-boolean debug flag")
	}
	t.Setenv(EnvDebug, "")

	t.Setenv(EnvGatewayTimeout, "-3s")
	if _, err := Load(); err == nil {
		t.Error("Load accepted a negative timeout")
	}
}
