package appconfig

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServicePort != 8080 {
		t.Errorf("default service port = %d, want 8080", cfg.ServicePort)
	}
	if cfg.StatusWait != 1500*time.Millisecond {
		t.Errorf("default status wait = %v, want 1.5s", cfg.StatusWait)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("AQUA_BLE_SERVICE_PORT", "9090")
	t.Setenv("AQUA_BLE_AUTO_DISCOVER", "yes")
	t.Setenv("AQUA_BLE_STATUS_WAIT", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServicePort != 9090 {
		t.Errorf("service port = %d, want 9090", cfg.ServicePort)
	}
	if !cfg.AutoDiscover {
		t.Error("expected AutoDiscover = true")
	}
	if cfg.StatusWait != 2500*time.Millisecond {
		t.Errorf("status wait = %v, want 2.5s", cfg.StatusWait)
	}
}

func TestLoadFallsBackToLegacyName(t *testing.T) {
	t.Setenv("BLE_SERVICE_HOST", "10.0.0.5")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServiceHost != "10.0.0.5" {
		t.Errorf("service host = %q, want 10.0.0.5 via legacy fallback", cfg.ServiceHost)
	}
}

func TestLoadRejectsInvalidBool(t *testing.T) {
	t.Setenv("AQUA_BLE_AUTO_RECONNECT", "maybe")
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid boolean value")
	}
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	t.Setenv("AQUA_BLE_SERVICE_PORT", "not-a-number")
	if _, err := Load(); err == nil {
		t.Error("expected error for invalid port")
	}
}
