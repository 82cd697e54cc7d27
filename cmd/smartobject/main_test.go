package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestRun_InvalidConfig(t *testing.T) {
	err := run(context.Background(), []string{"-config", "/nonexistent/path/config.yaml"})
	if err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Fatalf("run() error = %v, want loading config error", err)
	}
}

func TestRun_InvalidDeviceID(t *testing.T) {
	path := writeConfig(t, `
device:
  id: "device/001"
`)
	err := run(context.Background(), []string{"-config", path})
	if err == nil || !strings.Contains(err.Error(), "device.id") {
		t.Fatalf("run() error = %v, want device.id validation error", err)
	}
}

func TestRun_BrokerUnreachable(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  broker:
    host: "127.0.0.1"
    port: 19999
  reconnect:
    max_attempts: 1
logging:
  level: error
`)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := run(ctx, []string{"-config", path})
	if err == nil || !strings.Contains(err.Error(), "connecting to MQTT") {
		t.Fatalf("run() error = %v, want MQTT connection error", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("SMARTOBJECT_CONFIG", "")
	if got := getConfigPath(""); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("SMARTOBJECT_CONFIG", "/custom/path/config.yaml")
	if got := getConfigPath(""); got != "/custom/path/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", got)
	}
	if got := getConfigPath("flag.yaml"); got != "flag.yaml" {
		t.Errorf("getConfigPath(flag.yaml) = %q, want flag value", got)
	}
}
