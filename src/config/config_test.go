package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Setenv("ENABLE_FILE_LOGGING", "true")
	t.Setenv("HOTKEY", "Ctrl+Shift+T")
	t.Setenv("MIN_SELECTION_SIZE", "24")
	t.Setenv("CAPTURE_DEADLINE_SEC", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	if !cfg.EnableFileLogging {
		t.Errorf("Expected EnableFileLogging to be true, got %v", cfg.EnableFileLogging)
	}
	if cfg.Hotkey != "Ctrl+Shift+T" {
		t.Errorf("Expected Hotkey to be 'Ctrl+Shift+T', got '%s'", cfg.Hotkey)
	}
	if cfg.MinSelectionSize != 24 {
		t.Errorf("Expected MinSelectionSize 24, got %v", cfg.MinSelectionSize)
	}
	if cfg.CaptureDeadlineSec != 3 {
		t.Errorf("Expected CaptureDeadlineSec 3, got %d", cfg.CaptureDeadlineSec)
	}
	if cfg.MaxCaptureDimension != DefaultMaxCaptureDimension {
		t.Errorf("Expected default MaxCaptureDimension, got %v", cfg.MaxCaptureDimension)
	}
}

func TestInvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("MIN_SELECTION_SIZE", "-4")
	t.Setenv("MAX_CAPTURE_DIMENSION", "huge")
	t.Setenv("CAPTURE_DEADLINE_SEC", "0")
	t.Setenv("DISPLAY_SCALE_FACTOR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.MinSelectionSize != DefaultMinSelectionSize ||
		cfg.MaxCaptureDimension != DefaultMaxCaptureDimension ||
		cfg.CaptureDeadlineSec != DefaultCaptureDeadlineSec ||
		cfg.DisplayScaleFactor != DefaultDisplayScaleFactor {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadOptionsOverride(t *testing.T) {
	t.Setenv("HOTKEY", "Ctrl+Alt+Z")
	t.Setenv("DISPLAY_SCALE_FACTOR", "1.5")

	cfg, err := LoadWithOptions(LoadOptions{HotkeyOverride: " Win+Shift+S ", ScaleFactorOverride: 2})
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Hotkey != "Win+Shift+S" {
		t.Errorf("Expected hotkey override, got %q", cfg.Hotkey)
	}
	if cfg.DisplayScaleFactor != 2 {
		t.Errorf("Expected scale override 2, got %v", cfg.DisplayScaleFactor)
	}
}

func TestEnvFileFromConfigPathVar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.env")
	if err := os.WriteFile(path, []byte("HOTKEY_FROM_FILE_TEST=yes\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HOTKEY_FROM_FILE_TEST", "")
	os.Unsetenv("HOTKEY_FROM_FILE_TEST")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.EnvPath != path {
		t.Skipf(".env next to the test binary takes precedence: %s", cfg.EnvPath)
	}
	if got := os.Getenv("HOTKEY_FROM_FILE_TEST"); got != "yes" {
		t.Errorf("expected value from %s, got %q", path, got)
	}
}
