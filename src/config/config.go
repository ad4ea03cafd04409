package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// ConfigPathEnvVar names an alternative .env file when none sits next to the executable.
	ConfigPathEnvVar = "SCREEN_REGION_CAPTURE"

	DefaultHotkey              = "Ctrl+Alt+S"
	DefaultMinSelectionSize    = 10
	DefaultMaxCaptureDimension = 4000
	DefaultCaptureDeadlineSec  = 10
	DefaultDisplayScaleFactor  = 1.0
)

type LoadOptions struct {
	HotkeyOverride      string
	ScaleFactorOverride float64
}

type Config struct {
	EnableFileLogging   bool
	Hotkey              string
	MinSelectionSize    float64
	MaxCaptureDimension float64
	CaptureDeadlineSec  int
	DisplayScaleFactor  float64
	// EnvPath is the .env file that was loaded, empty when none was found.
	EnvPath string
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) .env in the application (executable) directory
	// 2) If not found, use SCREEN_REGION_CAPTURE env var as a path to a config file
	// Values already present in the environment win over the file.
	envPath := resolveEnvPath()
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	cfg := &Config{
		EnableFileLogging:   strings.ToLower(os.Getenv("ENABLE_FILE_LOGGING")) == "true",
		Hotkey:              getEnvWithDefault("HOTKEY", DefaultHotkey),
		MinSelectionSize:    positiveFloat("MIN_SELECTION_SIZE", DefaultMinSelectionSize),
		MaxCaptureDimension: positiveFloat("MAX_CAPTURE_DIMENSION", DefaultMaxCaptureDimension),
		CaptureDeadlineSec:  positiveInt("CAPTURE_DEADLINE_SEC", DefaultCaptureDeadlineSec),
		DisplayScaleFactor:  positiveFloat("DISPLAY_SCALE_FACTOR", DefaultDisplayScaleFactor),
		EnvPath:             envPath,
	}

	if hk := strings.TrimSpace(opts.HotkeyOverride); hk != "" {
		cfg.Hotkey = hk
	}
	if opts.ScaleFactorOverride > 0 {
		cfg.DisplayScaleFactor = opts.ScaleFactorOverride
	}

	return cfg, nil
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}

	execDir := filepath.Dir(execPath)
	exeEnv := filepath.Join(execDir, ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}

	if alt := os.Getenv(ConfigPathEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func positiveInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func positiveFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f > 0 {
			return f
		}
	}
	return defaultValue
}
