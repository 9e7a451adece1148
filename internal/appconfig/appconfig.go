// Package appconfig loads daemon configuration from environment variables
// (with legacy-name fallback chains) and constructs the shared logger,
// mirroring the teacher's pkg/config.Config in shape.
package appconfig

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds daemon-wide configuration.
type Config struct {
	ConfigDir        string        `json:"config_dir"`
	ServiceHost      string        `json:"service_host"`
	ServicePort      int           `json:"service_port"`
	AutoReconnect    bool          `json:"auto_reconnect"`
	AutoDiscover     bool          `json:"auto_discover"`
	AutoSaveConfig   bool          `json:"auto_save_config"`
	StatusWait       time.Duration `json:"status_wait"`
	LogLevel         logrus.Level  `json:"log_level"`
	MsgIDResetPeriod time.Duration `json:"msg_id_reset_period"`
	MsgIDMaxCommands int           `json:"msg_id_max_commands"`
}

// DefaultConfig returns the configuration used when no environment variables
// are set.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		ConfigDir:        filepath.Join(home, ".aqua-ble"),
		ServiceHost:      "0.0.0.0",
		ServicePort:      8080,
		AutoReconnect:    true,
		AutoDiscover:     false,
		AutoSaveConfig:   true,
		StatusWait:       1500 * time.Millisecond,
		LogLevel:         logrus.InfoLevel,
		MsgIDResetPeriod: 24 * time.Hour,
		MsgIDMaxCommands: 1000,
	}
}

// Load builds a Config from the process environment, falling back to
// DefaultConfig for anything unset.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if v, ok := lookupEnv("AQUA_BLE_CONFIG_DIR"); ok {
		cfg.ConfigDir = v
	}
	if v, ok := lookupEnv("AQUA_BLE_SERVICE_HOST"); ok {
		cfg.ServiceHost = v
	}
	if v, ok := lookupEnv("AQUA_BLE_SERVICE_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, &InvalidEnvError{Name: "AQUA_BLE_SERVICE_PORT", Value: v, Err: err}
		}
		cfg.ServicePort = port
	}
	if v, ok := lookupEnv("AQUA_BLE_AUTO_RECONNECT"); ok {
		b, err := parseBool(v)
		if err != nil {
			return nil, &InvalidEnvError{Name: "AQUA_BLE_AUTO_RECONNECT", Value: v, Err: err}
		}
		cfg.AutoReconnect = b
	}
	if v, ok := lookupEnv("AQUA_BLE_AUTO_DISCOVER"); ok {
		b, err := parseBool(v)
		if err != nil {
			return nil, &InvalidEnvError{Name: "AQUA_BLE_AUTO_DISCOVER", Value: v, Err: err}
		}
		cfg.AutoDiscover = b
	}
	if v, ok := lookupEnv("AQUA_BLE_AUTO_SAVE"); ok {
		b, err := parseBool(v)
		if err != nil {
			return nil, &InvalidEnvError{Name: "AQUA_BLE_AUTO_SAVE", Value: v, Err: err}
		}
		cfg.AutoSaveConfig = b
	}
	if v, ok := lookupEnv("AQUA_BLE_STATUS_WAIT"); ok {
		seconds, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, &InvalidEnvError{Name: "AQUA_BLE_STATUS_WAIT", Value: v, Err: err}
		}
		cfg.StatusWait = time.Duration(seconds * float64(time.Second))
	}
	if v, ok := lookupEnv("AQUA_BLE_LOG_LEVEL"); ok {
		level, err := logrus.ParseLevel(v)
		if err != nil {
			return nil, &InvalidEnvError{Name: "AQUA_BLE_LOG_LEVEL", Value: v, Err: err}
		}
		cfg.LogLevel = level
	}
	if v, ok := lookupEnv("AQUA_MSG_ID_RESET_HOURS"); ok {
		hours, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, &InvalidEnvError{Name: "AQUA_MSG_ID_RESET_HOURS", Value: v, Err: err}
		}
		cfg.MsgIDResetPeriod = time.Duration(hours * float64(time.Hour))
	}
	if v, ok := lookupEnv("AQUA_MSG_ID_MAX_COMMANDS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, &InvalidEnvError{Name: "AQUA_MSG_ID_MAX_COMMANDS", Value: v, Err: err}
		}
		cfg.MsgIDMaxCommands = n
	}

	return cfg, nil
}

// InvalidEnvError reports a malformed environment variable value.
type InvalidEnvError struct {
	Name  string
	Value string
	Err   error
}

func (e *InvalidEnvError) Error() string {
	return "invalid value for " + e.Name + " (\"" + e.Value + "\"): " + e.Err.Error()
}
func (e *InvalidEnvError) Unwrap() error { return e.Err }

// legacyNames maps a current env var name to the older names it supersedes,
// checked in order when the current name is unset.
var legacyNames = map[string][]string{
	"AQUA_BLE_CONFIG_DIR":      {"BLIM_CONFIG_DIR", "CHIHIROS_CONFIG_DIR"},
	"AQUA_BLE_SERVICE_HOST":    {"BLE_SERVICE_HOST"},
	"AQUA_BLE_SERVICE_PORT":    {"BLE_SERVICE_PORT"},
	"AQUA_BLE_AUTO_RECONNECT":  {"BLE_AUTO_RECONNECT"},
	"AQUA_BLE_AUTO_DISCOVER":   {"BLE_AUTO_DISCOVER"},
	"AQUA_BLE_AUTO_SAVE":       {"BLE_AUTO_SAVE_CONFIG"},
	"AQUA_BLE_STATUS_WAIT":     {"BLE_STATUS_CAPTURE_WAIT"},
	"AQUA_BLE_LOG_LEVEL":       {"BLIM_LOG_LEVEL"},
	"AQUA_MSG_ID_RESET_HOURS":  {"MSG_ID_RESET_HOURS"},
	"AQUA_MSG_ID_MAX_COMMANDS": {"MSG_ID_MAX_COMMANDS"},
}

func lookupEnv(name string) (string, bool) {
	if v, ok := os.LookupEnv(name); ok {
		return v, true
	}
	for _, legacy := range legacyNames[name] {
		if v, ok := os.LookupEnv(legacy); ok {
			return v, true
		}
	}
	return "", false
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, &strconvSyntaxError{v}
	}
}

type strconvSyntaxError struct{ value string }

func (e *strconvSyntaxError) Error() string { return "not a recognized boolean: " + e.value }

// NewLogger builds the shared structured logger, formatted like the
// teacher's pkg/config.Config.NewLogger.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
