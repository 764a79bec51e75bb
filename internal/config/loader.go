package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ryanmccauley/loop/internal/logging"
)

// Default values for Config.
const (
	DefaultMaxIterations = 20
	DefaultMaxRetries    = 3
	DefaultServerPort    = 4096
	DefaultServerBinary  = "opencode"
	DefaultStatusTool    = "task_status"
)

// DefaultServerURL is where `opencode serve` listens by default.
var DefaultServerURL = fmt.Sprintf("http://127.0.0.1:%d", DefaultServerPort)

// Dir is the per-project configuration directory.
const Dir = ".loop"

// DefaultLimits returns limits with sensible default values.
func DefaultLimits() Limits {
	return Limits{
		MaxIterations: DefaultMaxIterations,
		MaxRetries:    DefaultMaxRetries,
	}
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Limits: DefaultLimits(),
		Server: Server{
			URL:    DefaultServerURL,
			Binary: DefaultServerBinary,
			Port:   DefaultServerPort,
		},
		StatusTool: DefaultStatusTool,
		Log: Log{
			Format: LogFormatConsole,
		},
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Path returns the config file location under basePath.
func Path(basePath string) string {
	return filepath.Join(basePath, Dir, "config.yaml")
}

// LoadConfig reads and parses .loop/config.yaml from the given base path.
// If the file doesn't exist, returns default config.
// Applies defaults for any missing fields.
func LoadConfig(basePath string) (*Config, error) {
	data, err := os.ReadFile(Path(basePath))
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ValidateConfig checks that all config values are valid.
func ValidateConfig(cfg *Config) error {
	if cfg.Limits.MaxIterations <= 0 {
		return ValidationError{Field: "limits.max_iterations", Message: "must be positive"}
	}
	if cfg.Limits.MaxRetries < 0 {
		return ValidationError{Field: "limits.max_retries", Message: "must not be negative"}
	}
	if strings.TrimSpace(cfg.Server.URL) == "" && !cfg.Server.Spawn {
		return ValidationError{Field: "server.url", Message: "required field is empty"}
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return ValidationError{Field: "server.port", Message: "must be between 0 and 65535"}
	}
	if cfg.Server.Spawn && cfg.Server.Binary == "" {
		return ValidationError{Field: "server.binary", Message: "required when spawning a server"}
	}
	if m := cfg.Agent.Model; m != "" {
		provider, model, ok := strings.Cut(m, "/")
		if !ok || provider == "" || model == "" {
			return ValidationError{Field: "agent.model", Message: "must be provider/model"}
		}
	}
	if cfg.Log.Level != "" {
		if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
			return ValidationError{Field: "log.level", Message: err.Error()}
		}
	}
	switch cfg.Log.Format {
	case "", LogFormatConsole, LogFormatJSON:
	default:
		return ValidationError{Field: "log.format", Message: "must be console or json"}
	}
	return nil
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
