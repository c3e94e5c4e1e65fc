// Package config loads the service configuration from a YAML file, an
// optional .env file and environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values
const (
	EnvConfigPath  = "OURA_CONFIG"
	EnvAPIToken    = "OURA_API_TOKEN"
	EnvHAURL       = "HA_URL"
	EnvHAToken     = "HA_TOKEN"
	EnvHTTPPort    = "HTTP_PORT"
	EnvLogLevel    = "LOG_LEVEL"
	DefaultPath    = "config.yaml"
	defaultBaseURL = "https://api.ouraring.com"
)

// OuraConfig configures the Oura API client
type OuraConfig struct {
	APIToken     string        `yaml:"api_token" validate:"required"`
	BaseURL      string        `yaml:"base_url" validate:"required,url"`
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
	LookbackDays int           `yaml:"lookback_days" validate:"gte=0,lte=30"`
}

// HomeAssistantConfig configures where the sensor is published
type HomeAssistantConfig struct {
	URL           string `yaml:"url" validate:"required,url"`
	Token         string `yaml:"token" validate:"required"`
	EntityID      string `yaml:"entity_id" validate:"required,startswith=sensor."`
	RefreshEntity string `yaml:"refresh_entity" validate:"omitempty,contains=."`
}

// PollConfig configures the refresh cycle
type PollConfig struct {
	Schedule      string `yaml:"schedule" validate:"required"`
	MissingFields string `yaml:"missing_fields" validate:"oneof=abort omit"`
}

// APIConfig configures the local HTTP status server
type APIConfig struct {
	// Port 0 disables the server
	Port int `yaml:"port" validate:"gte=0,lte=65535"`
}

// Config is the full service configuration
type Config struct {
	Oura          OuraConfig          `yaml:"oura"`
	HomeAssistant HomeAssistantConfig `yaml:"home_assistant"`
	Poll          PollConfig          `yaml:"poll"`
	API           APIConfig           `yaml:"api"`
	LogLevel      string              `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Default returns a configuration with every optional field filled in
func Default() *Config {
	return &Config{
		Oura: OuraConfig{
			BaseURL: defaultBaseURL,
			Timeout: 10 * time.Second,
		},
		HomeAssistant: HomeAssistantConfig{
			EntityID: "sensor.oura_ring_sleep",
		},
		Poll: PollConfig{
			Schedule:      "@every 30m",
			MissingFields: "abort",
		},
		API: APIConfig{
			Port: 8081,
		},
		LogLevel: "info",
	}
}

// Loader reads and validates configuration
type Loader struct {
	path     string
	logger   *zap.Logger
	validate *validator.Validate
	getenv   func(string) string
}

// NewLoader creates a new configuration loader for the YAML file at path.
// An empty path uses $OURA_CONFIG, then config.yaml.
func NewLoader(path string, logger *zap.Logger) *Loader {
	return &Loader{
		path:     path,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		getenv:   os.Getenv,
	}
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. A missing file is not an error.
func (l *Loader) LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		l.logger.Debug("No .env file loaded, using environment variables", zap.Error(err))
	}
}

// Load builds the configuration: defaults, then the YAML file if it exists,
// then environment overrides. The result is validated.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	path := l.path
	if path == "" {
		path = l.getenv(EnvConfigPath)
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		l.logger.Info("Configuration file loaded", zap.String("path", path))
	case errors.Is(err, os.ErrNotExist):
		l.logger.Info("No configuration file, using defaults and environment", zap.String("path", path))
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := l.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field presence and ranges
func (l *Loader) Validate(cfg *Config) error {
	if err := l.validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid configuration: %s failed %q check", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	if v := l.getenv(EnvAPIToken); v != "" {
		cfg.Oura.APIToken = v
	}
	if v := l.getenv(EnvHAURL); v != "" {
		cfg.HomeAssistant.URL = v
	}
	if v := l.getenv(EnvHAToken); v != "" {
		cfg.HomeAssistant.Token = v
	}
	if v := l.getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := l.getenv(EnvHTTPPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHTTPPort, err)
		}
		cfg.API.Port = port
	}
	return nil
}
