package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Shugur-Network/capsule-validator/internal/constants"
	"github.com/Shugur-Network/capsule-validator/internal/logger"
	validator "github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

//go:embed defaults.yaml
var defaultYAML []byte

// Version is set at runtime from build information
var Version = "dev"

var validate = validator.New()

var chainHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Config holds every sub‑config.
type Config struct {
	Beacon   BeaconConfig   `mapstructure:"beacon"   validate:"required"`
	Relay    RelayConfig    `mapstructure:"relay"    validate:"required"`
	Capsules CapsulesConfig `mapstructure:"capsules" validate:"required"`
	Logging  LoggingConfig  `mapstructure:"logging"  validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics"  validate:"required"`
}

func init() {
	registerCustomValidators()
	validate.RegisterStructValidation(performCrossFieldValidation, Config{})
}

// registerCustomValidators registers custom validation functions
func registerCustomValidators() {
	rules := map[string]validator.Func{
		// drand chain hash: 64 lowercase hex characters
		"chainhash": func(fl validator.FieldLevel) bool {
			return chainHashPattern.MatchString(fl.Field().String())
		},
		// relay endpoint: ws:// or wss:// with a host
		"wsurl": func(fl validator.FieldLevel) bool {
			u, err := url.Parse(fl.Field().String())
			if err != nil {
				return false
			}
			return (u.Scheme == "ws" || u.Scheme == "wss") && u.Host != ""
		},
		"timeout_duration": func(fl validator.FieldLevel) bool {
			d := fl.Field().Interface().(time.Duration)
			return d >= time.Second && d <= time.Hour
		},
		"poll_duration": func(fl validator.FieldLevel) bool {
			d := fl.Field().Interface().(time.Duration)
			return d >= time.Millisecond && d <= 10*time.Minute
		},
		// capsule plaintext: must still fit the tlock blob limit once encrypted
		"capsule_message": func(fl validator.FieldLevel) bool {
			return len(fl.Field().String()) <= constants.MaxMessageSize
		},
		"log_level": func(fl validator.FieldLevel) bool {
			switch fl.Field().String() {
			case "debug", "info", "warn", "error", "fatal":
				return true
			}
			return false
		},
		"log_format": func(fl validator.FieldLevel) bool {
			format := fl.Field().String()
			return format == "console" || format == "json"
		},
	}
	for tag, fn := range rules {
		if err := validate.RegisterValidation(tag, fn); err != nil {
			logger.Error("Failed to register validator", zap.String("tag", tag), zap.Error(err))
		}
	}
}

// performCrossFieldValidation performs validation across multiple fields
func performCrossFieldValidation(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)

	if _, ok := cfg.Beacon.Network(cfg.Beacon.DefaultNetwork); !ok {
		sl.ReportError(cfg.Beacon.DefaultNetwork, "DefaultNetwork", "DefaultNetwork", "unknown_network", "")
	}

	names := make(map[string]struct{}, len(cfg.Beacon.Networks))
	hashes := make(map[string]struct{}, len(cfg.Beacon.Networks))
	for _, n := range cfg.Beacon.Networks {
		if _, dup := names[n.Name]; dup {
			sl.ReportError(n.Name, "Name", "Name", "duplicate_network", "")
		}
		if _, dup := hashes[n.ChainHash]; dup {
			sl.ReportError(n.ChainHash, "ChainHash", "ChainHash", "duplicate_network", "")
		}
		names[n.Name] = struct{}{}
		hashes[n.ChainHash] = struct{}{}
	}
}

/* ------------------------------------------------------------------ *
|  Public API                                                         |
* -------------------------------------------------------------------*/

// SetVersion sets the version from build information
func SetVersion(v string) {
	Version = v
}

// Load merges defaults → file (optional) → env vars, validates, and returns cfg.
func Load(path string, log *zap.Logger) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SHUGUR") // SHUGUR_RELAY_URL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 1. defaults.yaml (embedded)
	if err := v.ReadConfig(bytes.NewReader(defaultYAML)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	// 2. optional user file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.MergeInConfig(); err == nil && log != nil {
			log.Info("Loaded config.yaml from current directory")
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	if log != nil {
		log.Info("configuration loaded",
			zap.String("version", Version),
			zap.String("relay", cfg.Relay.URL),
			zap.String("network", cfg.Beacon.DefaultNetwork),
		)
	}
	return &cfg, nil
}

// Validate runs struct and cross-field validation; used again after CLI overrides.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// InitLogger initializes the global logger from the logging section.
func InitLogger(cfg *Config) error {
	return logger.Init(
		logger.WithLevel(cfg.Logging.Level),
		logger.WithFormat(cfg.Logging.Format),
		logger.WithFile(cfg.Logging.FilePath),
		logger.WithVersion(Version),
		logger.WithComponent("capsule-validator"),
		logger.WithRotation(cfg.Logging.MaxSize, cfg.Logging.MaxBackups, cfg.Logging.MaxAge),
	)
}

// formatValidationError converts validator errors into user-friendly messages
func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		messages := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			messages = append(messages, getFieldErrorMessage(fieldError))
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(messages, "\n  - "))
	}
	return fmt.Errorf("configuration validation failed: %w", err)
}

// getFieldErrorMessage returns a user-friendly error message for a field validation error
func getFieldErrorMessage(fe validator.FieldError) string {
	field := fe.Field()
	value := fe.Value()
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required but not provided", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s (got: %v)", field, param, value)
	case "max":
		return fmt.Sprintf("%s must be at most %s (got: %v)", field, param, value)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s (got: %v)", field, param, value)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s (got: %v)", field, param, value)
	case "url":
		return fmt.Sprintf("%s must be a valid URL (got: %v)", field, value)
	case "chainhash":
		return fmt.Sprintf("%s must be 64 lowercase hexadecimal characters (got: %v)", field, value)
	case "wsurl":
		return fmt.Sprintf("%s must be a ws:// or wss:// URL (got: %v)", field, value)
	case "timeout_duration":
		return fmt.Sprintf("%s must be between 1 second and 1 hour (got: %v)", field, value)
	case "poll_duration":
		return fmt.Sprintf("%s must be between 1 millisecond and 10 minutes (got: %v)", field, value)
	case "capsule_message":
		return fmt.Sprintf("%s must be at most %d bytes so its tlock blob fits in %d bytes (got: %d bytes)",
			field, constants.MaxMessageSize, constants.MaxTlockBlobSize, len(fmt.Sprint(value)))
	case "log_level":
		return fmt.Sprintf("%s must be one of: debug, info, warn, error, fatal (got: %v)", field, value)
	case "log_format":
		return fmt.Sprintf("%s must be either 'console' or 'json' (got: %v)", field, value)
	case "unknown_network":
		return fmt.Sprintf("%s %q is not present in the beacon network table", field, value)
	case "duplicate_network":
		return fmt.Sprintf("%s %v appears more than once in the beacon network table", field, value)
	default:
		return fmt.Sprintf("%s validation failed: %s (got: %v)", field, fe.Tag(), value)
	}
}
