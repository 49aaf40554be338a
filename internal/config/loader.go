package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

const (
	configName = "guardrails"
	envPrefix  = "GUARDRAILS"
)

var searchPaths = []string{".", "/etc/guardrails"}

var defaults = map[string]any{
	"server.http_addr":           ":5000",
	"server.log_level":           "info",
	"server.read_timeout":        10 * time.Second,
	"server.write_timeout":       30 * time.Second,
	"postgres.dsn":               "",
	"postgres.max_open_conns":    10,
	"postgres.max_idle_conns":    5,
	"postgres.conn_max_lifetime": 5 * time.Minute,
	"postgres.migrate":           false,
	"clickhouse.dsn":             "",
	"redis.addr":                 "",
	"redis.password":             "",
	"redis.db":                   0,
	"rules.cache_ttl":            30 * time.Second,
	"guard.fail_closed":          true,
	"guard.fixture":              "",
	"admin.api_key_hash":         "",
	"admin.cache_ttl":            30 * time.Second,
}

// Load reads configFile, or guardrails.yaml/.yml from the search paths when
// configFile is empty, applies GUARDRAILS_* environment overrides
// (GUARDRAILS_SERVER_HTTP_ADDR overrides server.http_addr) and validates.
// A missing config file is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if configFile == "" {
		configFile = findConfigFile(searchPaths)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key := range defaults {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// findConfigFile returns the first guardrails.yaml or .yml found in paths.
func findConfigFile(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, configName+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("bcrypt_hash", validateBcryptHash); err != nil {
		return fmt.Errorf("failed to register bcrypt_hash validator: %w", err)
	}
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	if c.Postgres.MaxIdleConns > c.Postgres.MaxOpenConns {
		return errors.New("postgres: max_idle_conns must not exceed max_open_conns")
	}
	if c.Postgres.DSN != "" && c.Guard.Fixture != "" {
		return errors.New("guard.fixture is only used without postgres.dsn; set one of them")
	}
	return nil
}

func validateBcryptHash(fl validator.FieldLevel) bool {
	_, err := bcrypt.Cost([]byte(fl.Field().String()))
	return err == nil
}

func formatValidationErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), redact(fe)))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func redact(fe validator.FieldError) any {
	if fe.Tag() == "bcrypt_hash" {
		return "<redacted>"
	}
	return fe.Value()
}
