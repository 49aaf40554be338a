// Package config loads guardrails server configuration from a YAML file and
// GUARDRAILS_* environment variables.
package config

import "time"

// Config is the top-level configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Rules      RulesConfig      `mapstructure:"rules"`
	Guard      GuardConfig      `mapstructure:"guard"`
	Admin      AdminConfig      `mapstructure:"admin"`
}

type ServerConfig struct {
	// HTTPAddr is the listen address, e.g. ":5000" or "127.0.0.1:5000".
	HTTPAddr     string        `mapstructure:"http_addr" validate:"required"`
	LogLevel     string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"min=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`
}

type PostgresConfig struct {
	// DSN is empty to run from a fixture instead of a database.
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"min=0"`
	Migrate         bool          `mapstructure:"migrate"`
}

type ClickHouseConfig struct {
	// DSN is empty to log decision events instead.
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	// Addr is empty to disable the shared rule cache.
	Addr     string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
}

type RulesConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl" validate:"gt=0"`
}

type GuardConfig struct {
	FailClosed bool `mapstructure:"fail_closed"`

	// Fixture is a YAML fixture path used when postgres.dsn is empty.
	// Empty means the embedded demo fixture.
	Fixture string `mapstructure:"fixture" validate:"omitempty,file"`
}

type AdminConfig struct {
	// APIKeyHash is a bcrypt hash; empty leaves rule management open.
	APIKeyHash string        `mapstructure:"api_key_hash" validate:"omitempty,bcrypt_hash"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl" validate:"gt=0"`
}

// UsesFixture reports whether the server runs without Postgres.
func (c *Config) UsesFixture() bool {
	return c.Postgres.DSN == ""
}
