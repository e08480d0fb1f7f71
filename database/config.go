package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid database config")

// Config is the database section of the application config
//
//	database:
//	  connection: pg
//	  connections:
//	    pg:
//	      client: pg
//	      connection:
//	        host: 127.0.0.1
//	        database: blog
//	      migrations:
//	        paths: [database/migrations]
type Config struct {
	Connection  string                      `mapstructure:"connection" validate:"required"`
	Connections map[string]ConnectionConfig `mapstructure:"connections" validate:"required,min=1,dive"`
}

type ConnectionConfig struct {
	Client        string            `mapstructure:"client" validate:"required,oneof=pg postgres postgresql sqlite sqlite3"`
	Connection    ConnectionOptions `mapstructure:"connection"`
	Pool          PoolConfig        `mapstructure:"pool"`
	Debug         bool              `mapstructure:"debug"`
	HealthCheck   bool              `mapstructure:"health_check"`
	SlowThreshold time.Duration     `mapstructure:"slow_threshold"`
	Migrations    MigrationsConfig  `mapstructure:"migrations"`
	Seeders       SeedersConfig     `mapstructure:"seeders"`
}

type ConnectionOptions struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	Filename string `mapstructure:"filename"`
}

type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open" validate:"gte=0"`
	MaxIdle     int           `mapstructure:"max_idle" validate:"gte=0"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

type MigrationsConfig struct {
	Paths                        []string `mapstructure:"paths"`
	TableName                    string   `mapstructure:"table_name"`
	DisableRollbacksInProduction bool     `mapstructure:"disable_rollbacks_in_production"`
	DisableLocks                 bool     `mapstructure:"disable_locks"`
	NaturalSort                  bool     `mapstructure:"natural_sort"`
}

type SeedersConfig struct {
	Paths []string `mapstructure:"paths"`
}

// ConfigFromViper reads and validates the database section
func ConfigFromViper(v *viper.Viper) (Config, error) {
	var cfg Config

	if err := v.UnmarshalKey("database", &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return cfg, cfg.Validate()
}

// Validate checks the config, the default connection must be defined
func (cfg Config) Validate() error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if _, ok := cfg.Connections[cfg.Connection]; !ok {
		return fmt.Errorf("%w: default connection %q is not defined", ErrInvalidConfig, cfg.Connection)
	}

	return nil
}

// MigrationsTable returns the schema table name, kubit_schema by default
func (cc ConnectionConfig) MigrationsTable() string {
	if cc.Migrations.TableName != "" {
		return cc.Migrations.TableName
	}
	return "kubit_schema"
}
