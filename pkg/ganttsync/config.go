package ganttsync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read as configuration, so
// surrealdb.url is read from GANTTSYNC_SURREALDB_URL.
const EnvPrefix = "GANTTSYNC"

// Store backends.
const (
	StoreMemory    = "memory"
	StoreSurrealDB = "surrealdb"
	StorePostgres  = "postgres"
)

// Config holds application configuration.
type Config struct {
	Store    string `mapstructure:"store"`
	Port     int    `mapstructure:"port"`
	ReadOnly bool   `mapstructure:"readonly"`

	SurrealDB SurrealDBConfig `mapstructure:"surrealdb"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Log       LogConfig       `mapstructure:"log"`
	Sync      SyncConfig      `mapstructure:"sync"`
}

type SurrealDBConfig struct {
	URL       string `mapstructure:"url"`
	Namespace string `mapstructure:"namespace"`
	Database  string `mapstructure:"database"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// File is a log file path. Logs go to stderr when empty.
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

type SyncConfig struct {
	// Concurrent lets the drivers of one phase run in parallel on stores
	// that support it.
	Concurrent bool `mapstructure:"concurrent"`
}

var defaults = map[string]any{
	"store":               StoreSurrealDB,
	"port":                3000,
	"readonly":            false,
	"surrealdb.url":       "ws://localhost:8000/rpc",
	"surrealdb.namespace": "ganttsync",
	"surrealdb.database":  "ganttsync",
	"surrealdb.username":  "root",
	"surrealdb.password":  "root",
	"postgres.dsn":        "host=localhost user=postgres password=postgres dbname=ganttsync port=5432 sslmode=disable",
	"log.level":           "info",
	"log.file":            "",
	"log.console":         false,
	"sync.concurrent":     true,
}

// NewViper returns a viper instance with every default set and environment
// variables bound.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads the configuration from v, merging in the file at path when
// it is not empty.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	cfg, err := LoadConfig(NewViper(), "")
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks that the configuration can be used to start the application.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreMemory:
	case StoreSurrealDB:
		if c.SurrealDB.URL == "" {
			errs = append(errs, errors.New("surrealdb.url is required"))
		}
		if c.SurrealDB.Namespace == "" || c.SurrealDB.Database == "" {
			errs = append(errs, errors.New("surrealdb.namespace and surrealdb.database are required"))
		}
	case StorePostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q, expected one of %s, %s, %s", c.Store, StoreMemory, StoreSurrealDB, StorePostgres))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
