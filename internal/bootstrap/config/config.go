package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"reqtx/internal/bootstrap/logging"
	"reqtx/internal/domain/transaction"
	"reqtx/internal/errs"
	"reqtx/internal/infrastructure/persistence/gormdb/txsession"
)

type Config struct {
	App         AppConfig         `mapstructure:"app" yaml:"app"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Transaction TransactionConfig `mapstructure:"transaction" yaml:"transaction"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

type AppConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
	Env  string `mapstructure:"env" yaml:"env"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// Dialect is the gorm dialect name of Driver.
func (c DatabaseConfig) Dialect() string {
	switch strings.ToLower(c.Driver) {
	case "postgres", "postgresql":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return strings.ToLower(c.Driver)
	}
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// TransactionConfig holds the defaults of every request transaction filter.
type TransactionConfig struct {
	IsolationLevel        string `mapstructure:"isolation_level" yaml:"isolation_level"`
	LogRequestURL         bool   `mapstructure:"log_request_url" yaml:"log_request_url"`
	RollbackOnServerError bool   `mapstructure:"rollback_on_server_error" yaml:"rollback_on_server_error"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// Isolation parses IsolationLevel. Validate has already rejected bad values.
func (c TransactionConfig) Isolation() transaction.IsolationLevel {
	level, err := transaction.ParseIsolationLevel(c.IsolationLevel)
	if err != nil {
		return transaction.ReadCommitted
	}
	return level
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("REQTX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			// Keep default and env-backed config when no file is provided.
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("isolation_level", cfg.Transaction.Isolation().String()),
	)

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3", "postgres", "postgresql":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.ShutdownTimeout < 0 {
		return errors.New("server.shutdown_timeout must not be negative")
	}
	level, err := transaction.ParseIsolationLevel(c.Transaction.IsolationLevel)
	if err != nil {
		return errs.Wrap(err, "transaction.isolation_level")
	}
	if !txsession.Supports(c.Database.Dialect(), level) {
		return fmt.Errorf("transaction.isolation_level %s is not supported by database.driver %q", level, c.Database.Driver)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "reqtx")
	v.SetDefault("app.env", "local")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".reqtx/state/kv.sqlite")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("transaction.isolation_level", transaction.ReadCommitted.String())
	v.SetDefault("transaction.log_request_url", false)
	v.SetDefault("transaction.rollback_on_server_error", true)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
