package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/rpattn/revstore/internal/db"
)

// Config is the full runtime configuration
type Config struct {
	App        AppSettings        `mapstructure:"app"`
	Database   db.Config          `mapstructure:"database"`
	Repository RepositorySettings `mapstructure:"repository"`
	Metrics    MetricsSettings    `mapstructure:"metrics"`

	// Source is the config file that was read, empty when only defaults and env were used.
	Source string `mapstructure:"-"`
}

type AppSettings struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

// RepositorySettings configures the revision repositories
type RepositorySettings struct {
	OptimisticRevisionCheck bool `mapstructure:"optimistic_revision_check"`
}

type MetricsSettings struct {
	Namespace string `mapstructure:"namespace"`
}

var envKeys = []string{
	"app.name",
	"app.env",
	"app.log_level",
	"database.driver",
	"database.host",
	"database.port",
	"database.user",
	"database.password",
	"database.dbname",
	"database.sslmode",
	"database.path",
	"database.max_open_conns",
	"database.max_idle_conns",
	"database.conn_max_lifetime",
	"repository.optimistic_revision_check",
	"metrics.namespace",
}

// Load reads config.yaml from configPath when present and applies REVSTORE_*
// environment overrides on top of the defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("REVSTORE")

	setDefaults(v)

	if err := bindEnvs(v, envKeys); err != nil {
		return nil, err
	}
	v.AutomaticEnv()

	source := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		source = v.ConfigFileUsed()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Source = source

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	database := db.DefaultConfig()

	v.SetDefault("app.name", "revstore")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("database.driver", database.Driver)
	v.SetDefault("database.host", database.Host)
	v.SetDefault("database.port", database.Port)
	v.SetDefault("database.user", database.User)
	v.SetDefault("database.password", database.Password)
	v.SetDefault("database.dbname", database.DBName)
	v.SetDefault("database.sslmode", database.SSLMode)
	v.SetDefault("database.path", database.Path)
	v.SetDefault("database.max_open_conns", database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", database.ConnMaxLifetime)

	v.SetDefault("repository.optimistic_revision_check", true)

	v.SetDefault("metrics.namespace", "revstore")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := "REVSTORE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
