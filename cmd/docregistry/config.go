package main

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ginthi/docregistry/pkg/audit"
	"github.com/ginthi/docregistry/pkg/db"
	"github.com/ginthi/docregistry/pkg/logging"
)

// Config is the server configuration.
type Config struct {
	Listen      string         `mapstructure:"listen"`
	CORSOrigins []string       `mapstructure:"cors_origins"`
	Database    db.Config      `mapstructure:"database"`
	Log         logging.Config `mapstructure:"log"`
	Audit       audit.Config   `mapstructure:"audit"`
}

// flagKeys maps persistent and serve flags onto config keys.
var flagKeys = map[string]string{
	"listen":     "listen",
	"db-type":    "database.type",
	"db-dsn":     "database.dsn",
	"log-level":  "log.level",
	"log-format": "log.format",
}

type configLoader struct {
	v   *viper.Viper
	cfg Config
}

func newConfigLoader() *configLoader {
	v := viper.New()
	dbDefaults := db.DefaultConfig()
	logDefaults := logging.DefaultConfig()
	auditDefaults := audit.DefaultConfig()

	v.SetDefault("listen", ":8080")
	v.SetDefault("cors_origins", []string{})
	v.SetDefault("database.type", dbDefaults.Type)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", dbDefaults.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", dbDefaults.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", dbDefaults.ConnMaxLifetime)
	v.SetDefault("database.log_sql", false)
	v.SetDefault("log.format", logDefaults.Format)
	v.SetDefault("log.level", logDefaults.Level)
	v.SetDefault("audit.enabled", auditDefaults.Enabled)
	v.SetDefault("audit.log_denied", auditDefaults.LogDenied)
	v.SetDefault("audit.retention", auditDefaults.Retention)
	v.SetDefault("audit.prune_interval", auditDefaults.PruneInterval)

	// DOCREGISTRY_DATABASE_DSN sets database.dsn.
	v.SetEnvPrefix("DOCREGISTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &configLoader{v: v}
}

// load reads the optional config file and binds the flags that exist on
// the running command.
func (l *configLoader) load(cfgFile string, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := l.v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}
	if cfgFile != "" {
		l.v.SetConfigFile(cfgFile)
		if err := l.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}
	return l.decode()
}

func (l *configLoader) decode() error {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Audit.Validate(); err != nil {
		return err
	}
	l.cfg = cfg
	return nil
}

// watch calls fn with the reloaded config whenever the config file changes.
// Without a config file it does nothing.
func (l *configLoader) watch(fn func(Config)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(fsnotify.Event) {
		if err := l.decode(); err != nil {
			return
		}
		fn(l.cfg)
	})
	l.v.WatchConfig()
}
