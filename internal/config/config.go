// Package config loads and validates fetcher and indexer configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FANDOM_FETCH_INTERVAL=10.
const EnvPrefix = "FANDOM"

// Store backends accepted by index.backend.
const (
	BackendElasticsearch = "elasticsearch"
	BackendBleve         = "bleve"
	BackendPostgres      = "postgres"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config captures all knobs for both tools.
type Config struct {
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Index   IndexConfig   `mapstructure:"index"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// FetchConfig governs the paginated listing fetch.
type FetchConfig struct {
	Endpoint        string  `mapstructure:"endpoint"`
	Fandom          string  `mapstructure:"fandom"`
	Creators        string  `mapstructure:"creators"`
	Count           int     `mapstructure:"count"`
	IntervalSeconds float64 `mapstructure:"interval"`
	Workers         int     `mapstructure:"workers"`
	Start           int     `mapstructure:"start"`
	UserAgent       string  `mapstructure:"user_agent"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	Output          string  `mapstructure:"output"`
	RespectRobots   bool    `mapstructure:"respect_robots"`
}

// IndexConfig governs loading a line-delimited file into a document store.
type IndexConfig struct {
	Backend       string `mapstructure:"backend"`
	Elasticsearch string `mapstructure:"elasticsearch"`
	ESUsername    string `mapstructure:"es_username"`
	ESPassword    string `mapstructure:"es_password"`
	IndexName     string `mapstructure:"index_name"`
	Input         string `mapstructure:"input"`
	ChunkSize     int    `mapstructure:"chunk_size"`
	Strict        bool   `mapstructure:"strict"`
	Refresh       bool   `mapstructure:"refresh"`
	BlevePath     string `mapstructure:"bleve_path"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig controls the optional Prometheus listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"endpoint":       "fetch.endpoint",
	"fandom":         "fetch.fandom",
	"creators":       "fetch.creators",
	"count":          "fetch.count",
	"interval":       "fetch.interval",
	"workers":        "fetch.workers",
	"start":          "fetch.start",
	"user-agent":     "fetch.user_agent",
	"timeout":        "fetch.timeout_seconds",
	"output":         "fetch.output",
	"respect-robots": "fetch.respect_robots",
	"backend":        "index.backend",
	"elasticsearch":  "index.elasticsearch",
	"index-name":     "index.index_name",
	"input":          "index.input",
	"chunk-size":     "index.chunk_size",
	"strict":         "index.strict",
	"refresh":        "index.refresh",
	"bleve-path":     "index.bleve_path",
	"postgres-dsn":   "index.postgres_dsn",
	"postgres-table": "index.postgres_table",
	"dev":            "logging.development",
	"log-level":      "logging.level",
	"metrics-addr":   "metrics.addr",
}

// Load builds a Config from defaults, an optional file, the environment and
// any changed flags in that order of increasing precedence.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key, ok := flagKeys[f.Name]
			if !ok || bindErr != nil {
				return
			}
			if err := v.BindPFlag(key, f); err != nil {
				bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
			}
		})
		if bindErr != nil {
			return Config{}, bindErr
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fetch.endpoint", "https://archiveofourown.org")
	v.SetDefault("fetch.fandom", "Avatar: The Last Airbender")
	v.SetDefault("fetch.creators", "")
	v.SetDefault("fetch.count", 0)
	v.SetDefault("fetch.interval", 5.0)
	v.SetDefault("fetch.workers", 1)
	v.SetDefault("fetch.start", 1)
	v.SetDefault("fetch.user_agent", "fandom-data/0.1 (+https://github.com/JakeFAU/fandom-data)")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.output", "")
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("index.backend", BackendElasticsearch)
	v.SetDefault("index.elasticsearch", "http://localhost:9200")
	v.SetDefault("index.es_username", "")
	v.SetDefault("index.es_password", "")
	v.SetDefault("index.index_name", "works")
	v.SetDefault("index.input", "")
	v.SetDefault("index.chunk_size", 1024)
	v.SetDefault("index.strict", false)
	v.SetDefault("index.refresh", false)
	v.SetDefault("index.bleve_path", "")
	v.SetDefault("index.postgres_dsn", "")
	v.SetDefault("index.postgres_table", "works")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.addr", "")
}

// Interval converts the configured seconds into a duration.
func (c FetchConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds * float64(time.Second))
}

// Timeout is the per-page request budget.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate enforces the fetch run's required values.
func (c FetchConfig) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("fetch.endpoint must be an absolute URL, got %q", c.Endpoint)
	}
	if c.Count < 0 {
		return fmt.Errorf("fetch.count must be >= 0")
	}
	if c.IntervalSeconds < 0 {
		return fmt.Errorf("fetch.interval must be >= 0")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("fetch.workers must be > 0")
	}
	if c.Start < 1 {
		return fmt.Errorf("fetch.start must be >= 1")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		return fmt.Errorf("fetch.user_agent must be set")
	}
	return nil
}

// Nodes splits the elasticsearch setting into node addresses.
func (c IndexConfig) Nodes() []string {
	var nodes []string
	for _, n := range strings.Split(c.Elasticsearch, ",") {
		if n = strings.TrimSpace(n); n != "" {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// Validate enforces the index run's required values.
func (c IndexConfig) Validate() error {
	if strings.TrimSpace(c.Input) == "" {
		return fmt.Errorf("index.input must be set")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("index.chunk_size must be > 0")
	}
	if strings.TrimSpace(c.IndexName) == "" {
		return fmt.Errorf("index.index_name must be set")
	}
	switch c.Backend {
	case BackendElasticsearch:
		if len(c.Nodes()) == 0 {
			return fmt.Errorf("index.elasticsearch must be set for the elasticsearch backend")
		}
	case BackendBleve:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("index.postgres_dsn must be set for the postgres backend")
		}
		if !validTableName.MatchString(c.PostgresTable) {
			return fmt.Errorf("index.postgres_table %q is not a valid table name", c.PostgresTable)
		}
	default:
		return fmt.Errorf("index.backend %q is not one of %s, %s, %s",
			c.Backend, BackendElasticsearch, BackendBleve, BackendPostgres)
	}
	return nil
}
