package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Fetch.Start != 1 || cfg.Fetch.Workers != 1 || cfg.Fetch.Count != 0 {
		t.Fatalf("unexpected fetch defaults: %+v", cfg.Fetch)
	}
	if !cfg.Fetch.RespectRobots {
		t.Fatalf("expected robots.txt to be respected by default")
	}
	if cfg.Fetch.Interval() != 5*time.Second {
		t.Fatalf("expected 5s interval, got %v", cfg.Fetch.Interval())
	}
	if cfg.Index.Backend != BackendElasticsearch || cfg.Index.ChunkSize != 1024 || cfg.Index.IndexName != "works" {
		t.Fatalf("unexpected index defaults: %+v", cfg.Index)
	}
	if err := cfg.Fetch.Validate(); err != nil {
		t.Fatalf("default fetch config should validate: %v", err)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
fetch:
  endpoint: http://127.0.0.1:9999
  fandom: "Legend of Korra"
  count: 200
  interval: 0.5
  workers: 3
  start: 7
  timeout_seconds: 12
index:
  backend: bleve
  input: works.jsonl
  chunk_size: 50
  strict: true
logging:
  development: true
  level: debug
metrics:
  addr: ":9102"
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Fetch.Fandom != "Legend of Korra" || cfg.Fetch.Count != 200 || cfg.Fetch.Start != 7 {
		t.Fatalf("expected fetch overrides to apply: %+v", cfg.Fetch)
	}
	if got := cfg.Fetch.Interval(); got != 500*time.Millisecond {
		t.Fatalf("expected 500ms interval, got %v", got)
	}
	if got := cfg.Fetch.Timeout(); got != 12*time.Second {
		t.Fatalf("expected 12s timeout, got %v", got)
	}
	if cfg.Index.Backend != BackendBleve || !cfg.Index.Strict || cfg.Index.ChunkSize != 50 {
		t.Fatalf("expected index overrides to apply: %+v", cfg.Index)
	}
	if !cfg.Logging.Development || cfg.Logging.Level != "debug" || cfg.Metrics.Addr != ":9102" {
		t.Fatalf("expected logging/metrics overrides: %+v %+v", cfg.Logging, cfg.Metrics)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

// Not parallel: mutates the process environment.
func TestLoadPrecedence(t *testing.T) {
	t.Setenv("FANDOM_FETCH_COUNT", "30")
	t.Setenv("FANDOM_FETCH_START", "4")

	flags := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
	flags.Int("count", 0, "")
	flags.Int("start", 1, "")
	flags.IntP("workers", "n", 1, "")
	flags.String("unrelated", "", "")
	if err := flags.Parse([]string{"--count", "10", "-n", "2"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Fetch.Count != 10 {
		t.Fatalf("expected flag to beat env, got count %d", cfg.Fetch.Count)
	}
	if cfg.Fetch.Start != 4 {
		t.Fatalf("expected env to beat defaults, got start %d", cfg.Fetch.Start)
	}
	if cfg.Fetch.Workers != 2 {
		t.Fatalf("expected -n shorthand to apply, got workers %d", cfg.Fetch.Workers)
	}
}

func TestFetchValidateErrors(t *testing.T) {
	t.Parallel()

	base := FetchConfig{
		Endpoint:        "https://archiveofourown.org",
		IntervalSeconds: 1,
		Workers:         1,
		Start:           1,
		TimeoutSeconds:  10,
		UserAgent:       "agent",
	}

	tests := []struct {
		name   string
		mutate func(*FetchConfig)
		want   string
	}{
		{name: "relative endpoint", mutate: func(c *FetchConfig) { c.Endpoint = "archive" }, want: "fetch.endpoint"},
		{name: "negative count", mutate: func(c *FetchConfig) { c.Count = -1 }, want: "fetch.count"},
		{name: "negative interval", mutate: func(c *FetchConfig) { c.IntervalSeconds = -1 }, want: "fetch.interval"},
		{name: "zero workers", mutate: func(c *FetchConfig) { c.Workers = 0 }, want: "fetch.workers"},
		{name: "page zero", mutate: func(c *FetchConfig) { c.Start = 0 }, want: "fetch.start"},
		{name: "no timeout", mutate: func(c *FetchConfig) { c.TimeoutSeconds = 0 }, want: "fetch.timeout_seconds"},
		{name: "blank agent", mutate: func(c *FetchConfig) { c.UserAgent = " " }, want: "fetch.user_agent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestIndexValidateErrors(t *testing.T) {
	t.Parallel()

	base := IndexConfig{
		Backend:       BackendElasticsearch,
		Elasticsearch: "http://localhost:9200",
		IndexName:     "works",
		Input:         "works.jsonl",
		ChunkSize:     10,
		PostgresTable: "works",
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*IndexConfig)
		want   string
	}{
		{name: "no input", mutate: func(c *IndexConfig) { c.Input = "" }, want: "index.input"},
		{name: "no chunk", mutate: func(c *IndexConfig) { c.ChunkSize = 0 }, want: "index.chunk_size"},
		{name: "no index name", mutate: func(c *IndexConfig) { c.IndexName = "" }, want: "index.index_name"},
		{name: "no nodes", mutate: func(c *IndexConfig) { c.Elasticsearch = " , " }, want: "index.elasticsearch"},
		{name: "unknown backend", mutate: func(c *IndexConfig) { c.Backend = "mongo" }, want: "index.backend"},
		{
			name:   "postgres without dsn",
			mutate: func(c *IndexConfig) { c.Backend = BackendPostgres },
			want:   "index.postgres_dsn",
		},
		{
			name: "postgres bad table",
			mutate: func(c *IndexConfig) {
				c.Backend = BackendPostgres
				c.PostgresDSN = "postgres://localhost/works"
				c.PostgresTable = "works; drop"
			},
			want: "index.postgres_table",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestIndexNodes(t *testing.T) {
	t.Parallel()

	c := IndexConfig{Elasticsearch: "http://a:9200, http://b:9200,,"}
	nodes := c.Nodes()
	if len(nodes) != 2 || nodes[0] != "http://a:9200" || nodes[1] != "http://b:9200" {
		t.Fatalf("unexpected nodes: %v", nodes)
	}
}
