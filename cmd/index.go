package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/fandom-data/internal/app"
	"github.com/JakeFAU/fandom-data/internal/config"
	"github.com/JakeFAU/fandom-data/internal/index"
)

// NewIndexCommand builds the index tool.
func NewIndexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Load a line-delimited JSON work file into a document store",
		Long: `index reads --input one line at a time and upserts every work into the
configured store, keyed by its id, in bulk requests of --chunk-size records.
Indexing the same file again replaces documents rather than duplicating them.

Malformed lines, overlong lines and records the store rejects are logged and
skipped; --strict aborts on the first one instead. A strict run is not
all-or-nothing: chunks submitted before the bad line stay indexed. Losing
the store is always fatal.`,
		Args: cobra.NoArgs,
	}

	flags := cmd.Flags()
	flags.String("input", "", "line-delimited JSON file, local path or gs://bucket/object")
	flags.String("backend", config.BackendElasticsearch, "document store: elasticsearch, bleve or postgres")
	flags.String("elasticsearch", "http://localhost:9200", "comma-separated Elasticsearch node URLs")
	flags.String("index-name", "works", "Elasticsearch index name")
	flags.Int("chunk-size", index.DefaultChunkSize, "records per bulk request")
	flags.Bool("strict", false, "abort on the first malformed line; chunks already submitted stay indexed")
	flags.Bool("refresh", false, "make each bulk request searchable before continuing")
	flags.String("bleve-path", "", "on-disk bleve index directory (in memory when empty)")
	flags.String("postgres-dsn", "", "Postgres connection string")
	flags.String("postgres-table", "works", "Postgres table name")

	return withApp(cmd, runIndex)
}

func runIndex(cmd *cobra.Command, a *app.App) error {
	ctx := cmd.Context()
	cfg := a.Config().Index
	logger := a.Logger()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	opener, err := a.Opener(ctx, cfg.Input)
	if err != nil {
		return err
	}
	input, err := opener.Open(ctx, cfg.Input)
	if err != nil {
		return err
	}
	defer func() {
		_ = input.Close()
	}()

	st, err := a.NewStore(ctx)
	if err != nil {
		return err
	}

	logger.Info("index starting",
		zap.String("input", cfg.Input),
		zap.String("backend", cfg.Backend),
		zap.Int("chunk_size", cfg.ChunkSize),
		zap.Bool("strict", cfg.Strict),
	)
	ix := index.New(st, index.Options{ChunkSize: cfg.ChunkSize, Strict: cfg.Strict, Backend: cfg.Backend}, logger)
	sum, err := ix.Run(ctx, input)
	fields := []zap.Field{
		zap.Int("lines", sum.Lines),
		zap.Int("indexed", sum.Indexed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("chunks", sum.Chunks),
	}
	if err != nil {
		logger.Error("index aborted", append(fields, zap.Error(err))...)
		return err
	}
	logger.Info("index finished", fields...)
	return nil
}
