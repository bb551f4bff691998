package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/fandom-data/internal/app"
	"github.com/JakeFAU/fandom-data/internal/fetch"
	collyfetcher "github.com/JakeFAU/fandom-data/internal/fetcher/colly"
	"github.com/JakeFAU/fandom-data/internal/scrape"
)

// NewFetchCommand builds the fetch tool.
func NewFetchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Page through archive search results and print one JSON work per line",
		Long: `fetch walks the archive's search listing for a fandom one page at a time,
starting at --start, and writes every work it finds to stdout (or --output)
as line-delimited JSON. Requests are paced: -n pages are fetched back to
back, then fetch waits --interval seconds before the next one.

A failed page aborts the run. Everything already written stays valid, and
the error names the --start value that continues where the run stopped.`,
		Args: cobra.NoArgs,
	}

	flags := cmd.Flags()
	flags.Int("count", 0, "stop after this many works (0 fetches every page)")
	flags.Float64("interval", 5, "seconds to wait between request bursts")
	flags.IntP("workers", "n", 1, "pages fetched back to back before waiting --interval")
	flags.Int("start", 1, "first listing page to fetch")
	flags.String("fandom", scrape.DefaultFandom, "fandom to search")
	flags.String("creators", "", "restrict results to these creators")
	flags.String("endpoint", scrape.DefaultEndpoint, "archive base URL")
	flags.String("output", "", "write works to this path or gs://bucket/object instead of stdout")
	flags.String("user-agent", "", "User-Agent header sent with every request")
	flags.Int("timeout", 30, "per-page request timeout in seconds")
	flags.Bool("respect-robots", true, "honor the archive's robots.txt")

	return withApp(cmd, runFetch)
}

func runFetch(cmd *cobra.Command, a *app.App) error {
	ctx := cmd.Context()
	cfg := a.Config().Fetch
	logger := a.Logger()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	if cfg.Output != "" {
		opener, err := a.Opener(ctx, cfg.Output)
		if err != nil {
			return err
		}
		w, err := opener.Create(ctx, cfg.Output)
		if err != nil {
			return err
		}
		defer closeOutput(w, logger)
		out = w
	}

	logger.Info("fetch starting",
		zap.String("fandom", cfg.Fandom),
		zap.Int("start", cfg.Start),
		zap.Int("count", cfg.Count),
		zap.Duration("interval", cfg.Interval()),
		zap.Int("workers", cfg.Workers),
	)

	runner := fetch.NewRunner(a.NewFetcher(), fetch.NewPacer(cfg.Interval(), cfg.Workers), out, logger)
	res, err := runner.Run(ctx, fetch.Options{
		Endpoint: cfg.Endpoint,
		Query:    scrape.Query{Fandom: cfg.Fandom, Creators: cfg.Creators},
		Count:    cfg.Count,
		Start:    cfg.Start,
	})
	if err != nil {
		var pageErr *fetch.PageError
		if errors.Is(err, collyfetcher.ErrRobotsDisallowed) {
			logger.Error("fetch blocked by robots.txt",
				zap.Int("emitted", res.Emitted),
				zap.String("endpoint", cfg.Endpoint),
				zap.Error(err),
			)
			return fmt.Errorf("%w; robots.txt disallows this listing, resuming will not help (--respect-robots=false skips the check)", err)
		}
		if errors.As(err, &pageErr) {
			logger.Error("fetch aborted",
				zap.Int("failed_page", pageErr.Page),
				zap.Int("last_completed_page", pageErr.LastCompleted),
				zap.Int("emitted", res.Emitted),
				zap.Error(pageErr.Err),
			)
			return fmt.Errorf("%w; resume with --start %d", err, pageErr.ResumeFrom())
		}
		return err
	}

	logger.Info("fetch finished",
		zap.String("reason", string(res.Reason)),
		zap.Int("pages", res.Pages),
		zap.Int("emitted", res.Emitted),
		zap.Int("last_completed_page", res.LastCompletedPage),
	)
	return nil
}

func closeOutput(w io.Closer, logger *zap.Logger) {
	if err := w.Close(); err != nil {
		logger.Error("error closing output", zap.Error(err))
	}
}
