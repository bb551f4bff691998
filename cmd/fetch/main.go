// Command fetch pages through archive search listings and prints works as
// line-delimited JSON.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JakeFAU/fandom-data/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.NewFetchCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fetch: %v\n", err)
		stop()
		os.Exit(1)
	}
}
