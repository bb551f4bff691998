// Command index loads a line-delimited JSON work file into a document
// store.
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

	if err := cmd.NewIndexCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "index: %v\n", err)
		stop()
		os.Exit(1)
	}
}
