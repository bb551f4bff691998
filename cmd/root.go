// Package cmd defines the fetch and index command lines.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/JakeFAU/fandom-data/internal/app"
	"github.com/JakeFAU/fandom-data/internal/config"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory; tests replace it.
var newApp = app.New

// runFunc is a command body that receives the initialized App.
type runFunc func(cmd *cobra.Command, a *app.App) error

// withApp wires the shared lifecycle onto cmd: load configuration from the
// --config file, the environment and flags, build the App before run and
// close it afterwards.
func withApp(cmd *cobra.Command, run runFunc) *cobra.Command {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	flags := cmd.Flags()
	flags.String("config", "", "config file (yaml, json or toml)")
	flags.Bool("dev", false, "human-friendly development logging")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address during the run")

	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		appInstance, err := newApp(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize application services: %w", err)
		}
		cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
		return nil
	}
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer appInstance.Close()
		return run(cmd, appInstance)
	}
	return cmd
}

func loadConfig(flags *pflag.FlagSet) (config.Config, error) {
	path, err := flags.GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(path, flags)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
