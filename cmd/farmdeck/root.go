package main

import (
	"github.com/frudas24/farmdeck/internal/config"
	"github.com/frudas24/farmdeck/internal/logging"
	"github.com/frudas24/farmdeck/internal/provider"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	debug      bool
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "farmdeck",
		Short:         "Device farm viewer and gesture relay",
		Long:          "farmdeck relays device screens to the browser and turns pointer gestures into provider tap, long-press and swipe commands.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Optional YAML config file")
	flags.BoolVar(&opts.debug, "debug", false, "Enable verbose debug logging")

	cmd.AddCommand(
		newServeCmd(opts),
		newDevicesCmd(opts),
		newHealthCmd(opts),
		newTapCmd(opts),
		newSwipeCmd(opts),
		newGestureCmd(opts),
	)
	return cmd
}

// loadClientConfig loads the provider settings and applies the log level.
func loadClientConfig(opts *rootOptions) (config.Config, error) {
	cfg, err := config.LoadClient(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := logging.Setup(cfg.LogLevel, opts.debug); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newProviderClient builds a client using the configured static token.
func newProviderClient(cfg config.Config) (*provider.Client, error) {
	token := cfg.ProviderToken
	return provider.NewClient(cfg.ProviderURL, func() string { return token }, provider.WithTimeout(cfg.RequestTimeout()))
}
