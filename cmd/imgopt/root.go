package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"imgopt-gateway/internal/config"
	"imgopt-gateway/pkg/logging/logging"
)

// cli holds state shared by subcommands once the root pre-run has loaded it.
type cli struct {
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "imgopt",
		Short: "Image optimization gateway",
		Long: `imgopt fetches remote images, resizes and re-encodes them to WEBP, JPEG,
AVIF or PNG, and caches the results by request and by content hash.

Example usage:
  imgopt serve                              # run the HTTP API
  imgopt optimize https://example.com/a.png # optimize from the command line
  imgopt cache stats                        # inspect the cache`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default is ./imgopt.yaml)")

	root.AddCommand(
		newServeCmd(c),
		newOptimizeCmd(c),
		newCacheCmd(c),
	)
	return root
}

func (c *cli) init() error {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	c.cfg = cfg

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	c.logger = logger
	return nil
}
