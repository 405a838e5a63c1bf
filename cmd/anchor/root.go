package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/layer-3/anchor/config"
	"github.com/layer-3/anchor/logger"
)

// cli holds what the root command loads for its subcommands.
type cli struct {
	configPath string
	cfg        *config.AppConfig
	log        *zap.Logger
}

// Execute runs the anchor CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:          "anchor",
		Short:        "Stellar anchor: web authentication and SEP-24 reconciliation",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.App.Env)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.log = log.With(zap.String("app", cfg.App.Name), zap.String("command", cmd.Name()))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (env ANCHOR_* always applies)")

	root.AddCommand(serveCmd(c), reconcileCmd(c), migrateCmd(c))
	return root
}
