package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joomcode/redisbulk/config"
	"github.com/joomcode/redisbulk/logging"
)

type globalFlags struct {
	configFile string
	envPrefix  string
}

func rootCmd() *cobra.Command {
	var g globalFlags
	cmd := &cobra.Command{
		Use:   "redisbulk",
		Short: "Scan redis keyspace and mutate matched keys in bulk",
		Long: `redisbulk walks keyspace of standalone, sentinel-managed or clustered redis
with SCAN and applies delete, unlink, expire or persist to every matched key.

Examples:
  # HTTP and WebSocket service
  redisbulk serve --config redisbulk.yaml

  # one action from command line
  redisbulk run --addr 127.0.0.1:6379 --kind delete --match 'session:*'
  redisbulk run --cluster --addr 10.0.0.1:7000 --kind expire --ttl 1h --match 'cache:*'`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&g.configFile, "config", "", "YAML configuration file")
	cmd.PersistentFlags().StringVar(&g.envPrefix, "env-prefix", config.DefaultEnvPrefix, "prefix of configuration environment variables")

	cmd.AddCommand(serveCmd(&g))
	cmd.AddCommand(runCmd(&g))
	return cmd
}

func loadConfig(g *globalFlags) (*config.Config, error) {
	return config.NewLoader(
		config.WithConfigFile(g.configFile),
		config.WithEnvPrefix(g.envPrefix),
		config.WithDotEnv(".env"),
	).Load()
}

func setupLogger(c logging.Config) (*zap.Logger, error) {
	log, err := logging.New(c)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)
	return log, nil
}
