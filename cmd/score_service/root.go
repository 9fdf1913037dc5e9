package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configFile string

// NewRootCmd creates the root command. Running it without a subcommand
// starts the server.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "score_service",
		Short:        "Scored competition service with a live leaderboard",
		SilenceUsage: true,
		RunE:         runServe,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (defaults to $CONFIG_PATH)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewEventsCmd())

	return cmd
}

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		RunE:  runServe,
	}
}

// configPath returns the --config flag value, falling back to CONFIG_PATH.
// An empty result means configuration comes from the environment only.
func configPath() string {
	if configFile != "" {
		return configFile
	}

	return os.Getenv("CONFIG_PATH")
}
