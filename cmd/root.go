package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/linesmerrill/evchat/logging"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "evchat",
	Short: "Realtime chat agent for the EV repair shop",
	Long: `evchat connects a customer or staff account to the repair shop's
chat backend. It keeps the conversation directory and message log in sync
over STOMP and exposes them to a local UI through a small HTTP API.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configEnv != "" {
			os.Setenv("ENV", configEnv)
		}
	},
}

var configEnv string

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// the global logger may not be installed yet when flags fail to parse
		logging.Sugared(os.Getenv("ENV")).Errorw("could not execute root command", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configEnv, "config-env", "",
		"Overrides ENV (development, production) which selects the logger")
}
