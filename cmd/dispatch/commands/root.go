package commands

import (
	"github.com/spf13/cobra"

	"emergency-dispatch-service/internal/config"
)

var (
	// Global flags
	envFiles []string
	logLevel string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Emergency dispatch voice agent",
	Long: `dispatch - a voice agent that answers emergency calls.

It listens to the caller, cuts speech into utterances on silence,
transcribes them, asks a hosted assistant for the dispatcher reply and
speaks it back, while mirroring the conversation to dashboards.

Configuration is read from the environment. A .env file in the working
directory is loaded when present; variables already set take precedence.

Examples:
  # Serve the dashboard and accept calls from the browser
  dispatch serve

  # Run one call from a recording and print the transcript
  dispatch replay --file call.wav

  # Follow the transcript topic
  dispatch watch --brokers localhost:9092`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFiles(envFiles...); err != nil {
			return err
		}
		cfg = config.Load()
		if logLevel != "" {
			cfg.Observability.LogLevel = logLevel
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "env files to load (default .env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(devicesCmd)
}
