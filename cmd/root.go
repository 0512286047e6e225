// Package cmd contains the podscout command-line entry points.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/podscout/podscout/internal/log"
)

var (
	flagDebug   bool
	flagJSONLog bool
)

var rootCmd = &cobra.Command{
	Use:   "podscout",
	Short: "Podscout - podcast research assistant",
	Long: `Podscout is a chat-style research assistant for podcast discovery.
It answers questions about shows, episodes, and topics with streamed
responses, and keeps conversation history in PostgreSQL.

Running podscout without a subcommand starts an interactive chat.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLog, "json-log", false, "log as JSON")
}

// newLogger builds the process logger from the global flags. Logs go to
// stderr so stdout stays clean for chat output.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagDebug || os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.NewWithWriter(os.Stderr, log.Config{Level: level, JSON: flagJSONLog})
}
