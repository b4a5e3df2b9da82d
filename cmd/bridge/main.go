package main

import (
	"fmt"
	"os"
	"time"

	"telegram-bridge/internal/config"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bridge",
	Short: "GitHub issue workrooms and notifications on Telegram",
	Long: `bridge mirrors GitHub issue activity into Telegram.

Workrooms: a group chat is opened when an issue is labeled or assigned,
archived with its members removed when the issue closes, and restored
when it reopens.

Notifications: subscribed users get direct messages for payments,
reminders, unassignments, review requests and requests for comment.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	}
	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()
}
