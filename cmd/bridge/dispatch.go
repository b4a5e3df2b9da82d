package main

import (
	"fmt"
	"os"

	ghpkg "telegram-bridge/internal/github"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	dispatchEvent    string
	dispatchPayload  string
	dispatchDelivery string
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Process a single webhook delivery and exit",
	Long: `Process one GitHub event read from a payload file, the way an
action runner hands it over, then exit.

The exit status is 0 when every handler succeeded and 1 otherwise.`,
	Example: `  bridge dispatch --event issues --payload "$GITHUB_EVENT_PATH"`,
	Args:    cobra.NoArgs,
	Run:     runDispatch,
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchEvent, "event", os.Getenv("GITHUB_EVENT_NAME"), "event name (issues, issue_comment, pull_request)")
	dispatchCmd.Flags().StringVar(&dispatchPayload, "payload", os.Getenv("GITHUB_EVENT_PATH"), "path to the JSON payload")
	dispatchCmd.Flags().StringVar(&dispatchDelivery, "delivery", "", "delivery id used in logs (default: random)")
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, _ []string) {
	if err := dispatchOnce(cmd); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}

func dispatchOnce(cmd *cobra.Command) error {
	if dispatchEvent == "" || dispatchPayload == "" {
		return fmt.Errorf("--event and --payload are required")
	}
	payload, err := os.ReadFile(dispatchPayload)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	if dispatchDelivery == "" {
		dispatchDelivery = uuid.NewString()
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	del, err := ghpkg.ParseDelivery(dispatchDelivery, dispatchEvent, payload)
	if err != nil {
		return fmt.Errorf("parse %s payload: %w", dispatchEvent, err)
	}
	return a.webhooks.Process(ctx, del)
}
