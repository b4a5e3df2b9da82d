package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"telegram-bridge/internal/telegram"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var errNoMTProto = errors.New("TELEGRAM_APP_ID and TELEGRAM_APP_HASH must be set")

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in the workroom account and store its session",
	Long: `Sign in the user account that creates and manages workrooms.

The phone number defaults to TELEGRAM_PHONE. The login code Telegram
sends, and the two-step verification password if one is set, are read
from the terminal. The session is encrypted with ENCRYPTION_KEY before
it is stored.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Terminate the workroom session and delete it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		if a.mtproto == nil {
			return errNoMTProto
		}

		if err := a.mtproto.Logout(cmd.Context()); err != nil {
			return err
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s session deleted\n", green("✓"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	if a.mtproto == nil {
		return errNoMTProto
	}

	rl, err := readline.NewEx(&readline.Config{Prompt: "> "})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer func() { _ = rl.Close() }()

	cyan := color.New(color.FgCyan).SprintFunc()

	phone := a.cfg.TelegramPhone
	if phone == "" {
		rl.SetPrompt(cyan("Phone number: "))
		if phone, err = readLine(rl); err != nil {
			return err
		}
	}

	pw, err := rl.ReadPassword(cyan("Two-step password (empty for none): "))
	if err != nil {
		return err
	}

	prompt := telegram.PrompterFunc(func(context.Context) (string, error) {
		rl.SetPrompt(cyan("Login code: "))
		return readLine(rl)
	})

	self, err := a.mtproto.Login(cmd.Context(), phone, string(pw), prompt)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s signed in as %s (id %d)\n", green("✓"), displayName(self.Username, self.FirstName), self.ID)
	return nil
}

func readLine(rl *readline.Instance) (string, error) {
	line, err := rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", errors.New("interrupted")
	}
	if err != nil {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("empty input")
	}
	return line, nil
}

func displayName(username, first string) string {
	if username != "" {
		return "@" + username
	}
	return first
}
