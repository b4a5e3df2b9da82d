package telegram

import (
	"context"
	"fmt"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// Prompter asks the operator for the login code sent by Telegram.
type Prompter interface {
	Code(ctx context.Context) (string, error)
}

type PrompterFunc func(ctx context.Context) (string, error)

func (f PrompterFunc) Code(ctx context.Context) (string, error) { return f(ctx) }

// Login runs the interactive sign-in for phone and stores the resulting
// session. password is the two-step verification password, if any.
func (m *MTProto) Login(ctx context.Context, phone, password string, prompt Prompter) (*tg.User, error) {
	client := m.newClient(false)

	var self *tg.User
	err := client.Run(ctx, func(ctx context.Context) error {
		code := auth.CodeAuthenticatorFunc(func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
			return prompt.Code(ctx)
		})
		flow := auth.NewFlow(auth.Constant(phone, password, code), auth.SendCodeOptions{})
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("sign in: %w", err)
		}

		u, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("self: %w", err)
		}
		self = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info().Int64("user_id", self.ID).Str("username", self.Username).Msg("session stored")
	return self, nil
}

// Logout terminates the session at Telegram and deletes it from storage.
// The stored session is removed even when Telegram cannot be reached.
func (m *MTProto) Logout(ctx context.Context) error {
	client := m.newClient(true)
	err := client.Run(ctx, func(ctx context.Context) error {
		_, err := client.API().AuthLogOut(ctx)
		return err
	})
	if err != nil {
		m.log.Warn().Err(err).Msg("remote logout failed")
	}
	return m.sessions.Delete(ctx)
}
