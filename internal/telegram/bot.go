package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"telegram-bridge/internal/cache"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const chatProbeTTL = time.Hour

// ParseBotID returns the numeric account id a Bot API token belongs to.
func ParseBotID(token string) (int64, error) {
	idPart, _, ok := strings.Cut(token, ":")
	if !ok {
		return 0, errors.New("bot token has no id prefix")
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bot token id %q is not a positive number", idPart)
	}
	return id, nil
}

// BotMessenger sends direct messages through the Bot API at a bounded rate.
type BotMessenger struct {
	bot     *gotgbot.Bot
	limiter *rate.Limiter
	chats   *cache.Cache[int64, bool]
	log     zerolog.Logger

	mu       sync.Mutex
	username string
}

func NewBotMessenger(bot *gotgbot.Bot, perSecond float64, log zerolog.Logger) *BotMessenger {
	return &BotMessenger{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond))),
		chats:   cache.New[int64, bool](),
		log:     log.With().Str("component", "bot").Logger(),
	}
}

// ChatCache exposes the private-chat probe cache for the janitor.
func (m *BotMessenger) ChatCache() *cache.Cache[int64, bool] { return m.chats }

// HasChat reports whether userID has a private chat with the bot. Only
// positive answers are cached so a user who starts the bot later is picked
// up on the next event.
func (m *BotMessenger) HasChat(ctx context.Context, userID int64) (bool, error) {
	if ok, hit := m.chats.Get(userID); hit {
		return ok, nil
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return false, err
	}

	chat, err := m.bot.GetChatWithContext(ctx, userID, nil)
	if err != nil {
		var tgErr *gotgbot.TelegramError
		if errors.As(err, &tgErr) && (tgErr.Code == http.StatusBadRequest || tgErr.Code == http.StatusForbidden) {
			m.log.Debug().Int64("user_id", userID).Str("reason", tgErr.Description).Msg("no private chat")
			return false, nil
		}
		return false, fmt.Errorf("get chat %d: %w", userID, err)
	}
	if chat.Type != "private" {
		return false, nil
	}

	m.chats.Set(userID, true, chatProbeTTL)
	return true, nil
}

func (m *BotMessenger) SendHTML(ctx context.Context, userID int64, html string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := m.bot.SendMessageWithContext(ctx, userID, html, &gotgbot.SendMessageOpts{
		ParseMode: "HTML",
		LinkPreviewOptions: &gotgbot.LinkPreviewOptions{
			IsDisabled: true,
		},
	})
	if err != nil {
		return fmt.Errorf("send message to %d: %w", userID, err)
	}
	return nil
}

// Username returns the bot's @username, asking the Bot API once.
func (m *BotMessenger) Username(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.username != "" {
		return m.username, nil
	}
	if m.bot.User.Username != "" {
		m.username = m.bot.User.Username
		return m.username, nil
	}
	me, err := m.bot.GetMeWithContext(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("get me: %w", err)
	}
	m.username = me.Username
	return m.username, nil
}
