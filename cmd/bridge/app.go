package main

import (
	"context"
	"fmt"

	"telegram-bridge/internal/clock"
	"telegram-bridge/internal/config"
	"telegram-bridge/internal/db"
	ghpkg "telegram-bridge/internal/github"
	"telegram-bridge/internal/lock"
	"telegram-bridge/internal/notify"
	"telegram-bridge/internal/secret"
	"telegram-bridge/internal/storage"
	"telegram-bridge/internal/telegram"
	"telegram-bridge/internal/workroom"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/rs/zerolog"
)

// app holds every long-lived dependency, built once per process.
type app struct {
	cfg *config.Config
	log zerolog.Logger

	api       *ghpkg.API
	store     *storage.Store
	sessions  telegram.SessionStore
	messenger *telegram.BotMessenger
	mtproto   *telegram.MTProto
	scheduler *notify.Scheduler
	machine   *workroom.Machine
	webhooks  *ghpkg.WebhookServer

	closers []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg)
	a := &app{cfg: cfg, log: log}

	box, err := secret.NewBox(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY: %w", err)
	}

	gh, err := ghpkg.NewClientFactory().NewClient(ctx, cfg.GitHubToken)
	if err != nil {
		return nil, err
	}
	a.api = ghpkg.NewAPI(gh, cfg.StorageOwner, cfg.StorageRepo)
	a.store = storage.New(a.api, cfg.StorageOwner, cfg.PluginRepo, cfg.StorageBranch, log)

	switch cfg.SessionBackend {
	case config.SessionBackendMongo:
		database, err := db.Connect(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		a.closers = append(a.closers, func() { _ = database.Close(context.Background()) })
		a.sessions = db.NewSessionStore(database, box)
		log.Info().Str("database", cfg.DatabaseName).Msg("connected to MongoDB")
	default:
		a.sessions = storage.NewGitSessionStore(a.store, box)
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisURL != "" {
		r, err := lock.NewRedis(ctx, cfg.RedisURL, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = r.Close() })
		locker = r
		log.Info().Msg("connected to Redis")
	}

	bot, err := gotgbot.NewBot(cfg.TelegramBotToken, &gotgbot.BotOpts{DisableTokenCheck: true})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("bot: %w", err)
	}
	botID, err := telegram.ParseBotID(cfg.TelegramBotToken)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN: %w", err)
	}
	a.messenger = telegram.NewBotMessenger(bot, cfg.DMRatePerSecond, log)

	c := clock.Real()
	a.scheduler = notify.New(a.api, storage.NewUserStore(a.store), a.messenger, c, log)

	var rooms ghpkg.Workrooms
	if cfg.HasMTProto() {
		creds := telegram.Credentials{AppID: cfg.TelegramAppID, AppHash: cfg.TelegramAppHash}
		a.mtproto = telegram.NewMTProto(creds, a.sessions, a.messenger.Username, log)
		a.machine = workroom.New(workroom.Options{
			Chats:     storage.NewChatStore(a.store),
			Connector: a.mtproto,
			Comments:  a.api,
			Locker:    locker,
			Clock:     c,
			BotID:     botID,
			Log:       log,
		})
		rooms = a.machine
	} else {
		log.Warn().Msg("TELEGRAM_APP_ID/TELEGRAM_APP_HASH not set, workrooms disabled")
	}

	d := ghpkg.NewDispatcher(log)
	ghpkg.Register(d, rooms, a.scheduler)
	a.webhooks = ghpkg.NewWebhookServer(ctx, cfg.GitHubWebhookSecret, d, a.api, secret.NewRedactor(cfg.Secrets()...), log)

	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
