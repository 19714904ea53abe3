// Package app собирает общие зависимости процессов из конфига.
package app

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"price-tracker-bot/internal/adapters/fetcher"
	"price-tracker-bot/internal/adapters/mailer"
	"price-tracker-bot/internal/adapters/memory"
	"price-tracker-bot/internal/adapters/repo"
	"price-tracker-bot/internal/adapters/telegram"
	"price-tracker-bot/internal/domain"
	"price-tracker-bot/internal/i18n"
	"price-tracker-bot/internal/infra/cache"
	"price-tracker-bot/internal/infra/config"
	"price-tracker-bot/internal/infra/db"
	"price-tracker-bot/internal/infra/queue"
	"price-tracker-bot/internal/usecase/notify"
)

// Deps содержит подключения процесса. Close освобождает их в обратном порядке.
type Deps struct {
	Cfg        config.AppConfig
	Log        zerolog.Logger
	Pool       *pgxpool.Pool
	Repo       *repo.Postgres
	Redis      *redis.Client
	Tokens     domain.TokenCache
	Locker     domain.Locker
	Sessions   domain.ChatSessionStore
	Queue      domain.CheckQueue
	Translator *i18n.Translator
	Bot        *tgbotapi.BotAPI
	Sender     *telegram.Sender

	closers []func() error
}

// Open подключается к Postgres, Redis и очереди. Без REDIS_ADDR токены и
// блокировки живут в памяти процесса, а диалоги хранятся в Postgres.
func Open(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*Deps, error) {
	d := &Deps{Cfg: cfg, Log: logger}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	pool, err := db.Connect(ctx, cfg.DatabaseURL, int32(cfg.Check.Workers+4))
	if err != nil {
		return nil, err
	}
	d.Pool = pool
	d.Repo = repo.NewPostgres(pool)
	d.closers = append(d.closers, func() error { pool.Close(); return nil })

	if cfg.Redis.Addr != "" {
		client, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Redis = client
		d.closers = append(d.closers, client.Close)
		redisCache := cache.NewRedis(client, 0)
		d.Tokens, d.Locker, d.Sessions = redisCache, redisCache, redisCache
	} else {
		logger.Warn().Msg("app: REDIS_ADDR не задан, кэш и блокировки в памяти процесса")
		d.Tokens, d.Locker, d.Sessions = memory.NewTokenCache(), memory.NewLocker(), d.Repo
	}

	q, closeQueue, err := queue.Open(cfg.Queue.Backend, cfg.Queue.RabbitURL, cfg.Queue.Name, cfg.Check.Workers, d.Redis)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Queue = q
	d.closers = append(d.closers, closeQueue)

	tr, err := i18n.New(cfg.DefaultLocale)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Translator = tr

	if cfg.Telegram.Token != "" {
		api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Bot = api
		d.Sender = telegram.NewSender(api, cfg.Telegram.SendRPS, logger)
	} else {
		logger.Warn().Msg("app: TELEGRAM_BOT_TOKEN не задан, уведомления в Telegram отключены")
	}
	return d, nil
}

// Close закрывает подключения.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.Log.Warn().Err(err).Msg("app: ошибка при закрытии")
		}
	}
	d.closers = nil
}

// Mailer возвращает почтовый канал или nil, если MAIL_SERVER не задан.
func (d *Deps) Mailer() (domain.Mailer, error) {
	if d.Cfg.Mail.Server == "" {
		d.Log.Warn().Msg("app: MAIL_SERVER не задан, письма отключены")
		return nil, nil
	}
	m, err := mailer.New(mailer.Config{
		Server:        d.Cfg.Mail.Server,
		Port:          d.Cfg.Mail.Port,
		Username:      d.Cfg.Mail.Username,
		Password:      d.Cfg.Mail.Password,
		DefaultSender: d.Cfg.Mail.DefaultSender,
	}, d.Translator, d.Log)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Dispatcher собирает рассыльщик по доступным каналам.
func (d *Deps) Dispatcher() (*notify.Dispatcher, error) {
	mail, err := d.Mailer()
	if err != nil {
		return nil, err
	}
	var chat domain.ChatSender
	if d.Sender != nil {
		chat = d.Sender
	}
	return notify.NewDispatcher(notify.Deps{
		Users:         d.Repo,
		Products:      d.Repo,
		Notifications: d.Repo,
		Mailer:        mail,
		Chat:          chat,
		Translator:    d.Translator,
	}, d.Cfg.SiteURL, d.Cfg.DefaultLocale, d.Log), nil
}

// Registry собирает реестр магазинов с headless-браузером.
func (d *Deps) Registry() *fetcher.Registry {
	browser := fetcher.NewBrowser(d.Cfg.Browser.Concurrency, d.Cfg.Browser.NavTimeout, d.Cfg.Browser.ExecPath, d.Log)
	return fetcher.NewDefaultRegistry(d.Log, fetcher.Options{
		RainforestAPIKey: d.Cfg.Sources.RainforestAPIKey,
		ScraperAPIKey:    d.Cfg.Sources.ScraperAPIKey,
		EbayAppID:        d.Cfg.Sources.EbayAppID,
		EbayCertID:       d.Cfg.Sources.EbayCertID,
		Tokens:           d.Tokens,
		Browser:          browser,
	})
}
