// Package notify рассылает ценовые события по каналам пользователя.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-tracker-bot/internal/domain"
	"price-tracker-bot/internal/infra/metrics"
)

// ErrAlertDisabled означает, что пользователь отключил оповещения этого типа.
var ErrAlertDisabled = errors.New("alerts of this type are disabled by the user")

// Translator переводит тексты уведомлений.
type Translator interface {
	T(locale, msgID string, vars ...any) string
	Resolve(locale string) string
}

// Deps содержит зависимости рассыльщика. Mailer и Chat могут быть nil,
// тогда соответствующий канал пропускается.
type Deps struct {
	Users         domain.UserRepo
	Products      domain.ProductRepo
	Notifications domain.NotificationRepo
	Mailer        domain.Mailer
	Chat          domain.ChatSender
	Translator    Translator
}

// Dispatcher доставляет события в личный кабинет, на почту и в Telegram.
type Dispatcher struct {
	users         domain.UserRepo
	products      domain.ProductRepo
	notifications domain.NotificationRepo
	mailer        domain.Mailer
	chat          domain.ChatSender
	tr            Translator
	siteURL       string
	defaultLocale string
	log           zerolog.Logger
}

// Report описывает результат рассылки одного события.
type Report struct {
	Attempted []domain.Channel
	Delivered []domain.Channel
	Skipped   []domain.Channel
	Failed    map[domain.Channel]error
	// Err заполняется, если рассылка не началась, например пользователь не найден.
	Err error
}

// OK сообщает, что ни один канал не завершился ошибкой.
func (r Report) OK() bool {
	return r.Err == nil && len(r.Failed) == 0
}

// NewDispatcher создаёт рассыльщик.
func NewDispatcher(deps Deps, siteURL, defaultLocale string, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		users:         deps.Users,
		products:      deps.Products,
		notifications: deps.Notifications,
		mailer:        deps.Mailer,
		chat:          deps.Chat,
		tr:            deps.Translator,
		siteURL:       siteURL,
		defaultLocale: defaultLocale,
		log:           logger,
	}
}

// Dispatch рассылает событие. Ошибка одного канала не мешает остальным.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.AlertEvent) Report {
	report := Report{Failed: make(map[domain.Channel]error)}
	p := ev.Product
	logger := d.log.With().Int64("product", p.ID).Int64("user", p.UserID).Str("type", string(ev.Type)).Logger()

	user, err := d.users.GetUser(ctx, p.UserID)
	if err != nil {
		logger.Error().Err(err).Msg("notify: не удалось загрузить пользователя")
		report.Err = fmt.Errorf("load user %d: %w", p.UserID, err)
		return report
	}
	locale := d.localeFor(user, ev.Locale)

	for _, ch := range methodsOf(p) {
		if reason := d.skipReason(ch, ev, user); reason != "" {
			logger.Info().Str("channel", string(ch)).Msg("notify: канал пропущен: " + reason)
			report.Skipped = append(report.Skipped, ch)
			continue
		}
		report.Attempted = append(report.Attempted, ch)
		err := d.deliver(ctx, ch, ev, user, locale)
		metrics.IncNotification(string(ch), err)
		if err != nil {
			logger.Error().Err(err).Str("channel", string(ch)).Msg("notify: ошибка доставки")
			report.Failed[ch] = err
			continue
		}
		report.Delivered = append(report.Delivered, ch)
	}
	logger.Info().Int("delivered", len(report.Delivered)).Int("failed", len(report.Failed)).Msg("notify: событие обработано")
	return report
}

// localeFor выбирает язык: настройка пользователя, затем язык события, затем язык по умолчанию.
func (d *Dispatcher) localeFor(user domain.User, eventLocale string) string {
	fallback := strings.TrimSpace(eventLocale)
	if fallback == "" {
		fallback = d.defaultLocale
	}
	return d.tr.Resolve(user.Locale(fallback))
}

func methodsOf(p domain.Product) []domain.Channel {
	if len(p.NotificationMethods) == 0 {
		return []domain.Channel{domain.ChannelAccount}
	}
	seen := make(map[domain.Channel]struct{}, len(p.NotificationMethods))
	out := make([]domain.Channel, 0, len(p.NotificationMethods))
	for _, ch := range p.NotificationMethods {
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}
	return out
}

func (d *Dispatcher) skipReason(ch domain.Channel, ev domain.AlertEvent, user domain.User) string {
	switch ch {
	case domain.ChannelAccount:
		if d.notifications == nil {
			return "хранилище уведомлений не настроено"
		}
	case domain.ChannelEmail:
		switch {
		case d.mailer == nil:
			return "почта не настроена"
		case !user.EnableEmailNotifications || user.Email == "":
			return "письма отключены или нет адреса"
		case !ev.OldPrice.Valid:
			d.log.Warn().Int64("product", ev.Product.ID).Msg("notify: письмо не отправлено, неизвестна прошлая цена")
			return "неизвестна прошлая цена"
		}
	case domain.ChannelTelegram:
		switch {
		case d.chat == nil:
			return "бот не настроен"
		case user.TelegramChatID == nil:
			return "telegram не привязан"
		}
	default:
		return "неизвестный канал"
	}
	return ""
}

func (d *Dispatcher) deliver(ctx context.Context, ch domain.Channel, ev domain.AlertEvent, user domain.User, locale string) error {
	switch ch {
	case domain.ChannelAccount:
		_, err := d.notifications.CreateNotification(ctx, d.accountNotification(ev, locale))
		return err
	case domain.ChannelEmail:
		return d.mailer.SendEmail(ctx, d.emailMessage(ev, user, locale))
	case domain.ChannelTelegram:
		return d.chat.SendMessage(ctx, d.telegramMessage(ev, *user.TelegramChatID, locale))
	}
	return fmt.Errorf("unknown channel %q", ch)
}

// SendTestNotification рассылает синтетическое событие без записи цены.
// Берётся первый товар пользователя или учебный товар со всеми каналами.
func (d *Dispatcher) SendTestNotification(ctx context.Context, email string, alertType domain.AlertType) (Report, error) {
	switch alertType {
	case domain.AlertTargetReached, domain.AlertPriceDrop, domain.AlertPriceIncrease:
	default:
		return Report{}, fmt.Errorf("unsupported notification type %q", alertType)
	}
	user, err := d.users.GetUserByEmail(ctx, email)
	if err != nil {
		return Report{}, fmt.Errorf("find user %s: %w", email, err)
	}
	if !user.Wants(alertType) {
		d.log.Info().Int64("user", user.ID).Str("type", string(alertType)).Msg("notify: оповещения этого типа отключены, тест не отправлен")
		return Report{}, fmt.Errorf("%w: %s", ErrAlertDisabled, alertType)
	}

	product := domain.Product{
		UserID:              user.ID,
		Name:                "Test product",
		URL:                 "http://example.com",
		TargetPrice:         decimal.NewFromInt(1000),
		NotificationMethods: []domain.Channel{domain.ChannelAccount, domain.ChannelEmail, domain.ChannelTelegram},
	}
	if d.products != nil {
		products, err := d.products.ListUserProducts(ctx, user.ID)
		if err != nil {
			return Report{}, fmt.Errorf("list products: %w", err)
		}
		if len(products) > 0 {
			product = products[0].Clone()
		}
	}

	base := product.TargetPrice
	if !base.IsPositive() {
		base = decimal.NewFromInt(100)
	}
	ev := domain.AlertEvent{
		Product:  product,
		Type:     alertType,
		OldPrice: decimal.NewNullDecimal(base.Mul(decimal.RequireFromString("1.2"))),
		NewPrice: base.Mul(decimal.RequireFromString("0.8")),
	}
	d.log.Info().Int64("user", user.ID).Str("type", string(alertType)).Msg("notify: тестовое уведомление")
	report := d.Dispatch(ctx, ev)
	return report, report.Err
}

// SendSystemMessage отправляет сообщение администратора в один канал.
func (d *Dispatcher) SendSystemMessage(ctx context.Context, userID int64, ch domain.Channel, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("empty message")
	}
	user, err := d.users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", userID, err)
	}
	locale := d.localeFor(user, "")

	switch ch {
	case domain.ChannelAccount:
		if d.notifications == nil {
			return errors.New("notifications store is not configured")
		}
		_, err = d.notifications.CreateNotification(ctx, domain.UserNotification{
			UserID:       user.ID,
			Type:         domain.AlertSystemMessage,
			ShortMessage: d.tr.T(locale, "Message from Admin"),
			Message:      text,
		})
	case domain.ChannelEmail:
		if d.mailer == nil || user.Email == "" {
			return errors.New("email channel is unavailable")
		}
		err = d.mailer.SendEmail(ctx, domain.EmailMessage{
			To:       user.Email,
			Subject:  d.tr.T(locale, "A message from our admin"),
			Template: "notifications/system_message",
			Locale:   locale,
			Vars:     map[string]any{"Message": text, "DashboardURL": d.dashboardURL(0)},
		})
	case domain.ChannelTelegram:
		if d.chat == nil || user.TelegramChatID == nil {
			return errors.New("telegram channel is unavailable")
		}
		err = d.chat.SendMessage(ctx, domain.OutgoingMessage{ChatID: *user.TelegramChatID, Text: text})
	default:
		return fmt.Errorf("unknown channel %q", ch)
	}
	metrics.IncNotification(string(ch), err)
	return err
}
