package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Channel задаёт способ доставки уведомления.
type Channel string

const (
	ChannelAccount  Channel = "account"
	ChannelEmail    Channel = "email"
	ChannelTelegram Channel = "telegram"
)

// ParseChannel приводит пользовательский ввод к каналу доставки.
func ParseChannel(raw string) (Channel, bool) {
	switch Channel(strings.ToLower(strings.TrimSpace(raw))) {
	case ChannelAccount:
		return ChannelAccount, true
	case ChannelEmail:
		return ChannelEmail, true
	case ChannelTelegram:
		return ChannelTelegram, true
	}
	return "", false
}

// AlertType задаёт тип ценового события.
type AlertType string

const (
	AlertTargetReached AlertType = "target_reached"
	AlertPriceDrop     AlertType = "price_drop"
	AlertPriceIncrease AlertType = "price_increase"
	AlertSystemMessage AlertType = "system_message"
)

// Product описывает отслеживаемый товар пользователя.
type Product struct {
	ID                     int64
	UserID                 int64
	URL                    string
	Name                   string
	TargetPrice            decimal.Decimal
	PriceDropThreshold     decimal.NullDecimal
	PriceIncreaseThreshold decimal.NullDecimal
	CurrentPrice           decimal.NullDecimal
	LastChecked            *time.Time
	CheckFrequency         int
	NotificationMethods    []Channel
	TargetNotified         bool
	CreatedAt              time.Time
}

// Clone возвращает независимую копию товара.
func (p Product) Clone() Product {
	out := p
	if p.LastChecked != nil {
		checked := *p.LastChecked
		out.LastChecked = &checked
	}
	out.NotificationMethods = append([]Channel(nil), p.NotificationMethods...)
	return out
}

// HasMethod сообщает, включён ли канал для товара.
func (p Product) HasMethod(ch Channel) bool {
	for _, m := range p.NotificationMethods {
		if m == ch {
			return true
		}
	}
	return false
}

// Due сообщает, пора ли проверять цену. Товар без проверок всегда просрочен,
// граница интервала включается.
func (p Product) Due(now time.Time) bool {
	if p.LastChecked == nil {
		return true
	}
	deadline := now.Add(-time.Duration(p.CheckFrequency) * time.Hour)
	return !p.LastChecked.After(deadline)
}

// PriceHistoryEntry хранит одно наблюдение цены.
type PriceHistoryEntry struct {
	ID         int64
	ProductID  int64
	Price      decimal.Decimal
	RecordedAt time.Time
}

// PriceCheck описывает результат успешной проверки, который сохраняется одной транзакцией.
type PriceCheck struct {
	ProductID      int64
	Price          decimal.Decimal
	CheckedAt      time.Time
	TargetNotified bool
}

// User владеет товарами. Пайплайн только читает его настройки.
type User struct {
	ID                               int64
	Email                            string
	Language                         string
	EnableEmailNotifications         bool
	EnablePriceDropNotifications     bool
	EnableTargetReachedNotifications bool
	TelegramChatID                   *int64
	TelegramLinkingToken             string
}

// Wants сообщает, включены ли у пользователя оповещения этого типа.
// Для роста цены отдельной настройки нет, его включает порог товара.
func (u User) Wants(t AlertType) bool {
	switch t {
	case AlertTargetReached:
		return u.EnableTargetReachedNotifications
	case AlertPriceDrop:
		return u.EnablePriceDropNotifications
	}
	return true
}

// Locale возвращает язык пользователя или fallback.
func (u User) Locale(fallback string) string {
	if lang := strings.TrimSpace(u.Language); lang != "" {
		return lang
	}
	return fallback
}

// AlertEvent описывает сработавшее событие, оно сразу уходит в рассылку и не сохраняется.
type AlertEvent struct {
	Product  Product
	Type     AlertType
	OldPrice decimal.NullDecimal
	NewPrice decimal.Decimal
	Locale   string
}

// NotificationPayload содержит структурированные данные уведомления в кабинете.
type NotificationPayload struct {
	OldPrice  *float64 `json:"old_price"`
	NewPrice  *float64 `json:"new_price"`
	Currency  string   `json:"currency"`
	PriceDiff *float64 `json:"price_diff"`
}

// UserNotification описывает уведомление в личном кабинете.
type UserNotification struct {
	ID           int64
	UserID       int64
	ProductID    *int64
	Type         AlertType
	ShortMessage string
	Message      string
	Data         NotificationPayload
	CreatedAt    time.Time
}

// EmailMessage описывает письмо, отправляемое по шаблону.
type EmailMessage struct {
	To       string
	Subject  string
	Template string
	Locale   string
	Vars     map[string]any
}

// Button описывает кнопку inline-клавиатуры.
type Button struct {
	Label string
	Data  string
}

// OutgoingMessage описывает исходящее сообщение в чат.
type OutgoingMessage struct {
	ChatID    int64
	Text      string
	ParseMode string
	Buttons   [][]Button
}
