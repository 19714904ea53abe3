package domain

import (
	"context"
	"time"
)

// ProductRepo отвечает за хранение отслеживаемых товаров.
type ProductRepo interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	// ListDueProducts возвращает товары, которые не проверялись ни разу
	// или проверялись не позже now минус интервал проверки.
	ListDueProducts(ctx context.Context, now time.Time) ([]Product, error)
	ListUserProducts(ctx context.Context, userID int64) ([]Product, error)
	ProductExists(ctx context.Context, userID int64, url string) (bool, error)
	// CreateProduct сохраняет товар и, если известна текущая цена, первую запись истории.
	CreateProduct(ctx context.Context, p Product) (Product, error)
	DeleteProduct(ctx context.Context, userID, productID int64) error
	// RecordPriceCheck обновляет цену, время проверки, флаг цели и добавляет запись истории в одной транзакции.
	RecordPriceCheck(ctx context.Context, check PriceCheck) error
}

// PriceHistoryRepo отдаёт историю цен товара.
type PriceHistoryRepo interface {
	ListPriceHistory(ctx context.Context, productID int64, limit int) ([]PriceHistoryEntry, error)
}

// UserRepo читает настройки пользователей и привязку Telegram.
type UserRepo interface {
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByChatID(ctx context.Context, chatID int64) (User, error)
	// LinkTelegram привязывает чат к пользователю по одноразовому токену.
	LinkTelegram(ctx context.Context, token string, chatID int64) (User, error)
}

// NotificationRepo сохраняет уведомления личного кабинета.
type NotificationRepo interface {
	CreateNotification(ctx context.Context, n UserNotification) (UserNotification, error)
}

// ChatSessionStore хранит состояние диалогов.
type ChatSessionStore interface {
	LoadSession(ctx context.Context, userID int64) (ChatSession, error)
	SaveSession(ctx context.Context, session ChatSession) error
	ClearSession(ctx context.Context, userID int64) error
}

// TokenCache хранит токены внешних API с ограниченным сроком жизни.
type TokenCache interface {
	GetToken(ctx context.Context, key string) (string, bool, error)
	SetToken(ctx context.Context, key, value string, ttl time.Duration) error
}

// Locker выдаёт эксклюзивную блокировку по ключу.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// PriceFetcher получает название и цену товара по ссылке.
type PriceFetcher interface {
	Fetch(ctx context.Context, rawURL string) (Snapshot, error)
}

// Mailer отправляет письма по шаблону.
type Mailer interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// ChatSender отправляет сообщения в Telegram.
type ChatSender interface {
	SendMessage(ctx context.Context, msg OutgoingMessage) error
}
