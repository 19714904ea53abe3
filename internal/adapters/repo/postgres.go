package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"price-tracker-bot/internal/domain"
	"price-tracker-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ProductRepo      = (*Postgres)(nil)
	_ domain.PriceHistoryRepo = (*Postgres)(nil)
	_ domain.UserRepo         = (*Postgres)(nil)
	_ domain.NotificationRepo = (*Postgres)(nil)
	_ domain.ChatSessionStore = (*Postgres)(nil)
)

const (
	uniqueViolation      = "23505"
	productURLConstraint = "uq_user_product_url"
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const productColumns = `id, user_id, url, name, target_price, price_drop_alert_threshold,
price_increase_alert_threshold, current_price, last_checked, check_frequency,
notification_methods, target_price_notified, created_at`

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		p        domain.Product
		methods  []string
		notified *bool
		created  *time.Time
	)
	err := row.Scan(&p.ID, &p.UserID, &p.URL, &p.Name, &p.TargetPrice, &p.PriceDropThreshold,
		&p.PriceIncreaseThreshold, &p.CurrentPrice, &p.LastChecked, &p.CheckFrequency,
		&methods, &notified, &created)
	if err != nil {
		return domain.Product{}, err
	}
	for _, m := range methods {
		if ch, ok := domain.ParseChannel(m); ok {
			p.NotificationMethods = append(p.NotificationMethods, ch)
		}
	}
	if notified != nil {
		p.TargetNotified = *notified
	}
	if created != nil {
		p.CreatedAt = *created
	}
	return p, nil
}

func (p *Postgres) queryProducts(ctx context.Context, operation, query string, args ...any) ([]domain.Product, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", operation, "products", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Product
	for rows.Next() {
		prod, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, prod)
	}
	return out, rows.Err()
}

// GetProduct реализует domain.ProductRepo.
func (p *Postgres) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	prod, err := scanProduct(p.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	metrics.ObserveNetworkRequest("postgres", "products_get", "products", start, ignoreNoRows(err))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrNotFound
	}
	return prod, err
}

// ListDueProducts реализует domain.ProductRepo. Граница интервала включается.
func (p *Postgres) ListDueProducts(ctx context.Context, now time.Time) ([]domain.Product, error) {
	return p.queryProducts(ctx, "products_list_due", `
SELECT `+productColumns+`
FROM products
WHERE last_checked IS NULL
   OR last_checked <= $1::timestamp - make_interval(hours => check_frequency)
ORDER BY id`, now.UTC())
}

// ListUserProducts реализует domain.ProductRepo.
func (p *Postgres) ListUserProducts(ctx context.Context, userID int64) ([]domain.Product, error) {
	return p.queryProducts(ctx, "products_list_by_user", `SELECT `+productColumns+` FROM products WHERE user_id=$1 ORDER BY id`, userID)
}

// ProductExists реализует domain.ProductRepo.
func (p *Postgres) ProductExists(ctx context.Context, userID int64, url string) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var exists bool
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE user_id=$1 AND url=$2)`, userID, url).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "products_exists", "products", start, err)
	return exists, err
}

// CreateProduct реализует domain.ProductRepo.
func (p *Postgres) CreateProduct(ctx context.Context, prod domain.Product) (domain.Product, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	methods := make([]string, len(prod.NotificationMethods))
	for i, m := range prod.NotificationMethods {
		methods[i] = string(m)
	}
	if prod.CreatedAt.IsZero() {
		prod.CreatedAt = time.Now().UTC()
	}

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "products", start, err)
	if err != nil {
		return domain.Product{}, err
	}
	defer tx.Rollback(ctx)

	start = time.Now()
	err = tx.QueryRow(ctx, `
INSERT INTO products (user_id, url, name, target_price, price_drop_alert_threshold,
    price_increase_alert_threshold, current_price, last_checked, check_frequency,
    notification_methods, target_price_notified, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false, $11)
RETURNING id`,
		prod.UserID, prod.URL, prod.Name, prod.TargetPrice, prod.PriceDropThreshold,
		prod.PriceIncreaseThreshold, prod.CurrentPrice, prod.LastChecked, prod.CheckFrequency,
		methods, prod.CreatedAt,
	).Scan(&prod.ID)
	metrics.ObserveNetworkRequest("postgres", "products_insert", "products", start, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == productURLConstraint {
			return domain.Product{}, domain.ErrAlreadyTracked
		}
		return domain.Product{}, err
	}

	if prod.CurrentPrice.Valid {
		if err := insertHistory(ctx, tx, prod.ID, prod.CurrentPrice.Decimal, prod.CreatedAt); err != nil {
			return domain.Product{}, err
		}
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "products", start, err)
	if err != nil {
		return domain.Product{}, err
	}
	prod.TargetNotified = false
	return prod, nil
}

// DeleteProduct реализует domain.ProductRepo. История удаляется вместе с товаром.
func (p *Postgres) DeleteProduct(ctx context.Context, userID, productID int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "products", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	start = time.Now()
	_, err = tx.Exec(ctx, `DELETE FROM price_history WHERE product_id IN (SELECT id FROM products WHERE id=$1 AND user_id=$2)`, productID, userID)
	metrics.ObserveNetworkRequest("postgres", "price_history_delete", "price_history", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	res, err := tx.Exec(ctx, `DELETE FROM products WHERE id=$1 AND user_id=$2`, productID, userID)
	metrics.ObserveNetworkRequest("postgres", "products_delete", "products", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "products", start, err)
	return err
}

// RecordPriceCheck реализует domain.ProductRepo.
func (p *Postgres) RecordPriceCheck(ctx context.Context, check domain.PriceCheck) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "products", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	start = time.Now()
	res, err := tx.Exec(ctx, `
UPDATE products
SET current_price=$2, last_checked=$3, target_price_notified=$4
WHERE id=$1`, check.ProductID, check.Price, check.CheckedAt.UTC(), check.TargetNotified)
	metrics.ObserveNetworkRequest("postgres", "products_record_check", "products", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	if err := insertHistory(ctx, tx, check.ProductID, check.Price, check.CheckedAt.UTC()); err != nil {
		return err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "products", start, err)
	return err
}

func insertHistory(ctx context.Context, tx pgx.Tx, productID int64, price decimal.Decimal, at time.Time) error {
	start := time.Now()
	_, err := tx.Exec(ctx, `INSERT INTO price_history (product_id, price, timestamp) VALUES ($1, $2, $3)`, productID, price, at)
	metrics.ObserveNetworkRequest("postgres", "price_history_insert", "price_history", start, err)
	return err
}

// ListPriceHistory реализует domain.PriceHistoryRepo. Новые записи первыми.
func (p *Postgres) ListPriceHistory(ctx context.Context, productID int64, limit int) ([]domain.PriceHistoryEntry, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	query := `SELECT id, product_id, price, timestamp FROM price_history WHERE product_id=$1 ORDER BY timestamp DESC, id DESC`
	args := []any{productID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "price_history_list", "price_history", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.PriceHistoryEntry
	for rows.Next() {
		var e domain.PriceHistoryEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Price, &e.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const userColumns = `id, email, language, enable_email_notifications, enable_price_drop_notifications,
enable_target_price_reached_notifications, telegram_chat_id, telegram_linking_token`

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u        domain.User
		language *string
		chatID   *string
		token    *string
	)
	err := row.Scan(&u.ID, &u.Email, &language, &u.EnableEmailNotifications, &u.EnablePriceDropNotifications,
		&u.EnableTargetReachedNotifications, &chatID, &token)
	if err != nil {
		return domain.User{}, err
	}
	if language != nil {
		u.Language = *language
	}
	if token != nil {
		u.TelegramLinkingToken = *token
	}
	if chatID != nil {
		id, err := strconv.ParseInt(*chatID, 10, 64)
		if err != nil {
			return domain.User{}, fmt.Errorf("некорректный telegram_chat_id %q: %w", *chatID, err)
		}
		u.TelegramChatID = &id
	}
	return u, nil
}

func (p *Postgres) getUser(ctx context.Context, operation, where string, arg any) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	u, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	metrics.ObserveNetworkRequest("postgres", operation, "users", start, ignoreNoRows(err))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	return u, err
}

// GetUser реализует domain.UserRepo.
func (p *Postgres) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return p.getUser(ctx, "users_get", "id=$1", id)
}

// GetUserByEmail реализует domain.UserRepo.
func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return p.getUser(ctx, "users_get_by_email", "lower(email)=lower($1)", email)
}

// GetUserByChatID реализует domain.UserRepo.
func (p *Postgres) GetUserByChatID(ctx context.Context, chatID int64) (domain.User, error) {
	return p.getUser(ctx, "users_get_by_chat", "telegram_chat_id=$1", strconv.FormatInt(chatID, 10))
}

// LinkTelegram реализует domain.UserRepo. Токен одноразовый и гасится при привязке.
func (p *Postgres) LinkTelegram(ctx context.Context, token string, chatID int64) (domain.User, error) {
	if token == "" {
		return domain.User{}, domain.ErrNotFound
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "users", start, err)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback(ctx)

	start = time.Now()
	u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_linking_token=$1 FOR UPDATE`, token))
	metrics.ObserveNetworkRequest("postgres", "users_get_for_link", "users", start, ignoreNoRows(err))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	if u.TelegramChatID != nil {
		return domain.User{}, domain.ErrAccountAlreadyLinked
	}

	chat := strconv.FormatInt(chatID, 10)
	start = time.Now()
	_, err = tx.Exec(ctx, `UPDATE users SET telegram_chat_id=$2, telegram_linking_token=NULL WHERE id=$1`, u.ID, chat)
	metrics.ObserveNetworkRequest("postgres", "users_link_telegram", "users", start, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.User{}, domain.ErrChatAlreadyLinked
		}
		return domain.User{}, err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "users", start, err)
	if err != nil {
		return domain.User{}, err
	}
	u.TelegramChatID = &chatID
	u.TelegramLinkingToken = ""
	return u, nil
}

// CreateNotification реализует domain.NotificationRepo.
func (p *Postgres) CreateNotification(ctx context.Context, n domain.UserNotification) (domain.UserNotification, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	payload, err := json.Marshal(n.Data)
	if err != nil {
		return domain.UserNotification{}, fmt.Errorf("кодирование данных уведомления: %w", err)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	start := time.Now()
	err = p.pool.QueryRow(ctx, `
INSERT INTO user_notifications (user_id, product_id, type, message, short_message, data, is_read, created_at)
VALUES ($1, $2, $3, $4, $5, $6, false, $7)
RETURNING id`, n.UserID, n.ProductID, string(n.Type), n.Message, n.ShortMessage, string(payload), n.CreatedAt).Scan(&n.ID)
	metrics.ObserveNetworkRequest("postgres", "user_notifications_insert", "user_notifications", start, err)
	if err != nil {
		return domain.UserNotification{}, err
	}
	return n, nil
}

// LoadSession реализует domain.ChatSessionStore поверх users.telegram_state и users.temp_data.
func (p *Postgres) LoadSession(ctx context.Context, userID int64) (domain.ChatSession, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		state *string
		data  []byte
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT telegram_state, temp_data FROM users WHERE id=$1`, userID).Scan(&state, &data)
	metrics.ObserveNetworkRequest("postgres", "users_load_session", "users", start, ignoreNoRows(err))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ChatSession{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ChatSession{}, err
	}
	session := domain.ChatSession{UserID: userID, State: domain.ChatStateNone}
	if state != nil && *state != "" {
		session.State = domain.ChatState(*state)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &session.Data); err != nil {
			return domain.ChatSession{}, fmt.Errorf("разбор temp_data: %w", err)
		}
	}
	return session, nil
}

// SaveSession реализует domain.ChatSessionStore. Неактивная сессия очищается.
func (p *Postgres) SaveSession(ctx context.Context, session domain.ChatSession) error {
	if !session.Active() {
		return p.ClearSession(ctx, session.UserID)
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	data, err := json.Marshal(session.Data)
	if err != nil {
		return err
	}
	start := time.Now()
	_, err = p.pool.Exec(ctx, `UPDATE users SET telegram_state=$2, temp_data=$3 WHERE id=$1`, session.UserID, string(session.State), string(data))
	metrics.ObserveNetworkRequest("postgres", "users_save_session", "users", start, err)
	return err
}

// ClearSession реализует domain.ChatSessionStore.
func (p *Postgres) ClearSession(ctx context.Context, userID int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE users SET telegram_state=NULL, temp_data=NULL WHERE id=$1`, userID)
	metrics.ObserveNetworkRequest("postgres", "users_clear_session", "users", start, err)
	return err
}

func ignoreNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}
