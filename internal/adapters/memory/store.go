// Package memory содержит реализации хранилищ в памяти процесса. Используется
// в тестах и как запасной вариант, когда Redis не настроен.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"price-tracker-bot/internal/domain"
)

// Store хранит товары, историю цен, пользователей и уведомления.
type Store struct {
	mu            sync.Mutex
	now           func() time.Time
	nextID        int64
	products      map[int64]domain.Product
	history       []domain.PriceHistoryEntry
	users         map[int64]domain.User
	notifications []domain.UserNotification
	sessions      map[int64]domain.ChatSession
}

var (
	_ domain.ProductRepo      = (*Store)(nil)
	_ domain.PriceHistoryRepo = (*Store)(nil)
	_ domain.UserRepo         = (*Store)(nil)
	_ domain.NotificationRepo = (*Store)(nil)
	_ domain.ChatSessionStore = (*Store)(nil)
)

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		now:      func() time.Time { return time.Now().UTC() },
		products: make(map[int64]domain.Product),
		users:    make(map[int64]domain.User),
		sessions: make(map[int64]domain.ChatSession),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// PutUser добавляет или заменяет пользователя.
func (s *Store) PutUser(u domain.User) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	}
	s.users[u.ID] = u
	return u
}

// PutProduct сохраняет товар как есть, без записи истории.
func (s *Store) PutProduct(p domain.Product) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.id()
	}
	s.products[p.ID] = p.Clone()
	return p
}

// GetProduct реализует domain.ProductRepo.
func (s *Store) GetProduct(_ context.Context, id int64) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	return p.Clone(), nil
}

// ListDueProducts реализует domain.ProductRepo.
func (s *Store) ListDueProducts(_ context.Context, now time.Time) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Product
	for _, p := range s.products {
		if p.Due(now) {
			out = append(out, p.Clone())
		}
	}
	sortProducts(out)
	return out, nil
}

// ListUserProducts реализует domain.ProductRepo.
func (s *Store) ListUserProducts(_ context.Context, userID int64) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Product
	for _, p := range s.products {
		if p.UserID == userID {
			out = append(out, p.Clone())
		}
	}
	sortProducts(out)
	return out, nil
}

// ProductExists реализует domain.ProductRepo.
func (s *Store) ProductExists(_ context.Context, userID int64, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.UserID == userID && p.URL == url {
			return true, nil
		}
	}
	return false, nil
}

// CreateProduct реализует domain.ProductRepo.
func (s *Store) CreateProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.products {
		if existing.UserID == p.UserID && existing.URL == p.URL {
			return domain.Product{}, domain.ErrAlreadyTracked
		}
	}
	p.ID = s.id()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.products[p.ID] = p.Clone()
	if p.CurrentPrice.Valid {
		s.history = append(s.history, domain.PriceHistoryEntry{
			ID:         s.id(),
			ProductID:  p.ID,
			Price:      p.CurrentPrice.Decimal,
			RecordedAt: p.CreatedAt,
		})
	}
	return p, nil
}

// DeleteProduct реализует domain.ProductRepo. История цен удаляется вместе с товаром.
func (s *Store) DeleteProduct(_ context.Context, userID, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok || p.UserID != userID {
		return domain.ErrNotFound
	}
	delete(s.products, productID)
	kept := s.history[:0]
	for _, h := range s.history {
		if h.ProductID != productID {
			kept = append(kept, h)
		}
	}
	s.history = kept
	return nil
}

// RecordPriceCheck реализует domain.ProductRepo.
func (s *Store) RecordPriceCheck(_ context.Context, check domain.PriceCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[check.ProductID]
	if !ok {
		return domain.ErrNotFound
	}
	checkedAt := check.CheckedAt
	p.CurrentPrice.Decimal = check.Price
	p.CurrentPrice.Valid = true
	p.LastChecked = &checkedAt
	p.TargetNotified = check.TargetNotified
	s.products[p.ID] = p
	s.history = append(s.history, domain.PriceHistoryEntry{
		ID:         s.id(),
		ProductID:  p.ID,
		Price:      check.Price,
		RecordedAt: checkedAt,
	})
	return nil
}

// ListPriceHistory реализует domain.PriceHistoryRepo. Новые записи идут первыми.
func (s *Store) ListPriceHistory(_ context.Context, productID int64, limit int) ([]domain.PriceHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PriceHistoryEntry
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].ProductID != productID {
			continue
		}
		out = append(out, s.history[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// GetUser реализует domain.UserRepo.
func (s *Store) GetUser(_ context.Context, id int64) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

// GetUserByEmail реализует domain.UserRepo.
func (s *Store) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

// GetUserByChatID реализует domain.UserRepo.
func (s *Store) GetUserByChatID(_ context.Context, chatID int64) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.TelegramChatID != nil && *u.TelegramChatID == chatID {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

// LinkTelegram реализует domain.UserRepo.
func (s *Store) LinkTelegram(_ context.Context, token string, chatID int64) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" {
		return domain.User{}, domain.ErrNotFound
	}
	var (
		target domain.User
		found  bool
	)
	for _, u := range s.users {
		if u.TelegramLinkingToken == token {
			target, found = u, true
		}
	}
	if !found {
		return domain.User{}, domain.ErrNotFound
	}
	if target.TelegramChatID != nil {
		return domain.User{}, domain.ErrAccountAlreadyLinked
	}
	for _, u := range s.users {
		if u.TelegramChatID != nil && *u.TelegramChatID == chatID {
			return domain.User{}, domain.ErrChatAlreadyLinked
		}
	}
	id := chatID
	target.TelegramChatID = &id
	target.TelegramLinkingToken = ""
	s.users[target.ID] = target
	return target, nil
}

// CreateNotification реализует domain.NotificationRepo.
func (s *Store) CreateNotification(_ context.Context, n domain.UserNotification) (domain.UserNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = s.id()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	s.notifications = append(s.notifications, n)
	return n, nil
}

// Notifications возвращает копию сохранённых уведомлений.
func (s *Store) Notifications() []domain.UserNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.UserNotification(nil), s.notifications...)
}

// LoadSession реализует domain.ChatSessionStore.
func (s *Store) LoadSession(_ context.Context, userID int64) (domain.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[userID]
	if !ok {
		return domain.ChatSession{UserID: userID, State: domain.ChatStateNone}, nil
	}
	return copySession(session), nil
}

// SaveSession реализует domain.ChatSessionStore.
func (s *Store) SaveSession(_ context.Context, session domain.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !session.Active() {
		delete(s.sessions, session.UserID)
		return nil
	}
	s.sessions[session.UserID] = copySession(session)
	return nil
}

// ClearSession реализует domain.ChatSessionStore.
func (s *Store) ClearSession(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

func copySession(session domain.ChatSession) domain.ChatSession {
	if session.Data == nil {
		return session
	}
	data := make(map[string]string, len(session.Data))
	for k, v := range session.Data {
		data[k] = v
	}
	session.Data = data
	return session
}

func sortProducts(products []domain.Product) {
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
}
