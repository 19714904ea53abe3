// Package products управляет отслеживаемыми товарами пользователя.
package products

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-tracker-bot/internal/domain"
)

const maxNameLength = 255

// ErrInvalidProduct возвращается, если данные товара не прошли проверку.
var ErrInvalidProduct = errors.New("некорректные данные товара")

// CreateInput описывает новый товар.
type CreateInput struct {
	UserID                 int64  `validate:"gt=0"`
	URL                    string `validate:"required,url,max=2048"`
	Name                   string `validate:"required"`
	TargetPrice            decimal.Decimal
	PriceDropThreshold     decimal.NullDecimal
	PriceIncreaseThreshold decimal.NullDecimal
	CurrentPrice           decimal.NullDecimal
	CheckFrequency         int              `validate:"gt=0,lte=720"`
	NotificationMethods    []domain.Channel `validate:"min=1,dive,oneof=account email telegram"`
	Locale                 string
}

// Service добавляет, удаляет и перечисляет товары.
type Service struct {
	products domain.ProductRepo
	history  domain.PriceHistoryRepo
	queue    domain.CheckQueue
	validate *validator.Validate
	now      func() time.Time
	log      zerolog.Logger
}

// NewService создаёт сервис. queue может быть nil, тогда первая проверка не ставится.
func NewService(products domain.ProductRepo, history domain.PriceHistoryRepo, queue domain.CheckQueue, logger zerolog.Logger) *Service {
	return &Service{
		products: products,
		history:  history,
		queue:    queue,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger,
	}
}

// Create сохраняет товар вместе с первой записью истории. Если известная цена
// уже не выше целевой, сразу ставится проверка.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Product, error) {
	in.URL = strings.TrimSpace(in.URL)
	in.Name = truncate(strings.TrimSpace(in.Name), maxNameLength)
	if err := s.validate.Struct(in); err != nil {
		return domain.Product{}, fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	if !in.TargetPrice.IsPositive() {
		return domain.Product{}, fmt.Errorf("%w: target price must be positive", ErrInvalidProduct)
	}
	if in.PriceDropThreshold.Valid && !in.PriceDropThreshold.Decimal.IsPositive() {
		return domain.Product{}, fmt.Errorf("%w: drop threshold must be positive", ErrInvalidProduct)
	}
	if in.PriceIncreaseThreshold.Valid && !in.PriceIncreaseThreshold.Decimal.IsPositive() {
		return domain.Product{}, fmt.Errorf("%w: increase threshold must be positive", ErrInvalidProduct)
	}

	exists, err := s.products.ProductExists(ctx, in.UserID, in.URL)
	if err != nil {
		return domain.Product{}, fmt.Errorf("проверка дубликата: %w", err)
	}
	if exists {
		return domain.Product{}, domain.ErrAlreadyTracked
	}

	now := s.now()
	p := domain.Product{
		UserID:                 in.UserID,
		URL:                    in.URL,
		Name:                   in.Name,
		TargetPrice:            in.TargetPrice,
		PriceDropThreshold:     in.PriceDropThreshold,
		PriceIncreaseThreshold: in.PriceIncreaseThreshold,
		CurrentPrice:           in.CurrentPrice,
		CheckFrequency:         in.CheckFrequency,
		NotificationMethods:    dedupe(in.NotificationMethods),
		CreatedAt:              now,
	}
	if in.CurrentPrice.Valid {
		p.LastChecked = &now
	}
	created, err := s.products.CreateProduct(ctx, p)
	if err != nil {
		return domain.Product{}, err
	}
	s.log.Info().Int64("product", created.ID).Int64("user", created.UserID).Msg("products: товар добавлен")

	if s.queue != nil && created.CurrentPrice.Valid && created.CurrentPrice.Decimal.LessThanOrEqual(created.TargetPrice) {
		job := domain.PriceCheckJob{
			ID:          uuid.NewString(),
			ProductID:   created.ID,
			Locale:      in.Locale,
			RequestedAt: now,
			Cause:       domain.CheckCauseCreated,
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.log.Error().Err(err).Int64("product", created.ID).Msg("products: не удалось поставить первую проверку")
		}
	}
	return created, nil
}

// Remove удаляет товар владельца вместе с историей цен.
func (s *Service) Remove(ctx context.Context, userID, productID int64) error {
	if err := s.products.DeleteProduct(ctx, userID, productID); err != nil {
		return err
	}
	s.log.Info().Int64("product", productID).Int64("user", userID).Msg("products: товар удалён")
	return nil
}

// List возвращает товары пользователя.
func (s *Service) List(ctx context.Context, userID int64) ([]domain.Product, error) {
	return s.products.ListUserProducts(ctx, userID)
}

// History возвращает последние наблюдения цены, новые первыми.
func (s *Service) History(ctx context.Context, productID int64, limit int) ([]domain.PriceHistoryEntry, error) {
	if s.history == nil {
		return nil, errors.New("price history is not configured")
	}
	return s.history.ListPriceHistory(ctx, productID, limit)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

func dedupe(methods []domain.Channel) []domain.Channel {
	seen := make(map[domain.Channel]struct{}, len(methods))
	out := make([]domain.Channel, 0, len(methods))
	for _, m := range methods {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
