package products

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-tracker-bot/internal/adapters/memory"
	"price-tracker-bot/internal/domain"
)

func validInput() CreateInput {
	return CreateInput{
		UserID:              1,
		URL:                 "https://www.amazon.com/dp/B000",
		Name:                "Headphones",
		TargetPrice:         decimal.NewFromInt(50),
		CurrentPrice:        decimal.NewNullDecimal(decimal.NewFromInt(80)),
		CheckFrequency:      24,
		NotificationMethods: []domain.Channel{domain.ChannelAccount, domain.ChannelEmail, domain.ChannelAccount},
	}
}

func newService() (*Service, *memory.Store, *memory.Queue) {
	store := memory.NewStore()
	q := memory.NewQueue(4)
	return NewService(store, store, q, zerolog.Nop()), store, q
}

func TestCreateStoresProductAndHistory(t *testing.T) {
	svc, store, q := newService()

	p, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, []domain.Channel{domain.ChannelAccount, domain.ChannelEmail}, p.NotificationMethods)
	require.NotNil(t, p.LastChecked)

	history, err := store.ListPriceHistory(context.Background(), p.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Empty(t, q.Enqueued())
}

func TestCreateEnqueuesCheckWhenAtTarget(t *testing.T) {
	svc, _, q := newService()
	in := validInput()
	in.CurrentPrice = decimal.NewNullDecimal(decimal.NewFromInt(50))
	in.Locale = "ru"

	p, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	jobs := q.Enqueued()
	require.Len(t, jobs, 1)
	assert.Equal(t, p.ID, jobs[0].ProductID)
	assert.Equal(t, domain.CheckCauseCreated, jobs[0].Cause)
	assert.Equal(t, "ru", jobs[0].Locale)
}

func TestCreateRejectsDuplicate(t *testing.T) {
	svc, _, _ := newService()
	_, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), validInput())
	assert.ErrorIs(t, err, domain.ErrAlreadyTracked)
}

func TestCreateValidation(t *testing.T) {
	cases := map[string]func(*CreateInput){
		"нулевая цель":        func(in *CreateInput) { in.TargetPrice = decimal.Zero },
		"отрицательная цель":  func(in *CreateInput) { in.TargetPrice = decimal.NewFromInt(-1) },
		"нулевой порог":       func(in *CreateInput) { in.PriceDropThreshold = decimal.NewNullDecimal(decimal.Zero) },
		"порог роста":         func(in *CreateInput) { in.PriceIncreaseThreshold = decimal.NewNullDecimal(decimal.NewFromInt(-5)) },
		"без каналов":         func(in *CreateInput) { in.NotificationMethods = nil },
		"неизвестный канал":   func(in *CreateInput) { in.NotificationMethods = []domain.Channel{"sms"} },
		"пустая ссылка":       func(in *CreateInput) { in.URL = "" },
		"пустое название":     func(in *CreateInput) { in.Name = "   " },
		"нулевая частота":     func(in *CreateInput) { in.CheckFrequency = 0 },
		"неизвестный пользов": func(in *CreateInput) { in.UserID = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			svc, _, _ := newService()
			in := validInput()
			mutate(&in)
			_, err := svc.Create(context.Background(), in)
			assert.True(t, errors.Is(err, ErrInvalidProduct), "ожидали ErrInvalidProduct, получили %v", err)
		})
	}
}

func TestCreateTruncatesName(t *testing.T) {
	svc, _, _ := newService()
	in := validInput()
	in.Name = strings.Repeat("я", 300)

	p, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 255, len([]rune(p.Name)))
}

func TestRemoveOnlyOwner(t *testing.T) {
	svc, _, _ := newService()
	p, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Remove(context.Background(), 2, p.ID), domain.ErrNotFound)
	require.NoError(t, svc.Remove(context.Background(), 1, p.ID))

	list, err := svc.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, list)
}
