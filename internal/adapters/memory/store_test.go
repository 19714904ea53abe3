package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-tracker-bot/internal/domain"
)

func TestCreateProductRejectsDuplicateURL(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	p := domain.Product{UserID: 1, URL: "https://amazon.com/dp/1", TargetPrice: decimal.NewFromInt(10),
		CurrentPrice: decimal.NewNullDecimal(decimal.NewFromInt(12))}
	created, err := store.CreateProduct(ctx, p)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	_, err = store.CreateProduct(ctx, p)
	assert.ErrorIs(t, err, domain.ErrAlreadyTracked)

	history, err := store.ListPriceHistory(ctx, created.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Price.Equal(decimal.NewFromInt(12)))
}

func TestRecordPriceCheckAppendsHistory(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	p := store.PutProduct(domain.Product{UserID: 1, URL: "u", TargetPrice: decimal.NewFromInt(10)})

	checkedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordPriceCheck(ctx, domain.PriceCheck{
		ProductID: p.ID, Price: decimal.NewFromInt(9), CheckedAt: checkedAt, TargetNotified: true,
	}))

	got, err := store.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentPrice.Decimal.Equal(decimal.NewFromInt(9)))
	assert.True(t, got.TargetNotified)
	require.NotNil(t, got.LastChecked)
	assert.Equal(t, checkedAt, *got.LastChecked)

	history, err := store.ListPriceHistory(ctx, p.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	err = store.RecordPriceCheck(ctx, domain.PriceCheck{ProductID: 999})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteProductChecksOwnerAndCascades(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	created, err := store.CreateProduct(ctx, domain.Product{UserID: 1, URL: "u",
		CurrentPrice: decimal.NewNullDecimal(decimal.NewFromInt(5))})
	require.NoError(t, err)

	assert.ErrorIs(t, store.DeleteProduct(ctx, 2, created.ID), domain.ErrNotFound)
	require.NoError(t, store.DeleteProduct(ctx, 1, created.ID))

	history, err := store.ListPriceHistory(ctx, created.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestListDueProducts(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(-time.Hour)
	stale := now.Add(-24 * time.Hour)

	never := store.PutProduct(domain.Product{UserID: 1, URL: "a", CheckFrequency: 24})
	store.PutProduct(domain.Product{UserID: 1, URL: "b", CheckFrequency: 24, LastChecked: &fresh})
	boundary := store.PutProduct(domain.Product{UserID: 1, URL: "c", CheckFrequency: 24, LastChecked: &stale})

	due, err := store.ListDueProducts(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, never.ID, due[0].ID)
	assert.Equal(t, boundary.ID, due[1].ID)
}

func TestLinkTelegram(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	chat := int64(777)
	store.PutUser(domain.User{Email: "linked@example.com", TelegramChatID: &chat})
	u := store.PutUser(domain.User{Email: "new@example.com", TelegramLinkingToken: "tok"})
	other := store.PutUser(domain.User{Email: "other@example.com", TelegramLinkingToken: "tok2"})

	_, err := store.LinkTelegram(ctx, "missing", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.LinkTelegram(ctx, "tok2", chat)
	assert.ErrorIs(t, err, domain.ErrChatAlreadyLinked)

	linked, err := store.LinkTelegram(ctx, "tok", 100)
	require.NoError(t, err)
	assert.Equal(t, u.ID, linked.ID)
	require.NotNil(t, linked.TelegramChatID)
	assert.Equal(t, int64(100), *linked.TelegramChatID)

	byChat, err := store.GetUserByChatID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, u.ID, byChat.ID)
	assert.Empty(t, byChat.TelegramLinkingToken)

	// токен одноразовый
	_, err = store.LinkTelegram(ctx, "tok", 101)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	stillFree, err := store.GetUser(ctx, other.ID)
	require.NoError(t, err)
	assert.Nil(t, stillFree.TelegramChatID)
}

func TestSessionsClearedWhenInactive(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	session, err := store.LoadSession(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, domain.ChatStateNone, session.State)

	session.State = domain.ChatStateAwaitingURL
	session.Set("url", "https://example.com")
	require.NoError(t, store.SaveSession(ctx, session))

	// изменения копии не попадают в хранилище
	session.Data["url"] = "changed"
	loaded, err := store.LoadSession(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", loaded.Data["url"])

	loaded.Reset()
	require.NoError(t, store.SaveSession(ctx, loaded))
	cleared, err := store.LoadSession(ctx, 5)
	require.NoError(t, err)
	assert.False(t, cleared.Active())
}

func TestLockerExcludesSecondHolder(t *testing.T) {
	ctx := context.Background()
	locker := NewLocker()

	release, ok, err := locker.TryLock(ctx, "price_check_lock:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "price_check_lock:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	_, ok, err = locker.TryLock(ctx, "price_check_lock:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTokenCacheExpires(t *testing.T) {
	ctx := context.Background()
	cache := NewTokenCache()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.SetToken(ctx, "k", "v", time.Minute))
	value, ok, err := cache.GetToken(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", value)
	assert.Equal(t, time.Minute, cache.TTL("k"))

	now = now.Add(time.Minute)
	_, ok, err = cache.GetToken(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueueRequeuesOnNack(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q := NewQueue(4)

	require.NoError(t, q.Enqueue(ctx, domain.PriceCheckJob{ID: "a", ProductID: 1}))
	job, ack, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, ack(false))

	again, ack, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, again.ID)
	require.NoError(t, ack(true))
	assert.Len(t, q.Enqueued(), 1)
}
