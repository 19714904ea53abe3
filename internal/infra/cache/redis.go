package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"price-tracker-bot/internal/domain"
	"price-tracker-bot/internal/infra/metrics"
)

const (
	tokenPrefix   = "token:"
	sessionPrefix = "chat_session:"
)

// releaseScript удаляет ключ блокировки, только если он всё ещё наш.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCache хранит токены внешних API, блокировки проверок и состояние диалогов.
// Создаётся один раз при старте процесса и безопасен для конкурентного использования.
type RedisCache struct {
	client     *redis.Client
	sessionTTL time.Duration
}

var (
	_ domain.TokenCache       = (*RedisCache)(nil)
	_ domain.Locker           = (*RedisCache)(nil)
	_ domain.ChatSessionStore = (*RedisCache)(nil)
)

// Connect создаёт клиент Redis и проверяет соединение.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// NewRedis создаёт кэш. Диалоги без активности живут sessionTTL.
func NewRedis(client *redis.Client, sessionTTL time.Duration) *RedisCache {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &RedisCache{client: client, sessionTTL: sessionTTL}
}

// GetToken реализует domain.TokenCache.
func (c *RedisCache) GetToken(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	value, err := c.client.Get(ctx, tokenPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveNetworkRequest("redis", "get_token", key, start, nil)
		return "", false, nil
	}
	metrics.ObserveNetworkRequest("redis", "get_token", key, start, err)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetToken реализует domain.TokenCache. Значение записывается целиком одной командой.
func (c *RedisCache) SetToken(ctx context.Context, key, value string, ttl time.Duration) error {
	start := time.Now()
	err := c.client.Set(ctx, tokenPrefix+key, value, ttl).Err()
	metrics.ObserveNetworkRequest("redis", "set_token", key, start, err)
	return err
}

// TryLock реализует domain.Locker через SET NX с уникальным значением владельца.
func (c *RedisCache) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	owner, err := randomOwner()
	if err != nil {
		return nil, false, err
	}
	start := time.Now()
	ok, err := c.client.SetNX(ctx, key, owner, ttl).Result()
	metrics.ObserveNetworkRequest("redis", "lock", "price_check_lock", start, err)
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, c.client, []string{key}, owner).Err()
	}
	return release, true, nil
}

// LoadSession реализует domain.ChatSessionStore. Отсутствующая сессия возвращается пустой.
func (c *RedisCache) LoadSession(ctx context.Context, userID int64) (domain.ChatSession, error) {
	empty := domain.ChatSession{UserID: userID, State: domain.ChatStateNone}
	data, err := c.client.Get(ctx, sessionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return empty, nil
	}
	if err != nil {
		return empty, err
	}
	var session domain.ChatSession
	if err := json.Unmarshal(data, &session); err != nil {
		return empty, fmt.Errorf("decode session: %w", err)
	}
	session.UserID = userID
	return session, nil
}

// SaveSession реализует domain.ChatSessionStore.
func (c *RedisCache) SaveSession(ctx context.Context, session domain.ChatSession) error {
	if !session.Active() {
		return c.ClearSession(ctx, session.UserID)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return c.client.Set(ctx, sessionKey(session.UserID), data, c.sessionTTL).Err()
}

// ClearSession реализует domain.ChatSessionStore.
func (c *RedisCache) ClearSession(ctx context.Context, userID int64) error {
	return c.client.Del(ctx, sessionKey(userID)).Err()
}

func sessionKey(userID int64) string {
	return sessionPrefix + strconv.FormatInt(userID, 10)
}

func randomOwner() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

