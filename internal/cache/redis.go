// Package cache реализует атомарный счётчик использования на Redis.
//
// Счётчик ведётся по ключу (пользователь, окно "YYYY-MM") и закрывает гонку
// «прочитал-проверил-записал»: допуск запроса и инкремент выполняются одной
// операцией INCR, поэтому два конкурентных запроса не могут пройти по одному
// и тому же остатку лимита.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gigwise/entitlement-service/internal/config"
)

// Ключи живут дольше любого окна: просроченные окна Redis убирает сам,
// фонового сброса счётчиков нет.
const usageKeyTTL = 62 * 24 * time.Hour

// UsageCounter счётчик генераций, разделяемый всеми экземплярами сервиса.
type UsageCounter struct {
	Db *redis.Client
}

// InitServer подключается к Redis и проверяет соединение.
func InitServer(ctx context.Context, cfg config.RedisConnection) (*UsageCounter, error) {
	const op = "cache.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &UsageCounter{Db: db}, nil
}

func usageKey(userID, windowKey string) string {
	return fmt.Sprintf("usage:%s:%s", userID, windowKey)
}

// ReserveSlot атомарно занимает один слот месячного лимита.
//
// Если ключ окна ещё не существует, он засевается значением seed —
// счётчиком из метаданных пользователя, чтобы учёт, накопленный до
// появления ключа (или до отказа Redis), не терялся. Затем INCR резервирует
// слот; при превышении лимита резерв немедленно откатывается DECR:
// занял, проверил, вернул.
//
// Возвращает количество занятых слотов после операции и признак допуска.
func (c *UsageCounter) ReserveSlot(ctx context.Context, userID, windowKey string, seed, limit int) (int, bool, error) {
	const op = "cache.ReserveSlot"
	key := usageKey(userID, windowKey)

	if err := c.Db.SetNX(ctx, key, seed, usageKeyTTL).Err(); err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := c.Db.Incr(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	if n > int64(limit) {
		if err := c.Db.Decr(ctx, key).Err(); err != nil {
			return 0, false, fmt.Errorf("%s: %w", op, err)
		}
		return int(n - 1), false, nil
	}
	return int(n), true, nil
}

// ReleaseSlot возвращает слот, занятый ReserveSlot. Вызывается, когда
// восходящий сервис не дал ответа: неоплаченный вызов не должен списываться.
func (c *UsageCounter) ReleaseSlot(ctx context.Context, userID, windowKey string) error {
	const op = "cache.ReleaseSlot"
	if err := c.Db.Decr(ctx, usageKey(userID, windowKey)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
