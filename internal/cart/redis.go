package cart

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each user's cart in a hash, so carts survive restarts and
// can be shared across instances.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func itemsKey(userID int64) string {
	return fmt.Sprintf("cart:%d:items", userID)
}

func (s *RedisStore) Get(ctx context.Context, userID int64) ([]Item, error) {
	fields, err := s.client.HGetAll(ctx, itemsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get cart items: %w", err)
	}

	items := []Item{}
	for field, raw := range fields {
		medicineID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cart field %q: %w", field, err)
		}
		quantity, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid quantity for medicine %s: %w", field, err)
		}
		if quantity > 0 {
			items = append(items, Item{MedicineID: medicineID, Quantity: quantity})
		}
	}
	return items, nil
}

// deltaScript applies the increment atomically: a decrement below zero is
// rejected, a decrement to exactly zero deletes the field.
const deltaScript = `
	local key = KEYS[1]
	local medicine_id = ARGV[1]
	local delta = tonumber(ARGV[2])

	if delta < 0 then
		local current = tonumber(redis.call('HGET', key, medicine_id) or "0")
		if current + delta < 0 then
			return -2
		end
		if current == -delta then
			redis.call('HDEL', key, medicine_id)
			return 0
		end
	end

	return redis.call('HINCRBY', key, medicine_id, delta)
`

func (s *RedisStore) Add(ctx context.Context, userID, medicineID, delta int64) (int64, error) {
	result, err := s.client.Eval(ctx, deltaScript, []string{itemsKey(userID)},
		strconv.FormatInt(medicineID, 10), delta).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to update cart: %w", err)
	}

	next, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected result type: %T", result)
	}
	if next == -2 {
		return 0, ErrInsufficientQuantity
	}
	return next, nil
}

func (s *RedisStore) Remove(ctx context.Context, userID, medicineID int64) error {
	if err := s.client.HDel(ctx, itemsKey(userID), strconv.FormatInt(medicineID, 10)).Err(); err != nil {
		return fmt.Errorf("failed to delete item from cart: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, itemsKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
