package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"checkout-service/models"

	"github.com/redis/go-redis/v9"
)

// CartStore reads the cart written by the cart service.
type CartStore struct {
	client redis.Cmdable
}

func NewCartStore(client redis.Cmdable) *CartStore {
	return &CartStore{client: client}
}

func cartKey(userID string) string {
	return fmt.Sprintf("cart:user:%s", userID)
}

// Snapshot returns the user's cart as stored now. A missing cart is empty.
func (s *CartStore) Snapshot(ctx context.Context, userID string) (models.CartSnapshot, error) {
	data, err := s.client.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.CartSnapshot{UserID: userID}, nil
	}
	if err != nil {
		return models.CartSnapshot{}, err
	}

	var cart models.CartSnapshot
	if err := json.Unmarshal(data, &cart); err != nil {
		return models.CartSnapshot{}, fmt.Errorf("decode cart: %w", err)
	}
	cart.UserID = userID
	return cart, nil
}

// Clear deletes the user's cart.
func (s *CartStore) Clear(ctx context.Context, userID string) error {
	return s.client.Del(ctx, cartKey(userID)).Err()
}
