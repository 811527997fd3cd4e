// Package redisstore implementa el almacén clave-valor del marcador de
// recuperación sobre Redis. El TTL nativo hace que los marcadores abandonados
// expiren solos sin barrido propio.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jhoicas/Caja-clinica-api/internal/application/cashier"
)

// RecoveryStore implementa cashier.RecoveryStore sobre un cliente Redis.
type RecoveryStore struct {
	client *redis.Client
}

var _ cashier.RecoveryStore = (*RecoveryStore)(nil)

// NewRecoveryStore construye el almacén.
func NewRecoveryStore(client *redis.Client) *RecoveryStore {
	return &RecoveryStore{client: client}
}

// Get devuelve "" sin error si la clave no existe.
func (s *RecoveryStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis: leer %s: %w", key, err)
	}
	return val, nil
}

// Set guarda el valor con expiración.
func (s *RecoveryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: escribir %s: %w", key, err)
	}
	return nil
}

// Delete borra la clave. Idempotente: borrar una clave inexistente no es error.
func (s *RecoveryStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: borrar %s: %w", key, err)
	}
	return nil
}
