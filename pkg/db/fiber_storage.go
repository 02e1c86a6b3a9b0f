package db

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const storageTimeout = time.Second

// FiberStorage — fiber.Storage поверх Redis, чтобы CSRF-токены были общими для всех реплик.
// Ключи хранятся с префиксом, Reset удаляет только их.
type FiberStorage struct {
	client redis.UniversalClient
	prefix string
}

func NewFiberStorage(client redis.UniversalClient, prefix string) *FiberStorage {
	return &FiberStorage{client: client, prefix: prefix}
}

func (s *FiberStorage) Get(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// fiber ждёт nil, nil для отсутствующего ключа
		return nil, nil
	}
	return val, err
}

func (s *FiberStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	return s.client.Set(ctx, s.prefix+key, val, exp).Err()
}

func (s *FiberStorage) Delete(key string) error {
	if key == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	return s.client.Del(ctx, s.prefix+key).Err()
}

func (s *FiberStorage) Reset() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*storageTimeout)
	defer cancel()

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close — клиент закрывает владелец (App)
func (s *FiberStorage) Close() error {
	return nil
}
