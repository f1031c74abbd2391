package redisclient

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// New creates a Redis client.
func New(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Ping verifies the connection.
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// Close closes the client, tolerating nil.
func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
