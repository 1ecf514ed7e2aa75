// Package cache holds the Redis-backed upload de-duplication guard.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const uploadKeyPrefix = "upload:"

// UploadGuard remembers (owner, file digest) pairs for a short TTL so a
// double-submitted spreadsheet is ingested once.
type UploadGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewUploadGuard(client *redis.Client, ttl time.Duration) *UploadGuard {
	return &UploadGuard{client: client, ttl: ttl}
}

func uploadKey(ownerID int64, digest string) string {
	return fmt.Sprintf("%s%d:%s", uploadKeyPrefix, ownerID, digest)
}

// Claim returns false if the same owner uploaded the same digest within the TTL.
func (g *UploadGuard) Claim(ctx context.Context, ownerID int64, digest string) (bool, error) {
	ok, err := g.client.SetNX(ctx, uploadKey(ownerID, digest), 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim upload: %w", err)
	}
	return ok, nil
}

// Release forgets a claim so a failed ingestion can be retried at once.
func (g *UploadGuard) Release(ctx context.Context, ownerID int64, digest string) error {
	if err := g.client.Del(ctx, uploadKey(ownerID, digest)).Err(); err != nil {
		return fmt.Errorf("release upload: %w", err)
	}
	return nil
}

// NewClient connects to Redis and checks the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
