package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// credentialCachePrefix namespaces verified token digests.
const credentialCachePrefix = "auth:verified:"

// GetCredentialID returns the credential a token digest previously verified against.
// A miss returns "" and no error.
func (c *Cache) GetCredentialID(ctx context.Context, tokenHash string) (string, error) {
	id, err := c.client.Get(ctx, credentialCachePrefix+tokenHash).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get verified credential: %w", err)
	}
	return id, nil
}

// SetCredentialID records a successful verification for ttl.
func (c *Cache) SetCredentialID(ctx context.Context, tokenHash, credentialID string, ttl time.Duration) error {
	if err := c.client.Set(ctx, credentialCachePrefix+tokenHash, credentialID, ttl).Err(); err != nil {
		return fmt.Errorf("set verified credential: %w", err)
	}
	return nil
}
