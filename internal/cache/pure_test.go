package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRateLimitKey_Deterministic(t *testing.T) {
	t.Parallel()

	if rateLimitKey("key_0123456789ab") != rateLimitKey("key_0123456789ab") {
		t.Error("Same credential should produce same key")
	}
}

func TestRateLimitKey_Shape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   string
	}{
		{"static credential", "key_0123456789ab"},
		{"hashed credential", "hkey_0123456789ab"},
		{"empty", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			key := rateLimitKey(tt.id)
			if !strings.HasPrefix(key, rateLimitCredentialPrefix) {
				t.Errorf("rateLimitKey(%q) = %q, want prefix %q", tt.id, key, rateLimitCredentialPrefix)
			}
			// 8 bytes of SHA256 encoded as 16 hex chars
			if got := len(key) - len(rateLimitCredentialPrefix); got != 16 {
				t.Errorf("rateLimitKey(%q) hash length = %d, want 16", tt.id, got)
			}
			if tt.id != "" && strings.Contains(key, tt.id) {
				t.Errorf("rateLimitKey(%q) leaks the credential ID", tt.id)
			}
		})
	}
}

func TestRateLimitKey_Different(t *testing.T) {
	t.Parallel()

	if rateLimitKey("key_aaaaaaaaaaaa") == rateLimitKey("key_aaaaaaaaaaab") {
		t.Error("Different credentials should produce different keys")
	}
}

func TestCheckCredentialRateLimit_DisabledSkipsRedis(t *testing.T) {
	t.Parallel()

	// A nil client would panic if the script ran.
	c := &Cache{}
	res, err := c.CheckCredentialRateLimit(context.Background(), "key_0123456789ab", 0, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed {
		t.Error("Disabled limiter should allow")
	}
	if res.Remaining != 5 {
		t.Errorf("Remaining = %d, want 5", res.Remaining)
	}
}

func TestCheckCredentialRateLimit_ReturnsRedisError(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	c := &Cache{client: client}
	res, err := c.CheckCredentialRateLimit(context.Background(), "key_0123456789ab", 60, 5)
	if err == nil {
		t.Fatal("expected an error from an unreachable Redis")
	}
	if res != nil {
		t.Errorf("expected no result on error, got %+v", res)
	}
}
