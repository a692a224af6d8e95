package paypal

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTokenKey = "storefront:paypal:access_token"
	tokenSkew       = 60 * time.Second
	minTokenTTL     = 5 * time.Second
)

// FetchFunc obtains a fresh access token and its lifetime.
type FetchFunc func(ctx context.Context) (token string, ttl time.Duration, err error)

// TokenCache keeps the OAuth access token in Redis so every replica shares it,
// with an in-process copy in front. Concurrent misses collapse into one fetch.
type TokenCache struct {
	fetch FetchFunc
	rdb   redis.Cmdable
	key   string
	now   func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewTokenCache builds a cache. rdb may be nil, in which case only the
// in-process copy is used.
func NewTokenCache(fetch FetchFunc, rdb redis.Cmdable, key string) *TokenCache {
	if key == "" {
		key = DefaultTokenKey
	}
	return &TokenCache{fetch: fetch, rdb: rdb, key: key, now: time.Now}
}

func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.lookup(ctx); ok {
		return tok, nil
	}
	v, err, _ := c.group.Do(c.key, func() (any, error) {
		if tok, ok := c.lookup(ctx); ok {
			return tok, nil
		}
		tok, ttl, err := c.fetch(ctx)
		if err != nil {
			return "", err
		}
		ttl -= tokenSkew
		if ttl < minTokenTTL {
			ttl = minTokenTTL
		}
		c.store(ctx, tok, ttl)
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token after the provider refused it.
func (c *TokenCache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.token, c.expires = "", time.Time{}
	c.mu.Unlock()
	if c.rdb != nil {
		_ = c.rdb.Del(ctx, c.key).Err()
	}
}

func (c *TokenCache) lookup(ctx context.Context) (string, bool) {
	c.mu.Lock()
	if c.token != "" && c.now().Before(c.expires) {
		tok := c.token
		c.mu.Unlock()
		return tok, true
	}
	c.mu.Unlock()

	if c.rdb == nil {
		return "", false
	}
	tok, err := c.rdb.Get(ctx, c.key).Result()
	if err != nil || tok == "" {
		// redis.Nil is a plain miss; any other error degrades to a fetch.
		return "", false
	}
	return tok, true
}

func (c *TokenCache) store(ctx context.Context, tok string, ttl time.Duration) {
	c.mu.Lock()
	c.token, c.expires = tok, c.now().Add(ttl)
	c.mu.Unlock()
	if c.rdb != nil {
		_ = c.rdb.Set(ctx, c.key, tok, ttl).Err()
	}
}
