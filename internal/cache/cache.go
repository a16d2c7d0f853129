package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"github.com/reelfetch/backend/internal/logger"
)

type Cache struct {
	client *redis.Client
	prefix string
	log    *logger.Logger
}

// New connects to the Redis server at url (redis://[user:pass@]host:port/db)
// and verifies the connection.
func New(ctx context.Context, url string, log *logger.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	if log == nil {
		log = logger.Default()
	}
	log = log.WithComponent("cache")
	log.Info(ctx, "connected to redis", map[string]interface{}{"addr": opts.Addr, "db": opts.DB})
	return &Cache{client: client, prefix: "reelfetch:", log: log}, nil
}

// Client exposes the underlying connection so other stores can share it.
func (c *Cache) Client() *redis.Client {
	return c.client
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Key derives a fixed-length key from its parts. URLs can be long and carry
// arbitrary bytes, so they are hashed rather than embedded.
func (c *Cache) Key(namespace string, parts ...string) string {
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\x00")))
	return c.prefix + namespace + ":" + hex.EncodeToString(sum[:16])
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		c.log.Debug(ctx, "cache miss", map[string]interface{}{"key": key})
		return "", false
	}
	if err != nil {
		c.log.Warn(ctx, "cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
		return "", false
	}
	c.log.Debug(ctx, "cache hit", map[string]interface{}{"key": key})
	return val, true
}

func (c *Cache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.log.Warn(ctx, "cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
		return err
	}
	c.log.Debug(ctx, "cache set", map[string]interface{}{"key": key, "ttl": ttl.String()})
	return nil
}

// GetJSON decodes the cached value at key into dst. A miss or an
// undecodable value reports false.
func (c *Cache) GetJSON(ctx context.Context, key string, dst interface{}) bool {
	val, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(val), dst); err != nil {
		c.log.Warn(ctx, "discarding undecodable cache entry", map[string]interface{}{"key": key, "error": err.Error()})
		c.client.Del(ctx, key)
		return false
	}
	return true
}

func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	return c.Set(ctx, key, string(data), ttl)
}
