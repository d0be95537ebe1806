package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	stderrors "errors"

	"github.com/redis/go-redis/v9"
)

var ErrKeyNotFound = stderrors.New("key not found")

// RedisClient defines the interface for Redis operations.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	Close() error
}

// Client is the implementation of RedisClient.
type Client struct {
	client *redis.Client
}

func NewClient(addr, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("failed to connect to Redis", "addr", addr, "error", err)
		return nil, err
	}

	slog.Info("connected to Redis", "addr", addr)
	return &Client{client: client}, nil
}

// Wrap adapts an existing go-redis client, e.g. one pointed at miniredis.
func Wrap(client *redis.Client) *Client {
	return &Client{client: client}
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *Client) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, expiration).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	return c.client.Incr(ctx, key).Result()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.client.Close()
}

// GetJSON decodes a cached JSON value into dest.
func GetJSON(ctx context.Context, c RedisClient, key string, dest interface{}) error {
	val, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), dest)
}

func SetJSON(ctx context.Context, c RedisClient, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, expiration)
}

// Versioned entries carry the generation they were loaded under. Bump moves
// the generation on, so an entry written by a reader that loaded before the
// bump is never served.
type versioned struct {
	Gen  int64           `json:"gen"`
	Data json.RawMessage `json:"data"`
}

func genKey(key string) string {
	return key + ":gen"
}

// Generation returns the current generation of key, zero if never bumped.
func Generation(ctx context.Context, c RedisClient, key string) (int64, error) {
	val, err := c.Get(ctx, genKey(key))
	if stderrors.Is(err, ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

// GetVersionedJSON decodes the entry at key if it was written under the
// current generation, which it returns for a later SetVersionedJSON. A
// missing or stale entry is ErrKeyNotFound.
func GetVersionedJSON(ctx context.Context, c RedisClient, key string, dest interface{}) (int64, error) {
	gen, err := Generation(ctx, c, key)
	if err != nil {
		return 0, err
	}
	val, err := c.Get(ctx, key)
	if err != nil {
		return gen, err
	}
	var e versioned
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return gen, err
	}
	if e.Gen != gen {
		return gen, ErrKeyNotFound
	}
	return gen, json.Unmarshal(e.Data, dest)
}

func SetVersionedJSON(ctx context.Context, c RedisClient, key string, gen int64, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	entry, err := json.Marshal(versioned{Gen: gen, Data: data})
	if err != nil {
		return err
	}
	return c.Set(ctx, key, entry, expiration)
}

// Bump invalidates versioned entries at keys.
func Bump(ctx context.Context, c RedisClient, keys ...string) error {
	for _, key := range keys {
		if _, err := c.Incr(ctx, genKey(key)); err != nil {
			return err
		}
	}
	return c.Del(ctx, keys...)
}
