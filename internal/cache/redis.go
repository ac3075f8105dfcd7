package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Cache keeps hot per-user counters in Redis: unread counts per
// conversation and presence flags. Everything here is advisory; on a cache
// error callers fall back to recomputing from the store.
type Cache struct {
	cli *redis.Client
}

func New(cli *redis.Client) *Cache {
	return &Cache{cli: cli}
}

func (c *Cache) Close() error {
	return c.cli.Close()
}

func unreadKey(conversationID, userID string) string {
	return "unread:" + conversationID + ":" + userID
}

func (c *Cache) IncrUnread(ctx context.Context, conversationID, userID string) error {
	return c.cli.Incr(ctx, unreadKey(conversationID, userID)).Err()
}

func (c *Cache) ResetUnread(ctx context.Context, conversationID, userID string) error {
	return c.cli.Del(ctx, unreadKey(conversationID, userID)).Err()
}

func (c *Cache) GetUnread(ctx context.Context, conversationID, userID string) (int64, error) {
	n, err := c.cli.Get(ctx, unreadKey(conversationID, userID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (c *Cache) SetPresence(ctx context.Context, userID string, online bool) error {
	val := "0"
	if online {
		val = "1"
	}
	return c.cli.Set(ctx, "presence:"+userID, val, 0).Err()
}

func (c *Cache) GetPresence(ctx context.Context, userID string) (bool, error) {
	s, err := c.cli.Get(ctx, "presence:"+userID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s == "1", nil
}
