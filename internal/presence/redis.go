// ABOUTME: Shared presence registry backed by Redis TTL keys
// ABOUTME: Lets multiple gateway instances agree on who is online via heartbeat-refreshed keys

package presence

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	onlineKeyPrefix   = "presence:online:"
	lastSeenKeyPrefix = "presence:last_seen:"
)

// Redis is a Registry whose online set lives in Redis keys with a TTL.
// A key that stops receiving heartbeats expires on its own, so a crashed
// gateway instance cannot leave its users permanently "online".
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis constructs a shared registry from a redis URL, pinging the
// server before returning.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("presence: parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("presence: redis ping: %w", err)
	}

	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Redis{client: client, ttl: ttl}, nil
}

var _ Registry = (*Redis)(nil)

func (r *Redis) SetOnline(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return r.client.Set(ctx, onlineKeyPrefix+id, now, r.ttl).Err()
}

func (r *Redis) Heartbeat(ctx context.Context, id string) error {
	ok, err := r.client.Expire(ctx, onlineKeyPrefix+id, r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		// Key already expired; re-establish it
		return r.SetOnline(ctx, id)
	}
	return nil
}

func (r *Redis) SetOffline(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, onlineKeyPrefix+id)
	pipe.Set(ctx, lastSeenKeyPrefix+id, now, 0)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) IsOnline(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, onlineKeyPrefix+id).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) ListOnline(ctx context.Context) ([]string, error) {
	var out []string
	iter := r.client.Scan(ctx, 0, onlineKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), onlineKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Redis) LastSeen(ctx context.Context, id string) (time.Time, bool, error) {
	val, err := r.client.Get(ctx, lastSeenKeyPrefix+id).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("presence: parse last seen: %w", err)
	}
	return t, true, nil
}

// Close releases the redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
