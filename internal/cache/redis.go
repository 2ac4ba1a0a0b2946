package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/padhub/backend/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	changeChannelPrefix = "changes:"
	typingTTL           = 10 * time.Second
)

type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client
func NewRedisClient(ctx context.Context, addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Presence

func presenceKey(userID uuid.UUID) string {
	return "presence:user:" + userID.String()
}

// SetUserOnline sets a user as online
func (r *RedisClient) SetUserOnline(ctx context.Context, userID uuid.UUID) error {
	return r.setPresence(ctx, userID, "online", 5*time.Minute)
}

// SetUserOffline sets a user as offline
func (r *RedisClient) SetUserOffline(ctx context.Context, userID uuid.UUID) error {
	return r.setPresence(ctx, userID, "offline", 24*time.Hour)
}

func (r *RedisClient) setPresence(ctx context.Context, userID uuid.UUID, status string, ttl time.Duration) error {
	data, err := json.Marshal(models.UserPresence{
		UserID:   userID,
		Status:   status,
		LastSeen: time.Now(),
	})
	if err != nil {
		return err
	}
	return r.client.Set(ctx, presenceKey(userID), data, ttl).Err()
}

// Typing indicators. Each chat keeps a sorted set scored by expiry time so a
// client that disconnects mid-typing drops out on its own.

func typingKey(chatID uuid.UUID) string {
	return "typing:" + chatID.String()
}

// SetTyping marks userID as typing in chatID
func (r *RedisClient) SetTyping(ctx context.Context, chatID, userID uuid.UUID) error {
	expires := float64(time.Now().Add(typingTTL).UnixMilli())
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, typingKey(chatID), redis.Z{Score: expires, Member: userID.String()})
	pipe.Expire(ctx, typingKey(chatID), time.Minute)
	_, err := pipe.Exec(ctx)
	return err
}

// RemoveTyping removes userID from the typing set of chatID
func (r *RedisClient) RemoveTyping(ctx context.Context, chatID, userID uuid.UUID) error {
	return r.client.ZRem(ctx, typingKey(chatID), userID.String()).Err()
}

// GetTypingUsers returns users whose typing marker has not expired
func (r *RedisClient) GetTypingUsers(ctx context.Context, chatID uuid.UUID) ([]uuid.UUID, error) {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	members, err := r.client.ZRangeByScore(ctx, typingKey(chatID), &redis.ZRangeBy{Min: now, Max: "+inf"}).Result()
	if err != nil {
		return nil, err
	}

	userIDs := make([]uuid.UUID, 0, len(members))
	for _, member := range members {
		userID, err := uuid.Parse(member)
		if err != nil {
			continue
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, nil
}

// Change feed pub/sub. Every table gets its own channel.

// PublishChange publishes a raw change payload for table
func (r *RedisClient) PublishChange(ctx context.Context, table string, payload []byte) error {
	return r.client.Publish(ctx, changeChannelPrefix+table, payload).Err()
}

// SubscribeToChanges subscribes to the change channels of every table
func (r *RedisClient) SubscribeToChanges(ctx context.Context) *redis.PubSub {
	return r.client.PSubscribe(ctx, changeChannelPrefix+"*")
}

// AllowAction implements a Redis-backed token-bucket limiter per key (user+action).
// Returns true if the action is allowed, false if rate-limited.
func (r *RedisClient) AllowAction(ctx context.Context, userID uuid.UUID, action string, rate int, burst int) (bool, error) {
	key := fmt.Sprintf("rl:%s:%s", action, userID.String())
	now := time.Now().UnixMilli()
	res, err := tokenBucket.Run(ctx, r.client, []string{key}, rate, burst, now).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local vals = redis.call('HMGET', key, 'tokens', 'last')
local tokens = tonumber(vals[1])
local last = tonumber(vals[2])
if tokens == nil then tokens = burst end
if last == nil then last = now end
local delta = math.max(0, now - last)
local new_tokens = math.min(burst, tokens + (delta * rate / 1000))
local allowed = 0
if new_tokens >= 1 then
	new_tokens = new_tokens - 1
	allowed = 1
end
redis.call('HSET', key, 'tokens', new_tokens, 'last', now)
redis.call('PEXPIRE', key, 60000)
return allowed
`)
