package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/padhub/backend/internal/cache"
	"go.uber.org/zap"
)

// RedisFeed publishes events on Redis pub/sub so every server instance sees
// them, and fans them out locally as they come back from Redis.
type RedisFeed struct {
	redis  *cache.RedisClient
	reg    *registry
	logger *zap.Logger
}

func NewRedisFeed(redis *cache.RedisClient, logger *zap.Logger) *RedisFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisFeed{redis: redis, reg: newRegistry(logger), logger: logger}
}

func (f *RedisFeed) Publish(ctx context.Context, evt ChangeEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("gateway: marshal change event: %w", err)
	}
	if err := f.redis.PublishChange(ctx, evt.Table, data); err != nil {
		return fmt.Errorf("gateway: publish %s change: %w", evt.Table, err)
	}
	return nil
}

func (f *RedisFeed) Subscribe(channelKey string, filter TableFilter, onEvent Handler) (func(), error) {
	return f.reg.add(channelKey, filter, onEvent)
}

// Run reads change events from Redis until ctx is cancelled. go-redis
// re-establishes the subscription on its own after connection loss.
func (f *RedisFeed) Run(ctx context.Context) {
	ps := f.redis.SubscribeToChanges(ctx)
	defer ps.Close()

	ch := ps.Channel()
	f.logger.Info("change feed listening")
	for {
		select {
		case <-ctx.Done():
			f.logger.Info("change feed stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var evt ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				f.logger.Warn("dropping malformed change event",
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
				continue
			}
			f.reg.dispatch(evt)
		}
	}
}
