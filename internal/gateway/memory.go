package gateway

import (
	"context"

	"go.uber.org/zap"
)

// MemoryFeed delivers events in-process, synchronously, on the publishing
// goroutine. It backs single-instance deployments without Redis and tests.
type MemoryFeed struct {
	reg *registry
}

func NewMemoryFeed(logger *zap.Logger) *MemoryFeed {
	return &MemoryFeed{reg: newRegistry(logger)}
}

func (f *MemoryFeed) Publish(ctx context.Context, evt ChangeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.reg.dispatch(evt)
	return nil
}

func (f *MemoryFeed) Subscribe(channelKey string, filter TableFilter, onEvent Handler) (func(), error) {
	return f.reg.add(channelKey, filter, onEvent)
}

// Subscribers returns the number of live subscriptions.
func (f *MemoryFeed) Subscribers() int {
	return f.reg.len()
}
