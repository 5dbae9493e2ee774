package api

import (
	"context"
	"time"

	"github.com/kokistudios/orbctl/internal/filter"
)

// DefaultPollInterval is used when Poll is given a non-positive interval.
const DefaultPollInterval = 10 * time.Second

// FetchFunc loads one snapshot of a list.
type FetchFunc func(ctx context.Context) ([]filter.Item, error)

// Poll emits fetch's result immediately and then every interval. Failed
// fetches are logged and skipped. The channel is closed when ctx is done.
func (c *Client) Poll(ctx context.Context, fetch FetchFunc, interval time.Duration) <-chan []filter.Item {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	out := make(chan []filter.Item)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			items, err := fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn("refresh failed", "err", err)
			} else {
				select {
				case out <- items:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
