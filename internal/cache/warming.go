package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Refresher is implemented by the service layer to refresh the snapshot for one key.
// Used by Warmer to avoid a circular dependency on the service package.
type Refresher interface {
	Refresh(ctx context.Context, key string) error
}

// Warmer refreshes the snapshots of a fixed set of keys concurrently.
type Warmer struct {
	name      string
	refresher Refresher
	logger    *zap.Logger
}

// NewWarmer creates a Warmer. name labels log lines (e.g. "weather").
func NewWarmer(name string, refresher Refresher, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{name: name, refresher: refresher, logger: logger}
}

// Warm refreshes every key concurrently. Returns the joined errors of failed keys.
func (w *Warmer) Warm(ctx context.Context, keys []string) error {
	start := time.Now()
	var wg sync.WaitGroup
	errCh := make(chan error, len(keys))
	for _, key := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.refresher.Refresh(ctx, key); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", key, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	w.logger.Debug("snapshot warm complete",
		zap.String("feed", w.name),
		zap.Int("keys", len(keys)),
		zap.Int("errors", len(errs)),
		zap.Duration("duration", time.Since(start)),
	)
	return errors.Join(errs...)
}

// WarmFunc adapts Warm for a poller: it warms keys and reports the joined error.
func (w *Warmer) WarmFunc(keys []string) func(context.Context) error {
	return func(ctx context.Context) error {
		return w.Warm(ctx, keys)
	}
}
