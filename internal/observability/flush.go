package observability

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Closer is a resource released during graceful shutdown, such as the Kafka alert
// writer, the memcached client or the SQLite flag store.
type Closer struct {
	Name  string
	Close func() error
}

// FlushTelemetry runs after in-flight requests have drained and the pollers have
// stopped. It closes each resource in order, logging failures, and syncs the logger
// last so those failures reach the output. Prometheus is pull-based and needs no flush.
// Once ctx is done the remaining resources are skipped.
func FlushTelemetry(ctx context.Context, logger *zap.Logger, closers ...Closer) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	var errs []error
	for _, c := range closers {
		if err := ctx.Err(); err != nil {
			logger.Warn("shutdown deadline reached, skipping close", zap.String("resource", c.Name))
			errs = append(errs, fmt.Errorf("close %s: %w", c.Name, err))
			continue
		}
		if err := c.Close(); err != nil {
			logger.Error("close failed", zap.String("resource", c.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.Name, err))
		}
	}
	if err := logger.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("flush logs: %w", err))
	}
	return errors.Join(errs...)
}
