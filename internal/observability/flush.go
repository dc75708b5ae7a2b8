package observability

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// FlushTelemetry drains buffered telemetry at shutdown. The prometheus
// registry is pull-based and needs no flush; zap's buffer is the only
// thing that can lose the final fetch and merge records, so sync it.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	if err := logger.Sync(); err != nil {
		return fmt.Errorf("flush logs: %w", err)
	}
	return nil
}
