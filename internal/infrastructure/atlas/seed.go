package atlas

import (
	"context"
	"time"

	"probewatch/internal/core/domain"
	"probewatch/internal/core/ports"
	"probewatch/pkg/retry"

	"go.uber.org/zap"
)

// InventorySeeder applies an inventory to the tracker.
type InventorySeeder interface {
	Seed(ctx context.Context, records []domain.InventoryRecord) error
}

// SeedInventory fetches the inventory and seeds target, retrying with
// exponential backoff until it succeeds or ctx is done.
func SeedInventory(ctx context.Context, provider ports.InventoryProvider, target InventorySeeder, initial, max time.Duration, logger *zap.SugaredLogger) error {
	backoff := retry.Forever(initial, max)
	backoff.NonRetryableErrors = []error{domain.ErrEngineStopped}

	attempt := 0
	return retry.Retry(ctx, backoff, func() error {
		attempt++
		records, err := provider.FetchInventory(ctx)
		if err == nil {
			err = target.Seed(ctx, records)
		}
		if err != nil {
			logger.Warnw("inventory seeding failed, running cold", "attempt", attempt, "error", err)
		}
		return err
	})
}
