package distributed

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Locker is the lease RunExclusive competes for.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
	Lost() <-chan struct{}
}

// RunExclusive runs fn only while lock is held, retrying acquisition every
// retry. fn's context is cancelled when the lease is lost. It returns when ctx
// is done, or with fn's error if fn fails while holding the lock.
func RunExclusive(ctx context.Context, lock Locker, retry time.Duration, logger *zap.SugaredLogger, fn func(context.Context) error) error {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ticker := time.NewTicker(retry)
	defer ticker.Stop()

	for {
		acquired, err := lock.TryLock(ctx)
		if err != nil {
			logger.Warnw("failed to acquire leader lock", "error", err)
		}

		if acquired {
			logger.Infow("acquired leader lock")
			err := runHeld(ctx, lock, fn)

			unlockCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			if uerr := lock.Unlock(unlockCtx); uerr != nil {
				logger.Debugw("leader lock release", "error", uerr)
			}
			cancel()

			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				return err
			}
			logger.Warnw("lost leader lock")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func runHeld(ctx context.Context, lock Locker, fn func(context.Context) error) error {
	heldCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-lock.Lost():
			cancel()
		case <-heldCtx.Done():
		}
	}()

	err := fn(heldCtx)
	if heldCtx.Err() != nil {
		// Cancelled by ctx or by losing the lease.
		return nil
	}
	return err
}
