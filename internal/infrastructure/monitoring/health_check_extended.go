package monitoring

import (
	"context"
	"errors"
	"time"
)

var (
	errStreamDown     = errors.New("result stream not connected")
	errInventoryEmpty = errors.New("inventory not seeded")
)

// AddPingCheck adds a dependency check such as a Redis PING.
func (h *HealthChecker) AddPingCheck(name string, ping func(ctx context.Context) error, interval, timeout time.Duration) {
	h.AddCheck(name, func(ctx context.Context) (bool, error) {
		if err := ping(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddStreamCheck fails while the result stream session is down.
func (h *HealthChecker) AddStreamCheck(connected func() bool, interval time.Duration) {
	h.AddCheck("stream", func(context.Context) (bool, error) {
		if !connected() {
			return false, errStreamDown
		}
		return true, nil
	}, interval, 0)
}

// AddInventoryCheck fails until the tracker has been seeded.
func (h *HealthChecker) AddInventoryCheck(seeded func() bool, interval time.Duration) {
	h.AddCheck("inventory", func(context.Context) (bool, error) {
		if !seeded() {
			return false, errInventoryEmpty
		}
		return true, nil
	}, interval, 0)
}

// GetReadinessStatus returns readiness status for load balancer
func (h *HealthChecker) GetReadinessStatus(ctx context.Context) HealthStatus {
	return h.CheckAll(ctx)
}

// IsReady checks if the service is ready to accept traffic
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	status := h.CheckAll(ctx)
	return status.Status == StatusHealthy
}
