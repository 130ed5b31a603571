package atlas

import (
	"context"
	"errors"
	"time"

	"probewatch/internal/core/domain"
	"probewatch/internal/core/ports"

	"go.uber.org/zap"
)

type PollerConfig struct {
	Interval     time.Duration
	Measurements []domain.MeasurementID
	Probes       []domain.ProbeID
}

// Poller periodically fetches the latest results of measurements and submits
// them as snapshots.
type Poller struct {
	cfg      PollerConfig
	provider ports.MeasurementProvider
	sink     ports.EventSink
	logger   *zap.SugaredLogger

	// last number of probes returned per measurement
	lastCounts map[domain.MeasurementID]int
}

func NewPoller(cfg PollerConfig, provider ports.MeasurementProvider, sink ports.EventSink, logger *zap.SugaredLogger) *Poller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Poller{
		cfg:        cfg,
		provider:   provider,
		sink:       sink,
		logger:     logger,
		lastCounts: make(map[domain.MeasurementID]int),
	}
}

// Run polls immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := p.PollOnce(ctx); err != nil {
			if errors.Is(err, domain.ErrEngineStopped) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce polls every configured measurement once. A failing measurement is
// logged and does not stop the others; the last error is returned.
func (p *Poller) PollOnce(ctx context.Context) error {
	var lastErr error
	for _, msm := range p.cfg.Measurements {
		if err := p.poll(ctx, msm); err != nil {
			if errors.Is(err, domain.ErrEngineStopped) || ctx.Err() != nil {
				return err
			}
			p.logger.Warnw("measurement poll failed", "msm_id", msm, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

func (p *Poller) poll(ctx context.Context, msm domain.MeasurementID) error {
	snaps, err := p.provider.LatestResults(ctx, msm, p.cfg.Probes)
	if err != nil {
		return err
	}

	if prev, ok := p.lastCounts[msm]; ok && prev != len(snaps) {
		p.logger.Warnw("different number of probes compared to previous poll",
			"msm_id", msm,
			"now", len(snaps),
			"previous", prev,
		)
	}
	p.lastCounts[msm] = len(snaps)

	for _, snap := range snaps {
		if err := p.sink.SubmitSnapshot(ctx, snap); err != nil {
			return err
		}
	}
	p.logger.Debugw("measurement polled", "msm_id", msm, "results", len(snaps))
	return nil
}
