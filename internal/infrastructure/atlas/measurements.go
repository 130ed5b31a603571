package atlas

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"probewatch/internal/core/domain"
	apperrors "probewatch/pkg/errors"
)

type measurementResponse struct {
	ID       int    `json:"id"`
	Interval int    `json:"interval"`
	Type     string `json:"type"`
	Status   struct {
		Name string `json:"name"`
	} `json:"status"`
}

// MeasurementInterval returns the measurement interval, cached per measurement.
// One-off measurements report an interval of zero.
func (c *Client) MeasurementInterval(ctx context.Context, msm domain.MeasurementID) (time.Duration, error) {
	return c.intervals.GetOrLoad(ctx, strconv.Itoa(int(msm)), func(ctx context.Context) (time.Duration, error) {
		var resp measurementResponse
		if err := c.getJSON(ctx, fmt.Sprintf("/api/v2/measurements/%d/", msm), nil, &resp); err != nil {
			return 0, mapNotFound(err, domain.ErrMeasurementNotFound, "failed to fetch measurement %d", msm)
		}
		interval := time.Duration(resp.Interval) * time.Second
		c.logger.Infow("measurement metadata loaded",
			"msm_id", msm,
			"type", resp.Type,
			"status", resp.Status.Name,
			"interval", interval,
		)
		return interval, nil
	})
}

// LatestResults returns the latest result of every probe of a measurement,
// optionally restricted to probes. Snapshots carry the measurement interval.
func (c *Client) LatestResults(ctx context.Context, msm domain.MeasurementID, probes []domain.ProbeID) ([]*domain.MeasurementSnapshot, error) {
	interval, err := c.MeasurementInterval(ctx, msm)
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	path := fmt.Sprintf("/api/v2/measurements/%d/latest/", msm)
	if err := c.getJSON(ctx, path, probeQuery(probes), &raw); err != nil {
		return nil, mapNotFound(err, domain.ErrMeasurementNotFound, "failed to fetch latest results of %d", msm)
	}
	return c.decodeResults(raw, msm, interval), nil
}

// LastResult returns the most recent stored result of a measurement for one probe.
func (c *Client) LastResult(ctx context.Context, msm domain.MeasurementID, probe domain.ProbeID) (*domain.MeasurementSnapshot, error) {
	interval, err := c.MeasurementInterval(ctx, msm)
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	path := fmt.Sprintf("/api/v2/measurements/%d/results/", msm)
	if err := c.getJSON(ctx, path, probeQuery([]domain.ProbeID{probe}), &raw); err != nil {
		return nil, mapNotFound(err, domain.ErrMeasurementNotFound, "failed to fetch results of %d", msm)
	}

	snaps := c.decodeResults(raw, msm, interval)
	if len(snaps) == 0 {
		return nil, fmt.Errorf("%w: no results for probe %d", domain.ErrMeasurementNotFound, probe)
	}
	return snaps[len(snaps)-1], nil
}

func (c *Client) decodeResults(raw []json.RawMessage, msm domain.MeasurementID, interval time.Duration) []*domain.MeasurementSnapshot {
	snaps := make([]*domain.MeasurementSnapshot, 0, len(raw))
	for _, r := range raw {
		msg, err := decodeResult(r)
		if err != nil {
			c.logger.Warnw("skipping undecodable result", "msm_id", msm, "error", err)
			continue
		}
		snaps = append(snaps, msg.toSnapshot(interval))
	}
	return snaps
}

func probeQuery(probes []domain.ProbeID) url.Values {
	if len(probes) == 0 {
		return nil
	}
	ids := make([]string, 0, len(probes))
	for _, p := range probes {
		ids = append(ids, strconv.Itoa(int(p)))
	}
	return url.Values{"probe_ids": []string{strings.Join(ids, ",")}}
}

// mapNotFound turns an upstream 404 into the given domain sentinel.
func mapNotFound(err, sentinel error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if appErr := apperrors.GetAppError(err); appErr != nil && appErr.Code == apperrors.ErrCodeNotFound {
		return fmt.Errorf("%s: %w", msg, sentinel)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
