package atlas

import (
	"encoding/json"
	"fmt"
	"time"

	"probewatch/internal/core/domain"
)

const unreachableMarker = "*"

// resultMessage is one measurement result as returned by the REST API and
// carried by atlas_result stream frames.
type resultMessage struct {
	ProbeID         int             `json:"prb_id"`
	MeasurementID   int             `json:"msm_id"`
	Type            string          `json:"type"`
	Timestamp       int64           `json:"timestamp"`
	StoredTimestamp *int64          `json:"stored_timestamp,omitempty"`
	DstAddr         string          `json:"dst_addr"`
	Result          []resultElement `json:"result"`
}

// resultElement is a traceroute hop ({hop, result}) or, for ping, a single
// reply ({rtt} or {x}).
type resultElement struct {
	Hop    *int             `json:"hop,omitempty"`
	Result []attemptMessage `json:"result,omitempty"`
	attemptMessage
}

type attemptMessage struct {
	From string   `json:"from,omitempty"`
	RTT  *float64 `json:"rtt,omitempty"`
	X    string   `json:"x,omitempty"`
}

func (a attemptMessage) toAttempt() domain.Attempt {
	return domain.Attempt{
		RTT:         a.RTT,
		FromAddress: a.From,
		Unreachable: a.X == unreachableMarker,
	}
}

func decodeResult(raw json.RawMessage) (resultMessage, error) {
	var msg resultMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return resultMessage{}, fmt.Errorf("failed to decode result: %w", err)
	}
	return msg, nil
}

// toSnapshot converts a wire result. The stored timestamp identifies the
// result when present; interval may be zero when unknown.
func (m resultMessage) toSnapshot(interval time.Duration) *domain.MeasurementSnapshot {
	measuredAt := unixTime(m.Timestamp)
	identity := measuredAt
	if m.StoredTimestamp != nil {
		identity = unixTime(*m.StoredTimestamp)
	}

	snap := &domain.MeasurementSnapshot{
		ProbeID:       domain.ProbeID(m.ProbeID),
		MeasurementID: domain.MeasurementID(m.MeasurementID),
		Timestamp:     identity,
		MeasuredAt:    measuredAt,
		DstAddr:       m.DstAddr,
		Interval:      interval,
	}

	var ping *domain.Hop
	for _, el := range m.Result {
		if el.Hop != nil {
			hop := domain.Hop{Index: *el.Hop, Attempts: make([]domain.Attempt, 0, len(el.Result))}
			for _, a := range el.Result {
				hop.Attempts = append(hop.Attempts, a.toAttempt())
			}
			snap.Hops = append(snap.Hops, hop)
			continue
		}
		if ping == nil {
			ping = &domain.Hop{Index: 1}
		}
		ping.Attempts = append(ping.Attempts, el.attemptMessage.toAttempt())
	}
	if ping != nil && len(snap.Hops) == 0 {
		snap.Hops = []domain.Hop{*ping}
	}
	return snap
}

// unixTime maps a missing (zero) wire timestamp to the zero time so validation rejects it.
func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
