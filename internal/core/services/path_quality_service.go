package services

import (
	"fmt"
	"time"

	"probewatch/internal/core/domain"
)

// Clock allows deterministic staleness checks in tests.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// ComparatorConfig holds the tolerances of the path comparison rules.
type ComparatorConfig struct {
	// DefaultInterval is used when a snapshot does not carry its measurement interval.
	DefaultInterval time.Duration
	// StaleTolerance is added to the interval before a repeated result stops being stale.
	StaleTolerance time.Duration
	// RTTTolerance is the accepted median deviation in milliseconds. The sign is applied
	// literally: a negative value makes every comparison report a change.
	RTTTolerance float64
}

func DefaultComparatorConfig() ComparatorConfig {
	return ComparatorConfig{
		DefaultInterval: 15 * time.Minute,
		StaleTolerance:  10 * time.Second,
		RTTTolerance:    10,
	}
}

// SnapshotKey identifies the retained history slot.
type SnapshotKey struct {
	MeasurementID domain.MeasurementID
	ProbeID       domain.ProbeID
}

// PathQualityComparator diffs consecutive snapshots of the same probe.
// It is not safe for concurrent use; each engine shard owns one.
type PathQualityComparator struct {
	cfg      ComparatorConfig
	clock    Clock
	previous map[SnapshotKey]*domain.MeasurementSnapshot
}

func NewPathQualityComparator(cfg ComparatorConfig, clock Clock) *PathQualityComparator {
	if clock == nil {
		clock = RealClock{}
	}
	return &PathQualityComparator{
		cfg:      cfg,
		clock:    clock,
		previous: make(map[SnapshotKey]*domain.MeasurementSnapshot),
	}
}

// HandleSnapshot compares snap with the retained snapshot of the same probe and
// returns the change alerts.
func (c *PathQualityComparator) HandleSnapshot(snap *domain.MeasurementSnapshot) domain.Outcome {
	var out domain.Outcome

	if err := validateSnapshot(snap); err != nil {
		fields := map[string]interface{}{"error": err.Error()}
		if snap != nil {
			fields["probe_id"] = int(snap.ProbeID)
		}
		out.Diagnose(domain.DiagMalformedInput, domain.LevelWarn, "dropping measurement snapshot", fields)
		return out
	}

	key := SnapshotKey{MeasurementID: snap.MeasurementID, ProbeID: snap.ProbeID}
	old, ok := c.previous[key]
	if !ok {
		c.previous[key] = snap
		out.Diagnose(domain.DiagFirstObservation, domain.LevelDebug, "first snapshot for probe",
			map[string]interface{}{"probe_id": int(snap.ProbeID), "msm_id": int(snap.MeasurementID)})
		return out
	}

	if snap.Timestamp.Before(old.Timestamp) {
		out.Diagnose(domain.DiagOutOfOrder, domain.LevelWarn, "snapshot older than retained one",
			map[string]interface{}{
				"probe_id":      int(snap.ProbeID),
				"timestamp":     snap.Timestamp.Unix(),
				"retained_time": old.Timestamp.Unix(),
			})
		return out
	}

	if c.isStale(old, snap) {
		out.Diagnose(domain.DiagStaleData, domain.LevelDebug, "measurement not fresh yet",
			map[string]interface{}{
				"probe_id":       int(snap.ProbeID),
				"timestamp":      snap.Timestamp.Unix(),
				"fresh_deadline": old.Timestamp.Add(c.interval(old, snap) + c.cfg.StaleTolerance).Unix(),
			})
		return out
	}

	c.compare(&out, old, snap)
	c.previous[key] = snap
	return out
}

func (c *PathQualityComparator) interval(old, snap *domain.MeasurementSnapshot) time.Duration {
	if snap.Interval > 0 {
		return snap.Interval
	}
	if old.Interval > 0 {
		return old.Interval
	}
	return c.cfg.DefaultInterval
}

// isStale reports a repeat of the same stored result before the next one is due.
func (c *PathQualityComparator) isStale(old, snap *domain.MeasurementSnapshot) bool {
	if !snap.Timestamp.Equal(old.Timestamp) {
		return false
	}
	elapsed := c.clock.Now().Sub(old.Timestamp)
	return elapsed < c.interval(old, snap)+c.cfg.StaleTolerance
}

func (c *PathQualityComparator) compare(out *domain.Outcome, old, snap *domain.MeasurementSnapshot) {
	if len(old.Hops) != len(snap.Hops) {
		out.AddAlert(c.alert(domain.AlertHopsNumberChanged, snap, map[string]interface{}{
			"old_hops_number": len(old.Hops),
			"new_hops_number": len(snap.Hops),
		}))
	}

	oldUnreachable := old.HostUnreachable()
	newUnreachable := snap.HostUnreachable()
	if oldUnreachable || newUnreachable {
		if newUnreachable && !oldUnreachable {
			out.AddAlert(c.alert(domain.AlertHostPartiallyUnreachable, snap, nil))
		}
		if oldUnreachable && !newUnreachable {
			out.AddAlert(c.alert(domain.AlertHostPartiallyReachable, snap, nil))
		}
		return
	}

	c.compareRTTMedian(out, old, snap)
	c.checkFromFields(out, snap)
}

func (c *PathQualityComparator) compareRTTMedian(out *domain.Outcome, old, snap *domain.MeasurementSnapshot) {
	newMedian, newOK := snap.RTTMedian()
	oldMedian, oldOK := old.RTTMedian()
	if !newOK || !oldOK {
		out.Diagnose(domain.DiagMalformedInput, domain.LevelDebug, "no RTT values to compare",
			map[string]interface{}{"probe_id": int(snap.ProbeID)})
		return
	}

	tol := c.cfg.RTTTolerance
	if oldMedian-tol <= newMedian && newMedian <= oldMedian+tol {
		return
	}
	out.AddAlert(c.alert(domain.AlertRttMedianChanged, snap, map[string]interface{}{
		"old_rtt_median": oldMedian,
		"new_rtt_median": newMedian,
	}))
}

func (c *PathQualityComparator) checkFromFields(out *domain.Outcome, snap *domain.MeasurementSnapshot) {
	froms := snap.FromAddresses()
	if len(froms) > 1 {
		out.AddAlert(c.alert(domain.AlertFromFieldDifferentInAttempts, snap, map[string]interface{}{
			"hops_froms": froms,
		}))
	}

	unexpected := make([]string, 0, len(froms))
	for _, addr := range froms {
		if addr != snap.DstAddr {
			unexpected = append(unexpected, addr)
		}
	}
	if len(unexpected) > 0 {
		out.AddAlert(c.alert(domain.AlertFromFieldDifferentThanGeneral, snap, map[string]interface{}{
			"expected_from_field": snap.DstAddr,
			"found_from_fields":   froms,
		}))
	}
}

func (c *PathQualityComparator) alert(kind domain.AlertKind, snap *domain.MeasurementSnapshot, fields map[string]interface{}) domain.Alert {
	payload := map[string]interface{}{
		"probe_id":  int(snap.ProbeID),
		"msm_id":    int(snap.MeasurementID),
		"timestamp": snap.Timestamp.Unix(),
	}
	for k, v := range fields {
		payload[k] = v
	}
	return domain.Alert{
		Kind:           kind,
		Payload:        payload,
		CorrelationKey: fmt.Sprintf("%s-%d-%d-%d", kind, snap.ProbeID, snap.MeasurementID, snap.Timestamp.Unix()),
		OccurredAt:     c.clock.Now(),
	}
}

// Previous returns the retained snapshot for a probe of a measurement.
func (c *PathQualityComparator) Previous(msm domain.MeasurementID, probe domain.ProbeID) (*domain.MeasurementSnapshot, bool) {
	s, ok := c.previous[SnapshotKey{MeasurementID: msm, ProbeID: probe}]
	return s, ok
}

// Len returns the number of retained snapshots.
func (c *PathQualityComparator) Len() int {
	return len(c.previous)
}
