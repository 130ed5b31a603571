package services

import (
	"fmt"
	"sort"
	"time"

	"probewatch/internal/core/domain"
)

// TrackerConfig holds the thresholds of the connectivity rules.
type TrackerConfig struct {
	Window            time.Duration // retention of recent disconnects
	MajorityThreshold float64       // percentage line for CrossedBelowHalf
	SignificantChange float64       // percentage delta for drop/recovery
	OfflineThreshold  float64       // percentage line for WentOffline
	BurstCount        int           // recent disconnects for RapidDisconnectBurst
}

func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Window:            30 * time.Minute,
		MajorityThreshold: 50.0,
		SignificantChange: 19.0,
		OfflineThreshold:  1.0,
		BurstCount:        3,
	}
}

// ConnectivityTracker keeps probes and per-network aggregates consistent with the
// probe status stream. It is not safe for concurrent use; the engine owns it.
type ConnectivityTracker struct {
	cfg      TrackerConfig
	probes   map[domain.ProbeID]*domain.Probe
	networks map[domain.NetworkKey]*NetworkState
}

func NewConnectivityTracker(cfg TrackerConfig) *ConnectivityTracker {
	return &ConnectivityTracker{
		cfg:      cfg,
		probes:   make(map[domain.ProbeID]*domain.Probe),
		networks: make(map[domain.NetworkKey]*NetworkState),
	}
}

// networkChange captures one family's percentage around a single transition.
type networkChange struct {
	state  *NetworkState
	curr   float64
	currOK bool
	next   float64
}

// Initialize seeds the tracker from the bulk inventory. Invalid and duplicate
// records are skipped with a diagnostic each; an error is returned only when no
// valid record is left, and then the current state is left untouched. Probes
// already moved by events keep their event-derived status.
func (t *ConnectivityTracker) Initialize(records []domain.InventoryRecord) (domain.Outcome, error) {
	var out domain.Outcome
	if len(records) == 0 {
		return out, domain.ErrEmptyInventory
	}

	probes := make(map[domain.ProbeID]*domain.Probe, len(records))
	for i, r := range records {
		if err := validateInventoryRecord(r); err != nil {
			out.Diagnose(domain.DiagMalformedInput, domain.LevelWarn, "skipping inventory record",
				map[string]interface{}{"record": i, "probe_id": int(r.ProbeID), "error": err.Error()})
			continue
		}
		if _, dup := probes[r.ProbeID]; dup {
			out.Diagnose(domain.DiagMalformedInput, domain.LevelWarn, "skipping duplicate inventory record",
				map[string]interface{}{"record": i, "probe_id": int(r.ProbeID)})
			continue
		}
		status, _ := domain.StatusFromCode(r.StatusCode)
		probes[r.ProbeID] = &domain.Probe{
			ID:          r.ProbeID,
			ASNv4:       r.ASNv4,
			ASNv6:       r.ASNv6,
			Status:      status,
			CountryCode: r.CountryCode,
			IsAnchor:    r.IsAnchor,
			IsPublic:    r.IsPublic,
			Latitude:    r.Latitude,
			Longitude:   r.Longitude,
			PrefixV4:    r.PrefixV4,
			PrefixV6:    r.PrefixV6,
			AddressV4:   r.AddressV4,
			AddressV6:   r.AddressV6,
			StatusSince: r.StatusSince,
		}
	}
	if len(probes) == 0 {
		return out, fmt.Errorf("%w: none of %d records is valid", domain.ErrMalformedInventory, len(records))
	}

	for id, live := range t.probes {
		if live.LastEventAt.IsZero() {
			continue
		}
		seeded, ok := probes[id]
		if !ok {
			probes[id] = live
			continue
		}
		seeded.Status = live.Status
		seeded.LastEventAt = live.LastEventAt
		for _, family := range domain.AddressFamilies {
			if asn := live.ASN(family); asn != 0 {
				seeded.SetASN(family, asn)
			}
		}
	}

	networks := make(map[domain.NetworkKey]*NetworkState)
	for _, p := range probes {
		for _, family := range domain.AddressFamilies {
			asn := p.ASN(family)
			if asn == 0 {
				continue
			}
			key := domain.NetworkKey{Family: family, ASN: asn}
			n, ok := networks[key]
			if !ok {
				n = newNetworkState(key, t.cfg.Window)
				if old, exists := t.networks[key]; exists {
					n.recent = old.recent
				}
				networks[key] = n
			}
			n.classify(p.ID, p.Status)
		}
	}
	for _, n := range networks {
		n.retainWindow()
		n.recompute()
	}

	t.probes = probes
	t.networks = networks
	return out, nil
}

// HandleEvent applies one probe status event and returns the alerts it raises.
func (t *ConnectivityTracker) HandleEvent(ev domain.ProbeStatusEvent) domain.Outcome {
	var out domain.Outcome

	if err := validateStatusEvent(ev); err != nil {
		out.Diagnose(domain.DiagMalformedInput, domain.LevelWarn, "dropping probe status event",
			map[string]interface{}{"probe_id": int(ev.ProbeID), "error": err.Error()})
		return out
	}

	probe, known := t.probes[ev.ProbeID]
	if !known {
		probe = &domain.Probe{ID: ev.ProbeID, Status: domain.StatusNeverSeen}
		t.probes[ev.ProbeID] = probe
		out.Diagnose(domain.DiagUnknownReference, domain.LevelInfo, "probe not in inventory, tracking from first event",
			map[string]interface{}{"probe_id": int(ev.ProbeID)})
	}

	if !probe.LastEventAt.IsZero() && ev.Timestamp.Before(probe.LastEventAt) {
		out.Diagnose(domain.DiagOutOfOrder, domain.LevelWarn, "probe status event older than last applied event",
			map[string]interface{}{
				"probe_id":      int(ev.ProbeID),
				"event_time":    ev.Timestamp.Unix(),
				"last_event_at": probe.LastEventAt.Unix(),
			})
		return out
	}

	if ev.Kind == domain.EventConnect {
		probe.Status = domain.StatusConnected
	} else {
		probe.Status = domain.StatusDisconnected
	}
	probe.LastEventAt = ev.Timestamp

	changes := make([]networkChange, 0, len(domain.AddressFamilies))
	for _, family := range domain.AddressFamilies {
		asn := ev.ASN(family)
		recorded := probe.ASN(family)
		if asn == 0 {
			asn = recorded
		}
		if asn == 0 {
			continue
		}
		if recorded != 0 && recorded != asn {
			if old, ok := t.networks[domain.NetworkKey{Family: family, ASN: recorded}]; ok {
				old.detach(probe.ID, ev.Timestamp)
			}
			out.Diagnose(domain.DiagNetworkMigrated, domain.LevelInfo, "probe moved to another network",
				map[string]interface{}{
					"probe_id": int(probe.ID),
					"family":   string(family),
					"from_asn": int(recorded),
					"to_asn":   int(asn),
				})
		}
		probe.SetASN(family, asn)

		n := t.network(domain.NetworkKey{Family: family, ASN: asn})
		curr, currOK := n.Percentage()
		n.apply(probe.ID, ev.Kind, ev.Timestamp)
		next, _ := n.Percentage()
		changes = append(changes, networkChange{state: n, curr: curr, currOK: currOK, next: next})
	}

	out.AddAlert(t.transitionAlert(probe, ev))

	if ev.Kind == domain.EventDisconnect {
		for _, ch := range changes {
			t.evaluateDisconnectRules(&out, ev, ch)
		}
	}
	return out
}

func (t *ConnectivityTracker) network(key domain.NetworkKey) *NetworkState {
	n, ok := t.networks[key]
	if !ok {
		n = newNetworkState(key, t.cfg.Window)
		t.networks[key] = n
	}
	return n
}

func (t *ConnectivityTracker) transitionAlert(probe *domain.Probe, ev domain.ProbeStatusEvent) domain.Alert {
	return domain.Alert{
		Kind: domain.AlertProbeTransition,
		Payload: map[string]interface{}{
			"description": fmt.Sprintf("probe %d %sed", probe.ID, ev.Kind),
			"probe_id":    int(probe.ID),
			"event_kind":  string(ev.Kind),
			"status":      string(probe.Status),
			"asn_v4":      int(probe.ASNv4),
			"asn_v6":      int(probe.ASNv6),
		},
		CorrelationKey: fmt.Sprintf("%d-%s-%d", probe.ID, ev.Kind, ev.Timestamp.Unix()),
		OccurredAt:     ev.Timestamp,
	}
}

func (t *ConnectivityTracker) evaluateDisconnectRules(out *domain.Outcome, ev domain.ProbeStatusEvent, ch networkChange) {
	n := ch.state

	if ch.currOK {
		delta := ch.next - ch.curr
		crossed := ch.curr >= t.cfg.MajorityThreshold && ch.next < t.cfg.MajorityThreshold
		if crossed {
			out.AddAlert(t.networkAlert(domain.AlertNetworkDegraded, ev, ch,
				fmt.Sprintf("%s lost its connected majority", n.key), domain.SeverityMajorityLoss))
		}
		if !crossed && delta <= -t.cfg.SignificantChange {
			out.AddAlert(t.networkAlert(domain.AlertNetworkDegraded, ev, ch,
				fmt.Sprintf("%s connectivity dropped by %.1f points", n.key, -delta), domain.SeverityRapidDrop))
		}
		if ch.curr > t.cfg.OfflineThreshold && ch.next < t.cfg.OfflineThreshold {
			out.AddAlert(t.networkAlert(domain.AlertNetworkOffline, ev, ch,
				fmt.Sprintf("%s has no connected probes left", n.key), ""))
		}
		// A disconnect can still raise the aggregate when connects on the same network
		// were folded in since the previous reading.
		if delta > t.cfg.SignificantChange {
			out.AddAlert(t.networkAlert(domain.AlertNetworkRecovering, ev, ch,
				fmt.Sprintf("%s connectivity rose by %.1f points", n.key, delta), ""))
		}
	}

	if n.RecentDisconnects() >= t.cfg.BurstCount {
		out.AddAlert(t.networkAlert(domain.AlertNetworkRapidDisconnect, ev, ch,
			fmt.Sprintf("%s had %d disconnects within %s", n.key, n.RecentDisconnects(), n.recent.Size()), ""))
	}
}

func (t *ConnectivityTracker) networkAlert(kind domain.AlertKind, ev domain.ProbeStatusEvent, ch networkChange, description, severity string) domain.Alert {
	n := ch.state
	payload := map[string]interface{}{
		"description":         description,
		"family":              string(n.key.Family),
		"asn":                 int(n.key.ASN),
		"probe_id":            int(ev.ProbeID),
		"previous_percentage": ch.curr,
		"percentage":          ch.next,
		"connected":           n.ConnectedCount(),
		"disconnected":        n.DisconnectedCount(),
		"recent_disconnects":  n.RecentDisconnects(),
	}
	key := fmt.Sprintf("%s-%s-%d-%d-%d", kind, n.key.Family, n.key.ASN, ev.ProbeID, ev.Timestamp.Unix())
	if severity != "" {
		payload["severity"] = severity
		key += "-" + severity
	}
	return domain.Alert{
		Kind:           kind,
		Payload:        payload,
		CorrelationKey: key,
		OccurredAt:     ev.Timestamp,
	}
}

// Probe returns a copy of the probe state.
func (t *ConnectivityTracker) Probe(id domain.ProbeID) (domain.Probe, error) {
	p, ok := t.probes[id]
	if !ok {
		return domain.Probe{}, domain.ErrProbeNotFound
	}
	return *p, nil
}

// Network returns a copy of one network's state.
func (t *ConnectivityTracker) Network(key domain.NetworkKey) (domain.NetworkView, error) {
	n, ok := t.networks[key]
	if !ok {
		return domain.NetworkView{}, domain.ErrNetworkNotFound
	}
	return n.view(), nil
}

// RecentDisconnects evicts the window of a network as of at and returns what is left.
func (t *ConnectivityTracker) RecentDisconnects(key domain.NetworkKey, at time.Time) (map[domain.ProbeID]time.Time, error) {
	n, ok := t.networks[key]
	if !ok {
		return nil, domain.ErrNetworkNotFound
	}
	n.recent.Advance(at)
	return n.recent.Snapshot(), nil
}

// Networks lists networks matching filter, ordered by family then ASN.
func (t *ConnectivityTracker) Networks(filter domain.NetworkFilter) []domain.NetworkView {
	views := make([]domain.NetworkView, 0)
	for key, n := range t.networks {
		if filter.Family != "" && key.Family != filter.Family {
			continue
		}
		if filter.Below != nil {
			p, ok := n.Percentage()
			if !ok || p >= *filter.Below {
				continue
			}
		}
		views = append(views, n.view())
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].Key.Family != views[j].Key.Family {
			return views[i].Key.Family < views[j].Key.Family
		}
		return views[i].Key.ASN < views[j].Key.ASN
	})
	return views
}

// TrackerStats is a cheap summary for readiness and metrics.
type TrackerStats struct {
	Probes   int
	Networks int
}

func (t *ConnectivityTracker) Stats() TrackerStats {
	return TrackerStats{Probes: len(t.probes), Networks: len(t.networks)}
}

// Percentage returns the current percentage of one network.
func (t *ConnectivityTracker) Percentage(key domain.NetworkKey) (float64, bool) {
	n, ok := t.networks[key]
	if !ok {
		return 0, false
	}
	return n.Percentage()
}

// Percentages returns the current percentage of every non-empty network.
func (t *ConnectivityTracker) Percentages() map[domain.NetworkKey]float64 {
	out := make(map[domain.NetworkKey]float64, len(t.networks))
	for key, n := range t.networks {
		if p, ok := n.Percentage(); ok {
			out[key] = p
		}
	}
	return out
}
