package services

import (
	"math/rand"
	"testing"
	"time"

	"probewatch/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1700000000, 0).UTC()

func record(id domain.ProbeID, asnV4, asnV6 domain.ASN, status int) domain.InventoryRecord {
	return domain.InventoryRecord{ProbeID: id, ASNv4: asnV4, ASNv6: asnV6, StatusCode: status}
}

func statusEvent(id domain.ProbeID, kind domain.EventKind, asnV4 domain.ASN, at time.Time) domain.ProbeStatusEvent {
	return domain.ProbeStatusEvent{ProbeID: id, Kind: kind, ASNv4: asnV4, Timestamp: at}
}

func alertKinds(out domain.Outcome) []domain.AlertKind {
	kinds := make([]domain.AlertKind, 0, len(out.Alerts))
	for _, a := range out.Alerts {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}

func findAlert(out domain.Outcome, kind domain.AlertKind, severity string) (domain.Alert, bool) {
	for _, a := range out.Alerts {
		if a.Kind != kind {
			continue
		}
		if severity != "" && a.Payload["severity"] != severity {
			continue
		}
		return a, true
	}
	return domain.Alert{}, false
}

func diagCodes(out domain.Outcome) []domain.DiagnosticCode {
	codes := make([]domain.DiagnosticCode, 0, len(out.Diagnostics))
	for _, d := range out.Diagnostics {
		codes = append(codes, d.Code)
	}
	return codes
}

func v4(asn domain.ASN) domain.NetworkKey {
	return domain.NetworkKey{Family: domain.FamilyV4, ASN: asn}
}

func seededTracker(t *testing.T, records ...domain.InventoryRecord) *ConnectivityTracker {
	t.Helper()
	tracker := NewConnectivityTracker(DefaultTrackerConfig())
	_, err := tracker.Initialize(records)
	require.NoError(t, err)
	return tracker
}

func TestConnectivityTracker_Initialize(t *testing.T) {
	tracker := seededTracker(t,
		record(1, 100, 0, 1),
		record(2, 100, 0, 2),
		record(3, 100, 0, 3),
		record(4, 100, 0, 4),
		record(5, 0, 0, 1),
		record(6, 100, 200, 1),
	)

	view, err := tracker.Network(v4(100))
	require.NoError(t, err)
	assert.Equal(t, []domain.ProbeID{1, 6}, view.Connected)
	assert.Equal(t, []domain.ProbeID{2}, view.Disconnected)
	require.NotNil(t, view.ConnectionPercentage)
	assert.InDelta(t, 66.666, *view.ConnectionPercentage, 0.01)
	assert.Empty(t, view.RecentDisconnects)

	v6, err := tracker.Network(domain.NetworkKey{Family: domain.FamilyV6, ASN: 200})
	require.NoError(t, err)
	assert.Equal(t, []domain.ProbeID{6}, v6.Connected)

	abandoned, err := tracker.Probe(3)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAbandoned, abandoned.Status)

	_, err = tracker.Probe(5)
	assert.NoError(t, err, "unattached probes are still tracked")

	assert.Equal(t, TrackerStats{Probes: 6, Networks: 2}, tracker.Stats())
}

func TestConnectivityTracker_InitializeFailures(t *testing.T) {
	tests := []struct {
		name    string
		records []domain.InventoryRecord
		wantErr error
	}{
		{name: "empty", records: nil, wantErr: domain.ErrEmptyInventory},
		{name: "bad status", records: []domain.InventoryRecord{record(1, 100, 0, 9)}, wantErr: domain.ErrMalformedInventory},
		{name: "bad probe id", records: []domain.InventoryRecord{record(0, 100, 0, 1)}, wantErr: domain.ErrMalformedInventory},
		{name: "negative asn", records: []domain.InventoryRecord{record(1, -5, 0, 1)}, wantErr: domain.ErrMalformedInventory},
		{name: "all invalid", records: []domain.InventoryRecord{record(1, 100, 0, 0), record(2, 100, 0, 7)}, wantErr: domain.ErrMalformedInventory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewConnectivityTracker(DefaultTrackerConfig())
			_, err := tracker.Initialize(tt.records)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, TrackerStats{}, tracker.Stats())
		})
	}
}

func TestConnectivityTracker_InitializeSkipsInvalidRecords(t *testing.T) {
	records := make([]domain.InventoryRecord, 0, 1002)
	for id := domain.ProbeID(1); id <= 1000; id++ {
		records = append(records, record(id, 100, 0, 1))
	}
	records = append(records, record(1001, 100, 0, 0), record(7, 100, 0, 2))

	tracker := NewConnectivityTracker(DefaultTrackerConfig())
	out, err := tracker.Initialize(records)
	require.NoError(t, err)

	assert.Equal(t, TrackerStats{Probes: 1000, Networks: 1}, tracker.Stats())
	require.Len(t, out.Diagnostics, 2)
	for _, d := range out.Diagnostics {
		assert.Equal(t, domain.DiagMalformedInput, d.Code)
	}
	assert.Equal(t, 1001, out.Diagnostics[0].Fields["probe_id"])

	// The first record for a probe id wins.
	dup, err := tracker.Probe(7)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConnected, dup.Status)

	_, err = tracker.Probe(1001)
	assert.ErrorIs(t, err, domain.ErrProbeNotFound)
}

func TestConnectivityTracker_InitializeKeepsEventState(t *testing.T) {
	tracker := NewConnectivityTracker(DefaultTrackerConfig())
	tracker.HandleEvent(statusEvent(1, domain.EventDisconnect, 100, t0))

	_, err := tracker.Initialize([]domain.InventoryRecord{
		record(1, 100, 0, 1),
		record(2, 100, 0, 1),
	})
	require.NoError(t, err)

	probe, err := tracker.Probe(1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisconnected, probe.Status)

	view, err := tracker.Network(v4(100))
	require.NoError(t, err)
	assert.Equal(t, []domain.ProbeID{2}, view.Connected)
	assert.Equal(t, []domain.ProbeID{1}, view.Disconnected)
	assert.Contains(t, view.RecentDisconnects, domain.ProbeID(1))
}

// Probes 1 and 2 connected on AS100; 1 disconnects: 100% -> 50%.
// CrossedBelowHalf needs the new value strictly below 50, so the only
// NetworkDegraded here comes from the SignificantDrop rule (delta <= -19).
func TestConnectivityTracker_HalfDoesNotCrossBelowHalf(t *testing.T) {
	tracker := seededTracker(t, record(1, 100, 0, 1), record(2, 100, 0, 1))

	out := tracker.HandleEvent(statusEvent(1, domain.EventDisconnect, 100, t0))

	_, majority := findAlert(out, domain.AlertNetworkDegraded, domain.SeverityMajorityLoss)
	assert.False(t, majority, "50.0 is not strictly below half")

	transition, ok := findAlert(out, domain.AlertProbeTransition, "")
	require.True(t, ok)
	assert.Equal(t, "1-disconnect-1700000000", transition.CorrelationKey)
	assert.Equal(t, 1, transition.Payload["probe_id"])
	assert.Equal(t, "disconnect", transition.Payload["event_kind"])

	// A 50 point drop still meets the significant change rule.
	drop, ok := findAlert(out, domain.AlertNetworkDegraded, domain.SeverityRapidDrop)
	require.True(t, ok)
	assert.Equal(t, 100.0, drop.Payload["previous_percentage"])
	assert.Equal(t, 50.0, drop.Payload["percentage"])
	assert.Len(t, out.Alerts, 2)
}

func TestConnectivityTracker_CrossedBelowHalf(t *testing.T) {
	tracker := seededTracker(t,
		record(1, 100, 0, 1),
		record(2, 100, 0, 1),
		record(3, 100, 0, 2),
		record(4, 100, 0, 2),
	)

	out := tracker.HandleEvent(statusEvent(1, domain.EventDisconnect, 100, t0))

	assert.Equal(t, []domain.AlertKind{domain.AlertProbeTransition, domain.AlertNetworkDegraded}, alertKinds(out))
	degraded, ok := findAlert(out, domain.AlertNetworkDegraded, domain.SeverityMajorityLoss)
	require.True(t, ok)
	assert.Equal(t, 50.0, degraded.Payload["previous_percentage"])
	assert.Equal(t, 25.0, degraded.Payload["percentage"])
	assert.Equal(t, "NetworkDegraded-v4-100-1-1700000000-majority-loss", degraded.CorrelationKey)
}

func TestConnectivityTracker_WentOffline(t *testing.T) {
	tracker := seededTracker(t, record(1, 100, 0, 1), record(2, 100, 0, 2))

	out := tracker.HandleEvent(statusEvent(1, domain.EventDisconnect, 100, t0))

	assert.ElementsMatch(t, []domain.AlertKind{
		domain.AlertProbeTransition,
		domain.AlertNetworkDegraded,
		domain.AlertNetworkOffline,
	}, alertKinds(out))
	_, rapid := findAlert(out, domain.AlertNetworkDegraded, domain.SeverityRapidDrop)
	assert.False(t, rapid, "rapid drop is suppressed when the majority line was crossed")
}

func TestConnectivityTracker_RapidDisconnectBurst(t *testing.T) {
	records := make([]domain.InventoryRecord, 0, 10)
	for id := domain.ProbeID(1); id <= 10; id++ {
		records = append(records, record(id, 100, 0, 1))
	}
	tracker := seededTracker(t, records...)

	var out domain.Outcome
	for i, id := range []domain.ProbeID{1, 2, 3} {
		out = tracker.HandleEvent(statusEvent(id, domain.EventDisconnect, 100, t0.Add(time.Duration(i)*time.Minute)))
		if i < 2 {
			assert.Equal(t, []domain.AlertKind{domain.AlertProbeTransition}, alertKinds(out))
		}
	}

	burst, ok := findAlert(out, domain.AlertNetworkRapidDisconnect, "")
	require.True(t, ok)
	assert.Equal(t, 3, burst.Payload["recent_disconnects"])
	assert.Len(t, out.Alerts, 2)
}

func TestConnectivityTracker_BurstIgnoresExpiredDisconnects(t *testing.T) {
	records := make([]domain.InventoryRecord, 0, 10)
	for id := domain.ProbeID(1); id <= 10; id++ {
		records = append(records, record(id, 100, 0, 1))
	}
	tracker := seededTracker(t, records...)

	tracker.HandleEvent(statusEvent(1, domain.EventDisconnect, 100, t0))
	tracker.HandleEvent(statusEvent(2, domain.EventDisconnect, 100, t0.Add(10*time.Minute)))
	out := tracker.HandleEvent(statusEvent(3, domain.EventDisconnect, 100, t0.Add(30*time.Minute)))

	_, ok := findAlert(out, domain.AlertNetworkRapidDisconnect, "")
	assert.False(t, ok)

	recent, err := tracker.RecentDisconnects(v4(100), t0.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, map[domain.ProbeID]time.Time{
		2: t0.Add(10 * time.Minute),
		3: t0.Add(30 * time.Minute),
	}, recent)
}

func TestConnectivityTracker_RecentDisconnectsWindow(t *testing.T) {
	tracker := seededTracker(t, record(1, 100, 0, 1), record(2, 100, 0, 1))
	tracker.HandleEvent(statusEvent(1, domain.EventDisconnect, 100, t0))

	recent, err := tracker.RecentDisconnects(v4(100), t0.Add(30*time.Minute-time.Second))
	require.NoError(t, err)
	assert.Contains(t, recent, domain.ProbeID(1))

	recent, err = tracker.RecentDisconnects(v4(100), t0.Add(30*time.Minute))
	require.NoError(t, err)
	assert.NotContains(t, recent, domain.ProbeID(1))

	view, err := tracker.Network(v4(100))
	require.NoError(t, err)
	assert.Equal(t, []domain.ProbeID{1}, view.Disconnected, "eviction never changes set membership")
}

func TestConnectivityTracker_RepeatedConnectIsIdempotent(t *testing.T) {
	tracker := seededTracker(t, record(1, 100, 0, 1), record(2, 100, 0, 2))
	tracker.HandleEvent(statusEvent(2, domain.EventDisconnect, 100, t0))

	tracker.HandleEvent(statusEvent(1, domain.EventConnect, 100, t0.Add(time.Minute)))
	before, err := tracker.Network(v4(100))
	require.NoError(t, err)

	out := tracker.HandleEvent(statusEvent(1, domain.EventConnect, 100, t0.Add(2*time.Minute)))
	after, err := tracker.Network(v4(100))
	require.NoError(t, err)

	assert.Equal(t, before.Connected, after.Connected)
	assert.Equal(t, before.Disconnected, after.Disconnected)
	assert.Equal(t, before.RecentDisconnects, after.RecentDisconnects)
	assert.Equal(t, []domain.AlertKind{domain.AlertProbeTransition}, alertKinds(out))
}

func TestConnectivityTracker_ConnectClearsRecentDisconnect(t *testing.T) {
	tracker := seededTracker(t, record(1, 100, 0, 1), record(2, 100, 0, 1))
	tracker.HandleEvent(statusEvent(1, domain.EventDisconnect, 100, t0))
	tracker.HandleEvent(statusEvent(1, domain.EventConnect, 100, t0.Add(time.Minute)))

	view, err := tracker.Network(v4(100))
	require.NoError(t, err)
	assert.Empty(t, view.RecentDisconnects)
	assert.Equal(t, []domain.ProbeID{1, 2}, view.Connected)
}

func TestConnectivityTracker_MembershipConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tracker := NewConnectivityTracker(DefaultTrackerConfig())
	seen := make(map[domain.ProbeID]struct{})
	at := t0

	for i := 0; i < 500; i++ {
		id := domain.ProbeID(rng.Intn(25) + 1)
		kind := domain.EventConnect
		if rng.Intn(2) == 0 {
			kind = domain.EventDisconnect
		}
		at = at.Add(time.Duration(rng.Intn(120)) * time.Second)
		tracker.HandleEvent(statusEvent(id, kind, 100, at))
		seen[id] = struct{}{}

		view, err := tracker.Network(v4(100))
		require.NoError(t, err)
		require.Equal(t, len(seen), len(view.Connected)+len(view.Disconnected))

		disconnected := make(map[domain.ProbeID]bool, len(view.Disconnected))
		for _, d := range view.Disconnected {
			disconnected[d] = true
		}
		for _, c := range view.Connected {
			require.False(t, disconnected[c], "probe %d in both sets", c)
		}
		for probe := range view.RecentDisconnects {
			require.True(t, disconnected[probe], "recent disconnect %d not disconnected", probe)
		}
	}
}

func TestConnectivityTracker_UnknownProbeIsCreated(t *testing.T) {
	tracker := NewConnectivityTracker(DefaultTrackerConfig())

	out := tracker.HandleEvent(statusEvent(42, domain.EventDisconnect, 300, t0))

	assert.Equal(t, []domain.AlertKind{domain.AlertProbeTransition}, alertKinds(out), "rules need a prior percentage")
	assert.Contains(t, diagCodes(out), domain.DiagUnknownReference)

	probe, err := tracker.Probe(42)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisconnected, probe.Status)
	assert.Equal(t, domain.ASN(300), probe.ASNv4)

	view, err := tracker.Network(v4(300))
	require.NoError(t, err)
	assert.Equal(t, []domain.ProbeID{42}, view.Disconnected)
}

func TestConnectivityTracker_MalformedEventIsDropped(t *testing.T) {
	tracker := seededTracker(t, record(1, 100, 0, 1))

	tests := []struct {
		name string
		ev   domain.ProbeStatusEvent
	}{
		{name: "zero probe id", ev: statusEvent(0, domain.EventDisconnect, 100, t0)},
		{name: "unknown kind", ev: statusEvent(1, domain.EventKind("reboot"), 100, t0)},
		{name: "missing timestamp", ev: statusEvent(1, domain.EventDisconnect, 100, time.Time{})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tracker.HandleEvent(tt.ev)
			assert.Empty(t, out.Alerts)
			assert.Equal(t, []domain.DiagnosticCode{domain.DiagMalformedInput}, diagCodes(out))

			probe, err := tracker.Probe(1)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusConnected, probe.Status)
		})
	}
}

func TestConnectivityTracker_OutOfOrderEventIsDropped(t *testing.T) {
	tracker := seededTracker(t, record(1, 100, 0, 1), record(2, 100, 0, 1))
	tracker.HandleEvent(statusEvent(1, domain.EventDisconnect, 100, t0.Add(time.Minute)))

	out := tracker.HandleEvent(statusEvent(1, domain.EventConnect, 100, t0))

	assert.Empty(t, out.Alerts)
	assert.Equal(t, []domain.DiagnosticCode{domain.DiagOutOfOrder}, diagCodes(out))
	probe, err := tracker.Probe(1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisconnected, probe.Status)
}

func TestConnectivityTracker_EventWithoutASNUsesRecordedNetwork(t *testing.T) {
	tracker := seededTracker(t, record(1, 100, 0, 1), record(2, 100, 0, 1))

	tracker.HandleEvent(statusEvent(1, domain.EventDisconnect, 0, t0))

	view, err := tracker.Network(v4(100))
	require.NoError(t, err)
	assert.Equal(t, []domain.ProbeID{1}, view.Disconnected)
}

func TestConnectivityTracker_ProbeMigratesNetwork(t *testing.T) {
	tracker := seededTracker(t, record(1, 100, 0, 1), record(2, 100, 0, 1))

	out := tracker.HandleEvent(statusEvent(1, domain.EventConnect, 200, t0))
	assert.Contains(t, diagCodes(out), domain.DiagNetworkMigrated)

	old, err := tracker.Network(v4(100))
	require.NoError(t, err)
	assert.Equal(t, []domain.ProbeID{2}, old.Connected)
	assert.Empty(t, old.Disconnected)

	moved, err := tracker.Network(v4(200))
	require.NoError(t, err)
	assert.Equal(t, []domain.ProbeID{1}, moved.Connected)
}

func TestConnectivityTracker_FamiliesAreIndependent(t *testing.T) {
	tracker := seededTracker(t, record(1, 100, 200, 1))

	out := tracker.HandleEvent(domain.ProbeStatusEvent{
		ProbeID: 1, Kind: domain.EventDisconnect, ASNv4: 100, ASNv6: 200, Timestamp: t0,
	})

	families := make(map[interface{}]int)
	for _, a := range out.Alerts {
		if a.Kind == domain.AlertNetworkOffline {
			families[a.Payload["family"]]++
		}
	}
	assert.Equal(t, map[interface{}]int{"v4": 1, "v6": 1}, families)
}

func TestConnectivityTracker_NetworksFilter(t *testing.T) {
	tracker := seededTracker(t,
		record(1, 100, 0, 1),
		record(2, 100, 0, 2),
		record(3, 300, 0, 1),
		record(4, 0, 200, 2),
	)

	all := tracker.Networks(domain.NetworkFilter{})
	require.Len(t, all, 3)
	assert.Equal(t, v4(100), all[0].Key)
	assert.Equal(t, v4(300), all[1].Key)
	assert.Equal(t, domain.FamilyV6, all[2].Key.Family)

	below := 60.0
	degraded := tracker.Networks(domain.NetworkFilter{Family: domain.FamilyV4, Below: &below})
	require.Len(t, degraded, 1)
	assert.Equal(t, v4(100), degraded[0].Key)

	_, err := tracker.Network(v4(999))
	assert.ErrorIs(t, err, domain.ErrNetworkNotFound)
	_, err = tracker.Probe(999)
	assert.ErrorIs(t, err, domain.ErrProbeNotFound)
}
