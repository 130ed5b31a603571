package services

import (
	"sort"
	"time"

	"probewatch/internal/core/domain"
)

// NetworkState is the connectivity aggregate of one (family, ASN) pair.
// A probe is a member of exactly one of connected/disconnected.
type NetworkState struct {
	key          domain.NetworkKey
	connected    map[domain.ProbeID]struct{}
	disconnected map[domain.ProbeID]struct{}
	recent       *DisconnectWindow

	percentage    float64
	hasPercentage bool
}

func newNetworkState(key domain.NetworkKey, window time.Duration) *NetworkState {
	return &NetworkState{
		key:          key,
		connected:    make(map[domain.ProbeID]struct{}),
		disconnected: make(map[domain.ProbeID]struct{}),
		recent:       NewDisconnectWindow(window),
	}
}

func (n *NetworkState) Key() domain.NetworkKey {
	return n.key
}

// Percentage returns the share of connected probes; ok is false for an empty network.
func (n *NetworkState) Percentage() (float64, bool) {
	return n.percentage, n.hasPercentage
}

func (n *NetworkState) Total() int {
	return len(n.connected) + len(n.disconnected)
}

func (n *NetworkState) ConnectedCount() int {
	return len(n.connected)
}

func (n *NetworkState) DisconnectedCount() int {
	return len(n.disconnected)
}

func (n *NetworkState) RecentDisconnects() int {
	return n.recent.Len()
}

func (n *NetworkState) recompute() {
	total := n.Total()
	if total == 0 {
		n.percentage, n.hasPercentage = 0, false
		return
	}
	n.percentage = float64(len(n.connected)) / float64(total) * 100
	n.hasPercentage = true
}

// classify places a probe according to its inventory status without touching the window.
// Abandoned and never-seen probes are not counted.
func (n *NetworkState) classify(probe domain.ProbeID, status domain.ConnectivityStatus) {
	switch status {
	case domain.StatusConnected:
		delete(n.disconnected, probe)
		n.connected[probe] = struct{}{}
	case domain.StatusDisconnected:
		delete(n.connected, probe)
		n.disconnected[probe] = struct{}{}
	}
}

// apply runs the connect/disconnect transition for probe at time at.
func (n *NetworkState) apply(probe domain.ProbeID, kind domain.EventKind, at time.Time) {
	switch kind {
	case domain.EventConnect:
		delete(n.disconnected, probe)
		n.connected[probe] = struct{}{}
		n.recent.Remove(probe)
	case domain.EventDisconnect:
		delete(n.connected, probe)
		n.disconnected[probe] = struct{}{}
		n.recent.Record(probe, at)
	}
	n.recent.Advance(at)
	n.recompute()
}

// detach removes probe from the network entirely, used when a probe changes ASN.
func (n *NetworkState) detach(probe domain.ProbeID, at time.Time) {
	delete(n.connected, probe)
	delete(n.disconnected, probe)
	n.recent.Remove(probe)
	n.recent.Advance(at)
	n.recompute()
}

// retainWindow drops window entries for probes that are no longer disconnected here.
func (n *NetworkState) retainWindow() {
	n.recent.Retain(func(id domain.ProbeID) bool {
		_, ok := n.disconnected[id]
		return ok
	})
}

func (n *NetworkState) view() domain.NetworkView {
	v := domain.NetworkView{
		Key:               n.key,
		Connected:         sortedIDs(n.connected),
		Disconnected:      sortedIDs(n.disconnected),
		RecentDisconnects: n.recent.Snapshot(),
	}
	if p, ok := n.Percentage(); ok {
		v.ConnectionPercentage = &p
	}
	return v
}

func sortedIDs(set map[domain.ProbeID]struct{}) []domain.ProbeID {
	ids := make([]domain.ProbeID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
