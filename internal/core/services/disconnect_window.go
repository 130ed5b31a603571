package services

import (
	"sort"
	"time"

	"probewatch/internal/core/domain"
)

type windowEntry struct {
	probe domain.ProbeID
	at    time.Time
}

// DisconnectWindow keeps the most recent disconnect time per probe for a bounded
// time span. Entries are kept sorted by time so eviction only looks at the head.
type DisconnectWindow struct {
	size    time.Duration
	entries []windowEntry
	current map[domain.ProbeID]time.Time
}

func NewDisconnectWindow(size time.Duration) *DisconnectWindow {
	return &DisconnectWindow{
		size:    size,
		current: make(map[domain.ProbeID]time.Time),
	}
}

// Record stores a disconnect of probe at the given time, replacing any earlier one.
func (w *DisconnectWindow) Record(probe domain.ProbeID, at time.Time) {
	w.current[probe] = at

	i := sort.Search(len(w.entries), func(i int) bool {
		return w.entries[i].at.After(at)
	})
	w.entries = append(w.entries, windowEntry{})
	copy(w.entries[i+1:], w.entries[i:])
	w.entries[i] = windowEntry{probe: probe, at: at}
}

// Remove forgets the disconnect of probe. The sorted entry is dropped lazily on eviction.
func (w *DisconnectWindow) Remove(probe domain.ProbeID) bool {
	if _, ok := w.current[probe]; !ok {
		return false
	}
	delete(w.current, probe)
	return true
}

// EvictOlderThan drops every disconnect recorded at or before cutoff and
// returns how many live entries were removed.
func (w *DisconnectWindow) EvictOlderThan(cutoff time.Time) int {
	removed := 0
	n := 0
	for n < len(w.entries) && !w.entries[n].at.After(cutoff) {
		e := w.entries[n]
		if at, ok := w.current[e.probe]; ok && at.Equal(e.at) {
			delete(w.current, e.probe)
			removed++
		}
		n++
	}
	if n > 0 {
		w.entries = append(w.entries[:0], w.entries[n:]...)
	}
	return removed
}

// Advance evicts everything that is a full window old as of now.
func (w *DisconnectWindow) Advance(now time.Time) int {
	return w.EvictOlderThan(now.Add(-w.size))
}

// Contains reports whether probe has a live disconnect entry.
func (w *DisconnectWindow) Contains(probe domain.ProbeID) bool {
	_, ok := w.current[probe]
	return ok
}

func (w *DisconnectWindow) Len() int {
	return len(w.current)
}

func (w *DisconnectWindow) Size() time.Duration {
	return w.size
}

// Snapshot returns a copy of the live entries.
func (w *DisconnectWindow) Snapshot() map[domain.ProbeID]time.Time {
	out := make(map[domain.ProbeID]time.Time, len(w.current))
	for id, at := range w.current {
		out[id] = at
	}
	return out
}

// Retain keeps only the probes for which keep returns true.
func (w *DisconnectWindow) Retain(keep func(domain.ProbeID) bool) {
	for id := range w.current {
		if !keep(id) {
			delete(w.current, id)
		}
	}
}
