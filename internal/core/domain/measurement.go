package domain

import (
	"sort"
	"time"
)

type MeasurementID int

// Attempt is one packet sent for a hop. RTT is nil when no reply arrived.
type Attempt struct {
	RTT         *float64
	FromAddress string
	// Unreachable is set for the timeout marker ({"x": "*"} on the wire).
	Unreachable bool
}

type Hop struct {
	Index    int
	Attempts []Attempt
}

// MeasurementSnapshot is one full result of a measurement for a probe.
type MeasurementSnapshot struct {
	ProbeID       ProbeID
	MeasurementID MeasurementID
	// Timestamp is the stored timestamp of the result; equal timestamps mean the same result.
	Timestamp  time.Time
	MeasuredAt time.Time
	DstAddr    string
	Hops       []Hop
	// Interval is the measurement interval when known; zero means unknown.
	Interval time.Duration

	rttMedian    float64
	rttMedianSet bool
	rttMedianOK  bool
}

// HostUnreachable reports whether any hop contains the unreachable marker.
func (s *MeasurementSnapshot) HostUnreachable() bool {
	for _, hop := range s.Hops {
		for _, a := range hop.Attempts {
			if a.Unreachable {
				return true
			}
		}
	}
	return false
}

// RTTs returns every non-null attempt RTT across all hops, in hop order.
func (s *MeasurementSnapshot) RTTs() []float64 {
	var out []float64
	for _, hop := range s.Hops {
		for _, a := range hop.Attempts {
			if a.RTT != nil {
				out = append(out, *a.RTT)
			}
		}
	}
	return out
}

// RTTMedian returns the median RTT, computing it on first use.
// ok is false when the snapshot has no RTT values.
func (s *MeasurementSnapshot) RTTMedian() (median float64, ok bool) {
	if !s.rttMedianSet {
		s.rttMedian, s.rttMedianOK = Median(s.RTTs())
		s.rttMedianSet = true
	}
	return s.rttMedian, s.rttMedianOK
}

// FromAddresses returns the distinct non-empty responder addresses, sorted.
func (s *MeasurementSnapshot) FromAddresses() []string {
	seen := make(map[string]struct{})
	for _, hop := range s.Hops {
		for _, a := range hop.Attempts {
			if a.FromAddress == "" {
				continue
			}
			seen[a.FromAddress] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for addr := range seen {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Median returns the median of values without modifying the input.
func Median(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	half := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[half], true
	}
	return (sorted[half-1] + sorted[half]) / 2.0, true
}
