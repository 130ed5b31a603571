package http

import (
	"errors"
	"sort"
	"time"

	"probewatch/internal/core/domain"
	apperrors "probewatch/pkg/errors"
)

type probeResponse struct {
	ID          domain.ProbeID            `json:"id"`
	ASNv4       domain.ASN                `json:"asn_v4,omitempty"`
	ASNv6       domain.ASN                `json:"asn_v6,omitempty"`
	Status      domain.ConnectivityStatus `json:"status"`
	CountryCode string                    `json:"country_code,omitempty"`
	IsAnchor    bool                      `json:"is_anchor"`
	IsPublic    bool                      `json:"is_public"`
	Latitude    float64                   `json:"latitude"`
	Longitude   float64                   `json:"longitude"`
	PrefixV4    string                    `json:"prefix_v4,omitempty"`
	PrefixV6    string                    `json:"prefix_v6,omitempty"`
	AddressV4   string                    `json:"address_v4,omitempty"`
	AddressV6   string                    `json:"address_v6,omitempty"`
	StatusSince *time.Time                `json:"status_since,omitempty"`
	LastEventAt *time.Time                `json:"last_event_at,omitempty"`
}

func newProbeResponse(p domain.Probe) probeResponse {
	resp := probeResponse{
		ID:          p.ID,
		ASNv4:       p.ASNv4,
		ASNv6:       p.ASNv6,
		Status:      p.Status,
		CountryCode: p.CountryCode,
		IsAnchor:    p.IsAnchor,
		IsPublic:    p.IsPublic,
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		PrefixV4:    p.PrefixV4,
		PrefixV6:    p.PrefixV6,
		AddressV4:   p.AddressV4,
		AddressV6:   p.AddressV6,
		StatusSince: p.StatusSince,
	}
	if !p.LastEventAt.IsZero() {
		last := p.LastEventAt
		resp.LastEventAt = &last
	}
	return resp
}

type recentDisconnect struct {
	ProbeID        domain.ProbeID `json:"probe_id"`
	DisconnectedAt time.Time      `json:"disconnected_at"`
}

type networkResponse struct {
	Family               domain.AddressFamily `json:"family"`
	ASN                  domain.ASN           `json:"asn"`
	Connected            []domain.ProbeID     `json:"connected"`
	Disconnected         []domain.ProbeID     `json:"disconnected"`
	ConnectionPercentage *float64             `json:"connection_percentage"`
	RecentDisconnects    []recentDisconnect   `json:"recent_disconnects"`
}

func newNetworkResponse(v domain.NetworkView) networkResponse {
	resp := networkResponse{
		Family:               v.Key.Family,
		ASN:                  v.Key.ASN,
		Connected:            nonNil(v.Connected),
		Disconnected:         nonNil(v.Disconnected),
		ConnectionPercentage: v.ConnectionPercentage,
		RecentDisconnects:    make([]recentDisconnect, 0, len(v.RecentDisconnects)),
	}
	for id, at := range v.RecentDisconnects {
		resp.RecentDisconnects = append(resp.RecentDisconnects, recentDisconnect{ProbeID: id, DisconnectedAt: at})
	}
	sort.Slice(resp.RecentDisconnects, func(i, j int) bool {
		a, b := resp.RecentDisconnects[i], resp.RecentDisconnects[j]
		if a.DisconnectedAt.Equal(b.DisconnectedAt) {
			return a.ProbeID < b.ProbeID
		}
		return a.DisconnectedAt.Before(b.DisconnectedAt)
	})
	return resp
}

func nonNil(ids []domain.ProbeID) []domain.ProbeID {
	if ids == nil {
		return []domain.ProbeID{}
	}
	return ids
}

type attemptResponse struct {
	RTT         *float64 `json:"rtt,omitempty"`
	From        string   `json:"from,omitempty"`
	Unreachable bool     `json:"unreachable,omitempty"`
}

type hopResponse struct {
	Hop      int               `json:"hop"`
	Attempts []attemptResponse `json:"attempts"`
}

type snapshotResponse struct {
	ProbeID         domain.ProbeID       `json:"probe_id"`
	MeasurementID   domain.MeasurementID `json:"measurement_id"`
	StoredTimestamp time.Time            `json:"stored_timestamp"`
	MeasuredAt      time.Time            `json:"measured_at"`
	DstAddr         string               `json:"dst_addr"`
	Hops            []hopResponse        `json:"hops"`
	RTTMedian       *float64             `json:"rtt_median,omitempty"`
	HostUnreachable bool                 `json:"host_unreachable"`
}

func newSnapshotResponse(s *domain.MeasurementSnapshot) snapshotResponse {
	resp := snapshotResponse{
		ProbeID:         s.ProbeID,
		MeasurementID:   s.MeasurementID,
		StoredTimestamp: s.Timestamp,
		MeasuredAt:      s.MeasuredAt,
		DstAddr:         s.DstAddr,
		Hops:            make([]hopResponse, 0, len(s.Hops)),
		HostUnreachable: s.HostUnreachable(),
	}
	for _, h := range s.Hops {
		hop := hopResponse{Hop: h.Index, Attempts: make([]attemptResponse, 0, len(h.Attempts))}
		for _, a := range h.Attempts {
			hop.Attempts = append(hop.Attempts, attemptResponse{RTT: a.RTT, From: a.FromAddress, Unreachable: a.Unreachable})
		}
		resp.Hops = append(resp.Hops, hop)
	}
	if median, ok := s.RTTMedian(); ok {
		resp.RTTMedian = &median
	}
	return resp
}

// toAppError maps the lookup failures of the read API onto NOT_FOUND. Anything
// else is left for ErrorHandlerMiddleware to classify.
func toAppError(err error) error {
	switch {
	case errors.Is(err, domain.ErrProbeNotFound):
		return apperrors.NewNotFoundError("probe")
	case errors.Is(err, domain.ErrNetworkNotFound):
		return apperrors.NewNotFoundError("network")
	case errors.Is(err, domain.ErrMeasurementNotFound):
		return apperrors.NewNotFoundError("measurement result")
	}
	return err
}
