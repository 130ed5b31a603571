package domain

import "time"

type ProbeID int

type ConnectivityStatus string

const (
	StatusConnected    ConnectivityStatus = "Connected"
	StatusDisconnected ConnectivityStatus = "Disconnected"
	StatusAbandoned    ConnectivityStatus = "Abandoned"
	StatusNeverSeen    ConnectivityStatus = "NeverSeen"
)

// StatusFromCode maps the inventory status code (1..4) to a status.
func StatusFromCode(code int) (ConnectivityStatus, bool) {
	switch code {
	case 1:
		return StatusConnected, true
	case 2:
		return StatusDisconnected, true
	case 3:
		return StatusAbandoned, true
	case 4:
		return StatusNeverSeen, true
	default:
		return "", false
	}
}

type Probe struct {
	ID          ProbeID
	ASNv4       ASN
	ASNv6       ASN
	Status      ConnectivityStatus
	CountryCode string
	IsAnchor    bool
	IsPublic    bool
	Latitude    float64
	Longitude   float64
	PrefixV4    string
	PrefixV6    string
	AddressV4   string
	AddressV6   string
	StatusSince *time.Time
	LastEventAt time.Time
}

// ASN returns the network number the probe is attached to for a family.
func (p *Probe) ASN(family AddressFamily) ASN {
	if family == FamilyV6 {
		return p.ASNv6
	}
	return p.ASNv4
}

// SetASN records the network number for a family.
func (p *Probe) SetASN(family AddressFamily, asn ASN) {
	if family == FamilyV6 {
		p.ASNv6 = asn
		return
	}
	p.ASNv4 = asn
}

// InventoryRecord is one row of the bulk probe inventory.
type InventoryRecord struct {
	ProbeID     ProbeID
	ASNv4       ASN
	ASNv6       ASN
	CountryCode string
	IsAnchor    bool
	IsPublic    bool
	Latitude    float64
	Longitude   float64
	PrefixV4    string
	PrefixV6    string
	AddressV4   string
	AddressV6   string
	StatusCode  int
	StatusSince *time.Time
}

type EventKind string

const (
	EventConnect    EventKind = "connect"
	EventDisconnect EventKind = "disconnect"
)

// ProbeStatusEvent is a single connect or disconnect notification for a probe.
type ProbeStatusEvent struct {
	ProbeID   ProbeID
	Kind      EventKind
	ASNv4     ASN
	ASNv6     ASN
	Timestamp time.Time
}

// ASN returns the network number carried by the event for a family.
func (e ProbeStatusEvent) ASN(family AddressFamily) ASN {
	if family == FamilyV6 {
		return e.ASNv6
	}
	return e.ASNv4
}
