package domain

import (
	"fmt"
	"time"
)

type ASN int

type AddressFamily string

const (
	FamilyV4 AddressFamily = "v4"
	FamilyV6 AddressFamily = "v6"
)

var AddressFamilies = []AddressFamily{FamilyV4, FamilyV6}

// ParseAddressFamily accepts "v4"/"v6" and the "4"/"6" shorthands.
func ParseAddressFamily(s string) (AddressFamily, error) {
	switch s {
	case "v4", "4", "ipv4":
		return FamilyV4, nil
	case "v6", "6", "ipv6":
		return FamilyV6, nil
	default:
		return "", fmt.Errorf("unknown address family %q", s)
	}
}

// NetworkKey identifies one origin network within one address family.
type NetworkKey struct {
	Family AddressFamily
	ASN    ASN
}

func (k NetworkKey) String() string {
	return fmt.Sprintf("%s/AS%d", k.Family, k.ASN)
}

// NetworkView is a read-only copy of a network's connectivity state.
type NetworkView struct {
	Key                  NetworkKey
	Connected            []ProbeID
	Disconnected         []ProbeID
	ConnectionPercentage *float64
	RecentDisconnects    map[ProbeID]time.Time
}

// NetworkFilter selects networks in a listing. Zero values match everything.
type NetworkFilter struct {
	Family AddressFamily
	// Below keeps networks whose percentage is strictly lower than the value.
	Below *float64
}
