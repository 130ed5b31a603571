package validation

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var (
	// CountryCodeRegex validates ISO 3166-1 alpha-2 codes
	CountryCodeRegex = regexp.MustCompile(`^[A-Z]{2}$`)

	// RedisChannelRegex validates pub/sub channel names
	RedisChannelRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)
)

// MaxASN is the largest 32-bit autonomous system number
const MaxASN = 4294967295

// ValidateProbeID validates probe ID
func ValidateProbeID(id int) error {
	if id <= 0 {
		return fmt.Errorf("probe ID must be positive, got %d", id)
	}
	return nil
}

// ValidateMeasurementID validates measurement ID
func ValidateMeasurementID(id int) error {
	if id <= 0 {
		return fmt.Errorf("measurement ID must be positive, got %d", id)
	}
	return nil
}

// ValidateASN validates an autonomous system number, 0 meaning "not attached"
func ValidateASN(asn int) error {
	if asn < 0 {
		return fmt.Errorf("ASN must not be negative, got %d", asn)
	}
	if asn > MaxASN {
		return fmt.Errorf("ASN is too large (max %d), got %d", MaxASN, asn)
	}
	return nil
}

// ValidateStatusCode validates inventory status code
func ValidateStatusCode(code int) error {
	if code < 1 || code > 4 {
		return fmt.Errorf("status code must be between 1 and 4, got %d", code)
	}
	return nil
}

// ValidateCountryCode validates country code, empty is allowed
func ValidateCountryCode(code string) error {
	if code == "" {
		return nil
	}
	if !CountryCodeRegex.MatchString(code) {
		return fmt.Errorf("invalid country code %q", code)
	}
	return nil
}

// ValidateCoordinates validates latitude and longitude
func ValidateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude out of range: %v", lat)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude out of range: %v", lng)
	}
	return nil
}

// ValidateIPAddress validates an IP address, empty is allowed
func ValidateIPAddress(addr string) error {
	if addr == "" {
		return nil
	}
	if net.ParseIP(addr) == nil {
		return fmt.Errorf("invalid IP address %q", addr)
	}
	return nil
}

// ValidateTimestamp validates that a timestamp is set
func ValidateTimestamp(ts time.Time, fieldName string) error {
	if ts.IsZero() {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateRedisChannel validates a pub/sub channel name
func ValidateRedisChannel(channel string) error {
	if channel == "" {
		return fmt.Errorf("channel is required")
	}
	if !RedisChannelRegex.MatchString(channel) {
		return fmt.Errorf("invalid channel name %q", channel)
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}
