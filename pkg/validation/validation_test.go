package validation

import (
	"testing"
	"time"
)

func TestValidateProbeID(t *testing.T) {
	tests := []struct {
		name    string
		id      int
		wantErr bool
	}{
		{"valid", 1234, false},
		{"zero", 0, true},
		{"negative", -5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProbeID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProbeID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateASN(t *testing.T) {
	tests := []struct {
		name    string
		asn     int
		wantErr bool
	}{
		{"not attached", 0, false},
		{"16-bit", 3333, false},
		{"32-bit max", MaxASN, false},
		{"negative", -1, true},
		{"too large", MaxASN + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateASN(tt.asn)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateASN() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateStatusCode(t *testing.T) {
	for code := 1; code <= 4; code++ {
		if err := ValidateStatusCode(code); err != nil {
			t.Errorf("ValidateStatusCode(%d) unexpected error: %v", code, err)
		}
	}
	for _, code := range []int{0, 5, -1} {
		if err := ValidateStatusCode(code); err == nil {
			t.Errorf("ValidateStatusCode(%d) expected error", code)
		}
	}
}

func TestValidateCountryCode(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
	}{
		{"valid", "NL", false},
		{"empty allowed", "", false},
		{"lowercase", "nl", true},
		{"too long", "NLD", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCountryCode(tt.code)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCountryCode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCoordinates(t *testing.T) {
	tests := []struct {
		name     string
		lat, lng float64
		wantErr  bool
	}{
		{"amsterdam", 52.37, 4.89, false},
		{"bounds", -90, 180, false},
		{"latitude out of range", 91, 0, true},
		{"longitude out of range", 0, -181, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCoordinates(tt.lat, tt.lng)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCoordinates() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateIPAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"ipv4", "193.0.14.129", false},
		{"ipv6", "2001:7fd::1", false},
		{"empty allowed", "", false},
		{"hostname", "k.root-servers.net", true},
		{"garbage", "300.1.1.1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIPAddress(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIPAddress() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTimestamp(t *testing.T) {
	if err := ValidateTimestamp(time.Unix(1700000000, 0), "timestamp"); err != nil {
		t.Errorf("ValidateTimestamp() unexpected error: %v", err)
	}
	if err := ValidateTimestamp(time.Time{}, "timestamp"); err == nil {
		t.Error("ValidateTimestamp() expected error for zero time")
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid https", "https://atlas.ripe.net", false},
		{"valid wss", "wss://atlas-stream.ripe.net/stream/", false},
		{"empty", "", true},
		{"invalid scheme", "ftp://example.com", true},
		{"no host", "http://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRedisChannel(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		wantErr bool
	}{
		{"valid", "probewatch:alerts", false},
		{"dotted", "alerts.v1", false},
		{"empty", "", true},
		{"spaces", "probe watch", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRedisChannel(tt.channel)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRedisChannel() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNonEmptyString(t *testing.T) {
	if err := ValidateNonEmptyString("  ", "name"); err == nil {
		t.Error("ValidateNonEmptyString() expected error for blank string")
	}
	if err := ValidateNonEmptyString("x", "name"); err != nil {
		t.Errorf("ValidateNonEmptyString() unexpected error: %v", err)
	}
}
