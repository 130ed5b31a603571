package atlas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"probewatch/internal/core/domain"
)

const (
	inventoryPath    = "/api/v2/probes/all"
	inventoryColumns = 14
)

// Column layout of one /probes/all row.
const (
	colID = iota
	colASNv4
	colASNv6
	colCountry
	colAnchor
	colPublic
	colLat
	colLng
	colPrefixV4
	colPrefixV6
	colAddressV4
	colAddressV6
	colStatus
	colStatusSince
)

type inventoryResponse struct {
	Probes []json.RawMessage `json:"probes"`
}

// FetchInventory downloads the bulk probe inventory. Rows that cannot be
// decoded are skipped and logged.
func (c *Client) FetchInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	var resp inventoryResponse
	if err := c.getJSON(ctx, inventoryPath, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch probe inventory: %w", err)
	}

	records, skipped := decodeInventory(resp.Probes)
	if skipped > 0 {
		c.logger.Warnw("skipped malformed inventory rows", "skipped", skipped, "decoded", len(records))
	}
	if len(records) == 0 {
		if skipped > 0 {
			return nil, fmt.Errorf("%w: no decodable rows out of %d", domain.ErrMalformedInventory, skipped)
		}
		return nil, domain.ErrEmptyInventory
	}
	return records, nil
}

func decodeInventory(rows []json.RawMessage) ([]domain.InventoryRecord, int) {
	records := make([]domain.InventoryRecord, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		r, err := decodeInventoryRow(row)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, r)
	}
	return records, skipped
}

func decodeInventoryRow(row json.RawMessage) (domain.InventoryRecord, error) {
	var cols []json.RawMessage
	if err := json.Unmarshal(row, &cols); err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("row is not an array: %w", err)
	}
	if len(cols) < inventoryColumns {
		return domain.InventoryRecord{}, fmt.Errorf("row has %d columns, want %d", len(cols), inventoryColumns)
	}

	id, err := intColumn(cols[colID])
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("id: %w", err)
	}
	status, err := intColumn(cols[colStatus])
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("status: %w", err)
	}

	r := domain.InventoryRecord{
		ProbeID:     domain.ProbeID(id),
		ASNv4:       domain.ASN(optionalInt(cols[colASNv4])),
		ASNv6:       domain.ASN(optionalInt(cols[colASNv6])),
		CountryCode: optionalString(cols[colCountry]),
		IsAnchor:    optionalInt(cols[colAnchor]) == 1,
		IsPublic:    optionalInt(cols[colPublic]) == 1,
		Latitude:    optionalFloat(cols[colLat]),
		Longitude:   optionalFloat(cols[colLng]),
		PrefixV4:    optionalString(cols[colPrefixV4]),
		PrefixV6:    optionalString(cols[colPrefixV6]),
		AddressV4:   optionalString(cols[colAddressV4]),
		AddressV6:   optionalString(cols[colAddressV6]),
		StatusCode:  status,
	}
	if since := optionalInt(cols[colStatusSince]); since > 0 {
		ts := time.Unix(int64(since), 0).UTC()
		r.StatusSince = &ts
	}
	return r, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func intColumn(raw json.RawMessage) (int, error) {
	if isNull(raw) {
		return 0, fmt.Errorf("value is null")
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// optionalInt treats null and non-numeric values as 0.
func optionalInt(raw json.RawMessage) int {
	v, err := intColumn(raw)
	if err != nil {
		return 0
	}
	return v
}

func optionalFloat(raw json.RawMessage) float64 {
	if isNull(raw) {
		return 0
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	return v
}

// optionalString returns "" for null and for the 0 placeholder used for
// missing prefixes and addresses.
func optionalString(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v
}
