package services

import (
	"fmt"

	"probewatch/internal/core/domain"
	"probewatch/pkg/validation"
)

func validateInventoryRecord(r domain.InventoryRecord) error {
	if err := validation.ValidateProbeID(int(r.ProbeID)); err != nil {
		return err
	}
	if err := validation.ValidateASN(int(r.ASNv4)); err != nil {
		return fmt.Errorf("asn_v4: %w", err)
	}
	if err := validation.ValidateASN(int(r.ASNv6)); err != nil {
		return fmt.Errorf("asn_v6: %w", err)
	}
	return validation.ValidateStatusCode(r.StatusCode)
}

func validateStatusEvent(ev domain.ProbeStatusEvent) error {
	if err := validation.ValidateProbeID(int(ev.ProbeID)); err != nil {
		return err
	}
	if ev.Kind != domain.EventConnect && ev.Kind != domain.EventDisconnect {
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	if err := validation.ValidateASN(int(ev.ASNv4)); err != nil {
		return fmt.Errorf("asn_v4: %w", err)
	}
	if err := validation.ValidateASN(int(ev.ASNv6)); err != nil {
		return fmt.Errorf("asn_v6: %w", err)
	}
	return validation.ValidateTimestamp(ev.Timestamp, "timestamp")
}

func validateSnapshot(s *domain.MeasurementSnapshot) error {
	if s == nil {
		return fmt.Errorf("snapshot is nil")
	}
	if err := validation.ValidateProbeID(int(s.ProbeID)); err != nil {
		return err
	}
	return validation.ValidateTimestamp(s.Timestamp, "timestamp")
}
