package ports

import (
	"context"
	"time"

	"probewatch/internal/core/domain"
)

// AlertSink receives every alert raised by the engine.
type AlertSink interface {
	Dispatch(ctx context.Context, alert domain.Alert) error
	Name() string
}

// InventoryProvider fetches the bulk probe inventory used to seed the tracker.
type InventoryProvider interface {
	FetchInventory(ctx context.Context) ([]domain.InventoryRecord, error)
}

// MeasurementProvider reads measurement metadata and results from the Atlas REST API.
type MeasurementProvider interface {
	MeasurementInterval(ctx context.Context, msm domain.MeasurementID) (time.Duration, error)
	LatestResults(ctx context.Context, msm domain.MeasurementID, probes []domain.ProbeID) ([]*domain.MeasurementSnapshot, error)
	LastResult(ctx context.Context, msm domain.MeasurementID, probe domain.ProbeID) (*domain.MeasurementSnapshot, error)
}

// EventSink is what event sources feed. The engine implements it.
type EventSink interface {
	SubmitStatus(ctx context.Context, ev domain.ProbeStatusEvent) error
	SubmitSnapshot(ctx context.Context, snap *domain.MeasurementSnapshot) error
}

// EngineMetrics is the metrics surface the engine reports to.
type EngineMetrics interface {
	RecordEvent(eventType string, duration time.Duration)
	RecordAlert(kind domain.AlertKind)
	RecordDiagnostic(code domain.DiagnosticCode)
	SetNetworkPercentage(key domain.NetworkKey, percentage float64)
	SetInventoryProbes(count int)
	RecordDispatchFailure(sink string)
}

// ConnectivityReader answers read-only queries about tracker state.
type ConnectivityReader interface {
	Probe(ctx context.Context, id domain.ProbeID) (domain.Probe, error)
	Network(ctx context.Context, key domain.NetworkKey) (domain.NetworkView, error)
	Networks(ctx context.Context, filter domain.NetworkFilter) ([]domain.NetworkView, error)
}
