package domain

import "time"

type AlertKind string

const (
	AlertProbeTransition               AlertKind = "ProbeTransition"
	AlertNetworkDegraded               AlertKind = "NetworkDegraded"
	AlertNetworkOffline                AlertKind = "NetworkOffline"
	AlertNetworkRecovering             AlertKind = "NetworkRecovering"
	AlertNetworkRapidDisconnect        AlertKind = "NetworkRapidDisconnect"
	AlertHopsNumberChanged             AlertKind = "HopsNumberChanged"
	AlertHostPartiallyUnreachable      AlertKind = "HostPartiallyUnreachable"
	AlertHostPartiallyReachable        AlertKind = "HostPartiallyReachable"
	AlertRttMedianChanged              AlertKind = "RttMedianChanged"
	AlertFromFieldDifferentInAttempts  AlertKind = "FromFieldDifferentInAttempts"
	AlertFromFieldDifferentThanGeneral AlertKind = "FromFieldDifferentThanGeneral"
)

// Degradation severities carried in NetworkDegraded payloads.
const (
	SeverityMajorityLoss = "majority-loss"
	SeverityRapidDrop    = "rapid-drop"
)

// Alert is a transient signal handed to the alert sink.
type Alert struct {
	Kind           AlertKind              `json:"kind"`
	Payload        map[string]interface{} `json:"payload"`
	CorrelationKey string                 `json:"correlation_key"`
	OccurredAt     time.Time              `json:"occurred_at"`
}
