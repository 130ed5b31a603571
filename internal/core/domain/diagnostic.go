package domain

type DiagnosticCode string

const (
	DiagMalformedInput       DiagnosticCode = "malformed_input"
	DiagUnknownReference     DiagnosticCode = "unknown_reference"
	DiagInventoryUnavailable DiagnosticCode = "inventory_unavailable"
	DiagStaleData            DiagnosticCode = "stale_data"
	DiagOutOfOrder           DiagnosticCode = "out_of_order"
	DiagFirstObservation     DiagnosticCode = "first_observation"
	DiagNetworkMigrated      DiagnosticCode = "network_migrated"
)

type DiagnosticLevel string

const (
	LevelDebug DiagnosticLevel = "debug"
	LevelInfo  DiagnosticLevel = "info"
	LevelWarn  DiagnosticLevel = "warn"
)

// Diagnostic describes something noteworthy that happened while handling one input.
// The core returns diagnostics; the caller decides how to surface them.
type Diagnostic struct {
	Code    DiagnosticCode
	Level   DiagnosticLevel
	Message string
	Fields  map[string]interface{}
}

// Outcome is the result of handling one event or snapshot.
type Outcome struct {
	Alerts      []Alert
	Diagnostics []Diagnostic
}

// AddAlert appends an alert.
func (o *Outcome) AddAlert(a Alert) {
	o.Alerts = append(o.Alerts, a)
}

// Diagnose appends a diagnostic.
func (o *Outcome) Diagnose(code DiagnosticCode, level DiagnosticLevel, message string, fields map[string]interface{}) {
	o.Diagnostics = append(o.Diagnostics, Diagnostic{
		Code:    code,
		Level:   level,
		Message: message,
		Fields:  fields,
	})
}
