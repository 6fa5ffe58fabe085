package event

import "time"

// Type identifies an event on the wire. Component types are wrapped into
// SystemEvent envelopes by the orchestrator before they leave the process.
type Type string

const (
	// Thermal controller events
	TypeThermalThrottling   Type = "thermalThrottling"
	TypeThermalEmergency    Type = "thermalEmergency"
	TypeThermalRecovery     Type = "thermalRecovery"
	TypeFanControlRequested Type = "fanControlRequested"

	// Sibling monitor events
	TypeResourceAlert Type = "resourceAlert"
	TypeStorageAlert  Type = "storageAlert"

	// Orchestrator-level events
	TypeSystemEvent     Type = "systemEvent"
	TypeSystemEmergency Type = "systemEmergency"
)

// Severity classifies an aggregated event for logging and propagation.
type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Event is a raw component event as emitted by a monitor.
type Event struct {
	Type      Type           `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Handler receives component events. Implementations must not block: a
// monitor delivers from its own sampling loop and a slow handler would
// stall the loop it was registered with.
type Handler func(Event)

// SystemEvent is the orchestrator envelope around a component event.
type SystemEvent struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Subtype   string         `json:"subtype,omitempty"`
	Severity  Severity       `json:"severity"`
	Source    string         `json:"source"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// SystemEmergency is the one-way notification delivered to the host
// process when an aggregated event carries emergency severity.
type SystemEmergency struct {
	Type      Type           `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
