package orchestrator

import (
	"fmt"

	"codeberg.org/werrin/pithermd/internal/event"
	"codeberg.org/werrin/pithermd/internal/monitor"
	"codeberg.org/werrin/pithermd/internal/thermal"
)

// severityFor classifies a component event for logging and propagation.
// pause_services and a critically full filesystem threaten the hardware
// or the platform itself and escalate to emergency; everything else
// grades down from critical to info.
func severityFor(ev event.Event) event.Severity {
	switch ev.Type {
	case event.TypeThermalEmergency:
		return event.SeverityEmergency
	case event.TypeThermalThrottling:
		if dataString(ev, "action") == string(thermal.ActionReduce50) {
			return event.SeverityCritical
		}
		return event.SeverityWarning
	case event.TypeThermalRecovery, event.TypeFanControlRequested:
		return event.SeverityInfo
	case event.TypeResourceAlert:
		switch dataString(ev, "level") {
		case monitor.LevelCritical:
			return event.SeverityCritical
		case monitor.LevelWarning:
			return event.SeverityWarning
		default:
			return event.SeverityInfo
		}
	case event.TypeStorageAlert:
		switch dataString(ev, "level") {
		case monitor.LevelCritical:
			return event.SeverityEmergency
		case monitor.LevelWarning:
			return event.SeverityWarning
		default:
			return event.SeverityInfo
		}
	default:
		return event.SeverityInfo
	}
}

// subtypeFor extracts the discriminating field of a component event:
// the action for thermal events, the alert level for monitor events.
func subtypeFor(ev event.Event) string {
	if s := dataString(ev, "action"); s != "" {
		return s
	}
	return dataString(ev, "level")
}

func messageFor(source string, ev event.Event) string {
	switch ev.Type {
	case event.TypeThermalThrottling:
		return fmt.Sprintf("thermal throttling: %s at %.1f°C", dataString(ev, "action"), dataFloat(ev, "temperature"))
	case event.TypeThermalEmergency:
		return fmt.Sprintf("thermal emergency: pausing services at %.1f°C", dataFloat(ev, "temperature"))
	case event.TypeThermalRecovery:
		return fmt.Sprintf("thermal recovery at %.1f°C", dataFloat(ev, "temperature"))
	case event.TypeFanControlRequested:
		return "fan control requested"
	case event.TypeResourceAlert:
		return fmt.Sprintf("%s %s: %.1f%% used", dataString(ev, "resource"), dataString(ev, "level"), dataFloat(ev, "usage"))
	case event.TypeStorageAlert:
		return fmt.Sprintf("storage %s: %s %.1f%% used", dataString(ev, "level"), dataString(ev, "mount"), dataFloat(ev, "usedPercent"))
	default:
		return fmt.Sprintf("%s event from %s", ev.Type, source)
	}
}

func dataString(ev event.Event, key string) string {
	if s, ok := ev.Data[key].(string); ok {
		return s
	}
	return ""
}

func dataFloat(ev event.Event, key string) float64 {
	if f, ok := ev.Data[key].(float64); ok {
		return f
	}
	return 0
}
