// Package monitor holds the sibling samplers supervised next to the
// thermal controller: periodic probes that emit typed events when a
// configured bound is crossed. Each monitor owns its state and timer
// exclusively; consumers only subscribe to events.
package monitor

// Monitor is the lifecycle contract shared by all periodic samplers.
type Monitor interface {
	Name() string
	Start()
	Stop()
	Running() bool
}

// Alert levels carried in event data.
const (
	LevelWarning   = "warning"
	LevelCritical  = "critical"
	LevelRecovered = "recovered"
)
