package monitor

import (
	"sync"
	"time"

	"codeberg.org/werrin/pithermd/internal/errors"
	"codeberg.org/werrin/pithermd/internal/event"
	"codeberg.org/werrin/pithermd/internal/logger"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceConfig bounds CPU and memory utilization, in percent.
type ResourceConfig struct {
	Interval       int     `mapstructure:"interval"` // seconds
	CPUWarning     float64 `mapstructure:"cpu_warning"`
	CPUCritical    float64 `mapstructure:"cpu_critical"`
	MemoryWarning  float64 `mapstructure:"memory_warning"`
	MemoryCritical float64 `mapstructure:"memory_critical"`
	RecoveryMargin float64 `mapstructure:"recovery_margin"`
}

// DefaultResourceConfig returns bounds suited to a small board where
// sustained high memory pressure is more dangerous than CPU load.
func DefaultResourceConfig() ResourceConfig {
	return ResourceConfig{
		Interval:       30,
		CPUWarning:     80,
		CPUCritical:    95,
		MemoryWarning:  85,
		MemoryCritical: 95,
		RecoveryMargin: 5,
	}
}

func (c ResourceConfig) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.CPUWarning >= c.CPUCritical || c.MemoryWarning >= c.MemoryCritical {
		return errFactory.WithMessage(ErrInvalidConfig, "warning bound must be below critical bound")
	}
	if c.RecoveryMargin < 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "recovery margin must not be negative")
	}

	return nil
}

// ResourceProbe abstracts the utilization sources so tests can stub them.
type ResourceProbe interface {
	CPUPercent() (float64, error)
	MemoryPercent() (float64, error)
}

type systemResourceProbe struct{}

func (systemResourceProbe) CPUPercent() (float64, error) {
	values, err := cpu.Percent(0, false)
	if err != nil {
		return 0, errors.New().Wrap(ErrProbeFailed, err)
	}
	if len(values) == 0 {
		return 0, errors.New().WithMessage(ErrProbeFailed, "no cpu utilization reported")
	}
	return values[0], nil
}

func (systemResourceProbe) MemoryPercent() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, errors.New().Wrap(ErrProbeFailed, err)
	}
	return vm.UsedPercent, nil
}

// ResourceMonitor samples CPU and memory utilization and emits
// edge-triggered resourceAlert events. An alert re-arms only once usage
// falls a recovery margin below the warning bound, so a value hovering
// around a bound does not flap.
type ResourceMonitor struct {
	mu      sync.Mutex
	cfg     ResourceConfig
	probe   ResourceProbe
	handler event.Handler
	levels  map[string]string
	running bool
	quit    chan struct{}
	done    chan struct{}
}

// NewResourceMonitor constructs the monitor. A nil probe samples the
// host via gopsutil.
func NewResourceMonitor(cfg ResourceConfig, probe ResourceProbe, handler event.Handler) (*ResourceMonitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if probe == nil {
		probe = systemResourceProbe{}
	}

	return &ResourceMonitor{
		cfg:     cfg,
		probe:   probe,
		handler: handler,
		levels:  make(map[string]string),
	}, nil
}

func (m *ResourceMonitor) Name() string { return "resource" }

func (m *ResourceMonitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	quit := make(chan struct{})
	done := make(chan struct{})
	m.quit = quit
	m.done = done
	interval := time.Duration(m.cfg.Interval) * time.Second
	m.mu.Unlock()

	go m.loop(interval, quit, done)
}

func (m *ResourceMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	quit := m.quit
	done := m.done
	m.quit = nil
	m.done = nil
	m.mu.Unlock()

	close(quit)
	<-done
}

func (m *ResourceMonitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *ResourceMonitor) loop(interval time.Duration, quit, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

// Check samples both resources once and emits any alert transitions.
func (m *ResourceMonitor) Check() {
	if usage, err := m.probe.CPUPercent(); err != nil {
		logger.Debug().Err(err).Msg("CPU probe failed, skipping sample")
	} else {
		m.deliver(m.transition("cpu", usage, m.cfg.CPUWarning, m.cfg.CPUCritical))
	}

	if usage, err := m.probe.MemoryPercent(); err != nil {
		logger.Debug().Err(err).Msg("Memory probe failed, skipping sample")
	} else {
		m.deliver(m.transition("memory", usage, m.cfg.MemoryWarning, m.cfg.MemoryCritical))
	}
}

// transition applies the edge-trigger rules for one resource and
// returns the event to emit, if any. De-escalation happens only on full
// recovery below the warning bound minus the margin.
func (m *ResourceMonitor) transition(resource string, usage, warning, critical float64) *event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	level := m.levels[resource]

	switch {
	case usage >= critical && level != LevelCritical:
		m.levels[resource] = LevelCritical
		return resourceEvent(resource, usage, critical, LevelCritical)
	case usage >= warning && usage < critical && level == "":
		m.levels[resource] = LevelWarning
		return resourceEvent(resource, usage, warning, LevelWarning)
	case level != "" && usage < warning-m.cfg.RecoveryMargin:
		delete(m.levels, resource)
		return resourceEvent(resource, usage, warning, LevelRecovered)
	}

	return nil
}

func (m *ResourceMonitor) deliver(ev *event.Event) {
	if ev == nil || m.handler == nil {
		return
	}
	m.handler(*ev)
}

func resourceEvent(resource string, usage, threshold float64, level string) *event.Event {
	return &event.Event{
		Type: event.TypeResourceAlert,
		Data: map[string]any{
			"resource":  resource,
			"usage":     usage,
			"threshold": threshold,
			"level":     level,
		},
		Timestamp: time.Now(),
	}
}
