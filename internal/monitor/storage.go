package monitor

import (
	"sync"
	"time"

	"codeberg.org/werrin/pithermd/internal/errors"
	"codeberg.org/werrin/pithermd/internal/event"
	"codeberg.org/werrin/pithermd/internal/logger"
	"github.com/shirou/gopsutil/v3/disk"
)

// StorageConfig bounds filesystem usage for one mount, in percent. A
// critical fill level on the root filesystem of a single-board computer
// is service-threatening, so it maps to emergency severity upstream.
type StorageConfig struct {
	Interval       int     `mapstructure:"interval"` // seconds
	Mount          string  `mapstructure:"mount"`
	Warning        float64 `mapstructure:"warning"`
	Critical       float64 `mapstructure:"critical"`
	RecoveryMargin float64 `mapstructure:"recovery_margin"`
}

func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Interval:       60,
		Mount:          "/",
		Warning:        85,
		Critical:       95,
		RecoveryMargin: 2,
	}
}

func (c StorageConfig) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if c.Mount == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "mount point is required")
	}
	if c.Warning >= c.Critical {
		return errFactory.WithMessage(ErrInvalidConfig, "warning bound must be below critical bound")
	}
	if c.RecoveryMargin < 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "recovery margin must not be negative")
	}

	return nil
}

// StorageProbe abstracts the filesystem usage source.
type StorageProbe interface {
	UsedPercent(mount string) (float64, error)
}

type systemStorageProbe struct{}

func (systemStorageProbe) UsedPercent(mount string) (float64, error) {
	usage, err := disk.Usage(mount)
	if err != nil {
		return 0, errors.New().Wrap(ErrProbeFailed, err)
	}
	return usage.UsedPercent, nil
}

// StorageManager samples filesystem usage and emits edge-triggered
// storageAlert events with the same re-arm rules as the resource
// monitor.
type StorageManager struct {
	mu      sync.Mutex
	cfg     StorageConfig
	probe   StorageProbe
	handler event.Handler
	level   string
	running bool
	quit    chan struct{}
	done    chan struct{}
}

// NewStorageManager constructs the manager. A nil probe samples the
// host via gopsutil.
func NewStorageManager(cfg StorageConfig, probe StorageProbe, handler event.Handler) (*StorageManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if probe == nil {
		probe = systemStorageProbe{}
	}

	return &StorageManager{
		cfg:     cfg,
		probe:   probe,
		handler: handler,
	}, nil
}

func (m *StorageManager) Name() string { return "storage" }

func (m *StorageManager) Start() {
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

func (m *StorageManager) Stop() {
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

func (m *StorageManager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *StorageManager) loop(interval time.Duration, quit, done chan struct{}) {
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

// Check samples the configured mount once and emits any transition.
func (m *StorageManager) Check() {
	usage, err := m.probe.UsedPercent(m.cfg.Mount)
	if err != nil {
		logger.Debug().Err(err).Str("mount", m.cfg.Mount).Msg("Storage probe failed, skipping sample")
		return
	}

	m.mu.Lock()
	ev := m.transition(usage)
	m.mu.Unlock()

	if ev != nil && m.handler != nil {
		m.handler(*ev)
	}
}

func (m *StorageManager) transition(usage float64) *event.Event {
	switch {
	case usage >= m.cfg.Critical && m.level != LevelCritical:
		m.level = LevelCritical
		return m.storageEvent(usage, m.cfg.Critical, LevelCritical)
	case usage >= m.cfg.Warning && usage < m.cfg.Critical && m.level == "":
		m.level = LevelWarning
		return m.storageEvent(usage, m.cfg.Warning, LevelWarning)
	case m.level != "" && usage < m.cfg.Warning-m.cfg.RecoveryMargin:
		m.level = ""
		return m.storageEvent(usage, m.cfg.Warning, LevelRecovered)
	}

	return nil
}

func (m *StorageManager) storageEvent(usage, threshold float64, level string) *event.Event {
	return &event.Event{
		Type: event.TypeStorageAlert,
		Data: map[string]any{
			"mount":       m.cfg.Mount,
			"usedPercent": usage,
			"threshold":   threshold,
			"level":       level,
		},
		Timestamp: time.Now(),
	}
}
