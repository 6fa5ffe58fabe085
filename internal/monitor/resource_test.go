package monitor_test

import (
	"sync"
	"testing"

	"codeberg.org/werrin/pithermd/internal/event"
	"codeberg.org/werrin/pithermd/internal/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResourceProbe struct {
	mu  sync.Mutex
	cpu float64
	mem float64
	err error
}

func (p *stubResourceProbe) CPUPercent() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cpu, p.err
}

func (p *stubResourceProbe) MemoryPercent() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mem, p.err
}

func (p *stubResourceProbe) set(cpu, mem float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cpu = cpu
	p.mem = mem
}

type eventSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *eventSink) handler() event.Handler {
	return func(ev event.Event) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.events = append(s.events, ev)
	}
}

func (s *eventSink) all() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.events...)
}

func (s *eventSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func resourceConfig() monitor.ResourceConfig {
	return monitor.ResourceConfig{
		Interval:       3600,
		CPUWarning:     80,
		CPUCritical:    95,
		MemoryWarning:  85,
		MemoryCritical: 95,
		RecoveryMargin: 5,
	}
}

func TestResourceConfigValidate(t *testing.T) {
	require.NoError(t, monitor.DefaultResourceConfig().Validate())

	cfg := resourceConfig()
	cfg.Interval = 0
	require.Error(t, cfg.Validate())

	cfg = resourceConfig()
	cfg.CPUWarning = 96
	require.Error(t, cfg.Validate())

	cfg = resourceConfig()
	cfg.RecoveryMargin = -1
	require.Error(t, cfg.Validate())
}

func TestResourceAlertTransitions(t *testing.T) {
	probe := &stubResourceProbe{cpu: 10, mem: 10}
	sink := &eventSink{}
	m, err := monitor.NewResourceMonitor(resourceConfig(), probe, sink.handler())
	require.NoError(t, err)

	// Below every bound: silence
	m.Check()
	assert.Zero(t, sink.count())

	// Crossing the warning bound fires once
	probe.set(85, 10)
	m.Check()
	m.Check()
	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, event.TypeResourceAlert, events[0].Type)
	assert.Equal(t, "cpu", events[0].Data["resource"])
	assert.Equal(t, monitor.LevelWarning, events[0].Data["level"])

	// Escalating to critical fires once
	probe.set(96, 10)
	m.Check()
	m.Check()
	events = sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, monitor.LevelCritical, events[1].Data["level"])

	// Back under warning but above the re-arm bound: silence
	probe.set(78, 10)
	m.Check()
	assert.Equal(t, 2, sink.count())

	// Below warning minus margin: recovered, alert re-armed
	probe.set(70, 10)
	m.Check()
	events = sink.all()
	require.Len(t, events, 3)
	assert.Equal(t, monitor.LevelRecovered, events[2].Data["level"])

	probe.set(85, 10)
	m.Check()
	assert.Equal(t, 4, sink.count())
}

func TestResourceMemoryAlert(t *testing.T) {
	probe := &stubResourceProbe{cpu: 10, mem: 96}
	sink := &eventSink{}
	m, err := monitor.NewResourceMonitor(resourceConfig(), probe, sink.handler())
	require.NoError(t, err)

	m.Check()
	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "memory", events[0].Data["resource"])
	assert.Equal(t, monitor.LevelCritical, events[0].Data["level"])
}

func TestResourceProbeFailureIsDegraded(t *testing.T) {
	probe := &stubResourceProbe{err: assert.AnError}
	sink := &eventSink{}
	m, err := monitor.NewResourceMonitor(resourceConfig(), probe, sink.handler())
	require.NoError(t, err)

	m.Check()
	assert.Zero(t, sink.count())
}

func TestResourceMonitorLifecycle(t *testing.T) {
	cfg := resourceConfig()
	cfg.Interval = 1
	probe := &stubResourceProbe{cpu: 10, mem: 10}
	m, err := monitor.NewResourceMonitor(cfg, probe, nil)
	require.NoError(t, err)

	assert.Equal(t, "resource", m.Name())
	assert.False(t, m.Running())

	m.Stop() // no-op before start

	m.Start()
	m.Start() // idempotent
	assert.True(t, m.Running())

	m.Stop()
	assert.False(t, m.Running())
	m.Stop() // idempotent
}
