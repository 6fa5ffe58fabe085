package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"codeberg.org/werrin/pithermd/internal/errors"
	"codeberg.org/werrin/pithermd/internal/event"
	"codeberg.org/werrin/pithermd/internal/monitor"
	"codeberg.org/werrin/pithermd/internal/thermal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	mu   sync.Mutex
	temp float64
}

func (s *stubSource) Read() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.temp, nil
}

func (s *stubSource) set(temp float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.temp = temp
}

type stubRecorder struct {
	mu     sync.Mutex
	events []event.SystemEvent
}

func (r *stubRecorder) Record(_ context.Context, ev *event.SystemEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *ev)
	return nil
}

func (r *stubRecorder) Close() error { return nil }

func (r *stubRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// thermalOnlyConfig keeps the sampling loops effectively idle so tests
// drive evaluations through ForceThermalCheck.
func thermalOnlyConfig() Config {
	policy := thermal.DefaultPolicy()
	policy.Monitoring.Interval = 3600

	return Config{
		ThermalEnabled: true,
		Thermal:        policy,
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	assert.Equal(t, DefaultEventHistorySize, cfg.EventHistorySize)
	assert.Equal(t, defaultBusBuffer, cfg.BusBuffer)
	assert.Equal(t, thermal.DefaultPolicy(), cfg.Thermal)
	assert.Equal(t, monitor.DefaultResourceConfig(), cfg.Resource)
	assert.Equal(t, monitor.DefaultStorageConfig(), cfg.Storage)

	custom := Config{EventHistorySize: 10, Thermal: thermalOnlyConfig().Thermal}.withDefaults()
	assert.Equal(t, 10, custom.EventHistorySize)
	assert.Equal(t, 3600, custom.Thermal.Monitoring.Interval)
}

func TestLifecycle(t *testing.T) {
	o := New(thermalOnlyConfig(), Options{ThermalSource: &stubSource{temp: 45}})

	assert.False(t, o.Running())

	require.NoError(t, o.Start())
	assert.True(t, o.Running())

	err := o.Start()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrAlreadyStarted))

	status := o.Status()
	assert.True(t, status.Running)
	assert.True(t, status.Components["thermal"])
	require.NotNil(t, status.Thermal)
	assert.False(t, status.Thermal.ActiveThrottling)

	o.Stop()
	assert.False(t, o.Running())
	o.Stop()
}

func TestThermalOperationsRequireStart(t *testing.T) {
	o := New(thermalOnlyConfig(), Options{ThermalSource: &stubSource{temp: 45}})

	_, err := o.ForceThermalCheck()
	assert.True(t, errors.HasCode(err, ErrNotStarted))

	_, err = o.ThermalStatus()
	assert.True(t, errors.HasCode(err, ErrNotStarted))

	err = o.SetThermalPolicy(thermal.DefaultPolicy())
	assert.True(t, errors.HasCode(err, ErrNotStarted))

	require.NoError(t, o.Start())
	o.Stop()

	_, err = o.ForceThermalCheck()
	assert.True(t, errors.HasCode(err, ErrNotStarted))
}

func TestStartupRollback(t *testing.T) {
	cfg := thermalOnlyConfig()
	cfg.ResourceEnabled = true
	cfg.Resource = monitor.ResourceConfig{Interval: -1, CPUWarning: 80, CPUCritical: 95, MemoryWarning: 85, MemoryCritical: 95}

	o := New(cfg, Options{ThermalSource: &stubSource{temp: 45}})

	err := o.Start()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrStartupFailed))
	assert.False(t, o.Running())
	assert.Empty(t, o.Status().Components)
}

func TestEventAggregation(t *testing.T) {
	src := &stubSource{temp: 45}
	rec := &stubRecorder{}
	o := New(thermalOnlyConfig(), Options{ThermalSource: src, Recorder: rec})

	require.NoError(t, o.Start())
	defer o.Stop()

	src.set(72)
	status, err := o.ForceThermalCheck()
	require.NoError(t, err)
	assert.True(t, status.ActiveThrottling)

	require.Eventually(t, func() bool { return o.Status().EventCount == 1 }, time.Second, 10*time.Millisecond)

	events := o.RecentEvents(0)
	require.Len(t, events, 1)
	se := events[0]
	assert.Equal(t, "evt-1", se.ID)
	assert.Equal(t, event.TypeThermalThrottling, se.Type)
	assert.Equal(t, string(thermal.ActionReduce25), se.Subtype)
	assert.Equal(t, event.SeverityWarning, se.Severity)
	assert.Equal(t, "thermal", se.Source)
	assert.Equal(t, 72.0, se.Data["temperature"])

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestEmergencyPropagation(t *testing.T) {
	src := &stubSource{temp: 45}
	emergencies := make(chan event.SystemEmergency, 1)

	o := New(thermalOnlyConfig(), Options{
		ThermalSource: src,
		OnEmergency:   func(e event.SystemEmergency) { emergencies <- e },
	})
	require.NoError(t, o.Start())
	defer o.Stop()

	src.set(81)
	_, err := o.ForceThermalCheck()
	require.NoError(t, err)

	select {
	case e := <-emergencies:
		assert.Equal(t, event.TypeThermalEmergency, e.Type)
		assert.Equal(t, 81.0, e.Data["temperature"])
	case <-time.After(time.Second):
		t.Fatal("emergency callback not invoked")
	}
}

func TestNoEventsAfterStop(t *testing.T) {
	src := &stubSource{temp: 45}
	o := New(thermalOnlyConfig(), Options{ThermalSource: src})
	require.NoError(t, o.Start())

	src.set(72)
	_, err := o.ForceThermalCheck()
	require.NoError(t, err)

	o.Stop()
	count := o.Status().EventCount

	// The handler closure may outlive the components; publishing into a
	// closed bus must be a silent no-op.
	o.handlerFor("thermal")(event.Event{Type: event.TypeThermalRecovery})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, count, o.Status().EventCount)
}

func TestSeverityMapping(t *testing.T) {
	cases := []struct {
		name string
		ev   event.Event
		want event.Severity
	}{
		{"emergency", event.Event{Type: event.TypeThermalEmergency}, event.SeverityEmergency},
		{"reduce 50", event.Event{Type: event.TypeThermalThrottling, Data: map[string]any{"action": "reduce_50"}}, event.SeverityCritical},
		{"reduce 25", event.Event{Type: event.TypeThermalThrottling, Data: map[string]any{"action": "reduce_25"}}, event.SeverityWarning},
		{"recovery", event.Event{Type: event.TypeThermalRecovery}, event.SeverityInfo},
		{"fan control", event.Event{Type: event.TypeFanControlRequested}, event.SeverityInfo},
		{"resource critical", event.Event{Type: event.TypeResourceAlert, Data: map[string]any{"level": monitor.LevelCritical}}, event.SeverityCritical},
		{"resource warning", event.Event{Type: event.TypeResourceAlert, Data: map[string]any{"level": monitor.LevelWarning}}, event.SeverityWarning},
		{"resource recovered", event.Event{Type: event.TypeResourceAlert, Data: map[string]any{"level": monitor.LevelRecovered}}, event.SeverityInfo},
		{"storage critical", event.Event{Type: event.TypeStorageAlert, Data: map[string]any{"level": monitor.LevelCritical}}, event.SeverityEmergency},
		{"storage warning", event.Event{Type: event.TypeStorageAlert, Data: map[string]any{"level": monitor.LevelWarning}}, event.SeverityWarning},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, severityFor(tc.ev))
		})
	}
}

func TestSubtypeFor(t *testing.T) {
	assert.Equal(t, "reduce_25",
		subtypeFor(event.Event{Data: map[string]any{"action": "reduce_25"}}))
	assert.Equal(t, monitor.LevelWarning,
		subtypeFor(event.Event{Data: map[string]any{"level": monitor.LevelWarning}}))
	assert.Empty(t, subtypeFor(event.Event{}))
}
