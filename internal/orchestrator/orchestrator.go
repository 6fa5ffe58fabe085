package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/werrin/pithermd/internal/errors"
	"codeberg.org/werrin/pithermd/internal/event"
	"codeberg.org/werrin/pithermd/internal/logger"
	"codeberg.org/werrin/pithermd/internal/monitor"
	"codeberg.org/werrin/pithermd/internal/telemetry"
	"codeberg.org/werrin/pithermd/internal/thermal"
)

const (
	// DefaultEventHistorySize bounds the retained system events.
	DefaultEventHistorySize = 200

	defaultBusBuffer = 64
)

// Config enables components and sizes the aggregation layer. Zero
// values take the documented defaults, field by field; there is no deep
// merge of partial structures.
type Config struct {
	ThermalEnabled   bool
	ResourceEnabled  bool
	StorageEnabled   bool
	EventHistorySize int
	BusBuffer        int
	Thermal          thermal.Policy
	Resource         monitor.ResourceConfig
	Storage          monitor.StorageConfig
}

// DefaultConfig enables every component with its stock configuration.
func DefaultConfig() Config {
	return Config{
		ThermalEnabled:   true,
		ResourceEnabled:  true,
		StorageEnabled:   true,
		EventHistorySize: DefaultEventHistorySize,
		BusBuffer:        defaultBusBuffer,
		Thermal:          thermal.DefaultPolicy(),
		Resource:         monitor.DefaultResourceConfig(),
		Storage:          monitor.DefaultStorageConfig(),
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()

	if c.EventHistorySize <= 0 {
		c.EventHistorySize = defaults.EventHistorySize
	}
	if c.BusBuffer <= 0 {
		c.BusBuffer = defaults.BusBuffer
	}
	if len(c.Thermal.Thresholds) == 0 && c.Thermal.Monitoring.Interval == 0 {
		c.Thermal = defaults.Thermal
	}
	if c.Resource == (monitor.ResourceConfig{}) {
		c.Resource = defaults.Resource
	}
	if c.Storage == (monitor.StorageConfig{}) {
		c.Storage = defaults.Storage
	}

	return c
}

// Options are the injected host-boundary collaborators. OnEmergency is
// invoked fire-and-forget on its own goroutine; the dispatch loop never
// waits on the host.
type Options struct {
	OnEmergency   func(event.SystemEmergency)
	Recorder      telemetry.Recorder
	ThermalSource thermal.Source
	ResourceProbe monitor.ResourceProbe
	StorageProbe  monitor.StorageProbe
}

// Status reports the orchestrator and per-component run state.
type Status struct {
	Running    bool            `json:"running"`
	Components map[string]bool `json:"components"`
	EventCount uint64          `json:"eventCount"`
	Thermal    *thermal.Status `json:"thermal,omitempty"`
}

type sourcedEvent struct {
	source string
	ev     event.Event
}

// Orchestrator owns the component set, aggregates their events onto a
// single bus, and propagates emergencies to the host. Instances are
// caller-owned; lifetime is bounded by Start and Stop.
type Orchestrator struct {
	mu   sync.Mutex
	cfg  Config
	opts Options

	thermal  *thermal.Controller
	monitors []monitor.Monitor

	pubMu  sync.Mutex
	bus    chan sourcedEvent
	closed bool

	history      *eventRing
	nextID       atomic.Uint64
	eventCount   atomic.Uint64
	dispatchDone chan struct{}

	started bool
	stopped bool
}

// New constructs an orchestrator. Nothing runs until Start.
func New(cfg Config, opts Options) *Orchestrator {
	cfg = cfg.withDefaults()

	return &Orchestrator{
		cfg:     cfg,
		opts:    opts,
		history: newEventRing(cfg.EventHistorySize),
	}
}

// Start constructs the enabled components, wires their events into the
// aggregator, and begins every monitoring loop. It may be called once
// per instance. If any sub-step fails, everything already started is
// stopped again and the failure is returned: the orchestrator is never
// left partially up.
func (o *Orchestrator) Start() error {
	errFactory := errors.New()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return errFactory.New(ErrAlreadyStarted)
	}

	o.pubMu.Lock()
	o.bus = make(chan sourcedEvent, o.cfg.BusBuffer)
	o.closed = false
	o.pubMu.Unlock()
	o.dispatchDone = make(chan struct{})
	go o.dispatch()

	if err := o.startComponents(); err != nil {
		o.rollback()
		return errFactory.Wrap(ErrStartupFailed, err)
	}

	o.started = true

	logger.Info().
		Bool("thermal", o.cfg.ThermalEnabled).
		Bool("resource", o.cfg.ResourceEnabled).
		Bool("storage", o.cfg.StorageEnabled).
		Msg("Orchestrator started")

	return nil
}

// startComponents builds and starts each enabled component. Callers
// hold o.mu.
func (o *Orchestrator) startComponents() error {
	if o.cfg.ThermalEnabled {
		ctrl, err := thermal.New(o.cfg.Thermal, o.opts.ThermalSource, o.handlerFor("thermal"))
		if err != nil {
			return err
		}
		o.thermal = ctrl
		ctrl.StartMonitoring()
	}

	if o.cfg.ResourceEnabled {
		rm, err := monitor.NewResourceMonitor(o.cfg.Resource, o.opts.ResourceProbe, o.handlerFor("resource"))
		if err != nil {
			return err
		}
		o.monitors = append(o.monitors, rm)
		rm.Start()
	}

	if o.cfg.StorageEnabled {
		sm, err := monitor.NewStorageManager(o.cfg.Storage, o.opts.StorageProbe, o.handlerFor("storage"))
		if err != nil {
			return err
		}
		o.monitors = append(o.monitors, sm)
		sm.Start()
	}

	return nil
}

// rollback stops whatever startComponents managed to start. Callers
// hold o.mu.
func (o *Orchestrator) rollback() {
	for _, m := range o.monitors {
		m.Stop()
	}
	o.monitors = nil

	if o.thermal != nil {
		o.thermal.StopMonitoring()
		o.thermal = nil
	}

	o.closeBus()
	<-o.dispatchDone
}

// Stop stops every running component, drains the dispatcher, and
// releases timers. Safe to call multiple times or on a never-started
// instance. No event is delivered after it returns.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started || o.stopped {
		return
	}
	o.stopped = true

	for _, m := range o.monitors {
		m.Stop()
	}

	if o.thermal != nil {
		o.thermal.StopMonitoring()
	}

	o.closeBus()
	<-o.dispatchDone

	logger.Info().Msg("Orchestrator stopped")
}

// Running reports whether the orchestrator is started and not stopped.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started && !o.stopped
}

// Status reports orchestrator and component run state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	status := Status{
		Running:    o.started && !o.stopped,
		Components: make(map[string]bool),
		EventCount: o.eventCount.Load(),
	}

	if o.thermal != nil {
		status.Components["thermal"] = o.thermal.IsMonitoring()
		ts := o.thermal.Status()
		status.Thermal = &ts
	}
	for _, m := range o.monitors {
		status.Components[m.Name()] = m.Running()
	}

	return status
}

// RecentEvents returns the most recent limit system events in
// chronological order.
func (o *Orchestrator) RecentEvents(limit int) []event.SystemEvent {
	return o.history.recent(limit)
}

// ForceThermalCheck triggers one synchronous thermal evaluation.
func (o *Orchestrator) ForceThermalCheck() (thermal.Status, error) {
	ctrl, err := o.thermalController()
	if err != nil {
		return thermal.Status{}, err
	}
	return ctrl.ForceCheck(), nil
}

// SetThermalPolicy replaces the thermal policy at runtime.
func (o *Orchestrator) SetThermalPolicy(policy thermal.Policy) error {
	ctrl, err := o.thermalController()
	if err != nil {
		return err
	}
	return ctrl.SetPolicy(policy)
}

// EnableFanControl requests fan control from the host.
func (o *Orchestrator) EnableFanControl() error {
	ctrl, err := o.thermalController()
	if err != nil {
		return err
	}
	return ctrl.EnableFanControl()
}

// ThermalStatus returns the controller's escalation state.
func (o *Orchestrator) ThermalStatus() (thermal.Status, error) {
	ctrl, err := o.thermalController()
	if err != nil {
		return thermal.Status{}, err
	}
	return ctrl.Status(), nil
}

// ThermalStatistics returns statistics over the temperature history.
func (o *Orchestrator) ThermalStatistics() (thermal.Statistics, error) {
	ctrl, err := o.thermalController()
	if err != nil {
		return thermal.Statistics{}, err
	}
	return ctrl.Statistics(), nil
}

// ThermalPolicy returns the active thermal policy.
func (o *Orchestrator) ThermalPolicy() (thermal.Policy, error) {
	ctrl, err := o.thermalController()
	if err != nil {
		return thermal.Policy{}, err
	}
	return ctrl.Policy(), nil
}

// TemperatureHistory returns the retained temperature readings.
func (o *Orchestrator) TemperatureHistory() ([]thermal.HistoryEntry, error) {
	ctrl, err := o.thermalController()
	if err != nil {
		return nil, err
	}
	return ctrl.History(), nil
}

// thermalController guards the programming contract: thermal operations
// require a started orchestrator with the thermal component enabled.
func (o *Orchestrator) thermalController() (*thermal.Controller, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started || o.stopped || o.thermal == nil {
		return nil, errors.New().New(ErrNotStarted)
	}

	return o.thermal, nil
}

// handlerFor wires a component into the bus, tagging events with their
// source. Delivery is non-blocking: a full bus drops the event with a
// log line rather than stalling a sampling loop.
func (o *Orchestrator) handlerFor(source string) event.Handler {
	return func(ev event.Event) {
		o.pubMu.Lock()
		defer o.pubMu.Unlock()

		if o.closed {
			return
		}

		select {
		case o.bus <- sourcedEvent{source: source, ev: ev}:
		default:
			logger.Warn().
				Str("source", source).
				Str("type", string(ev.Type)).
				Msg("Event bus full, dropping event")
		}
	}
}

func (o *Orchestrator) closeBus() {
	o.pubMu.Lock()
	defer o.pubMu.Unlock()

	if o.closed {
		return
	}
	o.closed = true
	close(o.bus)
}

// dispatch is the single consumer of the bus: it wraps raw component
// events into SystemEvent envelopes, records them, and raises the
// systemEmergency signal for emergency severity.
func (o *Orchestrator) dispatch() {
	defer close(o.dispatchDone)

	for s := range o.bus {
		se := o.envelope(s)
		o.history.push(se)
		o.eventCount.Add(1)

		logger.Info().
			Str("id", se.ID).
			Str("type", string(se.Type)).
			Str("severity", string(se.Severity)).
			Str("source", se.Source).
			Msg(se.Message)

		if o.opts.Recorder != nil {
			if err := o.opts.Recorder.Record(context.Background(), &se); err != nil {
				logger.Debug().Err(err).Msg("Failed to record system event")
			}
		}

		if se.Severity == event.SeverityEmergency {
			o.raiseEmergency(se)
		}
	}
}

func (o *Orchestrator) envelope(s sourcedEvent) event.SystemEvent {
	ts := s.ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return event.SystemEvent{
		ID:        fmt.Sprintf("evt-%d", o.nextID.Add(1)),
		Type:      s.ev.Type,
		Subtype:   subtypeFor(s.ev),
		Severity:  severityFor(s.ev),
		Source:    s.source,
		Message:   messageFor(s.source, s.ev),
		Data:      s.ev.Data,
		Timestamp: ts,
	}
}

// raiseEmergency notifies the host exactly once per emergency event,
// fire-and-forget.
func (o *Orchestrator) raiseEmergency(se event.SystemEvent) {
	logger.Error().
		Str("type", string(se.Type)).
		Str("source", se.Source).
		Msg("System emergency")

	cb := o.opts.OnEmergency
	if cb == nil {
		return
	}

	go cb(event.SystemEmergency{
		Type:      se.Type,
		Data:      se.Data,
		Timestamp: se.Timestamp,
	})
}
