package thermal

import (
	"sync"
	"time"

	"codeberg.org/werrin/pithermd/internal/errors"
	"codeberg.org/werrin/pithermd/internal/event"
	"codeberg.org/werrin/pithermd/internal/logger"
)

// Status is the controller's current escalation state. Only one
// threshold can be active at a time: the highest one satisfied when it
// was engaged.
type Status struct {
	CurrentTemperature         float64  `json:"currentTemperature"`
	ActiveThrottling           bool     `json:"activeThrottling"`
	CurrentAction              *Action  `json:"currentAction,omitempty"`
	ActiveThresholdTemperature *float64 `json:"activeThresholdTemperature,omitempty"`
}

// HistoryEntry is one recorded temperature reading.
type HistoryEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
}

// Statistics is a read-only view over the retained history.
type Statistics struct {
	MaxTemperature     float64 `json:"maxTemperature"`
	MinTemperature     float64 `json:"minTemperature"`
	AverageTemperature float64 `json:"averageTemperature"`
	SampleCount        int     `json:"sampleCount"`
}

// Controller owns the thermal policy and runs the threshold/hysteresis
// state machine over sensor readings. All state is guarded by a single
// mutex; an evaluation is atomic from the caller's perspective.
type Controller struct {
	mu         sync.RWMutex
	policy     Policy
	status     Status
	history    []HistoryEntry
	source     Source
	handler    event.Handler
	monitoring bool
	quit       chan struct{}
	done       chan struct{}
}

// New constructs a controller with an initial policy. A nil source
// means the sysfs zone named by the policy; a nil handler drops events.
func New(policy Policy, source Source, handler event.Handler) (*Controller, error) {
	if policy.HistorySize <= 0 {
		policy.HistorySize = DefaultHistorySize
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}

	return &Controller{
		policy:  policy,
		source:  source,
		handler: handler,
	}, nil
}

// CurrentTemperature reads the sensor once and records the reading in
// status and history without running the state machine. A failed read
// degrades to the fallback value.
func (c *Controller) CurrentTemperature() float64 {
	c.mu.Lock()
	t := c.read()
	c.record(t)
	c.status.CurrentTemperature = t
	c.mu.Unlock()

	return t
}

// ForceCheck reads the sensor, runs one evaluation, and emits any
// resulting events synchronously. It serves both manual triggers and
// the scheduled tick.
func (c *Controller) ForceCheck() Status {
	c.mu.Lock()
	t := c.read()
	c.record(t)
	evs := c.evaluate(t)
	status := c.statusCopy()
	c.mu.Unlock()

	c.deliver(evs)

	return status
}

// StartMonitoring begins the recurring evaluation at the policy
// interval. Idempotent: a second call while running is a no-op.
func (c *Controller) StartMonitoring() {
	c.mu.Lock()
	if c.monitoring {
		c.mu.Unlock()
		return
	}
	c.monitoring = true
	quit := make(chan struct{})
	done := make(chan struct{})
	c.quit = quit
	c.done = done
	interval := time.Duration(c.policy.Monitoring.Interval) * time.Second
	c.mu.Unlock()

	logger.Debug().Dur("interval", interval).Msg("Thermal monitoring started")

	go c.loop(interval, quit, done)
}

// StopMonitoring cancels the recurring evaluation and waits for the
// loop to exit, so no tick fires after it returns. Idempotent.
func (c *Controller) StopMonitoring() {
	c.mu.Lock()
	if !c.monitoring {
		c.mu.Unlock()
		return
	}
	c.monitoring = false
	quit := c.quit
	done := c.done
	c.quit = nil
	c.done = nil
	c.mu.Unlock()

	close(quit)
	<-done

	logger.Debug().Msg("Thermal monitoring stopped")
}

func (c *Controller) loop(interval time.Duration, quit, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			c.ForceCheck()
		}
	}
}

// SetPolicy validates and atomically swaps the policy, then re-evaluates
// the last known temperature so a stricter policy takes effect without
// waiting for the next tick. While monitoring, a changed interval
// reschedules the timer. On validation failure the old policy stays.
func (c *Controller) SetPolicy(policy Policy) error {
	if policy.HistorySize <= 0 {
		policy.HistorySize = DefaultHistorySize
	}

	if err := policy.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	oldInterval := c.policy.Monitoring.Interval
	c.policy = policy

	if excess := len(c.history) - policy.HistorySize; excess > 0 {
		c.history = append([]HistoryEntry(nil), c.history[excess:]...)
	}

	// The active threshold may not exist under the new policy; the
	// re-evaluation below re-engages whatever now applies.
	if at := c.status.ActiveThresholdTemperature; at != nil && c.findThreshold(*at) == nil {
		c.status.ActiveThrottling = false
		c.status.CurrentAction = nil
		c.status.ActiveThresholdTemperature = nil
	}

	var evs []event.Event
	if len(c.history) > 0 {
		evs = c.evaluate(c.history[len(c.history)-1].Temperature)
	}
	reschedule := c.monitoring && oldInterval != policy.Monitoring.Interval
	c.mu.Unlock()

	c.deliver(evs)

	if reschedule {
		c.StopMonitoring()
		c.StartMonitoring()
	}

	return nil
}

// EnableFanControl emits a fanControlRequested event for the configured
// fan, or reports that the policy carries no fan configuration.
func (c *Controller) EnableFanControl() error {
	c.mu.RLock()
	fc := c.policy.FanControl
	c.mu.RUnlock()

	if fc == nil {
		return errors.New().New(ErrFanControlUnsupported)
	}

	c.deliver([]event.Event{{
		Type: event.TypeFanControlRequested,
		Data: map[string]any{
			"pin":          fc.Pin,
			"pwmFrequency": fc.PWMFrequency,
		},
		Timestamp: time.Now(),
	}})

	return nil
}

// Status returns a copy of the current escalation state.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statusCopy()
}

// Policy returns a copy of the active policy.
func (c *Controller) Policy() Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p := c.policy
	p.Thresholds = append([]Threshold(nil), c.policy.Thresholds...)
	if c.policy.FanControl != nil {
		fc := *c.policy.FanControl
		p.FanControl = &fc
	}

	return p
}

// MonitoringInterval returns the scheduled tick interval.
func (c *Controller) MonitoringInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.policy.Monitoring.Interval) * time.Second
}

// IsMonitoring reports whether the recurring evaluation is scheduled.
func (c *Controller) IsMonitoring() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.monitoring
}

// History returns the retained readings in call order.
func (c *Controller) History() []HistoryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]HistoryEntry(nil), c.history...)
}

// Statistics computes min/max/average over the retained history.
func (c *Controller) Statistics() Statistics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.history) == 0 {
		return Statistics{}
	}

	stats := Statistics{
		MaxTemperature: c.history[0].Temperature,
		MinTemperature: c.history[0].Temperature,
		SampleCount:    len(c.history),
	}

	sum := 0.0
	for _, entry := range c.history {
		sum += entry.Temperature
		if entry.Temperature > stats.MaxTemperature {
			stats.MaxTemperature = entry.Temperature
		}
		if entry.Temperature < stats.MinTemperature {
			stats.MinTemperature = entry.Temperature
		}
	}
	stats.AverageTemperature = sum / float64(len(c.history))

	return stats
}

// read returns the current sensor value, degrading to the fallback on
// any failure. Callers hold c.mu.
func (c *Controller) read() float64 {
	src := c.source
	if src == nil {
		src = &sysfsSource{path: c.policy.Monitoring.Source}
	}

	t, err := src.Read()
	if err != nil {
		logger.Debug().Err(err).
			Float64("fallback", FallbackTemperature).
			Msg("Sensor read failed, using fallback temperature")
		return FallbackTemperature
	}

	return t
}

// record appends a reading to the bounded history ring. Callers hold c.mu.
func (c *Controller) record(t float64) {
	entry := HistoryEntry{Timestamp: time.Now(), Temperature: t}
	if len(c.history) >= c.policy.HistorySize {
		copy(c.history, c.history[1:])
		c.history[len(c.history)-1] = entry
	} else {
		c.history = append(c.history, entry)
	}
}

// evaluate runs the threshold state machine for reading t and returns
// the events to emit. Callers hold c.mu.
//
// Triggering is inclusive (t >= threshold temperature) and recovery is
// inclusive at the boundary (t <= recovery rescinds). Between the
// active threshold's recovery and its temperature nothing changes, and
// a lower satisfied threshold never displaces the active one: that is
// the no-flap guarantee.
func (c *Controller) evaluate(t float64) []event.Event {
	defer func() { c.status.CurrentTemperature = t }()

	var matched *Threshold
	for i := range c.policy.Thresholds {
		if t >= c.policy.Thresholds[i].Temperature {
			matched = &c.policy.Thresholds[i]
		}
	}

	active := c.activeThreshold()

	if active != nil {
		if t <= active.Recovery {
			c.status.ActiveThrottling = false
			c.status.CurrentAction = nil
			c.status.ActiveThresholdTemperature = nil

			logger.Info().
				Float64("temperature", t).
				Float64("recovery", active.Recovery).
				Msg("Thermal recovery")

			return []event.Event{{
				Type: event.TypeThermalRecovery,
				Data: map[string]any{
					"action":      "recovery",
					"temperature": t,
				},
				Timestamp: time.Now(),
			}}
		}

		if matched == nil || matched.Temperature <= active.Temperature {
			// Hysteresis band: still hot, no escalation, no event.
			return nil
		}
	}

	if matched == nil {
		return nil
	}

	return []event.Event{c.engage(*matched, t)}
}

// engage activates a threshold and builds its event. Callers hold c.mu.
func (c *Controller) engage(th Threshold, t float64) event.Event {
	action := th.Action
	temp := th.Temperature
	c.status.ActiveThrottling = true
	c.status.CurrentAction = &action
	c.status.ActiveThresholdTemperature = &temp

	data := map[string]any{
		"action":      string(th.Action),
		"temperature": t,
		"threshold":   th.Temperature,
	}

	typ := event.TypeThermalThrottling
	if th.Action == ActionPauseServices {
		typ = event.TypeThermalEmergency
		data["emergencyLevel"] = 1.0

		logger.Warn().
			Float64("temperature", t).
			Float64("threshold", th.Temperature).
			Msg("Thermal emergency: pausing services")
	} else {
		data["reductionLevel"] = th.Action.ReductionLevel()

		logger.Info().
			Float64("temperature", t).
			Float64("threshold", th.Temperature).
			Str("action", string(th.Action)).
			Msg("Thermal throttling engaged")
	}

	return event.Event{Type: typ, Data: data, Timestamp: time.Now()}
}

// activeThreshold resolves the currently engaged threshold, if any.
// Callers hold c.mu.
func (c *Controller) activeThreshold() *Threshold {
	if c.status.ActiveThresholdTemperature == nil {
		return nil
	}
	return c.findThreshold(*c.status.ActiveThresholdTemperature)
}

func (c *Controller) findThreshold(temperature float64) *Threshold {
	for i := range c.policy.Thresholds {
		if c.policy.Thresholds[i].Temperature == temperature {
			return &c.policy.Thresholds[i]
		}
	}
	return nil
}

func (c *Controller) statusCopy() Status {
	status := c.status
	if c.status.CurrentAction != nil {
		action := *c.status.CurrentAction
		status.CurrentAction = &action
	}
	if c.status.ActiveThresholdTemperature != nil {
		temp := *c.status.ActiveThresholdTemperature
		status.ActiveThresholdTemperature = &temp
	}
	return status
}

func (c *Controller) deliver(evs []event.Event) {
	if c.handler == nil {
		return
	}
	for _, ev := range evs {
		c.handler(ev)
	}
}
