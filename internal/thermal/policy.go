package thermal

import (
	"fmt"

	"codeberg.org/werrin/pithermd/internal/errors"
)

const (
	// DefaultHistorySize bounds the temperature history ring. At the
	// default 10s interval this retains one hour of readings.
	DefaultHistorySize = 360

	// DefaultSensorPath is the conventional Raspberry Pi SoC thermal zone.
	DefaultSensorPath = "/sys/class/thermal/thermal_zone0/temp"

	defaultInterval = 10

	maxGPIOPin = 31
)

// Action is the workload decision tied to a threshold.
type Action string

const (
	ActionReduce25      Action = "reduce_25"
	ActionReduce50      Action = "reduce_50"
	ActionPauseServices Action = "pause_services"
)

// ReductionLevel returns the workload reduction fraction for throttling
// actions, or 0 for pause_services.
func (a Action) ReductionLevel() float64 {
	switch a {
	case ActionReduce25:
		return 0.25
	case ActionReduce50:
		return 0.50
	default:
		return 0
	}
}

// IsValid reports whether the action is a recognized decision.
func (a Action) IsValid() bool {
	switch a {
	case ActionReduce25, ActionReduce50, ActionPauseServices:
		return true
	default:
		return false
	}
}

// Threshold pairs a trigger temperature with the action it engages and
// the recovery temperature below which the action is rescinded.
type Threshold struct {
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	Action      Action  `json:"action"      mapstructure:"action"`
	Recovery    float64 `json:"recovery"    mapstructure:"recovery"`
}

// Monitoring holds the sampling schedule and sensor source.
type Monitoring struct {
	Interval int    `json:"interval" mapstructure:"interval"` // seconds
	Source   string `json:"source"   mapstructure:"source"`
}

// FanControl describes the fan the host may drive on request. The daemon
// never touches GPIO itself; it only emits a fanControlRequested event.
type FanControl struct {
	Pin          int `json:"pin"          mapstructure:"pin"`
	PWMFrequency int `json:"pwmFrequency" mapstructure:"pwm_frequency"`
}

// Policy is the complete thermal configuration. It is accepted or
// rejected as a whole; there is no partial merge at this boundary.
type Policy struct {
	Monitoring  Monitoring  `json:"monitoring"           mapstructure:"monitoring"`
	Thresholds  []Threshold `json:"thresholds"           mapstructure:"thresholds"`
	FanControl  *FanControl `json:"fanControl,omitempty" mapstructure:"fan_control"`
	HistorySize int         `json:"historySize"          mapstructure:"history_size"`
}

// DefaultPolicy returns the stock Raspberry Pi thermal policy.
func DefaultPolicy() Policy {
	return Policy{
		Monitoring: Monitoring{
			Interval: defaultInterval,
			Source:   DefaultSensorPath,
		},
		Thresholds: []Threshold{
			{Temperature: 70, Action: ActionReduce25, Recovery: 65},
			{Temperature: 75, Action: ActionReduce50, Recovery: 70},
			{Temperature: 80, Action: ActionPauseServices, Recovery: 75},
		},
		HistorySize: DefaultHistorySize,
	}
}

// Validate checks the policy invariants: a positive interval, a sensor
// source, thresholds sorted ascending by temperature with each recovery
// strictly below its trigger, and a sane fan configuration if present.
func (p Policy) Validate() error {
	errFactory := errors.New()

	if p.Monitoring.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, p.Monitoring.Interval)
	}

	if p.Monitoring.Source == "" {
		return errFactory.WithMessage(ErrInvalidPolicy, "monitoring source is required")
	}

	if len(p.Thresholds) == 0 {
		return errFactory.WithMessage(ErrInvalidPolicy, "at least one threshold is required")
	}

	for i, t := range p.Thresholds {
		if !t.Action.IsValid() {
			return errFactory.WithData(ErrInvalidPolicy,
				fmt.Sprintf("unknown action %q at threshold %d", t.Action, i))
		}

		if t.Recovery >= t.Temperature {
			return errFactory.WithData(ErrInvalidPolicy,
				fmt.Sprintf("threshold %d: recovery %.1f must be below temperature %.1f",
					i, t.Recovery, t.Temperature))
		}

		if i > 0 && p.Thresholds[i-1].Temperature >= t.Temperature {
			return errFactory.WithData(ErrInvalidPolicy,
				fmt.Sprintf("thresholds must be sorted ascending: %.1f before %.1f",
					p.Thresholds[i-1].Temperature, t.Temperature))
		}
	}

	if fc := p.FanControl; fc != nil {
		if fc.Pin < 0 || fc.Pin > maxGPIOPin {
			return errFactory.WithData(ErrInvalidPolicy,
				fmt.Sprintf("fan control pin %d out of range", fc.Pin))
		}
		if fc.PWMFrequency <= 0 {
			return errFactory.WithData(ErrInvalidPolicy,
				fmt.Sprintf("fan control pwm frequency %d must be positive", fc.PWMFrequency))
		}
	}

	return nil
}
