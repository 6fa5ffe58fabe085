package thermal_test

import (
	"testing"

	"codeberg.org/werrin/pithermd/internal/errors"
	"codeberg.org/werrin/pithermd/internal/thermal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyIsValid(t *testing.T) {
	require.NoError(t, thermal.DefaultPolicy().Validate())
}

func TestPolicyValidate(t *testing.T) {
	base := func() thermal.Policy {
		return thermal.Policy{
			Monitoring: thermal.Monitoring{Interval: 10, Source: "/sys/class/thermal/thermal_zone0/temp"},
			Thresholds: []thermal.Threshold{
				{Temperature: 70, Action: thermal.ActionReduce25, Recovery: 65},
				{Temperature: 75, Action: thermal.ActionReduce50, Recovery: 70},
			},
			HistorySize: 100,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*thermal.Policy)
		wantErr bool
	}{
		{
			name:   "valid policy",
			mutate: func(*thermal.Policy) {},
		},
		{
			name:    "zero interval",
			mutate:  func(p *thermal.Policy) { p.Monitoring.Interval = 0 },
			wantErr: true,
		},
		{
			name:    "missing source",
			mutate:  func(p *thermal.Policy) { p.Monitoring.Source = "" },
			wantErr: true,
		},
		{
			name:    "no thresholds",
			mutate:  func(p *thermal.Policy) { p.Thresholds = nil },
			wantErr: true,
		},
		{
			name:    "unknown action",
			mutate:  func(p *thermal.Policy) { p.Thresholds[0].Action = "reduce_75" },
			wantErr: true,
		},
		{
			name:    "recovery at trigger temperature",
			mutate:  func(p *thermal.Policy) { p.Thresholds[0].Recovery = 70 },
			wantErr: true,
		},
		{
			name:    "recovery above trigger temperature",
			mutate:  func(p *thermal.Policy) { p.Thresholds[1].Recovery = 80 },
			wantErr: true,
		},
		{
			name: "unsorted thresholds",
			mutate: func(p *thermal.Policy) {
				p.Thresholds[0], p.Thresholds[1] = p.Thresholds[1], p.Thresholds[0]
			},
			wantErr: true,
		},
		{
			name:    "fan pin out of range",
			mutate:  func(p *thermal.Policy) { p.FanControl = &thermal.FanControl{Pin: 40, PWMFrequency: 25000} },
			wantErr: true,
		},
		{
			name:    "fan pwm frequency zero",
			mutate:  func(p *thermal.Policy) { p.FanControl = &thermal.FanControl{Pin: 18, PWMFrequency: 0} },
			wantErr: true,
		},
		{
			name:   "valid fan control",
			mutate: func(p *thermal.Policy) { p.FanControl = &thermal.FanControl{Pin: 18, PWMFrequency: 25000} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := base()
			tt.mutate(&policy)

			err := policy.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestPolicyValidateErrorCodes(t *testing.T) {
	policy := thermal.DefaultPolicy()
	policy.Monitoring.Interval = -1
	assert.True(t, errors.HasCode(policy.Validate(), errors.ErrInvalidInterval))

	policy = thermal.DefaultPolicy()
	policy.Thresholds[0].Recovery = 99
	assert.True(t, errors.HasCode(policy.Validate(), thermal.ErrInvalidPolicy))
}

func TestActionReductionLevel(t *testing.T) {
	assert.InDelta(t, 0.25, thermal.ActionReduce25.ReductionLevel(), 1e-9)
	assert.InDelta(t, 0.50, thermal.ActionReduce50.ReductionLevel(), 1e-9)
	assert.Zero(t, thermal.ActionPauseServices.ReductionLevel())
}
