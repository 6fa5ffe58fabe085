package thermal

import "codeberg.org/werrin/pithermd/internal/errors"

const (
	// Policy Errors
	ErrInvalidPolicy = errors.ErrorCode("thermal_invalid_policy")

	// Sensor Errors
	ErrSensorRead  = errors.ErrorCode("thermal_sensor_read_failed")
	ErrSensorParse = errors.ErrorCode("thermal_sensor_parse_failed")

	// Fan Control Errors
	ErrFanControlUnsupported = errors.ErrorCode("thermal_fan_control_unsupported")
)
