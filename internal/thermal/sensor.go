package thermal

import (
	"os"
	"strconv"
	"strings"

	"codeberg.org/werrin/pithermd/internal/errors"
)

const (
	// FallbackTemperature is substituted when the sensor source is
	// missing or unreadable. Sensor absence is degraded operation, not
	// a fatal error: the controller keeps evaluating with this value.
	FallbackTemperature = 45.0

	millidegreesPerDegree = 1000
)

// Source yields the current temperature in degrees Celsius.
type Source interface {
	Read() (float64, error)
}

// sysfsSource reads a kernel thermal zone: a text file holding an
// integer number of millidegrees Celsius (e.g. 70000 for 70.0°C).
type sysfsSource struct {
	path string
}

// NewSysfsSource returns a Source backed by a sysfs thermal zone file.
func NewSysfsSource(path string) Source {
	return &sysfsSource{path: path}
}

func (s *sysfsSource) Read() (float64, error) {
	errFactory := errors.New()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return 0, errFactory.Wrap(ErrSensorRead, err)
	}

	value, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, errFactory.Wrap(ErrSensorParse, err)
	}

	return float64(value) / millidegreesPerDegree, nil
}
