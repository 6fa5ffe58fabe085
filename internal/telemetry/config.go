package telemetry

import "codeberg.org/werrin/pithermd/internal/errors"

const (
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/pithermd/events.db"

	defaultBatchSize    = 16
	defaultBatchTimeout = 30 // seconds
)

type Config struct {
	Enabled      bool
	DBPath       string
	BatchSize    int
	BatchTimeout int // seconds
}

func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		DBPath:       defaultDBPath,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate storage settings if telemetry is enabled
	if !c.Enabled {
		return nil
	}

	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize <= 0 || c.BatchTimeout <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "batch size and timeout must be positive")
	}

	return nil
}
