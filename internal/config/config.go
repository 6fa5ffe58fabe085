package config

import (
	"os"
	"strings"

	"codeberg.org/werrin/pithermd/internal/errors"
	"codeberg.org/werrin/pithermd/internal/monitor"
	"codeberg.org/werrin/pithermd/internal/orchestrator"
	"codeberg.org/werrin/pithermd/internal/telemetry"
	"codeberg.org/werrin/pithermd/internal/thermal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = "info"
	DefaultListen   = "127.0.0.1:9090"

	configName = "pithermd"
	envPrefix  = "PITHERMD"
)

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// Config is the merged daemon configuration. Every recognized option
// has an explicit default; file, environment, and flags override in
// that order.
type Config struct {
	LogLevel        string `mapstructure:"log_level"`
	Debug           bool   `mapstructure:"debug"`
	Verbose         bool   `mapstructure:"verbose"`
	Listen          string `mapstructure:"listen"`
	Gateway         bool   `mapstructure:"gateway"`
	Telemetry       bool   `mapstructure:"telemetry"`
	Database        string `mapstructure:"database"`
	ExitOnEmergency bool   `mapstructure:"exit_on_emergency"`
	EventHistory    int    `mapstructure:"event_history"`

	ThermalEnabled  bool `mapstructure:"thermal_enabled"`
	ResourceEnabled bool `mapstructure:"resource_enabled"`
	StorageEnabled  bool `mapstructure:"storage_enabled"`

	Thermal  thermal.Policy         `mapstructure:"thermal"`
	Resource monitor.ResourceConfig `mapstructure:"resource"`
	Storage  monitor.StorageConfig  `mapstructure:"storage"`
}

// Load reads configuration from defaults, the TOML config file, the
// environment, and command-line flags, then validates the result.
func Load() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	errFactory := errors.New()

	fs := pflag.NewFlagSet(configName, pflag.ContinueOnError)
	fs.String("config", "", "Path to config file")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.String("log-level", "", "Log level (debug, info, warning, error)")
	fs.Int("interval", 0, "Seconds between thermal evaluations")
	fs.String("sensor", "", "Path to the thermal zone sensor")
	fs.String("listen", "", "Gateway listen address")
	fs.Bool("telemetry", false, "Enable event persistence")
	fs.String("database", "", "Path to the event database")

	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName(configName)
	v.SetConfigType("toml")
	v.AddConfigPath("/etc")
	v.AddConfigPath(".")

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else if path := os.Getenv(envPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindFlags(v, fs)

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if len(config.Thermal.Thresholds) == 0 {
		config.Thermal.Thresholds = thermal.DefaultPolicy().Thresholds
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	defaults := thermal.DefaultPolicy()
	resource := monitor.DefaultResourceConfig()
	storage := monitor.DefaultStorageConfig()
	events := telemetry.DefaultConfig()

	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("debug", false)
	v.SetDefault("verbose", false)
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("gateway", true)
	v.SetDefault("telemetry", false)
	v.SetDefault("database", events.DBPath)
	v.SetDefault("exit_on_emergency", false)
	v.SetDefault("event_history", orchestrator.DefaultEventHistorySize)

	v.SetDefault("thermal_enabled", true)
	v.SetDefault("resource_enabled", true)
	v.SetDefault("storage_enabled", true)

	v.SetDefault("thermal.monitoring.interval", defaults.Monitoring.Interval)
	v.SetDefault("thermal.monitoring.source", defaults.Monitoring.Source)
	v.SetDefault("thermal.history_size", defaults.HistorySize)

	v.SetDefault("resource.interval", resource.Interval)
	v.SetDefault("resource.cpu_warning", resource.CPUWarning)
	v.SetDefault("resource.cpu_critical", resource.CPUCritical)
	v.SetDefault("resource.memory_warning", resource.MemoryWarning)
	v.SetDefault("resource.memory_critical", resource.MemoryCritical)
	v.SetDefault("resource.recovery_margin", resource.RecoveryMargin)

	v.SetDefault("storage.interval", storage.Interval)
	v.SetDefault("storage.mount", storage.Mount)
	v.SetDefault("storage.warning", storage.Warning)
	v.SetDefault("storage.critical", storage.Critical)
	v.SetDefault("storage.recovery_margin", storage.RecoveryMargin)
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	bindings := map[string]string{
		"debug":     "debug",
		"verbose":   "verbose",
		"log-level": "log_level",
		"interval":  "thermal.monitoring.interval",
		"sensor":    "thermal.monitoring.source",
		"listen":    "listen",
		"telemetry": "telemetry",
		"database":  "database",
	}

	fs.Visit(func(f *pflag.Flag) {
		if key, ok := bindings[f.Name]; ok {
			v.Set(key, f.Value.String())
		}
	})
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.ThermalEnabled {
		if err := c.Thermal.Validate(); err != nil {
			return err
		}
	}
	if c.ResourceEnabled {
		if err := c.Resource.Validate(); err != nil {
			return err
		}
	}
	if c.StorageEnabled {
		if err := c.Storage.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// OrchestratorConfig maps the merged configuration onto the
// orchestrator's component set.
func (c *Config) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		ThermalEnabled:   c.ThermalEnabled,
		ResourceEnabled:  c.ResourceEnabled,
		StorageEnabled:   c.StorageEnabled,
		EventHistorySize: c.EventHistory,
		Thermal:          c.Thermal,
		Resource:         c.Resource,
		Storage:          c.Storage,
	}
}

// TelemetryConfig maps the merged configuration onto the event store.
func (c *Config) TelemetryConfig() telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.Enabled = c.Telemetry
	if c.Database != "" {
		cfg.DBPath = c.Database
	}
	return cfg
}
