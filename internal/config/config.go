package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/telemetrylab/internal/errors"
	"codeberg.org/mutker/telemetrylab/internal/frames"
	"codeberg.org/mutker/telemetrylab/internal/history"
	"codeberg.org/mutker/telemetrylab/internal/logger"
	"codeberg.org/mutker/telemetrylab/internal/power"
	"codeberg.org/mutker/telemetrylab/internal/scheduler"
	"codeberg.org/mutker/telemetrylab/internal/window"
	"codeberg.org/mutker/telemetrylab/internal/workload"
	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix  = "TELEMETRYLAB"
	DefaultConfigPath = "/etc/telemetrylab.toml"
	DefaultLogLevel   = string(LogLevelInfo)
	DefaultPIDFile    = "telemetrylab.pid"
	DefaultListen     = "127.0.0.1:8642"
)

type Config struct {
	LogLevel  string          `mapstructure:"log_level" toml:"log_level"`
	PIDFile   string          `mapstructure:"pid_file" toml:"pid_file"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" toml:"scheduler"`
	Window    WindowConfig    `mapstructure:"window" toml:"window"`
	Power     PowerConfig     `mapstructure:"power" toml:"power"`
	Frames    FramesConfig    `mapstructure:"frames" toml:"frames"`
	Metrics   MetricsConfig   `mapstructure:"metrics" toml:"metrics"`
	Server    ServerConfig    `mapstructure:"server" toml:"server"`
}

type SchedulerConfig struct {
	NormalRateHz      int           `mapstructure:"normal_rate_hz" toml:"normal_rate_hz"`
	PowerSaveRateHz   int           `mapstructure:"power_save_rate_hz" toml:"power_save_rate_hz"`
	BaselineIntensity int           `mapstructure:"baseline_intensity" toml:"baseline_intensity"`
	MaxIntensity      int           `mapstructure:"max_intensity" toml:"max_intensity"`
	JankThreshold     time.Duration `mapstructure:"jank_threshold" toml:"jank_threshold"`
	WorkloadSize      int           `mapstructure:"workload_size" toml:"workload_size"`
}

type WindowConfig struct {
	Duration    time.Duration `mapstructure:"duration" toml:"duration"`
	HistorySize int           `mapstructure:"history_size" toml:"history_size"`
}

type PowerConfig struct {
	Source       string        `mapstructure:"source" toml:"source"`
	PollInterval time.Duration `mapstructure:"poll_interval" toml:"poll_interval"`
	ProfilePath  string        `mapstructure:"profile_path" toml:"profile_path"`
	PowerSave    bool          `mapstructure:"power_save" toml:"power_save"`
}

type FramesConfig struct {
	Enabled    bool    `mapstructure:"enabled" toml:"enabled"`
	RateHz     int     `mapstructure:"rate_hz" toml:"rate_hz"`
	JankFactor float64 `mapstructure:"jank_factor" toml:"jank_factor"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" toml:"enabled"`
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled" toml:"enabled"`
	Listen  string `mapstructure:"listen" toml:"listen"`
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"log-level":    "log_level",
	"pid-file":     "pid_file",
	"power-save":   "power.power_save",
	"power-source": "power.source",
	"intensity":    "scheduler.baseline_intensity",
	"frames":       "frames.enabled",
	"metrics":      "metrics.enabled",
	"server":       "server.enabled",
	"listen":       "server.listen",
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		PIDFile:  filepath.Join(os.TempDir(), DefaultPIDFile),
		Scheduler: SchedulerConfig{
			NormalRateHz:      scheduler.DefaultNormalRateHz,
			PowerSaveRateHz:   scheduler.DefaultPowerSaveRateHz,
			BaselineIntensity: scheduler.DefaultBaselineIntensity,
			MaxIntensity:      scheduler.DefaultMaxIntensity,
			JankThreshold:     scheduler.DefaultJankThreshold,
			WorkloadSize:      workload.DefaultSize,
		},
		Window: WindowConfig{
			Duration:    window.DefaultDuration,
			HistorySize: history.DefaultCapacity,
		},
		Power: PowerConfig{
			Source:       power.SourceSysfs,
			PollInterval: power.DefaultPollInterval,
			ProfilePath:  power.DefaultProfilePath,
		},
		Frames: FramesConfig{
			Enabled:    true,
			RateHz:     frames.DefaultRateHz,
			JankFactor: frames.DefaultJankFactor,
		},
		Server: ServerConfig{
			Listen: DefaultListen,
		},
	}
}

// RegisterFlags adds the command line overrides understood by Load.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("log-level", d.LogLevel, "Log level (debug, info, warning, error)")
	fs.String("pid-file", d.PIDFile, "PID file path")
	fs.Bool("power-save", d.Power.PowerSave, "Force power-save mode (static power source)")
	fs.String("power-source", d.Power.Source, "Power state source (sysfs, static)")
	fs.Int("intensity", d.Scheduler.BaselineIntensity, "Baseline workload intensity")
	fs.Bool("frames", d.Frames.Enabled, "Run the frame pacer")
	fs.Bool("metrics", d.Metrics.Enabled, "Expose Prometheus metrics")
	fs.Bool("server", d.Server.Enabled, "Serve the HTTP control API")
	fs.String("listen", d.Server.Listen, "HTTP listen address")
}

func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if o.flags != nil {
		for name, key := range flagKeys {
			f := o.flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errFactory.Wrap(errors.ErrBindFlags, err)
			}
		}
	}

	path, explicit := configPath(o)
	if path != "" {
		if _, err := os.Stat(path); err == nil || explicit {
			v.SetConfigFile(path)
			v.SetConfigType("toml")
			if err := v.ReadInConfig(); err != nil {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
			logger.Debug().Str("path", path).Msg("Config file loaded")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return cfg, nil
}

// configPath resolves the config file: option, then environment, then the
// system default. explicit is false only for the system default.
func configPath(o *options) (path string, explicit bool) {
	if o.configPath != "" {
		return o.configPath, true
	}
	if env, ok := os.LookupEnv(o.envPrefix + "_CONFIG"); ok {
		return env, env != ""
	}
	return DefaultConfigPath, false
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("pid_file", d.PIDFile)
	v.SetDefault("scheduler.normal_rate_hz", d.Scheduler.NormalRateHz)
	v.SetDefault("scheduler.power_save_rate_hz", d.Scheduler.PowerSaveRateHz)
	v.SetDefault("scheduler.baseline_intensity", d.Scheduler.BaselineIntensity)
	v.SetDefault("scheduler.max_intensity", d.Scheduler.MaxIntensity)
	v.SetDefault("scheduler.jank_threshold", d.Scheduler.JankThreshold)
	v.SetDefault("scheduler.workload_size", d.Scheduler.WorkloadSize)
	v.SetDefault("window.duration", d.Window.Duration)
	v.SetDefault("window.history_size", d.Window.HistorySize)
	v.SetDefault("power.source", d.Power.Source)
	v.SetDefault("power.poll_interval", d.Power.PollInterval)
	v.SetDefault("power.profile_path", d.Power.ProfilePath)
	v.SetDefault("power.power_save", d.Power.PowerSave)
	v.SetDefault("frames.enabled", d.Frames.Enabled)
	v.SetDefault("frames.rate_hz", d.Frames.RateHz)
	v.SetDefault("frames.jank_factor", d.Frames.JankFactor)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("server.enabled", d.Server.Enabled)
	v.SetDefault("server.listen", d.Server.Listen)
}

// Validate rejects values that cannot be clamped into something usable.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	switch c.Power.Source {
	case power.SourceSysfs, power.SourceStatic:
	default:
		return errFactory.WithData(errors.ErrInvalidPowerSource, c.Power.Source)
	}

	if c.Server.Enabled && c.Server.Listen == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "server.listen must be set when the server is enabled")
	}

	return nil
}

// Normalize clamps non-positive rates and sizes to safe minimums.
func (c *Config) Normalize() {
	clampMin := func(name string, v *int, minValue int) {
		if *v < minValue {
			logger.Warn().Str("key", name).Int("value", *v).Int("using", minValue).Msg("Config value out of range, clamping")
			*v = minValue
		}
	}

	clampMin("scheduler.normal_rate_hz", &c.Scheduler.NormalRateHz, 1)
	clampMin("scheduler.power_save_rate_hz", &c.Scheduler.PowerSaveRateHz, 1)
	clampMin("scheduler.max_intensity", &c.Scheduler.MaxIntensity, 1)
	clampMin("scheduler.baseline_intensity", &c.Scheduler.BaselineIntensity, 1)
	clampMin("window.history_size", &c.Window.HistorySize, 1)
	clampMin("frames.rate_hz", &c.Frames.RateHz, 1)

	if c.Scheduler.BaselineIntensity > c.Scheduler.MaxIntensity {
		logger.Warn().Int("baseline_intensity", c.Scheduler.BaselineIntensity).
			Int("max_intensity", c.Scheduler.MaxIntensity).
			Msg("Baseline intensity above maximum, clamping")
		c.Scheduler.BaselineIntensity = c.Scheduler.MaxIntensity
	}
	if c.Scheduler.JankThreshold <= 0 {
		c.Scheduler.JankThreshold = scheduler.DefaultJankThreshold
	}
	if c.Window.Duration <= 0 {
		c.Window.Duration = window.DefaultDuration
	}
	if c.Power.PollInterval <= 0 {
		c.Power.PollInterval = power.DefaultPollInterval
	}
}

// SchedulerParams converts to the scheduler's own config.
func (c *Config) SchedulerParams() scheduler.Config {
	return scheduler.Config{
		NormalRateHz:      c.Scheduler.NormalRateHz,
		PowerSaveRateHz:   c.Scheduler.PowerSaveRateHz,
		BaselineIntensity: c.Scheduler.BaselineIntensity,
		MaxIntensity:      c.Scheduler.MaxIntensity,
		JankThreshold:     c.Scheduler.JankThreshold,
	}
}

// Encode renders the config as TOML.
func (c *Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, errors.New().Wrap(errors.ErrWriteConfig, err)
	}
	return buf.Bytes(), nil
}

// Save writes the config as TOML to path, creating parent directories.
func (c *Config) Save(path string) error {
	errFactory := errors.New()

	data, err := c.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errFactory.Wrap(errors.ErrWriteConfig, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errFactory.Wrap(errors.ErrWriteConfig, err)
	}
	return nil
}
