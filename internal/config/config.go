package config

import (
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/argon1d/internal/audit"
	"codeberg.org/mutker/argon1d/internal/errors"
	"codeberg.org/mutker/argon1d/internal/fan"
	"codeberg.org/mutker/argon1d/internal/policy"
	"codeberg.org/mutker/argon1d/internal/thermal"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const (
	DefaultPath          = "/etc/argon1d.toml"
	DefaultEnvPrefix     = "ARGON1D"
	DefaultRuntimeDir    = "/run/argon1d"
	DefaultLogLevel      = LogLevelInfo
	DefaultPollInterval  = 5 * time.Second
	DefaultCooldownDelay = 10 * time.Second

	maxTemperature = 255
)

// Config is the validated service configuration. It is not modified after Load.
type Config struct {
	PollInterval  time.Duration
	CooldownDelay time.Duration
	Thresholds    policy.Thresholds
	LogLevel      LogLevel
	RuntimeDir    string
	I2CBus        string
	I2CAddress    int
	ThermalZone   string
	Audit         audit.Config
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		PollInterval:  DefaultPollInterval,
		CooldownDelay: DefaultCooldownDelay,
		Thresholds:    policy.DefaultThresholds(),
		LogLevel:      DefaultLogLevel,
		RuntimeDir:    DefaultRuntimeDir,
		I2CBus:        fan.DefaultBus,
		I2CAddress:    fan.DefaultAddress,
		ThermalZone:   thermal.DefaultZone,
		Audit:         audit.DefaultConfig(),
	}
}

// Load reads the TOML file, environment overrides and bound flags. A missing
// default file is not an error; a missing explicitly requested file is.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := o.configPath
	if o.flags != nil {
		if f := o.flags.Lookup("config"); f != nil && f.Changed {
			path = f.Value.String()
		}
		if f := o.flags.Lookup("log-level"); f != nil {
			if err := v.BindPFlag("log_level", f); err != nil {
				return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
			}
		}
	}
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("poll_time", int(d.PollInterval/time.Second))
	v.SetDefault("slow_delay", int(d.CooldownDelay/time.Second))
	v.SetDefault("log_level", d.LogLevel.String())
	v.SetDefault("runtime_dir", d.RuntimeDir)
	v.SetDefault("i2c_bus", d.I2CBus)
	v.SetDefault("i2c_address", d.I2CAddress)
	v.SetDefault("thermal_zone", d.ThermalZone)
	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.db_path", d.Audit.DBPath)
	v.SetDefault("audit.batch_size", d.Audit.BatchSize)
	v.SetDefault("audit.batch_timeout", d.Audit.BatchTimeout)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		PollInterval:  time.Duration(v.GetInt("poll_time")) * time.Second,
		CooldownDelay: time.Duration(v.GetInt("slow_delay")) * time.Second,
		LogLevel:      LogLevel(strings.ToLower(v.GetString("log_level"))),
		RuntimeDir:    v.GetString("runtime_dir"),
		I2CBus:        v.GetString("i2c_bus"),
		I2CAddress:    v.GetInt("i2c_address"),
		ThermalZone:   v.GetString("thermal_zone"),
		Audit: audit.Config{
			Enabled:      v.GetBool("audit.enabled"),
			DBPath:       v.GetString("audit.db_path"),
			BatchSize:    v.GetInt("audit.batch_size"),
			BatchTimeout: v.GetInt("audit.batch_timeout"),
		},
	}

	if !v.IsSet("fan") {
		cfg.Thresholds = policy.DefaultThresholds()
		return cfg, nil
	}

	thresholds, err := parseThresholds(v.GetStringMap("fan"))
	if err != nil {
		return nil, err
	}
	cfg.Thresholds = thresholds

	return cfg, nil
}

func parseThresholds(raw map[string]interface{}) (policy.Thresholds, error) {
	errFactory := errors.New()
	thresholds := make(policy.Thresholds, len(raw))

	for key, value := range raw {
		temp, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || temp < 0 || temp > maxTemperature {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig,
				newValidationError("fan", key, fmt.Sprintf("temperature must be an integer between 0 and %d", maxTemperature)))
		}

		speed, err := cast.ToIntE(value)
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig,
				newValidationError("fan."+key, value, "speed must be an integer"))
		}
		if speed < 0 || speed > policy.MaxSpeed {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig,
				newValidationError("fan."+key, speed, "fan speed should not exceed 100"))
		}

		thresholds[temp] = uint8(speed)
	}

	return thresholds, nil
}

// Validate checks the invariants the service relies on.
func (c *Config) Validate() error {
	errFactory := errors.New()

	var verr ValidationError
	switch {
	case c.PollInterval <= 0:
		verr = newValidationError("poll_time", c.PollInterval, "must be positive")
	case c.CooldownDelay < 0:
		verr = newValidationError("slow_delay", c.CooldownDelay, "must not be negative")
	case !c.LogLevel.IsValid():
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel.String())
	case c.RuntimeDir == "":
		verr = newValidationError("runtime_dir", c.RuntimeDir, "must not be empty")
	case c.I2CAddress <= 0 || c.I2CAddress > 0x7f:
		verr = newValidationError("i2c_address", c.I2CAddress, "must be a 7-bit address")
	}
	if verr != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, verr)
	}

	for temp, speed := range c.Thresholds {
		if speed > policy.MaxSpeed {
			return errFactory.Wrap(errors.ErrInvalidConfig,
				newValidationError(fmt.Sprintf("fan.%d", temp), speed, "fan speed should not exceed 100"))
		}
	}

	if err := c.Audit.Validate(); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	return nil
}

type validationError struct {
	field  string
	value  interface{}
	reason string
}

func newValidationError(field string, value interface{}, reason string) *validationError {
	return &validationError{field: field, value: value, reason: reason}
}

func (e *validationError) Error() string {
	return fmt.Sprintf("%s=%v: %s", e.field, e.value, e.reason)
}

func (e *validationError) Field() string      { return e.field }
func (e *validationError) Value() interface{} { return e.value }
func (e *validationError) Reason() string     { return e.reason }
