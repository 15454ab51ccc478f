package resilience

import (
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

// FileBackoffConfig is the backoff section of the file/env configuration
// surface.
type FileBackoffConfig struct {
	Base       time.Duration `mapstructure:"base"`
	Max        time.Duration `mapstructure:"max"`
	Multiplier float64       `mapstructure:"multiplier"`
	Jitter     bool          `mapstructure:"jitter"`
}

// Config is the recognized file/env configuration surface for the resilience
// layer. Values load from a "resilience.yaml" file or RESILIENCE_-prefixed
// environment variables and translate into breaker and caller options.
type Config struct {
	FailureThreshold        int               `mapstructure:"failure_threshold"`
	ResetTimeout            time.Duration     `mapstructure:"reset_timeout"`
	MonitoringPeriod        time.Duration     `mapstructure:"monitoring_period"`
	HalfOpenMaxCalls        int               `mapstructure:"half_open_max_calls"`
	Backoff                 FileBackoffConfig `mapstructure:"backoff"`
	RetryAttempts           int               `mapstructure:"retry_attempts"`
	PerAttemptTimeout       time.Duration     `mapstructure:"per_attempt_timeout"`
	MinInterAttemptInterval time.Duration     `mapstructure:"min_inter_attempt_interval"`
}

// LoadConfig reads the configuration from the given search paths (the current
// directory when none are supplied), overlays environment variables and
// validates the result. A missing config file is not an error; defaults apply.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetDefault("failure_threshold", 5)
	v.SetDefault("reset_timeout", "30s")
	v.SetDefault("monitoring_period", "60s")
	v.SetDefault("half_open_max_calls", 3)
	v.SetDefault("backoff.base", "1s")
	v.SetDefault("backoff.max", "30s")
	v.SetDefault("backoff.multiplier", 2.0)
	v.SetDefault("backoff.jitter", true)
	v.SetDefault("retry_attempts", 3)
	v.SetDefault("per_attempt_timeout", "10s")
	v.SetDefault("min_inter_attempt_interval", "100ms")

	v.SetConfigName("resilience")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("RESILIENCE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read resilience config file", slog.String("error", err.Error()))
			return nil, err
		}
	} else {
		slog.Info("loaded resilience config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal resilience config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid resilience configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration invariants: positive thresholds and
// budgets, positive durations, multiplier strictly greater than one.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FailureThreshold, validation.Required, validation.Min(1)),
		validation.Field(&c.ResetTimeout, validation.Required, validation.By(validatePositiveDuration)),
		validation.Field(&c.MonitoringPeriod, validation.Required, validation.By(validatePositiveDuration)),
		validation.Field(&c.HalfOpenMaxCalls, validation.Required, validation.Min(1)),
		validation.Field(&c.RetryAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.PerAttemptTimeout, validation.Required, validation.By(validatePositiveDuration)),
		validation.Field(&c.MinInterAttemptInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.Backoff, validation.Required, validation.By(validateBackoffSection)),
	)
}

func validatePositiveDuration(value interface{}) error {
	d, ok := value.(time.Duration)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a duration")
	}
	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be a positive duration")
	}
	return nil
}

func validateBackoffSection(value interface{}) error {
	b, ok := value.(FileBackoffConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a backoff section")
	}
	if b.Base <= 0 {
		return validation.NewError("validation_invalid_backoff_base", "backoff base must be a positive duration")
	}
	if b.Max < b.Base {
		return validation.NewError("validation_invalid_backoff_max", "backoff max must be at least the base delay")
	}
	if b.Multiplier <= 1 {
		return validation.NewError("validation_invalid_backoff_multiplier", "backoff multiplier must be greater than 1")
	}
	return nil
}

// BreakerOptions translates the configuration into circuit breaker options.
func (c *Config) BreakerOptions() []BreakerOption {
	return []BreakerOption{
		WithFailureThreshold(c.FailureThreshold),
		WithResetTimeout(c.ResetTimeout),
		WithMonitoringPeriod(c.MonitoringPeriod),
		WithHalfOpenMaxCalls(c.HalfOpenMaxCalls),
	}
}

// CallOptions translates the configuration into caller options, including the
// configured breaker options.
func (c *Config) CallOptions() []CallOption {
	return []CallOption{
		WithCallMaxAttempts(c.RetryAttempts),
		WithPerAttemptTimeout(c.PerAttemptTimeout),
		WithMinInterAttemptInterval(c.MinInterAttemptInterval),
		WithBackoff(BackoffConfig{
			Base:       c.Backoff.Base,
			Max:        c.Backoff.Max,
			Multiplier: c.Backoff.Multiplier,
			Jitter:     c.Backoff.Jitter,
		}),
		WithCallBreakerOptions(c.BreakerOptions()...),
	}
}
