package acquire

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	StrategyFixed       = "fixed"
	StrategyExponential = "exponential"
)

// BackoffStrategy produces a fresh backoff policy for each download. The
// engine bounds the policy by its configured number of attempts.
type BackoffStrategy func() backoff.BackOff

type Config struct {
	RetryAttempts    int           `yaml:"retry_attempts" env:"ACQUISITION_RETRY_ATTEMPTS" env-default:"3"`
	BackoffStrategy  string        `yaml:"backoff_strategy" env:"ACQUISITION_BACKOFF_STRATEGY" env-default:"fixed"`
	BackoffInterval  time.Duration `yaml:"backoff_interval" env:"ACQUISITION_BACKOFF_INTERVAL" env-default:"10s"`
	BackoffMax       time.Duration `yaml:"backoff_max" env:"ACQUISITION_BACKOFF_MAX" env-default:"1m"`
	BackoffJitter    float64       `yaml:"backoff_jitter" env:"ACQUISITION_BACKOFF_JITTER" env-default:"0"`
	ProgressInterval time.Duration `yaml:"progress_interval" env:"ACQUISITION_PROGRESS_INTERVAL" env-default:"500ms"`
}

// Fixed waits the same interval between every attempt.
func Fixed(interval time.Duration) BackoffStrategy {
	return func() backoff.BackOff { return backoff.NewConstantBackOff(interval) }
}

// Exponential doubles the wait after every attempt, starting at 'initial'
// and capped at 'max'. Jitter is the randomization factor (0 disables it).
func Exponential(initial time.Duration, max time.Duration, jitter float64) BackoffStrategy {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.MaxInterval = max
		b.Multiplier = 2
		b.RandomizationFactor = jitter
		b.MaxElapsedTime = 0
		b.Reset()

		return b
	}
}

// StrategyFromConfig builds the backoff strategy named by the config.
func StrategyFromConfig(config Config) (BackoffStrategy, error) {
	if config.BackoffJitter < 0 || config.BackoffJitter > 1 {
		return nil, fmt.Errorf("backoff jitter must be within [0, 1], got %v", config.BackoffJitter)
	}

	switch config.BackoffStrategy {
	case "", StrategyFixed:
		return Fixed(config.BackoffInterval), nil
	case StrategyExponential:
		max := config.BackoffMax
		if max < config.BackoffInterval {
			max = config.BackoffInterval
		}
		return Exponential(config.BackoffInterval, max, config.BackoffJitter), nil
	}

	return nil, fmt.Errorf("unknown backoff strategy %q", config.BackoffStrategy)
}
