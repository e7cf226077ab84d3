package pager

import (
	"errors"
	"fmt"
	"math"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// RetrySettings controls how often a phantom read is retried and how long
// to wait between rounds.
type RetrySettings struct {
	// MaxAttempts is the total number of query rounds, the first included.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts" json:"max_attempts"`

	// MinWait is the first backoff; MaxWait is the last one, before the
	// final round.
	MinWait time.Duration `mapstructure:"min_wait" yaml:"min_wait" json:"min_wait"`
	MaxWait time.Duration `mapstructure:"max_wait" yaml:"max_wait" json:"max_wait"`

	// ThrowOnExhaustion returns a *PhantomReadError instead of the last
	// inconsistent page once every round is spent.
	ThrowOnExhaustion bool `mapstructure:"throw_on_exhaustion" yaml:"throw_on_exhaustion" json:"throw_on_exhaustion"`
}

// DefaultRetrySettings returns 10 rounds with waits growing from 100ms to 1s.
func DefaultRetrySettings() RetrySettings {
	return RetrySettings{
		MaxAttempts: 10,
		MinWait:     100 * time.Millisecond,
		MaxWait:     time.Second,
	}
}

// Validate reports every problem with the settings.
func (s RetrySettings) Validate() error {
	var errs []error
	if s.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be at least 1, got %d", s.MaxAttempts))
	}
	if s.MinWait <= 0 {
		errs = append(errs, fmt.Errorf("min wait must be positive, got %s", s.MinWait))
	}
	if s.MaxWait < s.MinWait {
		errs = append(errs, fmt.Errorf("max wait %s is below min wait %s", s.MaxWait, s.MinWait))
	}
	return errors.Join(errs...)
}

// IncreaseCoefficient is the factor q between consecutive waits, chosen so
// that wait k = MinWait * q^k reaches MaxWait at the last wait. Fewer than
// three rounds leave a single wait at most, so q is 1.
func (s RetrySettings) IncreaseCoefficient() float64 {
	if s.MaxAttempts < 3 || s.MinWait <= 0 {
		return 1
	}
	return math.Pow(float64(s.MaxWait)/float64(s.MinWait), 1/float64(s.MaxAttempts-2))
}

// Backoff returns the wait schedule: MaxAttempts-1 steps growing by
// IncreaseCoefficient from MinWait and capped at MaxWait. Each Step is the
// wait before the next round.
func (s RetrySettings) Backoff() wait.Backoff {
	return wait.Backoff{
		Duration: s.MinWait,
		Factor:   s.IncreaseCoefficient(),
		Steps:    max(s.MaxAttempts-1, 0),
		Cap:      max(s.MaxWait, s.MinWait),
	}
}

// Wait returns the backoff before round k+2, for k = 0..MaxAttempts-2.
func (s RetrySettings) Wait(k int) time.Duration {
	b := s.Backoff()
	d := b.Step()
	for range k {
		d = b.Step()
	}
	return d
}

// WaitTimes lists all MaxAttempts-1 waits in order.
func (s RetrySettings) WaitTimes() []time.Duration {
	if s.MaxAttempts < 2 {
		return nil
	}
	b := s.Backoff()
	out := make([]time.Duration, s.MaxAttempts-1)
	for k := range out {
		out[k] = b.Step()
	}
	return out
}

// MaxTotalWait is the upper bound on time spent sleeping in one fetch.
// Callers needing a deadline derive it from this value.
func (s RetrySettings) MaxTotalWait() time.Duration {
	var total time.Duration
	for _, w := range s.WaitTimes() {
		total += w
	}
	return total
}
