package guard

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultTimeout    = 10 * time.Second
	DefaultRetries    = 3
	DefaultRetryDelay = 1 * time.Second
)

// ErrInvalidPolicy is returned in Result.Err when a policy fails validation.
var ErrInvalidPolicy = errors.New("invalid guard policy")

// Policy is the retry and timeout behavior of one call site.
type Policy struct {
	Name           string        `json:"name" yaml:"name" mapstructure:"name"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	Retries        int           `json:"retries" yaml:"retries" mapstructure:"retries"`
	RetryDelay     time.Duration `json:"retry_delay" yaml:"retry_delay" mapstructure:"retry_delay"`
	ShowErrorToast bool          `json:"show_error_toast" yaml:"show_error_toast" mapstructure:"show_error_toast"`

	// SingleFlight cancels the scope's previous in-flight invocation
	// when a new one starts.
	SingleFlight bool `json:"single_flight" yaml:"single_flight" mapstructure:"single_flight"`
}

// DefaultPolicy returns the default policy for the named call site.
func DefaultPolicy(name string) Policy {
	return Policy{
		Name:           name,
		Timeout:        DefaultTimeout,
		Retries:        DefaultRetries,
		RetryDelay:     DefaultRetryDelay,
		ShowErrorToast: true,
	}
}

// Validate checks timeout > 0, retries >= 0 and retry delay >= 0.
func (p Policy) Validate() error {
	if p.Timeout <= 0 {
		return fmt.Errorf("%w %q: timeout must be positive, got %s", ErrInvalidPolicy, p.Name, p.Timeout)
	}
	if p.Retries < 0 {
		return fmt.Errorf("%w %q: retries must not be negative, got %d", ErrInvalidPolicy, p.Name, p.Retries)
	}
	if p.RetryDelay < 0 {
		return fmt.Errorf("%w %q: retry delay must not be negative, got %s", ErrInvalidPolicy, p.Name, p.RetryDelay)
	}
	return nil
}

// MaxAttempts is the total number of attempts the policy allows.
func (p Policy) MaxAttempts() int {
	return p.Retries + 1
}

// WithTimeout returns a copy with the timeout replaced.
func (p Policy) WithTimeout(d time.Duration) Policy {
	p.Timeout = d
	return p
}

// WithRetries returns a copy with the retry count and delay replaced.
func (p Policy) WithRetries(retries int, delay time.Duration) Policy {
	p.Retries = retries
	p.RetryDelay = delay
	return p
}

// Silent returns a copy that never emits a user notification.
func (p Policy) Silent() Policy {
	p.ShowErrorToast = false
	return p
}
