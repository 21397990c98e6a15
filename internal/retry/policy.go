package retry

import (
	"time"

	"git.home.luguber.info/inful/pkgbuilder/internal/config"
)

// Policy is the backoff schedule for transient HTTP failures.
type Policy struct {
	Mode       config.RetryBackoffMode // fixed|linear|exponential
	Initial    time.Duration           // base delay
	Max        time.Duration           // cap for growth
	MaxRetries int                     // retries after the first attempt
}

// DefaultPolicy is exponential backoff from 500ms, capped at 30s, five retries.
func DefaultPolicy() Policy {
	return Policy{
		Mode:       config.RetryBackoffExponential,
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		MaxRetries: 5,
	}
}

// NewPolicy builds a policy from raw fields; zero values fall back to defaults and
// a negative maxRetries disables retrying.
func NewPolicy(mode config.RetryBackoffMode, initial, maxDelay time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	switch {
	case maxRetries < 0:
		p.MaxRetries = 0
	case maxRetries > 0:
		p.MaxRetries = maxRetries
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDelay > 0 {
		p.Max = maxDelay
	}
	switch mode {
	case config.RetryBackoffFixed, config.RetryBackoffLinear, config.RetryBackoffExponential:
		p.Mode = mode
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// FromConfig builds a policy from the http.retry section.
func FromConfig(c config.RetryConfig) Policy {
	return NewPolicy(c.Backoff, c.Initial, c.Max, c.MaxRetries)
}

// Delay returns the wait before retry n, counting from 1.
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case config.RetryBackoffFixed:
		d = p.Initial
	case config.RetryBackoffLinear:
		d = time.Duration(retryCount) * p.Initial
	default:
		// cap the exponent so the multiply cannot overflow
		shift := min(retryCount-1, 30)
		d = p.Initial * time.Duration(1<<shift)
	}
	if d > p.Max || d <= 0 {
		return p.Max
	}
	return d
}
