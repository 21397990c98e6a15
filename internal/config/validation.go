package config

import (
	"fmt"

	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
)

// Validate checks invariants that defaults cannot repair.
// Remote credentials are checked by the remote coordinator; owner and repo may come from the git remote.
func Validate(cfg *Config) error {
	checks := []func(*Config) error{
		validateToolchain,
		validateRemote,
		validateRetry,
		validateEvents,
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return err
		}
	}
	return nil
}

func validateToolchain(cfg *Config) error {
	if cfg.Toolchain.Timeout <= 0 {
		return errors.ValidationError("toolchain.timeout must be positive").Build()
	}
	return nil
}

func validateRemote(cfg *Config) error {
	r := cfg.Remote
	if r.DiscoveryAttempts < 1 {
		return errors.ValidationError("remote.discovery_attempts must be at least 1").Build()
	}
	if r.CompletionTimeout < r.CompletionInterval {
		return errors.ValidationError(fmt.Sprintf("remote.completion_timeout (%s) is shorter than remote.completion_interval (%s)",
			r.CompletionTimeout, r.CompletionInterval)).Build()
	}
	return nil
}

func validateRetry(cfg *Config) error {
	r := cfg.HTTP.Retry
	if r.MaxRetries < -1 {
		return errors.ValidationError("http.retry.max_retries must be -1 or greater").Build()
	}
	if r.Initial > r.Max {
		return errors.ValidationError(fmt.Sprintf("http.retry.initial (%s) exceeds http.retry.max (%s)", r.Initial, r.Max)).Build()
	}
	return nil
}

func validateEvents(cfg *Config) error {
	if cfg.Events != nil && cfg.Events.NATSURL == "" {
		return errors.ValidationError("events.nats_url is required when events are enabled").Build()
	}
	return nil
}
