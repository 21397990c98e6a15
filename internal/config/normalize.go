package config

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
)

// normalize case-folds enumerations and rejects values that cannot be mapped.
func normalize(cfg *Config) error {
	if cfg.Project.Strategy != "" {
		s := NormalizeBuildStrategy(string(cfg.Project.Strategy))
		if s == "" {
			return errors.ValidationError(fmt.Sprintf("invalid project.strategy %q (expected local or remote)", cfg.Project.Strategy)).Build()
		}
		cfg.Project.Strategy = s
	}
	if cfg.HTTP.Retry.Backoff != "" {
		m := NormalizeRetryBackoff(string(cfg.HTTP.Retry.Backoff))
		if m == "" {
			return errors.ValidationError(fmt.Sprintf("invalid http.retry.backoff %q", cfg.HTTP.Retry.Backoff)).Build()
		}
		cfg.HTTP.Retry.Backoff = m
	}
	if m := cfg.Monitoring; m != nil {
		if lvl := NormalizeLogLevel(string(m.Logging.Level)); m.Logging.Level != "" && lvl != m.Logging.Level {
			slog.Warn("Normalized monitoring.logging.level", "from", m.Logging.Level, "to", lvl)
			m.Logging.Level = lvl
		}
		if f := NormalizeLogFormat(string(m.Logging.Format)); m.Logging.Format != "" && f != m.Logging.Format {
			slog.Warn("Normalized monitoring.logging.format", "from", m.Logging.Format, "to", f)
			m.Logging.Format = f
		}
	}
	return nil
}
