// Package history persists build events so past builds can be inspected.
package history

import (
	"context"
	"time"
)

// Kind names a recorded event.
type Kind string

const (
	KindStarted Kind = "started"
	KindLog     Kind = "log"
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
)

// IsTerminal reports whether the kind ends a build.
func (k Kind) IsTerminal() bool { return k == KindSuccess || k == KindFailure }

// Record is one stored event.
type Record struct {
	ID       int64
	BuildID  string
	Kind     Kind
	Strategy string
	Message  string
	Time     time.Time
	Metadata map[string]string
}

// Store appends and queries build events.
type Store interface {
	Append(ctx context.Context, rec Record) error
	ByBuild(ctx context.Context, buildID string) ([]Record, error)
	// Since returns records at or after t, oldest first, at most limit (0 = no limit).
	Since(ctx context.Context, t time.Time, limit int) ([]Record, error)
	Builds(ctx context.Context, limit int) ([]Summary, error)
	Close() error
}

// Summary condenses one build.
type Summary struct {
	BuildID  string
	Strategy string
	Started  time.Time
	Finished time.Time
	Outcome  Kind // zero while the build has no terminal record
	Message  string
}
