package build

import (
	"time"
)

// EventKind classifies an Event.
type EventKind int

const (
	EventStarted EventKind = iota
	EventLog
	EventSuccess
	EventFailure
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventLog:
		return "log"
	case EventSuccess:
		return "success"
	case EventFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether k ends a build.
func (k EventKind) IsTerminal() bool { return k == EventSuccess || k == EventFailure }

// Event is one message from a build worker. For EventSuccess Message is the
// artifact path; for EventFailure it is the reason.
type Event struct {
	Kind     EventKind
	BuildID  string
	Strategy string
	Message  string
	Time     time.Time
}
