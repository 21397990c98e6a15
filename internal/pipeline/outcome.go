package pipeline

import (
	"time"

	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgbuilder/internal/toolchain"
)

// State is the lifecycle position of an orchestrator run.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// IsTerminal reports whether no further steps will run.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCanceled
}

// Outcome is the result of one Run.
type Outcome struct {
	State State
	// Current is the index of the step that was executing (or would have) when
	// the run ended; len(steps) on success.
	Current     int
	FailedIndex int
	FailedStep  string
	Output      string
	Err         error
	Results     []toolchain.Result
	Duration    time.Duration
}

// Success reports whether every step succeeded.
func (o *Outcome) Success() bool { return o.State == StateSucceeded }

// Executed returns the names of the steps that ran, in order.
func (o *Outcome) Executed() []string {
	names := make([]string, len(o.Results))
	for i, r := range o.Results {
		names[i] = r.StepName
	}
	return names
}

// Error returns a classified error for a failed or canceled run and nil otherwise.
func (o *Outcome) Error() error {
	switch o.State {
	case StateFailed:
		if o.Err != nil {
			return o.Err
		}
		return errors.BuildError(o.FailedStep+" failed").WithContext("step", o.FailedStep).Build()
	case StateCanceled:
		if errors.HasCategory(o.Err, errors.CategoryCanceled) {
			return o.Err
		}
		b := errors.CanceledError("build canceled")
		if o.Err != nil {
			b = b.WithCause(o.Err)
		}
		return b.Build()
	default:
		return nil
	}
}

func (o *Outcome) cancel(i int, name string, err error) {
	o.State = StateCanceled
	o.Current = i
	o.FailedIndex = i
	o.FailedStep = name
	o.Err = err
	o.Output = "build canceled"
}
