// Package pipeline runs toolchain steps in order and stops at the first failure.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgbuilder/internal/logfields"
	"git.home.luguber.info/inful/pkgbuilder/internal/metrics"
	"git.home.luguber.info/inful/pkgbuilder/internal/observability"
	"git.home.luguber.info/inful/pkgbuilder/internal/process"
	"git.home.luguber.info/inful/pkgbuilder/internal/toolchain"
)

// Orchestrator drives an ordered list of steps. It is stateless between runs.
type Orchestrator struct {
	steps    []toolchain.Step
	recorder metrics.Recorder
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder reports per-step durations and results.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = metrics.OrNoop(r)
	}
}

// WithClock overrides the time source used for step durations.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New returns an orchestrator over steps, which run in slice order.
func New(steps []toolchain.Step, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		steps:    steps,
		recorder: metrics.NoopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Steps returns the configured step names in execution order.
func (o *Orchestrator) Steps() []string {
	names := make([]string, len(o.steps))
	for i, s := range o.steps {
		names[i] = s.Name()
	}
	return names
}

// Run executes every step until one fails or ctx is canceled. Later steps never
// run after a failure. The returned Outcome is always non-nil.
func (o *Orchestrator) Run(ctx context.Context, sink process.Sink) *Outcome {
	out := &Outcome{State: StatePending, FailedIndex: -1}
	start := o.now()
	defer func() { out.Duration = o.now().Sub(start) }()

	for i, step := range o.steps {
		name := step.Name()
		if err := ctx.Err(); err != nil {
			out.cancel(i, name, err)
			emit(sink, fmt.Sprintf("Build canceled before %s", name))
			o.recorder.IncStepResult(name, metrics.ResultCanceled)
			return out
		}

		out.State = StateRunning
		out.Current = i
		stepCtx := observability.WithStep(ctx, name)
		emit(sink, "Executing "+name)
		observability.DebugContext(stepCtx, "Executing step", logfields.StepIndex(i))

		stepStart := o.now()
		res := step.Execute(stepCtx, sink)
		elapsed := o.now().Sub(stepStart)
		o.recorder.ObserveStepDuration(name, elapsed)
		if res.StepName == "" {
			res.StepName = name
		}
		out.Results = append(out.Results, res)

		if !res.Success {
			if errors.HasCategory(res.Err, errors.CategoryCanceled) || ctx.Err() != nil {
				out.cancel(i, name, res.Err)
				emit(sink, fmt.Sprintf("%s canceled", name))
				o.recorder.IncStepResult(name, metrics.ResultCanceled)
				return out
			}
			out.State = StateFailed
			out.FailedIndex = i
			out.FailedStep = name
			out.Output = res.Output
			out.Err = res.Err
			emit(sink, fmt.Sprintf("%s failed", name))
			observability.ErrorContext(stepCtx, "Step failed",
				logfields.StepIndex(i), logfields.DurationMS(ms(elapsed)), logfields.Error(res.Err))
			o.recorder.IncStepResult(name, metrics.ResultFailed)
			return out
		}

		if res.Skipped {
			o.recorder.IncStepResult(name, metrics.ResultSkipped)
		} else {
			o.recorder.IncStepResult(name, metrics.ResultSuccess)
		}
		emit(sink, fmt.Sprintf("%s succeeded", name))
		observability.DebugContext(stepCtx, "Step succeeded", logfields.DurationMS(ms(elapsed)))
	}

	out.State = StateSucceeded
	out.Current = len(o.steps)
	out.Output = "Build successful"
	return out
}

func emit(sink process.Sink, line string) {
	if sink != nil {
		sink(line)
	}
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
