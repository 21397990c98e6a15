package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgbuilder/internal/metrics"
	"git.home.luguber.info/inful/pkgbuilder/internal/process"
	"git.home.luguber.info/inful/pkgbuilder/internal/toolchain"
)

type fakeStep struct {
	name    string
	fail    bool
	skip    bool
	onExec  func(ctx context.Context)
	ran     *[]string
	message string
}

func (s *fakeStep) Name() string { return s.name }

func (s *fakeStep) Execute(ctx context.Context, sink process.Sink) toolchain.Result {
	*s.ran = append(*s.ran, s.name)
	if s.onExec != nil {
		s.onExec(ctx)
	}
	if s.fail {
		return toolchain.Result{StepName: s.name, Output: s.message,
			Err: errors.ToolchainError(s.message).Build()}
	}
	return toolchain.Result{Success: true, Skipped: s.skip, StepName: s.name, Output: "ok"}
}

type stepRecorder struct {
	metrics.NoopRecorder
	mu      sync.Mutex
	results map[string]metrics.ResultLabel
}

func (r *stepRecorder) IncStepResult(step string, result metrics.ResultLabel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = map[string]metrics.ResultLabel{}
	}
	r.results[step] = result
}

func steps(ran *[]string, names ...string) []*fakeStep {
	out := make([]*fakeStep, len(names))
	for i, n := range names {
		out[i] = &fakeStep{name: n, ran: ran}
	}
	return out
}

func asSteps(in []*fakeStep) []toolchain.Step {
	out := make([]toolchain.Step, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func TestRunAllSucceed(t *testing.T) {
	var ran, lines []string
	fs := steps(&ran, "ResourceCompile", "ResourceLink", "LanguageCompile", "BytecodeTranslate", "PackageAssemble", "PackageSign")
	fs[3].skip = true
	rec := &stepRecorder{}

	out := New(asSteps(fs), WithRecorder(rec)).Run(t.Context(), func(l string) { lines = append(lines, l) })

	require.True(t, out.Success())
	require.Equal(t, StateSucceeded, out.State)
	require.Equal(t, 6, out.Current)
	require.Equal(t, -1, out.FailedIndex)
	require.NoError(t, out.Error())
	require.Equal(t, ran, out.Executed())
	require.Len(t, ran, 6)
	var executing []string
	for _, l := range lines {
		if strings.HasPrefix(l, "Executing ") {
			executing = append(executing, l)
		}
	}
	require.Equal(t, []string{
		"Executing ResourceCompile",
		"Executing ResourceLink",
		"Executing LanguageCompile",
		"Executing BytecodeTranslate",
		"Executing PackageAssemble",
		"Executing PackageSign",
	}, executing)
	require.Equal(t, "Executing ResourceCompile", lines[0])
	require.Equal(t, "PackageSign succeeded", lines[len(lines)-1])
	require.Equal(t, metrics.ResultSkipped, rec.results["BytecodeTranslate"])
	require.Equal(t, metrics.ResultSuccess, rec.results["PackageSign"])
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	var ran, lines []string
	fs := steps(&ran, "ResourceCompile", "ResourceLink", "LanguageCompile", "BytecodeTranslate", "PackageAssemble", "PackageSign")
	fs[2].fail = true
	fs[2].message = "kotlinc: unresolved reference"
	rec := &stepRecorder{}

	out := New(asSteps(fs), WithRecorder(rec)).Run(t.Context(), func(l string) { lines = append(lines, l) })

	require.Equal(t, StateFailed, out.State)
	require.Equal(t, 2, out.FailedIndex)
	require.Equal(t, "LanguageCompile", out.FailedStep)
	require.Equal(t, "kotlinc: unresolved reference", out.Output)
	require.Equal(t, []string{"ResourceCompile", "ResourceLink", "LanguageCompile"}, ran)
	require.Contains(t, lines, "LanguageCompile failed")
	require.NotContains(t, lines, "Executing BytecodeTranslate")
	require.True(t, errors.HasCategory(out.Error(), errors.CategoryToolchain))
	require.Equal(t, metrics.ResultFailed, rec.results["LanguageCompile"])
	require.NotContains(t, rec.results, "BytecodeTranslate")
}

func TestRunCanceledBetweenSteps(t *testing.T) {
	var ran []string
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	fs := steps(&ran, "a", "b", "c")
	fs[0].onExec = func(context.Context) { cancel() }

	out := New(asSteps(fs)).Run(ctx, nil)

	require.Equal(t, StateCanceled, out.State)
	require.Equal(t, 1, out.Current)
	require.Equal(t, "b", out.FailedStep)
	require.Equal(t, []string{"a"}, ran)
	require.True(t, errors.HasCategory(out.Error(), errors.CategoryCanceled))
}

func TestRunEmptyPipeline(t *testing.T) {
	out := New(nil).Run(t.Context(), nil)
	require.True(t, out.Success())
	require.Empty(t, out.Executed())
}

func TestRunMeasuresDuration(t *testing.T) {
	var ran []string
	base := time.Unix(0, 0)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	out := New(asSteps(steps(&ran, "a")), WithClock(clock)).Run(t.Context(), nil)
	require.True(t, out.Success())
	require.Equal(t, 3*time.Second, out.Duration)
}

func TestStateIsTerminal(t *testing.T) {
	require.False(t, StatePending.IsTerminal())
	require.False(t, StateRunning.IsTerminal())
	require.True(t, StateSucceeded.IsTerminal())
	require.True(t, StateFailed.IsTerminal())
	require.True(t, StateCanceled.IsTerminal())
}
