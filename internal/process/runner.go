// Package process runs external toolchain programs with bounded execution time.
package process

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgbuilder/internal/logfields"
)

// DefaultTimeout bounds a single tool invocation.
const DefaultTimeout = 60 * time.Second

// Sink receives output lines as the process produces them.
type Sink func(line string)

// Command describes one invocation.
type Command struct {
	Argv []string
	Dir  string
	Env  []string // appended to the inherited environment
	// Secrets are replaced with "****" wherever the command line is logged.
	Secrets []string
}

// String renders the command line with secrets masked.
func (c Command) String() string {
	line := strings.Join(c.Argv, " ")
	for _, s := range c.Secrets {
		if s != "" {
			line = strings.ReplaceAll(line, s, "****")
		}
	}
	return line
}

// Result is the normalized outcome of a run. OK is true only when the process
// exited with status 0 within the timeout.
type Result struct {
	OK       bool
	ExitCode int
	Output   string
	Stderr   string
	Duration time.Duration
	Err      error
}

// Runner executes commands. Implementations never panic and never return a
// zero Result for a failed run.
type Runner interface {
	Run(ctx context.Context, cmd Command, sink Sink) Result
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewExecRunner returns a runner with the given per-invocation timeout.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ExecRunner{Timeout: timeout}
}

func (r *ExecRunner) Run(ctx context.Context, c Command, sink Sink) Result {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(c.Argv) == 0 {
		return Result{ExitCode: -1, Err: errors.ValidationError("empty command").Build()}
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	emit := newLineEmitter(sink)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	cmd.Stdout = emit.writer(&stdout)
	cmd.Stderr = emit.writer(&stderr)
	cmd.WaitDelay = 2 * time.Second

	logger.Debug("Running tool", logfields.Command(c.String()), logfields.Path(c.Dir))
	start := time.Now()
	err := cmd.Run()
	emit.flush()

	res := Result{
		Output:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		ExitCode: -1,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case err == nil:
		res.OK = true
		return res
	case stderrors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.Err = errors.ToolchainError(fmt.Sprintf("timed out after %s", timeout)).
			WithContext("tool", c.Argv[0]).Build()
	case ctx.Err() != nil:
		res.Err = errors.CanceledError("tool invocation canceled").WithCause(ctx.Err()).Build()
	default:
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			res.Err = errors.ToolchainError(fmt.Sprintf("exited with status %d", res.ExitCode)).
				WithContext("tool", c.Argv[0]).Build()
		} else {
			res.Err = errors.WrapError(err, errors.CategoryToolchain, "failed to start").
				WithContext("tool", c.Argv[0]).Build()
		}
	}

	if sink != nil {
		sink(fmt.Sprintf("Command failed (%s): %s", errors.Describe(res.Err), c.String()))
	}
	logger.Error("Tool invocation failed",
		logfields.Command(c.String()),
		logfields.ExitCode(res.ExitCode),
		logfields.Error(res.Err),
		slog.String("stderr", strings.TrimSpace(res.Stderr)))
	return res
}

// lineEmitter splits writes from stdout and stderr into lines for the sink.
// exec copies both streams on separate goroutines, so access is serialized.
type lineEmitter struct {
	mu      sync.Mutex
	sink    Sink
	partial map[*bytes.Buffer][]byte
}

func newLineEmitter(sink Sink) *lineEmitter {
	return &lineEmitter{sink: sink, partial: map[*bytes.Buffer][]byte{}}
}

type streamWriter struct {
	e   *lineEmitter
	buf *bytes.Buffer
}

func (e *lineEmitter) writer(buf *bytes.Buffer) *streamWriter {
	return &streamWriter{e: e, buf: buf}
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.e.mu.Lock()
	defer w.e.mu.Unlock()
	w.buf.Write(p)
	if w.e.sink == nil {
		return len(p), nil
	}
	pending := append(w.e.partial[w.buf], p...)
	for {
		i := bytes.IndexByte(pending, '\n')
		if i < 0 {
			break
		}
		w.e.sink(strings.TrimRight(string(pending[:i]), "\r"))
		pending = pending[i+1:]
	}
	w.e.partial[w.buf] = append([]byte(nil), pending...)
	return len(p), nil
}

func (e *lineEmitter) flush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sink == nil {
		return
	}
	for buf, rest := range e.partial {
		if len(rest) > 0 {
			e.sink(string(rest))
		}
		delete(e.partial, buf)
	}
}
