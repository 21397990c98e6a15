// Package toolchain defines the build steps that turn a project tree into a
// signed package. Each step wraps one external tool invocation, except
// PackageAssemble which edits the archive in-process.
package toolchain

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgbuilder/internal/process"
)

// Step is one unit of the build pipeline. A step is constructed with all of its
// configuration, executed once and then discarded.
type Step interface {
	Name() string
	Execute(ctx context.Context, sink process.Sink) Result
}

// Result is the outcome of a single step.
type Result struct {
	Success  bool
	Skipped  bool // up-to-date, no work done
	Output   string
	StepName string
	Err      error
}

func succeeded(name, output string) Result {
	return Result{Success: true, Output: output, StepName: name}
}

func skipped(name string, sink process.Sink) Result {
	msg := fmt.Sprintf("Skipping %s: up-to-date", name)
	emit(sink, msg)
	return Result{Success: true, Skipped: true, Output: msg, StepName: name}
}

// failed reports a precondition or tool failure. The message is emitted to the sink.
func failed(name string, sink process.Sink, err error) Result {
	emit(sink, errors.Describe(err))
	return Result{Output: errors.Describe(err), StepName: name, Err: err}
}

func emit(sink process.Sink, line string) {
	if sink != nil {
		sink(line)
	}
}

// invoke runs cmd and maps the process result onto a step Result.
func invoke(ctx context.Context, runner process.Runner, name string, cmd process.Command, sink process.Sink) Result {
	res := runner.Run(ctx, cmd, sink)
	if res.OK {
		return succeeded(name, res.Output)
	}
	output := res.Output
	if res.Stderr != "" {
		output = strings.TrimRight(output+"\n"+res.Stderr, "\n")
	}
	err := res.Err
	if err == nil {
		err = errors.ToolchainError("tool invocation failed").Build()
	}
	return Result{Output: output, StepName: name, Err: errors.WrapError(err, errors.GetCategory(err), name+" failed").
		WithContext("step", name).Build()}
}

func missing(what, path string) error {
	return errors.FileSystemError(fmt.Sprintf("%s not found: %s", what, path)).
		WithContext("path", path).Build()
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to create directory").
			WithContext("path", dir).Build()
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

// collectFiles walks root and returns files accepted by match, sorted.
func collectFiles(root string, match func(path string) bool) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && match(path) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func withExt(ext string) func(string) bool {
	return func(p string) bool { return strings.EqualFold(filepath.Ext(p), ext) }
}

func anyFile(string) bool { return true }
