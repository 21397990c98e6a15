package toolchain

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgbuilder/internal/logfields"
	"git.home.luguber.info/inful/pkgbuilder/internal/process"
)

// Tool is a named executable or file the toolchain depends on.
type Tool struct {
	Name string
	Path string
}

// Resolve returns the absolute location of the tool. Bare names are looked up
// on PATH; anything containing a separator is taken as a file path.
func (t Tool) Resolve() (string, os.FileInfo, error) {
	if t.Path == "" {
		return "", nil, fmt.Errorf("%s is not configured", t.Name)
	}
	path := t.Path
	if !strings.ContainsRune(path, os.PathSeparator) {
		found, err := exec.LookPath(path)
		if err != nil {
			return "", nil, err
		}
		path = found
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, err
	}
	return path, info, nil
}

// Verify checks every tool and reports all missing ones at once.
func Verify(ctx context.Context, tools []Tool, sink process.Sink) error {
	var missingTools []string
	for _, tool := range tools {
		if err := ctx.Err(); err != nil {
			return errors.CanceledError("tool verification canceled").WithCause(err).Build()
		}
		emit(sink, fmt.Sprintf("Verifying tool: %s...", tool.Name))
		path, info, err := tool.Resolve()
		if err != nil {
			emit(sink, fmt.Sprintf("ERROR: %s: %v", tool.Name, err))
			slog.Debug("Tool missing", logfields.Tool(tool.Name), logfields.Error(err))
			missingTools = append(missingTools, tool.Name)
			continue
		}
		emit(sink, fmt.Sprintf("OK: %s (%d bytes)", path, info.Size()))
		slog.Debug("Tool found", logfields.Tool(path))
	}
	if len(missingTools) > 0 {
		return errors.ToolchainError("one or more tools not found: "+strings.Join(missingTools, ", ")).
			WithContext("missing", missingTools).Build()
	}
	return nil
}
