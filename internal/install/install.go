// Package install hands a finished package to the device installer.
package install

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/pkgbuilder/internal/config"
	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgbuilder/internal/process"
)

// Installer installs the package at path. Tool output goes to sink, which
// belongs to the build being installed.
type Installer interface {
	Install(ctx context.Context, path string, sink process.Sink) error
}

// Func adapts a function to Installer.
type Func func(ctx context.Context, path string, sink process.Sink) error

func (f Func) Install(ctx context.Context, path string, sink process.Sink) error {
	return f(ctx, path, sink)
}

// FromConfig returns the configured installer, or nil when installation is disabled.
func FromConfig(cfg config.InstallConfig, runner process.Runner) Installer {
	if !cfg.Enabled {
		return nil
	}
	if cfg.CopyTo != "" {
		return &CopyInstaller{Dir: cfg.CopyTo}
	}
	return &ADBInstaller{Runner: runner, ADB: cfg.ADB, Serial: cfg.Serial}
}

// ADBInstaller runs "adb install -r" against an attached device.
type ADBInstaller struct {
	Runner process.Runner
	ADB    string
	Serial string
}

func (a *ADBInstaller) Install(ctx context.Context, path string, sink process.Sink) error {
	if _, err := os.Stat(path); err != nil {
		return errors.InstallError("package not found: " + path).WithCause(err).Build()
	}
	argv := []string{a.ADB}
	if a.Serial != "" {
		argv = append(argv, "-s", a.Serial)
	}
	argv = append(argv, "install", "-r", path)

	res := a.Runner.Run(ctx, process.Command{Argv: argv}, sink)
	if !res.OK {
		if errors.HasCategory(res.Err, errors.CategoryCanceled) {
			return res.Err
		}
		return errors.InstallError("adb install failed").
			WithCause(res.Err).
			WithContext("path", path).
			WithContext("stderr", strings.TrimSpace(res.Stderr)).
			Build()
	}
	// adb reports some failures with exit status 0
	if strings.Contains(res.Output, "Failure [") {
		return errors.InstallError("adb install failed: "+lastLine(res.Output)).
			WithContext("path", path).Build()
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// CopyInstaller drops the package into a directory, for sideloading or sync tools.
type CopyInstaller struct {
	Dir string
}

func (c *CopyInstaller) Install(ctx context.Context, path string, _ process.Sink) error {
	if err := ctx.Err(); err != nil {
		return errors.CanceledError("install canceled").WithCause(err).Build()
	}
	in, err := os.Open(path)
	if err != nil {
		return errors.InstallError("package not found: " + path).WithCause(err).Build()
	}
	defer in.Close()

	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return errors.InstallError("failed to create install directory").WithCause(err).
			WithContext("path", c.Dir).Build()
	}
	dst := filepath.Join(c.Dir, filepath.Base(path))
	tmp, err := os.CreateTemp(c.Dir, ".install-*")
	if err != nil {
		return errors.InstallError("failed to create temp file").WithCause(err).Build()
	}
	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.InstallError(fmt.Sprintf("failed to copy %s", filepath.Base(path))).WithCause(err).Build()
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.InstallError("failed to write package").WithCause(err).Build()
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.InstallError("failed to move package into place").WithCause(err).Build()
	}
	return nil
}
