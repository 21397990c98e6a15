package toolchain

import (
	"context"
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgbuilder/internal/process"
)

// ResourceCompile compiles a resource directory into intermediate .flat files.
type ResourceCompile struct {
	Runner      process.Runner
	Tool        string
	ResourceDir string
	OutputDir   string
}

func (s *ResourceCompile) Name() string { return "ResourceCompile" }

func (s *ResourceCompile) Execute(ctx context.Context, sink process.Sink) Result {
	if !isDir(s.ResourceDir) {
		return failed(s.Name(), sink, missing("resource directory", s.ResourceDir))
	}
	if err := ensureDir(s.OutputDir); err != nil {
		return failed(s.Name(), sink, err)
	}
	cmd := process.Command{Argv: []string{s.Tool, "compile", "--dir", s.ResourceDir, "-o", s.OutputDir}}
	return invoke(ctx, s.Runner, s.Name(), cmd, sink)
}

// ResourceLink links compiled resources and the manifest into a base package and
// generates the resource identifier sources.
type ResourceLink struct {
	Runner         process.Runner
	Tool           string
	CompiledResDir string
	PlatformLib    string
	Manifest       string
	OutputPackage  string
	GenSourceDir   string
}

func (s *ResourceLink) Name() string { return "ResourceLink" }

func (s *ResourceLink) Execute(ctx context.Context, sink process.Sink) Result {
	if !exists(s.Manifest) {
		return failed(s.Name(), sink, missing("manifest", s.Manifest))
	}
	if !exists(s.PlatformLib) {
		return failed(s.Name(), sink, missing("platform library", s.PlatformLib))
	}
	if err := ensureDir(filepath.Dir(s.OutputPackage)); err != nil {
		return failed(s.Name(), sink, err)
	}
	if err := ensureDir(s.GenSourceDir); err != nil {
		return failed(s.Name(), sink, err)
	}

	var flats []string
	if isDir(s.CompiledResDir) {
		var err error
		flats, err = collectFiles(s.CompiledResDir, withExt(".flat"))
		if err != nil {
			return failed(s.Name(), sink, errors.WrapError(err, errors.CategoryFileSystem, "failed to scan compiled resources").Build())
		}
	}
	if len(flats) == 0 {
		return failed(s.Name(), sink, errors.FileSystemError(fmt.Sprintf("no .flat files found in %s", s.CompiledResDir)).Build())
	}

	argv := []string{
		s.Tool, "link",
		"-o", s.OutputPackage,
		"-I", s.PlatformLib,
		"--manifest", s.Manifest,
		"--java", s.GenSourceDir,
		"--auto-add-overlay",
	}
	argv = append(argv, flats...)
	return invoke(ctx, s.Runner, s.Name(), process.Command{Argv: argv}, sink)
}
