package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgbuilder/internal/process"
)

// DexFileName is the bytecode artifact produced by BytecodeTranslate.
const DexFileName = "classes.dex"

// LanguageCompile compiles application sources to JVM class files.
type LanguageCompile struct {
	Runner    process.Runner
	Compiler  string
	Classpath []string
	SourceDir string
	// ExtraSourceDirs are compiled alongside SourceDir (generated resource ids).
	ExtraSourceDirs []string
	OutputDir       string
	Snapshots       Snapshots
}

func (s *LanguageCompile) Name() string { return "LanguageCompile" }

func (s *LanguageCompile) Execute(ctx context.Context, sink process.Sink) Result {
	if !isDir(s.SourceDir) {
		return failed(s.Name(), sink, missing("source directory", s.SourceDir))
	}
	sources, err := collectFiles(s.SourceDir, isSource)
	if err != nil {
		return failed(s.Name(), sink, errors.WrapError(err, errors.CategoryFileSystem, "failed to scan sources").Build())
	}
	if len(sources) == 0 {
		return failed(s.Name(), sink, errors.FileSystemError(fmt.Sprintf("no source files found in %s", s.SourceDir)).Build())
	}

	inputs := append([]string{}, sources...)
	for _, dir := range s.ExtraSourceDirs {
		if extra, err := collectFiles(dir, isSource); err == nil {
			inputs = append(inputs, extra...)
		}
	}
	inputs = append(inputs, s.Classpath...)

	if s.Snapshots.UpToDate("kotlinc", inputs, s.OutputDir, "") {
		return skipped(s.Name(), sink)
	}
	if err := ensureDir(s.OutputDir); err != nil {
		return failed(s.Name(), sink, err)
	}

	argv := []string{s.Compiler}
	if cp := strings.Join(s.Classpath, string(os.PathListSeparator)); cp != "" {
		argv = append(argv, "-classpath", cp)
	}
	argv = append(argv, "-d", s.OutputDir, s.SourceDir)
	for _, dir := range s.ExtraSourceDirs {
		if isDir(dir) {
			argv = append(argv, dir)
		}
	}

	res := invoke(ctx, s.Runner, s.Name(), process.Command{Argv: argv}, sink)
	if res.Success {
		if err := s.Snapshots.Record("kotlinc", inputs, s.OutputDir); err != nil {
			emit(sink, "Warning: failed to record snapshot: "+err.Error())
		}
	}
	return res
}

func isSource(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	return ext == ".kt" || ext == ".java"
}

// BytecodeTranslate converts class files into the device bytecode format.
type BytecodeTranslate struct {
	Runner      process.Runner
	Tool        string
	PlatformLib string
	ClassesDir  string
	OutputDir   string
	Snapshots   Snapshots
}

func (s *BytecodeTranslate) Name() string { return "BytecodeTranslate" }

func (s *BytecodeTranslate) Execute(ctx context.Context, sink process.Sink) Result {
	var classes []string
	if isDir(s.ClassesDir) {
		var err error
		classes, err = collectFiles(s.ClassesDir, withExt(".class"))
		if err != nil {
			return failed(s.Name(), sink, errors.WrapError(err, errors.CategoryFileSystem, "failed to scan class files").Build())
		}
	}
	if len(classes) == 0 {
		return failed(s.Name(), sink, errors.FileSystemError(fmt.Sprintf("no class files found in %s", s.ClassesDir)).Build())
	}

	inputs := append(append([]string{}, classes...), s.PlatformLib)
	if s.Snapshots.UpToDate("d8", inputs, s.OutputDir, DexFileName) {
		return skipped(s.Name(), sink)
	}
	if err := ensureDir(s.OutputDir); err != nil {
		return failed(s.Name(), sink, err)
	}

	argv := append([]string{s.Tool, "--lib", s.PlatformLib, "--output", s.OutputDir}, classes...)
	res := invoke(ctx, s.Runner, s.Name(), process.Command{Argv: argv}, sink)
	if res.Success {
		if err := s.Snapshots.Record("d8", inputs, s.OutputDir); err != nil {
			emit(sink, "Warning: failed to record snapshot: "+err.Error())
		}
	}
	return res
}
