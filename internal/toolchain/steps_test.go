package toolchain

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgbuilder/internal/process"
)

// fakeRunner records invocations and lets tests simulate tool side effects.
type fakeRunner struct {
	mu    sync.Mutex
	cmds  []process.Command
	onRun func(cmd process.Command) process.Result
}

func (f *fakeRunner) Run(_ context.Context, cmd process.Command, sink process.Sink) process.Result {
	f.mu.Lock()
	f.cmds = append(f.cmds, cmd)
	f.mu.Unlock()
	if f.onRun != nil {
		return f.onRun(cmd)
	}
	if sink != nil {
		sink("ran " + cmd.String())
	}
	return process.Result{OK: true}
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cmds)
}

func (f *fakeRunner) last() process.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cmds[len(f.cmds)-1]
}

func collectLines() (*[]string, process.Sink) {
	var lines []string
	return &lines, func(l string) { lines = append(lines, l) }
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestResourceCompile(t *testing.T) {
	t.Run("missing resource dir", func(t *testing.T) {
		r := &fakeRunner{}
		s := &ResourceCompile{Runner: r, Tool: "aapt2", ResourceDir: filepath.Join(t.TempDir(), "res"), OutputDir: t.TempDir()}
		res := s.Execute(t.Context(), nil)
		require.False(t, res.Success)
		require.Contains(t, res.Output, "resource directory not found")
		require.Equal(t, 0, r.calls())
	})

	t.Run("argument shape", func(t *testing.T) {
		dir := t.TempDir()
		res := filepath.Join(dir, "res")
		out := filepath.Join(dir, "build", "compiled_res")
		require.NoError(t, os.MkdirAll(res, 0o755))
		r := &fakeRunner{}
		s := &ResourceCompile{Runner: r, Tool: "aapt2", ResourceDir: res, OutputDir: out}

		result := s.Execute(t.Context(), nil)
		require.True(t, result.Success)
		require.Equal(t, "ResourceCompile", result.StepName)
		require.DirExists(t, out)
		require.Equal(t, []string{"aapt2", "compile", "--dir", res, "-o", out}, r.last().Argv)
	})
}

func TestResourceLink(t *testing.T) {
	setup := func(t *testing.T) (*ResourceLink, string) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "AndroidManifest.xml"), "<manifest/>")
		writeFile(t, filepath.Join(dir, "android.jar"), "jar")
		return &ResourceLink{
			Tool:           "aapt2",
			CompiledResDir: filepath.Join(dir, "compiled"),
			PlatformLib:    filepath.Join(dir, "android.jar"),
			Manifest:       filepath.Join(dir, "AndroidManifest.xml"),
			OutputPackage:  filepath.Join(dir, "out", "app.apk"),
			GenSourceDir:   filepath.Join(dir, "gen"),
		}, dir
	}

	t.Run("no flat files", func(t *testing.T) {
		s, _ := setup(t)
		r := &fakeRunner{}
		s.Runner = r
		require.NoError(t, os.MkdirAll(s.CompiledResDir, 0o755))

		res := s.Execute(t.Context(), nil)
		require.False(t, res.Success)
		require.Equal(t, "no .flat files found in "+s.CompiledResDir, res.Output)
		require.Equal(t, 0, r.calls())
	})

	t.Run("links flat files", func(t *testing.T) {
		s, _ := setup(t)
		r := &fakeRunner{}
		s.Runner = r
		writeFile(t, filepath.Join(s.CompiledResDir, "values_strings.arsc.flat"), "x")
		writeFile(t, filepath.Join(s.CompiledResDir, "layout_main.xml.flat"), "x")

		res := s.Execute(t.Context(), nil)
		require.True(t, res.Success)
		require.DirExists(t, s.GenSourceDir)
		require.DirExists(t, filepath.Dir(s.OutputPackage))
		argv := r.last().Argv
		require.Equal(t, []string{
			"aapt2", "link", "-o", s.OutputPackage, "-I", s.PlatformLib,
			"--manifest", s.Manifest, "--java", s.GenSourceDir, "--auto-add-overlay",
		}, argv[:11])
		require.Len(t, argv, 13)
		require.True(t, strings.HasSuffix(argv[11], "layout_main.xml.flat"))
	})
}

func TestLanguageCompile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "java")
	out := filepath.Join(dir, "classes")
	writeFile(t, filepath.Join(src, "com", "example", "Main.kt"), "fun main() {}")

	r := &fakeRunner{}
	r.onRun = func(cmd process.Command) process.Result {
		writeFile(t, filepath.Join(out, "com", "example", "MainKt.class"), "cafebabe")
		return process.Result{OK: true}
	}
	s := &LanguageCompile{
		Runner:    r,
		Compiler:  "kotlinc",
		Classpath: []string{"/sdk/android.jar", "/libs/a.jar"},
		SourceDir: src,
		OutputDir: out,
		Snapshots: Snapshots{Enabled: true},
	}

	res := s.Execute(t.Context(), nil)
	require.True(t, res.Success)
	require.Equal(t, []string{
		"kotlinc", "-classpath", "/sdk/android.jar" + string(os.PathListSeparator) + "/libs/a.jar",
		"-d", out, src,
	}, r.last().Argv)

	t.Run("second run is skipped", func(t *testing.T) {
		lines, sink := collectLines()
		res := s.Execute(t.Context(), sink)
		require.True(t, res.Success)
		require.True(t, res.Skipped)
		require.Equal(t, 1, r.calls())
		require.Equal(t, []string{"Skipping LanguageCompile: up-to-date"}, *lines)
	})

	t.Run("no sources", func(t *testing.T) {
		empty := filepath.Join(t.TempDir(), "java")
		require.NoError(t, os.MkdirAll(empty, 0o755))
		s := &LanguageCompile{Runner: &fakeRunner{}, Compiler: "kotlinc", SourceDir: empty, OutputDir: t.TempDir()}
		res := s.Execute(t.Context(), nil)
		require.False(t, res.Success)
		require.Contains(t, res.Output, "no source files found in")
	})
}

func TestBytecodeTranslate(t *testing.T) {
	t.Run("no class files", func(t *testing.T) {
		classes := t.TempDir()
		r := &fakeRunner{}
		s := &BytecodeTranslate{Runner: r, Tool: "d8", PlatformLib: "android.jar", ClassesDir: classes, OutputDir: t.TempDir()}
		res := s.Execute(t.Context(), nil)
		require.False(t, res.Success)
		require.Equal(t, "no class files found in "+classes, res.Output)
		require.Equal(t, 0, r.calls())
	})

	t.Run("collects classes recursively", func(t *testing.T) {
		dir := t.TempDir()
		classes := filepath.Join(dir, "classes")
		out := filepath.Join(dir, "dex")
		writeFile(t, filepath.Join(classes, "a", "A.class"), "x")
		writeFile(t, filepath.Join(classes, "a", "b", "B.class"), "x")
		writeFile(t, filepath.Join(classes, "META-INF", "main.kotlin_module"), "x")
		r := &fakeRunner{}

		res := (&BytecodeTranslate{Runner: r, Tool: "d8", PlatformLib: "android.jar", ClassesDir: classes, OutputDir: out}).
			Execute(t.Context(), nil)
		require.True(t, res.Success)
		require.DirExists(t, out)
		require.Equal(t, []string{
			"d8", "--lib", "android.jar", "--output", out,
			filepath.Join(classes, "a", "A.class"),
			filepath.Join(classes, "a", "b", "B.class"),
		}, r.last().Argv)
	})

	t.Run("tool failure carries stderr", func(t *testing.T) {
		classes := t.TempDir()
		writeFile(t, filepath.Join(classes, "A.class"), "x")
		r := &fakeRunner{onRun: func(process.Command) process.Result {
			return process.Result{ExitCode: 1, Stderr: "Error: bad class", Err: errors.ToolchainError("exited with status 1").Build()}
		}}
		res := (&BytecodeTranslate{Runner: r, Tool: "d8", PlatformLib: "android.jar", ClassesDir: classes, OutputDir: t.TempDir()}).
			Execute(t.Context(), nil)
		require.False(t, res.Success)
		require.Contains(t, res.Output, "Error: bad class")
		require.True(t, errors.HasCategory(res.Err, errors.CategoryToolchain))
	})
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	out := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = string(body)
	}
	return out
}

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestPackageAssemble(t *testing.T) {
	t.Run("missing dex", func(t *testing.T) {
		dex := t.TempDir()
		s := &PackageAssemble{FinalPackage: filepath.Join(t.TempDir(), "final.apk"), BasePackage: "base.apk", BytecodeDir: dex}
		res := s.Execute(t.Context(), nil)
		require.False(t, res.Success)
		require.Equal(t, "classes.dex not found in "+dex, res.Output)
	})

	t.Run("missing base", func(t *testing.T) {
		dex := t.TempDir()
		writeFile(t, filepath.Join(dex, DexFileName), "dex")
		base := filepath.Join(t.TempDir(), "app.apk")
		s := &PackageAssemble{FinalPackage: filepath.Join(t.TempDir(), "final.apk"), BasePackage: base, BytecodeDir: dex}
		res := s.Execute(t.Context(), nil)
		require.False(t, res.Success)
		require.Equal(t, "base package not found: "+base, res.Output)
	})

	t.Run("overwrites previous package", func(t *testing.T) {
		dir := t.TempDir()
		base := filepath.Join(dir, "app.apk")
		final := filepath.Join(dir, "app-signed.apk")
		dexDir := filepath.Join(dir, "dex")
		writeZip(t, base, map[string]string{
			"AndroidManifest.xml": "manifest",
			"resources.arsc":      "arsc",
			DexFileName:           "stale",
		})
		writeZip(t, final, map[string]string{"old.txt": "previous build"})
		writeFile(t, filepath.Join(dexDir, DexFileName), "fresh dex")

		lines, sink := collectLines()
		res := (&PackageAssemble{FinalPackage: final, BasePackage: base, BytecodeDir: dexDir}).Execute(t.Context(), sink)
		require.True(t, res.Success, res.Output)
		require.Equal(t, []string{"Assembled " + final + " (3 entries)"}, *lines)

		require.Equal(t, map[string]string{
			"AndroidManifest.xml": "manifest",
			"resources.arsc":      "arsc",
			DexFileName:           "fresh dex",
		}, readZip(t, final))

		leftovers, err := filepath.Glob(filepath.Join(dir, ".assemble-*"))
		require.NoError(t, err)
		require.Empty(t, leftovers)
	})

	t.Run("adds native libs and assets", func(t *testing.T) {
		dir := t.TempDir()
		base := filepath.Join(dir, "app.apk")
		writeZip(t, base, map[string]string{"AndroidManifest.xml": "m", "lib/x86/old.so": "old"})
		writeFile(t, filepath.Join(dir, "dex", DexFileName), "dex")
		writeFile(t, filepath.Join(dir, "jni", "arm64-v8a", "libnative.so"), "so")
		writeFile(t, filepath.Join(dir, "assets", "fonts", "a.ttf"), "font")
		final := filepath.Join(dir, "out.apk")

		res := (&PackageAssemble{
			FinalPackage: final,
			BasePackage:  base,
			BytecodeDir:  filepath.Join(dir, "dex"),
			JNILibsDir:   filepath.Join(dir, "jni"),
			AssetsDir:    filepath.Join(dir, "assets"),
		}).Execute(t.Context(), nil)
		require.True(t, res.Success, res.Output)

		entries := readZip(t, final)
		require.NotContains(t, entries, "lib/x86/old.so")
		require.Equal(t, "so", entries["lib/arm64-v8a/libnative.so"])
		require.Equal(t, "font", entries["assets/fonts/a.ttf"])
	})
}

func TestPackageSign(t *testing.T) {
	dir := t.TempDir()
	ks := filepath.Join(dir, "debug.keystore")
	pkg := filepath.Join(dir, "app-signed.apk")

	t.Run("missing keystore", func(t *testing.T) {
		res := (&PackageSign{Runner: &fakeRunner{}, Tool: "apksigner", Keystore: ks, Package: pkg}).Execute(t.Context(), nil)
		require.False(t, res.Success)
		require.Contains(t, res.Output, "keystore not found")
	})

	writeFile(t, ks, "ks")
	writeFile(t, pkg, "apk")

	t.Run("masks password", func(t *testing.T) {
		r := &fakeRunner{}
		lines, sink := collectLines()
		res := (&PackageSign{
			Runner: r, Tool: "apksigner.jar", Java: "java",
			Keystore: ks, Password: "s3cret", Alias: "androiddebugkey", Package: pkg,
		}).Execute(t.Context(), sink)
		require.True(t, res.Success)

		cmd := r.last()
		require.Equal(t, []string{
			"java", "-jar", "apksigner.jar", "sign",
			"--ks", ks, "--ks-pass", "pass:s3cret", "--key-pass", "pass:s3cret",
			"--ks-key-alias", "androiddebugkey", pkg,
		}, cmd.Argv)
		require.NotContains(t, cmd.String(), "s3cret")
		for _, l := range *lines {
			require.NotContains(t, l, "s3cret")
		}
	})
}
