package toolchain

import (
	"path/filepath"

	"git.home.luguber.info/inful/pkgbuilder/internal/config"
	"git.home.luguber.info/inful/pkgbuilder/internal/process"
)

// Layout holds the conventional paths of a project tree.
type Layout struct {
	Root        string
	ResDir      string
	Manifest    string
	SourceDir   string
	BuildDir    string
	CompiledRes string
	GenDir      string
	BasePackage string
	ClassesDir  string
	DexDir      string
	JNILibsDir  string
	AssetsDir   string
	// FinalPackage is the signed artifact handed to the installer.
	FinalPackage string
	Keystore     string
}

// NewLayout derives the standard layout below root.
func NewLayout(root string) Layout {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	main := filepath.Join(root, "app", "src", "main")
	build := filepath.Join(root, "build")
	return Layout{
		Root:         root,
		ResDir:       filepath.Join(main, "res"),
		Manifest:     filepath.Join(main, "AndroidManifest.xml"),
		SourceDir:    filepath.Join(main, "java"),
		BuildDir:     build,
		CompiledRes:  filepath.Join(build, "compiled_res"),
		GenDir:       filepath.Join(build, "gen"),
		BasePackage:  filepath.Join(build, "app.apk"),
		ClassesDir:   filepath.Join(build, "classes"),
		DexDir:       filepath.Join(build, "dex"),
		JNILibsDir:   filepath.Join(build, "intermediates", "jniLibs"),
		AssetsDir:    filepath.Join(build, "intermediates", "assets"),
		FinalPackage: filepath.Join(build, "app-signed.apk"),
		Keystore:     filepath.Join(root, "debug.keystore"),
	}
}

// StandardSteps builds the six-step pipeline for l. The assembled package is
// signed in place, so the final artifact is l.FinalPackage.
func StandardSteps(l Layout, tc config.ToolchainConfig, sc config.SigningConfig, runner process.Runner) []Step {
	snaps := Snapshots{Enabled: tc.Incremental}
	keystore := sc.Keystore
	if keystore == "" {
		keystore = l.Keystore
	}
	return []Step{
		&ResourceCompile{Runner: runner, Tool: tc.AAPT2, ResourceDir: l.ResDir, OutputDir: l.CompiledRes},
		&ResourceLink{
			Runner:         runner,
			Tool:           tc.AAPT2,
			CompiledResDir: l.CompiledRes,
			PlatformLib:    tc.PlatformJar,
			Manifest:       l.Manifest,
			OutputPackage:  l.BasePackage,
			GenSourceDir:   l.GenDir,
		},
		&LanguageCompile{
			Runner:          runner,
			Compiler:        tc.Kotlinc,
			Classpath:       append([]string{tc.PlatformJar}, tc.Classpath...),
			SourceDir:       l.SourceDir,
			ExtraSourceDirs: []string{l.GenDir},
			OutputDir:       l.ClassesDir,
			Snapshots:       snaps,
		},
		&BytecodeTranslate{
			Runner:      runner,
			Tool:        tc.D8,
			PlatformLib: tc.PlatformJar,
			ClassesDir:  l.ClassesDir,
			OutputDir:   l.DexDir,
			Snapshots:   snaps,
		},
		&PackageAssemble{
			FinalPackage: l.FinalPackage,
			BasePackage:  l.BasePackage,
			BytecodeDir:  l.DexDir,
			JNILibsDir:   dirOrEmpty(l.JNILibsDir),
			AssetsDir:    dirOrEmpty(l.AssetsDir),
		},
		&PackageSign{
			Runner:   runner,
			Tool:     tc.Apksigner,
			Java:     tc.Java,
			Keystore: keystore,
			Password: sc.Password,
			Alias:    sc.Alias,
			Package:  l.FinalPackage,
		},
	}
}

// RequiredTools lists the tools a local build needs, in verification order.
func RequiredTools(l Layout, tc config.ToolchainConfig, sc config.SigningConfig) []Tool {
	keystore := sc.Keystore
	if keystore == "" {
		keystore = l.Keystore
	}
	tools := []Tool{
		{Name: "aapt2", Path: tc.AAPT2},
		{Name: "kotlinc", Path: tc.Kotlinc},
		{Name: "d8", Path: tc.D8},
		{Name: "apksigner", Path: tc.Apksigner},
		{Name: "android.jar", Path: tc.PlatformJar},
		{Name: "keystore", Path: keystore},
	}
	if tc.Java != "" {
		tools = append(tools, Tool{Name: "java", Path: tc.Java})
	}
	return tools
}

func dirOrEmpty(dir string) string {
	if isDir(dir) {
		return dir
	}
	return ""
}
