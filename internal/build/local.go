package build

import (
	"context"

	"git.home.luguber.info/inful/pkgbuilder/internal/config"
	"git.home.luguber.info/inful/pkgbuilder/internal/install"
	"git.home.luguber.info/inful/pkgbuilder/internal/metrics"
	"git.home.luguber.info/inful/pkgbuilder/internal/pipeline"
	"git.home.luguber.info/inful/pkgbuilder/internal/process"
	"git.home.luguber.info/inful/pkgbuilder/internal/toolchain"
)

// LocalBuilder runs the toolchain pipeline on the project tree.
type LocalBuilder struct {
	Toolchain config.ToolchainConfig
	Signing   config.SigningConfig
	Runner    process.Runner
	// Installer, when set, receives the signed package before success is reported.
	Installer install.Installer
	Recorder  metrics.Recorder

	// Steps overrides the standard pipeline. Used by tests.
	Steps func(l toolchain.Layout) []toolchain.Step
}

func (b *LocalBuilder) Build(ctx context.Context, req Request, sink process.Sink) (string, error) {
	layout := toolchain.NewLayout(req.ProjectPath)

	var steps []toolchain.Step
	if b.Steps != nil {
		steps = b.Steps(layout)
	} else {
		if !b.Toolchain.SkipVerify {
			tools := toolchain.RequiredTools(layout, b.Toolchain, b.Signing)
			if err := toolchain.Verify(ctx, tools, sink); err != nil {
				return "", err
			}
		}
		steps = toolchain.StandardSteps(layout, b.Toolchain, b.Signing, b.Runner)
	}

	out := pipeline.New(steps, pipeline.WithRecorder(b.Recorder)).Run(ctx, sink)
	if !out.Success() {
		return "", out.Error()
	}

	if b.Installer != nil {
		emitLine(sink, "Installing "+layout.FinalPackage+"...")
		if err := b.Installer.Install(ctx, layout.FinalPackage, sink); err != nil {
			return "", err
		}
		emitLine(sink, "Installed "+layout.FinalPackage)
	}
	return layout.FinalPackage, nil
}

func emitLine(sink process.Sink, line string) {
	if sink != nil {
		sink(line)
	}
}
