package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/pkgbuilder/internal/build"
	"git.home.luguber.info/inful/pkgbuilder/internal/config"
	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Path   string `arg:"" optional:"" help:"Project directory (defaults to project.path)"`
	Remote bool   `short:"r" help:"Build through the CI workflow instead of the local toolchain"`
}

func (b *BuildCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	strategy := cfg.Project.Strategy
	if b.Remote {
		strategy = config.StrategyRemote
	}
	return RunBuild(cfg, projectPath(b.Path, cfg), strategy, os.Stdout)
}

func projectPath(arg string, cfg *config.Config) string {
	if arg != "" {
		return arg
	}
	return cfg.Project.Path
}

type buildResult struct {
	artifact string
	reason   string
	failed   bool
}

// RunBuild runs one build to completion, printing its log to out. An interrupt
// cancels the build and waits for it to wind down.
func RunBuild(cfg *config.Config, path string, strategy config.BuildStrategy, out io.Writer) error {
	ctx, stop := signalContext()
	defer stop()

	printLine := func(line string) { _, _ = fmt.Fprintln(out, line) }
	deps := serviceDeps{
		Notifier: func(m string) { slog.Info(m, slog.String("strategy", string(strategy))) },
	}
	var bar *progressBar
	if strategy == config.StrategyRemote {
		bar = newProgressBar(os.Stderr)
		deps.Progress = bar.Update
	}

	svc, cleanup, err := newService(context.Background(), cfg, deps)
	if err != nil {
		return err
	}
	defer cleanup()

	result := make(chan buildResult, 1)
	cb := build.CallbackFuncs{
		Log:     printLine,
		Success: func(p string) { result <- buildResult{artifact: p} },
		Failure: func(r string) { result <- buildResult{reason: r, failed: true} },
	}
	if _, err := svc.Start(build.Request{ProjectPath: path, Strategy: strategy}, cb); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			svc.UpdateNotification("Interrupted, canceling build...")
			svc.CancelBuild()
		case <-done:
		}
	}()
	svc.Wait()
	close(done)
	res := <-result
	bar.Finish()

	if res.failed {
		if ctx.Err() != nil {
			return errors.CanceledError("build canceled").WithContext("reason", res.reason).Build()
		}
		return errors.BuildError(res.reason).WithContext("strategy", string(strategy)).Build()
	}
	printLine("Build succeeded: " + res.artifact)
	return nil
}
