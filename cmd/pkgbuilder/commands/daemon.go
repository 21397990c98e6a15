package commands

import (
	"context"
	"log/slog"
	"os"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/pkgbuilder/internal/config"
	"git.home.luguber.info/inful/pkgbuilder/internal/daemon"
	"git.home.luguber.info/inful/pkgbuilder/internal/logfields"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	Path  string `arg:"" optional:"" help:"Project directory (defaults to project.path)"`
	Watch bool   `short:"w" help:"Rebuild when sources change, overriding daemon.watch"`
}

func (d *DaemonCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	cfg.Project.Path = projectPath(d.Path, cfg)
	if cfg.Daemon == nil {
		cfg.Daemon = &config.DaemonConfig{}
	}
	if d.Watch {
		cfg.Daemon.Watch = true
	}
	return RunDaemon(cfg)
}

// RunDaemon blocks until SIGINT or SIGTERM.
func RunDaemon(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()

	var (
		reg      *prom.Registry
		gatherer prom.Gatherer
	)
	if cfg.Monitoring.Metrics.Enabled {
		reg = prom.NewRegistry()
		gatherer = reg
	}
	svc, cleanup, err := newService(context.Background(), cfg, serviceDeps{
		Registry: reg,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	slog.Info("Starting daemon", logfields.Path(cfg.Project.Path),
		slog.Duration("interval", cfg.Daemon.Interval), slog.Bool("watch", cfg.Daemon.Watch),
		slog.Int("pid", os.Getpid()))
	if err := daemon.New(cfg, svc, gatherer).Run(ctx); err != nil {
		return err
	}
	slog.Info("Daemon stopped")
	return nil
}
