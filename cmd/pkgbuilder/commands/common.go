package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/pkgbuilder/internal/build"
	"git.home.luguber.info/inful/pkgbuilder/internal/ci"
	"git.home.luguber.info/inful/pkgbuilder/internal/config"
	"git.home.luguber.info/inful/pkgbuilder/internal/events"
	"git.home.luguber.info/inful/pkgbuilder/internal/history"
	"git.home.luguber.info/inful/pkgbuilder/internal/httpclient"
	"git.home.luguber.info/inful/pkgbuilder/internal/install"
	"git.home.luguber.info/inful/pkgbuilder/internal/logfields"
	"git.home.luguber.info/inful/pkgbuilder/internal/metrics"
	"git.home.luguber.info/inful/pkgbuilder/internal/process"
	"git.home.luguber.info/inful/pkgbuilder/internal/remote"
)

// Global carries state shared by every command.
type Global struct {
	Logger *slog.Logger
}

// CLI is the root command.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"pkgbuilder.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Build the project with the configured strategy"`
	Remote  RemoteCmd  `cmd:"" help:"Build the project through the CI workflow"`
	Daemon  DaemonCmd  `cmd:"" help:"Keep building on a schedule and on source changes"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
	History HistoryCmd `cmd:"" help:"Show recorded build events"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfig reads the configuration file, falling back to defaults when it
// does not exist, and applies the configured logging settings.
func loadConfig(root *CLI) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(root.Config)
	if err != nil {
		return nil, err
	}
	configureLogging(cfg.Monitoring.Logging, root.Verbose)
	return cfg, nil
}

func configureLogging(lc config.MonitoringLogging, verbose bool) {
	var level slog.Level
	switch config.NormalizeLogLevel(string(lc.Level)) {
	case config.LogLevelDebug:
		level = slog.LevelDebug
	case config.LogLevelWarn:
		level = slog.LevelWarn
	case config.LogLevelError:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if config.NormalizeLogFormat(string(lc.Format)) == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// serviceDeps are the pieces assembled around a build service.
type serviceDeps struct {
	Notifier func(message string)
	Progress remote.ProgressFunc
	Registry *prom.Registry
}

// newService wires builders, observers and metrics for cfg. The returned
// cleanup closes the history store and event publisher.
func newService(ctx context.Context, cfg *config.Config, deps serviceDeps) (*build.Service, func(), error) {
	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if deps.Registry != nil {
		recorder = metrics.NewPrometheusRecorder(deps.Registry)
	}

	runner := process.NewExecRunner(cfg.Toolchain.Timeout)
	installer := install.FromConfig(cfg.Install, runner)

	httpOpts := httpclient.OptionsFromConfig(cfg)
	httpOpts.Recorder = recorder
	api := ci.NewClient(httpclient.New(httpOpts), cfg.Remote.APIURL)

	remoteOpts := []remote.Option{remote.WithRecorder(recorder)}
	if installer != nil {
		remoteOpts = append(remoteOpts, remote.WithInstaller(installer))
	}
	if deps.Progress != nil {
		remoteOpts = append(remoteOpts, remote.WithProgress(deps.Progress))
	}

	opts := []build.Option{
		build.WithBaseContext(ctx),
		build.WithDefaultStrategy(cfg.Project.Strategy),
		build.WithRecorder(recorder),
		build.WithLogBatchInterval(cfg.Project.LogBatchInterval),
		build.WithBuilder(config.StrategyLocal, &build.LocalBuilder{
			Toolchain: cfg.Toolchain,
			Signing:   cfg.Signing,
			Runner:    runner,
			Installer: installer,
			Recorder:  recorder,
		}),
		build.WithBuilder(config.StrategyRemote, &build.RemoteBuilder{
			API:     api,
			Remote:  cfg.Remote,
			Options: remoteOpts,
		}),
	}

	if deps.Notifier != nil {
		opts = append(opts, build.WithNotifier(deps.Notifier))
	}

	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				slog.Warn("Cleanup failed", logfields.Error(err))
			}
		}
	}

	if cfg.History != nil {
		store, err := history.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, store.Close)
		opts = append(opts, build.WithObserver(&build.HistoryObserver{Store: store}))
	}
	if cfg.Events != nil && cfg.Events.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.Events)
		if err != nil {
			slog.Warn("Build events disabled: cannot connect to NATS", logfields.URL(cfg.Events.NATSURL), logfields.Error(err))
		} else {
			obs := build.NewPublishObserver(pub, cfg.Events.IncludeLogs)
			// closers run in reverse, so queued events go out before the connection drains
			closers = append(closers, pub.Close, obs.Close)
			opts = append(opts, build.WithObserver(obs))
		}
	}

	return build.NewService(opts...), cleanup, nil
}
