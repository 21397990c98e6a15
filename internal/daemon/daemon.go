package daemon

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/pkgbuilder/internal/build"
	"git.home.luguber.info/inful/pkgbuilder/internal/config"
	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgbuilder/internal/logfields"
	"git.home.luguber.info/inful/pkgbuilder/internal/toolchain"
)

const shutdownTimeout = 5 * time.Second

// Daemon owns the triggers around one build service.
type Daemon struct {
	cfg      *config.Config
	svc      *build.Service
	gatherer prom.Gatherer
	started  time.Time

	// Ready receives the bound HTTP address once the server listens. Optional.
	Ready func(addr string)

	mu   sync.Mutex
	last *LastBuild
}

// New returns a daemon for cfg. gatherer may be nil when metrics are disabled.
func New(cfg *config.Config, svc *build.Service, gatherer prom.Gatherer) *Daemon {
	return &Daemon{cfg: cfg, svc: svc, gatherer: gatherer, started: time.Now()}
}

// Trigger starts a build unless one is already running. It reports whether a
// build was started.
func (d *Daemon) Trigger(reason string) bool {
	cb := &triggerCallback{d: d}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	id, err := d.svc.Start(build.Request{ProjectPath: d.cfg.Project.Path}, cb)
	if err != nil {
		if stderrors.Is(err, build.ErrBuildInProgress) {
			slog.Info("Build trigger skipped: build in progress", slog.String("reason", reason))
		} else {
			slog.Error("Build trigger failed", slog.String("reason", reason), logfields.Error(err))
		}
		return false
	}
	cb.id = id
	slog.Info("Build triggered", logfields.BuildID(id), slog.String("reason", reason))
	return true
}

// triggerCallback logs one daemon build. Its methods block until Trigger has
// stored the build ID.
type triggerCallback struct {
	d  *Daemon
	mu sync.Mutex
	id string
}

func (c *triggerCallback) buildID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *triggerCallback) OnLog(m string) { slog.Debug(m, logfields.BuildID(c.buildID())) }

func (c *triggerCallback) OnSuccess(path string) {
	id := c.buildID()
	slog.Info("Daemon build succeeded", logfields.BuildID(id), logfields.Path(path))
	c.d.record(id, "success", path)
}

func (c *triggerCallback) OnFailure(reason string) {
	id := c.buildID()
	slog.Error("Daemon build failed", logfields.BuildID(id), slog.String("reason", reason))
	c.d.record(id, "failure", reason)
}

func (d *Daemon) record(id, outcome, msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = &LastBuild{ID: id, Outcome: outcome, Message: msg, Finished: time.Now().UTC()}
}

func (d *Daemon) lastBuild() *LastBuild {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return nil
	}
	cp := *d.last
	return &cp
}

// Run blocks until ctx is done. On return any active build has been canceled
// and has delivered its terminal callback.
func (d *Daemon) Run(ctx context.Context) error {
	dc := d.cfg.Daemon
	if dc == nil {
		dc = &config.DaemonConfig{}
	}
	g, gctx := errgroup.WithContext(ctx)

	var sched *Scheduler
	if dc.Interval > 0 {
		s, err := NewScheduler()
		if err != nil {
			return err
		}
		if _, err := s.ScheduleEvery("periodic-build", dc.Interval, func() { d.Trigger("schedule") }); err != nil {
			return err
		}
		s.Start()
		sched = s
	}

	if dc.Watch {
		layout := toolchain.NewLayout(d.cfg.Project.Path)
		w, err := NewSourceWatcher([]string{filepath.Dir(layout.Manifest)}, dc.Debounce, func(reason string) { d.Trigger(reason) })
		if err != nil {
			if sched != nil {
				_ = sched.Stop()
			}
			return err
		}
		g.Go(func() error { return w.Run(gctx) })
	}

	var srv *http.Server
	if mon := d.cfg.Monitoring; mon != nil {
		ln, err := net.Listen("tcp", mon.Metrics.Address)
		if err != nil {
			if sched != nil {
				_ = sched.Stop()
			}
			return errors.DaemonError("failed to bind monitoring address").WithCause(err).
				WithContext("address", mon.Metrics.Address).Build()
		}
		srv = &http.Server{Handler: d.handler(mon, d.gatherer), ReadHeaderTimeout: 10 * time.Second}
		slog.Info("Monitoring server listening", slog.String("address", ln.Addr().String()))
		if d.Ready != nil {
			d.Ready(ln.Addr().String())
		}
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return errors.DaemonError("monitoring server failed").WithCause(err).Build()
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Daemon stopping")
		if sched != nil {
			if err := sched.Stop(); err != nil {
				slog.Warn("Scheduler shutdown error", logfields.Error(err))
			}
		}
		if d.svc.Busy() {
			d.svc.UpdateNotification("Daemon stopping, canceling build")
		}
		d.svc.CancelBuild()
		d.svc.Wait()
		if srv != nil {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				slog.Warn("Monitoring server shutdown error", logfields.Error(err))
			}
		}
		return nil
	})

	if dc.Interval > 0 {
		d.Trigger("startup")
	}
	return g.Wait()
}
