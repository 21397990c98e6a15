package build

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/pkgbuilder/internal/config"
	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgbuilder/internal/logfields"
	"git.home.luguber.info/inful/pkgbuilder/internal/metrics"
	"git.home.luguber.info/inful/pkgbuilder/internal/observability"
	"git.home.luguber.info/inful/pkgbuilder/internal/process"
)

// ErrBuildInProgress is returned when a build is requested while another runs.
var ErrBuildInProgress = errors.NewError(errors.CategoryBuild, "a build is already in progress").Warning().Build()

const eventBuffer = 256

// Request describes one build.
type Request struct {
	ProjectPath string
	Strategy    config.BuildStrategy
}

// Builder performs a build and returns the artifact path.
type Builder interface {
	Build(ctx context.Context, req Request, sink process.Sink) (string, error)
}

// Canceler is implemented by builders that keep their own cancellation flag
// in addition to honoring ctx.
type Canceler interface {
	Cancel()
}

// Observer sees every event of every build, in order, before the callback does.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// Service runs at most one build at a time.
type Service struct {
	builders      map[config.BuildStrategy]Builder
	strategy      config.BuildStrategy
	observers     []Observer
	notifier      func(message string)
	recorder      metrics.Recorder
	batchInterval time.Duration
	newID         func() string
	baseCtx       context.Context

	mu     sync.Mutex
	active *activeBuild
}

type activeBuild struct {
	id       string
	strategy config.BuildStrategy
	cancel   context.CancelFunc
	builder  Builder
	emitter  *emitter
	done     chan struct{}
}

// Option configures a Service.
type Option func(*Service)

// WithBuilder registers the builder used for strategy.
func WithBuilder(strategy config.BuildStrategy, b Builder) Option {
	return func(s *Service) { s.builders[strategy] = b }
}

// WithDefaultStrategy selects the strategy used by StartBuild.
func WithDefaultStrategy(strategy config.BuildStrategy) Option {
	return func(s *Service) { s.strategy = strategy }
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observers = append(s.observers, o) }
}

// WithNotifier receives every UpdateNotification message, with or without an
// active build.
func WithNotifier(fn func(message string)) Option {
	return func(s *Service) { s.notifier = fn }
}

func WithRecorder(r metrics.Recorder) Option {
	return func(s *Service) { s.recorder = metrics.OrNoop(r) }
}

// WithLogBatchInterval joins log lines and delivers them at most once per d.
func WithLogBatchInterval(d time.Duration) Option {
	return func(s *Service) { s.batchInterval = d }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// WithBaseContext parents every build context on ctx.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Service) { s.baseCtx = ctx }
}

// NewService returns an idle service.
func NewService(opts ...Option) *Service {
	s := &Service{
		builders: make(map[config.BuildStrategy]Builder),
		strategy: config.StrategyLocal,
		recorder: metrics.NoopRecorder{},
		newID:    uuid.NewString,
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartBuild builds projectPath with the default strategy.
func (s *Service) StartBuild(projectPath string, cb Callback) error {
	_, err := s.Start(Request{ProjectPath: projectPath}, cb)
	return err
}

// Start begins a build and returns its ID. It never blocks on the build
// itself. A second call while a build is active returns ErrBuildInProgress.
func (s *Service) Start(req Request, cb Callback) (string, error) {
	if req.Strategy == "" {
		req.Strategy = s.strategy
	}
	if cb == nil {
		cb = CallbackFuncs{}
	}

	s.mu.Lock()
	if s.active != nil {
		activeID := s.active.id
		s.mu.Unlock()
		slog.Warn("Build request rejected: build already in progress",
			logfields.BuildID(activeID), logfields.Path(req.ProjectPath))
		s.recorder.IncBuildOutcome(string(req.Strategy), metrics.OutcomeRejected)
		return "", ErrBuildInProgress
	}
	builder, ok := s.builders[req.Strategy]
	if !ok {
		s.mu.Unlock()
		return "", errors.ConfigError(fmt.Sprintf("no builder configured for strategy %q", req.Strategy)).Build()
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	ab := &activeBuild{
		id:       s.newID(),
		strategy: req.Strategy,
		cancel:   cancel,
		builder:  builder,
		done:     make(chan struct{}),
	}
	ab.emitter = &emitter{ch: make(chan Event, eventBuffer), buildID: ab.id, strategy: string(req.Strategy)}
	s.active = ab
	s.mu.Unlock()

	s.recorder.SetBuildInProgress(true)
	go s.dispatch(ab, cb)
	go s.work(ctx, ab, req)
	return ab.id, nil
}

// UpdateNotification forwards message to the notifier and, when a build is
// running, to its callback as a log line.
func (s *Service) UpdateNotification(message string) {
	if s.notifier != nil {
		s.notifier(message)
	}
	s.mu.Lock()
	ab := s.active
	s.mu.Unlock()
	if ab != nil {
		ab.emitter.send(EventLog, message)
	}
}

// CancelBuild requests cooperative cancellation of the active build, if any.
func (s *Service) CancelBuild() {
	s.mu.Lock()
	ab := s.active
	s.mu.Unlock()
	if ab == nil {
		return
	}
	slog.Info("Build cancellation requested", logfields.BuildID(ab.id))
	ab.cancel()
	if c, ok := ab.builder.(Canceler); ok {
		c.Cancel()
	}
}

// Busy reports whether a build is active.
func (s *Service) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Wait blocks until the active build, if any, has delivered its terminal event.
func (s *Service) Wait() {
	s.mu.Lock()
	ab := s.active
	s.mu.Unlock()
	if ab != nil {
		<-ab.done
	}
}

func (s *Service) work(ctx context.Context, ab *activeBuild, req Request) {
	strategy := string(ab.strategy)
	ctx = observability.WithStrategy(observability.WithBuildID(ctx, ab.id), strategy)
	start := time.Now()

	var once sync.Once
	finish := func(kind EventKind, msg string, outcome metrics.BuildOutcomeLabel) {
		once.Do(func() {
			s.recorder.ObserveBuildDuration(strategy, time.Since(start))
			s.recorder.IncBuildOutcome(strategy, outcome)
			ab.emitter.send(kind, msg)
			ab.emitter.close()
			ab.cancel()
		})
	}
	defer func() {
		if r := recover(); r != nil {
			observability.ErrorContext(ctx, "Build worker panicked",
				slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			finish(EventFailure, fmt.Sprintf("internal error: %v", r), metrics.OutcomeFailed)
		}
	}()

	ab.emitter.send(EventStarted, req.ProjectPath)
	observability.InfoContext(ctx, "Build started", logfields.Path(req.ProjectPath))

	artifact, err := ab.builder.Build(ctx, req, func(line string) { ab.emitter.send(EventLog, line) })
	switch {
	case err == nil:
		observability.InfoContext(ctx, "Build succeeded", logfields.Path(artifact),
			logfields.DurationMS(float64(time.Since(start).Milliseconds())))
		finish(EventSuccess, artifact, metrics.OutcomeSuccess)
	case errors.HasCategory(err, errors.CategoryCanceled) || ctx.Err() != nil:
		observability.WarnContext(ctx, "Build canceled", logfields.Error(err))
		finish(EventFailure, failureReason(err), metrics.OutcomeCanceled)
	default:
		observability.ErrorContext(ctx, "Build failed", logfields.Error(err))
		finish(EventFailure, failureReason(err), metrics.OutcomeFailed)
	}
}

func failureReason(err error) string {
	reason := errors.Describe(err)
	if reason == "" {
		return "build failed"
	}
	return reason
}

// dispatch is the only goroutine that invokes the callback for ab.
func (s *Service) dispatch(ab *activeBuild, cb Callback) {
	defer func() {
		s.mu.Lock()
		if s.active == ab {
			s.active = nil
		}
		s.mu.Unlock()
		s.recorder.SetBuildInProgress(false)
		close(ab.done)
	}()

	obsCtx := context.WithoutCancel(s.baseCtx)
	var pending []string
	flush := func() {
		if len(pending) == 0 {
			return
		}
		msg := strings.Join(pending, "\n")
		pending = pending[:0]
		safeCall(ab.id, func() { cb.OnLog(msg) })
	}

	var tick <-chan time.Time
	if s.batchInterval > 0 {
		t := time.NewTicker(s.batchInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case ev, ok := <-ab.emitter.ch:
			if !ok {
				flush()
				return
			}
			for _, o := range s.observers {
				o.Observe(obsCtx, ev)
			}
			switch ev.Kind {
			case EventLog:
				if tick != nil {
					pending = append(pending, ev.Message)
				} else {
					safeCall(ab.id, func() { cb.OnLog(ev.Message) })
				}
			case EventSuccess:
				flush()
				safeCall(ab.id, func() { cb.OnSuccess(ev.Message) })
			case EventFailure:
				flush()
				safeCall(ab.id, func() { cb.OnFailure(ev.Message) })
			case EventStarted:
			}
		case <-tick:
			flush()
		}
	}
}

func safeCall(buildID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Build callback panicked", logfields.BuildID(buildID), slog.Any("panic", r))
		}
	}()
	fn()
}

// emitter serializes sends into a build's event channel and drops events
// once the terminal event has been sent.
type emitter struct {
	mu       sync.Mutex
	ch       chan Event
	closed   bool
	buildID  string
	strategy string
}

func (e *emitter) send(kind EventKind, msg string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.ch <- Event{Kind: kind, BuildID: e.buildID, Strategy: e.strategy, Message: msg, Time: time.Now()}
	return true
}

func (e *emitter) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
