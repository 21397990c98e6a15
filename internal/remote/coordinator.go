// Package remote delegates a build to a CI workflow, waits for it, then fetches
// and installs the released package.
package remote

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/pkgbuilder/internal/ci"
	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgbuilder/internal/install"
	"git.home.luguber.info/inful/pkgbuilder/internal/logfields"
	"git.home.luguber.info/inful/pkgbuilder/internal/metrics"
	"git.home.luguber.info/inful/pkgbuilder/internal/observability"
	"git.home.luguber.info/inful/pkgbuilder/internal/process"
)

// Sentinel causes of terminal failures.
var (
	ErrRunNotFound     = stderrors.New("no matching workflow run")
	ErrRunTimeout      = stderrors.New("completion deadline exceeded")
	ErrRunFailed       = stderrors.New("workflow run did not succeed")
	ErrReleaseNotFound = stderrors.New("release missing")
	ErrAssetNotFound   = stderrors.New("asset missing")
)

// ProgressFunc reports download progress as a percentage with a task label.
type ProgressFunc func(percent int, task string)

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Coordinator runs the remote build state machine. A Coordinator may be reused
// for consecutive builds but runs one at a time.
type Coordinator struct {
	api       ci.API
	settings  Settings
	installer install.Installer
	recorder  metrics.Recorder
	progress  ProgressFunc
	wait      WaitFunc
	now       func() time.Time

	mu       sync.Mutex
	cancel   context.CancelFunc
	canceled bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithInstaller installs the downloaded package. Without one the build ends
// after the download.
func WithInstaller(i install.Installer) Option {
	return func(c *Coordinator) { c.installer = i }
}

func WithRecorder(r metrics.Recorder) Option {
	return func(c *Coordinator) { c.recorder = metrics.OrNoop(r) }
}

// WithProgress receives download progress.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Coordinator) { c.progress = fn }
}

// WithWait replaces the poll timer. Tests use it to run without real delays.
func WithWait(w WaitFunc) Option {
	return func(c *Coordinator) { c.wait = w }
}

// WithClock replaces the clock used for the completion deadline.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New returns a Coordinator.
func New(api ci.API, settings Settings, opts ...Option) *Coordinator {
	c := &Coordinator{
		api:      api,
		settings: settings,
		recorder: metrics.NoopRecorder{},
		wait:     Wait,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wait is the default WaitFunc: a timer that returns ctx.Err() on cancellation.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Cancel stops a running build at its next suspension point. Results of
// in-flight requests are discarded.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canceled = true
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Coordinator) begin(ctx context.Context) (context.Context, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := context.WithCancel(ctx)
	c.canceled = false
	c.cancel = cancel
	return ctx, func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		cancel()
	}
}

func (c *Coordinator) isCanceled(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canceled || ctx.Err() != nil
}

// run holds the per-build state threaded through the phases.
type run struct {
	ctx     context.Context
	sink    process.Sink
	session *Session
}

func (r *run) log(format string, args ...any) {
	if r.sink != nil {
		r.sink(fmt.Sprintf(format, args...))
	}
}

func (r *run) enter(state State) {
	r.session.State = state
	r.ctx = observability.WithStep(r.ctx, string(state))
	observability.DebugContext(r.ctx, "Remote build state", logfields.State(string(state)))
}

// Run executes a remote build. The returned session is always non-nil and ends
// in a terminal state; err is nil only for StateSucceeded.
func (c *Coordinator) Run(ctx context.Context, sink process.Sink) (*Session, error) {
	ctx, done := c.begin(ctx)
	defer done()

	r := &run{ctx: ctx, sink: sink, session: &Session{}}
	err := c.execute(r)
	switch {
	case err == nil:
		r.enter(StateSucceeded)
	case errors.HasCategory(err, errors.CategoryCanceled) || c.isCanceled(ctx):
		r.enter(StateCanceled)
		if !errors.HasCategory(err, errors.CategoryCanceled) {
			err = errors.CanceledError("remote build canceled").WithCause(err).Build()
		}
	default:
		r.enter(StateFailed)
	}
	return r.session, err
}

func (c *Coordinator) execute(r *run) error {
	s := c.settings
	r.enter(StateResolvingHead)
	if err := s.Validate(); err != nil {
		return err
	}
	r.log("Resolving head of %s@%s...", s.repository(), s.Branch)
	branch, err := c.api.GetBranch(r.ctx, s.Owner, s.Repo, s.Branch)
	if err != nil {
		return c.abort(r, err, "failed to resolve branch head")
	}
	r.session.HeadSHA = branch.Commit.SHA
	r.log("Head commit: %s", r.session.HeadSHA)
	observability.InfoContext(r.ctx, "Resolved branch head",
		logfields.Repository(s.repository()), logfields.Branch(s.Branch), logfields.SHA(r.session.HeadSHA))

	r.enter(StateDispatching)
	if err := c.checkpoint(r); err != nil {
		return err
	}
	r.log("Dispatching workflow %s on %s...", s.Workflow, s.Branch)
	if err := c.api.DispatchWorkflow(r.ctx, s.Owner, s.Repo, s.Workflow, s.Branch); err != nil {
		if c.isCanceled(r.ctx) {
			return c.canceledErr(r)
		}
		r.log("Warning: workflow dispatch failed: %s", errors.Describe(err))
		observability.WarnContext(r.ctx, "Workflow dispatch failed", logfields.Error(err))
	}

	r.enter(StateAwaitingRunDiscovery)
	found, err := c.discoverRun(r)
	if err != nil {
		return err
	}
	id := found.ID
	r.session.RunID = &id
	r.session.RunURL = found.HTMLURL
	r.session.Status = found.Status
	r.session.Conclusion = found.Conclusion

	r.enter(StateAwaitingCompletion)
	if err := c.awaitCompletion(r); err != nil {
		return err
	}
	if r.session.Conclusion != ci.ConclusionSuccess {
		c.reportLogs(r)
		r.log("Remote build failed with conclusion: %s", r.session.Conclusion)
		return errors.RemoteError("remote build failed with conclusion: "+r.session.Conclusion).
			WithCause(ErrRunFailed).
			WithContext("run_id", id).
			WithContext("conclusion", r.session.Conclusion).
			Build()
	}

	r.enter(StateLocatingArtifact)
	r.log("Build succeeded. Checking releases...")
	asset, err := c.locateAsset(r)
	if err != nil {
		return err
	}

	r.enter(StateDownloading)
	path, err := c.download(r, asset)
	if err != nil {
		return err
	}
	r.session.ArtifactPath = path

	r.enter(StateInstalling)
	if c.installer == nil {
		r.log("Install skipped")
		return nil
	}
	if err := c.checkpoint(r); err != nil {
		return err
	}
	r.log("Installing %s...", path)
	if err := c.installer.Install(r.ctx, path, r.sink); err != nil {
		return c.abort(r, err, "failed to install package")
	}
	r.log("Installed %s", path)
	return nil
}

// discoverRun polls the run list up to DiscoveryAttempts times, waiting before
// each poll. A non-completed run for the head commit wins over a completed one.
func (c *Coordinator) discoverRun(r *run) (*ci.WorkflowRun, error) {
	s := c.settings
	for attempt := 1; attempt <= s.DiscoveryAttempts; attempt++ {
		if err := c.sleep(r, s.DiscoveryInterval); err != nil {
			return nil, err
		}
		r.log("Waiting for workflow run (attempt %d/%d)...", attempt, s.DiscoveryAttempts)
		c.recorder.IncRemotePoll("discovery")

		runs, err := c.api.ListRuns(r.ctx, s.Owner, s.Repo, s.Branch, s.RunsPerPage)
		if err != nil {
			if c.isCanceled(r.ctx) {
				return nil, c.canceledErr(r)
			}
			r.log("Warning: failed to list runs: %s", errors.Describe(err))
			observability.WarnContext(r.ctx, "Run discovery poll failed", logfields.Attempt(attempt), logfields.Error(err))
			continue
		}
		if found := matchRun(runs, r.session.HeadSHA); found != nil {
			r.log("Found run %d (%s)", found.ID, found.Status)
			observability.InfoContext(r.ctx, "Workflow run discovered",
				logfields.RunID(found.ID), logfields.Attempt(attempt), logfields.Status(found.Status))
			return found, nil
		}
	}
	return nil, errors.RemoteError("could not find run for commit "+r.session.HeadSHA).
		WithCause(ErrRunNotFound).
		WithContext("attempts", s.DiscoveryAttempts).
		Build()
}

func matchRun(runs []ci.WorkflowRun, sha string) *ci.WorkflowRun {
	var fallback *ci.WorkflowRun
	for i := range runs {
		if runs[i].HeadSHA != sha {
			continue
		}
		if !runs[i].Completed() {
			return &runs[i]
		}
		if fallback == nil {
			fallback = &runs[i]
		}
	}
	return fallback
}

func (c *Coordinator) awaitCompletion(r *run) error {
	s := c.settings
	id := *r.session.RunID
	deadline := c.now().Add(s.CompletionTimeout)

	for r.session.Status != ci.StatusCompleted {
		if !c.now().Before(deadline) {
			return errors.RemoteError(fmt.Sprintf("timed out waiting for run %d", id)).
				WithCause(ErrRunTimeout).
				WithContext("run_id", id).
				WithContext("timeout", s.CompletionTimeout.String()).
				Build()
		}
		if err := c.sleep(r, s.CompletionInterval); err != nil {
			return err
		}
		c.recorder.IncRemotePoll("completion")

		wr, err := c.api.GetRun(r.ctx, s.Owner, s.Repo, id)
		if err != nil {
			if c.isCanceled(r.ctx) {
				return c.canceledErr(r)
			}
			r.log("Warning: failed to poll run %d: %s", id, errors.Describe(err))
			observability.WarnContext(r.ctx, "Run status poll failed", logfields.RunID(id), logfields.Error(err))
			continue
		}
		r.session.Status = wr.Status
		r.session.Conclusion = wr.Conclusion
		conclusion := wr.Conclusion
		if conclusion == "" {
			conclusion = "..."
		}
		r.log("Build status: %s (%s)", wr.Status, conclusion)
	}
	observability.InfoContext(r.ctx, "Workflow run completed",
		logfields.RunID(id), logfields.Conclusion(r.session.Conclusion))
	return nil
}

// reportLogs points the user at the failed run's logs. Errors are ignored.
func (c *Coordinator) reportLogs(r *run) {
	if c.isCanceled(r.ctx) {
		return
	}
	u, err := c.api.GetRunLogsURL(r.ctx, c.settings.Owner, c.settings.Repo, *r.session.RunID)
	if err != nil {
		observability.DebugContext(r.ctx, "Run logs unavailable", logfields.Error(err))
		if r.session.RunURL != "" {
			r.log("Run details: %s", r.session.RunURL)
		}
		return
	}
	r.log("Run logs: %s", u)
}

func (c *Coordinator) locateAsset(r *run) (*ci.Asset, error) {
	s := c.settings
	if err := c.checkpoint(r); err != nil {
		return nil, err
	}
	releases, err := c.api.ListReleases(r.ctx, s.Owner, s.Repo)
	if err != nil {
		return nil, c.abort(r, err, "failed to list releases")
	}
	for _, rel := range releases {
		if rel.TagName != s.ReleaseTag {
			continue
		}
		for i := range rel.Assets {
			if strings.HasSuffix(rel.Assets[i].Name, s.AssetSuffix) {
				return &rel.Assets[i], nil
			}
		}
		return nil, errors.RemoteError(fmt.Sprintf("no %s asset found in '%s' release", s.AssetSuffix, s.ReleaseTag)).
			WithCause(ErrAssetNotFound).Build()
	}
	return nil, errors.RemoteError(fmt.Sprintf("could not find '%s' release", s.ReleaseTag)).
		WithCause(ErrReleaseNotFound).Build()
}

func (c *Coordinator) download(r *run, asset *ci.Asset) (string, error) {
	dir := c.settings.DownloadDir
	if err := c.checkpoint(r); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.WrapError(err, errors.CategoryFileSystem, "failed to create download directory").
			WithContext("path", dir).Build()
	}
	dst := filepath.Join(dir, filepath.Base(asset.Name))
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryFileSystem, "failed to create temp file").Build()
	}
	keep := false
	defer func() {
		if !keep {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	r.log("Downloading %s...", asset.Name)
	task := "Downloading " + asset.Name
	var progress ci.ProgressFunc
	if c.progress != nil {
		last := -1
		progress = func(written, total int64) {
			if total <= 0 {
				total = asset.Size
			}
			if total <= 0 {
				return
			}
			pct := int(written * 100 / total)
			if pct != last {
				last = pct
				c.progress(pct, task)
			}
		}
	}

	n, err := c.api.Download(r.ctx, asset.DownloadURL(), tmp, progress)
	if err != nil {
		if c.isCanceled(r.ctx) {
			return "", c.canceledErr(r)
		}
		return "", c.abort(r, err, "failed to download "+asset.Name)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.WrapError(err, errors.CategoryFileSystem, "failed to write download").Build()
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", errors.WrapError(err, errors.CategoryFileSystem, "failed to move download into place").
			WithContext("path", dst).Build()
	}
	keep = true
	r.log("Downloaded %s (%d bytes)", dst, n)
	return dst, nil
}

func (c *Coordinator) sleep(r *run, d time.Duration) error {
	if err := c.checkpoint(r); err != nil {
		return err
	}
	if err := c.wait(r.ctx, d); err != nil {
		return c.canceledErr(r)
	}
	return c.checkpoint(r)
}

func (c *Coordinator) checkpoint(r *run) error {
	if c.isCanceled(r.ctx) {
		return c.canceledErr(r)
	}
	return nil
}

func (c *Coordinator) canceledErr(r *run) error {
	b := errors.CanceledError(fmt.Sprintf("remote build canceled while %s", strings.ReplaceAll(string(r.session.State), "_", " ")))
	if err := r.ctx.Err(); err != nil {
		b = b.WithCause(err)
	}
	return b.Build()
}

// abort wraps a collaborator error, preferring cancellation when it raced.
func (c *Coordinator) abort(r *run, err error, msg string) error {
	if c.isCanceled(r.ctx) {
		return c.canceledErr(r)
	}
	return errors.WrapError(err, errors.GetCategory(err), msg).
		WithContext("state", string(r.session.State)).
		WithContext("repository", c.settings.repository()).
		Build()
}
