package build

import (
	"context"
	"sync"

	"git.home.luguber.info/inful/pkgbuilder/internal/ci"
	"git.home.luguber.info/inful/pkgbuilder/internal/config"
	"git.home.luguber.info/inful/pkgbuilder/internal/gitsource"
	"git.home.luguber.info/inful/pkgbuilder/internal/process"
	"git.home.luguber.info/inful/pkgbuilder/internal/remote"
)

// RemoteBuilder delegates the build to a CI workflow. Owner, repo and branch
// missing from Remote are read from the project's checkout.
type RemoteBuilder struct {
	API     ci.API
	Remote  config.RemoteConfig
	Options []remote.Option
	// Inspect reads the checkout; defaults to gitsource.Inspect.
	Inspect func(projectPath string) (*gitsource.Info, error)

	mu      sync.Mutex
	current *remote.Coordinator
}

func (b *RemoteBuilder) Build(ctx context.Context, req Request, sink process.Sink) (string, error) {
	rc := b.Remote
	if rc.Owner == "" || rc.Repo == "" || rc.Branch == "" {
		inspect := b.Inspect
		if inspect == nil {
			inspect = gitsource.Inspect
		}
		if info, err := inspect(req.ProjectPath); err == nil {
			gitsource.ApplyDefaults(&rc, info)
		} else {
			emitLine(sink, "Warning: could not read repository: "+err.Error())
		}
	}
	if rc.Branch == "" {
		rc.Branch = config.DefaultBranch
	}

	coord := remote.New(b.API, remote.SettingsFromConfig(rc), b.Options...)
	b.mu.Lock()
	b.current = coord
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.current = nil
		b.mu.Unlock()
	}()

	sess, err := coord.Run(ctx, sink)
	if err != nil {
		return "", err
	}
	return sess.ArtifactPath, nil
}

// Cancel sets the running coordinator's cancellation flag.
func (b *RemoteBuilder) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil {
		b.current.Cancel()
	}
}
