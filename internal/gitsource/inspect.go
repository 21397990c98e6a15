// Package gitsource reads repository facts from a project checkout. It never
// writes to the repository.
package gitsource

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-git/go-git/v5"

	"git.home.luguber.info/inful/pkgbuilder/internal/config"
	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
)

// Info describes the checked-out state of a project.
type Info struct {
	Owner     string
	Repo      string
	Branch    string // empty when HEAD is detached
	Head      string
	RemoteURL string
}

// Inspect opens the repository containing projectPath and reads the origin
// remote and HEAD.
func Inspect(projectPath string) (*Info, error) {
	repository, err := git.PlainOpenWithOptions(projectPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, errors.GitError("failed to open repository").
			WithCause(err).
			WithContext("path", projectPath).
			Build()
	}

	info := &Info{}
	ref, err := repository.Head()
	if err != nil {
		return nil, errors.GitError("failed to resolve HEAD").WithCause(err).WithContext("path", projectPath).Build()
	}
	info.Head = ref.Hash().String()
	if ref.Name().IsBranch() {
		info.Branch = ref.Name().Short()
	}

	remote, err := repository.Remote(git.DefaultRemoteName)
	if err == nil && len(remote.Config().URLs) > 0 {
		info.RemoteURL = remote.Config().URLs[0]
		info.Owner, info.Repo, _ = ParseRemote(info.RemoteURL)
	}
	return info, nil
}

// ParseRemote extracts owner and repository from an https, ssh or scp-style
// remote URL.
func ParseRemote(raw string) (owner, repo string, err error) {
	raw = strings.TrimSpace(raw)
	var p string
	switch {
	case strings.Contains(raw, "://"):
		u, perr := url.Parse(raw)
		if perr != nil {
			return "", "", perr
		}
		p = u.Path
	case strings.Contains(raw, ":"):
		// git@github.com:owner/repo.git
		p = raw[strings.Index(raw, ":")+1:]
	default:
		return "", "", fmt.Errorf("unrecognized remote url %q", raw)
	}
	p = strings.TrimSuffix(strings.Trim(p, "/"), ".git")
	parts := strings.Split(p, "/")
	if len(parts) < 2 || parts[len(parts)-2] == "" || parts[len(parts)-1] == "" {
		return "", "", fmt.Errorf("remote url %q has no owner/repo path", raw)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}

// ApplyDefaults fills owner, repo and branch of rc from info where unset.
func ApplyDefaults(rc *config.RemoteConfig, info *Info) {
	if info == nil {
		return
	}
	if rc.Owner == "" {
		rc.Owner = info.Owner
	}
	if rc.Repo == "" {
		rc.Repo = info.Repo
	}
	if rc.Branch == "" {
		rc.Branch = info.Branch
	}
}
