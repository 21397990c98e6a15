package remote

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/pkgbuilder/internal/config"
	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
)

// Settings parameterize a Coordinator.
type Settings struct {
	Token       string
	Owner       string
	Repo        string
	Branch      string
	Workflow    string
	ReleaseTag  string
	AssetSuffix string
	DownloadDir string

	RunsPerPage        int
	DiscoveryAttempts  int
	DiscoveryInterval  time.Duration
	CompletionInterval time.Duration
	CompletionTimeout  time.Duration
}

// SettingsFromConfig copies the remote section.
func SettingsFromConfig(rc config.RemoteConfig) Settings {
	dir := rc.DownloadDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "pkgbuilder")
	}
	return Settings{
		Token:              rc.Token,
		Owner:              rc.Owner,
		Repo:               rc.Repo,
		Branch:             rc.Branch,
		Workflow:           rc.Workflow,
		ReleaseTag:         rc.ReleaseTag,
		AssetSuffix:        rc.AssetSuffix,
		DownloadDir:        dir,
		RunsPerPage:        rc.RunsPerPage,
		DiscoveryAttempts:  rc.DiscoveryAttempts,
		DiscoveryInterval:  rc.DiscoveryInterval,
		CompletionInterval: rc.CompletionInterval,
		CompletionTimeout:  rc.CompletionTimeout,
	}
}

// Validate checks the values needed before any network call is made.
func (s Settings) Validate() error {
	var missing []string
	if s.Token == "" {
		missing = append(missing, "token")
	}
	if s.Owner == "" {
		missing = append(missing, "owner")
	}
	if s.Repo == "" {
		missing = append(missing, "repo")
	}
	if len(missing) > 0 {
		return errors.ConfigError("remote build is not configured; missing "+strings.Join(missing, ", ")).
			WithContext("missing", missing).Build()
	}
	if s.DiscoveryAttempts < 1 {
		return errors.ConfigError("discovery_attempts must be at least 1").Build()
	}
	return nil
}

func (s Settings) repository() string { return s.Owner + "/" + s.Repo }
