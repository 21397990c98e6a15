package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pkgbuilder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("PKGBUILDER_GITHUB_TOKEN", "")
	t.Setenv("GITHUB_TOKEN", "env-token")
	path := writeConfig(t, `version: "1.0"
project:
  path: ./app
remote:
  owner: octo
  repo: demo
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, StrategyLocal, cfg.Project.Strategy)
	require.Equal(t, "env-token", cfg.Remote.Token)
	require.Equal(t, DefaultWorkflow, cfg.Remote.Workflow)
	require.Equal(t, DefaultReleaseTag, cfg.Remote.ReleaseTag)
	require.Equal(t, ".apk", cfg.Remote.AssetSuffix)
	require.Equal(t, 10, cfg.Remote.DiscoveryAttempts)
	require.Equal(t, 3*time.Second, cfg.Remote.DiscoveryInterval)
	require.Equal(t, 5*time.Second, cfg.Remote.CompletionInterval)
	require.Equal(t, 30*time.Minute, cfg.Remote.CompletionTimeout)
	require.Equal(t, 60*time.Second, cfg.Toolchain.Timeout)
	require.Equal(t, "android", cfg.Signing.Password)
	require.Equal(t, "androiddebugkey", cfg.Signing.Alias)

	retry := cfg.HTTP.Retry
	require.Equal(t, RetryBackoffExponential, retry.Backoff)
	require.Equal(t, 5, retry.MaxRetries)
	require.Equal(t, 500*time.Millisecond, retry.Initial)
	require.Equal(t, 30*time.Second, retry.Max)
	require.NotNil(t, cfg.Monitoring)
	require.Equal(t, "/metrics", cfg.Monitoring.Metrics.Path)
}

func TestLoadExpandsEnvironmentAndNormalizes(t *testing.T) {
	t.Setenv("PKG_TEST_TOKEN", "secret")
	path := writeConfig(t, `version: "1.0"
project:
  strategy: " Remote "
remote:
  token: ${PKG_TEST_TOKEN}
  completion_timeout: 2m
http:
  retry:
    backoff: LINEAR
monitoring:
  logging:
    level: WARNING
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, StrategyRemote, cfg.Project.Strategy)
	require.Equal(t, "secret", cfg.Remote.Token)
	require.Equal(t, 2*time.Minute, cfg.Remote.CompletionTimeout)
	require.Equal(t, RetryBackoffLinear, cfg.HTTP.Retry.Backoff)
	require.Equal(t, LogLevelWarn, cfg.Monitoring.Logging.Level)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		category errors.ErrorCategory
		contains string
	}{
		{"wrong version", `version: "2.0"`, errors.CategoryConfig, "unsupported configuration version"},
		{"bad strategy", "version: \"1.0\"\nproject:\n  strategy: cloud\n", errors.CategoryValidation, "invalid project.strategy"},
		{"bad backoff", "version: \"1.0\"\nhttp:\n  retry:\n    backoff: random\n", errors.CategoryValidation, "http.retry.backoff"},
		{"initial above max", "version: \"1.0\"\nhttp:\n  retry:\n    initial: 1m\n    max: 1s\n", errors.CategoryValidation, "exceeds"},
		{"events without url", "version: \"1.0\"\nevents:\n  subject: x\n", errors.CategoryValidation, "events.nats_url"},
		{"bad yaml", "version: [", errors.CategoryConfig, "unmarshal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			require.True(t, errors.HasCategory(err, tt.category), "got %v", err)
			require.ErrorContains(t, err, tt.contains)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestLoadOrDefaultWithoutFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, CurrentVersion, cfg.Version)
	require.Equal(t, ".", cfg.Project.Path)
}

func TestInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pkgbuilder.yaml")
	require.NoError(t, Init(path, false))

	err := Init(path, false)
	require.ErrorContains(t, err, "already exists")
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.Toolchain.Incremental)
	require.NotNil(t, cfg.Daemon)
	require.True(t, cfg.Daemon.Watch)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(".env", []byte("PKG_FROM_DOTENV=loaded\nGITHUB_TOKEN=should-not-win\n"), 0o600))
	t.Setenv("GITHUB_TOKEN", "from-process")
	t.Setenv("PKG_FROM_DOTENV", "")
	require.NoError(t, os.Unsetenv("PKG_FROM_DOTENV"))

	path, err := loadEnvFile()
	require.NoError(t, err)
	require.Equal(t, ".env", path)
	require.Equal(t, "loaded", os.Getenv("PKG_FROM_DOTENV"))
	require.Equal(t, "from-process", os.Getenv("GITHUB_TOKEN"))
}
