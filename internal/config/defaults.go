package config

import (
	"time"

	"git.home.luguber.info/inful/pkgbuilder/internal/version"
)

const (
	DefaultAPIURL             = "https://api.github.com"
	DefaultBranch             = "main" // used when neither config nor checkout names a branch
	DefaultWorkflow           = "android_ci_jules.yml"
	DefaultReleaseTag         = "latest-debug"
	DefaultAssetSuffix        = ".apk"
	DefaultKeystorePassword   = "android"
	DefaultKeyAlias           = "androiddebugkey"
	DefaultToolTimeout        = 60 * time.Second
	DefaultDiscoveryAttempts  = 10
	DefaultDiscoveryInterval  = 3 * time.Second
	DefaultCompletionInterval = 5 * time.Second
	DefaultCompletionTimeout  = 30 * time.Minute
)

// applyDefaults fills zero values. It runs after normalization so canonical values drive defaults.
func applyDefaults(cfg *Config) {
	applyProjectDefaults(&cfg.Project)
	applyToolchainDefaults(&cfg.Toolchain)
	applySigningDefaults(&cfg.Signing)
	applyRemoteDefaults(&cfg.Remote)
	applyHTTPDefaults(&cfg.HTTP)

	if cfg.Install.ADB == "" {
		cfg.Install.ADB = "adb"
	}
	if cfg.Daemon != nil && cfg.Daemon.Debounce <= 0 {
		cfg.Daemon.Debounce = 2 * time.Second
	}
	if cfg.Events != nil {
		if cfg.Events.Subject == "" {
			cfg.Events.Subject = "pkgbuilder.builds"
		}
		if cfg.Events.Timeout <= 0 {
			cfg.Events.Timeout = 5 * time.Second
		}
	}
	if cfg.History != nil && cfg.History.Path == "" {
		cfg.History.Path = "pkgbuilder-history.db"
	}
	if cfg.Monitoring == nil {
		cfg.Monitoring = &MonitoringConfig{}
	}
	applyMonitoringDefaults(cfg.Monitoring)
}

func applyProjectDefaults(p *ProjectConfig) {
	if p.Path == "" {
		p.Path = "."
	}
	if p.Strategy == "" {
		p.Strategy = StrategyLocal
	}
}

func applyToolchainDefaults(t *ToolchainConfig) {
	if t.AAPT2 == "" {
		t.AAPT2 = "aapt2"
	}
	if t.Kotlinc == "" {
		t.Kotlinc = "kotlinc"
	}
	if t.D8 == "" {
		t.D8 = "d8"
	}
	if t.Apksigner == "" {
		t.Apksigner = "apksigner"
	}
	if t.Timeout <= 0 {
		t.Timeout = DefaultToolTimeout
	}
}

func applySigningDefaults(s *SigningConfig) {
	if s.Password == "" {
		s.Password = DefaultKeystorePassword
	}
	if s.Alias == "" {
		s.Alias = DefaultKeyAlias
	}
}

func applyRemoteDefaults(r *RemoteConfig) {
	if r.APIURL == "" {
		r.APIURL = DefaultAPIURL
	}
	if r.Token == "" {
		r.Token = envFallback("PKGBUILDER_GITHUB_TOKEN", "GITHUB_TOKEN")
	}
	if r.Workflow == "" {
		r.Workflow = DefaultWorkflow
	}
	if r.ReleaseTag == "" {
		r.ReleaseTag = DefaultReleaseTag
	}
	if r.AssetSuffix == "" {
		r.AssetSuffix = DefaultAssetSuffix
	}
	if r.RunsPerPage <= 0 {
		r.RunsPerPage = 20
	}
	if r.DiscoveryAttempts <= 0 {
		r.DiscoveryAttempts = DefaultDiscoveryAttempts
	}
	if r.DiscoveryInterval <= 0 {
		r.DiscoveryInterval = DefaultDiscoveryInterval
	}
	if r.CompletionInterval <= 0 {
		r.CompletionInterval = DefaultCompletionInterval
	}
	if r.CompletionTimeout <= 0 {
		r.CompletionTimeout = DefaultCompletionTimeout
	}
}

func applyHTTPDefaults(h *HTTPConfig) {
	if h.Timeout <= 0 {
		h.Timeout = 30 * time.Second
	}
	if h.UserAgent == "" {
		h.UserAgent = "pkgbuilder/" + version.Version
	}
	if h.Retry.Backoff == "" {
		h.Retry.Backoff = RetryBackoffExponential
	}
	if h.Retry.Initial <= 0 {
		h.Retry.Initial = 500 * time.Millisecond
	}
	if h.Retry.Max <= 0 {
		h.Retry.Max = 30 * time.Second
	}
	if h.Retry.MaxRetries == 0 {
		h.Retry.MaxRetries = 5
	}
}

func applyMonitoringDefaults(m *MonitoringConfig) {
	if m.Metrics.Address == "" {
		m.Metrics.Address = ":9464"
	}
	if m.Metrics.Path == "" {
		m.Metrics.Path = "/metrics"
	}
	if m.Health.Path == "" {
		m.Health.Path = "/healthz"
	}
	if m.Logging.Level == "" {
		m.Logging.Level = LogLevelInfo
	}
	if m.Logging.Format == "" {
		m.Logging.Format = LogFormatText
	}
}
