package config

import (
	"time"
)

// CurrentVersion is the configuration schema version understood by Load.
const CurrentVersion = "1.0"

// Config is the root of pkgbuilder.yaml.
type Config struct {
	Version    string            `yaml:"version"`
	Project    ProjectConfig     `yaml:"project"`
	Toolchain  ToolchainConfig   `yaml:"toolchain"`
	Signing    SigningConfig     `yaml:"signing"`
	Remote     RemoteConfig      `yaml:"remote"`
	HTTP       HTTPConfig        `yaml:"http"`
	Install    InstallConfig     `yaml:"install"`
	Daemon     *DaemonConfig     `yaml:"daemon,omitempty"`
	Events     *EventsConfig     `yaml:"events,omitempty"`
	History    *HistoryConfig    `yaml:"history,omitempty"`
	Monitoring *MonitoringConfig `yaml:"monitoring,omitempty"`
}

// ProjectConfig locates the source tree and selects how it is built.
type ProjectConfig struct {
	Path             string        `yaml:"path"`
	Strategy         BuildStrategy `yaml:"strategy"`           // local|remote
	LogBatchInterval time.Duration `yaml:"log_batch_interval"` // 0 delivers every line immediately
}

// ToolchainConfig points at the external build tools.
type ToolchainConfig struct {
	AAPT2       string        `yaml:"aapt2"`
	Kotlinc     string        `yaml:"kotlinc"`
	D8          string        `yaml:"d8"`
	Apksigner   string        `yaml:"apksigner"`
	Java        string        `yaml:"java,omitempty"` // set when apksigner is a jar
	PlatformJar string        `yaml:"platform_jar"`   // android.jar
	Classpath   []string      `yaml:"classpath,omitempty"`
	Timeout     time.Duration `yaml:"timeout"`
	Incremental bool          `yaml:"incremental"`
	SkipVerify  bool          `yaml:"skip_verify"`
}

// SigningConfig describes the keystore used by the sign step.
type SigningConfig struct {
	Keystore string `yaml:"keystore"`
	Password string `yaml:"password"`
	Alias    string `yaml:"alias"`
}

// RemoteConfig configures CI-delegated builds.
type RemoteConfig struct {
	APIURL             string        `yaml:"api_url"`
	Token              string        `yaml:"token"`
	Owner              string        `yaml:"owner"`
	Repo               string        `yaml:"repo"`
	Branch             string        `yaml:"branch"`
	Workflow           string        `yaml:"workflow"`
	ReleaseTag         string        `yaml:"release_tag"`
	AssetSuffix        string        `yaml:"asset_suffix"`
	DownloadDir        string        `yaml:"download_dir"`
	RunsPerPage        int           `yaml:"runs_per_page"`
	DiscoveryAttempts  int           `yaml:"discovery_attempts"`
	DiscoveryInterval  time.Duration `yaml:"discovery_interval"`
	CompletionInterval time.Duration `yaml:"completion_interval"`
	CompletionTimeout  time.Duration `yaml:"completion_timeout"`
}

// HTTPConfig tunes the shared HTTP client.
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	Retry     RetryConfig   `yaml:"retry"`
}

// RetryConfig is the backoff policy for transient HTTP failures.
type RetryConfig struct {
	Backoff    RetryBackoffMode `yaml:"backoff"`
	Initial    time.Duration    `yaml:"initial"`
	Max        time.Duration    `yaml:"max"`
	MaxRetries int              `yaml:"max_retries"` // -1 disables retries
}

// InstallConfig controls what happens to a finished package.
type InstallConfig struct {
	Enabled bool   `yaml:"enabled"`
	ADB     string `yaml:"adb"`
	Serial  string `yaml:"serial,omitempty"`
	CopyTo  string `yaml:"copy_to,omitempty"` // copy instead of adb install
}

// DaemonConfig configures long-running mode.
type DaemonConfig struct {
	Interval time.Duration `yaml:"interval"` // 0 disables scheduled builds
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

// EventsConfig enables publishing build events to NATS.
type EventsConfig struct {
	NATSURL string        `yaml:"nats_url"`
	Subject string        `yaml:"subject"`
	Timeout time.Duration `yaml:"timeout"`
	// IncludeLogs publishes every log line, not only lifecycle events.
	IncludeLogs bool `yaml:"include_logs"`
}

// HistoryConfig enables the SQLite build history.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// MonitoringConfig represents monitoring and observability configuration.
type MonitoringConfig struct {
	Metrics MonitoringMetrics `yaml:"metrics"`
	Health  MonitoringHealth  `yaml:"health"`
	Logging MonitoringLogging `yaml:"logging"`
}

type MonitoringMetrics struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

type MonitoringHealth struct {
	Path string `yaml:"path"`
}

type MonitoringLogging struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}
