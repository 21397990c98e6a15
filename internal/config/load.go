package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
)

// DefaultConfigFile is the file looked up when no --config flag is given.
const DefaultConfigFile = "pkgbuilder.yaml"

// Load reads, expands, normalizes, defaults and validates a configuration file.
func Load(configPath string) (*Config, error) {
	logEnvLoad()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("configuration file not found").
				WithContext("path", configPath).Build()
		}
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).Fatal().Build()
	}
	return Parse(data)
}

// Parse decodes YAML content after ${VAR} expansion.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to unmarshal config").Fatal().Build()
	}
	if cfg.Version != CurrentVersion {
		return nil, errors.ConfigError(fmt.Sprintf("unsupported configuration version: %q (expected %s)", cfg.Version, CurrentVersion)).Build()
	}
	if err := finalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated configuration built only from defaults and the environment.
// It is used when no configuration file exists.
func Default() (*Config, error) {
	logEnvLoad()
	cfg := &Config{Version: CurrentVersion}
	if err := finalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configPath when it exists and falls back to Default otherwise.
func LoadOrDefault(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return Default()
	}
	return Load(configPath)
}

func finalize(cfg *Config) error {
	if err := normalize(cfg); err != nil {
		return err
	}
	applyDefaults(cfg)
	return Validate(cfg)
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).Build()
	}

	example := Example()
	data, err := yaml.Marshal(example)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal example config").Build()
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write config file").
			WithContext("path", configPath).Build()
	}
	return nil
}

// Example returns the configuration written by Init.
func Example() *Config {
	cfg := &Config{
		Version: CurrentVersion,
		Project: ProjectConfig{Path: ".", Strategy: StrategyLocal},
		Toolchain: ToolchainConfig{
			AAPT2:       "${ANDROID_HOME}/build-tools/34.0.0/aapt2",
			D8:          "${ANDROID_HOME}/build-tools/34.0.0/d8",
			Apksigner:   "${ANDROID_HOME}/build-tools/34.0.0/apksigner",
			Kotlinc:     "kotlinc",
			PlatformJar: "${ANDROID_HOME}/platforms/android-34/android.jar",
			Incremental: true,
		},
		Remote: RemoteConfig{
			Token:  "${GITHUB_TOKEN}",
			Owner:  "your-user",
			Repo:   "your-app",
			Branch: "main",
		},
		Install: InstallConfig{Enabled: false},
		Daemon:  &DaemonConfig{Watch: true},
		History: &HistoryConfig{Path: "build/pkgbuilder-history.db"},
		Monitoring: &MonitoringConfig{
			Metrics: MonitoringMetrics{Enabled: true},
			Logging: MonitoringLogging{Level: LogLevelInfo, Format: LogFormatText},
		},
	}
	applyDefaults(cfg)
	return cfg
}
