package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Worker count bounds and default.
const (
	MinWorkers     = 1
	MaxWorkers     = 8
	DefaultWorkers = 3
)

// BinaryEnvVar names the environment variable that overrides the browser binary.
const BinaryEnvVar = "CHROME_BINARY"

// Config represents the complete pollrunner configuration
type Config struct {
	Pool    PoolConfig    `mapstructure:"pool" yaml:"pool"`
	Target  TargetConfig  `mapstructure:"target" yaml:"target"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Report  ReportConfig  `mapstructure:"report" yaml:"report"`
}

// PoolConfig controls the worker pool and each worker's cycle loop
type PoolConfig struct {
	// Workers is the number of concurrent browser sessions (1-8, default: 3)
	Workers int `mapstructure:"workers" yaml:"workers"`
	// Cooldown is the pause after a successful attempt (default: 3s)
	Cooldown time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	// RetryDelay is the pause after a failed attempt (default: 5s)
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	// StuckThreshold is the number of consecutive failures after which a worker
	// is flagged as stuck in logs and the report. It keeps retrying. 0 disables.
	StuckThreshold int `mapstructure:"stuck_threshold" yaml:"stuck_threshold"`
}

// TargetConfig locates the poll and its controls
type TargetConfig struct {
	// URL is the poll page
	URL string `mapstructure:"url" yaml:"url"`
	// CheckboxSelector is the CSS selector of the answer to select
	CheckboxSelector string `mapstructure:"checkbox_selector" yaml:"checkbox_selector"`
	// VoteSelector is the CSS selector of the submit button
	VoteSelector string `mapstructure:"vote_selector" yaml:"vote_selector"`
	// ReturnSelector is the link shown after voting that returns to the poll.
	// Empty skips the confirmation step.
	ReturnSelector string `mapstructure:"return_selector" yaml:"return_selector"`
	// ContainerSelector identifies the poll widget; when missing after load the
	// page is reloaded once. Empty skips the check.
	ContainerSelector string `mapstructure:"container_selector" yaml:"container_selector"`
	// AlreadyVotedSelector marks a page that refused the vote. Optional.
	AlreadyVotedSelector string `mapstructure:"already_voted_selector" yaml:"already_voted_selector"`
	// DismissSelectors are close buttons of overlays (cookie banners, popups)
	// clicked after each load when visible.
	DismissSelectors []string `mapstructure:"dismiss_selectors" yaml:"dismiss_selectors"`
}

// BrowserConfig controls how each worker's browser is launched
type BrowserConfig struct {
	// Bin is an explicit browser binary. Falls back to $CHROME_BINARY, then a
	// system lookup, then a managed download when AutoDownload is set.
	Bin string `mapstructure:"bin" yaml:"bin"`
	// Headless runs browsers without a window (default: true)
	Headless bool `mapstructure:"headless" yaml:"headless"`
	// AutoDownload fetches a browser when none is installed (default: true)
	AutoDownload bool `mapstructure:"auto_download" yaml:"auto_download"`
	// NoSandbox disables the browser sandbox, needed in most containers (default: true)
	NoSandbox bool `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	// ProfileRoot is where per-worker profile directories are created.
	// Empty means the OS temp directory.
	ProfileRoot string `mapstructure:"profile_root" yaml:"profile_root"`
	// BasePort is added to the worker index to get its control port (default: 9222)
	BasePort int `mapstructure:"base_port" yaml:"base_port"`
	// KeepProfiles leaves profile directories in place after the run
	KeepProfiles bool `mapstructure:"keep_profiles" yaml:"keep_profiles"`
	// PageLoadTimeout bounds each navigation (default: 30s)
	PageLoadTimeout time.Duration `mapstructure:"page_load_timeout" yaml:"page_load_timeout"`
	// ElementTimeout bounds each wait for an element (default: 10s)
	ElementTimeout time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
}

// LoggingConfig controls the structured debug log
type LoggingConfig struct {
	// Enabled controls whether the JSON log file is written (default: true)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is where pollrunner.log is written. Empty means ConfigDir()/logs.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// MetricsConfig controls the optional metrics and status HTTP server
type MetricsConfig struct {
	// Listen is the address to serve /metrics, /healthz and /status on.
	// Empty disables the server.
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// ReportConfig controls the end-of-run report
type ReportConfig struct {
	// Format is "text", "json" or "yaml" (default: "text")
	Format string `mapstructure:"format" yaml:"format"`
	// File additionally writes the report to this path. Optional.
	File string `mapstructure:"file" yaml:"file"`
}

// Default returns a Config with sensible default values. Target URL and
// selectors have no defaults and must be configured.
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			Workers:        DefaultWorkers,
			Cooldown:       3 * time.Second,
			RetryDelay:     5 * time.Second,
			StuckThreshold: 10,
		},
		Target: TargetConfig{
			ReturnSelector:    "a.pds-return-poll",
			ContainerSelector: "div.CSS_Poll.PDS_Poll",
			DismissSelectors: []string{
				"button.osano-cm-close",
				"[role='dialog'] button[aria-label*='lose']",
			},
		},
		Browser: BrowserConfig{
			Headless:        true,
			AutoDownload:    true,
			NoSandbox:       true,
			BasePort:        9222,
			PageLoadTimeout: 30 * time.Second,
			ElementTimeout:  10 * time.Second,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Report: ReportConfig{
			Format: "text",
		},
	}
}

// ResolveProfileRoot returns ProfileRoot or the OS temp directory.
func (b *BrowserConfig) ResolveProfileRoot() string {
	if b.ProfileRoot != "" {
		return b.ProfileRoot
	}
	return os.TempDir()
}

// ResolveDir returns Dir or ConfigDir()/logs.
func (l *LoggingConfig) ResolveDir() string {
	if l.Dir != "" {
		return l.Dir
	}
	return filepath.Join(ConfigDir(), "logs")
}

// SetDefaults registers default values with the global viper instance
func SetDefaults() {
	SetDefaultsOn(viper.GetViper())
}

// SetDefaultsOn registers default values with v
func SetDefaultsOn(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("pool.workers", defaults.Pool.Workers)
	v.SetDefault("pool.cooldown", defaults.Pool.Cooldown)
	v.SetDefault("pool.retry_delay", defaults.Pool.RetryDelay)
	v.SetDefault("pool.stuck_threshold", defaults.Pool.StuckThreshold)

	v.SetDefault("target.url", defaults.Target.URL)
	v.SetDefault("target.checkbox_selector", defaults.Target.CheckboxSelector)
	v.SetDefault("target.vote_selector", defaults.Target.VoteSelector)
	v.SetDefault("target.return_selector", defaults.Target.ReturnSelector)
	v.SetDefault("target.container_selector", defaults.Target.ContainerSelector)
	v.SetDefault("target.already_voted_selector", defaults.Target.AlreadyVotedSelector)
	v.SetDefault("target.dismiss_selectors", defaults.Target.DismissSelectors)

	v.SetDefault("browser.bin", defaults.Browser.Bin)
	v.SetDefault("browser.headless", defaults.Browser.Headless)
	v.SetDefault("browser.auto_download", defaults.Browser.AutoDownload)
	v.SetDefault("browser.no_sandbox", defaults.Browser.NoSandbox)
	v.SetDefault("browser.profile_root", defaults.Browser.ProfileRoot)
	v.SetDefault("browser.base_port", defaults.Browser.BasePort)
	v.SetDefault("browser.keep_profiles", defaults.Browser.KeepProfiles)
	v.SetDefault("browser.page_load_timeout", defaults.Browser.PageLoadTimeout)
	v.SetDefault("browser.element_timeout", defaults.Browser.ElementTimeout)

	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.dir", defaults.Logging.Dir)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	v.SetDefault("metrics.listen", defaults.Metrics.Listen)

	v.SetDefault("report.format", defaults.Report.Format)
	v.SetDefault("report.file", defaults.Report.File)
}

// decodeHook lets config files and env vars use "3s" for durations and
// comma-separated lists for selector slices.
func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
}

// Load reads the configuration from the global viper instance and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v and validates it
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return cfg, nil
}

// Decode unmarshals v into a Config without validating it
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when the
// loaded configuration does not validate
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadDotEnv loads .env files from the working directory and the config
// directory into the process environment. Variables already set win.
// Returns the files that were loaded.
func LoadDotEnv() []string {
	var loaded []string
	for _, path := range []string{".env", filepath.Join(ConfigDir(), ".env")} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err == nil {
			loaded = append(loaded, path)
		}
	}
	return loaded
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pollrunner")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pollrunner"
	}
	return filepath.Join(home, ".config", "pollrunner")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
