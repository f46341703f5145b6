package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Verify default pool config
	if cfg.Pool.Workers != 3 {
		t.Errorf("Pool.Workers = %d, want 3", cfg.Pool.Workers)
	}
	if cfg.Pool.Cooldown != 3*time.Second {
		t.Errorf("Pool.Cooldown = %v, want 3s", cfg.Pool.Cooldown)
	}
	if cfg.Pool.RetryDelay != 5*time.Second {
		t.Errorf("Pool.RetryDelay = %v, want 5s", cfg.Pool.RetryDelay)
	}
	if cfg.Pool.StuckThreshold != 10 {
		t.Errorf("Pool.StuckThreshold = %d, want 10", cfg.Pool.StuckThreshold)
	}

	// Verify default target config
	if cfg.Target.URL != "" {
		t.Errorf("Target.URL = %q, want empty", cfg.Target.URL)
	}
	if cfg.Target.ReturnSelector != "a.pds-return-poll" {
		t.Errorf("Target.ReturnSelector = %q", cfg.Target.ReturnSelector)
	}
	if cfg.Target.ContainerSelector != "div.CSS_Poll.PDS_Poll" {
		t.Errorf("Target.ContainerSelector = %q", cfg.Target.ContainerSelector)
	}

	// Verify default browser config
	if !cfg.Browser.Headless {
		t.Error("Browser.Headless should be true by default")
	}
	if cfg.Browser.BasePort != 9222 {
		t.Errorf("Browser.BasePort = %d, want 9222", cfg.Browser.BasePort)
	}
	if cfg.Browser.PageLoadTimeout != 30*time.Second {
		t.Errorf("Browser.PageLoadTimeout = %v, want 30s", cfg.Browser.PageLoadTimeout)
	}
	if cfg.Browser.ElementTimeout != 10*time.Second {
		t.Errorf("Browser.ElementTimeout = %v, want 10s", cfg.Browser.ElementTimeout)
	}

	// Verify default logging and report config
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Report.Format != "text" {
		t.Errorf("Report.Format = %q, want %q", cfg.Report.Format, "text")
	}
}

func TestBrowserConfig_ResolveProfileRoot(t *testing.T) {
	b := BrowserConfig{}
	if got := b.ResolveProfileRoot(); got != os.TempDir() {
		t.Errorf("ResolveProfileRoot() = %q, want %q", got, os.TempDir())
	}

	b.ProfileRoot = "/srv/profiles"
	if got := b.ResolveProfileRoot(); got != "/srv/profiles" {
		t.Errorf("ResolveProfileRoot() = %q, want %q", got, "/srv/profiles")
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		result := ConfigDir()
		expected := "/custom/config/pollrunner"
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		result := ConfigDir()

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, ".config", "pollrunner")
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	result := ConfigFile()
	expected := "/custom/config/pollrunner/config.yaml"
	if result != expected {
		t.Errorf("ConfigFile() = %q, want %q", result, expected)
	}
}

func TestGet(t *testing.T) {
	// Set defaults in viper first (normally done by cmd init)
	SetDefaults()

	// Defaults alone do not name a target, so Get falls back to Default()
	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Pool.Workers != DefaultWorkers {
		t.Errorf("Get().Pool.Workers = %d, want %d", cfg.Pool.Workers, DefaultWorkers)
	}
}

func TestLoadFrom_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
pool:
  workers: 5
  cooldown: 1500ms
  retry_delay: 2s
target:
  url: https://example.com/poll
  checkbox_selector: "#answer-3"
  vote_selector: "#vote"
  dismiss_selectors: "button.close,.cookie-accept"
browser:
  base_port: 9300
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	SetDefaultsOn(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}

	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Pool.Workers != 5 {
		t.Errorf("Pool.Workers = %d, want 5", cfg.Pool.Workers)
	}
	if cfg.Pool.Cooldown != 1500*time.Millisecond {
		t.Errorf("Pool.Cooldown = %v, want 1.5s", cfg.Pool.Cooldown)
	}
	if cfg.Pool.RetryDelay != 2*time.Second {
		t.Errorf("Pool.RetryDelay = %v, want 2s", cfg.Pool.RetryDelay)
	}
	if cfg.Browser.BasePort != 9300 {
		t.Errorf("Browser.BasePort = %d, want 9300", cfg.Browser.BasePort)
	}
	if cfg.Browser.PageLoadTimeout != 30*time.Second {
		t.Errorf("Browser.PageLoadTimeout = %v, want default 30s", cfg.Browser.PageLoadTimeout)
	}
	want := []string{"button.close", ".cookie-accept"}
	if len(cfg.Target.DismissSelectors) != len(want) {
		t.Fatalf("DismissSelectors = %q, want %q", cfg.Target.DismissSelectors, want)
	}
	for i := range want {
		if cfg.Target.DismissSelectors[i] != want[i] {
			t.Errorf("DismissSelectors[%d] = %q, want %q", i, cfg.Target.DismissSelectors[i], want[i])
		}
	}
}

func TestLoadFrom_InvalidConfig(t *testing.T) {
	v := viper.New()
	SetDefaultsOn(v)
	v.Set("pool.workers", 12)

	cfg, err := LoadFrom(v)
	if err == nil {
		t.Fatal("LoadFrom() expected error")
	}
	if cfg != nil {
		t.Error("LoadFrom() should not return a config on error")
	}

	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("error type = %T, want ValidationErrors", err)
	}
	fields := make(map[string]bool)
	for _, e := range verrs {
		fields[e.Field] = true
	}
	for _, f := range []string{"pool.workers", "target.url", "target.checkbox_selector", "target.vote_selector"} {
		if !fields[f] {
			t.Errorf("missing validation error for %s in %v", f, err)
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if err := os.MkdirAll(ConfigDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	envFile := filepath.Join(ConfigDir(), ".env")
	if err := os.WriteFile(envFile, []byte("POLLRUNNER_TEST_DOTENV=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Run from an empty directory so no ./.env is picked up.
	wd, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(wd) })
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}

	t.Setenv("POLLRUNNER_TEST_DOTENV", "")
	_ = os.Unsetenv("POLLRUNNER_TEST_DOTENV")

	loaded := LoadDotEnv()
	if len(loaded) != 1 || !strings.HasSuffix(loaded[0], ".env") {
		t.Fatalf("LoadDotEnv() = %v, want the config dir .env", loaded)
	}
	if got := os.Getenv("POLLRUNNER_TEST_DOTENV"); got != "from-file" {
		t.Errorf("POLLRUNNER_TEST_DOTENV = %q, want %q", got, "from-file")
	}
}

func TestLoadDotEnv_ExistingEnvWins(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if err := os.MkdirAll(ConfigDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	envFile := filepath.Join(ConfigDir(), ".env")
	if err := os.WriteFile(envFile, []byte(BinaryEnvVar+"=/from/file\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(BinaryEnvVar, "/from/env")
	LoadDotEnv()

	if got := os.Getenv(BinaryEnvVar); got != "/from/env" {
		t.Errorf("%s = %q, want %q", BinaryEnvVar, got, "/from/env")
	}
}
