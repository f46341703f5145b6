package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/pollrunner/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or create pollrunner configuration",
	Long: `View or create pollrunner configuration.

Without arguments, displays the current configuration.
Use subcommands to create a config file or check it.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration as YAML",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/pollrunner/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration without starting any browser",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, _ = out.Write(data)

	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "# Problems:")
		for _, e := range errs {
			fmt.Fprintf(out, "#   %s\n", e.Error())
		}
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if _, err := config.Load(); err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			for _, e := range verrs {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", e.Error())
			}
			return fmt.Errorf("configuration has %d problem(s)", len(verrs))
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Configuration OK")
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	fmt.Fprintln(cmd.OutOrStdout(), "Set target.url and the selectors before running.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. $HOME/.config/pollrunner/config.yaml\n")
	fmt.Fprintf(out, "  3. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: POLLRUNNER_* (e.g., POLLRUNNER_POOL_WORKERS)")
	fmt.Fprintf(out, "Browser binary: %s, also read from .env\n", config.BinaryEnvVar)
	return nil
}

const configTemplate = `# pollrunner configuration

# Worker pool
pool:
  # Concurrent browser sessions, 1-8
  workers: 3
  # Pause after a submitted vote
  cooldown: 3s
  # Pause after a failed attempt
  retry_delay: 5s
  # Flag a worker as stuck after this many failures in a row (0 disables)
  stuck_threshold: 10

# The poll
target:
  url: ""
  # CSS selector of the answer to select
  checkbox_selector: ""
  # CSS selector of the vote button
  vote_selector: ""
  # Link shown after voting; empty skips the confirmation step
  return_selector: "a.pds-return-poll"
  # Poll widget; the page is reloaded once when it is missing
  container_selector: "div.CSS_Poll.PDS_Poll"
  # Marker of a refused vote (optional)
  already_voted_selector: ""
  # Overlay close buttons clicked after each load
  dismiss_selectors:
    - "button.osano-cm-close"
    - "[role='dialog'] button[aria-label*='lose']"

# Browser sessions
browser:
  # Explicit binary; otherwise $CHROME_BINARY, a system lookup, then a download
  bin: ""
  headless: true
  auto_download: true
  no_sandbox: true
  # Parent of pollrunner_profile_<n> directories (default: OS temp dir)
  profile_root: ""
  # Worker n uses port base_port+n
  base_port: 9222
  keep_profiles: false
  page_load_timeout: 30s
  element_timeout: 10s

# Structured JSON log
logging:
  enabled: true
  level: info
  # Default: ~/.config/pollrunner/logs
  dir: ""
  max_size_mb: 10
  max_backups: 3

# Prometheus /metrics, /healthz and /status (empty disables)
metrics:
  listen: ""

# Final report
report:
  # text, json or yaml
  format: text
  file: ""
`
