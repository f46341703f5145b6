package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/pollrunner/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "pollrunner",
	Short: "Drive a web poll from several isolated browser sessions",
	Long: `pollrunner loads a poll page, selects a configured option and submits
the vote, over and over, from up to eight independent browser sessions.
Each session runs its own retry loop; one interrupt stops them all and
prints a per-worker report.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/pollrunner/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// .env before AutomaticEnv so its values are visible to viper
	config.LoadDotEnv()

	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/pollrunner")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("POLLRUNNER")
	// Replace dots with underscores for nested keys in env vars
	// e.g., POLLRUNNER_POOL_WORKERS for pool.workers
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
