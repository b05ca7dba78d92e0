package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/siherrmann/facter/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "facter",
	Short: "Facter - structured fact extraction from news articles",
	Long: `Facter extracts structured facts from news articles and consolidates
them into a queryable store.

Each submitted article runs through ordered extraction phases against a
text-generation service, entity resolution against previously stored
entities, contradiction detection against previously stored facts, and
one atomic commit of the consolidated result.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("facter v0.1.0")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.facter/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(home + "/.facter")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match FACTER_*
	viper.SetEnvPrefix("FACTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig merges defaults, the config file and FACTER_* environment
// variables into the full service configuration. The generation API key
// additionally falls back to OPENAI_API_KEY.
func loadConfig() (*model.Config, error) {
	config := model.DefaultConfig()

	err := viper.Unmarshal(config)
	if err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Generation.APIKey == "" {
		config.Generation.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return config, nil
}
