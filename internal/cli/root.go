package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is overridden at build time with -ldflags
var Version = "v0.1.0"

var (
	cfgFile string
	envFile string
	verbose bool
	logJSON bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "autoclaim",
	Short: "Autoclaim - auto insurance claim coverage decisions",
	Long: `Autoclaim decides auto insurance claims against policy documents.

For each claim it asks a language model which policy sections to review,
retrieves the matching policy passages and the declarations page for the
claim's policy, asks the model for a coverage recommendation, and turns
that recommendation into a decision: covered or not, deductible, and
recommended payout.

Decisions are recommendations for a human adjuster.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging(logrus.StandardLogger(), verbose, logJSON)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number and build information for Autoclaim.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("autoclaim %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.autoclaim/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")

	rootCmd.PersistentFlags().String("llm-provider", "", "LLM provider (openai, anthropic, ollama)")
	rootCmd.PersistentFlags().String("llm-model", "", "LLM model name")
	rootCmd.PersistentFlags().String("retrieval", "", "retrieval backend (llamacloud, local)")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("llm.provider", rootCmd.PersistentFlags().Lookup("llm-provider"))
	_ = viper.BindPFlag("llm.model", rootCmd.PersistentFlags().Lookup("llm-model"))
	_ = viper.BindPFlag("retrieval.provider", rootCmd.PersistentFlags().Lookup("retrieval"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in .env, the config file, and ENV variables
func initConfig() {
	// A missing .env is normal; values already in the environment win
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", envFile, err)
	}

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
		viper.AddConfigPath(filepath.Join(home, ".autoclaim"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	configureViper(viper.GetViper())

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// configureViper registers defaults and environment bindings on v.
// AUTOCLAIM_* variables map onto config keys with dots as underscores.
func configureViper(v *viper.Viper) {
	setDefaults(v)

	v.SetEnvPrefix("AUTOCLAIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Well-known variable names are honoured after the prefixed ones
	for key, names := range envFallbacks {
		_ = v.BindEnv(append([]string{key, envName(key)}, names...)...)
	}
}

var envFallbacks = map[string][]string{
	"embeddings.api_key":                   {"OPENAI_API_KEY"},
	"retrieval.llamacloud.api_key":         {"LLAMA_CLOUD_API_KEY"},
	"retrieval.policy_index":               {"POLICY_INDEX_NAME"},
	"retrieval.declarations_index":         {"DECLARATIONS_INDEX_NAME"},
	"retrieval.llamacloud.organization_id": {"ORGANIZATION_ID"},
	"retrieval.llamacloud.project_name":    {"PROJECT_NAME"},
	"llm.api_key":                          nil,
	"llm.base_url":                         nil,
	"embeddings.base_url":                  nil,
	"http.http_proxy":                      {"HTTP_PROXY"},
	"http.https_proxy":                     {"HTTPS_PROXY"},
	"http.no_proxy":                        {"NO_PROXY"},
}

func envName(key string) string {
	return "AUTOCLAIM_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func configureLogging(logger *logrus.Logger, verbose, asJSON bool) {
	logger.SetOutput(os.Stderr)
	if asJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
}
