// Package main is the entry point for the questions CLI, which runs the
// question extractor outside of Cloud Functions.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Lllllllleong/formquestions/internal/services"
)

// version is set at build time via ldflags.
var version = "dev"

// configKeys are read from flags, the environment, and the config file, in that order.
var configKeys = []string{
	services.EnvStorageConnection,
	services.EnvAzureWebJobsStorage,
	services.EnvContainerName,
	services.EnvStorageProvider,
	services.EnvAnalysisBackend,
	services.EnvFormEndpoint,
	services.EnvFormKey,
	services.EnvModelID,
	services.EnvFormAPIVersion,
	services.EnvProjectID,
	services.EnvVertexRegion,
	services.EnvFirestoreCollection,
	services.EnvResultsBucket,
	services.EnvWorkflowID,
	services.EnvWorkflowLocation,
	services.EnvValidatePDF,
	services.EnvPollInterval,
}

var rootCmd = &cobra.Command{
	Use:     "questions",
	Short:   "Extract form questions from stored PDFs",
	Version: version,
	Long: `questions runs stored PDF forms through a document-analysis model and prints
the extracted fields as JSON or YAML.

Configuration uses the same keys as the Cloud Functions (BLOB_CONTAINER_NAME,
FORM_RECOGNIZER_ENDPOINT, ...), read from flags, the environment, or a YAML
config file.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return fmt.Errorf("invalid --log-level %q: %w", level, err)
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
		return nil
	},
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./questions.yaml or ~/.config/questions/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("output", "json", "output format: json or yaml")
	rootCmd.PersistentFlags().String("backend", "", "analysis backend: formrecognizer or vertex")
	rootCmd.PersistentFlags().String("model", "", "model ID passed to the analysis backend")

	bindFlag(services.EnvAnalysisBackend, "backend")
	bindFlag(services.EnvModelID, "model")

	rootCmd.AddCommand(runCmd, analyzeCmd)
}

func bindFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("questions")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "questions"))
		}
	}

	// Keys are bound to their exact environment names; AzureWebJobsStorage
	// is mixed case and would not match an upper-cased automatic lookup.
	for _, key := range configKeys {
		_ = viper.BindEnv(key, key)
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// lookup has the signature of gcp.GetEnv but resolves through viper.
func lookup(key, fallback string) string {
	if viper.IsSet(key) {
		if v := strings.TrimSpace(viper.GetString(key)); v != "" {
			return v
		}
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
