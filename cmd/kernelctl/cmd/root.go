package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/helioptic/kernelpool/manifest"
)

var (
	cfgFile      string
	manifestPath string
	outputFormat string
	verbose      bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "kernelctl",
	Short: "Inspect and exercise ephemeris kernel sets",
	Long: `kernelctl works with the kernel sets defined in a manifest: listing them,
verifying that their files exist, and running complete load/unload cycles
against an in-process registry or a toolkit compiled to WebAssembly.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.kernelctl/config)")
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "m", "", "kernel manifest (default kernels.yaml, or manifest from config)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// isJSONOutput reports whether JSON output was requested
func isJSONOutput() bool {
	return outputFormat == "json"
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		// Search config in home directory with name ".kernelctl/config" (without extension)
		configDir := filepath.Join(home, ".kernelctl")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// Bind specific environment variables
	viper.BindEnv("manifest", "KERNELCTL_MANIFEST")

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetString("manifest") != "" && manifestPath == "" {
			manifestPath = viper.GetString("manifest")
		}
	}

	// Check environment variables if not set from config
	if manifestPath == "" && viper.GetString("manifest") != "" {
		manifestPath = viper.GetString("manifest")
	}

	// Set default if still empty
	if manifestPath == "" {
		manifestPath = "kernels.yaml"
	}
}

// loadManifest reads the configured manifest file
func loadManifest() (*manifest.Manifest, error) {
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("load manifest %s: %w", manifestPath, err)
	}
	return m, nil
}

// buildLogger creates the CLI logger: human-readable, debug level when
// --verbose is set, warnings only otherwise
func buildLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}
