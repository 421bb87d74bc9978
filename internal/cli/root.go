// Package cli wires the two pipeline stages to a cobra command tree.
// Configuration is layered viper-style: built-in defaults, then
// .synthgen.yaml, then SYNTHGEN_* environment variables, then flags.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "synthgen",
	Short: "Synthetic segmentation dataset generator",
	Long: "Synthgen composites transparent foreground cutouts onto backgrounds to " +
		"produce labeled training images, per-instance masks, and COCO-style annotations.",
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default .synthgen.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
}

func initConfig() {
	if cfgFile, _ := rootCmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".synthgen")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("SYNTHGEN")
	viper.AutomaticEnv()

	// It's fine if no config file is found; we use defaults.
	_ = viper.ReadInConfig()
}
