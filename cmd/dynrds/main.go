// Command dynrds drives an FM transmitter's RDS text from Falcon Player
// playlist events.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bartgrantham/dynrds/internal/config"
)

const defaultConfig = "/home/fpp/media/config/plugin.Dynamic_RDS.yaml"

var rootCmd = &cobra.Command{
	Use:   "dynrds",
	Short: "dynamic RDS for QN8066 and Si4713 transmitters",
	Long: `Renders track information from Falcon Player into RDS Program Service
and RadioText and keeps it on air through an I2C transmitter chip.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", defaultConfig, "YAML config file")
	rootCmd.AddCommand(engineCmd, callbackCmd, sendCmd, monitorCmd, renderCmd)
}

// loadConfig reads and validates the file named by --config.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, "", fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, path, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
