package main

import (
	"github.com/spf13/cobra"

	"github.com/bartgrantham/dynrds/internal/engine"
)

var sendCmd = &cobra.Command{
	Use:   "send LINE...",
	Short: "send raw command lines to a running engine",
	Example: `  dynrds send INIT "TSilent Night" "ABing Crosby" L185
  dynrds send EXIT`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return engine.WriteFIFO(cfg.FIFO, args...)
	},
}
