package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gdamore/tcell"
	"github.com/spf13/cobra"

	"github.com/bartgrantham/dynrds/internal/monitor"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "show what the engine is putting on air",
	Long: `Decodes the engine's status file the way a receiver would and shows
frequency, PS, RadioText and PTY. Quit with q, Esc or Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	f := monitorCmd.Flags()
	f.String("big", "", "FIGlet font for the frequency, e.g. univers.flf")
	f.String("medium", "", "FIGlet font for the PS, e.g. nancyj-improved.flf")
	f.Duration("interval", time.Second, "refresh interval")
}

func loadFont(cmd *cobra.Command, flag string) (*monitor.FIGfont, error) {
	path, _ := cmd.Flags().GetString(flag)
	if path == "" {
		return nil, nil
	}
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	f, err := monitor.NewFIGfont(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Status.File == "" {
		return errors.New("status.file isn't set, the engine publishes nothing to monitor")
	}

	m := &monitor.Monitor{
		Path:      cfg.Status.File,
		Frequency: cfg.Frequency,
		RBDS:      cfg.RBDS,
	}
	m.Interval, _ = cmd.Flags().GetDuration("interval")
	if m.Big, err = loadFont(cmd, "big"); err != nil {
		return err
	}
	if m.Medium, err = loadFont(cmd, "medium"); err != nil {
		return err
	}

	scr, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("couldn't open screen: %w", err)
	}
	return m.Run(cmd.Context(), scr)
}
