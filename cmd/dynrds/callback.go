package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bartgrantham/dynrds/internal/engine"
	"github.com/bartgrantham/dynrds/internal/fpp"
	"github.com/bartgrantham/dynrds/internal/logging"
)

// how long a freshly started engine gets to open its FIFO
const (
	engineWait = 5 * time.Second
	enginePoll = 100 * time.Millisecond
)

var callbackCmd = &cobra.Command{
	Use:   "callback",
	Short: "fppd plugin callback",
	Long: `Translates fppd callbacks into engine commands, starting the engine if
it isn't running.

  --list                          used by fppd at startup
  --update                        apply dynamic settings to the transmitter
  --reset                         power-cycle the transmitter
  --exit                          shut the engine down
  --type media --data '{...}'     a new item started in a playlist
  --type playlist --data '{...}'  a playlist started or stopped`,
	Args: cobra.NoArgs,
	RunE: runCallback,
}

func init() {
	f := callbackCmd.Flags()
	f.Bool("list", false, "print the callbacks this plugin wants and initialize the engine")
	f.Bool("update", false, "send UPDATE")
	f.Bool("reset", false, "send RESET")
	f.Bool("exit", false, "send EXIT")
	f.String("type", "", "callback type, media or playlist")
	f.String("data", "{}", "callback JSON")
	callbackCmd.MarkFlagsMutuallyExclusive("list", "update", "reset", "exit", "type")
}

// callbackLines works out what to send for the given flags.
func callbackLines(cmd *cobra.Command) (list bool, lines []string, err error) {
	f := cmd.Flags()
	for _, c := range []struct {
		flag string
		line string
	}{
		{"list", "INIT"},
		{"update", "UPDATE"},
		{"reset", "RESET"},
		{"exit", "EXIT"},
	} {
		if on, _ := f.GetBool(c.flag); on {
			return c.flag == "list", []string{c.line}, nil
		}
	}

	kind, _ := f.GetString("type")
	data, _ := f.GetString("data")
	switch kind {
	case "media":
		lines, err = fpp.MediaLines([]byte(data))
	case "playlist":
		lines, err = fpp.PlaylistLines([]byte(data))
	case "":
		return false, nil, errors.New("nothing to do, see --help")
	default:
		return false, nil, fmt.Errorf("unknown callback type %q", kind)
	}
	return false, lines, err
}

func runCallback(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logs, err := logging.Setup(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer logs.Close()
	log.Debug().Strs("args", os.Args[1:]).Msg("callback")

	list, lines, err := callbackLines(cmd)
	if err != nil {
		log.Error().Err(err).Msg("callback")
		return err
	}
	exit, _ := cmd.Flags().GetBool("exit")

	started := false
	if !engine.Running(cfg.FIFO) {
		if exit {
			log.Info().Msg("exit, but not running")
			return nil
		}
		if err := startEngine(path); err != nil {
			return err
		}
		started = true
	}
	// a new engine needs INIT before anything else
	if started && !list {
		lines = append([]string{"INIT"}, lines...)
	}

	log.Info().Strs("lines", lines).Msg("sending")
	if err := send(cfg.FIFO, started, lines); err != nil {
		return err
	}
	if list {
		fmt.Println(fpp.Callbacks)
	}
	return nil
}

// startEngine runs this binary's engine subcommand detached from fppd.
func startEngine(configPath string) error {
	self, err := os.Executable()
	if err != nil {
		return err
	}
	log.Info().Str("engine", self).Msg("starting engine")
	c := exec.Command(self, "engine", "--config", configPath)
	c.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := c.Start(); err != nil {
		return fmt.Errorf("couldn't start engine: %w", err)
	}
	return c.Process.Release()
}

// send writes lines to the FIFO, giving a just started engine time to open
// its end.
func send(fifo string, wait bool, lines []string) error {
	deadline := time.Now().Add(engineWait)
	for {
		err := engine.WriteFIFO(fifo, lines...)
		if !errors.Is(err, engine.ErrNoReader) || !wait || time.Now().After(deadline) {
			return err
		}
		time.Sleep(enginePoll)
	}
}
