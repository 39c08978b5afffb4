package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"periph.io/x/host/v3"

	"github.com/bartgrantham/dynrds/internal/engine"
	"github.com/bartgrantham/dynrds/internal/fpp"
	"github.com/bartgrantham/dynrds/internal/logging"
	"github.com/bartgrantham/dynrds/internal/status"
	"github.com/bartgrantham/dynrds/internal/transmitter"
)

var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "run the transmitter engine",
	Long: `Reads commands from the FIFO and keeps RDS groups flowing to the
transmitter. Only one engine runs per FIFO. Normally started by the callback.`,
	Args: cobra.NoArgs,
	RunE: runEngine,
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logs, err := logging.Setup(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer logs.Close()

	lock, err := engine.Lock(cfg.FIFO)
	if err != nil {
		log.Error().Err(err).Msg("unable to create lock, is another engine running?")
		return err
	}
	defer lock.Close()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("couldn't initialize peripherals: %w", err)
	}

	lines, fifo, err := engine.OpenFIFO(cfg.FIFO)
	if err != nil {
		return err
	}
	log.Info().Str("fifo", cfg.FIFO).Str("config", path).Msg("engine started")

	e := engine.New(engine.NewContext(path, cfg), transmitter.FromConfig)
	e.Playlists = fpp.NewClient(cfg.FPP.API)
	pubs := status.Multi{status.LogPublisher{}}
	if cfg.Status.File != "" {
		pubs = append(pubs, status.FilePublisher{Path: cfg.Status.File})
	}
	e.Publisher = pubs

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	ctx, done := context.WithCancel(ctx)

	g.Go(func() error {
		defer done()
		err := e.Run(ctx, lines)
		if errors.Is(err, context.Canceled) {
			log.Info().Msg("interrupted")
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		return fifo.Close()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("engine stopped")
		return err
	}
	log.Info().Msg("engine exited")
	return nil
}
