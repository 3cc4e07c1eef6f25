package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/itohio/spectrodo/pkg/console"
	"github.com/itohio/spectrodo/pkg/sensor"
	"github.com/itohio/spectrodo/pkg/session"
)

// runConsole runs the terminal command loop until stdin closes or the process is interrupted.
func runConsole(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dev, err := sensor.New(cfg)
	if err != nil {
		return err
	}

	sess := session.New(dev, cfg)
	con := console.New(os.Stdout, sess, console.WithChartDir(cfg.Report.ChartDir))
	con.Banner()

	if err := sensor.Setup(ctx, dev, cfg.Sensor); err != nil {
		if !errors.Is(err, sensor.ErrNotDetected) {
			return err
		}
		log.Error().Err(err).Msg("sensor not detected, halting")
		if err := console.Halt(ctx, os.Stdout, clock.New(), console.DefaultHeartbeat); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
	defer func() {
		if err := dev.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close sensor")
		}
	}()

	con.Ready()

	// Reading stdin cannot be interrupted, so the loop runs on its own goroutine.
	done := make(chan error, 1)
	go func() { done <- con.Run(ctx, os.Stdin) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-done:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}
