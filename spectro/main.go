package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/itohio/spectrodo/pkg/config"
	"github.com/itohio/spectrodo/pkg/sensor"
)

const (
	flagConfig   = "config"
	flagPort     = "port"
	flagDriver   = "driver"
	flagChartDir = "chart-dir"
	flagDebug    = "debug"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := &cli.App{
		Name:   "spectro",
		Usage:  "AS7265x absorbance colorimetry for dissolved oxygen",
		Flags:  globalFlags(),
		Action: runGUI,
		Commands: []*cli.Command{
			{
				Name:   "gui",
				Usage:  "open the desktop application (default)",
				Action: runGUI,
			},
			{
				Name:   "console",
				Usage:  "single-key command interface on the terminal (b, s, w, r)",
				Action: runConsole,
			},
			{
				Name:   "ports",
				Usage:  "list serial ports",
				Action: listPorts,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("spectro failed")
	}
}

// globalFlags are shared by all commands.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Value:   "config.yaml",
			Usage:   "Load configuration from `FILE`",
		},
		&cli.StringFlag{
			Name:    flagPort,
			Aliases: []string{"p"},
			Usage:   "Serial port override (e.g., COM3 or /dev/ttyACM0)",
		},
		&cli.StringFlag{
			Name:    flagDriver,
			Aliases: []string{"d"},
			Usage:   "Sensor driver override: serial, i2c or mock",
		},
		&cli.StringFlag{
			Name:  flagChartDir,
			Usage: "Write an absorbance chart to `DIR` after every sample",
		},
		&cli.BoolFlag{
			Name:  flagDebug,
			Usage: "enable debug logging",
		},
	}
}

// loadConfig loads the configuration file and applies command line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if port := c.String(flagPort); port != "" {
		cfg.Serial.Port = port
	}
	if driver := c.String(flagDriver); driver != "" {
		cfg.Sensor.Driver = strings.ToLower(driver)
	}
	if dir := c.String(flagChartDir); dir != "" {
		cfg.Report.ChartDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	if c.Bool(flagDebug) {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	return cfg, nil
}

func listPorts(c *cli.Context) error {
	ports, err := sensor.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(c.App.Writer, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintln(c.App.Writer, p.Name)
	}
	return nil
}
