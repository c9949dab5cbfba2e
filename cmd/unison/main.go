package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/unisonwave/go-unison/unison/device"
	"github.com/unisonwave/go-unison/unison/device/alsa"
	otodev "github.com/unisonwave/go-unison/unison/device/oto"
	"github.com/unisonwave/go-unison/unison/device/sim"
	"github.com/unisonwave/go-unison/unison/player"
	"github.com/unisonwave/go-unison/unison/wave"
)

const (
	exitConfig = 1
	exitDevice = 2
)

func main() {
	app := cli.NewApp()
	app.Name = "unison"
	app.Usage = "unison [options]"
	app.Description = "Sample-accurate synchronized playback of a wave file: " +
		"frame 0 hits the DAC at the requested wall-clock instant and the " +
		"stream stays phase-locked to the wall clock afterwards."
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "device, d",
			Usage: "playback device: an ALSA PCM name, \"sim\" or \"oto\"",
			Value: "default",
		},
		cli.StringFlag{
			Name:  "testfile, t",
			Usage: "path to the 16-bit PCM wave file to play",
		},
		cli.Uint64Flag{
			Name:  "startat, s",
			Usage: "wall-clock start of playback, ns since the Unix epoch",
		},
		cli.IntFlag{
			Name:  "desync-avg",
			Usage: "window of the drift regression",
			Value: 1000,
		},
		cli.IntFlag{
			Name:  "estimation-avg",
			Usage: "window of the sample-duration and error estimators",
			Value: 1000,
		},
		cli.IntFlag{
			Name:  "quality",
			Usage: "half-width of the resampling filter",
			Value: 2,
		},
		cli.IntFlag{
			Name:  "period",
			Usage: "device period in frames",
			Value: 1024,
		},
		cli.IntFlag{
			Name:  "fill-threshold",
			Usage: "queued frames below which the loop tops up (default 3/4 period)",
		},
		cli.BoolFlag{
			Name:  "no-correction",
			Usage: "disable drift correction (pre-roll only)",
		},
		cli.BoolFlag{
			Name:  "no-spinning",
			Usage: "probe the device status once per pass instead of spinning",
		},
		cli.BoolFlag{
			Name:  "no-estimation",
			Usage: "freeze the sample duration at the nominal 1/fs",
		},
		cli.Float64Flag{
			Name:  "sim-ppm",
			Usage: "clock offset of the sim device in parts per million",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable debug logging",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		slog.Error("unison failed", "error", err)
		os.Exit(exitConfig)
	}
}

func run(c *cli.Context) error {
	level := slog.LevelInfo
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	path := c.String("testfile")
	if path == "" {
		cli.ShowAppHelp(c)
		return cli.NewExitError("no wave file provided (--testfile)", exitConfig)
	}
	if !c.IsSet("startat") {
		return cli.NewExitError("no start time provided (--startat)", exitConfig)
	}
	for _, name := range []string{"desync-avg", "estimation-avg", "quality", "period"} {
		if c.Int(name) < 1 {
			return cli.NewExitError(fmt.Sprintf("--%s must be positive", name), exitConfig)
		}
	}
	if c.Int("period") <= 2*c.Int("quality")+1 {
		return cli.NewExitError(fmt.Sprintf("--period %d too small for --quality %d",
			c.Int("period"), c.Int("quality")), exitConfig)
	}

	src, err := wave.Open(path)
	if err != nil {
		return cli.NewExitError(err.Error(), exitConfig)
	}
	defer src.Close()

	var dev device.Device
	switch name := c.String("device"); name {
	case "sim":
		dev = sim.New(c.Float64("sim-ppm"))
	case "oto":
		dev = otodev.New()
	default:
		dev, err = alsa.Open(name)
		if err != nil {
			return cli.NewExitError(err.Error(), exitDevice)
		}
	}
	defer dev.Close()

	p, err := player.New(dev, src, player.Config{
		StartAt:       int64(c.Uint64("startat")),
		DesyncAvg:     c.Int("desync-avg"),
		EstimationAvg: c.Int("estimation-avg"),
		Quality:       c.Int("quality"),
		PeriodFrames:  c.Int("period"),
		FillThreshold: c.Int("fill-threshold"),
		NoCorrection:  c.Bool("no-correction"),
		NoSpinning:    c.Bool("no-spinning"),
		NoEstimation:  c.Bool("no-estimation"),
	}, slog.Default())
	if err != nil {
		return cli.NewExitError(err.Error(), exitDevice)
	}
	if err := p.Run(); err != nil {
		return cli.NewExitError(err.Error(), exitDevice)
	}
	return nil
}
