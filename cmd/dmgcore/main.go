package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli"
	"dmgcore/jeebie"
	"dmgcore/jeebie/debug"
)

func main() {
	app := cli.NewApp()
	app.Name = "dmgcore"
	app.Usage = "dmgcore [options] <boot_rom_path> <cart_rom_path>"
	app.Description = "Runs a Game Boy machine core headlessly for a fixed number of frames"
	app.Version = "1.0.0"
	app.ArgsUsage = "boot_rom_path cart_rom_path"
	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "frames",
			Usage: "number of frames to run",
			Value: 60,
		},
		cli.StringFlag{
			Name:  "snapshot-dir",
			Usage: "directory to save periodic PNG frame snapshots (disabled if empty)",
		},
		cli.IntFlag{
			Name:  "snapshot-interval",
			Usage: "save a snapshot every N frames (0 = disabled)",
			Value: 0,
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		slog.Error("dmgcore: run failed", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() < 2 {
		cli.ShowAppHelp(c)
		return errors.New("boot_rom_path and cart_rom_path are required")
	}

	bootROMPath := c.Args().Get(0)
	cartROMPath := c.Args().Get(1)

	frames := c.Int("frames")
	if frames <= 0 {
		return errors.New("--frames must be a positive value")
	}

	snapshotInterval := c.Int("snapshot-interval")
	snapshotDir := c.String("snapshot-dir")
	if snapshotInterval > 0 {
		if snapshotDir == "" {
			return errors.New("--snapshot-interval requires --snapshot-dir")
		}
		if err := os.MkdirAll(snapshotDir, 0755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	console, err := jeebie.NewWithBootROM(bootROMPath, cartROMPath)
	if err != nil {
		return err
	}

	romName := filepath.Base(cartROMPath)
	slog.Info("dmgcore: starting run", "rom", romName, "frames", frames, "boot_rom", bootROMPath)

	for i := 0; i < frames; i++ {
		console.RunUntilFrame()

		if err := console.Err(); err != nil {
			return fmt.Errorf("core error at frame %d: %w", i+1, err)
		}

		if snapshotInterval > 0 && (i+1)%snapshotInterval == 0 {
			snapshotPath := filepath.Join(snapshotDir, fmt.Sprintf("frame_%06d.png", i+1))
			if err := debug.SaveFrameColorPNG(console.GetCurrentFrame(), snapshotPath); err != nil {
				slog.Error("dmgcore: failed to save snapshot", "frame", i+1, "path", snapshotPath, "error", err)
			}
		}
	}

	slog.Info("dmgcore: run complete", "frames", frames, "instructions", console.GetInstructionCount())
	return nil
}
