package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/starford/beamline/internal"
)

func retargetCommand() *cli.Command {
	return &cli.Command{
		Name:  "retarget",
		Usage: "Point the Directory element of every .idstv file in a folder at a new location",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dir",
				Usage:    "Folder holding the .idstv files",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "value",
				Usage:    "New Directory value",
				Required: true,
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			res, err := internal.Retarget(cmd.String("dir"), cmd.String("value"), logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%s %d of %d files rewritten (%d Directory elements)\n",
				color.New(color.FgGreen).Sprint("done"), res.Changed, res.Files, res.Elements)
			return nil
		},
	}
}
