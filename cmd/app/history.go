package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/starford/beamline/internal/journal"
	"github.com/starford/beamline/internal/models"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show the most recent processing runs from the journal",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Number of runs to show",
				Value:   20,
			},
			&cli.StringFlag{
				Name:  "path",
				Usage: "Only runs on this path",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := journal.Open(cfg.SQLite.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.Recent(int(cmd.Int("limit")), cmd.String("path"))
			if err != nil {
				return err
			}
			return printHistory(os.Stdout, runs)
		},
	}
}

func printHistory(w io.Writer, runs []models.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}
	headers := []string{"Started", "File", "Kind", "Outcome", "Steps", "Retries", "Took", "Detail"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.StartedAt.Local().Format(time.DateTime),
			filepath.Base(r.Path),
			string(r.Kind),
			string(r.Outcome),
			strconv.Itoa(len(r.Steps)),
			strconv.Itoa(r.Retries),
			r.Duration.Round(time.Millisecond).String(),
			runDetail(r),
		})
	}
	_, err := fmt.Fprintln(w, renderTable(headers, rows, aligns, isTerminal(w)))
	return err
}

func runDetail(r models.Run) string {
	switch {
	case r.Error != "":
		return r.Error
	case r.RenamedTo != "":
		return "-> " + filepath.Base(r.RenamedTo)
	}
	return ""
}
