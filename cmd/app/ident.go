package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/starford/beamline/internal/service"
)

func identCommand() *cli.Command {
	return &cli.Command{
		Name:      "ident",
		Usage:     "Print the rich and legacy forms of piece identifiers",
		ArgsUsage: "ID...",
		Action: func(_ context.Context, cmd *cli.Command) error {
			ids := cmd.Args().Slice()
			if len(ids) == 0 {
				return fmt.Errorf("at least one identifier is required")
			}
			printIdentifiers(os.Stdout, ids)
			return nil
		},
	}
}

func printIdentifiers(w io.Writer, ids []string) {
	label := color.New(color.Faint)
	changed := color.New(color.FgGreen)
	for _, id := range ids {
		n := service.NormalizeIdentifier(id)
		fmt.Fprintln(w, color.New(color.Bold).Sprint(n.Input))
		for _, v := range []struct{ name, value string }{{"rich", n.Rich}, {"legacy", n.Legacy}} {
			value := v.value
			if value != n.Input {
				value = changed.Sprint(value)
			}
			fmt.Fprintf(w, "  %s %s\n", label.Sprintf("%-6s", v.name), value)
		}
	}
}
