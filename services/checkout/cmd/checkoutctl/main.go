package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "checkoutctl",
		Usage:     "operational tasks for the checkout service",
		Writer:    out,
		ErrWriter: os.Stderr,
		Commands: []*cli.Command{
			migrateCommand(),
			tokenCommand(),
			webpayCommand(),
		},
	}
}
