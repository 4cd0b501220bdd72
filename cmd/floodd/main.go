package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// These variables are populated via the Go linker.
var (
	version string
	commit  string
	branch  string
)

func init() {
	// If commit or branch are not set, make that clear.
	if version == "" {
		version = "unknown"
	}
	if commit == "" {
		commit = "unknown"
	}
	if branch == "" {
		branch = "unknown"
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "floodd",
		Usage:     "automatic flood alert dispatch daemon",
		UsageText: "floodd [command] [options]",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the daemon",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "path to the TOML config file, defaults are used when empty",
						EnvVars: []string{"FLOODD_CONFIG_PATH"},
					},
					&cli.StringFlag{Name: "pidfile", Usage: "write the process ID to this file"},
					&cli.StringFlag{Name: "log-file", Usage: "override the logging file"},
					&cli.StringFlag{Name: "log-level", Usage: "override the logging level"},
				},
				Action: runAction,
			},
			{
				Name:  "config",
				Usage: "print the default configuration",
				Action: func(ctx *cli.Context) error {
					return printConfig(ctx.App.Writer, ctx.String("config"))
				},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "merge this config file over the defaults"},
				},
			},
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(ctx *cli.Context) error {
					_, err := fmt.Fprintf(ctx.App.Writer, "floodd %s (git: %s %s)\n", version, branch, commit)
					return err
				},
			},
		},
	}
}
