// Package main is jobleaserctl, the operator CLI for jobleaser.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiranshivaraju/jobleaser/cmd/jobleaserctl/commands"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "path to an env file",
		Value: ".env",
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "jobleaserctl",
		Usage: "manage jobleaser agents, jobs and sequence pools",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "apply pending database migrations",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "dir",
						Usage: "migrations directory",
						Value: "migrations",
					},
				},
				Action: commands.MigrateAction,
			},
			{
				Name:  "agents",
				Usage: "agent commands",
				Commands: []*cli.Command{
					{
						Name:  "create",
						Usage: "register an agent",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{Name: "id", Usage: "agent id", Required: true},
							&cli.StringFlag{Name: "secret", Usage: "agent secret", Required: true},
						},
						Action: commands.AgentCreateAction,
					},
					{
						Name:   "list",
						Usage:  "list agents and their login state",
						Flags:  []cli.Flag{envFlag()},
						Action: commands.AgentListAction,
					},
				},
			},
			{
				Name:  "jobs",
				Usage: "job commands",
				Commands: []*cli.Command{
					{
						Name:  "import",
						Usage: "import jobs from a .csv or .json file",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{Name: "file", Usage: "input file", Required: true},
						},
						Action: commands.JobImportAction,
					},
					{
						Name:  "requeue",
						Usage: "return a Failed or ReLoginNeeded job to Ready",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{Name: "id", Usage: "job id", Required: true},
						},
						Action: commands.JobRequeueAction,
					},
					{
						Name:   "stats",
						Usage:  "show job counts per status",
						Flags:  []cli.Flag{envFlag()},
						Action: commands.JobStatsAction,
					},
				},
			},
			{
				Name:  "pools",
				Usage: "sequence pool commands",
				Commands: []*cli.Command{
					{
						Name:  "create",
						Usage: "add a sequence pool; end is exclusive",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{Name: "start", Usage: "first value", Required: true},
							&cli.StringFlag{Name: "end", Usage: "end value, never issued", Required: true},
						},
						Action: commands.PoolCreateAction,
					},
					{
						Name:  "next",
						Usage: "allocate values from the lowest open pool",
						Flags: []cli.Flag{
							envFlag(),
							&cli.IntFlag{Name: "count", Usage: "how many values", Value: 1},
						},
						Action: commands.PoolNextAction,
					},
				},
			},
		},
	}
}
