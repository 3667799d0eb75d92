// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dirlease/cmd/dirlease/cli"
	"github.com/bureau-foundation/dirlease/lib/clock"
	"github.com/bureau-foundation/dirlease/lib/ipc"
	"github.com/bureau-foundation/dirlease/lib/leaseclient"
)

type listParams struct {
	socket     string
	outputJSON bool
}

func listCommand(stdout io.Writer, wallClock clock.Clock) *cli.Command {
	var params listParams
	return &cli.Command{
		Name:    "list",
		Summary: "List outstanding leases",
		Examples: []cli.Example{
			{Command: "dirlease list"},
			{Description: "Machine-readable output", Command: "dirlease list --json"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			addSocketFlag(flagSet, &params.socket)
			flagSet.BoolVar(&params.outputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("list takes no arguments")
			}
			return listLeases(stdout, params, wallClock)
		},
	}
}

func listLeases(stdout io.Writer, params listParams, wallClock clock.Clock) error {
	socketPath, err := resolveSocket(params.socket)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	leases, err := leaseclient.New(socketPath).List(ctx)
	if err != nil {
		return fmt.Errorf("listing leases from %s: %w", socketPath, err)
	}

	if params.outputJSON {
		return cli.WriteJSON(stdout, leases)
	}
	writeLeaseTable(stdout, leases, wallClock.Now())
	return nil
}

func writeLeaseTable(stdout io.Writer, leases []ipc.LeaseEntry, now time.Time) {
	if len(leases) == 0 {
		fmt.Fprintln(stdout, "no outstanding leases")
		return
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tPATH\t")
	for _, entry := range leases {
		created := humanize.RelTime(entry.Created, now, "ago", "from now")
		if entry.Recovered {
			created += " (recovered)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", entry.ID, created, entry.Path)
	}
	tw.Flush()
}
