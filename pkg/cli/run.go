// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/powerlab/powerlab/pkg/defaults"
	"github.com/powerlab/powerlab/pkg/fleet"
	"github.com/powerlab/powerlab/pkg/serializer"
)

func runCmd() *cli.Command {
	flags := []cli.Flag{
		configFlag(),
		&cli.DurationFlag{
			Name:    "duration",
			Aliases: []string{"d"},
			Value:   defaults.RunDuration,
			Usage:   "measurement length per test",
		},
		&cli.DurationFlag{
			Name:    "interval",
			Aliases: []string{"i"},
			Value:   defaults.RunInterval,
			Usage:   "pause between two data fetches",
		},
		&cli.BoolFlag{
			Name:    "all",
			Aliases: []string{"a"},
			Usage:   "measure every option variant of each sender's firmware release",
		},
		&cli.StringFlag{
			Name:  "output",
			Value: ".",
			Usage: "directory for result files",
		},
		&cli.BoolFlag{
			Name:  "msgpack",
			Usage: "request MessagePack responses from the agents",
		},
		portFlag(),
		formatFlag(),
	}

	return &cli.Command{
		Name:                  "run",
		EnableShellCompletion: true,
		Usage:                 "Run a measurement across the nodes of a node list",
		Description: `Pings every node, flashes its firmware, starts a measurement job and
fetches data every interval for the given duration before stopping all nodes.

With --all the receiver is flashed once and every option variant found in
each sender's firmware release is measured in turn.

Result files are named
  result-<yymmddHHMMSS>-node-<node>-job-<job>-run-<run>.json
and rewritten after every fetch.

# Examples

  powerlab run --config nodes.yaml --duration 1m --interval 10s --output results
  powerlab run --config nodes.yaml --all --firmware-source ./firmware`,
		Flags: append(flags, firmwareFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if _, err := parseOutputFormat(cmd); err != nil {
				return err
			}

			list, err := fleet.LoadNodeList(cmd.String("config"))
			if err != nil {
				return err
			}

			opts := []fleet.Option{
				fleet.WithClientOptions(fleet.WithMsgpack(cmd.Bool("msgpack"))),
			}
			if cmd.Bool("all") {
				cat, err := catalogFromCmd(cmd)
				if err != nil {
					return err
				}
				opts = append(opts, fleet.WithCatalog(cat))
			}

			ctl, err := fleet.NewController(list, fleet.Config{
				Duration:  cmd.Duration("duration"),
				Interval:  cmd.Duration("interval"),
				OutputDir: cmd.String("output"),
				Port:      cmd.Int("port"),
			}, opts...)
			if err != nil {
				return err
			}

			slog.Info("run started", "run", ctl.RunID(), "nodes", len(list.Nodes),
				"duration", cmd.Duration("duration"), "interval", cmd.Duration("interval"),
				"sweep", cmd.Bool("all"))

			var artifacts []fleet.Artifact
			if cmd.Bool("all") {
				artifacts, err = ctl.Sweep(ctx)
			} else {
				artifacts, err = ctl.Run(ctx)
			}
			if err != nil {
				if len(artifacts) > 0 {
					slog.Warn("run aborted, partial results were kept", "files", len(artifacts))
				}
				return err
			}

			outFormat, _ := parseOutputFormat(cmd)
			return serializer.NewWriter(outFormat, stdout(cmd)).Serialize(ctx, artifacts)
		},
	}
}

func resetCmd() *cli.Command {
	return &cli.Command{
		Name:                  "reset",
		EnableShellCompletion: true,
		Usage:                 "Stop all jobs on every node without collecting data",
		Flags: []cli.Flag{
			configFlag(),
			portFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			list, err := fleet.LoadNodeList(cmd.String("config"))
			if err != nil {
				return err
			}
			ctl, err := fleet.NewController(list, fleet.Config{
				Interval: defaults.RunInterval,
				Port:     cmd.Int("port"),
			})
			if err != nil {
				return err
			}
			if err := ctl.Reset(ctx); err != nil {
				return fmt.Errorf("reset incomplete: %w", err)
			}
			return nil
		},
	}
}
