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
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/powerlab/powerlab/pkg/firmware"
	"github.com/powerlab/powerlab/pkg/node"
	fwversion "github.com/powerlab/powerlab/pkg/version"
)

// releaseRow is one line of the versions listing.
type releaseRow struct {
	Release  string `json:"release" yaml:"release"`
	Assets   int    `json:"assets" yaml:"assets"`
	Sender   int    `json:"sender_variants" yaml:"sender_variants"`
	Receiver int    `json:"receiver_variants" yaml:"receiver_variants"`
}

// optionRow is one line of the options listing.
type optionRow struct {
	Asset         string `json:"asset" yaml:"asset"`
	Protocol      string `json:"protocol" yaml:"protocol"`
	SleepMode     string `json:"sleep_mode" yaml:"sleep_mode"`
	PowerSaveMode string `json:"power_save_mode" yaml:"power_save_mode"`
}

func versionsCmd() *cli.Command {
	return &cli.Command{
		Name:                  "versions",
		EnableShellCompletion: true,
		Usage:                 "List the firmware releases of the catalog",
		Flags:                 append(firmwareFlags(), outputFlag(), formatFlag()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cat, err := catalogFromCmd(cmd)
			if err != nil {
				return err
			}
			releases, err := cat.Releases(ctx)
			if err != nil {
				return err
			}

			rows := make([]releaseRow, 0, len(releases))
			for i := range releases {
				r := &releases[i]
				rows = append(rows, releaseRow{
					Release:  r.Name,
					Assets:   len(r.Assets),
					Sender:   len(firmware.Variants(r, node.RoleSender)),
					Receiver: len(firmware.Variants(r, node.RoleReceiver)),
				})
			}
			return write(ctx, cmd, rows)
		},
	}
}

func optionsCmd() *cli.Command {
	return &cli.Command{
		Name:                  "options",
		EnableShellCompletion: true,
		Usage:                 "List the option combinations of a firmware release",
		Description: fmt.Sprintf(`Lists the protocol, sleep mode and power save mode combinations a
release offers for a role. The version may be a release name or one of the
selectors %q and %q.`, fwversion.Latest, fwversion.Debug),
		Flags: append(firmwareFlags(),
			&cli.StringFlag{
				Name:     "version",
				Usage:    "firmware release",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "role",
				Value: node.RoleSender.String(),
				Usage: "node role (sender, receiver)",
			},
			outputFlag(),
			formatFlag(),
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			role, err := node.ParseRole(cmd.String("role"))
			if err != nil {
				return err
			}
			cat, err := catalogFromCmd(cmd)
			if err != nil {
				return err
			}
			releases, err := cat.Releases(ctx)
			if err != nil {
				return err
			}
			rel, err := firmware.FindRelease(releases, cmd.String("version"))
			if err != nil {
				return err
			}

			variants := firmware.Variants(rel, role)
			rows := make([]optionRow, 0, len(variants))
			for _, o := range variants {
				rows = append(rows, optionRow{
					Asset:         firmware.AssetName(role, o),
					Protocol:      o.Protocol,
					SleepMode:     o.SleepMode,
					PowerSaveMode: o.PowerSaveMode,
				})
			}
			return write(ctx, cmd, rows)
		},
	}
}

func firmwareCmd() *cli.Command {
	return &cli.Command{
		Name:  "firmware",
		Usage: "Manage firmware releases",
		Commands: []*cli.Command{
			firmwarePushCmd(),
		},
	}
}

func firmwarePushCmd() *cli.Command {
	return &cli.Command{
		Name:                  "push",
		EnableShellCompletion: true,
		Usage:                 "Publish a directory of firmware images to an OCI registry",
		Description: `Packs every <role>[-<protocol>-<sleep>-<psm>].bin image of a directory
into one OCI artifact and pushes it as the release named by the tag.

# Examples

  powerlab firmware push --dir build/2.1.0 --ref oci://ghcr.io/lab/firmware:2.1.0
  powerlab firmware push --dir out --ref oci://localhost:5000/firmware:debug --plain-http`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dir",
				Usage:    "directory with firmware images",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "ref",
				Usage:    "target reference (oci://registry/repository:tag)",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "annotation",
				Usage: "manifest annotation (format: key=value, can be repeated)",
			},
			&cli.BoolFlag{
				Name:  "plain-http",
				Usage: "use HTTP for the registry connection",
			},
			&cli.BoolFlag{
				Name:  "insecure-tls",
				Usage: "skip TLS certificate verification",
			},
			outputFlag(),
			formatFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ref, err := firmware.ParseReference(cmd.String("ref"))
			if err != nil {
				return err
			}
			annotations, err := parseAnnotations(cmd.StringSlice("annotation"))
			if err != nil {
				return err
			}

			res, err := firmware.Push(ctx, cmd.String("dir"), ref, firmware.PushOptions{
				PlainHTTP:   cmd.Bool("plain-http"),
				InsecureTLS: cmd.Bool("insecure-tls"),
				Annotations: annotations,
			})
			if err != nil {
				return err
			}
			return write(ctx, cmd, res)
		},
	}
}

func parseAnnotations(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, v := range values {
		k, val, ok := strings.Cut(v, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid annotation %q, expected key=value", v)
		}
		out[strings.TrimSpace(k)] = val
	}
	return out, nil
}
