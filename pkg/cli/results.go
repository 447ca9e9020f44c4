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
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/powerlab/powerlab/pkg/fleet"
)

func resultsCmd() *cli.Command {
	return &cli.Command{
		Name:  "results",
		Usage: "Work with result files",
		Commands: []*cli.Command{
			resultsMergeCmd(),
		},
	}
}

func resultsMergeCmd() *cli.Command {
	return &cli.Command{
		Name:                  "merge",
		EnableShellCompletion: true,
		Usage:                 "Merge result files into one time sorted series",
		Description: `Concatenates the power samples and events of several result files, for
example all files of one job group, and sorts them by time. Sender series
can be shifted so that the first sample or the first marker event sits at
time zero.

# Examples

  powerlab results merge --input 'results/*-run-42.json' --shift first-marker -o merged.json -t json`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "result file or glob pattern (can be repeated)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "shift",
				Value: string(fleet.ShiftNone),
				Usage: fmt.Sprintf("time shift for sender series (%s, %s, %s)",
					fleet.ShiftNone, fleet.ShiftFirstValue, fleet.ShiftFirstMarker),
			},
			&cli.StringFlag{
				Name:  "marker",
				Value: fleet.DefaultMarker,
				Usage: "event label used by --shift first-marker",
			},
			outputFlag(),
			formatFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			paths, err := expandInputs(cmd.StringSlice("input"))
			if err != nil {
				return err
			}
			merged, err := fleet.MergeResults(paths, fleet.MergeOptions{
				Shift:  fleet.Shift(cmd.String("shift")),
				Marker: cmd.String("marker"),
			})
			if err != nil {
				return err
			}
			return write(ctx, cmd, merged)
		},
	}
}

// expandInputs resolves glob patterns. Each pattern's matches are sorted;
// plain paths are kept as given.
func expandInputs(inputs []string) ([]string, error) {
	var out []string
	for _, in := range inputs {
		if !strings.ContainsAny(in, "*?[") {
			out = append(out, in)
			continue
		}
		matches, err := filepath.Glob(in)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", in, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no result files match %q", in)
		}
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out, nil
}
