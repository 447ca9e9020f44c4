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
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/powerlab/powerlab/pkg/agent"
	"github.com/powerlab/powerlab/pkg/defaults"
	"github.com/powerlab/powerlab/pkg/firmware"
	"github.com/powerlab/powerlab/pkg/serializer"
)

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "output file path (default: stdout)",
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"t"},
		Value:   string(serializer.FormatTable),
		Usage:   fmt.Sprintf("output format (supported values: %s)", strings.Join(serializer.SupportedFormats(), ", ")),
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "path to the node list (YAML or JSON)",
		Required: true,
	}
}

func portFlag() cli.Flag {
	return &cli.IntFlag{
		Name:  "port",
		Value: defaults.AgentPort,
		Usage: "agent port for node addresses without one",
	}
}

func firmwareFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "firmware-source",
			Value:   firmware.DefaultSource,
			Usage:   "firmware catalog: github://owner/repo, oci://registry/repository or a local directory",
			Sources: cli.EnvVars(agent.EnvVarFirmwareSource),
		},
		&cli.StringFlag{
			Name:    "github-token",
			Usage:   "token for the GitHub releases API",
			Sources: cli.EnvVars(agent.EnvVarGitHubToken),
		},
		&cli.BoolFlag{
			Name:  "plain-http",
			Usage: "use HTTP for OCI registries",
		},
		&cli.BoolFlag{
			Name:  "insecure-tls",
			Usage: "skip TLS verification for OCI registries",
		},
	}
}

func catalogFromCmd(cmd *cli.Command) (firmware.Catalog, error) {
	return firmware.NewCatalog(cmd.String("firmware-source"),
		firmware.WithToken(cmd.String("github-token")),
		firmware.WithPlainHTTP(cmd.Bool("plain-http")),
		firmware.WithInsecureTLS(cmd.Bool("insecure-tls")),
	)
}

func parseOutputFormat(cmd *cli.Command) (serializer.Format, error) {
	outFormat := serializer.Format(cmd.String("format"))
	if outFormat.IsUnknown() {
		return "", fmt.Errorf("unknown output format: %q", outFormat)
	}
	return outFormat, nil
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

// write serializes v to the --output file or stdout in the --format format.
func write(ctx context.Context, cmd *cli.Command, v any) error {
	outFormat, err := parseOutputFormat(cmd)
	if err != nil {
		return err
	}
	var ser serializer.Serializer
	if path := cmd.String("output"); path != "" {
		ser = serializer.NewFileWriterOrStdout(outFormat, path)
	} else {
		ser = serializer.NewWriter(outFormat, stdout(cmd))
	}
	if closer, ok := ser.(serializer.Closer); ok {
		defer closer.Close()
	}
	return ser.Serialize(ctx, v)
}
