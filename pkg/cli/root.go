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
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/powerlab/powerlab/pkg/errors"
	"github.com/powerlab/powerlab/pkg/logging"
)

const (
	name           = "powerlab"
	versionDefault = "dev"
)

var (
	// overridden during build with ldflags
	version = versionDefault
	commit  = "unknown"
	date    = "unknown"
)

var (
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	codeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func newRootCmd() *cli.Command {
	return &cli.Command{
		Name:                  name,
		EnableShellCompletion: true,
		Usage:                 "powerlab - power measurement fleet controller",
		Version:               fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Description: `Drives power measurements across a bench of node agents.

Each node pairs a device under test with a power profiler. The controller
flashes firmware through the node agents, starts measurement jobs, collects
the samples and writes one result file per node and job.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "log level (debug, info, warn, error)",
				Sources: cli.EnvVars(logging.EnvVarLogLevel),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logging.SetDefaultStructuredLoggerWithLevel(name, version, cmd.String("log-level"))
			slog.Debug("starting",
				"name", name,
				"version", version,
				"commit", commit,
				"date", date)
			return ctx, nil
		},
		Commands: []*cli.Command{
			runCmd(),
			resetCmd(),
			versionsCmd(),
			optionsCmd(),
			resultsCmd(),
			firmwareCmd(),
		},
	}
}

// Execute runs the CLI with the process arguments and exits non-zero on
// failure. This is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().Run(ctx, os.Args); err != nil {
		printError(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// printError writes a highlighted error line, with the error code when err
// carries one.
func printError(w io.Writer, err error) {
	var se *errors.StructuredError
	if stderrors.As(err, &se) {
		msg := strings.TrimPrefix(err.Error(), "["+string(se.Code)+"] ")
		fmt.Fprintf(w, "%s %s %s\n", errorStyle.Render("Error:"), codeStyle.Render(string(se.Code)), msg)
		return
	}
	fmt.Fprintf(w, "%s %s\n", errorStyle.Render("Error:"), err)
}

// exitCode returns 2 for canceled or timed out runs and 1 otherwise.
func exitCode(err error) int {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return 2
	}
	return 1
}
