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

package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/powerlab/powerlab/pkg/agent"
	"github.com/powerlab/powerlab/pkg/device"
	"github.com/powerlab/powerlab/pkg/errors"
	"github.com/powerlab/powerlab/pkg/firmware"
	"github.com/powerlab/powerlab/pkg/logging"
	"github.com/powerlab/powerlab/pkg/server"
)

const (
	name           = "powerlabd"
	versionDefault = "dev"
)

var (
	// overridden during build with ldflags to reflect actual version info
	// e.g., -X "github.com/powerlab/powerlab/pkg/api.version=1.0.0"
	version = versionDefault
	commit  = "unknown"
	date    = "unknown"
)

// Serve starts the node agent and blocks until shutdown.
// It configures logging, attaches the rig, and serves the job API.
// Returns an error if the server fails to start or encounters a fatal error.
func Serve() error {
	ctx := context.Background()

	logging.SetDefaultStructuredLogger(name, version)
	slog.Info("starting",
		"name", name,
		"version", version,
		"commit", commit,
		"date", date,
	)

	cfg := agent.LoadConfig()
	a, err := newAgent(cfg)
	if err != nil {
		slog.Error("agent setup failed", "error", err)
		return err
	}

	scfg := server.NewConfig()
	s := server.New(
		server.WithConfig(scfg),
		server.WithName(name),
		server.WithVersion(version),
		server.WithHandler(a.Routes()),
		server.WithReadiness(a.Ready),
	)

	if err := s.Run(ctx, notifyReady, shutdownHook(a, scfg.ShutdownTimeout)); err != nil {
		slog.Error("server exited with error", "error", err)
		return err
	}

	return nil
}

// newAgent attaches the hardware described by cfg, or a simulated rig.
func newAgent(cfg agent.Config) (*agent.Agent, error) {
	catalog, err := firmware.NewCatalog(cfg.FirmwareSource, firmware.WithToken(cfg.GitHubToken))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequest, "failed to open firmware catalog", err)
	}

	if cfg.Simulate {
		slog.Warn("serving a simulated rig")
		rig := newSimRig()
		return agent.New(cfg, rig.driver, rig.flasher, catalog), nil
	}

	flasher := device.NewEsptool()
	flasher.Path = cfg.Esptool
	flasher.Chip = cfg.Chip

	return agent.New(cfg, device.NewTTYDriver(), flasher, catalog), nil
}

// notifyReady tells systemd the daemon is up. It is a no-op outside a
// systemd unit.
func notifyReady(ctx context.Context) error {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		slog.Warn("systemd notify failed", "error", err)
	} else if sent {
		slog.Debug("systemd notified", "state", daemon.SdNotifyReady)
	}
	<-ctx.Done()
	return nil
}

// shutdownHook stops outstanding jobs once the server context ends so
// devices are powered down before exit.
func shutdownHook(a *agent.Agent, timeout time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		<-ctx.Done()
		if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
			slog.Debug("systemd notify failed", "error", err)
		}
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := a.Shutdown(sctx); err != nil {
			slog.Error("agent shutdown incomplete", "error", err)
		}
		return nil
	}
}
