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

package agent

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/powerlab/powerlab/pkg/defaults"
	"github.com/powerlab/powerlab/pkg/device"
	"github.com/powerlab/powerlab/pkg/firmware"
)

// Environment variables read by LoadConfig.
const (
	EnvVarProfiler       = "POWERLAB_PROFILER"
	EnvVarSerial         = "POWERLAB_SERIAL"
	EnvVarFirmwareSource = "POWERLAB_FIRMWARE_SOURCE"
	EnvVarFirmwareCache  = "POWERLAB_FIRMWARE_CACHE"
	EnvVarSimulate       = "POWERLAB_SIMULATE"
	EnvVarPrintLogs      = "POWERLAB_PRINT_LOGS"
	EnvVarEsptool        = "POWERLAB_ESPTOOL"
	EnvVarChip           = "POWERLAB_CHIP"
	EnvVarGitHubToken    = "GITHUB_TOKEN"
)

// Config holds the agent configuration. The listen port belongs to the
// server configuration.
type Config struct {
	Device device.Config

	// FirmwareSource is a catalog source understood by firmware.NewCatalog.
	FirmwareSource string
	// FirmwareCache is where downloaded images are kept.
	FirmwareCache string
	GitHubToken   string

	// Simulate drives simulated hardware instead of attached devices.
	Simulate bool
	// PrintLogs echoes device log lines.
	PrintLogs bool

	Esptool string
	Chip    string

	DeviceDoneTimeout time.Duration
	FlashTimeout      time.Duration
	FetchTimeout      time.Duration
	PostFlashSettle   time.Duration
}

// DefaultConfig returns the configuration of a rig with a PPK2 and a
// CP210x attached device.
func DefaultConfig() Config {
	return Config{
		Device:            device.DefaultConfig(),
		FirmwareSource:    firmware.DefaultSource,
		FirmwareCache:     defaultCacheDir(),
		Esptool:           "esptool.py",
		Chip:              "esp32c6",
		DeviceDoneTimeout: defaults.DeviceDoneTimeout,
		FlashTimeout:      defaults.FlashTimeout,
		FetchTimeout:      defaults.FirmwareFetchTimeout,
		PostFlashSettle:   defaults.PostFlashSettle,
	}
}

// LoadConfig returns DefaultConfig with environment overrides applied.
func LoadConfig() Config {
	cfg := DefaultConfig()

	setString(&cfg.Device.ProfilerSignature, EnvVarProfiler)
	setString(&cfg.Device.SerialSignature, EnvVarSerial)
	setString(&cfg.FirmwareSource, EnvVarFirmwareSource)
	setString(&cfg.FirmwareCache, EnvVarFirmwareCache)
	setString(&cfg.GitHubToken, EnvVarGitHubToken)
	setString(&cfg.Esptool, EnvVarEsptool)
	setString(&cfg.Chip, EnvVarChip)
	setBool(&cfg.Simulate, EnvVarSimulate)
	setBool(&cfg.PrintLogs, EnvVarPrintLogs)

	return cfg
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "powerlab", "firmware")
	}
	return filepath.Join(os.TempDir(), "powerlab-firmware")
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, env string) {
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
