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

package device

import (
	"context"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/powerlab/powerlab/pkg/errors"
)

// Flasher writes a firmware image to the device attached at port.
type Flasher interface {
	Flash(ctx context.Context, image, port string) error
}

// Esptool flashes ESP32 devices with esptool.py.
type Esptool struct {
	Path      string
	Chip      string
	Baud      int
	Offset    string
	FlashMode string
	FlashSize string
	FlashFreq string
}

// NewEsptool returns an Esptool configured for an ESP32-C6 module.
func NewEsptool() *Esptool {
	return &Esptool{
		Path:      "esptool.py",
		Chip:      "esp32c6",
		Baud:      460800,
		Offset:    "0x10000",
		FlashMode: "dio",
		FlashSize: "2MB",
		FlashFreq: "80m",
	}
}

// Args returns the command line for flashing image to port.
func (e *Esptool) Args(image, port string) []string {
	return []string{
		"-p", port,
		"-b", strconv.Itoa(e.Baud),
		"--before", "default_reset",
		"--after", "hard_reset",
		"--chip", e.Chip,
		"write_flash",
		"--flash_mode", e.FlashMode,
		"--flash_size", e.FlashSize,
		"--flash_freq", e.FlashFreq,
		e.Offset, image,
	}
}

// Flash runs the tool. A non-zero exit is reported as FLASH_FAILURE with
// the tail of the tool output.
func (e *Esptool) Flash(ctx context.Context, image, port string) error {
	args := e.Args(image, port)
	slog.Info("flashing firmware", "tool", e.Path, "image", image, "port", port)

	out, err := exec.CommandContext(ctx, e.Path, args...).CombinedOutput()
	if err != nil {
		return errors.WrapWithContext(errors.ErrCodeFlashFailure, "flashing tool failed", err,
			map[string]any{
				"image":  image,
				"port":   port,
				"output": tail(string(out), 10),
			})
	}

	slog.Debug("flash complete", "output", tail(string(out), 3))
	return nil
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
