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
	stderrors "errors"
	"time"
)

var (
	// ErrReadTimeout is returned by SerialPort.ReadLine when no complete line
	// arrived within the timeout.
	ErrReadTimeout = stderrors.New("serial read timeout")

	// ErrPortClosed is returned by SerialPort.ReadLine after Close.
	ErrPortClosed = stderrors.New("serial port closed")
)

// Profiler is a power profiler handle that also switches the supply of the
// device under test.
type Profiler interface {
	// StartMeasuring begins streaming current samples.
	StartMeasuring() error

	// StopMeasuring ends streaming.
	StopMeasuring() error

	// SetDUTPower switches the device under test supply.
	SetDUTPower(on bool) error

	// ReadBlock returns the raw bytes buffered since the last call. An empty
	// block is not an error.
	ReadBlock() ([]byte, error)

	// Convert turns a raw block into calibrated samples in microamps.
	Convert(raw []byte) []float64

	// Close releases the handle.
	Close() error
}

// SerialPort is the line oriented log stream of the device under test.
// ReadLine is not safe for concurrent use; Close may be called from any
// goroutine.
type SerialPort interface {
	// ReadLine returns the next line without its terminator. It returns
	// ErrReadTimeout if no line completes within timeout.
	ReadLine(timeout time.Duration) (string, error)

	// Path is the device path the port was opened on.
	Path() string

	// Close releases the port.
	Close() error
}

// Driver locates and opens hardware by signature. A signature is a
// substring of the device identity, for example "PPK2" or "10c4_ea60".
type Driver interface {
	OpenProfiler(ctx context.Context, signature string) (Profiler, error)
	OpenSerial(ctx context.Context, signature string) (SerialPort, error)

	// FindSerial resolves the device path without opening it, for tools
	// that open the port themselves.
	FindSerial(ctx context.Context, signature string) (string, error)
}

// Config names the hardware an agent drives.
type Config struct {
	// ProfilerSignature identifies the power profiler.
	ProfilerSignature string `json:"profilerSignature" yaml:"profilerSignature"`

	// SerialSignature identifies the serial bridge of the device under test.
	SerialSignature string `json:"serialSignature" yaml:"serialSignature"`
}

// DefaultConfig returns the signatures of a PPK2 and a CP210x bridge.
func DefaultConfig() Config {
	return Config{
		ProfilerSignature: "PPK2",
		SerialSignature:   "10c4_ea60",
	}
}
