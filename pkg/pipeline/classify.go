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

package pipeline

import "strings"

// LineKind classifies one serial line.
type LineKind int

const (
	KindUnknown LineKind = iota
	KindHandshake
	KindReady
	KindValue
	KindLog
	KindDone
)

var kindNames = map[LineKind]string{
	KindUnknown:   "unknown",
	KindHandshake: "handshake",
	KindReady:     "ready",
	KindValue:     "value",
	KindLog:       "log",
	KindDone:      "done",
}

func (k LineKind) String() string {
	return kindNames[k]
}

// Line is a classified serial line. Which fields are set depends on Kind.
type Line struct {
	Kind LineKind
	Raw  string

	// handshake
	Role    string
	Version string

	// value and log lines
	Text string
}

// Classify decodes a line by its first four bytes:
//
//	Hell  Hello:<role>:<version>
//	READ  READY
//	ADC_  ADC_VALUE:<value>
//	RECV  RECV:<value>
//	LOG:  LOG:<message>
//	DONE  end of the device test cycle
//
// Anything else, including a handshake without a version, is KindUnknown.
func Classify(raw string) Line {
	line := strings.TrimSpace(raw)
	l := Line{Kind: KindUnknown, Raw: line}
	if len(line) < 4 {
		return l
	}

	switch line[:4] {
	case "Hell":
		parts := strings.SplitN(line, ":", 3)
		if len(parts) == 3 {
			l.Kind = KindHandshake
			l.Role = strings.TrimSpace(parts[1])
			l.Version = strings.TrimSpace(parts[2])
		}
	case "READ":
		l.Kind = KindReady
	case "ADC_", "RECV":
		l.Kind = KindValue
		l.Text = afterColon(line)
	case "LOG:":
		l.Kind = KindLog
		l.Text = strings.TrimSpace(line[4:])
	case "DONE":
		l.Kind = KindDone
	}
	return l
}

func afterColon(s string) string {
	if _, v, ok := strings.Cut(s, ":"); ok {
		return strings.TrimSpace(v)
	}
	return s
}
