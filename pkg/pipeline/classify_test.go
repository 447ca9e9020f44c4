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

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		kind    LineKind
		role    string
		version string
		text    string
	}{
		{"handshake", "Hello:sender:2.1\r\n", KindHandshake, "sender", "2.1", ""},
		{"handshake not set", "Hello:receiver:not set", KindHandshake, "receiver", "not set", ""},
		{"handshake without version", "Hello:sender", KindUnknown, "", "", ""},
		{"ready", "READY", KindReady, "", "", ""},
		{"adc value", "ADC_VALUE:1234", KindValue, "", "", "1234"},
		{"received packet", "RECV:17;abcd;aa:bb;1", KindValue, "", "", "17;abcd;aa:bb;1"},
		{"log", "LOG: woke up", KindLog, "", "", "woke up"},
		{"done", "DONE", KindDone, "", "", ""},
		{"boot noise", "ets Jul 29 2019", KindUnknown, "", "", ""},
		{"short", "OK", KindUnknown, "", "", ""},
		{"empty", "", KindUnknown, "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Classify(tt.line)
			if l.Kind != tt.kind {
				t.Fatalf("Classify(%q) kind = %v, want %v", tt.line, l.Kind, tt.kind)
			}
			if l.Role != tt.role || l.Version != tt.version || l.Text != tt.text {
				t.Errorf("Classify(%q) = %+v", tt.line, l)
			}
		})
	}
}

func TestLineKindString(t *testing.T) {
	if KindValue.String() != "value" || KindUnknown.String() != "unknown" {
		t.Error("unexpected kind names")
	}
}
