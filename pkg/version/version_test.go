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

package version

import (
	"errors"
	"testing"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input   string
		want    Version
		wantErr error
	}{
		{"2", Version{Major: 2, Precision: 1}, nil},
		{"v2.1", Version{Major: 2, Minor: 1, Precision: 2}, nil},
		{"1.4.2", Version{Major: 1, Minor: 4, Patch: 2, Precision: 3}, nil},
		{"1.4.2-rc1", Version{Major: 1, Minor: 4, Patch: 2, Precision: 3, Extras: "-rc1"}, nil},
		{"", Version{}, ErrEmptyVersion},
		{"1.2.3.4", Version{}, ErrTooManyComponents},
		{"debug", Version{}, ErrNonNumeric},
		{"1..2", Version{}, ErrNonNumeric},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseVersion(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseVersion(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVersion(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseVersion(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"2.1", "2.1.0", 0},
		{"2.0", "2.1", -1},
		{"3", "2.9.9", 1},
		{"1.2.3-rc1", "1.2.3", -1},
		{"1.2.3-rc2", "1.2.3-rc1", 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			got := MustParseVersion(tt.a).Compare(MustParseVersion(tt.b))
			if got != tt.want {
				t.Errorf("Compare(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		reported  string
		want      bool
	}{
		{"exact", "2.1", "2.1", true},
		{"prefix and precision", "v2.1", "2.1.0", true},
		{"mismatch", "2.1", "2.0", false},
		{"latest bypasses", "latest", "0.1", true},
		{"debug bypasses", "debug", "whatever", true},
		{"selector case", "LATEST", "1.0", true},
		{"device not set", "2.1", "not set", false},
		{"empty report", "2.1", "", false},
		{"non numeric equal", "nightly", "nightly", true},
		{"non numeric differ", "nightly", "stable", false},
		{"extras differ", "1.0.0-rc1", "1.0.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(tt.requested, tt.reported); got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.requested, tt.reported, got, tt.want)
			}
		})
	}
}

func TestNewest(t *testing.T) {
	got, ok := Newest([]string{"debug", "v1.2.0", "1.10.0", "1.9.9"})
	if !ok || got != "1.10.0" {
		t.Errorf("Newest() = %q, %v; want 1.10.0, true", got, ok)
	}

	if _, ok := Newest([]string{"debug", "nightly"}); ok {
		t.Error("expected no parseable version")
	}
}

func TestMustParseVersionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid version")
		}
	}()
	MustParseVersion("x.y")
}
