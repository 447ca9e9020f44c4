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

package serializer

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type nodeDoc struct {
	Name  string   `json:"name" yaml:"name"`
	Port  int      `json:"port" yaml:"port"`
	Roles []string `json:"roles" yaml:"roles"`
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"nodes.json", FormatJSON},
		{"nodes.YAML", FormatYAML},
		{"nodes.yml", FormatYAML},
		{"out.table", FormatTable},
		{"out.txt", FormatTable},
		{"noext", FormatJSON},
	}
	for _, tt := range tests {
		if got := FormatFromPath(tt.path); got != tt.want {
			t.Errorf("FormatFromPath(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestNewReader_RejectsTableAndUnknown(t *testing.T) {
	if _, err := NewReader(FormatTable, strings.NewReader("")); err == nil {
		t.Error("expected error for table format")
	}
	if _, err := NewReader(Format("xml"), strings.NewReader("")); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestReader_Deserialize(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		input  string
	}{
		{"json", FormatJSON, `{"name":"rx","port":8000,"roles":["receiver"]}`},
		{"yaml", FormatYAML, "name: rx\nport: 8000\nroles:\n  - receiver\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(tt.format, strings.NewReader(tt.input))
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()

			var got nodeDoc
			if err := r.Deserialize(&got); err != nil {
				t.Fatalf("deserialize failed: %v", err)
			}
			if got.Name != "rx" || got.Port != 8000 || len(got.Roles) != 1 {
				t.Errorf("unexpected value %+v", got)
			}
		})
	}
}

func TestReader_DeserializeInvalid(t *testing.T) {
	r, err := NewReader(FormatJSON, strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	var got nodeDoc
	if err := r.Deserialize(&got); err == nil {
		t.Error("expected decode error")
	}

	var nilReader *Reader
	if err := nilReader.Deserialize(&got); err == nil {
		t.Error("expected error for nil reader")
	}
	if err := nilReader.Close(); err != nil {
		t.Errorf("expected nil close on nil reader, got %v", err)
	}
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	if err := os.WriteFile(path, []byte("name: tx\nport: 9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := FromFile[nodeDoc](path)
	if err != nil {
		t.Fatalf("FromFile failed: %v", err)
	}
	if got.Name != "tx" || got.Port != 9000 {
		t.Errorf("unexpected value %+v", got)
	}

	if _, err := FromFile[nodeDoc](filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFromFile_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"name":"remote","port":1}`))
	}))
	defer srv.Close()

	got, err := FromFile[nodeDoc](srv.URL + "/node.json")
	if err != nil {
		t.Fatalf("FromFile failed: %v", err)
	}
	if got.Name != "remote" {
		t.Errorf("expected remote, got %q", got.Name)
	}
}
