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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerlab/powerlab/pkg/agent"
	"github.com/powerlab/powerlab/pkg/errors"
	"github.com/powerlab/powerlab/pkg/firmware"
	"github.com/powerlab/powerlab/pkg/node"
	"github.com/powerlab/powerlab/pkg/server"
)

// TestConstants verifies package constants are properly defined
func TestConstants(t *testing.T) {
	assert.Equal(t, "powerlabd", name)
	assert.Equal(t, "dev", versionDefault)

	// buildtime variables may keep their defaults but are never empty
	assert.NotEmpty(t, version)
	assert.NotEmpty(t, commit)
	assert.NotEmpty(t, date)
}

func firmwareDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	rel := filepath.Join(root, "1.2.0")
	require.NoError(t, os.MkdirAll(rel, 0o755))
	for _, asset := range []string{"receiver.bin", "sender.bin"} {
		require.NoError(t, os.WriteFile(filepath.Join(rel, asset), []byte("image "+asset), 0o600))
	}
	return root
}

func simConfig(t *testing.T) agent.Config {
	cfg := agent.DefaultConfig()
	cfg.Simulate = true
	cfg.FirmwareSource = firmwareDir(t)
	cfg.FirmwareCache = t.TempDir()
	cfg.PostFlashSettle = 0
	return cfg
}

func TestNewAgentSimulated(t *testing.T) {
	a, err := newAgent(simConfig(t))
	require.NoError(t, err)

	h := server.New(server.WithName(name), server.WithHandler(a.Routes())).Handler()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp agent.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, agent.StateOK, resp.Status)
}

func TestNewAgentBadCatalog(t *testing.T) {
	cfg := simConfig(t)
	cfg.FirmwareSource = filepath.Join(t.TempDir(), "missing")

	_, err := newAgent(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidRequest))
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestSimRigAnnouncesFlashedImage(t *testing.T) {
	rig := newSimRig()

	role, ver := rig.flashed()
	assert.Equal(t, node.RoleReceiver, role)
	assert.Equal(t, simVersion, ver)

	cfg := simConfig(t)
	catalog, err := firmware.NewCatalog(cfg.FirmwareSource)
	require.NoError(t, err)
	a := agent.New(cfg, rig.driver, rig.flasher, catalog)

	h := server.New(server.WithHandler(a.Routes())).Handler()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/flash/?version=1.2.0&node_type=sender", nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp agent.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, agent.StateOK, resp.Status)

	role, ver = rig.flashed()
	assert.Equal(t, node.RoleSender, role)
	assert.Equal(t, "1.2.0", ver)
}
