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
	"net/http"
	"strings"

	"github.com/powerlab/powerlab/pkg/errors"
	"github.com/powerlab/powerlab/pkg/node"
	"github.com/powerlab/powerlab/pkg/serializer"
	"github.com/powerlab/powerlab/pkg/server"
)

// Routes returns the agent API. Every job route is served with and without
// a trailing slash.
func (a *Agent) Routes() map[string]http.HandlerFunc {
	routes := map[string]http.HandlerFunc{
		"/": a.handleRoot,
	}
	for path, h := range map[string]http.HandlerFunc{
		"/flash":  a.handleFlash,
		"/start":  a.handleStart,
		"/status": a.handleStatus,
		"/jobs":   a.handleJobs,
		"/stop":   a.handleStop,
	} {
		routes[path] = h
		routes[path+"/"] = h
	}
	return routes
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	server.WriteError(w, r, http.StatusMethodNotAllowed, errors.ErrCodeMethodNotAllowed,
		"Method not allowed", false, map[string]any{"method": r.Method, "allowed": methods})
	return false
}

func (a *Agent) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		server.WriteError(w, r, http.StatusNotFound, errors.ErrCodeNotFound,
			"Route not found", false, map[string]any{"path": r.URL.Path})
		return
	}
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	serializer.Respond(w, r, http.StatusOK, StatusResponse{Status: a.State()})
}

type jobRequest struct {
	version string
	role    node.Role
	options node.Options
}

// parseJobRequest reads version, node_type and the option parameters from
// the query or a form body. A node_type of the form
// "<role>-<protocol>-<sleep>-<psm>" also sets the options; explicit option
// parameters win.
func parseJobRequest(r *http.Request) (*jobRequest, error) {
	if err := r.ParseForm(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequest, "invalid request parameters", err)
	}

	v := strings.TrimSpace(r.Form.Get(ParamVersion))
	if v == "" {
		return nil, errors.NewWithContext(errors.ErrCodeInvalidRequest, "version is required",
			map[string]any{"parameter": ParamVersion})
	}

	nodeType := strings.TrimSpace(r.Form.Get(ParamNodeType))
	if nodeType == "" {
		return nil, errors.NewWithContext(errors.ErrCodeInvalidRequest, "node_type is required",
			map[string]any{"parameter": ParamNodeType})
	}

	var opts node.Options
	parts := strings.Split(nodeType, "-")
	switch len(parts) {
	case 1:
	case 4:
		opts = node.Options{Protocol: parts[1], SleepMode: parts[2], PowerSaveMode: parts[3]}
	default:
		return nil, errors.NewWithContext(errors.ErrCodeInvalidRequest, "invalid node_type",
			map[string]any{"node_type": nodeType})
	}

	role, err := node.ParseRole(parts[0])
	if err != nil {
		return nil, err
	}

	explicit := node.OptionsFromQuery(r.Form)
	if explicit.Protocol != "" {
		opts.Protocol = explicit.Protocol
	}
	if explicit.SleepMode != "" {
		opts.SleepMode = explicit.SleepMode
	}
	if explicit.PowerSaveMode != "" {
		opts.PowerSaveMode = explicit.PowerSaveMode
	}

	return &jobRequest{version: v, role: role, options: opts}, nil
}

func (a *Agent) handleFlash(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	req, err := parseJobRequest(r)
	if err != nil {
		server.WriteErrorFromErr(w, r, err, "invalid flash request", nil)
		return
	}

	status := a.Flash(r.Context(), req.version, req.role, req.options)
	serializer.Respond(w, r, http.StatusOK, StatusResponse{Status: status})
}

func (a *Agent) handleStart(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	req, err := parseJobRequest(r)
	if err != nil {
		server.WriteErrorFromErr(w, r, err, "invalid start request", nil)
		return
	}

	job := a.Start(req.version, req.role, req.options)
	serializer.Respond(w, r, http.StatusOK, StartResponse{UUID: job.ID, Status: job.Status()})
}

func (a *Agent) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get(ParamUUID))
	if id == "" {
		server.WriteError(w, r, http.StatusBadRequest, errors.ErrCodeInvalidRequest,
			"uuid is required", false, map[string]any{"parameter": ParamUUID})
		return
	}

	status, err := a.Status(id)
	if err != nil {
		serializer.Respond(w, r, http.StatusOK, ErrorPayload{Error: err.Error()})
		return
	}
	serializer.Respond(w, r, http.StatusOK, StatusResponse{Status: status})
}

func (a *Agent) handleJobs(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	serializer.Respond(w, r, http.StatusOK, a.Jobs())
}

func (a *Agent) handleStop(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	serializer.Respond(w, r, http.StatusOK, a.Stop(r.Context()))
}
