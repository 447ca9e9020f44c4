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
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/powerlab/powerlab/pkg/measurement"
)

// Request parameters of the job routes.
const (
	ParamVersion  = "version"
	ParamNodeType = "node_type"
	ParamUUID     = "uuid"
)

// StatusResponse is returned by the root, flash and status routes.
type StatusResponse struct {
	Status string `json:"status" msgpack:"status"`
}

// StartResponse is returned by the start route.
type StartResponse struct {
	UUID   string `json:"uuid" msgpack:"uuid"`
	Status string `json:"status" msgpack:"status"`
}

// ErrorPayload reports a job lookup failure. It is sent with status 200.
type ErrorPayload struct {
	Error string `json:"error" msgpack:"error"`
}

// JobsResponse maps job ids to the data drained from them.
type JobsResponse map[string]measurement.Batch

// Len returns the number of samples and events across all jobs.
func (r JobsResponse) Len() int {
	n := 0
	for _, b := range r {
		n += b.Len()
	}
	return n
}

// StopResponse carries the final data of every stopped job. On the wire
// the jobs sit next to the status key: {"status": "stopped", "<uuid>": {...}}.
type StopResponse struct {
	Status string
	Jobs   JobsResponse
}

const statusKey = "status"

// MarshalJSON flattens the jobs into the top level object.
func (s StopResponse) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Jobs)+1)
	for id, b := range s.Jobs {
		out[id] = b
	}
	out[statusKey] = s.Status
	return json.Marshal(out)
}

// UnmarshalJSON reads the flattened form.
func (s *StopResponse) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Jobs = make(JobsResponse, len(raw))
	for k, v := range raw {
		if k == statusKey {
			if err := json.Unmarshal(v, &s.Status); err != nil {
				return fmt.Errorf("invalid stop status: %w", err)
			}
			continue
		}
		var b measurement.Batch
		if err := json.Unmarshal(v, &b); err != nil {
			return fmt.Errorf("invalid data for job %s: %w", k, err)
		}
		s.Jobs[k] = b
	}
	return nil
}

// EncodeMsgpack writes the flattened form as a map.
func (s StopResponse) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(len(s.Jobs) + 1); err != nil {
		return err
	}
	if err := enc.EncodeString(statusKey); err != nil {
		return err
	}
	if err := enc.EncodeString(s.Status); err != nil {
		return err
	}
	for id, b := range s.Jobs {
		if err := enc.EncodeString(id); err != nil {
			return err
		}
		if err := enc.Encode(b); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMsgpack reads the flattened form.
func (s *StopResponse) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}

	s.Jobs = make(JobsResponse, n)
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return err
		}
		if key == statusKey {
			if s.Status, err = dec.DecodeString(); err != nil {
				return err
			}
			continue
		}
		var b measurement.Batch
		if err := dec.Decode(&b); err != nil {
			return fmt.Errorf("invalid data for job %s: %w", key, err)
		}
		s.Jobs[key] = b
	}
	return nil
}
