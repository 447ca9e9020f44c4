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

package fleet

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/powerlab/powerlab/pkg/defaults"
	"github.com/powerlab/powerlab/pkg/errors"
	"github.com/powerlab/powerlab/pkg/header"
	"github.com/powerlab/powerlab/pkg/node"
	"github.com/powerlab/powerlab/pkg/serializer"
)

// Node is one rig of the fleet as configured for a run.
type Node struct {
	ID      string    `json:"id" yaml:"id"`
	Name    string    `json:"name,omitempty" yaml:"name,omitempty"`
	Address string    `json:"address" yaml:"address"`
	Role    node.Role `json:"role" yaml:"role"`
	Version string    `json:"version" yaml:"version"`

	node.Options `json:",inline" yaml:",inline"`
}

// Label returns the name, or the id when the node has no name.
func (n Node) Label() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// WithOptions returns a copy of n built with opts.
func (n Node) WithOptions(opts node.Options) Node {
	n.Options = opts
	return n
}

// BaseURL returns the agent endpoint of n. Addresses without a port get
// port; addresses without a scheme get http.
func (n Node) BaseURL(port int) (string, error) {
	addr := strings.TrimSpace(n.Address)
	if addr == "" {
		return "", fmt.Errorf("address is empty")
	}

	if !strings.Contains(addr, "://") {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = net.JoinHostPort(strings.Trim(addr, "[]"), strconv.Itoa(port))
		}
		addr = "http://" + addr
	}

	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", n.Address, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid address %q: no host", n.Address)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid address %q: unsupported scheme %s", n.Address, u.Scheme)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// NodeList is the fleet configuration document.
type NodeList struct {
	header.Header `json:",inline" yaml:",inline"`

	Nodes []Node `json:"nodes" yaml:"nodes"`
}

// LoadNodeList reads and validates a node list from a JSON or YAML file.
func LoadNodeList(path string) (*NodeList, error) {
	list, err := serializer.FromFile[NodeList](path)
	if err != nil {
		return nil, errors.WrapWithContext(errors.ErrCodeMalformedConfig, "failed to read node list", err,
			map[string]any{"path": path})
	}
	if err := list.Validate(); err != nil {
		return nil, err
	}
	return list, nil
}

// Validate checks the header and every node. Roles are normalized to lower
// case. The first problem is returned as MALFORMED_CONFIG.
func (l *NodeList) Validate() error {
	if err := l.Expect(header.KindNodeList); err != nil {
		return errors.Wrap(errors.ErrCodeMalformedConfig, "invalid node list header", err)
	}
	if len(l.Nodes) == 0 {
		return errors.New(errors.ErrCodeMalformedConfig, "node list is empty")
	}

	seen := make(map[string]bool, len(l.Nodes))
	for i := range l.Nodes {
		n := &l.Nodes[i]
		if err := validateNode(n); err != nil {
			return errors.WrapWithContext(errors.ErrCodeMalformedConfig,
				fmt.Sprintf("invalid node entry %d", i), err,
				map[string]any{"index": i, "id": n.ID})
		}
		if seen[n.ID] {
			return errors.NewWithContext(errors.ErrCodeMalformedConfig,
				fmt.Sprintf("duplicate node id %s", n.ID), map[string]any{"index": i, "id": n.ID})
		}
		seen[n.ID] = true
	}
	return nil
}

// node ids become part of artifact file names
var nodeIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

func validateNode(n *Node) error {
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if !nodeIDPattern.MatchString(n.ID) {
		return fmt.Errorf("id %q may only contain letters, digits, '.', '_' and '-'", n.ID)
	}
	if _, err := n.BaseURL(defaults.AgentPort); err != nil {
		return err
	}
	role, err := node.ParseRole(string(n.Role))
	if err != nil {
		return err
	}
	n.Role = role
	if strings.TrimSpace(n.Version) == "" {
		return fmt.Errorf("version is required")
	}

	set := 0
	for _, v := range []string{n.Protocol, n.SleepMode, n.PowerSaveMode} {
		if v != "" {
			set++
		}
		if strings.Contains(v, "-") {
			return fmt.Errorf("option %q must not contain '-'", v)
		}
	}
	if set != 0 && set != 3 {
		return fmt.Errorf("protocol, sleepMode and powerSaveMode must be set together")
	}
	return nil
}

// Receiver returns the first receiver of the list.
func (l *NodeList) Receiver() (Node, bool) {
	for _, n := range l.Nodes {
		if n.Role == node.RoleReceiver {
			return n, true
		}
	}
	return Node{}, false
}
