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
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/powerlab/powerlab/pkg/agent"
	"github.com/powerlab/powerlab/pkg/defaults"
	"github.com/powerlab/powerlab/pkg/errors"
	"github.com/powerlab/powerlab/pkg/node"
	"github.com/powerlab/powerlab/pkg/serializer"
	"github.com/powerlab/powerlab/pkg/server"
)

// DefaultRetry is the connection retry policy: one attempt plus
// defaults.ConnectRetries retries with exponential backoff.
var DefaultRetry = wait.Backoff{
	Duration: defaults.ConnectBackoff,
	Factor:   defaults.ConnectBackoffFactor,
	Steps:    defaults.ConnectRetries + 1,
}

// Client talks to the agent of one node.
type Client struct {
	node    Node
	baseURL string
	http    *http.Client
	ua      string
	msgpack bool
	retry   wait.Backoff
	runID   string
}

// ClientOption is a functional option for configuring Client instances.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithMsgpack asks the agent for MessagePack responses.
func WithMsgpack(enabled bool) ClientOption {
	return func(cl *Client) {
		cl.msgpack = enabled
	}
}

// WithRunHeader tags every request with the controller run, so agent logs can
// be correlated with it.
func WithRunHeader(id string) ClientOption {
	return func(cl *Client) {
		cl.runID = id
	}
}

// WithRetry sets the connection retry policy.
func WithRetry(b wait.Backoff) ClientOption {
	return func(cl *Client) {
		cl.retry = b
	}
}

// NewClient returns a client for n. port is used when the node address
// carries none.
func NewClient(n Node, port int, opts ...ClientOption) (*Client, error) {
	base, err := n.BaseURL(port)
	if err != nil {
		return nil, errors.WrapWithContext(errors.ErrCodeMalformedConfig, "invalid node address", err,
			map[string]any{"node": n.ID})
	}

	reader := serializer.NewHttpReader(
		serializer.WithTotalTimeout(0),
		serializer.WithConnectTimeout(defaults.HTTPConnectTimeout),
	)

	c := &Client{
		node:    n,
		baseURL: base,
		http:    reader.Client,
		ua:      reader.UserAgent,
		retry:   DefaultRetry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Node returns the node the client talks to.
func (c *Client) Node() Node {
	return c.node
}

// Ping returns the agent state.
func (c *Client) Ping(ctx context.Context) (string, error) {
	var resp agent.StatusResponse
	if err := c.call(ctx, http.MethodGet, "/", nil, defaults.PingTimeout, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// Flash asks the agent to flash the node's firmware variant and returns the
// reported status, "OK" on success.
func (c *Client) Flash(ctx context.Context) (string, error) {
	var resp agent.StatusResponse
	if err := c.call(ctx, http.MethodPost, "/flash/", c.jobQuery(), defaults.FlashRequestTimeout, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// Start starts a job on the agent.
func (c *Client) Start(ctx context.Context) (*agent.StartResponse, error) {
	var resp agent.StartResponse
	if err := c.call(ctx, http.MethodPost, "/start/", c.jobQuery(), defaults.StartTimeout, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type statusOrError struct {
	Status string `json:"status" msgpack:"status"`
	Error  string `json:"error" msgpack:"error"`
}

// Status returns the status of job id. An id the agent does not know yields
// UNKNOWN_JOB.
func (c *Client) Status(ctx context.Context, id string) (string, error) {
	q := url.Values{}
	q.Set(agent.ParamUUID, id)

	var resp statusOrError
	if err := c.call(ctx, http.MethodGet, "/status/", q, defaults.StatusTimeout, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", errors.NewWithContext(errors.ErrCodeUnknownJob, resp.Error,
			map[string]any{"node": c.node.ID, "uuid": id})
	}
	return resp.Status, nil
}

// Jobs drains the data collected since the last fetch.
func (c *Client) Jobs(ctx context.Context) (agent.JobsResponse, error) {
	resp := agent.JobsResponse{}
	if err := c.call(ctx, http.MethodGet, "/jobs", nil, defaults.FetchTimeout, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Stop stops every job on the agent and returns their final data.
func (c *Client) Stop(ctx context.Context) (*agent.StopResponse, error) {
	var resp agent.StopResponse
	if err := c.call(ctx, http.MethodPost, "/stop/", nil, defaults.StopTimeout, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) jobQuery() url.Values {
	q := url.Values{}
	q.Set(agent.ParamVersion, c.node.Version)
	q.Set(agent.ParamNodeType, c.node.Role.String())
	c.node.Options.Encode(q)
	return q
}

type reply struct {
	status      int
	contentType string
	body        []byte
}

// call sends one request. Only failures to establish the connection are
// retried; once a request may have reached the agent it is never resent.
func (c *Client) call(ctx context.Context, method, path string, q url.Values,
	timeout time.Duration, out any) error {

	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var (
		res     *reply
		lastErr error
		attempt int
	)
	err := wait.ExponentialBackoffWithContext(ctx, c.retry, func(ctx context.Context) (bool, error) {
		attempt++
		r, err := c.send(ctx, method, endpoint, timeout)
		if err == nil {
			res = r
			return true, nil
		}
		lastErr = err
		if isDialError(err) {
			slog.Debug("agent connection failed, retrying",
				"node", c.node.ID, "attempt", attempt, "error", err)
			return false, nil
		}
		return false, err
	})
	if err != nil {
		if lastErr != nil {
			err = lastErr
		}
		return errors.WrapWithContext(errors.ErrCodeConnectivity,
			fmt.Sprintf("node %s could not be reached", c.node.Label()), err,
			map[string]any{"node": c.node.ID, "url": endpoint, "attempts": attempt})
	}

	if res.status != http.StatusOK {
		return c.errorFromReply(endpoint, res)
	}
	if err := serializer.Decode(res.contentType, res.body, out); err != nil {
		return errors.WrapWithContext(errors.ErrCodeInternal, "invalid agent response", err,
			map[string]any{"node": c.node.ID, "url": endpoint})
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, timeout time.Duration) (*reply, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.ua)
	if c.runID != "" {
		req.Header.Set(server.HeaderRunID, c.runID)
	}
	if c.msgpack {
		req.Header.Set("Accept", serializer.MediaTypeMsgpack)
	} else {
		req.Header.Set("Accept", serializer.MediaTypeJSON)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &reply{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
	}, nil
}

func (c *Client) errorFromReply(endpoint string, res *reply) error {
	ctx := map[string]any{"node": c.node.ID, "url": endpoint, "status": res.status}

	var er server.ErrorResponse
	if err := json.Unmarshal(res.body, &er); err != nil || er.Code == "" {
		return errors.NewWithContext(errors.ErrCodeInternal,
			fmt.Sprintf("agent answered %d", res.status), ctx)
	}
	for k, v := range er.Details {
		ctx[k] = v
	}
	return errors.NewWithContext(errors.ErrorCode(er.Code), er.Message, ctx)
}

// isDialError reports whether err happened before a connection was made.
func isDialError(err error) bool {
	var opErr *net.OpError
	return stderrors.As(err, &opErr) && opErr.Op == "dial"
}

// variantLabel names a firmware variant the way asset names do.
func variantLabel(role node.Role, opts node.Options) string {
	if opts.IsZero() {
		return role.String()
	}
	return role.String() + "-" + opts.String()
}
