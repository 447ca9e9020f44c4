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
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/powerlab/powerlab/pkg/agent"
	"github.com/powerlab/powerlab/pkg/defaults"
	"github.com/powerlab/powerlab/pkg/errors"
	"github.com/powerlab/powerlab/pkg/firmware"
	"github.com/powerlab/powerlab/pkg/node"
)

// Config holds the parameters of one controller run.
type Config struct {
	// Duration is the measurement length per test.
	Duration time.Duration
	// Interval is the pause between two data fetches.
	Interval time.Duration
	// OutputDir receives the result artifacts.
	OutputDir string
	// Port is the agent port for node addresses without one.
	Port int
}

// Iterations returns the number of fetches per test.
func (c Config) Iterations() int {
	if c.Interval <= 0 {
		return 0
	}
	return int(c.Duration / c.Interval)
}

func (c *Config) complete() error {
	if c.Interval <= 0 {
		return errors.NewWithContext(errors.ErrCodeInvalidRequest, "interval must be positive",
			map[string]any{"interval": c.Interval.String()})
	}
	if c.Duration < 0 {
		return errors.NewWithContext(errors.ErrCodeInvalidRequest, "duration must not be negative",
			map[string]any{"duration": c.Duration.String()})
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.Port == 0 {
		c.Port = defaults.AgentPort
	}
	return nil
}

// Artifact describes one persisted result.
type Artifact struct {
	Node    string `json:"node" yaml:"node"`
	Job     string `json:"job" yaml:"job"`
	Variant string `json:"variant" yaml:"variant"`
	Samples int    `json:"samples" yaml:"samples"`
	Events  int    `json:"events" yaml:"events"`
	Path    string `json:"path" yaml:"path"`
}

// Option is a functional option for configuring Controller instances.
type Option func(*Controller)

// WithClock sets the clock the poll loop waits on.
func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) {
		if c != nil {
			ctl.clock = c
		}
	}
}

// WithCatalog sets the firmware catalog used to enumerate sweep variants.
func WithCatalog(cat firmware.Catalog) Option {
	return func(ctl *Controller) {
		ctl.catalog = cat
	}
}

// WithRunID overrides the generated run id used in artifact names.
func WithRunID(id string) Option {
	return func(ctl *Controller) {
		if id != "" {
			ctl.runID = id
		}
	}
}

// WithClientOptions passes options to every agent client.
func WithClientOptions(opts ...ClientOption) Option {
	return func(ctl *Controller) {
		ctl.clientOpts = append(ctl.clientOpts, opts...)
	}
}

// Controller drives tests across the nodes of a fleet and persists their
// results.
type Controller struct {
	nodes      []Node
	cfg        Config
	clock      clock.Clock
	catalog    firmware.Catalog
	runID      string
	clientOpts []ClientOption

	mu      sync.Mutex
	started map[string]time.Time
	results map[string]*entry
	order   []string
}

type entry struct {
	node   Node
	result *Result
	path   string
}

// NewController returns a controller for the nodes of list.
func NewController(list *NodeList, cfg Config, opts ...Option) (*Controller, error) {
	if list == nil {
		return nil, errors.New(errors.ErrCodeMalformedConfig, "node list is required")
	}
	if err := list.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.complete(); err != nil {
		return nil, err
	}

	c := &Controller{
		nodes:   list.Nodes,
		cfg:     cfg,
		clock:   clock.RealClock{},
		runID:   uuid.NewString(),
		started: make(map[string]time.Time),
		results: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RunID returns the id that tags the artifacts of this controller.
func (c *Controller) RunID() string {
	return c.runID
}

// Run pings every node, flashes and starts them in configured order, polls
// for the configured duration and stops them. Any failure aborts the run;
// artifacts written so far are kept.
func (c *Controller) Run(ctx context.Context) ([]Artifact, error) {
	clients, err := c.clients(c.nodes)
	if err != nil {
		return nil, err
	}
	if err := c.pingAll(ctx, clients); err != nil {
		return c.Artifacts(), err
	}
	for _, cl := range clients {
		if err := c.flash(ctx, cl); err != nil {
			return c.Artifacts(), err
		}
	}
	if err := c.measure(ctx, clients); err != nil {
		return c.Artifacts(), err
	}
	return c.Artifacts(), nil
}

// Sweep measures every firmware variant available for each sender. The
// receiver is flashed once; each variant is flashed, started together with
// the receiver, polled and stopped. Senders whose version has no release
// are skipped.
func (c *Controller) Sweep(ctx context.Context) ([]Artifact, error) {
	if c.catalog == nil {
		return nil, errors.New(errors.ErrCodeInvalidRequest, "sweep requires a firmware catalog")
	}

	clients, err := c.clients(c.nodes)
	if err != nil {
		return nil, err
	}
	if err := c.pingAll(ctx, clients); err != nil {
		return c.Artifacts(), err
	}

	var receiver *Client
	for _, cl := range clients {
		if cl.Node().Role == node.RoleReceiver {
			receiver = cl
			break
		}
	}
	if receiver == nil {
		return nil, errors.New(errors.ErrCodeMalformedConfig, "sweep requires a receiver node")
	}
	if err := c.flash(ctx, receiver); err != nil {
		return c.Artifacts(), err
	}

	releases, err := c.catalog.Releases(ctx)
	if err != nil {
		return c.Artifacts(), errors.Wrap(errors.ErrCodeUnavailable, "failed to list firmware releases", err)
	}

	for _, n := range c.nodes {
		if n.Role == node.RoleReceiver {
			continue
		}

		var candidates []firmware.Release
		for i := range releases {
			if firmware.HasRole(&releases[i], n.Role) {
				candidates = append(candidates, releases[i])
			}
		}
		rel, err := firmware.FindRelease(candidates, n.Version)
		if err != nil {
			slog.Warn("firmware version not available, skipping node",
				"node", n.Label(), "version", n.Version, "error", err)
			continue
		}

		variants := firmware.Variants(rel, n.Role)
		if len(variants) == 0 {
			slog.Warn("release has no option variants, skipping node",
				"node", n.Label(), "release", rel.Name)
			continue
		}

		for i, opts := range variants {
			v := n.WithOptions(opts)
			v.Version = rel.Name

			cl, err := c.newClient(v)
			if err != nil {
				return c.Artifacts(), err
			}

			slog.Info("measuring variant", "node", v.Label(), "release", rel.Name,
				"variant", variantLabel(v.Role, opts), "combination", i+1, "of", len(variants))

			if err := c.flash(ctx, cl); err != nil {
				return c.Artifacts(), err
			}
			if err := c.measure(ctx, []*Client{receiver, cl}); err != nil {
				return c.Artifacts(), err
			}
		}
	}
	return c.Artifacts(), nil
}

// Reset stops every node without collecting data. Failures are logged and
// the remaining nodes are still stopped.
func (c *Controller) Reset(ctx context.Context) error {
	var errs []error
	for _, n := range c.nodes {
		cl, err := c.newClient(n)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := cl.Stop(ctx); err != nil {
			slog.Error("failed to stop node", "node", n.Label(), "error", err)
			errs = append(errs, err)
			continue
		}
		slog.Info("node stopped", "node", n.Label())
	}
	return stderrors.Join(errs...)
}

// Artifacts lists the results persisted so far in the order they were
// first seen.
func (c *Controller) Artifacts() []Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Artifact, 0, len(c.order))
	for _, key := range c.order {
		e := c.results[key]
		out = append(out, Artifact{
			Node:    e.node.ID,
			Job:     e.result.UUID,
			Variant: variantLabel(e.node.Role, e.node.Options),
			Samples: len(e.result.Averages),
			Events:  len(e.result.DataSamples),
			Path:    e.path,
		})
	}
	return out
}

// newClient builds the agent client for n, tagged with the run id.
func (c *Controller) newClient(n Node) (*Client, error) {
	opts := append([]ClientOption{WithRunHeader(c.runID)}, c.clientOpts...)
	return NewClient(n, c.cfg.Port, opts...)
}

func (c *Controller) clients(nodes []Node) ([]*Client, error) {
	out := make([]*Client, 0, len(nodes))
	for _, n := range nodes {
		cl, err := c.newClient(n)
		if err != nil {
			return nil, err
		}
		out = append(out, cl)
	}
	return out, nil
}

func (c *Controller) pingAll(ctx context.Context, clients []*Client) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, cl := range clients {
		g.Go(func() error {
			state, err := cl.Ping(gctx)
			if err != nil {
				return err
			}
			slog.Info("node responded", "node", cl.Node().Label(), "state", state)
			return nil
		})
	}
	return g.Wait()
}

func (c *Controller) flash(ctx context.Context, cl *Client) error {
	n := cl.Node()
	slog.Info("flashing node", "node", n.Label(), "version", n.Version,
		"variant", variantLabel(n.Role, n.Options))

	status, err := cl.Flash(ctx)
	if err != nil {
		return err
	}
	if status != agent.StateOK {
		return errors.NewWithContext(errors.ErrCodeFlashFailure,
			fmt.Sprintf("node %s could not flash", n.Label()),
			map[string]any{"node": n.ID, "status": status})
	}
	slog.Info("node flashed", "node", n.Label())
	return nil
}

// measure starts a job on every client in order, polls them and stops them.
func (c *Controller) measure(ctx context.Context, clients []*Client) error {
	for _, cl := range clients {
		if err := c.start(ctx, cl); err != nil {
			return err
		}
	}
	if err := c.poll(ctx, clients); err != nil {
		return err
	}
	return c.stopAll(ctx, clients)
}

func (c *Controller) start(ctx context.Context, cl *Client) error {
	n := cl.Node()
	resp, err := cl.Start(ctx)
	if err != nil {
		return err
	}
	if !startAccepted(resp.Status) {
		return startError(n, resp.Status)
	}

	c.mu.Lock()
	c.started[n.ID] = c.clock.Now()
	c.mu.Unlock()

	if err := c.wait(ctx, defaults.StatusCheckDelay); err != nil {
		return err
	}

	status, err := cl.Status(ctx, resp.UUID)
	if err != nil {
		return err
	}
	if !startAccepted(status) {
		return startError(n, status)
	}
	slog.Info("test started", "node", n.Label(), "job", resp.UUID, "status", status)
	return nil
}

func (c *Controller) poll(ctx context.Context, clients []*Client) error {
	loops := c.cfg.Iterations()
	for i := 0; i < loops; i++ {
		if err := c.wait(ctx, c.cfg.Interval); err != nil {
			return err
		}
		slog.Info("collecting data", "iteration", i+1, "of", loops)

		g, gctx := errgroup.WithContext(ctx)
		for _, cl := range clients {
			g.Go(func() error {
				jobs, err := cl.Jobs(gctx)
				if err != nil {
					return err
				}
				return c.merge(cl.Node(), jobs)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) stopAll(ctx context.Context, clients []*Client) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, cl := range clients {
		g.Go(func() error {
			resp, err := cl.Stop(gctx)
			if err != nil {
				return err
			}
			slog.Info("node stopped", "node", cl.Node().Label(), "jobs", len(resp.Jobs))
			return c.merge(cl.Node(), resp.Jobs)
		})
	}
	return g.Wait()
}

// merge adds drained data to the results of n and rewrites every touched
// artifact.
func (c *Controller) merge(n Node, jobs agent.JobsResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, batch := range jobs {
		if _, err := uuid.Parse(id); err != nil {
			return errors.WrapWithContext(errors.ErrCodeInternal,
				fmt.Sprintf("node %s returned an invalid job id", n.Label()), err,
				map[string]any{"node": n.ID, "job": id})
		}
		key := n.ID + "/" + id
		e, ok := c.results[key]
		if !ok {
			started, ok := c.started[n.ID]
			if !ok {
				started = c.clock.Now()
			}
			e = &entry{node: n, result: NewResult(id, n, started)}
			c.results[key] = e
			c.order = append(c.order, key)
		}
		e.result.Add(batch)
		slog.Debug("merged job data", "node", n.Label(), "job", id,
			"samples", len(batch.PowerSamples), "events", len(batch.DataSamples))

		path, err := e.result.Save(c.cfg.OutputDir, n.ID, c.runID)
		if err != nil {
			return err
		}
		e.path = path
	}
	return nil
}

func (c *Controller) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(d):
		return nil
	}
}

func startAccepted(status string) bool {
	switch status {
	case agent.StateOK, agent.StatusStarted, agent.StatusCreated:
		return true
	}
	return false
}

// startError reports a job that did not start. Statuses carrying an error
// code, such as "[VERSION_MISMATCH] ...", keep that code.
func startError(n Node, status string) error {
	code := errors.ErrCodeUnavailable
	if strings.HasPrefix(status, "[") {
		if end := strings.Index(status, "]"); end > 1 {
			code = errors.ErrorCode(status[1:end])
		}
	}
	return errors.NewWithContext(code, fmt.Sprintf("node %s could not start test", n.Label()),
		map[string]any{"node": n.ID, "status": status})
}
