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

package firmware

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/powerlab/powerlab/pkg/errors"
	"github.com/powerlab/powerlab/pkg/node"
)

// DefaultSource is the release feed used when no source is configured.
const DefaultSource = GitHubScheme + "phsete/ESPNOWLogger"

// Catalog lists published firmware and fetches images.
type Catalog interface {
	// Releases returns the published releases, newest first where the
	// source has an order.
	Releases(ctx context.Context) ([]Release, error)

	// Fetch writes the content of asset to dst.
	Fetch(ctx context.Context, asset Asset, dst string) error
}

// CatalogOption configures the catalog built by NewCatalog.
type CatalogOption func(*catalogOptions)

type catalogOptions struct {
	token       string
	apiBase     string
	plainHTTP   bool
	insecureTLS bool
}

// WithToken sets the credential sent to the release API.
func WithToken(token string) CatalogOption {
	return func(o *catalogOptions) {
		o.token = token
	}
}

// WithAPIBase overrides the GitHub API endpoint.
func WithAPIBase(base string) CatalogOption {
	return func(o *catalogOptions) {
		o.apiBase = base
	}
}

// WithPlainHTTP talks to OCI registries over HTTP.
func WithPlainHTTP(plain bool) CatalogOption {
	return func(o *catalogOptions) {
		o.plainHTTP = plain
	}
}

// WithInsecureTLS skips registry certificate verification.
func WithInsecureTLS(insecure bool) CatalogOption {
	return func(o *catalogOptions) {
		o.insecureTLS = insecure
	}
}

// NewCatalog picks the catalog implementation from the source scheme:
// "github://owner/repo", "oci://registry/repository", or a local
// directory laid out as <root>/<release>/<asset>.
func NewCatalog(source string, opts ...CatalogOption) (Catalog, error) {
	o := &catalogOptions{apiBase: GitHubAPIBase}
	for _, opt := range opts {
		opt(o)
	}

	source = strings.TrimSpace(source)
	if source == "" {
		source = DefaultSource
	}

	switch {
	case strings.HasPrefix(source, GitHubScheme):
		return NewGitHubCatalog(strings.TrimPrefix(source, GitHubScheme), o.apiBase, o.token)
	case strings.HasPrefix(source, URIScheme):
		ref, err := ParseReference(source)
		if err != nil {
			return nil, err
		}
		return NewRemoteOCICatalog(ref, o.plainHTTP, o.insecureTLS)
	default:
		return NewDirCatalog(source)
	}
}

// Download resolves the image for role and opts in the release selected by
// selector and stores it under cacheDir/<release>/<asset>. A cached copy
// whose digest still matches is reused. Returns the image path and the
// release name.
func Download(ctx context.Context, cat Catalog, cacheDir, selector string, role node.Role, opts node.Options) (string, string, error) {
	releases, err := cat.Releases(ctx)
	if err != nil {
		return "", "", err
	}

	rel, asset, err := Resolve(releases, selector, role, opts)
	if err != nil {
		return "", "", err
	}

	dir := filepath.Join(cacheDir, rel.Name)
	path := filepath.Join(dir, asset.Name)

	if _, statErr := os.Stat(path); statErr == nil {
		if verifyErr := verifyFile(path, asset.Digest); verifyErr == nil {
			slog.Debug("using cached firmware", "path", path, "release", rel.Name)
			return path, rel.Name, nil
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", errors.Wrap(errors.ErrCodeInternal, "failed to create firmware cache", err)
	}

	tmp, err := os.CreateTemp(dir, "."+asset.Name+"-*")
	if err != nil {
		return "", "", errors.Wrap(errors.ErrCodeInternal, "failed to create temp file", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	slog.Info("downloading firmware", "release", rel.Name, "asset", asset.Name)

	if err := cat.Fetch(ctx, *asset, tmpPath); err != nil {
		return "", "", errors.WrapWithContext(errors.ErrCodeUnavailable, "failed to download firmware", err,
			map[string]any{"asset": asset.Name, "release": rel.Name})
	}
	if err := verifyFile(tmpPath, asset.Digest); err != nil {
		return "", "", err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", "", errors.Wrap(errors.ErrCodeInternal, "failed to store firmware", err)
	}
	return path, rel.Name, nil
}

// verifyFile checks path against the expected digest. An empty or
// unparseable digest is not verified.
func verifyFile(path, expected string) error {
	if expected == "" {
		return nil
	}
	want, err := digest.Parse(expected)
	if err != nil {
		return nil //nolint:nilerr // sources may publish digests in foreign formats
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to open firmware", err)
	}
	defer f.Close()

	got, err := want.Algorithm().FromReader(f)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to hash firmware", err)
	}
	if got != want {
		return errors.NewWithContext(errors.ErrCodeInternal,
			fmt.Sprintf("firmware digest mismatch for %s", filepath.Base(path)),
			map[string]any{"expected": want.String(), "actual": got.String()})
	}
	return nil
}
