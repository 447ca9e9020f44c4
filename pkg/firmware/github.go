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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/powerlab/powerlab/pkg/defaults"
	"github.com/powerlab/powerlab/pkg/errors"
	"github.com/powerlab/powerlab/pkg/serializer"
)

const (
	// GitHubScheme prefixes release feeds hosted on GitHub.
	GitHubScheme = "github://"

	// GitHubAPIBase is the public GitHub REST endpoint.
	GitHubAPIBase = "https://api.github.com"

	githubAccept   = "application/vnd.github+json"
	downloadAccept = "application/octet-stream"
	releasesLimit  = 100
)

// GitHubCatalog reads releases of a GitHub repository. Assets are downloaded
// through the API URL so private repositories work with a token.
type GitHubCatalog struct {
	owner    string
	repo     string
	base     string
	api      *serializer.HttpReader
	download *serializer.HttpReader
}

type githubRelease struct {
	TagName string        `json:"tag_name"`
	Name    string        `json:"name"`
	Assets  []githubAsset `json:"assets"`
}

type githubAsset struct {
	Name               string `json:"name"`
	URL                string `json:"url"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
	Digest             string `json:"digest"`
	ContentType        string `json:"content_type"`
}

// NewGitHubCatalog returns a catalog for "owner/repo".
func NewGitHubCatalog(repository, apiBase, token string) (*GitHubCatalog, error) {
	owner, repo, ok := strings.Cut(strings.Trim(repository, "/"), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, errors.NewWithContext(errors.ErrCodeInvalidRequest,
			"github source must be owner/repo", map[string]any{"source": repository})
	}
	if apiBase == "" {
		apiBase = GitHubAPIBase
	}

	auth := ""
	if token != "" {
		auth = "token " + token
	}

	return &GitHubCatalog{
		owner: owner,
		repo:  repo,
		base:  strings.TrimRight(apiBase, "/"),
		api: serializer.NewHttpReader(
			serializer.WithHeader("Accept", githubAccept),
			serializer.WithHeader("Authorization", auth),
		),
		download: serializer.NewHttpReader(
			serializer.WithHeader("Accept", downloadAccept),
			serializer.WithHeader("Authorization", auth),
			serializer.WithTotalTimeout(defaults.FirmwareFetchTimeout),
		),
	}, nil
}

// Releases returns the repository releases in the order GitHub lists them.
// The release name is used when set, the tag otherwise.
func (c *GitHubCatalog) Releases(ctx context.Context) ([]Release, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=%d", c.base, c.owner, c.repo, releasesLimit)

	data, err := c.api.ReadWithContext(ctx, url)
	if err != nil {
		return nil, errors.WrapWithContext(errors.ErrCodeUnavailable, "failed to list firmware releases", err,
			map[string]any{"repository": c.owner + "/" + c.repo})
	}

	var raw []githubRelease
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to decode release list", err)
	}

	out := make([]Release, 0, len(raw))
	for _, r := range raw {
		name := r.Name
		if name == "" {
			name = r.TagName
		}
		rel := Release{Name: name}
		for _, a := range r.Assets {
			url := a.URL
			if url == "" {
				url = a.BrowserDownloadURL
			}
			rel.Assets = append(rel.Assets, Asset{
				Name:      a.Name,
				URL:       url,
				Digest:    a.Digest,
				Size:      a.Size,
				MediaType: a.ContentType,
			})
		}
		out = append(out, rel)
	}
	return out, nil
}

// Fetch downloads the asset to dst.
func (c *GitHubCatalog) Fetch(ctx context.Context, asset Asset, dst string) error {
	if err := c.download.DownloadWithContext(ctx, asset.URL, dst); err != nil {
		return errors.WrapWithContext(errors.ErrCodeUnavailable, "failed to download asset", err,
			map[string]any{"asset": asset.Name})
	}
	return nil
}
