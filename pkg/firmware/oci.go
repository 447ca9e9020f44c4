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
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/distribution/reference"
	"github.com/opencontainers/go-digest"
	ociv1 "github.com/opencontainers/image-spec/specs-go/v1"
	oras "oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/content/file"
	"oras.land/oras-go/v2/registry"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"

	"github.com/powerlab/powerlab/pkg/errors"
)

const (
	// URIScheme prefixes firmware sources kept in an OCI registry.
	URIScheme = "oci://"

	// ArtifactType marks manifests holding a firmware release.
	ArtifactType = "application/vnd.powerlab.firmware.v1"

	// MediaTypeImage is the layer media type of a single firmware image.
	MediaTypeImage = "application/vnd.powerlab.firmware.v1+bin"
)

// Reference is a parsed oci:// firmware location.
type Reference struct {
	Registry   string
	Repository string
	// Tag is empty when the reference names the whole repository.
	Tag string
}

// ParseReference parses "oci://registry/repository[:tag]".
func ParseReference(s string) (*Reference, error) {
	if !strings.HasPrefix(s, URIScheme) {
		return nil, errors.NewWithContext(errors.ErrCodeInvalidRequest,
			"OCI reference must start with "+URIScheme, map[string]any{"reference": s})
	}

	ref, err := reference.ParseNormalizedNamed(strings.TrimPrefix(s, URIScheme))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequest, "invalid OCI reference", err)
	}

	out := &Reference{
		Registry:   reference.Domain(ref),
		Repository: reference.Path(ref),
	}
	if tagged, ok := ref.(reference.Tagged); ok {
		out.Tag = tagged.Tag()
	}
	return out, nil
}

// String returns the reference with its scheme.
func (r *Reference) String() string {
	return URIScheme + r.ImageReference()
}

// ImageReference returns the reference without scheme.
func (r *Reference) ImageReference() string {
	if r.Tag == "" {
		return fmt.Sprintf("%s/%s", r.Registry, r.Repository)
	}
	return fmt.Sprintf("%s/%s:%s", r.Registry, r.Repository, r.Tag)
}

// WithTag returns a copy of the reference pointing at tag.
func (r *Reference) WithTag(tag string) *Reference {
	return &Reference{Registry: r.Registry, Repository: r.Repository, Tag: tag}
}

// TagLister returns the tags of an OCI target.
type TagLister func(ctx context.Context) ([]string, error)

// OCICatalog reads releases from an OCI target. Every tag is a release and
// every titled layer of its manifest an asset.
type OCICatalog struct {
	target oras.ReadOnlyTarget
	tags   TagLister
}

// NewOCICatalog returns a catalog over target.
func NewOCICatalog(target oras.ReadOnlyTarget, tags TagLister) *OCICatalog {
	return &OCICatalog{target: target, tags: tags}
}

// NewRemoteOCICatalog returns a catalog over a registry repository. A tagged
// reference limits the catalog to that release.
func NewRemoteOCICatalog(ref *Reference, plainHTTP, insecureTLS bool) (*OCICatalog, error) {
	repo, err := remote.NewRepository(fmt.Sprintf("%s/%s", ref.Registry, ref.Repository))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequest, "failed to initialize remote repository", err)
	}
	repo.PlainHTTP = plainHTTP
	repo.Client = createAuthClient(plainHTTP, insecureTLS)

	tags := func(ctx context.Context) ([]string, error) {
		if ref.Tag != "" {
			return []string{ref.Tag}, nil
		}
		return registry.Tags(ctx, repo)
	}
	return NewOCICatalog(repo, tags), nil
}

// Releases fetches the manifest of every tag. Manifests of other artifact
// types are skipped.
func (c *OCICatalog) Releases(ctx context.Context) ([]Release, error) {
	tags, err := c.tags(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUnavailable, "failed to list firmware tags", err)
	}

	var out []Release
	for _, tag := range tags {
		_, data, err := oras.FetchBytes(ctx, c.target, tag, oras.DefaultFetchBytesOptions)
		if err != nil {
			return nil, errors.WrapWithContext(errors.ErrCodeUnavailable, "failed to fetch firmware manifest", err,
				map[string]any{"tag": tag})
		}

		var manifest ociv1.Manifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			return nil, errors.WrapWithContext(errors.ErrCodeInternal, "failed to decode firmware manifest", err,
				map[string]any{"tag": tag})
		}
		if manifest.ArtifactType != ArtifactType {
			slog.Debug("skipping non-firmware manifest", "tag", tag, "artifactType", manifest.ArtifactType)
			continue
		}

		rel := Release{Name: tag}
		for _, layer := range manifest.Layers {
			name := layer.Annotations[ociv1.AnnotationTitle]
			if name == "" {
				continue
			}
			rel.Assets = append(rel.Assets, Asset{
				Name:      name,
				Digest:    layer.Digest.String(),
				Size:      layer.Size,
				MediaType: layer.MediaType,
			})
		}
		out = append(out, rel)
	}

	sortNewestFirst(out)
	return out, nil
}

// Fetch reads the layer blob of asset into dst. The content is verified
// against the layer digest.
func (c *OCICatalog) Fetch(ctx context.Context, asset Asset, dst string) error {
	desc := ociv1.Descriptor{
		MediaType: asset.MediaType,
		Digest:    digest.Digest(asset.Digest),
		Size:      asset.Size,
	}
	data, err := content.FetchAll(ctx, c.target, desc)
	if err != nil {
		return errors.WrapWithContext(errors.ErrCodeUnavailable, "failed to fetch firmware blob", err,
			map[string]any{"asset": asset.Name})
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to write firmware", err)
	}
	return nil
}

// PushOptions configures Push.
type PushOptions struct {
	// PlainHTTP uses HTTP instead of HTTPS for the registry connection.
	PlainHTTP bool
	// InsecureTLS skips TLS certificate verification.
	InsecureTLS bool
	// Annotations are added to the manifest.
	Annotations map[string]string
}

// PushResult describes a pushed release.
type PushResult struct {
	Digest    string   `json:"digest" yaml:"digest"`
	Reference string   `json:"reference" yaml:"reference"`
	Assets    []string `json:"assets" yaml:"assets"`
}

// Push publishes the firmware images in dir as the release ref.Tag.
func Push(ctx context.Context, dir string, ref *Reference, opts PushOptions) (*PushResult, error) {
	if ref == nil || ref.Tag == "" {
		return nil, errors.New(errors.ErrCodeInvalidRequest, "tag is required to push a firmware release")
	}

	fs, assets, err := pack(ctx, dir, ref.Tag, opts.Annotations)
	if err != nil {
		return nil, err
	}
	defer func() { _ = fs.Close() }()

	repo, err := remote.NewRepository(fmt.Sprintf("%s/%s", ref.Registry, ref.Repository))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequest, "failed to initialize remote repository", err)
	}
	repo.PlainHTTP = opts.PlainHTTP
	repo.Client = createAuthClient(opts.PlainHTTP, opts.InsecureTLS)

	slog.Info("pushing firmware release", "reference", ref.ImageReference(), "assets", len(assets))

	desc, err := oras.Copy(ctx, fs, ref.Tag, repo, ref.Tag, oras.DefaultCopyOptions)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUnavailable, "failed to push firmware release", err)
	}

	return &PushResult{
		Digest:    desc.Digest.String(),
		Reference: ref.ImageReference(),
		Assets:    assets,
	}, nil
}

// pack stages every firmware image in dir into a file store and tags the
// resulting manifest. The caller closes the store.
func pack(ctx context.Context, dir, tag string, annotations map[string]string) (*file.Store, []string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeInternal, "failed to resolve firmware directory", err)
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil, nil, errors.WrapWithContext(errors.ErrCodeNotFound, "failed to read firmware directory", err,
			map[string]any{"path": dir})
	}

	fs, err := file.New(absDir)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeInternal, "failed to create file store", err)
	}

	var (
		layers []ociv1.Descriptor
		names  []string
	)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if _, _, ok := ParseAssetName(e.Name()); !ok {
			continue
		}
		desc, addErr := fs.Add(ctx, e.Name(), MediaTypeImage, filepath.Join(absDir, e.Name()))
		if addErr != nil {
			_ = fs.Close()
			return nil, nil, errors.WrapWithContext(errors.ErrCodeInternal, "failed to add firmware image", addErr,
				map[string]any{"file": e.Name()})
		}
		layers = append(layers, desc)
		names = append(names, e.Name())
	}
	if len(layers) == 0 {
		_ = fs.Close()
		return nil, nil, errors.NewWithContext(errors.ErrCodeInvalidRequest, "no firmware images found",
			map[string]any{"path": dir})
	}

	manifestDesc, err := oras.PackManifest(ctx, fs, oras.PackManifestVersion1_1, ArtifactType, oras.PackManifestOptions{
		Layers:              layers,
		ManifestAnnotations: annotations,
	})
	if err != nil {
		_ = fs.Close()
		return nil, nil, errors.Wrap(errors.ErrCodeInternal, "failed to pack manifest", err)
	}

	if err := fs.Tag(ctx, manifestDesc, tag); err != nil {
		_ = fs.Close()
		return nil, nil, errors.Wrap(errors.ErrCodeInternal, "failed to tag manifest", err)
	}
	return fs, names, nil
}

// createAuthClient returns a registry client using Docker credentials when
// available.
func createAuthClient(plainHTTP, insecureTLS bool) *auth.Client {
	credStore, _ := credentials.NewStoreFromDocker(credentials.StoreOptions{})

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !plainHTTP && insecureTLS {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		} else {
			transport.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec
		}
	}

	client := &auth.Client{
		Client: &http.Client{Transport: transport},
		Cache:  auth.NewCache(),
	}
	if credStore != nil {
		client.Credential = credentials.Credential(credStore)
	}
	return client
}
