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
	"fmt"
	"sort"
	"strings"

	"github.com/powerlab/powerlab/pkg/errors"
	"github.com/powerlab/powerlab/pkg/node"
	"github.com/powerlab/powerlab/pkg/version"
)

const (
	assetExt       = ".bin"
	sdkconfigToken = "-sdkconfig"
)

// Release is one published firmware version.
type Release struct {
	Name   string  `json:"name" yaml:"name"`
	Assets []Asset `json:"assets" yaml:"assets"`
}

// Asset is one downloadable file of a release.
type Asset struct {
	Name      string `json:"name" yaml:"name"`
	URL       string `json:"url,omitempty" yaml:"url,omitempty"`
	Digest    string `json:"digest,omitempty" yaml:"digest,omitempty"`
	Size      int64  `json:"size,omitempty" yaml:"size,omitempty"`
	MediaType string `json:"mediaType,omitempty" yaml:"mediaType,omitempty"`
}

// Asset returns the asset called name, or nil.
func (r *Release) Asset(name string) *Asset {
	for i := range r.Assets {
		if r.Assets[i].Name == name {
			return &r.Assets[i]
		}
	}
	return nil
}

// AssetName returns the file name of the image for role built with opts:
// "sender.bin" or "sender-WIFI-DEEP_SLEEP-MIN_MODEM.bin".
func AssetName(role node.Role, opts node.Options) string {
	if opts.IsZero() {
		return role.String() + assetExt
	}
	return role.String() + "-" + opts.String() + assetExt
}

// ParseAssetName reverses AssetName. Build configuration dumps (names
// containing "-sdkconfig") and anything else not following the pattern
// report ok false.
func ParseAssetName(name string) (role node.Role, opts node.Options, ok bool) {
	if !strings.HasSuffix(name, assetExt) || strings.Contains(name, sdkconfigToken) {
		return "", node.Options{}, false
	}

	parts := strings.Split(strings.TrimSuffix(name, assetExt), "-")
	role = node.Role(parts[0])
	if !role.IsValid() {
		return "", node.Options{}, false
	}

	switch len(parts) {
	case 1:
		return role, node.Options{}, true
	case 4:
		return role, node.Options{Protocol: parts[1], SleepMode: parts[2], PowerSaveMode: parts[3]}, true
	default:
		return "", node.Options{}, false
	}
}

// Variants lists the option combinations release offers for role, in the
// order the assets are listed. Plain "<role>.bin" images carry no options
// and are not included.
func Variants(release *Release, role node.Role) []node.Options {
	if release == nil {
		return nil
	}
	var out []node.Options
	seen := make(map[node.Options]bool)
	for _, a := range release.Assets {
		r, opts, ok := ParseAssetName(a.Name)
		if !ok || r != role || opts.IsZero() || seen[opts] {
			continue
		}
		seen[opts] = true
		out = append(out, opts)
	}
	return out
}

// HasRole reports whether release contains any image for role.
func HasRole(release *Release, role node.Role) bool {
	for _, a := range release.Assets {
		if r, _, ok := ParseAssetName(a.Name); ok && r == role {
			return true
		}
	}
	return false
}

// FindRelease picks a release by selector. "latest" is the highest release
// name that parses as a version, or the first listed when none do. "debug"
// is the release named debug. Anything else matches a release name, with
// numeric normalization ("v2.1" finds "2.1.0").
func FindRelease(releases []Release, selector string) (*Release, error) {
	if len(releases) == 0 {
		return nil, errors.New(errors.ErrCodeNotFound, "no firmware releases available")
	}

	sel := strings.TrimSpace(selector)
	switch strings.ToLower(sel) {
	case version.Latest:
		names := make([]string, 0, len(releases))
		for _, r := range releases {
			names = append(names, r.Name)
		}
		if newest, ok := version.Newest(names); ok {
			return findByName(releases, newest), nil
		}
		return &releases[0], nil
	case version.Debug:
		if r := findByName(releases, version.Debug); r != nil {
			return r, nil
		}
		return nil, errors.New(errors.ErrCodeNotFound, "no debug firmware release")
	}

	if r := findByName(releases, sel); r != nil {
		return r, nil
	}
	for i := range releases {
		if version.Match(sel, releases[i].Name) {
			return &releases[i], nil
		}
	}
	return nil, errors.NewWithContext(errors.ErrCodeNotFound,
		fmt.Sprintf("firmware release %s not found", sel), map[string]any{"version": sel})
}

func findByName(releases []Release, name string) *Release {
	for i := range releases {
		if releases[i].Name == name {
			return &releases[i]
		}
	}
	return nil
}

// Resolve finds the image for role and opts in the release selected by
// selector, considering only releases that contain such an image.
func Resolve(releases []Release, selector string, role node.Role, opts node.Options) (*Release, *Asset, error) {
	name := AssetName(role, opts)

	var suitable []Release
	for _, r := range releases {
		if r.Asset(name) != nil {
			suitable = append(suitable, r)
		}
	}
	if len(suitable) == 0 {
		return nil, nil, errors.NewWithContext(errors.ErrCodeNotFound,
			fmt.Sprintf("no release contains %s", name), map[string]any{"asset": name})
	}

	rel, err := FindRelease(suitable, selector)
	if err != nil {
		return nil, nil, errors.WrapWithContext(errors.ErrCodeNotFound,
			fmt.Sprintf("no %s release contains %s", selector, name), err,
			map[string]any{"asset": name, "version": selector})
	}
	return rel, rel.Asset(name), nil
}

// sortNewestFirst orders releases by descending version. Names that do not
// parse keep their relative order after the versioned ones.
func sortNewestFirst(releases []Release) {
	sort.SliceStable(releases, func(i, j int) bool {
		vi, ierr := version.ParseVersion(releases[i].Name)
		vj, jerr := version.ParseVersion(releases[j].Name)
		switch {
		case ierr == nil && jerr == nil:
			return vi.Compare(vj) > 0
		default:
			return ierr == nil && jerr != nil
		}
	})
}
