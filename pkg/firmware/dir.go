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
	"io"
	"os"
	"path/filepath"

	"github.com/powerlab/powerlab/pkg/errors"
)

// DirCatalog serves releases from a local directory: every subdirectory is a
// release and every file in it an asset.
type DirCatalog struct {
	root string
}

// NewDirCatalog returns a catalog rooted at root.
func NewDirCatalog(root string) (*DirCatalog, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.WrapWithContext(errors.ErrCodeNotFound, "firmware directory not found", err,
			map[string]any{"path": root})
	}
	if !info.IsDir() {
		return nil, errors.NewWithContext(errors.ErrCodeInvalidRequest, "firmware source is not a directory",
			map[string]any{"path": root})
	}
	return &DirCatalog{root: root}, nil
}

// Releases lists release directories, highest version first.
func (c *DirCatalog) Releases(_ context.Context) ([]Release, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to read firmware directory", err)
	}

	var out []Release
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(c.root, e.Name()))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, "failed to read release directory", err)
		}
		rel := Release{Name: e.Name()}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			var size int64
			if info, infoErr := f.Info(); infoErr == nil {
				size = info.Size()
			}
			rel.Assets = append(rel.Assets, Asset{
				Name: f.Name(),
				URL:  filepath.Join(c.root, e.Name(), f.Name()),
				Size: size,
			})
		}
		out = append(out, rel)
	}

	sortNewestFirst(out)
	return out, nil
}

// Fetch copies the asset file to dst.
func (c *DirCatalog) Fetch(_ context.Context, asset Asset, dst string) error {
	src, err := os.Open(asset.URL)
	if err != nil {
		return errors.Wrap(errors.ErrCodeNotFound, "firmware image not found", err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to create firmware file", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return errors.Wrap(errors.ErrCodeInternal, "failed to copy firmware", err)
	}
	return out.Close()
}
