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

package version

import "strings"

const (
	// Latest selects the newest published firmware release.
	Latest = "latest"

	// Debug selects a development build.
	Debug = "debug"

	// NotSet is what a device reports when its firmware carries no version.
	NotSet = "not set"
)

// IsSelector reports whether s is a selector rather than a concrete version.
// Selectors bypass the device version check.
func IsSelector(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case Latest, Debug:
		return true
	}
	return false
}

// Match reports whether a device reporting the version reported satisfies
// the requested version. Versions that parse are compared numerically
// ("v2.1" matches "2.1.0"); anything else must match exactly.
func Match(requested, reported string) bool {
	if IsSelector(requested) {
		return true
	}
	reported = strings.TrimSpace(reported)
	if reported == "" || reported == NotSet {
		return false
	}

	rv, rerr := ParseVersion(strings.TrimSpace(requested))
	dv, derr := ParseVersion(reported)
	if rerr == nil && derr == nil {
		return rv.Equals(dv) && rv.Extras == dv.Extras
	}
	return strings.TrimPrefix(strings.TrimSpace(requested), "v") == strings.TrimPrefix(reported, "v")
}

// Newest returns the highest parseable version in names. The second return
// value is false when none of the names parse.
func Newest(names []string) (string, bool) {
	var (
		best    Version
		bestRaw string
		found   bool
	)
	for _, n := range names {
		v, err := ParseVersion(n)
		if err != nil {
			continue
		}
		if !found || v.Compare(best) > 0 {
			best, bestRaw, found = v, n, true
		}
	}
	return bestRaw, found
}
