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

import (
	"strings"
	"testing"
)

// firmware version forms seen in release tags, asset names and device replies
var firmwareForms = []string{
	"v2.1", "2.1", "2.1.0", "v2.1.0", "1.0.0-rc1", "v3.0.0+esp32c6", "v1", "0",
	Latest, Debug, NotSet, "LATEST", " latest ", "",
	"v", "vv1", "2..1", "2.1.", "-1", "1.-2", "1.2.3.4", "2.1.0-", "v2.1 ", "receiver",
}

func FuzzParseVersion(f *testing.F) {
	for _, s := range firmwareForms {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, input string) {
		v, err := ParseVersion(input)
		if err != nil {
			return
		}
		if !v.IsValid() {
			t.Fatalf("ParseVersion(%q) returned invalid version %+v", input, v)
		}

		// the printed form keeps the precision and the numbers
		again, err := ParseVersion(v.String())
		if err != nil {
			t.Fatalf("re-parsing %q (from %q): %v", v.String(), input, err)
		}
		if !again.Equals(v) || again.Precision != v.Precision {
			t.Errorf("round trip of %q: %+v != %+v", input, again, v)
		}

		if v.Compare(v) != 0 {
			t.Errorf("%q does not compare equal to itself", input)
		}
		other := MustParseVersion("2.1.0")
		if v.Compare(other) != -other.Compare(v) {
			t.Errorf("Compare(%q, 2.1.0) is not antisymmetric", input)
		}
	})
}

func FuzzMatch(f *testing.F) {
	for _, requested := range firmwareForms {
		for _, reported := range []string{"2.1.0", NotSet, "", "1.0.0-rc1"} {
			f.Add(requested, reported)
		}
	}

	f.Fuzz(func(t *testing.T, requested, reported string) {
		got := Match(requested, reported)

		if IsSelector(requested) && !got {
			t.Errorf("selector %q rejected device version %q", requested, reported)
		}
		trimmed := strings.TrimSpace(reported)
		if !IsSelector(requested) && (trimmed == "" || trimmed == NotSet) && got {
			t.Errorf("%q matched a device without a version (%q)", requested, reported)
		}
		if trimmed != "" && trimmed != NotSet && !Match(reported, reported) {
			t.Errorf("%q does not match itself", reported)
		}

		// a "v" prefix on the request never changes a numeric match
		if _, err := ParseVersion(reported); err == nil && !strings.HasPrefix(reported, "v") {
			if !Match("v"+reported, reported) {
				t.Errorf("v%s does not match %s", reported, reported)
			}
		}
	})
}

func FuzzNewest(f *testing.F) {
	f.Add("v2.1", "2.1.0-rc1")
	f.Add("1.0.0", "not set")
	f.Add("latest", "debug")
	f.Add("2.1", "v2.1.0")

	f.Fuzz(func(t *testing.T, a, b string) {
		best, ok := Newest([]string{a, b})
		_, aerr := ParseVersion(a)
		_, berr := ParseVersion(b)

		if ok != (aerr == nil || berr == nil) {
			t.Fatalf("Newest(%q, %q) found=%v", a, b, ok)
		}
		if !ok {
			return
		}
		if best != a && best != b {
			t.Fatalf("Newest(%q, %q) = %q, not one of the inputs", a, b, best)
		}
		bv := MustParseVersion(best)
		for _, n := range []string{a, b} {
			if v, err := ParseVersion(n); err == nil && v.Compare(bv) > 0 {
				t.Errorf("Newest(%q, %q) = %q but %q is newer", a, b, best, n)
			}
		}
	})
}
