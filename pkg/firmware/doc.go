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

// Package firmware locates and downloads node firmware images.
//
// A release is a named set of images. Image file names encode the node role
// and, for sweep builds, the radio options they were compiled with:
//
//	sender.bin
//	receiver-WIFI-NO_SLEEP-NONE.bin
//
// Releases come from a Catalog: GitHub releases ("github://owner/repo"), an
// OCI registry ("oci://registry/repository") or a local directory. Download
// resolves a version selector ("latest", "debug" or a concrete version) to an
// image and keeps it in a local cache. Push publishes a directory of images
// to a registry as one OCI artifact.
package firmware
