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

// Package serializer moves values in and out of the formats powerlab uses.
//
// Output (Writer): JSON, YAML and an aligned text table. A slice of structs
// renders as one row per element, anything else as FIELD/VALUE pairs:
//
//	w := serializer.NewStdoutWriter(serializer.FormatTable)
//	defer w.Close()
//	_ = w.Serialize(ctx, options)
//
// Input (Reader, FromFile): JSON or YAML from a local path or an http(s) URL.
//
// HTTP: RespondJSON, RespondMsgpack and Respond, which picks MessagePack when
// the request sends Accept: application/x-msgpack. Decode reverses that on the
// client side. HttpReader is a tuned client for fetching documents and
// binaries with optional extra headers.
package serializer
