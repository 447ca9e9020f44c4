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

package measurement

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Sample is one averaged power reading. Time is in milliseconds relative to
// the job's time origin, Value is the current draw in microamps.
//
// On the agent wire a Sample is a two element array: [time, value].
type Sample struct {
	Time  float64
	Value float64
}

// Event is one decoded device line: a sampled value, a ready marker or a
// log message, stamped with the same time base as Sample.
//
// On the agent wire an Event is a two element array: [time, label].
type Event struct {
	Time  float64
	Label string
}

// MarshalJSON encodes the sample as [time, value].
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{s.Time, s.Value})
}

// UnmarshalJSON decodes a [time, value] pair.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("invalid power sample %s: %w", string(data), err)
	}
	s.Time, s.Value = pair[0], pair[1]
	return nil
}

// EncodeMsgpack encodes the sample as [time, value].
func (s Sample) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.EncodeFloat64(s.Time); err != nil {
		return err
	}
	return enc.EncodeFloat64(s.Value)
}

// DecodeMsgpack decodes a [time, value] pair.
func (s *Sample) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("invalid power sample: expected 2 elements, got %d", n)
	}
	if s.Time, err = dec.DecodeFloat64(); err != nil {
		return err
	}
	s.Value, err = dec.DecodeFloat64()
	return err
}

// MarshalJSON encodes the event as [time, label].
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Time, e.Label})
}

// UnmarshalJSON decodes a [time, label] pair.
func (e *Event) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("invalid event %s: %w", string(data), err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("invalid event: expected 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.Time); err != nil {
		return fmt.Errorf("invalid event time: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.Label); err != nil {
		return fmt.Errorf("invalid event label: %w", err)
	}
	return nil
}

// EncodeMsgpack encodes the event as [time, label].
func (e Event) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.EncodeFloat64(e.Time); err != nil {
		return err
	}
	return enc.EncodeString(e.Label)
}

// DecodeMsgpack decodes a [time, label] pair.
func (e *Event) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("invalid event: expected 2 elements, got %d", n)
	}
	if e.Time, err = dec.DecodeFloat64(); err != nil {
		return err
	}
	e.Label, err = dec.DecodeString()
	return err
}

// Batch is the data drained from one job in a single fetch.
type Batch struct {
	PowerSamples []Sample `json:"power_samples" msgpack:"power_samples"`
	DataSamples  []Event  `json:"data_samples" msgpack:"data_samples"`
}

// MarshalJSON encodes empty lists as [] rather than null.
func (b Batch) MarshalJSON() ([]byte, error) {
	type plain Batch
	out := plain(b)
	if out.PowerSamples == nil {
		out.PowerSamples = []Sample{}
	}
	if out.DataSamples == nil {
		out.DataSamples = []Event{}
	}
	return json.Marshal(out)
}

// Len returns the total number of samples and events in the batch.
func (b Batch) Len() int {
	return len(b.PowerSamples) + len(b.DataSamples)
}

// IsEmpty reports whether the batch carries no data.
func (b Batch) IsEmpty() bool {
	return b.Len() == 0
}

// Append adds the contents of other to b.
func (b *Batch) Append(other Batch) {
	b.PowerSamples = append(b.PowerSamples, other.PowerSamples...)
	b.DataSamples = append(b.DataSamples, other.DataSamples...)
}

// Sort orders samples and events by time. Entries with equal time keep
// their arrival order.
func (b *Batch) Sort() {
	SortSamples(b.PowerSamples)
	SortEvents(b.DataSamples)
}

// Point is a sample in the persisted result format.
type Point struct {
	Time  float64 `json:"time" yaml:"time"`
	Value float64 `json:"value" yaml:"value"`
}

// LabelPoint is an event in the persisted result format.
type LabelPoint struct {
	Time  float64 `json:"time" yaml:"time"`
	Value string  `json:"value" yaml:"value"`
}
