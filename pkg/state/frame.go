// Copyright 2025 UMH Systems GmbH
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

package state

import (
	"fmt"

	"github.com/united-manufacturing-hub/entitystate/pkg/op"
)

// EncodeFrame converts a frame into a request body keyed by attribute.
func EncodeFrame(frame Frame) (map[string]any, error) {
	body := make(map[string]any, len(frame))

	for attr, o := range frame {
		wire, err := op.Encode(o)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", attr, err)
		}

		body[attr] = wire
	}

	return body, nil
}

// DecodeFrame reverses EncodeFrame. Values without a known operation kind are
// restored as op.Set.
func DecodeFrame(body map[string]any) (Frame, error) {
	frame := make(Frame, len(body))

	for attr, raw := range body {
		o, err := op.DecodePending(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", attr, err)
		}

		frame[attr] = o
	}

	return frame, nil
}
