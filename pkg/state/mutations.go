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
	"maps"

	"github.com/united-manufacturing-hub/entitystate/pkg/op"
	"github.com/united-manufacturing-hub/entitystate/pkg/value"
)

// SetServerData writes confirmed values into data. Dotted names address
// nested fields and create missing containers on the way. value.Undefined
// deletes the attribute. Nested containers are replaced, never modified, so
// values handed out by earlier estimates stay unchanged.
func SetServerData(data Attributes, attrs Attributes) {
	for attr, v := range attrs {
		path := splitPath(attr)

		prev, ok := data[path[0]]
		if !ok {
			prev = value.Undefined
		}

		next, _ := descend(prev, path, func(any) (any, error) { return v, nil }, true)

		if value.IsUndefined(next) {
			delete(data, path[0])
		} else {
			data[path[0]] = next
		}
	}
}

// SetPendingOp records o for attr in the open frame. A nil o clears it.
func SetPendingOp(stack *Stack, attr string, o op.Operation) {
	ensureFrame(stack)

	last := (*stack)[len(*stack)-1]
	if o == nil {
		delete(last, attr)
		return
	}

	last[attr] = o
}

// PushFrame opens a new frame. Call it when a persistence attempt starts so
// that later edits stay out of the batch being sent.
func PushFrame(stack *Stack) {
	*stack = append(*stack, Frame{})
}

// PopFrame removes and returns the oldest frame. An empty frame is re-seeded
// when the stack would otherwise be empty.
func PopFrame(stack *Stack) Frame {
	ensureFrame(stack)

	first := (*stack)[0]
	(*stack)[0] = nil
	*stack = (*stack)[1:]

	ensureFrame(stack)

	return first
}

// MergeOldestFrameForward folds the oldest frame into the next one and drops
// it. With a single frame the ops end up in a fresh open frame. On a merge
// conflict the stack is left untouched.
func MergeOldestFrameForward(stack *Stack) error {
	ensureFrame(stack)

	first := (*stack)[0]

	var next Frame
	if len(*stack) > 1 {
		next = maps.Clone((*stack)[1])
	} else {
		next = Frame{}
	}

	for attr, earlier := range first {
		merged, err := op.Merge(next[attr], earlier)
		if err != nil {
			return err
		}

		next[attr] = merged
	}

	if len(*stack) > 1 {
		(*stack)[1] = next
		PopFrame(stack)
	} else {
		*stack = Stack{next}
	}

	return nil
}

func ensureFrame(stack *Stack) {
	if len(*stack) == 0 {
		*stack = Stack{Frame{}}
	}
}

// CommitServerChanges writes confirmed changes into data and snapshots every
// structural value into cache.
func CommitServerChanges(data Attributes, cache ObjectCache, changes Attributes) error {
	for attr, v := range changes {
		SetServerData(data, Attributes{attr: v})

		if !value.IsStructural(v) {
			continue
		}

		snapshot, err := Snapshot(v)
		if err != nil {
			return err
		}

		cache[attr] = snapshot
	}

	return nil
}
