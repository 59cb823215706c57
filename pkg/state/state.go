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

// Package state holds the per-entity record of confirmed data and queued
// operations, together with the pure functions that mutate it.
//
// None of the functions here look up identities or perform I/O. Both
// controller flavors route through them so that the fold, commit and frame
// protocol behave identically regardless of how an entity is identified.
package state

import (
	"maps"
	"sync"

	"github.com/tiendc/go-deepcopy"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/entitystate/pkg/op"
	"github.com/united-manufacturing-hub/entitystate/pkg/taskqueue"
)

// Attributes maps attribute names to confirmed or estimated values. It never
// holds an op.Operation.
type Attributes map[string]any

// Frame holds at most one queued operation per attribute.
type Frame map[string]op.Operation

// Stack is the oldest-first list of frames. It always holds at least one
// frame and only the last one accepts new edits.
type Stack []Frame

// Clone copies every frame of s. Operations are immutable and shared.
func (s Stack) Clone() Stack {
	if len(s) == 0 {
		return Stack{Frame{}}
	}

	out := make(Stack, len(s))
	for i, frame := range s {
		out[i] = maps.Clone(frame)
		if out[i] == nil {
			out[i] = Frame{}
		}
	}

	return out
}

// ObjectCache maps attribute names to canonical JSON snapshots of structural
// values as last confirmed by the server.
type ObjectCache map[string]string

// EntityState is everything the client knows about one entity.
//
// Persistence tasks run on the queue goroutine while callers keep editing, so
// every access to ServerData, PendingOps, ObjectCache and Existed must hold
// Lock. Tasks is safe for concurrent use on its own.
type EntityState struct {
	mu sync.Mutex

	ServerData  Attributes
	PendingOps  Stack
	ObjectCache ObjectCache
	Existed     bool
	Tasks       *taskqueue.Queue
}

// Lock acquires the state. It is not reentrant.
func (s *EntityState) Lock() { s.mu.Lock() }

// Unlock releases the state.
func (s *EntityState) Unlock() { s.mu.Unlock() }

// NewEntityState returns an empty state with one open frame and an idle task
// queue labelled name.
func NewEntityState(name string, logger *zap.SugaredLogger) *EntityState {
	return &EntityState{
		ServerData:  Attributes{},
		PendingOps:  Stack{Frame{}},
		ObjectCache: ObjectCache{},
		Tasks:       taskqueue.New(name, logger),
	}
}

// Clone copies the data, frames and object cache of s. Operations are
// immutable and shared between the copies. The clone gets its own idle task
// queue and an unheld lock. The caller must hold s.
func (s *EntityState) Clone() (*EntityState, error) {
	out := &EntityState{
		ServerData:  Attributes{},
		ObjectCache: maps.Clone(s.ObjectCache),
		Existed:     s.Existed,
	}

	if err := deepcopy.Copy(&out.ServerData, &s.ServerData); err != nil {
		return nil, err
	}

	if out.ServerData == nil {
		out.ServerData = Attributes{}
	}

	if out.ObjectCache == nil {
		out.ObjectCache = ObjectCache{}
	}

	out.PendingOps = s.PendingOps.Clone()

	name := ""
	if s.Tasks != nil {
		name = s.Tasks.Name()
	}

	out.Tasks = taskqueue.New(name, nil)

	return out, nil
}
