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

// Package controller locates the EntityState of an identity.
//
// Two flavors share one contract. Keyed routes every handle with the same
// (type, id) pair to one shared state. Handles keeps a private state per
// in-memory handle and forgets it once the handle is garbage collected.
//
// Accessors initialize state lazily, so reading pending ops or server data of
// an unknown identity creates an empty record for it.
package controller

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/united-manufacturing-hub/entitystate/pkg/op"
	"github.com/united-manufacturing-hub/entitystate/pkg/state"
	"github.com/united-manufacturing-hub/entitystate/pkg/taskqueue"
	"github.com/united-manufacturing-hub/entitystate/pkg/value"
)

var (
	// ErrNoState is returned when an operation needs an existing state.
	ErrNoState = errors.New("no state for identity")

	// ErrKeyTaken is returned by Rekey when the target key already has state.
	ErrKeyTaken = errors.New("target key already has state")
)

// Controller is implemented by *Keyed (I = Key) and *Handles[T] (I = *T).
type Controller[I comparable] interface {
	GetState(id I) (*state.EntityState, bool)
	InitializeState(id I, initial *state.EntityState) *state.EntityState
	RemoveState(id I) (*state.EntityState, bool)

	GetServerData(id I) state.Attributes
	SetServerData(id I, attrs state.Attributes)
	GetPendingOps(id I) state.Stack
	SetPendingOp(id I, attr string, o op.Operation)
	PushPendingState(id I)
	PopPendingState(id I) state.Frame
	MergeFirstPendingState(id I) error
	GetObjectCache(id I) state.ObjectCache

	EstimateAttribute(id I, attr string) (any, error)
	EstimateAttributes(id I) (state.Attributes, error)
	CommitServerChanges(id I, changes state.Attributes) error

	EnqueueTask(ctx context.Context, id I, task taskqueue.Task) *taskqueue.Future
	WithState(id I, fn func(st *state.EntityState) error) error
	ClearAllState()
	DuplicateState(source, dest I) error
}

// Key identifies an entity by type and id. Local keys carry a temporary id
// issued before the server assigned one.
type Key struct {
	Type  string
	ID    string
	Local bool
}

// NewKey returns the key of a saved entity.
func NewKey(entityType, id string) Key {
	return Key{Type: entityType, ID: id}
}

// NewLocalKey issues a temporary key for an entity that has no server id yet.
func NewLocalKey(entityType string) Key {
	return Key{Type: entityType, ID: "local" + uuid.NewString(), Local: true}
}

func (k Key) String() string {
	return k.Type + ":" + k.ID
}

// Owner returns the entity reference used when estimating relations. Local
// keys have no server id.
func (k Key) Owner() *value.Pointer {
	if k.Local {
		return &value.Pointer{Type: k.Type}
	}

	return &value.Pointer{Type: k.Type, ID: k.ID}
}
