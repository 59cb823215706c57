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

package controller

import (
	"fmt"
	"runtime"
	"sync"
	"weak"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/entitystate/pkg/logger"
	"github.com/united-manufacturing-hub/entitystate/pkg/metrics"
	"github.com/united-manufacturing-hub/entitystate/pkg/state"
	"github.com/united-manufacturing-hub/entitystate/pkg/value"
)

type handleEntry struct {
	state   *state.EntityState
	cleanup runtime.Cleanup
}

// Handles keeps one EntityState per *T without keeping the handle alive. The
// state is dropped once the handle becomes unreachable. T must not be a
// zero-size type.
//
// If *T implements value.Identifiable its type and id are used when
// estimating relations; otherwise relation deltas are left out of estimates.
type Handles[T any] struct {
	access[*T]

	mu     sync.Mutex
	states map[weak.Pointer[T]]*handleEntry

	taskLogger *zap.SugaredLogger
}

// NewHandles creates an empty handle table.
func NewHandles[T any]() *Handles[T] {
	h := &Handles[T]{
		states:     make(map[weak.Pointer[T]]*handleEntry),
		taskLogger: logger.For(logger.ComponentTaskQueue),
	}

	h.access = access[*T]{
		initialize: func(handle *T) *state.EntityState { return h.InitializeState(handle, nil) },
		owner:      handleOwner[T],
		label:      handleLabel[T],
		logger:     logger.For(logger.ComponentController),
	}

	return h
}

func handleOwner[T any](handle *T) *value.Pointer {
	if ident, ok := any(handle).(value.Identifiable); ok {
		return &value.Pointer{Type: ident.EntityType(), ID: ident.EntityID()}
	}

	return nil
}

func handleLabel[T any](handle *T) string {
	if ident, ok := any(handle).(value.Identifiable); ok && ident.EntityID() != "" {
		return ident.EntityType() + ":" + ident.EntityID()
	}

	return fmt.Sprintf("%T@%p", handle, handle)
}

func (h *Handles[T]) GetState(handle *T) (*state.EntityState, bool) {
	if handle == nil {
		return nil, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.states[weak.Make(handle)]
	if !ok {
		return nil, false
	}

	return entry.state, true
}

// InitializeState returns the state of handle, storing initial (or a fresh
// state when initial is nil) if there is none yet. It panics on a nil handle.
func (h *Handles[T]) InitializeState(handle *T, initial *state.EntityState) *state.EntityState {
	if handle == nil {
		panic("controller: nil handle")
	}

	key := weak.Make(handle)

	h.mu.Lock()
	defer h.mu.Unlock()

	if entry, ok := h.states[key]; ok {
		return entry.state
	}

	if initial == nil {
		initial = state.NewEntityState(handleLabel(handle), h.taskLogger)
	}

	entry := &handleEntry{state: initial}
	entry.cleanup = runtime.AddCleanup(handle, h.evict, key)
	h.states[key] = entry

	metrics.SetEntityStates(metrics.ControllerHandles, len(h.states))

	return initial
}

func (h *Handles[T]) evict(key weak.Pointer[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.states, key)
	metrics.SetEntityStates(metrics.ControllerHandles, len(h.states))
}

func (h *Handles[T]) RemoveState(handle *T) (*state.EntityState, bool) {
	if handle == nil {
		return nil, false
	}

	key := weak.Make(handle)

	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.states[key]
	if !ok {
		return nil, false
	}

	entry.cleanup.Stop()
	delete(h.states, key)
	metrics.SetEntityStates(metrics.ControllerHandles, len(h.states))

	return entry.state, true
}

// ClearAllState drops the state of every handle.
func (h *Handles[T]) ClearAllState() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, entry := range h.states {
		entry.cleanup.Stop()
	}

	h.states = make(map[weak.Pointer[T]]*handleEntry)
	metrics.SetEntityStates(metrics.ControllerHandles, 0)
}

// Len returns the number of tracked handles.
func (h *Handles[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.states)
}
