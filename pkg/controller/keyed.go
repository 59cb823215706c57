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
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/united-manufacturing-hub/expiremap/v2/pkg/expiremap"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/entitystate/pkg/config"
	"github.com/united-manufacturing-hub/entitystate/pkg/logger"
	"github.com/united-manufacturing-hub/entitystate/pkg/metrics"
	"github.com/united-manufacturing-hub/entitystate/pkg/state"
)

// alias points a retired local key at the key its state moved to. Aliases
// created before the last ClearAllState are ignored.
type alias struct {
	to         Key
	generation uint64
}

// Keyed shares one EntityState between all handles of the same Key. Create
// one per process and pass it to the consumers that need it.
type Keyed struct {
	access[Key]

	states  *xsync.MapOf[Key, *state.EntityState]
	aliases *expiremap.ExpireMap[Key, alias]

	// rekeyMu serializes Rekey and ClearAllState.
	rekeyMu    sync.Mutex
	generation atomic.Uint64

	taskLogger *zap.SugaredLogger
}

var _ Controller[Key] = (*Keyed)(nil)

// NewKeyed creates an empty table. Re-keyed local keys keep resolving for
// cfg.AliasTTL.
func NewKeyed(cfg config.ControllerConfig) *Keyed {
	ttl := cfg.AliasTTL
	if ttl <= 0 {
		ttl = config.DefaultAliasTTL
	}

	cull := cfg.AliasCullInterval
	if cull <= 0 {
		cull = config.DefaultAliasCullInterval
	}

	k := &Keyed{
		states:     xsync.NewMapOf[Key, *state.EntityState](),
		aliases:    expiremap.NewEx[Key, alias](cull, ttl),
		taskLogger: logger.For(logger.ComponentTaskQueue),
	}

	k.access = access[Key]{
		initialize: func(key Key) *state.EntityState { return k.InitializeState(key, nil) },
		owner:      Key.Owner,
		label:      Key.String,
		logger:     logger.For(logger.ComponentController),
	}

	return k
}

// Resolve follows a live alias of key. Keys without an alias are returned
// unchanged.
func (k *Keyed) Resolve(key Key) Key {
	if _, ok := k.states.Load(key); ok {
		return key
	}

	if a, ok := k.aliases.Load(key); ok && a.generation == k.generation.Load() {
		return a.to
	}

	return key
}

func (k *Keyed) GetState(key Key) (*state.EntityState, bool) {
	return k.states.Load(k.Resolve(key))
}

// InitializeState returns the state of key, storing initial (or a fresh
// state when initial is nil) if there is none yet.
func (k *Keyed) InitializeState(key Key, initial *state.EntityState) *state.EntityState {
	key = k.Resolve(key)

	st, loaded := k.states.LoadOrCompute(key, func() *state.EntityState {
		if initial != nil {
			return initial
		}

		return state.NewEntityState(key.String(), k.taskLogger)
	})

	if !loaded {
		k.logger.Debugw("initialized entity state", "entity", key.String())
		metrics.SetEntityStates(metrics.ControllerKeyed, k.states.Size())
	}

	return st
}

func (k *Keyed) RemoveState(key Key) (*state.EntityState, bool) {
	st, ok := k.states.LoadAndDelete(k.Resolve(key))
	if ok {
		metrics.SetEntityStates(metrics.ControllerKeyed, k.states.Size())
	}

	return st, ok
}

// Rekey moves the state of from to to. The same *EntityState is kept, so its
// queued frames and running tasks carry over. Lookups by from keep reaching
// the moved state until the alias expires.
func (k *Keyed) Rekey(from, to Key) error {
	k.rekeyMu.Lock()
	defer k.rekeyMu.Unlock()

	if from == to {
		return nil
	}

	st, ok := k.states.Load(from)
	if !ok {
		return fmt.Errorf("cannot re-key %s: %w", from, ErrNoState)
	}

	if _, loaded := k.states.LoadOrStore(to, st); loaded {
		return fmt.Errorf("cannot re-key %s to %s: %w", from, to, ErrKeyTaken)
	}

	k.states.Delete(from)
	k.aliases.Set(from, alias{to: to, generation: k.generation.Load()})

	k.logger.Debugw("re-keyed entity state", "from", from.String(), "to", to.String())

	return nil
}

// ClearAllState drops every state and alias.
func (k *Keyed) ClearAllState() {
	k.rekeyMu.Lock()
	defer k.rekeyMu.Unlock()

	k.generation.Add(1)
	k.states.Clear()
	metrics.SetEntityStates(metrics.ControllerKeyed, 0)
}

// Len returns the number of tracked identities.
func (k *Keyed) Len() int {
	return k.states.Size()
}

// Aliases returns the number of unexpired aliases, including ones already
// invalidated by ClearAllState.
func (k *Keyed) Aliases() int {
	return k.aliases.Length()
}
