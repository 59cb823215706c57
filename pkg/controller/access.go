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
	"context"
	"maps"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/entitystate/pkg/metrics"
	"github.com/united-manufacturing-hub/entitystate/pkg/op"
	"github.com/united-manufacturing-hub/entitystate/pkg/state"
	"github.com/united-manufacturing-hub/entitystate/pkg/taskqueue"
	"github.com/united-manufacturing-hub/entitystate/pkg/value"
)

// access implements the part of Controller that only needs a way to find or
// create the state of an identity. Every method holds the state's lock and
// returns copies, so callers may use the results while tasks run.
type access[I comparable] struct {
	initialize func(id I) *state.EntityState
	owner      func(id I) *value.Pointer
	label      func(id I) string
	logger     *zap.SugaredLogger
}

func (a access[I]) locked(id I) *state.EntityState {
	st := a.initialize(id)
	st.Lock()

	return st
}

func (a access[I]) GetServerData(id I) state.Attributes {
	st := a.locked(id)
	defer st.Unlock()

	return maps.Clone(st.ServerData)
}

func (a access[I]) SetServerData(id I, attrs state.Attributes) {
	st := a.locked(id)
	defer st.Unlock()

	state.SetServerData(st.ServerData, attrs)
}

func (a access[I]) GetPendingOps(id I) state.Stack {
	st := a.locked(id)
	defer st.Unlock()

	return st.PendingOps.Clone()
}

func (a access[I]) SetPendingOp(id I, attr string, o op.Operation) {
	st := a.locked(id)
	defer st.Unlock()

	state.SetPendingOp(&st.PendingOps, attr, o)
}

func (a access[I]) PushPendingState(id I) {
	st := a.locked(id)
	defer st.Unlock()

	state.PushFrame(&st.PendingOps)
}

func (a access[I]) PopPendingState(id I) state.Frame {
	st := a.locked(id)
	defer st.Unlock()

	return state.PopFrame(&st.PendingOps)
}

func (a access[I]) MergeFirstPendingState(id I) error {
	st := a.locked(id)
	err := state.MergeOldestFrameForward(&st.PendingOps)
	st.Unlock()

	metrics.RecordFrameMerge(err)

	if err != nil {
		a.logger.Warnw("failed to merge pending frame forward",
			"operation", "merge_frame",
			"entity", a.label(id),
			"error", err)
	}

	return err
}

func (a access[I]) GetObjectCache(id I) state.ObjectCache {
	st := a.locked(id)
	defer st.Unlock()

	return maps.Clone(st.ObjectCache)
}

func (a access[I]) EstimateAttribute(id I, attr string) (any, error) {
	st := a.locked(id)
	defer st.Unlock()

	return state.Estimate(st.ServerData, st.PendingOps, a.owner(id), attr)
}

func (a access[I]) EstimateAttributes(id I) (state.Attributes, error) {
	st := a.locked(id)
	defer st.Unlock()

	return state.EstimateAll(st.ServerData, st.PendingOps, a.owner(id))
}

func (a access[I]) CommitServerChanges(id I, changes state.Attributes) error {
	st := a.locked(id)
	defer st.Unlock()

	return state.CommitServerChanges(st.ServerData, st.ObjectCache, changes)
}

func (a access[I]) EnqueueTask(ctx context.Context, id I, task taskqueue.Task) *taskqueue.Future {
	return a.initialize(id).Tasks.Enqueue(ctx, task)
}

// WithState runs fn with the state of id locked. fn must use the state
// functions directly; calling back into the controller for the same identity
// deadlocks.
func (a access[I]) WithState(id I, fn func(st *state.EntityState) error) error {
	st := a.locked(id)
	defer st.Unlock()

	return fn(st)
}

// DuplicateState copies the server data, queued ops and object cache of
// source into dest, overwriting attributes both define. Frames are matched by
// position.
func (a access[I]) DuplicateState(source, dest I) error {
	from := a.locked(source)
	src, err := from.Clone()
	from.Unlock()

	if err != nil {
		return err
	}

	dst := a.locked(dest)
	defer dst.Unlock()

	for attr, v := range src.ServerData {
		dst.ServerData[attr] = v
	}

	for i, frame := range src.PendingOps {
		for len(dst.PendingOps) <= i {
			state.PushFrame(&dst.PendingOps)
		}

		for attr, o := range frame {
			dst.PendingOps[i][attr] = o
		}
	}

	for attr, snapshot := range src.ObjectCache {
		dst.ObjectCache[attr] = snapshot
	}

	dst.Existed = src.Existed

	return nil
}
