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

// Package orchestrator drives persistence of entity state through a remote.
//
// A save freezes the open frame by pushing a new one, then enqueues a task
// on the entity's queue. When the task runs it sends the oldest frame. On
// success the frame is popped and the server's answer committed; on failure
// the frame is merged into the next one so no edit is lost and the next save
// sends it again.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/entitystate/pkg/controller"
	"github.com/united-manufacturing-hub/entitystate/pkg/logger"
	"github.com/united-manufacturing-hub/entitystate/pkg/op"
	"github.com/united-manufacturing-hub/entitystate/pkg/remote"
	"github.com/united-manufacturing-hub/entitystate/pkg/state"
	"github.com/united-manufacturing-hub/entitystate/pkg/taskqueue"
	"github.com/united-manufacturing-hub/entitystate/pkg/value"
)

// Identity maps controller identities to remote keys.
type Identity[I comparable] struct {
	// KeyOf returns the current remote key of id.
	KeyOf func(id I) controller.Key
	// Assign records the id the server gave a new entity.
	Assign func(id I, from, to controller.Key) error
}

// Orchestrator serializes saves, fetches and destroys per identity.
type Orchestrator[I comparable] struct {
	states   controller.Controller[I]
	remote   remote.Remote
	identity Identity[I]
	logger   *zap.SugaredLogger
}

// New creates an orchestrator over any controller flavor.
func New[I comparable](states controller.Controller[I], r remote.Remote, identity Identity[I]) *Orchestrator[I] {
	return &Orchestrator[I]{
		states:   states,
		remote:   r,
		identity: identity,
		logger:   logger.For(logger.ComponentOrchestrator),
	}
}

// ForKeyed wires an orchestrator to a Keyed controller. New entities are
// re-keyed from their local key to the assigned one.
func ForKeyed(k *controller.Keyed, r remote.Remote) *Orchestrator[controller.Key] {
	return New[controller.Key](k, r, Identity[controller.Key]{
		KeyOf: k.Resolve,
		Assign: func(_ controller.Key, from, to controller.Key) error {
			return k.Rekey(from, to)
		},
	})
}

// IDSetter is implemented by handles that accept a server-assigned id.
type IDSetter interface {
	SetEntityID(id string)
}

// ForHandles wires an orchestrator to a Handles controller. *T must
// implement value.Identifiable; a handle with an empty id is new. Assigned
// ids are handed to handles implementing IDSetter.
func ForHandles[T any](h *controller.Handles[T], r remote.Remote) *Orchestrator[*T] {
	return New[*T](h, r, Identity[*T]{
		KeyOf: func(handle *T) controller.Key {
			ident, ok := any(handle).(value.Identifiable)
			if !ok {
				return controller.Key{Local: true}
			}

			if ident.EntityID() == "" {
				return controller.Key{Type: ident.EntityType(), Local: true}
			}

			return controller.NewKey(ident.EntityType(), ident.EntityID())
		},
		Assign: func(handle *T, _, to controller.Key) error {
			setter, ok := any(handle).(IDSetter)
			if !ok {
				return fmt.Errorf("%T cannot take an assigned id", handle)
			}

			setter.SetEntityID(to.ID)

			return nil
		},
	})
}

// Save queues a save of everything edited so far. The future resolves to the
// entity's remote key after the save.
//
// The pushed frame is merged back into the open one when the save fails,
// including when ctx is already done by the time the task would start.
func (o *Orchestrator[I]) Save(ctx context.Context, id I) *taskqueue.Future {
	if ctx == nil {
		ctx = context.Background()
	}

	o.states.PushPendingState(id)

	return o.states.EnqueueTask(context.WithoutCancel(ctx), id, func(context.Context) (any, error) {
		return o.save(ctx, id)
	})
}

func (o *Orchestrator[I]) save(ctx context.Context, id I) (controller.Key, error) {
	var (
		key  controller.Key
		body map[string]any
	)

	err := o.states.WithState(id, func(st *state.EntityState) error {
		key = o.identity.KeyOf(id)

		if err := ctx.Err(); err != nil {
			return err
		}

		var encodeErr error
		body, encodeErr = state.EncodeFrame(st.PendingOps[0])

		return encodeErr
	})

	if err == nil {
		var result remote.SaveResult

		result, err = o.remote.Save(ctx, key, body)
		if err == nil {
			saved := key

			err = o.states.WithState(id, func(st *state.EntityState) error {
				var finishErr error
				saved, finishErr = o.finishSave(st, id, key, result)

				return finishErr
			})

			return saved, err
		}
	}

	o.logger.Warnw("save failed, keeping edits for the next attempt",
		"operation", "save",
		"entity_type", key.Type,
		"entity", key.String(),
		"error", err)

	if mergeErr := o.states.MergeFirstPendingState(id); mergeErr != nil {
		return key, errors.Join(err, mergeErr)
	}

	return key, err
}

// finishSave runs with st locked.
func (o *Orchestrator[I]) finishSave(st *state.EntityState, id I, key controller.Key, result remote.SaveResult) (controller.Key, error) {
	sent := state.PopFrame(&st.PendingOps)

	saved := key
	if key.Local && result.ID != "" {
		saved = controller.NewKey(key.Type, result.ID)
	}

	// Ops the server did not echo are resolved against confirmed data.
	unechoed := state.Frame{}
	for attr, pending := range sent {
		if _, ok := result.Changes[attr]; !ok {
			unechoed[attr] = pending
		}
	}

	changes := state.Attributes{}

	for attr := range unechoed {
		v, err := state.Estimate(st.ServerData, state.Stack{unechoed}, saved.Owner(), attr)
		if err != nil {
			o.logger.Warnw("cannot resolve saved attribute",
				"operation", "save",
				"entity_type", key.Type,
				"attribute", attr,
				"error", err)

			continue
		}

		changes[attr] = v
	}

	for attr, v := range result.Changes {
		changes[attr] = v
	}

	if err := state.CommitServerChanges(st.ServerData, st.ObjectCache, changes); err != nil {
		return key, err
	}

	st.Existed = true

	if saved != key {
		if err := o.identity.Assign(id, key, saved); err != nil {
			return key, fmt.Errorf("failed to assign id %s: %w", saved.ID, err)
		}
	}

	return saved, nil
}

// Fetch queues a reload of confirmed data. Queued edits are kept. The future
// resolves to the fetched attributes.
func (o *Orchestrator[I]) Fetch(ctx context.Context, id I) *taskqueue.Future {
	return o.states.EnqueueTask(ctx, id, func(ctx context.Context) (any, error) {
		var key controller.Key

		_ = o.states.WithState(id, func(*state.EntityState) error {
			key = o.identity.KeyOf(id)
			return nil
		})

		attrs, err := o.remote.Fetch(ctx, key)
		if err != nil {
			o.logger.Warnw("fetch failed", "operation", "fetch", "entity_type", key.Type, "entity", key.String(), "error", err)
			return nil, err
		}

		err = o.states.WithState(id, func(st *state.EntityState) error {
			for attr := range st.ServerData {
				if _, ok := attrs[attr]; !ok {
					delete(st.ServerData, attr)
					delete(st.ObjectCache, attr)
				}
			}

			if err := state.CommitServerChanges(st.ServerData, st.ObjectCache, attrs); err != nil {
				return err
			}

			st.Existed = true

			return nil
		})
		if err != nil {
			return nil, err
		}

		return attrs, nil
	})
}

// Destroy queues deletion of the entity. Its state is removed once the
// remote confirms.
func (o *Orchestrator[I]) Destroy(ctx context.Context, id I) *taskqueue.Future {
	return o.states.EnqueueTask(ctx, id, func(ctx context.Context) (any, error) {
		var key controller.Key

		_ = o.states.WithState(id, func(*state.EntityState) error {
			key = o.identity.KeyOf(id)
			return nil
		})

		if !key.Local {
			if err := o.remote.Destroy(ctx, key); err != nil {
				o.logger.Warnw("destroy failed", "operation", "destroy", "entity_type", key.Type, "entity", key.String(), "error", err)
				return nil, err
			}
		}

		o.states.RemoveState(id)

		return nil, nil
	})
}

// Edit queues next on attr, merged with any op already in the open frame. next
// is checked against the current estimate first, so an edit that cannot
// apply is rejected before it is queued.
func (o *Orchestrator[I]) Edit(id I, attr string, next op.Operation) error {
	return o.states.WithState(id, func(st *state.EntityState) error {
		owner := o.identity.KeyOf(id).Owner()

		prev, err := state.Estimate(st.ServerData, st.PendingOps, owner, attr)
		if err != nil {
			return err
		}

		if _, err := op.Apply(next, prev, op.Target{Owner: owner, Attr: attr}); err != nil {
			return err
		}

		open := st.PendingOps[len(st.PendingOps)-1]

		merged, err := op.Merge(next, open[attr])
		if err != nil {
			return err
		}

		state.SetPendingOp(&st.PendingOps, attr, merged)

		return nil
	})
}
