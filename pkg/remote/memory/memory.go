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

// Package memory provides an in-memory implementation of remote.Remote.
//
// Save bodies are decoded into operations and applied with the same fold the
// client uses for estimates, so the stored result matches what the client
// predicted. Documents are deep-copied on every read and write.
//
// # Failure injection
//
// FailNext queues errors returned by the next calls instead of touching the
// store. SetLatency delays every call; a context that ends during the delay
// aborts the call.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tiendc/go-deepcopy"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/entitystate/pkg/controller"
	"github.com/united-manufacturing-hub/entitystate/pkg/logger"
	"github.com/united-manufacturing-hub/entitystate/pkg/op"
	"github.com/united-manufacturing-hub/entitystate/pkg/remote"
	"github.com/united-manufacturing-hub/entitystate/pkg/state"
	"github.com/united-manufacturing-hub/entitystate/pkg/value"
)

const (
	AttrCreatedAt = "createdAt"
	AttrUpdatedAt = "updatedAt"
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context cannot be nil")
	}

	return nil
}

// Store keeps documents per entity type and id, plus the members of every
// relation attribute.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]state.Attributes
	members     map[string]map[string]struct{}

	failures []error
	latency  time.Duration

	now    func() time.Time
	logger *zap.SugaredLogger
}

var _ remote.Remote = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		collections: make(map[string]map[string]state.Attributes),
		members:     make(map[string]map[string]struct{}),
		now:         time.Now,
		logger:      logger.For(logger.ComponentRemote),
	}
}

// FailNext makes the next len(errs) calls return errs in order.
func (s *Store) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = append(s.failures, errs...)
}

// SetLatency delays every following call by d.
func (s *Store) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latency = d
}

// begin waits out the configured latency and pops an injected failure.
func (s *Store) begin(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	latency := s.latency

	var injected error
	if len(s.failures) > 0 {
		injected = s.failures[0]
		s.failures = s.failures[1:]
	}
	s.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return injected
}

// Save applies body to the stored document of key, creating it when key is
// local. Values the server computed from operations are returned as changes.
func (s *Store) Save(ctx context.Context, key controller.Key, body map[string]any) (remote.SaveResult, error) {
	if err := s.begin(ctx); err != nil {
		return remote.SaveResult{}, err
	}

	frame, err := state.DecodeFrame(body)
	if err != nil {
		return remote.SaveResult{}, fmt.Errorf("invalid save body: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collection(key.Type)
	now := s.now().UTC().Format(time.RFC3339Nano)

	result := remote.SaveResult{Changes: state.Attributes{AttrUpdatedAt: now}}

	id := key.ID
	current := state.Attributes{}

	if key.Local {
		id = newID()
		result.ID = id
		result.Changes[AttrCreatedAt] = now
	} else {
		doc, ok := coll[id]
		if !ok {
			return remote.SaveResult{}, fmt.Errorf("cannot save %s: %w", key, remote.ErrNotFound)
		}

		current = doc
	}

	owner := &value.Pointer{Type: key.Type, ID: id}

	updated, err := state.EstimateAll(current, state.Stack{frame}, owner)
	if err != nil {
		return remote.SaveResult{}, err
	}

	for attr, o := range frame {
		switch o := o.(type) {
		case op.Set, op.Unset:
		case op.RelationDelta:
			s.applyMembers(owner, attr, o)
		default:
			v, err := state.Estimate(updated, nil, owner, attr)
			if err != nil {
				return remote.SaveResult{}, err
			}

			result.Changes[attr] = v
		}
	}

	for attr, v := range result.Changes {
		if attr == AttrCreatedAt || attr == AttrUpdatedAt {
			updated[attr] = v
		}
	}

	var stored state.Attributes
	if err := deepcopy.Copy(&stored, &updated); err != nil {
		return remote.SaveResult{}, err
	}

	coll[id] = stored

	s.logger.Debugw("saved entity", "entity_type", key.Type, "id", id, "attributes", len(body))

	return result, nil
}

// Fetch returns a copy of the stored document.
func (s *Store) Fetch(ctx context.Context, key controller.Key) (state.Attributes, error) {
	if err := s.begin(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[key.Type][key.ID]
	if !ok || key.Local {
		return nil, fmt.Errorf("cannot fetch %s: %w", key, remote.ErrNotFound)
	}

	var out state.Attributes
	if err := deepcopy.Copy(&out, &doc); err != nil {
		return nil, err
	}

	return out, nil
}

// Destroy deletes the document and its relation members.
func (s *Store) Destroy(ctx context.Context, key controller.Key) error {
	if err := s.begin(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collections[key.Type]
	if _, ok := coll[key.ID]; !ok || key.Local {
		return fmt.Errorf("cannot destroy %s: %w", key, remote.ErrNotFound)
	}

	delete(coll, key.ID)

	prefix := key.Type + "/" + key.ID + "/"
	for k := range s.members {
		if strings.HasPrefix(k, prefix) {
			delete(s.members, k)
		}
	}

	return nil
}

// Members returns the ids related to key through attr.
func (s *Store) Members(key controller.Key, attr string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.members[membersKey(key.Type, key.ID, attr)]

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}

	return out
}

// Len returns the number of stored documents of entityType.
func (s *Store) Len(entityType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.collections[entityType])
}

func (s *Store) collection(entityType string) map[string]state.Attributes {
	coll, ok := s.collections[entityType]
	if !ok {
		coll = make(map[string]state.Attributes)
		s.collections[entityType] = coll
	}

	return coll
}

func (s *Store) applyMembers(owner *value.Pointer, attr string, delta op.RelationDelta) {
	k := membersKey(owner.Type, owner.ID, attr)

	set, ok := s.members[k]
	if !ok {
		set = make(map[string]struct{})
		s.members[k] = set
	}

	for _, id := range delta.Adds() {
		set[id] = struct{}{}
	}

	for _, id := range delta.Removes() {
		delete(set, id)
	}
}

func membersKey(entityType, id, attr string) string {
	return entityType + "/" + id + "/" + attr
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
