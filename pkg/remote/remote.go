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

// Package remote defines the server side the orchestrator talks to.
package remote

import (
	"context"
	"errors"

	"github.com/united-manufacturing-hub/entitystate/pkg/controller"
	"github.com/united-manufacturing-hub/entitystate/pkg/state"
)

// ErrNotFound is returned for keys the remote has no entity for.
var ErrNotFound = errors.New("entity not found")

// SaveResult is the server's answer to a save.
type SaveResult struct {
	// ID is the id assigned to a new entity. Empty for updates.
	ID string
	// Changes holds attribute values the server computed or added.
	Changes state.Attributes
}

// Remote persists entities. A save of a Local key creates the entity.
//
// body is built by state.EncodeFrame: plain values are sets, maps carrying a
// "kind" are operations.
type Remote interface {
	Save(ctx context.Context, key controller.Key, body map[string]any) (SaveResult, error)
	Fetch(ctx context.Context, key controller.Key) (state.Attributes, error)
	Destroy(ctx context.Context, key controller.Key) error
}
