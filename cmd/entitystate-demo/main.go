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

// Command entitystate-demo drives concurrent edits and saves of a batch of
// entities against the in-memory remote and logs the resulting state.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/united-manufacturing-hub/entitystate/pkg/config"
	"github.com/united-manufacturing-hub/entitystate/pkg/controller"
	"github.com/united-manufacturing-hub/entitystate/pkg/env"
	"github.com/united-manufacturing-hub/entitystate/pkg/logger"
	"github.com/united-manufacturing-hub/entitystate/pkg/metrics"
	"github.com/united-manufacturing-hub/entitystate/pkg/op"
	"github.com/united-manufacturing-hub/entitystate/pkg/orchestrator"
	"github.com/united-manufacturing-hub/entitystate/pkg/remote/memory"
	"github.com/united-manufacturing-hub/entitystate/pkg/value"
)

var errFlaky = errors.New("simulated connection reset")

type article struct {
	id string
}

func (a *article) EntityType() string    { return "Article" }
func (a *article) EntityID() string      { return a.id }
func (a *article) SetEntityID(id string) { a.id = id }

func main() {
	configPath, _ := env.GetAsString("CONFIG_PATH", false, "entitystate.yaml")
	version, _ := env.GetAsString("APP_VERSION", false, "dev")
	entities, _ := env.GetAsString("DEMO_ENTITIES", false, "8")

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	sentryEnabled, err := logger.InitSentry(cfg.Sentry.DSN, cfg.Sentry.Environment, version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}

	logger.ReplaceGlobals(logger.New(
		cfg.Logging.Level,
		logger.ParseFormat(cfg.Logging.Format, logger.FormatConsole),
		logger.Options{Sentry: sentryEnabled},
	))
	defer func() { _ = logger.Sync() }()

	log := logger.For(logger.ComponentDemo)
	log.Infow("starting entitystate demo", "mode", cfg.Controller.Mode, "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		server := metrics.SetupMetricsEndpoint(fmt.Sprintf(":%d", cfg.Metrics.Port), log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Errorw("failed to shut down metrics endpoint", "error", err)
			}
		}()
	}

	var n int
	if _, err := fmt.Sscanf(entities, "%d", &n); err != nil || n <= 0 {
		log.Errorw("invalid DEMO_ENTITIES", "value", entities)
		os.Exit(1)
	}

	store := memory.NewStore()

	switch cfg.Controller.Mode {
	case config.ModeHandles:
		err = runHandles(ctx, store, n, log)
	default:
		err = runKeyed(ctx, controller.NewKeyed(cfg.Controller), store, n, log)
	}

	if err != nil {
		log.Errorw("demo failed", "error", err)
		os.Exit(1)
	}

	log.Infow("demo finished", "entities", n)
}

// runKeyed creates n entities concurrently. Every first save fails, so the
// edits of the first round travel with the second save.
func runKeyed(ctx context.Context, k *controller.Keyed, store *memory.Store, n int, log *zap.SugaredLogger) error {
	o := orchestrator.ForKeyed(k, store)
	keys := make([]controller.Key, n)

	for range n {
		store.FailNext(errFlaky)
	}

	g, gctx := errgroup.WithContext(ctx)

	for i := range keys {
		keys[i] = controller.NewLocalKey("Counter")
		local := keys[i]

		g.Go(func() error {
			if err := o.Edit(local, "name", op.NewSet(fmt.Sprintf("counter-%d", i))); err != nil {
				return err
			}

			if err := o.Edit(local, "count", op.NewIncrement(1)); err != nil {
				return err
			}

			if _, err := o.Save(gctx, local).Wait(gctx); !errors.Is(err, errFlaky) {
				return fmt.Errorf("entity %d: expected a failed first save, got %v", i, err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	g, gctx = errgroup.WithContext(ctx)

	for i, local := range keys {
		g.Go(func() error {
			if err := o.Edit(local, "count", op.NewIncrement(float64(i))); err != nil {
				return err
			}

			if err := o.Edit(local, "history", op.NewAppend(i)); err != nil {
				return err
			}

			result, err := o.Save(gctx, local).Wait(gctx)
			if err != nil {
				return fmt.Errorf("entity %d: %w", i, err)
			}

			saved := result.(controller.Key)

			estimate, err := k.EstimateAttributes(saved)
			if err != nil {
				return err
			}

			log.Infow("entity saved", "entity", saved.String(), "count", estimate["count"], "history", estimate["history"])

			return nil
		})
	}

	return g.Wait()
}

// runHandles saves n independent handles and relates them to the first one.
func runHandles(ctx context.Context, store *memory.Store, n int, log *zap.SugaredLogger) error {
	h := controller.NewHandles[article]()
	o := orchestrator.ForHandles(h, store)

	articles := make([]*article, n)

	g, gctx := errgroup.WithContext(ctx)

	for i := range articles {
		a := &article{}
		articles[i] = a

		g.Go(func() error {
			if err := o.Edit(a, "title", op.NewSet(fmt.Sprintf("article-%d", i))); err != nil {
				return err
			}

			_, err := o.Save(gctx, a).Wait(gctx)

			return err
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	refs := make([]value.Identifiable, 0, n-1)
	for _, a := range articles[1:] {
		refs = append(refs, a)
	}

	delta, err := op.NewRelationDelta(refs, nil)
	if err != nil {
		return err
	}

	head := articles[0]
	if err := o.Edit(head, "related", delta); err != nil {
		return err
	}

	if _, err := o.Save(ctx, head).Wait(ctx); err != nil {
		return err
	}

	log.Infow("related articles saved",
		"entity", head.EntityType()+":"+head.EntityID(),
		"members", len(store.Members(controller.NewKey(head.EntityType(), head.EntityID()), "related")),
		"tracked", h.Len())

	return nil
}
