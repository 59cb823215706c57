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

package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	// Controller labels.
	ControllerKeyed   = "keyed"
	ControllerHandles = "handles"

	// Task outcomes.
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"

	// Merge results.
	MergeOK       = "ok"
	MergeConflict = "conflict"
)

var (
	namespace = "entitystate"

	tasksEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "taskqueue",
			Name:      "tasks_enqueued_total",
			Help:      "Total number of tasks enqueued across all identities",
		},
	)

	tasksSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "taskqueue",
			Name:      "tasks_settled_total",
			Help:      "Total number of settled tasks by outcome",
		},
		[]string{"outcome"},
	)

	taskWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "taskqueue",
			Name:      "task_wait_seconds",
			Help:      "Time a task spent queued behind earlier tasks of the same identity",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
	)

	taskRun = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "taskqueue",
			Name:      "task_run_seconds",
			Help:      "Task execution time",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
	)

	runningQueues = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "taskqueue",
			Name:      "running_queues",
			Help:      "Number of identities currently executing a task",
		},
	)

	frameMerges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "frame_merges_total",
			Help:      "Failed-attempt frames merged forward, by result",
		},
		[]string{"result"},
	)

	entityStates = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "entity_states",
			Help:      "Number of entity states tracked by a controller",
		},
		[]string{"controller"},
	)
)

// RecordTaskEnqueued counts a new task.
func RecordTaskEnqueued() {
	tasksEnqueued.Inc()
}

// RecordTaskStarted records how long a task waited before it started.
func RecordTaskStarted(waited time.Duration) {
	taskWait.Observe(waited.Seconds())
}

// RecordTaskSettled records the outcome and run time of a finished task.
func RecordTaskSettled(err error, ran time.Duration) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}

	tasksSettled.WithLabelValues(outcome).Inc()
	taskRun.Observe(ran.Seconds())
}

// QueueStarted marks a queue leaving idle.
func QueueStarted() {
	runningQueues.Inc()
}

// QueueDrained marks a queue returning to idle.
func QueueDrained() {
	runningQueues.Dec()
}

// RecordFrameMerge counts a merge of the oldest pending frame.
func RecordFrameMerge(err error) {
	if err != nil {
		frameMerges.WithLabelValues(MergeConflict).Inc()

		return
	}

	frameMerges.WithLabelValues(MergeOK).Inc()
}

// SetEntityStates publishes the current table size of a controller.
func SetEntityStates(controller string, n int) {
	entityStates.WithLabelValues(controller).Set(float64(n))
}

// SetupMetricsEndpoint serves /metrics on addr in the background.
func SetupMetricsEndpoint(addr string, log *zap.SugaredLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("metrics endpoint stopped", "error", err)
		}
	}()

	return server
}
