// Copyright 2025 Tom Barlow
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

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tombee/rewind/pkg/gdb"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rewind_requests_total",
		Help: "Total debugger requests received, by request kind.",
	}, []string{"kind"})

	magicCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rewind_magic_commands_total",
		Help: "Total magic channel commands executed, by command.",
	}, []string{"command"})

	checkpointsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rewind_checkpoints_live",
		Help: "Checkpoints currently held in the store.",
	})

	lazyReverseStepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rewind_lazy_reverse_steps_total",
		Help: "Reverse single-steps served from the mark cache instead of re-execution.",
	})

	diversionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rewind_diversions_total",
		Help: "Diversion sessions spawned.",
	})

	stopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rewind_stops_total",
		Help: "Stop notifications sent to the debugger, by reason.",
	}, []string{"reason"})
)

func recordRequest(kind gdb.RequestKind) {
	requestsTotal.WithLabelValues(kind.String()).Inc()
}

func recordMagicCommand(command string) {
	magicCommandsTotal.WithLabelValues(command).Inc()
}

func recordCheckpointCount(n int) {
	checkpointsLive.Set(float64(n))
}

func recordLazyReverseStep() {
	lazyReverseStepsTotal.Inc()
}

func recordDiversion() {
	diversionsTotal.Inc()
}

func recordStop(reason string) {
	stopsTotal.WithLabelValues(reason).Inc()
}
