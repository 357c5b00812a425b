// Copyright 2023 LiveKit, Inc.
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

package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

const livekitNamespace = "livekit"

var (
	initialized atomic.Bool

	pendingCurrent atomic.Int32

	promPendingCurrent prometheus.Gauge
	promAdmittedTotal  *prometheus.CounterVec
	promRejectedTotal  prometheus.Counter
	promEvictedTotal   prometheus.Counter
	promTokensMinted   prometheus.Counter
)

func Init(nodeID string) {
	if initialized.Swap(true) {
		return
	}

	constLabels := prometheus.Labels{"node_id": nodeID}

	promPendingCurrent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   livekitNamespace,
		Subsystem:   "waiting_room",
		Name:        "pending",
		ConstLabels: constLabels,
	})
	promAdmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   livekitNamespace,
		Subsystem:   "waiting_room",
		Name:        "admitted_total",
		ConstLabels: constLabels,
	}, []string{"kind"})
	promRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   livekitNamespace,
		Subsystem:   "waiting_room",
		Name:        "rejected_total",
		ConstLabels: constLabels,
	})
	promEvictedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   livekitNamespace,
		Subsystem:   "waiting_room",
		Name:        "evicted_total",
		ConstLabels: constLabels,
	})
	promTokensMinted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   livekitNamespace,
		Subsystem:   "waiting_room",
		Name:        "tokens_minted_total",
		ConstLabels: constLabels,
	})

	prometheus.MustRegister(promPendingCurrent)
	prometheus.MustRegister(promAdmittedTotal)
	prometheus.MustRegister(promRejectedTotal)
	prometheus.MustRegister(promEvictedTotal)
	prometheus.MustRegister(promTokensMinted)
}

func PendingInc() {
	pendingCurrent.Inc()
	if promPendingCurrent != nil {
		promPendingCurrent.Inc()
	}
}

func PendingDec() {
	pendingCurrent.Dec()
	if promPendingCurrent != nil {
		promPendingCurrent.Dec()
	}
}

func PendingCurrent() int32 {
	return pendingCurrent.Load()
}

// kind is "first" or "approved"
func AdmittedInc(kind string) {
	if promAdmittedTotal != nil {
		promAdmittedTotal.WithLabelValues(kind).Inc()
	}
}

func RejectedInc() {
	if promRejectedTotal != nil {
		promRejectedTotal.Inc()
	}
}

func EvictedAdd(n int) {
	pendingCurrent.Sub(int32(n))
	if promEvictedTotal != nil {
		promEvictedTotal.Add(float64(n))
	}
	if promPendingCurrent != nil {
		promPendingCurrent.Sub(float64(n))
	}
}

func TokenMintedInc() {
	if promTokensMinted != nil {
		promTokensMinted.Inc()
	}
}
