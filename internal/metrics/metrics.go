// Copyright 2026 Blink Labs Software
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

// Package metrics exposes Prometheus counters and histograms for the
// ingestion, reconciliation, and reconstruction pipelines, registered on
// the debug listener the same way the teacher's cmd/shai exposes pprof.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PagesFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletindexer",
		Subsystem: "ingest",
		Name:      "pages_fetched_total",
		Help:      "Provider pages fetched, by wallet and phase (backfill/tail).",
	}, []string{"wallet", "phase"})

	RawTransactionsPersisted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletindexer",
		Subsystem: "ingest",
		Name:      "raw_transactions_persisted_total",
		Help:      "Raw transactions upserted into the durable store.",
	}, []string{"wallet"})

	WalletEventsPersisted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletindexer",
		Subsystem: "ingest",
		Name:      "wallet_events_persisted_total",
		Help:      "Canonical wallet events upserted into the durable store.",
	}, []string{"wallet"})

	ProviderCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "walletindexer",
		Subsystem: "provider",
		Name:      "call_duration_seconds",
		Help:      "Upstream Transaction Provider call latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})

	ReconcileAudits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletindexer",
		Subsystem: "reconcile",
		Name:      "audits_total",
		Help:      "Reconciliation audits recorded, by outcome.",
	}, []string{"wallet", "ok"})

	ReconstructDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "walletindexer",
		Subsystem: "reconstruct",
		Name:      "duration_seconds",
		Help:      "Position reconstruction wall-clock time per wallet.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"wallet"})
)

func init() {
	prometheus.MustRegister(
		PagesFetched,
		RawTransactionsPersisted,
		WalletEventsPersisted,
		ProviderCallDuration,
		ReconcileAudits,
		ReconstructDuration,
	)
}

// Handler returns the Prometheus scrape handler, mounted at /metrics on the
// debug listener.
func Handler() http.Handler {
	return promhttp.Handler()
}
