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

// Package api is the thin, read-only request front-end described in
// spec.md section 6: /v1/wallets/{wallet}/events,
// /v1/wallets/{wallet}/positions, and a WebSocket progress stream. Per
// spec.md section 5, in-process request dedup and short-lived result
// caching belong here, not in the core pipeline.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/solwallet/indexer/internal/logging"
	"github.com/solwallet/indexer/internal/model"
	"github.com/solwallet/indexer/internal/reconstruct"
)

// Store is the subset of the durable store the API needs.
type Store interface {
	GetWalletEventsOrdered(ctx context.Context, wallet string) ([]model.WalletEvent, error)
}

// Oracle is the subset of internal/oracle.Oracle the API needs to price
// currently-held positions.
type Oracle interface {
	GetCurrentPriceUsd(ctx context.Context, mint string) (*decimal.Decimal, error)
}

// Reconstructor is the subset of internal/reconstruct.Reconstructor the API
// needs.
type Reconstructor interface {
	Reconstruct(ctx context.Context, wallet string, events []model.WalletEvent, currentPrices map[string]decimal.Decimal) reconstruct.Portfolio
}

// ProgressUpdate is broadcast to WebSocket subscribers as backfill/sync
// pipelines make progress.
type ProgressUpdate struct {
	Wallet string `json:"wallet"`
	Phase  string `json:"phase"`
	Stats  any    `json:"stats"`
}

// API serves the read-only HTTP and WebSocket surface.
type API struct {
	store         Store
	oracle        Oracle
	reconstructor Reconstructor
	cache         *ResultCache
	flights       *flightGroup

	upgrader websocket.Upgrader
	wsConns  map[*websocket.Conn]bool
	wsMu     sync.RWMutex
	progress chan ProgressUpdate
}

// New builds an API. cache may be nil, in which case responses are neither
// deduplicated against a persistent cache nor served from one (in-flight
// dedup still applies).
func New(store Store, oracle Oracle, reconstructor Reconstructor, cache *ResultCache) *API {
	return &API{
		store: store, oracle: oracle, reconstructor: reconstructor, cache: cache,
		flights:  newFlightGroup(),
		wsConns:  make(map[*websocket.Conn]bool),
		progress: make(chan ProgressUpdate, 64),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// RegisterHandlers registers HTTP handlers on mux.
func (a *API) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/v1/wallets/", a.handleWallet)
	mux.HandleFunc("/ws/progress", a.handleProgressStream)
}

// PublishProgress broadcasts one progress update to connected WebSocket
// clients, called by the CLI/control surface as pipelines run.
func (a *API) PublishProgress(update ProgressUpdate) {
	select {
	case a.progress <- update:
	default:
		// Drop updates rather than block the caller; clients that miss one
		// will see the next.
	}
}

// BroadcastProgress drains a.progress and fans each update out to every
// connected WebSocket client, in the same shape as the teacher's
// broadcastPriceUpdates loop.
func (a *API) BroadcastProgress() {
	logger := logging.Component("api")
	for update := range a.progress {
		var failed []*websocket.Conn

		a.wsMu.RLock()
		for conn := range a.wsConns {
			if err := conn.WriteJSON(update); err != nil {
				failed = append(failed, conn)
			}
		}
		a.wsMu.RUnlock()

		if len(failed) > 0 {
			a.wsMu.Lock()
			for _, conn := range failed {
				delete(a.wsConns, conn)
				_ = conn.Close()
			}
			a.wsMu.Unlock()
			logger.Debug("dropped stale websocket connections", "count", len(failed))
		}
	}
}

func (a *API) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	logger := logging.Component("api")
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	a.wsMu.Lock()
	a.wsConns[conn] = true
	a.wsMu.Unlock()

	defer func() {
		a.wsMu.Lock()
		delete(a.wsConns, conn)
		a.wsMu.Unlock()
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// handleWallet routes /v1/wallets/{wallet}/events and
// /v1/wallets/{wallet}/positions.
func (a *API) handleWallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/wallets/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.Error(w, "expected /v1/wallets/{wallet}/events or /positions", http.StatusBadRequest)
		return
	}
	wallet, resource := parts[0], parts[1]

	switch resource {
	case "events":
		a.serveCached(w, r, "events:"+wallet, func() ([]byte, error) {
			events, err := a.store.GetWalletEventsOrdered(r.Context(), wallet)
			if err != nil {
				return nil, err
			}
			return json.Marshal(events)
		})
	case "positions":
		a.serveCached(w, r, "positions:"+wallet, func() ([]byte, error) {
			events, err := a.store.GetWalletEventsOrdered(r.Context(), wallet)
			if err != nil {
				return nil, err
			}
			currentPrices := a.currentPrices(r.Context(), events)
			portfolio := a.reconstructor.Reconstruct(r.Context(), wallet, events, currentPrices)
			return json.Marshal(portfolio)
		})
	default:
		http.Error(w, "unknown resource: "+resource, http.StatusNotFound)
	}
}

// serveCached answers from the badger result cache when present, otherwise
// coalesces concurrent identical requests through flights and computes
// fresh, caching the result for the configured TTL.
func (a *API) serveCached(w http.ResponseWriter, r *http.Request, key string, compute func() ([]byte, error)) {
	if a.cache != nil {
		if body, ok := a.cache.Get(key); ok {
			writeJSON(w, body)
			return
		}
	}

	body, err := a.flights.Do(key, compute)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if a.cache != nil {
		_ = a.cache.Set(key, body)
	}
	writeJSON(w, body)
}

func (a *API) currentPrices(ctx context.Context, events []model.WalletEvent) map[string]decimal.Decimal {
	mints := make(map[string]struct{})
	for _, ev := range events {
		mints[ev.TokenMint] = struct{}{}
	}
	out := make(map[string]decimal.Decimal, len(mints))
	for mint := range mints {
		price, err := a.oracle.GetCurrentPriceUsd(ctx, mint)
		if err == nil && price != nil {
			out[mint] = *price
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
