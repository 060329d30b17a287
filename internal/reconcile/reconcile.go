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

// Package reconcile implements the Reconciliation Auditor described in
// spec.md section 4.3: independently verify that the store holds every
// signature the provider reports in a slot window, repair what's missing,
// and record an audit row.
package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/solwallet/indexer/internal/apperr"
	"github.com/solwallet/indexer/internal/logging"
	"github.com/solwallet/indexer/internal/metrics"
	"github.com/solwallet/indexer/internal/model"
	"github.com/solwallet/indexer/internal/provider"
)

// Store is the subset of the durable store the auditor needs.
type Store interface {
	GetSyncState(ctx context.Context, wallet string) (*model.SyncState, bool, error)
	GetRawSignaturesInSlotRange(ctx context.Context, fromSlot, toSlot uint64) ([]string, error)
	CountWalletEventsInSlotRange(ctx context.Context, wallet string, fromSlot, toSlot uint64) (int64, error)
	AppendReconcileAudit(ctx context.Context, audit model.ReconcileAudit) error
}

// Ingester is the subset of internal/ingest.Driver the auditor needs to
// repair a missing transaction: persist it raw, normalize it, persist the
// resulting events.
type Ingester interface {
	IngestOne(ctx context.Context, wallet string, tx provider.Transaction) error
}

// Result is one reconcileSlotRange outcome.
type Result struct {
	Wallet           string
	FromSlot         uint64
	ToSlot           uint64
	CountRaw         int
	CountWalletTx    int
	MissingCount     int
	SignatureSetHash string
	OK               bool
}

// Auditor drives reconciliation for one wallet at a time.
type Auditor struct {
	store    Store
	provider provider.Client
	ingester Ingester
	pause    time.Duration
}

// New builds an Auditor. pause is the delay observed between chunks in
// reconcileRecentSlots, to avoid starving other tenants of provider budget.
func New(store Store, client provider.Client, ingester Ingester, pause time.Duration) *Auditor {
	return &Auditor{store: store, provider: client, ingester: ingester, pause: pause}
}

// ReconcileSlotRange implements spec.md section 4.3's reconcileSlotRange.
func (a *Auditor) ReconcileSlotRange(ctx context.Context, wallet string, fromSlot, toSlot uint64) (Result, error) {
	logger := logging.Component("reconcile")

	provided, err := a.fetchSlotRange(ctx, wallet, fromSlot, toSlot)
	if err != nil {
		a.appendFailedAudit(ctx, wallet, fromSlot, toSlot, 0, 0)
		return Result{}, err
	}

	stored, err := a.store.GetRawSignaturesInSlotRange(ctx, fromSlot, toSlot)
	if err != nil {
		a.appendFailedAudit(ctx, wallet, fromSlot, toSlot, 0, 0)
		return Result{}, apperr.StoreFailure("failed to query stored signatures", err)
	}

	missing := diff(provided, stored)
	if len(missing) > 0 {
		logger.Warn("reconciliation found missing signatures", "wallet", wallet, "count", len(missing))
		if err := a.repair(ctx, wallet, provided, missing); err != nil {
			a.appendFailedAudit(ctx, wallet, fromSlot, toSlot, len(stored), 0)
			return Result{}, err
		}
		stored, err = a.store.GetRawSignaturesInSlotRange(ctx, fromSlot, toSlot)
		if err != nil {
			a.appendFailedAudit(ctx, wallet, fromSlot, toSlot, 0, 0)
			return Result{}, apperr.StoreFailure("failed to re-query stored signatures after repair", err)
		}
		missing = diff(provided, stored)
	}

	walletTxCount, err := a.store.CountWalletEventsInSlotRange(ctx, wallet, fromSlot, toSlot)
	if err != nil {
		a.appendFailedAudit(ctx, wallet, fromSlot, toSlot, len(stored), 0)
		return Result{}, apperr.StoreFailure("failed to count wallet events", err)
	}

	providedSigs := signaturesOf(provided)
	ok := len(missing) == 0 && hashSignatures(providedSigs) == hashSignatures(stored)
	hash := hashSignatures(stored)

	result := Result{
		Wallet: wallet, FromSlot: fromSlot, ToSlot: toSlot,
		CountRaw: len(stored), CountWalletTx: int(walletTxCount),
		MissingCount: len(missing), SignatureSetHash: hash, OK: ok,
	}

	if err := a.store.AppendReconcileAudit(ctx, model.ReconcileAudit{
		Wallet: wallet, FromSlot: fromSlot, ToSlot: toSlot,
		CountRaw: result.CountRaw, CountWalletTx: result.CountWalletTx,
		SignatureSetHash: hash, OK: ok,
	}); err != nil {
		return result, apperr.StoreFailure("failed to append reconcile audit", err)
	}
	metrics.ReconcileAudits.WithLabelValues(wallet, boolLabel(ok)).Inc()

	logger.Info("reconciliation complete", "wallet", wallet, "fromSlot", fromSlot, "toSlot", toSlot, "ok", ok)
	return result, nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// ReconcileRecentSlots implements spec.md section 4.3's reconcileRecentSlots:
// walk [verifiedSlot-windowSize, verifiedSlot] in 1000-slot chunks, pausing
// between chunks.
func (a *Auditor) ReconcileRecentSlots(ctx context.Context, wallet string, windowSize uint64) ([]Result, error) {
	const chunkSize = 1000

	state, ok, err := a.store.GetSyncState(ctx, wallet)
	if err != nil {
		return nil, apperr.StoreFailure("failed to load sync state", err)
	}
	if !ok || state.VerifiedSlot == nil {
		return nil, apperr.PreconditionFailed("reconcileRecentSlots requires a verified slot")
	}

	verified := *state.VerifiedSlot
	var from uint64
	if verified > windowSize {
		from = verified - windowSize
	}

	var results []Result
	for chunkStart := from; chunkStart <= verified; chunkStart += chunkSize {
		chunkEnd := chunkStart + chunkSize - 1
		if chunkEnd > verified {
			chunkEnd = verified
		}
		result, err := a.ReconcileSlotRange(ctx, wallet, chunkStart, chunkEnd)
		if err != nil {
			return results, err
		}
		results = append(results, result)

		if a.pause > 0 && chunkEnd < verified {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(a.pause):
			}
		}
	}
	return results, nil
}

// fetchSlotRange re-fetches pages from the provider, paging backward until a
// page's minimum slot falls below fromSlot, keeping only items in
// [fromSlot, toSlot].
func (a *Auditor) fetchSlotRange(ctx context.Context, wallet string, fromSlot, toSlot uint64) ([]provider.Transaction, error) {
	var kept []provider.Transaction
	before := ""
	for {
		page, err := a.provider.FetchTransactions(ctx, wallet, before, 1000)
		if err != nil {
			return nil, err
		}
		if len(page.Items) == 0 {
			break
		}
		minSlot := page.Items[0].Slot
		for _, tx := range page.Items {
			if tx.Slot < minSlot {
				minSlot = tx.Slot
			}
			if tx.Slot >= fromSlot && tx.Slot <= toSlot {
				kept = append(kept, tx)
			}
		}
		if minSlot < fromSlot || page.NextBefore == "" {
			break
		}
		before = page.NextBefore
	}
	return kept, nil
}

func (a *Auditor) repair(ctx context.Context, wallet string, provided []provider.Transaction, missing map[string]struct{}) error {
	bySig := make(map[string]provider.Transaction, len(provided))
	for _, tx := range provided {
		bySig[tx.Signature] = tx
	}
	for sig := range missing {
		tx, ok := bySig[sig]
		if !ok {
			continue
		}
		if err := a.ingester.IngestOne(ctx, wallet, tx); err != nil {
			return err
		}
	}
	return nil
}

func (a *Auditor) appendFailedAudit(ctx context.Context, wallet string, fromSlot, toSlot uint64, countRaw, countWalletTx int) {
	_ = a.store.AppendReconcileAudit(ctx, model.ReconcileAudit{
		Wallet: wallet, FromSlot: fromSlot, ToSlot: toSlot,
		CountRaw: countRaw, CountWalletTx: countWalletTx, OK: false,
	})
}

func diff(provided []provider.Transaction, stored []string) map[string]struct{} {
	storedSet := make(map[string]struct{}, len(stored))
	for _, sig := range stored {
		storedSet[sig] = struct{}{}
	}
	missing := make(map[string]struct{})
	for _, tx := range provided {
		if _, ok := storedSet[tx.Signature]; !ok {
			missing[tx.Signature] = struct{}{}
		}
	}
	return missing
}

func signaturesOf(txs []provider.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.Signature
	}
	return out
}

func hashSignatures(sigs []string) string {
	sorted := make([]string, len(sigs))
	copy(sorted, sigs)
	sort.Strings(sorted)
	h := sha256.New()
	for _, s := range sorted {
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}
