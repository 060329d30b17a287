// Copyright 2025 Blink Labs Software
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

// Package ingest implements the Ingestion Driver described in spec.md
// section 4.1: paginated backfill and incremental tail sync, with a
// durable per-wallet cursor and at-most-once-per-signature persistence.
package ingest

import (
	"context"
	"time"

	"github.com/solwallet/indexer/internal/apperr"
	"github.com/solwallet/indexer/internal/logging"
	"github.com/solwallet/indexer/internal/metrics"
	"github.com/solwallet/indexer/internal/model"
	"github.com/solwallet/indexer/internal/provider"
	"github.com/solwallet/indexer/internal/retry"
)

// Store is the subset of the durable store the driver needs.
type Store interface {
	GetSyncState(ctx context.Context, wallet string) (*model.SyncState, bool, error)
	UpsertSyncState(ctx context.Context, state model.SyncState) error
	UpsertRawTransaction(ctx context.Context, tx model.RawTransaction) error
	GetRawTransaction(ctx context.Context, signature string) (*model.RawTransaction, bool, error)
	UpsertWalletEvents(ctx context.Context, events []model.WalletEvent) error
}

// Normalizer is the subset of internal/normalizer.Normalizer the driver
// needs.
type Normalizer interface {
	NormalizeBatch(ctx context.Context, wallet string, txs []provider.Transaction) []model.WalletEvent
}

// Stats summarizes one backfill or syncTail run.
type Stats struct {
	PagesFetched int
	RawTxCount   int
	WalletTxCount int
	FirstSlot    uint64
	LastSlot     uint64
	RetryCount   int
	Elapsed      time.Duration
}

// Driver drives the provider, persists raw and normalized records, and
// advances a per-wallet cursor. Per spec.md section 5, ingestion for one
// wallet is single-threaded; concurrency across wallets is the caller's
// concern.
type Driver struct {
	store      Store
	provider   provider.Client
	normalizer Normalizer
	pageLimit  int
	maxPages   int
	retryPolicy retry.Policy
}

// New builds a Driver.
func New(store Store, client provider.Client, norm Normalizer, pageLimit, maxPages int, policy retry.Policy) *Driver {
	return &Driver{
		store: store, provider: client, normalizer: norm,
		pageLimit: pageLimit, maxPages: maxPages, retryPolicy: policy,
	}
}

// Backfill walks historical pages for wallet until the provider is
// exhausted, per spec.md section 4.1. maxPages, if > 0, overrides the
// driver's configured cap for this call.
func (d *Driver) Backfill(ctx context.Context, wallet string, maxPages int) (Stats, error) {
	logger := logging.Component("ingest")
	started := time.Now()

	if maxPages <= 0 {
		maxPages = d.maxPages
	}

	state, _, err := d.store.GetSyncState(ctx, wallet)
	if err != nil {
		return Stats{}, apperr.StoreFailure("failed to load sync state", err)
	}
	before := ""
	// verifiedSlot and fullScanAt are carried forward on every write below:
	// backfill never sets verifiedSlot (that's tail sync's field alone, per
	// spec.md section 3's SyncState lifecycle) and must not clobber it with
	// the zero value just because this call site doesn't populate it.
	var verifiedSlot *uint64
	var fullScanAt *time.Time
	if state != nil {
		if state.LastBefore != nil {
			before = *state.LastBefore
		}
		verifiedSlot = state.VerifiedSlot
		fullScanAt = state.FullScanAt
	}

	stats := Stats{}
	cursorHealedOnce := false
	completed := false

	for page := 0; page < maxPages; page++ {
		result, attempts, fetchErr := d.fetchPage(ctx, wallet, before)
		stats.RetryCount += attempts - 1

		if fetchErr != nil {
			if apperr.Is(fetchErr, apperr.CodeCursorPoisoned) {
				if cursorHealedOnce {
					return stats, apperr.UpstreamPermanent("provider rejected the cursor again after reset", fetchErr)
				}
				logger.Warn("cursor rejected by provider, clearing and retrying once", "wallet", wallet)
				cursorHealedOnce = true
				before = ""
				page--
				continue
			}
			return stats, fetchErr
		}

		if len(result.Items) == 0 {
			completed = true
			break
		}

		if err := d.persistPage(ctx, wallet, result.Items, &stats); err != nil {
			return stats, err
		}
		metrics.PagesFetched.WithLabelValues(wallet, "backfill").Inc()

		before = result.NextBefore
		if err := d.store.UpsertSyncState(ctx, model.SyncState{
			Wallet: wallet, LastBefore: nonEmpty(before), VerifiedSlot: verifiedSlot, FullScanAt: fullScanAt,
		}); err != nil {
			return stats, apperr.StoreFailure("failed to persist sync state", err)
		}

		if result.NextBefore == "" {
			completed = true
			break
		}
	}

	// lastBefore is cleared on completion (spec.md section 3): a full scan
	// reached the end of the provider's history, so there is no cursor left
	// to resume from. Hitting the maxPages cap is not completion — the
	// cursor is preserved so the next backfill call resumes where this one
	// stopped.
	finalBefore := nonEmpty(before)
	if completed {
		finalBefore = nil
	}
	now := time.Now()
	if err := d.store.UpsertSyncState(ctx, model.SyncState{
		Wallet: wallet, LastBefore: finalBefore, VerifiedSlot: verifiedSlot, FullScanAt: &now,
	}); err != nil {
		return stats, apperr.StoreFailure("failed to finalize sync state", err)
	}

	stats.Elapsed = time.Since(started)
	logger.Info("backfill complete", "wallet", wallet, "pagesFetched", stats.PagesFetched, "rawTxCount", stats.RawTxCount, "walletTxCount", stats.WalletTxCount)
	return stats, nil
}

// SyncTail fetches only the newest page and stops at the first signature
// already known, per spec.md section 4.1.
func (d *Driver) SyncTail(ctx context.Context, wallet string) (Stats, error) {
	logger := logging.Component("ingest")
	started := time.Now()

	state, ok, err := d.store.GetSyncState(ctx, wallet)
	if err != nil {
		return Stats{}, apperr.StoreFailure("failed to load sync state", err)
	}
	if !ok {
		return Stats{}, apperr.PreconditionFailed("run backfill first")
	}

	stats := Stats{}
	result, attempts, fetchErr := d.fetchPage(ctx, wallet, "")
	stats.RetryCount += attempts - 1
	if fetchErr != nil {
		return stats, fetchErr
	}

	var newItems []provider.Transaction
	for _, tx := range result.Items {
		_, exists, err := d.store.GetRawTransaction(ctx, tx.Signature)
		if err != nil {
			return stats, apperr.StoreFailure("failed to check existing raw transaction", err)
		}
		if exists {
			break
		}
		newItems = append(newItems, tx)
	}

	if len(newItems) > 0 {
		if err := d.persistPage(ctx, wallet, newItems, &stats); err != nil {
			return stats, err
		}
		metrics.PagesFetched.WithLabelValues(wallet, "tail").Inc()
	}

	newVerified := state.VerifiedSlot
	for _, tx := range newItems {
		if newVerified == nil || tx.Slot > *newVerified {
			slot := tx.Slot
			newVerified = &slot
		}
	}
	if err := d.store.UpsertSyncState(ctx, model.SyncState{
		Wallet: wallet, LastBefore: state.LastBefore, VerifiedSlot: newVerified, FullScanAt: state.FullScanAt,
	}); err != nil {
		return stats, apperr.StoreFailure("failed to persist sync state", err)
	}

	stats.Elapsed = time.Since(started)
	logger.Info("tail sync complete", "wallet", wallet, "rawTxCount", stats.RawTxCount, "walletTxCount", stats.WalletTxCount)
	return stats, nil
}

// fetchPage runs one rate-limited, retried provider call and reports how
// many attempts it took (1 means no retry).
func (d *Driver) fetchPage(ctx context.Context, wallet, before string) (*provider.Page, int, error) {
	var result *provider.Page
	attempts := 0
	started := time.Now()
	err := retry.Do(ctx, d.retryPolicy, func(ctx context.Context) error {
		attempts++
		p, err := d.provider.FetchTransactions(ctx, wallet, before, d.pageLimit)
		if err != nil {
			return err
		}
		result = p
		return nil
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ProviderCallDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	return result, attempts, err
}

func (d *Driver) persistPage(ctx context.Context, wallet string, txs []provider.Transaction, stats *Stats) error {
	for _, tx := range txs {
		payload := []byte(tx.Raw)
		if err := d.store.UpsertRawTransaction(ctx, model.RawTransaction{
			Signature: tx.Signature, Slot: tx.Slot, BlockTime: tx.Timestamp, Payload: payload,
		}); err != nil {
			return apperr.StoreFailure("failed to persist raw transaction", err)
		}
		metrics.RawTransactionsPersisted.WithLabelValues(wallet).Inc()
		stats.RawTxCount++
		if stats.FirstSlot == 0 || tx.Slot > stats.FirstSlot {
			stats.FirstSlot = tx.Slot
		}
		if stats.LastSlot == 0 || tx.Slot < stats.LastSlot {
			stats.LastSlot = tx.Slot
		}
	}

	events := d.normalizer.NormalizeBatch(ctx, wallet, txs)
	if err := d.store.UpsertWalletEvents(ctx, events); err != nil {
		return apperr.StoreFailure("failed to persist wallet events", err)
	}
	metrics.WalletEventsPersisted.WithLabelValues(wallet).Add(float64(len(events)))
	stats.WalletTxCount += len(events)
	stats.PagesFetched++
	return nil
}

// IngestOne persists and normalizes a single transaction outside the
// regular backfill/tail-sync cursor walk, used by the reconciliation
// auditor to repair one missing signature (spec.md section 4.3, step 4).
func (d *Driver) IngestOne(ctx context.Context, wallet string, tx provider.Transaction) error {
	stats := Stats{}
	return d.persistPage(ctx, wallet, []provider.Transaction{tx}, &stats)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
