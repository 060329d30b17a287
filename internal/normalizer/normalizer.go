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

// Package normalizer converts provider-shaped transactions into the
// canonical WalletEvent ledger, per spec.md section 4.2.
package normalizer

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/solwallet/indexer/internal/metadata"
	"github.com/solwallet/indexer/internal/model"
	"github.com/solwallet/indexer/internal/provider"
)

// MetadataResolver is the subset of internal/metadata.Resolver the
// normalizer needs.
type MetadataResolver interface {
	Batch(ctx context.Context, mints []string) map[string]metadata.Entry
}

// Normalizer turns one provider transaction into canonical WalletEvents for
// one wallet.
type Normalizer struct {
	resolver   MetadataResolver
	ammProgram map[string]struct{}
}

// New builds a Normalizer. ammAllowList is the configured set of AMM
// program identifiers used for swap detection (spec.md section 4.2, rule
// 3).
func New(resolver MetadataResolver, ammAllowList []string) *Normalizer {
	allow := make(map[string]struct{}, len(ammAllowList))
	for _, p := range ammAllowList {
		allow[p] = struct{}{}
	}
	return &Normalizer{resolver: resolver, ammProgram: allow}
}

// NormalizeBatch resolves metadata for every mint referenced across txs in
// one round trip, then normalizes each transaction for wallet. Order is
// preserved: the returned slice is in the same order as txs, each entry
// itself ordered by ascending Index.
func (n *Normalizer) NormalizeBatch(ctx context.Context, wallet string, txs []provider.Transaction) []model.WalletEvent {
	mints := n.collectMints(txs)
	metas := n.resolver.Batch(ctx, mints)

	var out []model.WalletEvent
	for _, tx := range txs {
		out = append(out, n.Normalize(wallet, tx, metas)...)
	}
	return out
}

func (n *Normalizer) collectMints(txs []provider.Transaction) []string {
	seen := make(map[string]struct{})
	var mints []string
	add := func(mint string) {
		if mint == "" {
			return
		}
		if _, ok := seen[mint]; ok {
			return
		}
		seen[mint] = struct{}{}
		mints = append(mints, mint)
	}
	for _, tx := range txs {
		for _, tt := range tx.TokenTransfers {
			add(tt.Mint)
		}
		if len(tx.NativeTransfers) > 0 {
			add(model.NativeMint)
		}
	}
	return mints
}

// Normalize applies spec.md section 4.2's rules to one transaction for one
// wallet. metas must already contain an entry for every mint this
// transaction references (see NormalizeBatch).
func (n *Normalizer) Normalize(wallet string, tx provider.Transaction, metas map[string]metadata.Entry) []model.WalletEvent {
	var events []model.WalletEvent

	// Rule 1: SPL token transfers.
	for _, tt := range tx.TokenTransfers {
		ev, ok := n.transferEvent(wallet, tt.Mint, tt.FromUserAccount, tt.ToUserAccount, tt.TokenAmount, metas)
		if ok {
			events = append(events, ev)
		}
	}

	// Rule 2: native transfers, same rule with the native mint.
	for _, nt := range tx.NativeTransfers {
		ev, ok := n.transferEvent(wallet, model.NativeMint, nt.FromUserAccount, nt.ToUserAccount, float64(nt.Amount), metas)
		if ok {
			events = append(events, ev)
		}
	}

	// Rule 3: swap detection and linking.
	if len(events) >= 2 && n.isSwap(tx) {
		linkID := "swap:" + tx.Signature
		events[len(events)-1].LinkID = linkID
		events[len(events)-2].LinkID = linkID
	}

	// Rule 4: fee attribution.
	if tx.Fee != nil && *tx.Fee > 0 && len(events) > 0 {
		target := 0
		for i, ev := range events {
			if ev.Side == model.SideSell {
				target = i
				break
			}
		}
		fee := *tx.Fee
		events[target].FeeBaseUnits = &fee
	}

	// Rule 5: dense ascending indices in emission order, plus shared
	// transaction-level fields.
	for i := range events {
		events[i].Wallet = wallet
		events[i].Signature = tx.Signature
		events[i].Index = i
		events[i].Slot = tx.Slot
		events[i].BlockTime = tx.Timestamp
	}

	return events
}

func (n *Normalizer) transferEvent(wallet, mint, from, to string, amount float64, metas map[string]metadata.Entry) (model.WalletEvent, bool) {
	meta := metas[mint]
	ui := decimal.NewFromFloat(amount)

	switch {
	case from == wallet && to != wallet:
		return model.WalletEvent{
			Side: model.SideSell, Direction: model.DirectionOut,
			TokenMint: mint, TokenSymbol: meta.Symbol, TokenDecimals: meta.Decimals,
			AmountRaw: formatAmount(-amount), AmountUi: ui.Neg(),
		}, true
	case to == wallet && from != wallet:
		return model.WalletEvent{
			Side: model.SideBuy, Direction: model.DirectionIn,
			TokenMint: mint, TokenSymbol: meta.Symbol, TokenDecimals: meta.Decimals,
			AmountRaw: formatAmount(amount), AmountUi: ui,
		}, true
	default:
		return model.WalletEvent{}, false
	}
}

// isSwap classifies tx per spec.md section 4.2, rule 3.
func (n *Normalizer) isSwap(tx provider.Transaction) bool {
	if tx.Events != nil && len(tx.Events.Swap) > 0 {
		return true
	}
	for _, instr := range tx.Instructions {
		if _, ok := n.ammProgram[instr.ProgramId]; ok {
			return true
		}
	}
	distinctMints := make(map[string]struct{})
	for _, tt := range tx.TokenTransfers {
		distinctMints[tt.Mint] = struct{}{}
	}
	return len(distinctMints) >= 2 && len(tx.TokenTransfers) >= 2
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}
