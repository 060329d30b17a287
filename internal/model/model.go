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

// Package model defines the entities described in spec.md section 3:
// RawTransaction, WalletEvent, SyncState, ReconcileAudit, TokenMeta, and
// Candle, plus the in-memory Lot the reconstructor builds per run.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side classifies a WalletEvent's economic role.
type Side string

const (
	SideBuy      Side = "BUY"
	SideSell     Side = "SELL"
	SideSwap     Side = "SWAP"
	SideTransfer Side = "TRANSFER"
	SideMint     Side = "MINT"
	SideBurn     Side = "BURN"
	SideWrap     Side = "WRAP"
	SideUnwrap   Side = "UNWRAP"
	SideUnknown  Side = "UNKNOWN"
)

// Direction is the flow of funds relative to the wallet being indexed.
type Direction string

const (
	DirectionIn   Direction = "IN"
	DirectionOut  Direction = "OUT"
	DirectionSelf Direction = "SELF"
	DirectionNA   Direction = "N/A"
)

// NativeMint and NativeDecimals identify SOL itself, which never appears
// in tokenTransfers but is handled by the same normalization rule.
const (
	NativeMint     = "So11111111111111111111111111111111111111112"
	NativeDecimals = 9
)

// RawTransaction is the opaque provider payload, persisted verbatim and
// keyed by signature (spec.md section 3).
type RawTransaction struct {
	Signature string `gorm:"primaryKey"`
	Slot      uint64 `gorm:"index"`
	BlockTime *int64
	// Payload is the provider's JSON transaction, preserved byte-for-byte
	// so unknown fields survive for later reprocessing (spec.md section 9,
	// "dynamic payloads -> tagged unions").
	Payload   []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (RawTransaction) TableName() string { return "raw_transactions" }

// WalletEvent is one canonical ledger entry derived from a RawTransaction
// for a specific wallet, deduplicated by (wallet, signature, index).
type WalletEvent struct {
	Wallet    string `gorm:"primaryKey;index:idx_wallet_event_wallet_slot,priority:1"`
	Signature string `gorm:"primaryKey"`
	Index     int    `gorm:"primaryKey"`

	Slot      uint64 `gorm:"index:idx_wallet_event_wallet_slot,priority:2"`
	BlockTime *int64

	Program   string
	Side      Side
	Direction Direction

	TokenMint     string
	TokenSymbol   string
	TokenDecimals int

	// AmountRaw is the provider-reported base-unit/decimal-adjusted string
	// (spec.md section 9 pins the "stored verbatim" interpretation).
	AmountRaw string
	AmountUi  decimal.Decimal `gorm:"type:text"`

	AmountUsd    *decimal.Decimal `gorm:"type:text"`
	PriceUsdAtTx *decimal.Decimal `gorm:"type:text"`

	LinkID       string
	FeeBaseUnits *int64

	// Metadata is free-form, opaque text (spec.md section 4.2).
	Metadata string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (WalletEvent) TableName() string { return "wallet_events" }

// SyncState tracks one wallet's backfill/tail-sync progress.
type SyncState struct {
	Wallet      string `gorm:"primaryKey"`
	LastBefore  *string
	VerifiedSlot *uint64
	FullScanAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (SyncState) TableName() string { return "sync_states" }

// ReconcileAudit is an append-only record of one reconciliation run.
type ReconcileAudit struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement"`
	Wallet           string `gorm:"index"`
	FromSlot         uint64
	ToSlot           uint64
	CountRaw         int
	CountWalletTx    int
	SignatureSetHash string
	OK               bool
	CreatedAt        time.Time
}

func (ReconcileAudit) TableName() string { return "reconcile_audits" }

// MetaSource identifies where a TokenMeta entry's data came from.
type MetaSource string

const (
	MetaSourceLocal     MetaSource = "local"
	MetaSourceResolverA MetaSource = "resolver-A"
	MetaSourceResolverB MetaSource = "resolver-B"
	MetaSourceResolverC MetaSource = "resolver-C"
	MetaSourceDerived   MetaSource = "derived"
)

// TokenMeta caches a mint's symbol/decimals.
type TokenMeta struct {
	Mint      string `gorm:"primaryKey"`
	Symbol    string
	Name      string
	Decimals  int
	Source    MetaSource
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TokenMeta) TableName() string { return "token_metas" }

// Resolution is a candle bucket width.
type Resolution string

const (
	Resolution1m Resolution = "1m"
	Resolution5m Resolution = "5m"
	Resolution1h Resolution = "1h"
	Resolution1d Resolution = "1d"
)

// Candle is one OHLC bucket for a mint at a resolution, cached on demand.
type Candle struct {
	Mint       string     `gorm:"primaryKey;index:idx_candle_mint_res_t,priority:1"`
	Resolution Resolution `gorm:"primaryKey;index:idx_candle_mint_res_t,priority:2"`
	T          int64      `gorm:"primaryKey;index:idx_candle_mint_res_t,priority:3"`
	Open       float64
	High       float64
	Low        float64
	Close      float64
}

func (Candle) TableName() string { return "candles" }

// MatchedSell is one FIFO match recorded against a Lot.
type MatchedSell struct {
	Time        time.Time
	Qty         decimal.Decimal
	ProceedsUsd decimal.Decimal
}

// Lot is a single BUY's unconsumed quantity, matched against later SELLs in
// FIFO order. Lots are owned by the reconstructor's execution scope and are
// never persisted (spec.md section 3).
type Lot struct {
	TokenMint string
	Signature string
	BuyTime   time.Time

	BuyQty     decimal.Decimal
	BuyCostUsd *decimal.Decimal

	RemainingQty decimal.Decimal
	MatchedSells []MatchedSell

	RealizedUsd decimal.Decimal

	PeakTimestamp    *time.Time
	PeakPriceUsd     *decimal.Decimal
	PeakPotentialUsd decimal.Decimal
	RegretGapUsd     decimal.Decimal
}
