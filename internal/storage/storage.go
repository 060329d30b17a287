// Copyright 2023 Blink Labs Software
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

// Package storage implements the Durable Store described in spec.md
// sections 3 and 6: RawTransaction, WalletEvent, SyncState, ReconcileAudit,
// TokenMeta, and Candle, all mutated by upsert on a documented unique key.
package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/solwallet/indexer/internal/config"
	"github.com/solwallet/indexer/internal/model"
)

// Storage is the gorm-backed durable store. The teacher's badger-based
// Storage held one process-wide *badger.DB behind a package-level
// singleton; this keeps that shape but swaps the engine, since spec.md
// section 3's required composite indexes (WalletEvent by (wallet, slot),
// Candle by (mint, resolution, t)) need a relational engine, not a
// key-value one.
type Storage struct {
	db *gorm.DB
}

var globalStorage = &Storage{}

// Load opens the configured sqlite database and migrates every table the
// durable store owns.
func (s *Storage) Load() error {
	cfg := config.GetConfig()
	dsn := cfg.Storage.DSN
	if dsn == "" {
		dsn = filepath.Join(cfg.Storage.Directory, "walletindexer.db")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	if err := migrate(db); err != nil {
		return fmt.Errorf("failed to migrate store: %w", err)
	}
	s.db = db
	return nil
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.RawTransaction{},
		&model.WalletEvent{},
		&model.SyncState{},
		&model.ReconcileAudit{},
		&model.TokenMeta{},
		&model.Candle{},
	)
}

// GetStorage returns the process-wide store instance.
func GetStorage() *Storage {
	return globalStorage
}

// Open opens a store at dsn directly, migrating its schema. Used by tests
// that want an isolated database instead of the process-wide singleton
// (":memory:" for tests); cmd/walletindexer uses GetStorage().Load().
func Open(dsn string) (*Storage, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}
	return &Storage{db: db}, nil
}

// --- RawTransaction ---

func (s *Storage) UpsertRawTransaction(ctx context.Context, tx model.RawTransaction) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "signature"}},
		DoUpdates: clause.AssignmentColumns([]string{"slot", "block_time", "payload", "updated_at"}),
	}).Create(&tx).Error
}

func (s *Storage) GetRawTransaction(ctx context.Context, signature string) (*model.RawTransaction, bool, error) {
	var tx model.RawTransaction
	err := s.db.WithContext(ctx).Where("signature = ?", signature).First(&tx).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &tx, true, nil
}

// GetRawSignaturesInSlotRange returns the signatures stored for slots in
// [fromSlot, toSlot], used by the reconciliation auditor.
func (s *Storage) GetRawSignaturesInSlotRange(ctx context.Context, fromSlot, toSlot uint64) ([]string, error) {
	var signatures []string
	err := s.db.WithContext(ctx).
		Model(&model.RawTransaction{}).
		Where("slot BETWEEN ? AND ?", fromSlot, toSlot).
		Pluck("signature", &signatures).Error
	return signatures, err
}

// --- WalletEvent ---

func (s *Storage) UpsertWalletEvents(ctx context.Context, events []model.WalletEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "wallet"}, {Name: "signature"}, {Name: "index"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"block_time", "program", "side", "direction",
			"token_mint", "token_symbol", "token_decimals",
			"amount_raw", "amount_ui", "amount_usd", "price_usd_at_tx",
			"link_id", "fee_base_units", "metadata", "updated_at",
		}),
	}).Create(&events).Error
}

// CountWalletEventsInSlotRange counts wallet events for wallet with slot in
// [fromSlot, toSlot].
func (s *Storage) CountWalletEventsInSlotRange(ctx context.Context, wallet string, fromSlot, toSlot uint64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.WalletEvent{}).
		Where("wallet = ? AND slot BETWEEN ? AND ?", wallet, fromSlot, toSlot).
		Count(&count).Error
	return count, err
}

// GetWalletEventsOrdered returns every event for wallet, ordered by
// (blockTime, index) ascending, the order spec.md section 4.4 requires for
// reconstruction.
func (s *Storage) GetWalletEventsOrdered(ctx context.Context, wallet string) ([]model.WalletEvent, error) {
	var events []model.WalletEvent
	err := s.db.WithContext(ctx).
		Where("wallet = ?", wallet).
		Order("block_time ASC, \"index\" ASC").
		Find(&events).Error
	return events, err
}

// --- SyncState ---

func (s *Storage) GetSyncState(ctx context.Context, wallet string) (*model.SyncState, bool, error) {
	var state model.SyncState
	err := s.db.WithContext(ctx).Where("wallet = ?", wallet).First(&state).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &state, true, nil
}

func (s *Storage) UpsertSyncState(ctx context.Context, state model.SyncState) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wallet"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_before", "verified_slot", "full_scan_at", "updated_at"}),
	}).Create(&state).Error
}

// --- ReconcileAudit ---

func (s *Storage) AppendReconcileAudit(ctx context.Context, audit model.ReconcileAudit) error {
	return s.db.WithContext(ctx).Create(&audit).Error
}

// --- TokenMeta ---

func (s *Storage) GetTokenMetas(ctx context.Context, mints []string) (map[string]model.TokenMeta, error) {
	if len(mints) == 0 {
		return map[string]model.TokenMeta{}, nil
	}
	var rows []model.TokenMeta
	if err := s.db.WithContext(ctx).Where("mint IN ?", mints).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]model.TokenMeta, len(rows))
	for _, r := range rows {
		out[r.Mint] = r
	}
	return out, nil
}

func (s *Storage) UpsertTokenMeta(ctx context.Context, meta model.TokenMeta) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mint"}},
		DoUpdates: clause.AssignmentColumns([]string{"symbol", "name", "decimals", "source", "updated_at"}),
	}).Create(&meta).Error
}

// --- Candle ---

func (s *Storage) GetCandles(ctx context.Context, mint string, resolution model.Resolution, start, end int64) ([]model.Candle, error) {
	var rows []model.Candle
	err := s.db.WithContext(ctx).
		Where("mint = ? AND resolution = ? AND t BETWEEN ? AND ?", mint, resolution, start, end).
		Order("t ASC").
		Find(&rows).Error
	return rows, err
}

func (s *Storage) UpsertCandles(ctx context.Context, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "mint"}, {Name: "resolution"}, {Name: "t"}},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close"}),
	}).Create(&candles).Error
}
