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

// Package oracle implements the Price Oracle described in spec.md section
// 6: getCandles and getCurrentPriceUsd, backed by a selectable upstream
// (oracle-A or oracle-B) with candle results cached in the durable store.
package oracle

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/solwallet/indexer/internal/config"
	"github.com/solwallet/indexer/internal/logging"
	"github.com/solwallet/indexer/internal/model"
)

// Candle is one OHLC bucket, Unix-seconds timestamped.
type Candle struct {
	T    int64
	Open float64
	High float64
	Low  float64
	Close float64
}

// Oracle answers price questions for a mint. Implementations never fail the
// caller outright; spec.md section 7 classifies lookup misses as
// OracleUnknown and requires callers to substitute null/0, not abort.
type Oracle interface {
	GetCandles(ctx context.Context, mint string, start, end int64, resolution model.Resolution) ([]Candle, error)
	GetCurrentPriceUsd(ctx context.Context, mint string) (*decimal.Decimal, error)
}

// Backend is an upstream price source, selected by PRICE_PROVIDER.
type Backend interface {
	Name() string
	FetchCandles(ctx context.Context, mint string, start, end int64, resolution model.Resolution) ([]Candle, error)
	FetchCurrentPriceUsd(ctx context.Context, mint string) (*decimal.Decimal, error)
}

// Store is the subset of the durable store the oracle needs for its candle
// cache.
type Store interface {
	GetCandles(ctx context.Context, mint string, resolution model.Resolution, start, end int64) ([]model.Candle, error)
	UpsertCandles(ctx context.Context, candles []model.Candle) error
}

// CachingOracle wraps a Backend with a candle cache in the durable store,
// per spec.md section 6 ("Implementations may cache results in the Durable
// Store's Candle table").
type CachingOracle struct {
	backend Backend
	store   Store
}

// New selects a Backend by name ("oracle-a" or "oracle-b") and wraps it
// with caching.
func New(store Store, backends ...Backend) (*CachingOracle, error) {
	cfg := config.GetConfig().Price
	for _, b := range backends {
		if b.Name() == cfg.Provider {
			return &CachingOracle{backend: b, store: store}, nil
		}
	}
	return nil, fmt.Errorf("unknown price provider: %s", cfg.Provider)
}

func (o *CachingOracle) GetCandles(ctx context.Context, mint string, start, end int64, resolution model.Resolution) ([]Candle, error) {
	logger := logging.Component("oracle")

	cached, err := o.store.GetCandles(ctx, mint, resolution, start, end)
	if err == nil && coversWindow(cached, start, end, resolution) {
		return toCandles(cached), nil
	}
	if err != nil {
		logger.Warn("candle cache lookup failed", "mint", mint, "error", err)
	}

	fetched, err := o.backend.FetchCandles(ctx, mint, start, end, resolution)
	if err != nil {
		logger.Warn("candle fetch failed, treating as oracle-unknown", "mint", mint, "error", err)
		return nil, nil
	}
	if len(fetched) == 0 {
		return nil, nil
	}

	rows := make([]model.Candle, 0, len(fetched))
	for _, c := range fetched {
		rows = append(rows, model.Candle{
			Mint: mint, Resolution: resolution, T: c.T,
			Open: c.Open, High: c.High, Low: c.Low, Close: c.Close,
		})
	}
	if err := o.store.UpsertCandles(ctx, rows); err != nil {
		logger.Warn("failed to cache candles", "mint", mint, "error", err)
	}
	return fetched, nil
}

func (o *CachingOracle) GetCurrentPriceUsd(ctx context.Context, mint string) (*decimal.Decimal, error) {
	logger := logging.Component("oracle")
	price, err := o.backend.FetchCurrentPriceUsd(ctx, mint)
	if err != nil {
		logger.Warn("current price fetch failed, treating as oracle-unknown", "mint", mint, "error", err)
		return nil, nil
	}
	return price, nil
}

// coversWindow is a conservative check: the cache is considered a hit only
// when it already has a candle at or before start and one at or after end.
func coversWindow(cached []model.Candle, start, end int64, _ model.Resolution) bool {
	if len(cached) == 0 {
		return false
	}
	minT, maxT := cached[0].T, cached[0].T
	for _, c := range cached {
		if c.T < minT {
			minT = c.T
		}
		if c.T > maxT {
			maxT = c.T
		}
	}
	return minT <= start && maxT >= end
}

func toCandles(rows []model.Candle) []Candle {
	out := make([]Candle, 0, len(rows))
	for _, r := range rows {
		out = append(out, Candle{T: r.T, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close})
	}
	return out
}

// ResolutionForWindow picks 1h for windows of 60 days or less, else 1d, per
// spec.md section 4.4.
func ResolutionForWindow(start, end int64) model.Resolution {
	const sixtyDays = 60 * 24 * 60 * 60
	if end-start <= sixtyDays {
		return model.Resolution1h
	}
	return model.Resolution1d
}

// bucketSeconds returns the width of one candle at the given resolution.
func bucketSeconds(r model.Resolution) int64 {
	switch r {
	case model.Resolution1m:
		return 60
	case model.Resolution5m:
		return 5 * 60
	case model.Resolution1h:
		return 60 * 60
	case model.Resolution1d:
		return 24 * 60 * 60
	default:
		return 60 * 60
	}
}
