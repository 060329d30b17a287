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

// Package reconstruct implements the Position Reconstructor described in
// spec.md section 4.4: per-token FIFO lot matching and peak-potential /
// regret-gap metrics, computed from the canonical wallet event ledger.
package reconstruct

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solwallet/indexer/internal/logging"
	"github.com/solwallet/indexer/internal/metrics"
	"github.com/solwallet/indexer/internal/model"
	"github.com/solwallet/indexer/internal/money"
	"github.com/solwallet/indexer/internal/oracle"
)

// lotEpsilon is the tolerance below which a lot's remainingQty is treated
// as fully consumed (spec.md section 8's "± 10⁻⁶").
var lotEpsilon = decimal.New(1, -6)

// Oracle is the subset of internal/oracle.Oracle the reconstructor needs.
type Oracle interface {
	GetCandles(ctx context.Context, mint string, start, end int64, resolution model.Resolution) ([]oracle.Candle, error)
	GetCurrentPriceUsd(ctx context.Context, mint string) (*decimal.Decimal, error)
}

// TokenPosition aggregates every lot opened for one mint.
type TokenPosition struct {
	Mint             string
	Lots             []model.Lot
	RealizedUsd      decimal.Decimal
	PeakPotentialUsd decimal.Decimal
	RegretGapUsd     decimal.Decimal
	OpenPositionUsd  decimal.Decimal
}

// Portfolio is the reconstructor's output for one wallet.
type Portfolio struct {
	Wallet           string
	Tokens           map[string]*TokenPosition
	OpenPositionsUsd decimal.Decimal
}

// Reconstructor turns an ordered event ledger into FIFO lots and derived
// metrics.
type Reconstructor struct {
	priceOracle Oracle
	nativeMint  string
}

// New builds a Reconstructor. nativeMint is the mint used to convert a
// transaction's feeBaseUnits to USD (spec.md section 4.4, SELL step).
func New(priceOracle Oracle, nativeMint string) *Reconstructor {
	return &Reconstructor{priceOracle: priceOracle, nativeMint: nativeMint}
}

// Reconstruct computes per-token FIFO lots for wallet from events, which
// must already be ordered ascending by (blockTime, index). currentPrices
// maps mint -> USD and may be nil; a missing entry is treated as 0, per
// spec.md section 4.4.
func (r *Reconstructor) Reconstruct(ctx context.Context, wallet string, events []model.WalletEvent, currentPrices map[string]decimal.Decimal) Portfolio {
	logger := logging.Component("reconstruct")
	started := time.Now()
	defer func() {
		metrics.ReconstructDuration.WithLabelValues(wallet).Observe(time.Since(started).Seconds())
	}()

	byMint := make(map[string][]model.WalletEvent)
	for _, ev := range events {
		if ev.Side != model.SideBuy && ev.Side != model.SideSell {
			continue
		}
		byMint[ev.TokenMint] = append(byMint[ev.TokenMint], ev)
	}

	portfolio := Portfolio{Wallet: wallet, Tokens: make(map[string]*TokenPosition)}
	for mint, mintEvents := range byMint {
		currentPrice := currentPrices[mint]
		pos := r.reconstructToken(ctx, mint, mintEvents, currentPrice)
		portfolio.Tokens[mint] = pos
		portfolio.OpenPositionsUsd = portfolio.OpenPositionsUsd.Add(pos.OpenPositionUsd)
	}

	logger.Info("reconstruction complete", "wallet", wallet, "tokens", len(portfolio.Tokens))
	return portfolio
}

// reconstructToken runs the FIFO match described in spec.md section 4.4 for
// a single mint's BUY/SELL events, then derives peak-potential and
// regret-gap metrics per lot.
func (r *Reconstructor) reconstructToken(ctx context.Context, mint string, events []model.WalletEvent, currentPrice decimal.Decimal) *TokenPosition {
	var allLots []*model.Lot
	var openQueue []*model.Lot

	for _, ev := range events {
		qty := ev.AmountUi.Abs()
		ts := blockTime(ev)

		switch ev.Side {
		case model.SideBuy:
			lot := &model.Lot{
				TokenMint:    mint,
				Signature:    ev.Signature,
				BuyTime:      ts,
				BuyQty:       qty,
				BuyCostUsd:   r.priceAt(ctx, mint, ts),
				RemainingQty: qty,
			}
			allLots = append(allLots, lot)
			openQueue = append(openQueue, lot)

		case model.SideSell:
			need := qty
			sellPrice := r.priceAtOrZero(ctx, mint, ts)
			fee := r.feeUsd(ctx, ev, ts)

			for need.GreaterThan(decimal.Zero) && len(openQueue) > 0 {
				lot := openQueue[0]
				take := decimal.Min(need, lot.RemainingQty)

				proceeds := take.Mul(sellPrice).Sub(fee)
				fee = decimal.Zero // charged once, against the first matched lot

				lot.MatchedSells = append(lot.MatchedSells, model.MatchedSell{
					Time: ts, Qty: take, ProceedsUsd: proceeds,
				})
				lot.RemainingQty = lot.RemainingQty.Sub(take)
				need = need.Sub(take)

				if lot.RemainingQty.LessThanOrEqual(lotEpsilon) {
					openQueue = openQueue[1:]
				}
			}
			// SELLs that can't be fully matched are silently dropped
			// (spec.md section 4.4); `need` may remain positive here.
		}
	}

	pos := &TokenPosition{Mint: mint}
	for _, lot := range allLots {
		r.finalizeLot(ctx, lot, currentPrice)
		pos.Lots = append(pos.Lots, *lot)
		pos.RealizedUsd = pos.RealizedUsd.Add(lot.RealizedUsd)
		pos.PeakPotentialUsd = pos.PeakPotentialUsd.Add(lot.PeakPotentialUsd)
		pos.RegretGapUsd = pos.RegretGapUsd.Add(lot.RegretGapUsd)
		if lot.RemainingQty.GreaterThan(decimal.Zero) {
			pos.OpenPositionUsd = pos.OpenPositionUsd.Add(lot.RemainingQty.Mul(currentPrice))
		}
	}
	return pos
}

// finalizeLot computes realizedUsd, peak-potential, and regret-gap for one
// fully-processed lot, per spec.md section 4.4 step 3.
func (r *Reconstructor) finalizeLot(ctx context.Context, lot *model.Lot, currentPrice decimal.Decimal) {
	for _, sell := range lot.MatchedSells {
		lot.RealizedUsd = lot.RealizedUsd.Add(sell.ProceedsUsd)
	}

	endTime := time.Now().UTC()
	if n := len(lot.MatchedSells); n > 0 {
		endTime = lot.MatchedSells[n-1].Time
	}

	resolution := oracle.ResolutionForWindow(lot.BuyTime.Unix(), endTime.Unix())
	candles, err := r.priceOracle.GetCandles(ctx, lot.TokenMint, lot.BuyTime.Unix(), endTime.Unix(), resolution)
	if err != nil || len(candles) == 0 {
		lot.PeakPotentialUsd = lot.RealizedUsd
		lot.RegretGapUsd = decimal.Zero
		return
	}

	peak := candles[0]
	for _, c := range candles {
		if c.High > peak.High {
			peak = c
		}
	}
	peakTime := time.Unix(peak.T, 0).UTC()
	peakPrice := decimal.NewFromFloat(peak.High)
	lot.PeakTimestamp = &peakTime
	lot.PeakPriceUsd = &peakPrice
	lot.PeakPotentialUsd = lot.BuyQty.Mul(peakPrice)

	if lot.RemainingQty.GreaterThan(decimal.Zero) {
		currentValue := lot.RemainingQty.Mul(currentPrice)
		lot.RegretGapUsd = money.MaxZero(lot.PeakPotentialUsd.Sub(lot.RealizedUsd.Add(currentValue)))
	} else {
		lot.RegretGapUsd = money.MaxZero(lot.PeakPotentialUsd.Sub(lot.RealizedUsd))
	}
}

func blockTime(ev model.WalletEvent) time.Time {
	if ev.BlockTime == nil {
		return time.Time{}
	}
	return time.Unix(*ev.BlockTime, 0).UTC()
}

// priceAt returns the closest known candle close to ts, or nil if the
// oracle has nothing for that window (spec.md section 7, OracleUnknown).
func (r *Reconstructor) priceAt(ctx context.Context, mint string, ts time.Time) *decimal.Decimal {
	resolution := oracle.ResolutionForWindow(ts.Unix(), ts.Unix())
	candles, err := r.priceOracle.GetCandles(ctx, mint, ts.Unix()-3600, ts.Unix()+3600, resolution)
	if err != nil || len(candles) == 0 {
		return nil
	}
	closest := candles[0]
	for _, c := range candles {
		if abs64(c.T-ts.Unix()) < abs64(closest.T-ts.Unix()) {
			closest = c
		}
	}
	price := decimal.NewFromFloat(closest.Close)
	return &price
}

func (r *Reconstructor) priceAtOrZero(ctx context.Context, mint string, ts time.Time) decimal.Decimal {
	if p := r.priceAt(ctx, mint, ts); p != nil {
		return *p
	}
	return decimal.Zero
}

func (r *Reconstructor) feeUsd(ctx context.Context, ev model.WalletEvent, ts time.Time) decimal.Decimal {
	if ev.FeeBaseUnits == nil {
		return decimal.Zero
	}
	nativePrice := r.priceAtOrZero(ctx, r.nativeMint, ts)
	feeNative := decimal.NewFromInt(*ev.FeeBaseUnits).Div(decimal.New(1, model.NativeDecimals))
	return feeNative.Mul(nativePrice)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
