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

// Package metadata implements the Token Metadata Resolver described in
// spec.md section 6: batch(mints) never fails, trying a chain of upstream
// sources in order and caching results, falling back to a derived entry
// when every source misses.
package metadata

import (
	"context"
	"sync"

	"github.com/solwallet/indexer/internal/logging"
	"github.com/solwallet/indexer/internal/model"
	"github.com/solwallet/indexer/internal/ratelimit"
)

// Source looks up metadata for a batch of mints. It returns only the mints
// it was able to resolve; callers try the next Source for the rest.
type Source interface {
	Name() model.MetaSource
	Lookup(ctx context.Context, mints []string) (map[string]Entry, error)
}

// Entry is one resolved mint's metadata.
type Entry struct {
	Symbol   string
	Name     string
	Decimals int
	Source   model.MetaSource
}

// Store is the subset of the durable store the resolver needs for its
// cache.
type Store interface {
	GetTokenMetas(ctx context.Context, mints []string) (map[string]model.TokenMeta, error)
	UpsertTokenMeta(ctx context.Context, meta model.TokenMeta) error
}

// Resolver chains Sources in priority order behind a cache, matching the
// multi-DEX fallback dispatch the teacher's oracle.go uses to try Minswap,
// then Splash, then SundaeSwap in sequence for a price.
type Resolver struct {
	store   Store
	sources []Source
	queue   *ratelimit.Queue

	mu     sync.Mutex
	derive func(mint string) Entry
}

// New builds a Resolver. sources are tried in the given order; all calls to
// them are gated by queue, spec.md section 5's "separate rate-limited queue
// gates the Token Metadata Resolver".
func New(store Store, queue *ratelimit.Queue, sources ...Source) *Resolver {
	return &Resolver{
		store:   store,
		sources: sources,
		queue:   queue,
		derive:  derivedEntry,
	}
}

// derivedEntry is the guaranteed fallback: a short symbol from the mint
// itself, assuming the common 9-decimal SPL mint.
func derivedEntry(mint string) Entry {
	symbol := mint
	if len(symbol) > 8 {
		symbol = symbol[:4] + ".." + symbol[len(symbol)-4:]
	}
	return Entry{Symbol: symbol, Decimals: 9, Source: model.MetaSourceDerived}
}

// Batch resolves every mint in mints. It never fails: any mint no source
// could resolve gets a derived entry.
func (r *Resolver) Batch(ctx context.Context, mints []string) map[string]Entry {
	logger := logging.Component("metadata")
	result := make(map[string]Entry, len(mints))

	unique := dedupe(mints)
	if len(unique) == 0 {
		return result
	}

	cached, err := r.store.GetTokenMetas(ctx, unique)
	if err != nil {
		logger.Warn("token meta cache lookup failed", "error", err)
		cached = nil
	}

	remaining := make([]string, 0, len(unique))
	for _, mint := range unique {
		if meta, ok := cached[mint]; ok {
			result[mint] = Entry{Symbol: meta.Symbol, Name: meta.Name, Decimals: meta.Decimals, Source: meta.Source}
			continue
		}
		remaining = append(remaining, mint)
	}

	for _, src := range r.sources {
		if len(remaining) == 0 {
			break
		}
		var resolved map[string]Entry
		submitErr := r.queue.Submit(ctx, func(ctx context.Context) error {
			found, err := src.Lookup(ctx, remaining)
			resolved = found
			return err
		})
		if submitErr != nil {
			logger.Warn("metadata source lookup failed", "source", src.Name(), "error", submitErr)
			continue
		}
		stillRemaining := remaining[:0:0]
		for _, mint := range remaining {
			entry, ok := resolved[mint]
			if !ok {
				stillRemaining = append(stillRemaining, mint)
				continue
			}
			entry.Source = src.Name()
			result[mint] = entry
			r.persist(ctx, mint, entry)
		}
		remaining = stillRemaining
	}

	for _, mint := range remaining {
		entry := r.derive(mint)
		result[mint] = entry
		r.persist(ctx, mint, entry)
	}

	return result
}

func (r *Resolver) persist(ctx context.Context, mint string, entry Entry) {
	logger := logging.Component("metadata")
	meta := model.TokenMeta{
		Mint:     mint,
		Symbol:   entry.Symbol,
		Name:     entry.Name,
		Decimals: entry.Decimals,
		Source:   entry.Source,
	}
	if err := r.store.UpsertTokenMeta(ctx, meta); err != nil {
		logger.Warn("failed to cache token meta", "mint", mint, "error", err)
	}
}

func dedupe(mints []string) []string {
	seen := make(map[string]struct{}, len(mints))
	out := make([]string, 0, len(mints))
	for _, m := range mints {
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
