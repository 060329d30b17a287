package metadata

import (
	"context"
	"testing"

	"github.com/solwallet/indexer/internal/model"
	"github.com/solwallet/indexer/internal/ratelimit"
)

type fakeStore struct {
	metas map[string]model.TokenMeta
}

func newFakeStore() *fakeStore {
	return &fakeStore{metas: make(map[string]model.TokenMeta)}
}

func (f *fakeStore) GetTokenMetas(_ context.Context, mints []string) (map[string]model.TokenMeta, error) {
	out := make(map[string]model.TokenMeta)
	for _, m := range mints {
		if meta, ok := f.metas[m]; ok {
			out[m] = meta
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertTokenMeta(_ context.Context, meta model.TokenMeta) error {
	f.metas[meta.Mint] = meta
	return nil
}

type fakeSource struct {
	name  model.MetaSource
	found map[string]Entry
}

func (s *fakeSource) Name() model.MetaSource { return s.name }

func (s *fakeSource) Lookup(_ context.Context, mints []string) (map[string]Entry, error) {
	found := make(map[string]Entry)
	for _, m := range mints {
		if e, ok := s.found[m]; ok {
			found[m] = e
		}
	}
	return found, nil
}

func TestBatchNeverFails(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{name: "resolver-A", found: map[string]Entry{
		"mintA": {Symbol: "AAA", Decimals: 6},
	}}
	r := New(store, ratelimit.New(4, 100), source)

	results := r.Batch(context.Background(), []string{"mintA", "mintB"})

	if len(results) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(results))
	}
	if results["mintA"].Source != "resolver-A" {
		t.Errorf("expected mintA resolved by resolver-A, got %q", results["mintA"].Source)
	}
	if results["mintB"].Source != model.MetaSourceDerived {
		t.Errorf("expected mintB to fall back to derived, got %q", results["mintB"].Source)
	}
	if results["mintB"].Decimals != 9 {
		t.Errorf("expected derived decimals 9, got %d", results["mintB"].Decimals)
	}
}

func TestBatchUsesCacheBeforeSources(t *testing.T) {
	store := newFakeStore()
	store.metas["mintA"] = model.TokenMeta{Mint: "mintA", Symbol: "CACHED", Decimals: 4, Source: model.MetaSourceResolverB}
	source := &fakeSource{name: "resolver-A", found: map[string]Entry{
		"mintA": {Symbol: "SHOULD_NOT_BE_USED", Decimals: 6},
	}}
	r := New(store, ratelimit.New(4, 100), source)

	results := r.Batch(context.Background(), []string{"mintA"})

	if results["mintA"].Symbol != "CACHED" {
		t.Errorf("expected cached entry to win, got %q", results["mintA"].Symbol)
	}
}

func TestBatchFallsThroughSourceChain(t *testing.T) {
	store := newFakeStore()
	sourceA := &fakeSource{name: "resolver-A", found: map[string]Entry{}}
	sourceB := &fakeSource{name: "resolver-B", found: map[string]Entry{
		"mintA": {Symbol: "FROM_B", Decimals: 2},
	}}
	r := New(store, ratelimit.New(4, 100), sourceA, sourceB)

	results := r.Batch(context.Background(), []string{"mintA"})

	if results["mintA"].Source != "resolver-B" {
		t.Errorf("expected resolver-B to resolve mintA after resolver-A missed, got %q", results["mintA"].Source)
	}
}

func TestBatchEmptyInput(t *testing.T) {
	store := newFakeStore()
	r := New(store, ratelimit.New(4, 100))
	results := r.Batch(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("expected no entries for empty input, got %d", len(results))
	}
}
