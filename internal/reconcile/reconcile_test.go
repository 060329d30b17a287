package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/solwallet/indexer/internal/model"
	"github.com/solwallet/indexer/internal/provider"
)

type fakeStore struct {
	states  map[string]model.SyncState
	raw     map[string][]string // slot-range bucket keyed by wallet, flattened signatures
	audits  []model.ReconcileAudit
	eventCt int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{states: map[string]model.SyncState{}, raw: map[string][]string{}}
}

func (f *fakeStore) GetSyncState(_ context.Context, wallet string) (*model.SyncState, bool, error) {
	s, ok := f.states[wallet]
	if !ok {
		return nil, false, nil
	}
	return &s, true, nil
}

func (f *fakeStore) GetRawSignaturesInSlotRange(_ context.Context, fromSlot, toSlot uint64) ([]string, error) {
	return f.raw["wallet1"], nil
}

func (f *fakeStore) CountWalletEventsInSlotRange(_ context.Context, wallet string, fromSlot, toSlot uint64) (int64, error) {
	return f.eventCt, nil
}

func (f *fakeStore) AppendReconcileAudit(_ context.Context, audit model.ReconcileAudit) error {
	f.audits = append(f.audits, audit)
	return nil
}

type fakeProvider struct {
	items []provider.Transaction
}

func (f *fakeProvider) FetchTransactions(_ context.Context, _ string, before string, _ int) (*provider.Page, error) {
	if before != "" {
		return &provider.Page{}, nil
	}
	return &provider.Page{Items: f.items}, nil
}

type fakeIngester struct {
	ingested []string
	store    *fakeStore
}

func (f *fakeIngester) IngestOne(_ context.Context, wallet string, tx provider.Transaction) error {
	f.ingested = append(f.ingested, tx.Signature)
	f.store.raw[wallet] = append(f.store.raw[wallet], tx.Signature)
	return nil
}

func TestReconcileSlotRangeNoMissing(t *testing.T) {
	store := newFakeStore()
	store.raw["wallet1"] = []string{"sig1", "sig2"}
	prov := &fakeProvider{items: []provider.Transaction{{Signature: "sig1", Slot: 1000}, {Signature: "sig2", Slot: 1001}}}
	ing := &fakeIngester{store: store}
	a := New(store, prov, ing, 0)

	result, err := a.ReconcileSlotRange(context.Background(), "wallet1", 1000, 1002)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK {
		t.Errorf("expected ok=true when store matches provider, got %+v", result)
	}
	if len(store.audits) != 1 || !store.audits[0].OK {
		t.Errorf("expected one ok audit row, got %+v", store.audits)
	}
}

func TestReconcileSlotRangeDetectsAndRepairsMissing(t *testing.T) {
	store := newFakeStore()
	store.raw["wallet1"] = []string{"sig1", "sig2"}
	prov := &fakeProvider{items: []provider.Transaction{
		{Signature: "sig1", Slot: 1000}, {Signature: "sig2", Slot: 1001}, {Signature: "sig3", Slot: 1002},
	}}
	ing := &fakeIngester{store: store}
	a := New(store, prov, ing, 0)

	result, err := a.ReconcileSlotRange(context.Background(), "wallet1", 1000, 1002)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK {
		t.Errorf("expected ok=true after repair, got %+v", result)
	}
	if len(ing.ingested) != 1 || ing.ingested[0] != "sig3" {
		t.Errorf("expected sig3 to be repaired, got %v", ing.ingested)
	}
}

func TestReconcileSlotRangeIsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.raw["wallet1"] = []string{"sig1"}
	prov := &fakeProvider{items: []provider.Transaction{{Signature: "sig1", Slot: 1000}}}
	ing := &fakeIngester{store: store}
	a := New(store, prov, ing, 0)

	first, err := a.ReconcileSlotRange(context.Background(), "wallet1", 1000, 1000)
	if err != nil {
		t.Fatalf("unexpected error on first run: %v", err)
	}
	second, err := a.ReconcileSlotRange(context.Background(), "wallet1", 1000, 1000)
	if err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}
	if first.SignatureSetHash != second.SignatureSetHash {
		t.Errorf("expected identical hashes across idempotent runs, got %q vs %q", first.SignatureSetHash, second.SignatureSetHash)
	}
	if len(store.audits) != 2 {
		t.Errorf("expected two audit rows, got %d", len(store.audits))
	}
}

func TestReconcileRecentSlotsRequiresVerifiedSlot(t *testing.T) {
	store := newFakeStore()
	store.states["wallet1"] = model.SyncState{Wallet: "wallet1"}
	a := New(store, &fakeProvider{}, &fakeIngester{store: store}, 0)

	_, err := a.ReconcileRecentSlots(context.Background(), "wallet1", 10000)
	if err == nil {
		t.Fatal("expected precondition error when verifiedSlot is unset")
	}
}

func TestReconcileRecentSlotsChunks(t *testing.T) {
	store := newFakeStore()
	verified := uint64(2500)
	store.states["wallet1"] = model.SyncState{Wallet: "wallet1", VerifiedSlot: &verified}
	prov := &fakeProvider{}
	a := New(store, prov, &fakeIngester{store: store}, time.Millisecond)

	results, err := a.ReconcileRecentSlots(context.Background(), "wallet1", 2500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 chunks of 1000 slots for a 2500-slot window, got %d", len(results))
	}
}
