package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solwallet/indexer/internal/model"
	"github.com/solwallet/indexer/internal/reconstruct"
)

type fakeStore struct {
	events  []model.WalletEvent
	calls   int32
}

func (f *fakeStore) GetWalletEventsOrdered(_ context.Context, _ string) ([]model.WalletEvent, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.events, nil
}

type fakeOracle struct{}

func (fakeOracle) GetCurrentPriceUsd(_ context.Context, _ string) (*decimal.Decimal, error) {
	return nil, nil
}

type fakeReconstructor struct{}

func (fakeReconstructor) Reconstruct(_ context.Context, wallet string, _ []model.WalletEvent, _ map[string]decimal.Decimal) reconstruct.Portfolio {
	return reconstruct.Portfolio{Wallet: wallet, Tokens: map[string]*reconstruct.TokenPosition{}}
}

func newTestAPI(store *fakeStore) *API {
	return New(store, fakeOracle{}, fakeReconstructor{}, nil)
}

func TestHandleEventsReturnsJSON(t *testing.T) {
	store := &fakeStore{events: []model.WalletEvent{{Wallet: "w1", Signature: "sig1"}}}
	a := newTestAPI(store)
	mux := http.NewServeMux()
	a.RegisterHandlers(mux)

	req := httptest.NewRequest(http.MethodGet, "/v1/wallets/w1/events", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got []model.WalletEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(got) != 1 || got[0].Signature != "sig1" {
		t.Errorf("expected one event with signature sig1, got %+v", got)
	}
}

func TestHandlePositionsReturnsPortfolio(t *testing.T) {
	store := &fakeStore{events: []model.WalletEvent{{Wallet: "w1", TokenMint: "mintA", Side: model.SideBuy}}}
	a := newTestAPI(store)
	mux := http.NewServeMux()
	a.RegisterHandlers(mux)

	req := httptest.NewRequest(http.MethodGet, "/v1/wallets/w1/positions", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got reconstruct.Portfolio
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Wallet != "w1" {
		t.Errorf("expected wallet w1, got %q", got.Wallet)
	}
}

func TestHandleWalletRejectsUnknownResource(t *testing.T) {
	a := newTestAPI(&fakeStore{})
	mux := http.NewServeMux()
	a.RegisterHandlers(mux)

	req := httptest.NewRequest(http.MethodGet, "/v1/wallets/w1/unknown", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown resource, got %d", rec.Code)
	}
}

func TestFlightGroupCoalescesConcurrentCallers(t *testing.T) {
	g := newFlightGroup()
	var calls int32
	var ready sync.WaitGroup
	release := make(chan struct{})
	results := make(chan []byte, 5)

	fn := func() ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []byte("result"), nil
	}

	ready.Add(5)
	for i := 0; i < 5; i++ {
		go func() {
			ready.Done()
			body, _ := g.Do("key", fn)
			results <- body
		}()
	}

	ready.Wait() // every goroutine has started; give the scheduler a moment to
	// let the followers reach g.Do and queue behind the first caller before
	// that first caller's fn is allowed to return.
	time.Sleep(10 * time.Millisecond)
	close(release)

	for i := 0; i < 5; i++ {
		if got := <-results; string(got) != "result" {
			t.Errorf("expected every caller to observe the coalesced result, got %q", got)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected exactly 1 underlying call, got %d", got)
	}
}
