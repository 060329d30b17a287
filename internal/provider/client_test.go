package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/solwallet/indexer/internal/apperr"
	"github.com/solwallet/indexer/internal/config"
	"github.com/solwallet/indexer/internal/ratelimit"
)

func newTestClient(t *testing.T, srv *httptest.Server) *HTTPClient {
	t.Helper()
	cfg := config.ProviderConfig{
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		TimeoutMs: 5000,
	}
	return NewHTTPClient(cfg, ratelimit.New(4, 100))
}

func TestFetchTransactionsOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api-key") != "test-key" {
			t.Errorf("expected api-key query param, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"signature":"sig1","slot":100,"tokenTransfers":[],"nativeTransfers":[],"instructions":[]},
			{"signature":"sig2","slot":99,"tokenTransfers":[],"nativeTransfers":[],"instructions":[]}
		]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	page, err := c.FetchTransactions(context.Background(), "wallet1", "", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Items))
	}
	if page.NextBefore != "sig2" {
		t.Errorf("expected NextBefore sig2, got %q", page.NextBefore)
	}
	if page.Items[0].Raw == nil {
		t.Error("expected Raw bytes to be preserved")
	}
}

func TestFetchTransactionsEmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	page, err := c.FetchTransactions(context.Background(), "wallet1", "", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 0 || page.NextBefore != "" {
		t.Errorf("expected empty page, got %+v", page)
	}
}

func TestFetchTransactionsInvalidBefore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"INVALID_BEFORE","message":"invalid before cursor"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.FetchTransactions(context.Background(), "wallet1", "bogus", 100)
	if !apperr.Is(err, apperr.CodeCursorPoisoned) {
		t.Fatalf("expected CodeCursorPoisoned, got %v", err)
	}
}

func TestFetchTransactionsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"unauthorized: bad api-key"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.FetchTransactions(context.Background(), "wallet1", "", 100)
	if !apperr.Is(err, apperr.CodeUpstreamPermanent) {
		t.Fatalf("expected CodeUpstreamPermanent, got %v", err)
	}
	var ae *apperr.Error
	if e, ok := err.(*apperr.Error); ok {
		ae = e
	}
	if ae == nil || ae.Hint == "" {
		t.Error("expected an API-key hint on the error")
	}
}

func TestFetchTransactionsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"slow down"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.FetchTransactions(context.Background(), "wallet1", "", 100)
	if !apperr.Is(err, apperr.CodeUpstreamTransient) {
		t.Fatalf("expected CodeUpstreamTransient, got %v", err)
	}
}

func TestFetchTransactionsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`oops`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.FetchTransactions(context.Background(), "wallet1", "", 100)
	if !apperr.Is(err, apperr.CodeUpstreamTransient) {
		t.Fatalf("expected CodeUpstreamTransient, got %v", err)
	}
}
