package normalizer

import (
	"context"
	"testing"

	"github.com/solwallet/indexer/internal/metadata"
	"github.com/solwallet/indexer/internal/model"
	"github.com/solwallet/indexer/internal/provider"
)

type fakeResolver struct {
	entries map[string]metadata.Entry
}

func (f *fakeResolver) Batch(_ context.Context, mints []string) map[string]metadata.Entry {
	out := make(map[string]metadata.Entry)
	for _, m := range mints {
		if e, ok := f.entries[m]; ok {
			out[m] = e
		} else {
			out[m] = metadata.Entry{Symbol: "???", Decimals: 9, Source: model.MetaSourceDerived}
		}
	}
	return out
}

func newResolver() *fakeResolver {
	return &fakeResolver{entries: map[string]metadata.Entry{
		"mintA": {Symbol: "AAA", Decimals: 6, Source: model.MetaSourceResolverA},
		"mintB": {Symbol: "BBB", Decimals: 8, Source: model.MetaSourceResolverA},
	}}
}

func TestNormalizeBuyAndSell(t *testing.T) {
	n := New(newResolver(), nil)
	ts := int64(1000)
	tx := provider.Transaction{
		Signature: "sig1",
		Slot:      100,
		Timestamp: &ts,
		TokenTransfers: []provider.TokenTransfer{
			{Mint: "mintA", FromUserAccount: "wallet1", ToUserAccount: "other", TokenAmount: 10},
			{Mint: "mintB", FromUserAccount: "other", ToUserAccount: "wallet1", TokenAmount: 20},
		},
	}
	metas := map[string]metadata.Entry{
		"mintA": {Symbol: "AAA", Decimals: 6},
		"mintB": {Symbol: "BBB", Decimals: 8},
	}

	events := n.Normalize("wallet1", tx, metas)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Side != model.SideSell || events[0].Direction != model.DirectionOut {
		t.Errorf("expected first event SELL/OUT, got %s/%s", events[0].Side, events[0].Direction)
	}
	if events[1].Side != model.SideBuy || events[1].Direction != model.DirectionIn {
		t.Errorf("expected second event BUY/IN, got %s/%s", events[1].Side, events[1].Direction)
	}
	if events[0].Index != 0 || events[1].Index != 1 {
		t.Errorf("expected dense ascending indices, got %d, %d", events[0].Index, events[1].Index)
	}
	for _, ev := range events {
		if ev.Wallet != "wallet1" || ev.Signature != "sig1" || ev.Slot != 100 {
			t.Errorf("expected shared tx fields on every event, got %+v", ev)
		}
	}
}

func TestNormalizeIgnoresThirdPartyTransfer(t *testing.T) {
	n := New(newResolver(), nil)
	tx := provider.Transaction{
		Signature: "sig1",
		Slot:      100,
		TokenTransfers: []provider.TokenTransfer{
			{Mint: "mintA", FromUserAccount: "alice", ToUserAccount: "bob", TokenAmount: 10},
		},
	}
	events := n.Normalize("wallet1", tx, map[string]metadata.Entry{"mintA": {Symbol: "AAA", Decimals: 6}})
	if len(events) != 0 {
		t.Fatalf("expected no events for a transfer not involving the wallet, got %d", len(events))
	}
}

func TestNormalizeSwapLinking(t *testing.T) {
	n := New(newResolver(), []string{"amm-program-1"})
	tx := provider.Transaction{
		Signature: "sig1",
		Slot:      100,
		Instructions: []provider.Instruction{
			{ProgramId: "amm-program-1"},
		},
		TokenTransfers: []provider.TokenTransfer{
			{Mint: "mintA", FromUserAccount: "wallet1", ToUserAccount: "pool", TokenAmount: 10},
			{Mint: "mintB", FromUserAccount: "pool", ToUserAccount: "wallet1", TokenAmount: 20},
		},
	}
	metas := map[string]metadata.Entry{
		"mintA": {Symbol: "AAA", Decimals: 6},
		"mintB": {Symbol: "BBB", Decimals: 8},
	}
	events := n.Normalize("wallet1", tx, metas)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	wantLinkID := "swap:sig1"
	if events[0].LinkID != wantLinkID || events[1].LinkID != wantLinkID {
		t.Errorf("expected both swap legs linked as %q, got %q and %q", wantLinkID, events[0].LinkID, events[1].LinkID)
	}
}

func TestNormalizeFeeAttributionPrefersFirstSell(t *testing.T) {
	n := New(newResolver(), nil)
	fee := int64(5000)
	tx := provider.Transaction{
		Signature: "sig1",
		Slot:      100,
		Fee:       &fee,
		TokenTransfers: []provider.TokenTransfer{
			{Mint: "mintA", FromUserAccount: "other", ToUserAccount: "wallet1", TokenAmount: 10},
			{Mint: "mintB", FromUserAccount: "wallet1", ToUserAccount: "other", TokenAmount: 20},
		},
	}
	metas := map[string]metadata.Entry{
		"mintA": {Symbol: "AAA", Decimals: 6},
		"mintB": {Symbol: "BBB", Decimals: 8},
	}
	events := n.Normalize("wallet1", tx, metas)
	if events[0].Side != model.SideBuy || events[1].Side != model.SideSell {
		t.Fatalf("expected BUY then SELL, got %s then %s", events[0].Side, events[1].Side)
	}
	if events[0].FeeBaseUnits != nil {
		t.Errorf("expected no fee on the BUY leg")
	}
	if events[1].FeeBaseUnits == nil || *events[1].FeeBaseUnits != fee {
		t.Errorf("expected fee attributed to the SELL leg, got %v", events[1].FeeBaseUnits)
	}
}

func TestNormalizeFeeFallsBackToFirstEvent(t *testing.T) {
	n := New(newResolver(), nil)
	fee := int64(5000)
	tx := provider.Transaction{
		Signature: "sig1",
		Slot:      100,
		Fee:       &fee,
		TokenTransfers: []provider.TokenTransfer{
			{Mint: "mintA", FromUserAccount: "other", ToUserAccount: "wallet1", TokenAmount: 10},
		},
	}
	events := n.Normalize("wallet1", tx, map[string]metadata.Entry{"mintA": {Symbol: "AAA", Decimals: 6}})
	if events[0].FeeBaseUnits == nil || *events[0].FeeBaseUnits != fee {
		t.Fatalf("expected fee on the only event when no SELL exists, got %v", events[0].FeeBaseUnits)
	}
}

func TestNormalizeBatchResolvesMintsAcrossTransactions(t *testing.T) {
	n := New(newResolver(), nil)
	txs := []provider.Transaction{
		{Signature: "sig1", Slot: 100, TokenTransfers: []provider.TokenTransfer{
			{Mint: "mintA", FromUserAccount: "other", ToUserAccount: "wallet1", TokenAmount: 10},
		}},
		{Signature: "sig2", Slot: 101, TokenTransfers: []provider.TokenTransfer{
			{Mint: "mintB", FromUserAccount: "wallet1", ToUserAccount: "other", TokenAmount: 5},
		}},
	}
	events := n.NormalizeBatch(context.Background(), "wallet1", txs)
	if len(events) != 2 {
		t.Fatalf("expected 2 events across both transactions, got %d", len(events))
	}
	if events[0].TokenSymbol != "AAA" || events[1].TokenSymbol != "BBB" {
		t.Errorf("expected resolved symbols AAA/BBB, got %s/%s", events[0].TokenSymbol, events[1].TokenSymbol)
	}
}
