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

package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solwallet/indexer/internal/model"
)

// HTTPBackend queries a REST OHLC/price endpoint. oracle-A and oracle-B are
// both instances of this struct against different base URLs, the same way
// the teacher dispatches structurally identical DEX parsers in sequence
// against different protocols.
type HTTPBackend struct {
	name    string
	baseURL string
	http    *http.Client
}

// NewHTTPBackend builds an HTTPBackend identified by name ("oracle-a" or
// "oracle-b").
func NewHTTPBackend(name, baseURL string, timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (b *HTTPBackend) Name() string { return b.name }

type candleWire struct {
	T     int64   `json:"t"`
	Open  float64 `json:"o"`
	High  float64 `json:"h"`
	Low   float64 `json:"l"`
	Close float64 `json:"c"`
}

func (b *HTTPBackend) FetchCandles(ctx context.Context, mint string, start, end int64, resolution model.Resolution) ([]Candle, error) {
	u, err := url.Parse(b.baseURL + "/candles")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("mint", mint)
	q.Set("start", strconv.FormatInt(start, 10))
	q.Set("end", strconv.FormatInt(end, 10))
	q.Set("resolution", string(resolution))
	q.Set("bucketSeconds", strconv.FormatInt(bucketSeconds(resolution), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", b.name, resp.StatusCode)
	}

	var wire []candleWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, err
	}
	candles := make([]Candle, 0, len(wire))
	for _, c := range wire {
		candles = append(candles, Candle{T: c.T, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close})
	}
	return candles, nil
}

func (b *HTTPBackend) FetchCurrentPriceUsd(ctx context.Context, mint string) (*decimal.Decimal, error) {
	u, err := url.Parse(b.baseURL + "/price")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("mint", mint)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", b.name, resp.StatusCode)
	}

	var payload struct {
		PriceUsd *string `json:"priceUsd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.PriceUsd == nil {
		return nil, nil
	}
	price, err := decimal.NewFromString(*payload.PriceUsd)
	if err != nil {
		return nil, err
	}
	return &price, nil
}
