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

// Package provider implements the HTTP client for the Upstream Transaction
// Provider described in spec.md section 6: a Helius-shaped enhanced
// transactions endpoint returning newest-first, backward-paginated
// transaction history for an address.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/solwallet/indexer/internal/apperr"
	"github.com/solwallet/indexer/internal/config"
	"github.com/solwallet/indexer/internal/logging"
	"github.com/solwallet/indexer/internal/ratelimit"
)

// Client fetches one page of a wallet's transaction history.
type Client interface {
	FetchTransactions(ctx context.Context, wallet, before string, limit int) (*Page, error)
}

// HTTPClient is the production Client, gated by a shared rate-limited
// queue per spec.md section 5.
type HTTPClient struct {
	cfg   config.ProviderConfig
	queue *ratelimit.Queue
	http  *http.Client
}

// NewHTTPClient constructs a Client bound to the given queue.
func NewHTTPClient(cfg config.ProviderConfig, queue *ratelimit.Queue) *HTTPClient {
	return &HTTPClient{
		cfg:   cfg,
		queue: queue,
		http:  &http.Client{Timeout: cfg.Timeout()},
	}
}

func (c *HTTPClient) FetchTransactions(ctx context.Context, wallet, before string, limit int) (*Page, error) {
	logger := logging.Component("provider")

	u, err := c.buildURL(wallet, before, limit)
	if err != nil {
		return nil, apperr.InvalidInput(err.Error())
	}

	var body []byte
	var status int
	submitErr := c.queue.Submit(ctx, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
		if err != nil {
			return apperr.Wrap(apperr.CodeUpstreamPermanent, "failed to build request", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return apperr.UpstreamTransient("provider request failed", err)
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		b, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return apperr.UpstreamTransient("failed reading provider response", readErr)
		}
		body = b

		if status == http.StatusOK {
			return nil
		}
		return classifyError(status, body)
	})
	if submitErr != nil {
		logger.Warn("provider call failed",
			"wallet", wallet,
			"status", status,
			"bodySnippet", snippet(body),
			"error", submitErr,
		)
		return nil, submitErr
	}

	return parsePage(body)
}

func (c *HTTPClient) buildURL(wallet, before string, limit int) (string, error) {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	u, err := url.Parse(fmt.Sprintf("%s/v0/addresses/%s/transactions", base, url.PathEscape(wallet)))
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("api-key", c.cfg.APIKey)
	q.Set("maxSupportedTransactionVersion", "0")
	if before != "" {
		q.Set("before", before)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// classifyError maps an HTTP status + body to the error taxonomy in
// spec.md section 7.
func classifyError(status int, body []byte) error {
	var env errorEnvelope
	_ = json.Unmarshal(body, &env)
	msg := env.Message
	if msg == "" {
		msg = string(body)
	}
	lower := strings.ToLower(msg)

	switch {
	case status == http.StatusBadRequest && (strings.Contains(lower, "invalid before") || env.Code == "INVALID_BEFORE"):
		return apperr.CursorPoisoned(msg)
	case status == http.StatusBadRequest && (strings.Contains(lower, "unauthorized") || strings.Contains(lower, "api-key")):
		return apperr.UpstreamPermanent(msg, nil).WithHint("check your API key")
	case status == http.StatusTooManyRequests:
		return apperr.UpstreamTransient(msg, nil).WithHint("rate limited, will retry")
	case status >= 500:
		return apperr.UpstreamTransient(msg, nil)
	case status >= 400:
		return apperr.UpstreamPermanent(msg, nil)
	default:
		return apperr.UpstreamPermanent(msg, nil)
	}
}

func parsePage(body []byte) (*Page, error) {
	var rawItems []json.RawMessage
	if err := json.Unmarshal(body, &rawItems); err != nil {
		return nil, apperr.Wrap(apperr.CodeUpstreamPermanent, "malformed provider response", err)
	}

	items := make([]Transaction, 0, len(rawItems))
	for _, raw := range rawItems {
		var tx Transaction
		if err := json.Unmarshal(raw, &tx); err != nil {
			return nil, apperr.Wrap(apperr.CodeUpstreamPermanent, "malformed transaction in provider response", err)
		}
		tx.Raw = bytes.Clone(raw)
		items = append(items, tx)
	}

	nextBefore := ""
	if len(items) > 0 {
		nextBefore = items[len(items)-1].Signature
	}
	return &Page{Items: items, NextBefore: nextBefore}, nil
}

func snippet(b []byte) string {
	if len(b) > 200 {
		b = b[:200]
	}
	return string(b)
}
