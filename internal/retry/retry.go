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

// Package retry wraps github.com/cenkalti/backoff/v4 with the
// exponential-backoff-plus-jitter policy spec.md section 4.1 requires for
// UpstreamTransient failures (429s, 5xxs, network timeouts).
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/solwallet/indexer/internal/apperr"
)

// Policy configures the retry loop.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
}

// DefaultPolicy matches spec.md's defaults: 5 attempts, base 1s, factor 2,
// cap 10s.
var DefaultPolicy = Policy{
	MaxAttempts: 5,
	BaseDelay:   time.Second,
	Factor:      2,
	MaxDelay:    10 * time.Second,
}

// Do runs fn, retrying only errors classified as apperr.CodeUpstreamTransient.
// Any other error, including context cancellation, returns immediately.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	eb := &backoff.ExponentialBackOff{
		InitialInterval:     policy.BaseDelay,
		RandomizationFactor: 0.3,
		Multiplier:          policy.Factor,
		MaxInterval:         policy.MaxDelay,
		MaxElapsedTime:       0, // bounded by attempt count, not elapsed time
		Clock:                backoff.SystemClock,
	}
	eb.Reset()

	var attempt int
	operation := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !apperr.Is(err, apperr.CodeUpstreamTransient) {
			return backoff.Permanent(err)
		}
		if attempt >= policy.MaxAttempts {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(eb, ctx))
	if err == nil {
		return nil
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}
