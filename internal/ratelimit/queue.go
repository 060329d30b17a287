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

// Package ratelimit implements the bounded worker pool + token-bucket
// limiter described in spec.md section 9 ("Rate-limited queues"). Every
// call to the Upstream Transaction Provider and the Token Metadata
// Resolver is submitted through one of these queues; per-call retry lives
// outside the queue boundary so retries compete fairly for slots with
// fresh calls.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Queue gates concurrent access to a shared external collaborator: at most
// `concurrency` calls in flight, and no more than `rps` submissions per
// second on average.
type Queue struct {
	limiter *rate.Limiter
	sem     chan struct{}
}

// New creates a Queue. concurrency <= 0 is treated as 1.
func New(concurrency int, rps float64) *Queue {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Queue{
		limiter: rate.NewLimiter(rate.Limit(rps), maxBurst(rps)),
		sem:     make(chan struct{}, concurrency),
	}
}

func maxBurst(rps float64) int {
	b := int(rps)
	if b < 1 {
		b = 1
	}
	return b
}

// Submit blocks until a concurrency slot and a rate-limiter token are both
// available, then runs fn. It returns ctx.Err() if cancelled while waiting.
func (q *Queue) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case q.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-q.sem }()

	if err := q.limiter.Wait(ctx); err != nil {
		return err
	}
	return fn(ctx)
}
