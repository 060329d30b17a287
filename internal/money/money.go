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

// Package money centralizes arbitrary-precision USD arithmetic. All
// monetary math in the normalizer and reconstructor goes through
// decimal.Decimal; float64 only appears at API/JSON boundaries, per
// spec.md's "Arbitrary-precision money" design note.
package money

import "github.com/shopspring/decimal"

// Zero is the additive identity, exported so callers don't re-derive it.
var Zero = decimal.Zero

// FromFloat converts a float64 (as received from an oracle or JSON payload)
// into a Decimal for internal math.
func FromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// ToFloat64 converts back to float64 at the point a value leaves the system
// (JSON response, CLI output, log field).
func ToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// Max returns the larger of two decimals.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// MaxZero clamps a decimal to be non-negative, used throughout the
// reconstructor's regret-gap computation (`max(0, ...)`).
func MaxZero(d decimal.Decimal) decimal.Decimal {
	return Max(d, Zero)
}
