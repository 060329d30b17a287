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

package provider

import "encoding/json"

// Transaction is the canonical, strictly typed record the normalizer
// consumes, extracted from the provider's loose JSON shape while the raw
// bytes are preserved separately for opaque persistence (spec.md section
// 9, "dynamic payloads -> tagged unions").
type Transaction struct {
	Signature       string           `json:"signature"`
	Slot            uint64           `json:"slot"`
	Timestamp       *int64           `json:"timestamp"`
	Fee             *int64           `json:"fee"`
	TokenTransfers  []TokenTransfer  `json:"tokenTransfers"`
	NativeTransfers []NativeTransfer `json:"nativeTransfers"`
	Instructions    []Instruction    `json:"instructions"`
	Events          *Events          `json:"events"`

	// Raw is the exact bytes for this one transaction as returned by the
	// provider, kept for verbatim RawTransaction persistence.
	Raw json.RawMessage `json:"-"`
}

// TokenTransfer is one SPL token movement reported within a transaction.
type TokenTransfer struct {
	Mint            string  `json:"mint"`
	FromUserAccount string  `json:"fromUserAccount"`
	ToUserAccount   string  `json:"toUserAccount"`
	TokenAmount     float64 `json:"tokenAmount"`
}

// NativeTransfer is one SOL movement reported within a transaction.
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"`
}

// Instruction carries (at minimum) the program identifier invoked.
type Instruction struct {
	ProgramId string `json:"programId"`
}

// Events carries the provider's own structured classification, when it
// supplies one.
type Events struct {
	Swap json.RawMessage `json:"swap"`
}

// Page is one page of provider results plus the cursor to request the
// next (older) page.
type Page struct {
	Items      []Transaction
	NextBefore string // "" if there is no further page
}

// errorEnvelope is the provider's JSON error shape.
type errorEnvelope struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}
