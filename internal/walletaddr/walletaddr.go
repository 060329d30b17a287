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

// Package walletaddr validates Solana wallet address strings. This is an
// external collaborator per spec.md section 1 ("wallet-address string
// validation... specified only by interface"); this package gives it a
// concrete, minimal implementation so the CLI can reject malformed
// addresses before touching the provider or store. The HTTP surface in
// internal/api does not call it.
package walletaddr

import (
	"github.com/mr-tron/base58"

	"github.com/solwallet/indexer/internal/apperr"
)

// pubkeyLen is the byte length of a Solana ed25519 public key / PDA.
const pubkeyLen = 32

// Validate reports whether addr base58-decodes to a 32-byte value. Program
// derived addresses are routinely off the ed25519 curve, so this checks
// shape, not curve membership.
func Validate(addr string) error {
	if addr == "" {
		return apperr.InvalidInput("wallet address is empty")
	}
	decoded, err := base58.Decode(addr)
	if err != nil {
		return apperr.Wrap(apperr.CodeInvalidInput, "wallet address is not valid base58", err)
	}
	if len(decoded) != pubkeyLen {
		return apperr.InvalidInput("wallet address must decode to 32 bytes")
	}
	return nil
}
