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

package api

import (
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/solwallet/indexer/internal/config"
)

// ResultCache is the short-TTL in-process result cache spec.md section 5
// describes as belonging to "the request front-end, not the core": two
// simultaneous requests for the same wallet share one in-flight pipeline,
// and results are cached briefly afterward. Grounded on the teacher's own
// badger usage in internal/storage/storage.go (DefaultOptions + Update/View
// closures), repurposed here from a cursor/UTXO store to a response cache.
type ResultCache struct {
	db  *badger.DB
	ttl time.Duration
}

// NewResultCache opens a badger store at the configured cache directory.
func NewResultCache() (*ResultCache, error) {
	cfg := config.GetConfig().API
	opts := badger.DefaultOptions(cfg.CacheDir).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &ResultCache{db: db, ttl: cfg.CacheTTL}, nil
}

// Get returns a cached response body for key, if present and unexpired.
func (c *ResultCache) Get(key string) ([]byte, bool) {
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = append([]byte(nil), v...)
			return nil
		})
	})
	if err != nil {
		return nil, false
	}
	return val, true
}

// Set caches body under key with the configured TTL.
func (c *ResultCache) Set(key string, body []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), body).WithTTL(c.ttl))
	})
}

// Close releases the underlying badger store.
func (c *ResultCache) Close() error {
	return c.db.Close()
}
