// Copyright 2025 BINARY Members
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

package veridian

import (
	"sort"
	"sync"
)

// chainIndex maps a key to its in-memory chain, lazily materializing
// chains from the store on first access. Entries are only ever inserted,
// never removed during normal operation: a chain, once built, lives for
// the process lifetime.
type chainIndex struct {
	store store

	mu     sync.RWMutex
	chains map[string]*chain
}

func newChainIndex(db *DB) *chainIndex {
	return &chainIndex{
		store:  dbStore{db: db},
		chains: make(map[string]*chain),
	}
}

// getChain returns the chain for key, building it from the store's @key
// entry (or a fresh floor-only chain, if absent) the first time key is
// seen. Concurrent first accesses race to build; the loser discards its
// chain and uses the winner's.
func (ci *chainIndex) getChain(key string) *chain {
	ci.mu.RLock()
	c, ok := ci.chains[key]
	ci.mu.RUnlock()
	if ok {
		return c
	}

	c = ci.loadChain(key)

	ci.mu.Lock()
	defer ci.mu.Unlock()
	if existing, ok := ci.chains[key]; ok {
		return existing
	}
	ci.chains[key] = c
	return c
}

func (ci *chainIndex) loadChain(key string) *chain {
	data, ok := ci.store.get(atKey(key))
	if !ok {
		return newChain()
	}

	versions, err := decodeVersions(data)
	if err != nil {
		// A corrupt @key record degrades to an empty chain rather than
		// taking the whole index down; the underlying store is assumed to
		// round-trip bytes deterministically (see persist.go).
		return newChain()
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i].wts < versions[j].wts })
	return newChainFromVersions(versions)
}

// addVersionToKey CASes @key from its current versions list to the list
// with (wts, version) appended.
func (ci *chainIndex) addVersionToKey(key string, wts, version uint64) error {
	k := atKey(key)
	for {
		old, ok := ci.store.get(k)
		var versions []versionEntry
		if ok {
			var err error
			versions, err = decodeVersions(old)
			if err != nil {
				return err
			}
		}
		versions = append(versions, versionEntry{wts: wts, version: version})
		newBytes := encodeVersions(versions)

		var oldBytes []byte
		if ok {
			oldBytes = old
		}
		if err := ci.store.cas(k, oldBytes, newBytes); err != nil {
			continue // lost the race, retry against the fresh value
		}
		return nil
	}
}

// purgeVersionFromKey CASes @key from its current list to the same list
// minus every (wts, _) entry, and deletes the per-version value key. If the
// resulting list is empty, @key is removed entirely. The whole operation is
// a CAS retry loop, which is what makes recovery safe to run more than
// once: a purge of an already-purged key is a no-op.
func (ci *chainIndex) purgeVersionFromKey(key string, wts uint64) error {
	k := atKey(key)
	for {
		old, ok := ci.store.get(k)
		if !ok {
			break
		}
		versions, err := decodeVersions(old)
		if err != nil {
			return err
		}

		kept := versions[:0:0]
		var purgedVersion uint64
		var purgedAny bool
		for _, v := range versions {
			if v.wts == wts {
				purgedVersion = v.version
				purgedAny = true
				continue
			}
			kept = append(kept, v)
		}
		if !purgedAny {
			break
		}

		if len(kept) == 0 {
			if err := ci.store.cas(k, old, nil); err != nil {
				continue
			}
		} else {
			if err := ci.store.cas(k, old, encodeVersions(kept)); err != nil {
				continue
			}
		}
		ci.store.del(tsBytes(purgedVersion))
		break
	}
	return nil
}
