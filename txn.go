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
	"errors"
)

var (
	// ErrPredicateFailure is returned when a registered predicate evaluates
	// false against the value visible at the time it was checked. It is an
	// application-logic outcome, not retryable the way ErrAbort is.
	ErrPredicateFailure = errors.New("veridian: predicate failed")
	// ErrEmptyKey is returned by Execute if any builder call registered an
	// empty key.
	ErrEmptyKey = errors.New("veridian: key is empty")
)

// predicateFn evaluates against the value visible to the transaction at the
// time the predicate phase runs; ok is false when the key has no visible
// value (deleted, or never written).
type predicateFn func(value []byte, ok bool) bool

type writeOp struct {
	key       string
	value     []byte
	tombstone bool
}

type predicateOp struct {
	key string
	fn  predicateFn
}

// versionedChain is a transaction's per-key snapshot: the chain reference
// plus the wts this transaction considered visible the first time it
// looked at that key.
type versionedChain struct {
	initialVisible uint64
	chain          *chain
}

// writtenVersion records the version this transaction assigned a key
// during Phase 3, carried forward to Phase 7 (persistence) and Phase 8
// (maintenance).
type writtenVersion struct {
	key       string
	version   uint64
	tombstone bool
}

// Txn is the transaction coordinator: a builder of predicate reads and
// writes that, on Execute, drives the eight-phase protocol described in
// chain.go/index.go/oracle.go/persist.go/recovery.go.
type Txn struct {
	db *DB

	writes     []writeOp
	predicates []predicateOp
	err        error

	executed bool
}

func newTxn(db *DB) *Txn {
	return &Txn{db: db}
}

// Set registers a write of value at key, to take effect atomically with
// the rest of this transaction's writes on Execute.
func (t *Txn) Set(key string, value []byte) *Txn {
	if key == "" {
		t.err = ErrEmptyKey
		return t
	}
	t.writes = append(t.writes, writeOp{key: key, value: value})
	return t
}

// Del registers a deletion of key, to take effect atomically on Execute.
func (t *Txn) Del(key string) *Txn {
	if key == "" {
		t.err = ErrEmptyKey
		return t
	}
	t.writes = append(t.writes, writeOp{key: key, tombstone: true})
	return t
}

// Predicate registers a read-time check: fn is evaluated against the value
// visible to this transaction at key when the predicate phase runs. If fn
// returns false, Execute fails with ErrPredicateFailure and nothing in the
// transaction is made durable.
func (t *Txn) Predicate(key string, fn func(value []byte, ok bool) bool) *Txn {
	if key == "" {
		t.err = ErrEmptyKey
		return t
	}
	t.predicates = append(t.predicates, predicateOp{key: key, fn: fn})
	return t
}

// Execute drives the transaction through allocation, version search,
// pending install, read-timestamp bump, predicate and consistency checks,
// the durable write, and maintenance. On any error no part of the
// transaction is durable.
func (t *Txn) Execute() error {
	if t.executed {
		return errors.New("veridian: transaction already executed")
	}
	t.executed = true
	if t.err != nil {
		return t.err
	}

	db := t.db

	// Phase 1 — Allocate.
	baseTs := db.oracle.allocate(len(t.writes))
	db.oracle.beginEpoch(baseTs)
	defer db.oracle.endEpoch(baseTs)

	// Phase 2 — Version search.
	versioned := make(map[string]*versionedChain)
	for _, k := range t.touchedKeys() {
		if _, ok := versioned[k]; ok {
			continue
		}
		c := db.chains.getChain(k)
		lastTs, err := c.visibleTs(baseTs)
		if err != nil {
			return err
		}
		if lastTs > baseTs {
			return ErrAbort
		}
		versioned[k] = &versionedChain{initialVisible: lastTs, chain: c}
	}

	// Phase 3 — Install pending.
	written := make([]writtenVersion, len(t.writes))
	installed := 0
	abortInstalled := func() {
		for _, w := range written[:installed] {
			versioned[w.key].chain.abort(baseTs)
		}
	}
	for i, w := range t.writes {
		version := baseTs + uint64(i)
		rec := &memRecord{wts: baseTs}
		if !w.tombstone {
			rec.version = &version
		}
		rec.setStatus(statusPending)

		vc := versioned[w.key]
		if err := vc.chain.install(vc.initialVisible, rec); err != nil {
			abortInstalled()
			return err
		}
		written[i] = writtenVersion{key: w.key, version: version, tombstone: w.tombstone}
		installed++
	}

	// From here on a failure must abort every installed record and purge
	// anything already persisted, rather than simply returning.
	fail := func(cause error) error {
		for _, w := range written {
			versioned[w.key].chain.abort(baseTs)
			if err := db.chains.purgeVersionFromKey(w.key, baseTs); err != nil {
				db.logger.Errorf("veridian: purge during abort maintenance failed for key %q: %v", w.key, err)
			}
		}
		db.store().del(bangKey(baseTs))
		return cause
	}

	// Phase 4 — Bump read timestamps.
	for _, p := range t.predicates {
		versioned[p.key].chain.bumpRts(baseTs)
	}

	// Phase 5 — Check predicates.
	for _, p := range t.predicates {
		vc := versioned[p.key]
		vis, err := vc.chain.visibleTs(baseTs)
		if err != nil {
			return fail(err)
		}
		if vis != vc.initialVisible && vis != baseTs {
			return fail(ErrAbort)
		}

		version, found := vc.chain.visibleVersion(vc.initialVisible)
		var value []byte
		var ok bool
		if found && version != nil {
			if raw, exists := db.store().get(tsBytes(*version)); exists {
				value, ok = raw, true
			}
		}
		if !p.fn(value, ok) {
			return fail(ErrPredicateFailure)
		}
	}

	// Phase 6 — Check version consistency.
	for _, p := range t.predicates {
		vc := versioned[p.key]
		vis, err := vc.chain.visibleTs(baseTs)
		if err != nil {
			return fail(err)
		}
		if vis != vc.initialVisible && vis != baseTs {
			return fail(ErrAbort)
		}
	}

	// Phase 7 — Write (linearization).
	keys := make([]string, len(written))
	for i, w := range written {
		keys[i] = w.key
	}
	db.store().set(bangKey(baseTs), encodeWriteSet(keys))

	for _, w := range written {
		if !w.tombstone {
			db.store().set(tsBytes(w.version), t.valueFor(w.key))
		}
		if err := db.chains.addVersionToKey(w.key, baseTs, w.version); err != nil {
			return fail(err)
		}
	}

	db.store().del(bangKey(baseTs)) // commit point

	// Phase 8 — Maintenance (success path).
	for _, w := range written {
		versioned[w.key].chain.commit(baseTs)
	}
	return nil
}

// touchedKeys returns the union of predicate keys and write keys, each
// appearing once.
func (t *Txn) touchedKeys() []string {
	seen := make(map[string]struct{}, len(t.writes)+len(t.predicates))
	var keys []string
	add := func(k string) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for _, p := range t.predicates {
		add(p.key)
	}
	for _, w := range t.writes {
		add(w.key)
	}
	return keys
}

// valueFor returns the write value registered for key. Called only for
// non-tombstone writes, each key written at most once per transaction.
func (t *Txn) valueFor(key string) []byte {
	for _, w := range t.writes {
		if w.key == key && !w.tombstone {
			return w.value
		}
	}
	return nil
}

func (db *DB) store() store {
	return dbStore{db: db}
}
