// Copyright 2024 BINARY Members
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
	"bytes"
	"container/list"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/veridian-db/veridian/pkg/kway"
	"github.com/veridian-db/veridian/pkg/logger"
	"github.com/veridian-db/veridian/pkg/types"
)

var (
	errMkDir = errors.New("failed to create db dir")
	// ErrCasFailed is returned by DB.Cas when the observed value at key did
	// not match the expected one.
	ErrCasFailed = errors.New("compare-and-swap failed")
)

// DB is the persistent key-value store: an LSM tree offering atomic
// single-key get/set/delete/cas and a lexicographic prefix scan. Everything
// above this line (oracle, chains, transactions) treats DB as a black box.
type DB struct {
	mu sync.RWMutex

	config Config
	logger logger.Logger
	dir    string
	state  uint32

	memtable   *memtable
	immutables *list.List
	flushC     chan *memtable

	manager *levelManager

	oracle *oracle
	chains *chainIndex

	closed chan struct{}
	closeC chan struct{}
}

type State uint32

const (
	_ State = iota
	StateInitialize
	StateOpened
	StateClosed
)

func Open(dir string, config Config) (*DB, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errMkDir
	}

	db := &DB{
		config:     config,
		dir:        dir,
		logger:     logger.GetLogger(),
		immutables: list.New(),
		flushC:     make(chan *memtable, config.ImmutableBuffer),
		closeC:     make(chan struct{}),
		closed:     make(chan struct{}),
	}

	atomic.StoreUint32(&db.state, uint32(StateInitialize))

	// recover from exist wal
	mt := newMemtable(dir, config.SkipListMaxLevel, config.SkipListP)
	mt.recover()

	// recover from exist db
	lm := newLevelManager(db)
	lm.recover()

	db.memtable = mt
	db.manager = lm

	// recover pending write sets before the transaction engine serves
	// any new transaction: any !ts record left behind by a crash reverses.
	recoverWriteSets(db)

	orc, err := newOracle(db, db.logger)
	if err != nil {
		return nil, err
	}
	db.oracle = orc
	db.chains = newChainIndex(db)

	go db.run()
	return db, nil
}

func (db *DB) Close() {
	defer atomic.StoreUint32(&db.state, uint32(StateClosed))
	db.closeC <- struct{}{}

	mt := db.memtable
	mt.freeze()
	if mt.size() > 0 {
		db.flushImmutable(mt)
	} else {
		if err := mt.wal.Delete(); err != nil {
			db.logger.Panicf("failed to delete immutable wal file: %v", err)
		}
	}

	<-db.closed

	db.oracle.stop()
}

// Tx starts a new transaction against the store. See Txn for the phases it
// drives through on Execute.
func (db *DB) Tx() *Txn {
	return newTxn(db)
}

func (db *DB) State() State {
	return State(atomic.LoadUint32(&db.state))
}

func (db *DB) Set(key string, value []byte) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.rawset(types.Entry{
		Key:       key,
		Value:     value,
		Tombstone: false,
	})
}

func (db *DB) Delete(key string) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.rawset(types.Entry{
		Key:       key,
		Value:     []byte{},
		Tombstone: true,
	})
}

func (db *DB) Get(key string) ([]byte, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.getLocked(key)
}

func (db *DB) getLocked(key string) ([]byte, bool) {
	// search memtable
	mtEntry, ok := db.memtable.get(key)
	if ok {
		return value(mtEntry)
	}

	// search immutables
	for e := db.immutables.Back(); e != nil; e = e.Prev() {
		imt := e.Value.(*memtable)
		imtEntry, ok := imt.get(key)
		if ok {
			return value(imtEntry)
		}
	}

	// search sstables
	sstEntry, ok := db.manager.searchLowerBound(key)
	if ok {
		return value(sstEntry)
	}
	return nil, false
}

// Cas performs an atomic compare-and-set: old == nil asserts the key is
// currently absent, newVal == nil deletes the key. On mismatch it returns
// ErrCasFailed wrapping the key that lost the race.
func (db *DB) Cas(key string, old, newVal []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	actual, found := db.getLocked(key)
	switch {
	case old == nil && found:
		return fmt.Errorf("%w: key %q", ErrCasFailed, key)
	case old != nil && !found:
		return fmt.Errorf("%w: key %q", ErrCasFailed, key)
	case old != nil && found && !bytes.Equal(actual, old):
		return fmt.Errorf("%w: key %q", ErrCasFailed, key)
	}

	if newVal == nil {
		db.rawset(types.Entry{Key: key, Value: []byte{}, Tombstone: true})
	} else {
		db.rawset(types.Entry{Key: key, Value: newVal, Tombstone: false})
	}
	return nil
}

// Scan [start, end)
func (db *DB) Scan(start, end string) []types.KV {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var scan [][]types.Entry

	// scan memtable
	scan = append(scan, db.memtable.scan(start, end))

	// scan immutables
	for e := db.immutables.Back(); e != nil; e = e.Prev() {
		imt := e.Value.(*memtable)
		scan = append(scan, imt.scan(start, end))
	}

	// scan sstables
	scan = append(scan, db.manager.scan(start, end))

	slices.Reverse(scan)
	// merge result
	return kvs(kway.Merge(scan...))
}

// ScanPrefix returns every live key with the given byte prefix, in
// lexicographic order.
func (db *DB) ScanPrefix(prefix string) []types.KV {
	return db.Scan(prefix, prefixUpperBound(prefix))
}

// prefixUpperBound returns the smallest key that is lexicographically greater
// than every key starting with prefix, so that Scan(prefix, upperBound)
// is exactly the set of keys with that prefix. A prefix of all 0xff bytes
// (or empty) has no finite upper bound; callers don't hit that case here
// since every prefix this engine uses ("@", "!") starts with an ASCII byte.
func prefixUpperBound(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}

func (db *DB) rawset(entry types.Entry) {
	db.memtable.set(entry)

	if db.memtable.size() >= db.config.MemtableByteThreshold {
		db.memtable.freeze()
		imt := db.memtable

		db.flushC <- imt
		db.immutables.PushBack(imt)

		db.memtable = db.memtable.reset()
	}
}

func (db *DB) flushImmutable(imt *memtable) {
	// flush immutable memtable to L0
	if err := db.manager.flushToL0(imt.all()); err != nil {
		db.logger.Panicf("failed to flush immutable memtable: %v", err)
	}
	// delete wal file
	if err := imt.wal.Delete(); err != nil {
		db.logger.Panicf("failed to delete immutable wal file: %v", err)
	}
}

func (db *DB) run() {
	atomic.StoreUint32(&db.state, uint32(StateOpened))
	var closed bool
LOOP:
	for {
		select {
		case imt := <-db.flushC:
			db.flushImmutable(imt)
			db.manager.checkAndCompact()

			db.mu.Lock()
			db.immutables.Remove(db.immutables.Back())
			db.mu.Unlock()

			if closed && len(db.flushC) == 0 {
				break LOOP
			}
		case <-db.closeC:
			closed = true
			if len(db.flushC) > 0 {
				continue
			}
			break LOOP
		}
	}
	close(db.closed)
}

func value(entry types.Entry) ([]byte, bool) {
	if entry.Tombstone {
		return nil, false
	}
	return entry.Value, true
}

func kvs(entries []types.Entry) []types.KV {
	var res []types.KV
	for _, entry := range entries {
		if entry.Tombstone {
			continue
		}
		res = append(res, types.KV{
			K: entry.Key,
			V: entry.Value,
		})
	}
	return res
}
