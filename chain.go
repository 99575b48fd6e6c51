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
	"sync"
	"sync/atomic"
)

// recordStatus is the lifecycle state of a memRecord. Only Pending ->
// {Committed, Aborted} transitions are permitted; once a record leaves
// Pending its wts and version are frozen.
type recordStatus uint32

const (
	statusPending recordStatus = iota
	statusCommitted
	statusAborted
)

var (
	// ErrAbort is returned for optimistic conflicts: the caller may retry
	// immediately with a fresh transaction.
	ErrAbort = errors.New("veridian: optimistic conflict, abort")
	// ErrBlocked is surfaced only when test mode is enabled (see
	// EnableBlockedMode); production callers never see it.
	ErrBlocked = errors.New("veridian: visible_ts blocked on pending record")
)

// memRecord is one slot in a chain: a write timestamp, a monotonically
// bumped read timestamp, an optional version handle (nil marks a tombstone
// or the chain's floor record), and a status.
type memRecord struct {
	wts     uint64
	rts     atomic.Uint64
	version *uint64
	status  atomic.Uint32
}

func (r *memRecord) getStatus() recordStatus {
	return recordStatus(r.status.Load())
}

func (r *memRecord) setStatus(s recordStatus) {
	r.status.Store(uint32(s))
}

// bumpRts raises r.rts to at least ts via a CAS loop; it never lowers rts.
func (r *memRecord) bumpRts(ts uint64) {
	for {
		curr := r.rts.Load()
		if curr >= ts {
			return
		}
		if r.rts.CompareAndSwap(curr, ts) {
			return
		}
	}
}

// blockedMode gates whether visible_ts surfaces ErrBlocked instead of
// spinning on a pending tail record. It exists purely so tests can observe
// scheduling interleavings deterministically; production code never
// toggles it.
var blockedMode atomic.Bool

// EnableBlockedMode switches visible_ts into test mode, where it returns
// ErrBlocked instead of spinning against a pending tail record. Restore the
// previous value with the returned func.
func EnableBlockedMode() (restore func()) {
	prev := blockedMode.Swap(true)
	return func() { blockedMode.Store(prev) }
}

// chain is the ordered, per-key sequence of memory records. The floor
// record (wts=0, Committed, version=nil) is installed at construction and
// never removed.
type chain struct {
	mu      sync.RWMutex
	records []*memRecord
}

func newChain() *chain {
	floor := &memRecord{wts: 0}
	floor.setStatus(statusCommitted)
	return &chain{records: []*memRecord{floor}}
}

// newChainFromVersions builds a chain from the committed (wts, version)
// pairs stored at @key, sorted ascending by wts, each installed Committed.
// Recovery has already purged any pending record, so every entry here is
// terminal.
func newChainFromVersions(versions []versionEntry) *chain {
	c := newChain()
	for _, v := range versions {
		version := v.version
		r := &memRecord{wts: v.wts, version: &version}
		r.setStatus(statusCommitted)
		c.records = append(c.records, r)
	}
	return c
}

// visibleTs scans from the tail toward the head. A record with wts ==
// queryTs is the caller's own pending install and is visible to itself.
// The first Committed record encountered is the answer. Aborted records
// are skipped. A Pending record belonging to another transaction blocks
// the scan (or, in test mode, yields ErrBlocked).
func (c *chain) visibleTs(queryTs uint64) (uint64, error) {
	for {
		ts, blocked, err := c.visibleTsOnce(queryTs)
		if err != nil {
			return 0, err
		}
		if !blocked {
			return ts, nil
		}
		if blockedMode.Load() {
			return 0, ErrBlocked
		}
	}
}

func (c *chain) visibleTsOnce(queryTs uint64) (ts uint64, blocked bool, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.records) - 1; i >= 0; i-- {
		r := c.records[i]
		if r.wts == queryTs {
			return r.wts, false, nil
		}
		switch r.getStatus() {
		case statusCommitted:
			return r.wts, false, nil
		case statusAborted:
			continue
		case statusPending:
			return 0, true, nil
		}
	}
	// unreachable: the floor record is always Committed.
	return 0, false, nil
}

// visibleVersion returns the version handle of the record visible at
// queryTs, resolving the predicate phase's lookup without conflating a
// predicate's list index with a version offset.
func (c *chain) visibleVersion(queryTs uint64) (version *uint64, found bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.records) - 1; i >= 0; i-- {
		r := c.records[i]
		if r.wts == queryTs || r.getStatus() == statusCommitted {
			return r.version, true
		}
	}
	return nil, false
}

// install appends record under the chain's exclusive lock, after verifying
// the current tail's wts equals expectedLastTs. record must already carry
// status Pending and a wts greater than expectedLastTs.
func (c *chain) install(expectedLastTs uint64, record *memRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tail := c.records[len(c.records)-1]
	if tail.wts != expectedLastTs {
		return ErrAbort
	}
	c.records = append(c.records, record)
	return nil
}

// commit flips the tail record (which must have wts == ts) to Committed.
func (c *chain) commit(ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tail := c.records[len(c.records)-1]
	if tail.wts != ts {
		panic("veridian: commit called on non-tail timestamp")
	}
	tail.setStatus(statusCommitted)
}

// abort flips the tail record (which must have wts == ts) to Aborted.
func (c *chain) abort(ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tail := c.records[len(c.records)-1]
	if tail.wts != ts {
		panic("veridian: abort called on non-tail timestamp")
	}
	tail.setStatus(statusAborted)
}

// bumpRts finds the most recent record with wts < ts, scanning tail to
// head, and monotonically raises its rts to ts.
func (c *chain) bumpRts(ts uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.records) - 1; i >= 0; i-- {
		r := c.records[i]
		if r.wts < ts {
			r.bumpRts(ts)
			return
		}
	}
}
