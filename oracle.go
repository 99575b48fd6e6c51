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
	"encoding/binary"
	"sync/atomic"

	"github.com/veridian-db/veridian/pkg/logger"
	"github.com/veridian-db/veridian/pkg/watermark"
)

// tsSafetyBuffer (B) is the window the durable checkpoint stays ahead of
// the in-memory counter by. Crossing three quarters of it since the last
// checkpoint triggers a bump to the next multiple of B; at startup the
// counter is seeded to stored+B so timestamps issued after a crash always
// exceed any that were in flight before it, without persisting every tick.
const tsSafetyBuffer = 1 << 32

// oracle is the single process-wide source of transaction timestamps. It
// is opened with the store and torn down with it; there is no ambient
// singleton.
type oracle struct {
	store store
	log   logger.Logger

	next atomic.Uint64 // next counter value to hand out

	bumping atomic.Bool // true while a durable-bump CAS is in flight

	// epoch is the epoch-reclamation guard Txn.Execute pins right after
	// allocating its base timestamp and releases when Execute returns. The chain/version garbage collector this session
	// leaves out of scope watches epoch.DoneUntil() for its low-water mark.
	epoch *watermark.WaterMark
}

func newOracle(db *DB, log logger.Logger) (*oracle, error) {
	o := &oracle{
		store: dbStore{db: db},
		log:   log,
		epoch: watermark.New(),
	}

	stored := uint64(0)
	if raw, ok := o.store.get(_tsPersist); ok && len(raw) == 8 {
		stored = binary.BigEndian.Uint64(raw)
	}

	start := stored + tsSafetyBuffer
	o.next.Store(start)
	o.store.set(_tsPersist, []byte(tsBytes(start)))

	return o, nil
}

func (o *oracle) stop() {
	o.epoch.Stop()
}

// allocate atomically advances the counter by max(n, 1) using a
// sequentially-consistent fetch-and-add and returns the pre-advance value:
// the base_ts for a transaction with n writes.
func (o *oracle) allocate(n int) uint64 {
	if n < 1 {
		n = 1
	}
	base := o.next.Add(uint64(n)) - uint64(n)
	o.maybeBump(base + uint64(n))
	return base
}

// maybeBump durably advances the checkpoint once the counter crosses the
// three-quarter mark of the current safety-buffer window. Only one thread
// performs the bump; losing either CAS is harmless; another thread did the
// work, or already raced ahead of this one.
func (o *oracle) maybeBump(curr uint64) {
	checkpoint := curr - curr%tsSafetyBuffer
	threeQuarter := checkpoint + (tsSafetyBuffer/4)*3
	if curr < threeQuarter {
		return
	}

	if !o.bumping.CompareAndSwap(false, true) {
		return
	}
	defer o.bumping.Store(false)

	next := checkpoint + tsSafetyBuffer
	old, ok := o.store.get(_tsPersist)
	if !ok {
		old = nil
	}
	if err := o.store.cas(_tsPersist, old, []byte(tsBytes(next))); err != nil {
		// another thread already bumped the checkpoint past this point.
		return
	}
}

// beginEpoch pins the reclamation guard at ts for the lifetime of a
// transaction.
func (o *oracle) beginEpoch(ts uint64) {
	o.epoch.Begin(ts)
}

// endEpoch releases the guard pinned by beginEpoch.
func (o *oracle) endEpoch(ts uint64) {
	o.epoch.Done(ts)
}
