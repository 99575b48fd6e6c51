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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOracleAllocateMonotonic checks that allocate never hands out the same
// base_ts twice and that base_ts strictly increases across calls returning
// in sequence, regardless of how many writes each call advances by.
func TestOracleAllocateMonotonic(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	prev := db.oracle.allocate(3)
	for i := 0; i < 100; i++ {
		n := 1 + i%4
		curr := db.oracle.allocate(n)
		assert.Greater(t, curr, prev)
		prev = curr
	}
}

// TestOracleAllocateConcurrentUnique checks that concurrent allocate calls
// never hand out overlapping [base_ts, base_ts+n) ranges.
func TestOracleAllocateConcurrentUnique(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	const goroutines = 32
	bases := make([]uint64, goroutines)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			bases[i] = db.oracle.allocate(2)
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for _, b := range bases {
		for _, ts := range []uint64{b, b + 1} {
			require.False(t, seen[ts], "timestamp %d allocated twice", ts)
			seen[ts] = true
		}
	}
}

// TestOracleAllocateMinimumOne checks that allocate(0) still advances the
// counter by at least one, per the max(n, 1) rule.
func TestOracleAllocateMinimumOne(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	a := db.oracle.allocate(0)
	b := db.oracle.allocate(0)
	assert.Equal(t, a+1, b)
}

// TestOracleRestartSeedsPastCheckpoint checks that reopening a store seeds
// the in-memory counter strictly past whatever was last durably bumped, so
// timestamps issued after a restart never collide with ones issued before
// it, without requiring every single timestamp to have been persisted.
func TestOracleRestartSeedsPastCheckpoint(t *testing.T) {
	dir := t.TempDir()
	config := Config{
		SkipListMaxLevel:       4,
		SkipListP:              0.5,
		L0TargetNum:            4,
		LevelRatio:             10,
		DataBlockByteThreshold: 4096,
		MemtableByteThreshold:  1 << 20,
		ImmutableBuffer:        10,
	}

	db, err := Open(dir, config)
	require.NoError(t, err)
	before := db.oracle.allocate(1)
	db.Close()

	reopened, err := Open(dir, config)
	require.NoError(t, err)
	defer reopened.Close()

	after := reopened.oracle.allocate(1)
	assert.Greater(t, after, before, "timestamps issued after restart must exceed any issued before it")

	raw, ok := reopened.Get(_tsPersist)
	require.True(t, ok)
	require.Len(t, raw, 8)
	assert.GreaterOrEqual(t, after, binary.BigEndian.Uint64(raw))
}

// TestOracleMaybeBumpDurableCheckpoint checks that once the counter crosses
// the three-quarter mark of the safety-buffer window, tx_persist is bumped
// to the next multiple of the window, ahead of the in-memory counter.
func TestOracleMaybeBumpDurableCheckpoint(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	raw, ok := db.Get(_tsPersist)
	require.True(t, ok)
	initialCheckpoint := binary.BigEndian.Uint64(raw)

	// Jump the in-memory counter to just past the three-quarter mark of the
	// current window in one allocate call, the way many small writes would
	// over time.
	threeQuarter := initialCheckpoint + (tsSafetyBuffer/4)*3
	curr := db.oracle.next.Load()
	db.oracle.allocate(int(threeQuarter - curr + 1))

	raw, ok = db.Get(_tsPersist)
	require.True(t, ok)
	bumped := binary.BigEndian.Uint64(raw)
	assert.Greater(t, bumped, initialCheckpoint)
	assert.Equal(t, uint64(0), bumped%tsSafetyBuffer, "checkpoint must land on a multiple of the safety buffer")
}
