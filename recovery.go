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

// recoverWriteSets reverses any transaction whose linearization point (the !-record
// delete in Phase 7) had not been reached before the process stopped. It
// runs once, before the oracle and chain index are constructed, so that no
// new transaction can observe half-written state left over from a crash.
//
// This is idempotent: purgeVersionFromKey is itself a CAS retry loop, so
// running recovery twice over the same store state purges nothing the
// second time.
func recoverWriteSets(db *DB) {
	entries := db.ScanPrefix(string(_bangByte))

	ci := newChainIndex(db)
	for _, kv := range entries {
		ts := bangTs(kv.K)

		keys, err := decodeWriteSet(kv.V)
		if err != nil {
			db.logger.Errorf("veridian: recovery: corrupt write-set record at ts %d: %v", ts, err)
			continue
		}

		for _, key := range keys {
			if err := ci.purgeVersionFromKey(key, ts); err != nil {
				db.logger.Errorf("veridian: recovery: purge failed for key %q at ts %d: %v", key, ts, err)
			}
		}
		db.Delete(kv.K)
	}
}
